package http

import (
	"net/http"

	"github.com/agblogger/agblogger/internal/domain/label"
	"github.com/agblogger/agblogger/internal/domain/post"
)

// ListLabels serves GET /labels.
func (h *Handlers) ListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := h.labels.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "unable to list labels")
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

// GetLabel serves GET /labels/{id}.
func (h *Handlers) GetLabel(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	l, err := h.labels.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "label not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// GetLabelGraph serves GET /labels/graph: every label plus each one's
// ancestor and descendant ids, the payload a client renders as a DAG
// (spec §4.8).
func (h *Handlers) GetLabelGraph(w http.ResponseWriter, r *http.Request) {
	all, err := h.labels.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "unable to load label graph")
		return
	}
	type node struct {
		label.Label
		Ancestors   []string `json:"ancestors"`
		Descendants []string `json:"descendants"`
	}
	nodes := make([]node, 0, len(all))
	for _, l := range all {
		ancestors, err := h.labels.Ancestors(r.Context(), l.ID)
		if err != nil {
			writeDomainError(w, err, "unable to load label graph")
			return
		}
		descendants, err := h.labels.Descendants(r.Context(), l.ID)
		if err != nil {
			writeDomainError(w, err, "unable to load label graph")
			return
		}
		nodes = append(nodes, node{Label: l, Ancestors: ancestors, Descendants: descendants})
	}
	writeJSON(w, http.StatusOK, nodes)
}

// GetLabelPosts serves GET /labels/{id}/posts: every non-draft post
// tagged with id or one of its descendants (spec §4.8 "posts in X or
// below"). ListFilter.Labels is an intersection (a post must carry every
// listed label), so "X or below" is computed here as the union of one
// single-label query per id in the closure rather than a single
// multi-label filter call.
func (h *Handlers) GetLabelPosts(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	descendants, err := h.labels.Descendants(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "label not found")
		return
	}

	draftFalse := false
	seen := map[string]bool{}
	var posts []post.Post
	for _, lid := range append([]string{id}, descendants...) {
		matched, _, err := h.posts.List(r.Context(), post.ListFilter{Label: lid, Draft: &draftFalse, Limit: 200})
		if err != nil {
			writeDomainError(w, err, "unable to list posts")
			return
		}
		for _, p := range matched {
			if seen[p.FilePath] {
				continue
			}
			seen[p.FilePath] = true
			posts = append(posts, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts, "total": len(posts)})
}

// UpsertLabel serves POST /labels and PUT /labels/{id} (admin-only).
func (h *Handlers) UpsertLabel(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[label.UpsertRequest](w, r, 4<<10)
	if !ok {
		return
	}
	if id := urlParam(r, "id"); id != "" {
		req.ID = id
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.labels.Upsert(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "unable to save label")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DeleteLabel serves DELETE /labels/{id} (admin-only).
func (h *Handlers) DeleteLabel(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.labels.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err, "unable to delete label")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
