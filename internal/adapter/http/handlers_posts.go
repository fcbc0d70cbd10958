package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/agblogger/agblogger/internal/domain/post"
	"github.com/agblogger/agblogger/internal/middleware"
)

// ListPosts serves GET /posts: filtered, paginated, optionally
// full-text-searched (spec §6). Draft posts are only included for an
// authenticated caller; anonymous callers always get Draft=false forced.
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := post.ListFilter{
		Label:  q.Get("label"),
		Author: q.Get("author"),
		Query:  q.Get("q"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
	}
	if labels, ok := q["labels"]; ok {
		filter.Labels = labels
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	u := middleware.UserFromContext(r.Context())
	if u == nil || u.Role() != "admin" {
		draftFalse := false
		filter.Draft = &draftFalse
	} else if v := q.Get("draft"); v != "" {
		draft := v == "true"
		filter.Draft = &draft
	}

	posts, total, err := h.posts.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err, "unable to list posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts":  posts,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetPost serves GET /posts/{path}: the cache row plus sanitized
// rendered HTML, 404ing a draft post for non-admins (spec §4.11
// scenario 6). A path ending in ?format=raw instead returns the
// unrendered markdown file bytes, since chi requires a wildcard segment
// to end its route pattern, ruling out a separate /posts/{path}/raw
// route for slash-bearing paths.
func (h *Handlers) GetPost(w http.ResponseWriter, r *http.Request) {
	filePath := pathParam(r)
	p, err := h.posts.Get(r.Context(), filePath)
	if err != nil {
		writeDomainError(w, err, "post not found")
		return
	}
	if !h.canSeeDraft(r, p.IsDraft) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}

	if r.URL.Query().Get("format") == "raw" {
		raw, err := h.posts.Raw(filePath)
		if err != nil {
			writeDomainError(w, err, "post not found")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(raw)
		return
	}

	html, err := h.posts.Rendered(r.Context(), filePath)
	if err != nil {
		writeDomainError(w, err, "unable to render post")
		return
	}
	p.RenderedHTML = html
	writeJSON(w, http.StatusOK, p)
}

// CreatePost serves POST /posts (admin-only, RequireRole at the route).
func (h *Handlers) CreatePost(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[post.CreateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	p, err := h.posts.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "unable to create post")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePost serves PUT /posts/{path} (admin-only).
func (h *Handlers) UpdatePost(w http.ResponseWriter, r *http.Request) {
	filePath := pathParam(r)
	req, ok := readJSON[post.UpdateRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	p, err := h.posts.Update(r.Context(), filePath, req)
	if err != nil {
		writeDomainError(w, err, "unable to update post")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePost serves DELETE /posts/{path} (admin-only).
func (h *Handlers) DeletePost(w http.ResponseWriter, r *http.Request) {
	filePath := pathParam(r)
	if err := h.posts.Delete(r.Context(), filePath); err != nil {
		writeDomainError(w, err, "unable to delete post")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// canSeeDraft reports whether the caller may view a post with the given
// draft flag: always true for non-drafts, admin-only for drafts.
func (h *Handlers) canSeeDraft(r *http.Request, isDraft bool) bool {
	if !isDraft {
		return true
	}
	u := middleware.UserFromContext(r.Context())
	return u != nil && u.Role() == "admin"
}
