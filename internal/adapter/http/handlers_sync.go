package http

import (
	"io"
	"net/http"

	syncdomain "github.com/agblogger/agblogger/internal/domain/sync"
)

// SyncInit serves POST /sync/init: the client submits its manifest and
// last-synced commit, the server returns a per-path plan (spec §4.10.1).
func (h *Handlers) SyncInit(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[syncdomain.InitRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	resp, err := h.sync.Init(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "unable to start sync session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncUpload serves POST /sync/upload/{path}: a single file's raw bytes,
// written to the content store ahead of COMMIT (spec §4.10.2 point 2).
func (h *Handlers) SyncUpload(w http.ResponseWriter, r *http.Request) {
	filePath := pathParam(r)
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "missing path")
		return
	}
	limit := h.cfg.Sync.MaxUploadBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if err := h.content.WritePost(filePath, raw); err != nil {
		writeDomainError(w, err, "unable to store upload")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "uploaded", "file_path": filePath})
}

// SyncDownload serves GET /sync/download/{path}: the raw bytes of a
// server-side file the plan marked for download.
func (h *Handlers) SyncDownload(w http.ResponseWriter, r *http.Request) {
	filePath := pathParam(r)
	raw, err := h.content.ReadPost(filePath)
	if err != nil {
		writeDomainError(w, err, "file not found")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(raw)
}

// SyncCommit serves POST /sync/commit: finalizes a sync session,
// applying acknowledged deletions and conflict resolutions, committing
// to git, and rescanning the cache (spec §4.10.2 point 4, §4.10.5).
func (h *Handlers) SyncCommit(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[syncdomain.CommitRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	resp, err := h.sync.Commit(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "unable to commit sync session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
