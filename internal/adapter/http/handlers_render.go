package http

import "net/http"

type renderPreviewRequest struct {
	Body string `json:"body"`
}

type renderPreviewResponse struct {
	HTML string `json:"html"`
}

// RenderPreview serves POST /render/preview: renders and sanitizes
// arbitrary markdown without writing it to the content store, gated to
// authenticated callers by the route (spec §4.6, §6).
func (h *Handlers) RenderPreview(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[renderPreviewRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	html, err := h.render.Render(r.Context(), req.Body)
	if err != nil {
		writeDomainError(w, err, "unable to render preview")
		return
	}
	writeJSON(w, http.StatusOK, renderPreviewResponse{HTML: h.sanitizer.Sanitize(html)})
}
