// Package http wires AgBlogger's HTTP boundary: routing, middleware
// composition, and the thin handlers that call into the domain services
// (spec §6 "HTTP framing itself ... out of scope" for the wire shape, but
// the boundary dispatching to those services is squarely in scope).
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agblogger/agblogger/internal/domain"
)

const maxRequestBodySize = 10 << 20 // 1 byte over the default max markdown size, see Content.MaxMarkdownBytes

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// pathParam returns the "*" wildcard segment captured by a chi route
// ending in "/*", used for post/sync paths that may contain slashes.
func pathParam(r *http.Request) string {
	return chi.URLParam(r, "*")
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps the spec §7 sentinel error taxonomy to HTTP
// status codes via errors.Is, never by matching error strings.
func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	var rl *domain.RateLimitedError
	var cycle *domain.CycleError

	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", strconv.FormatInt(rl.RetryAfterSeconds, 10))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.As(err, &cycle):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, trimSentinel(err, domain.ErrUnauthorized))
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, trimSentinel(err, domain.ErrForbidden))
	case errors.Is(err, domain.ErrUnsafePath):
		writeError(w, http.StatusBadRequest, trimSentinel(err, domain.ErrUnsafePath))
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, trimSentinel(err, domain.ErrBadRequest))
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource was modified by another request")
	case errors.Is(err, domain.ErrCycleDetected):
		writeError(w, http.StatusConflict, trimSentinel(err, domain.ErrCycleDetected))
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	case errors.Is(err, domain.ErrInputTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, trimSentinel(err, domain.ErrInputTooLarge))
	case errors.Is(err, domain.ErrRenderTimeout):
		writeError(w, http.StatusGatewayTimeout, "render timed out")
	case errors.Is(err, domain.ErrRenderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "render engine unavailable")
	case errors.Is(err, domain.ErrRenderFailed):
		writeError(w, http.StatusBadGateway, trimSentinel(err, domain.ErrRenderFailed))
	case errors.Is(err, domain.ErrExternalServiceFailure):
		writeError(w, http.StatusBadGateway, trimSentinel(err, domain.ErrExternalServiceFailure))
	case errors.Is(err, domain.ErrStorageFailure):
		slog.Error("storage failure", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	default:
		slog.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// trimSentinel strips "sentinel: " off err's message so the client sees
// only the contextual detail a service layered on with fmt.Errorf.
func trimSentinel(err error, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
