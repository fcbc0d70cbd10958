// Package domain holds cross-cutting domain types shared by every
// component: the sentinel error taxonomy (spec §7).
package domain

import "errors"

// Sentinel errors forming the error-kind taxonomy of spec §7. Service-
// layer code returns these (wrapped with fmt.Errorf("...: %w", ErrX) for
// context) and the HTTP boundary maps them to status codes with
// errors.Is, never by matching error strings.
var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrBadRequest             = errors.New("bad request")
	ErrUnsafePath             = errors.New("unsafe path")
	ErrConflict               = errors.New("conflict")
	ErrCycleDetected          = errors.New("cycle detected")
	ErrRateLimited            = errors.New("rate limited")
	ErrRenderUnavailable      = errors.New("render engine unavailable")
	ErrRenderFailed           = errors.New("render failed")
	ErrRenderTimeout          = errors.New("render timed out")
	ErrInputTooLarge          = errors.New("input too large")
	ErrStorageFailure         = errors.New("storage failure")
	ErrExternalServiceFailure = errors.New("external service failure")
	ErrInternal               = errors.New("internal error")
)

// RateLimitedError carries the retry_after hint required by spec §4.11's
// rate limiter contract; it wraps ErrRateLimited so errors.Is still matches.
type RateLimitedError struct {
	RetryAfterSeconds int64
}

func (e *RateLimitedError) Error() string { return "rate limited" }

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// CycleError names the one offending edge required by spec §4.8's
// CycleDetected contract.
type CycleError struct {
	Child  string
	Parent string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + e.Child + " -> " + e.Parent
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }
