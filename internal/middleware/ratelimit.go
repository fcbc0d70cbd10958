package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a sliding-window rate limiter keyed by (identity,
// surface) pairs — e.g. a username paired with "login", so brute-forcing
// one account doesn't also exhaust another identity's budget, and
// different surfaces (login, invite redemption, PAT creation) are
// tracked independently (spec §4.11).
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
}

// NewRateLimiter creates a limiter allowing at most max events per
// (identity, surface) key within window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

func key(identity, surface string) string {
	return identity + "\x00" + surface
}

// Allow records an attempt for (identity, surface) and reports whether it
// is within budget. retryAfter is the number of seconds the caller
// should wait before retrying when allowed is false.
func (rl *RateLimiter) Allow(identity, surface string) (allowed bool, retryAfter int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	k := key(identity, surface)
	deque := rl.prune(rl.windows[k], now)

	// rl.max is "max_failures": the attempt number at which the caller
	// is first denied (spec §8 "max_failures-1 attempts succeed; the
	// max_failures-th fails"), so the (max-1)th recorded attempt is the
	// last one allowed and denial starts once max-1 are already on the
	// deque.
	if len(deque) >= rl.max-1 {
		rl.windows[k] = deque
		if len(deque) == 0 {
			// max <= 1: every attempt is denied, and there is no
			// recorded timestamp yet to measure a wait against.
			return false, int(math.Ceil(rl.window.Seconds()))
		}
		oldest := deque[0]
		wait := oldest.Add(rl.window).Sub(now).Seconds()
		return false, int(math.Ceil(wait))
	}

	deque = append(deque, now)
	rl.windows[k] = deque
	return true, 0
}

// prune drops timestamps older than the window. Keys left with an empty
// deque are removed from the map entirely by Cleanup, not here, since
// Allow needs the (possibly empty) slice back to append to.
func (rl *RateLimiter) prune(deque []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(deque) && deque[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return deque
	}
	return append(deque[:0], deque[i:]...)
}

// Reset clears the window for (identity, surface), used after a
// successful login to drop the failure count immediately.
func (rl *RateLimiter) Reset(identity, surface string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key(identity, surface))
}

// StartCleanup spawns a goroutine that prunes empty-after-pruning keys
// every interval, so identities that stop attempting don't leak memory
// forever. Returns a cancel function that stops the goroutine.
func (rl *RateLimiter) StartCleanup(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
	return cancel
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for k, deque := range rl.windows {
		pruned := rl.prune(deque, now)
		if len(pruned) == 0 {
			delete(rl.windows, k)
		} else {
			rl.windows[k] = pruned
		}
	}
}

// Len returns the number of tracked (identity, surface) keys, for tests
// and metrics.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// IPRateLimit returns HTTP middleware that rate-limits requests by
// client IP under the "http" surface, for coarse protection ahead of the
// per-identity limiter applied inside the login handler itself.
func IPRateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := rl.Allow(realIP(r), "http")
			if !allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// realIP extracts the client IP from RemoteAddr.
// Proxy headers (X-Forwarded-For, X-Real-Ip) are NOT trusted because
// they can be spoofed by attackers to bypass rate limiting.
func realIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
