package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	// spec §8: "max_failures-1 attempts succeed" — with max_failures=5,
	// the first 4 calls must be allowed.
	rl := NewRateLimiter(5, time.Minute)
	for i := range 4 {
		allowed, _ := rl.Allow("ada", "login")
		if !allowed {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}
}

func TestRateLimiterRejectsOverLimit(t *testing.T) {
	// spec §8: "the max_failures-th attempt fails" — with
	// max_failures=3, the 3rd call (not the 4th) is the first rejection.
	rl := NewRateLimiter(3, time.Minute)
	for range 2 {
		rl.Allow("ada", "login")
	}

	allowed, retryAfter := rl.Allow("ada", "login")
	if allowed {
		t.Fatal("expected third attempt to be rejected")
	}
	if retryAfter <= 0 {
		t.Errorf("expected positive retry_after, got %d", retryAfter)
	}
}

func TestRateLimiterMaxFailuresThIsFirstRejection(t *testing.T) {
	// Boundary case from spec §8: max_failures-1 attempts succeed; the
	// max_failures-th fails with retry_after = ceil(oldest+window-now).
	const maxFailures = 5
	rl := NewRateLimiter(maxFailures, time.Minute)

	for i := range maxFailures - 1 {
		allowed, _ := rl.Allow("ada", "login")
		if !allowed {
			t.Fatalf("attempt %d: expected allowed (max_failures-1 attempts must succeed)", i+1)
		}
	}

	allowed, retryAfter := rl.Allow("ada", "login")
	if allowed {
		t.Fatalf("attempt %d (max_failures-th): expected rejected", maxFailures)
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retry_after = %d, want in (0, 60]", retryAfter)
	}
}

func TestRateLimiterKeyedByIdentityAndSurface(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	rl.Allow("ada", "login")

	// Same identity, different surface: independent budget.
	if allowed, _ := rl.Allow("ada", "invite"); !allowed {
		t.Fatal("expected a different surface to have its own budget")
	}
	// Different identity, same surface: independent budget.
	if allowed, _ := rl.Allow("bo", "login"); !allowed {
		t.Fatal("expected a different identity to have its own budget")
	}
	// Same (identity, surface) pair as the first call: exhausted
	// (max_failures=2, so the 2nd call is the rejection).
	if allowed, _ := rl.Allow("ada", "login"); allowed {
		t.Fatal("expected ada/login to be exhausted")
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	rl.Allow("ada", "login")
	if allowed, _ := rl.Allow("ada", "login"); allowed {
		t.Fatal("expected budget exhausted before reset")
	}

	rl.Reset("ada", "login")
	if allowed, _ := rl.Allow("ada", "login"); !allowed {
		t.Fatal("expected budget restored after reset")
	}
}

func TestRateLimiterMaxOneDeniesImmediately(t *testing.T) {
	// max_failures=1: max_failures-1 == 0 attempts succeed, so the very
	// first call is already the rejection, and no timestamp exists yet
	// to measure retry_after against.
	rl := NewRateLimiter(1, time.Minute)
	allowed, retryAfter := rl.Allow("ada", "login")
	if allowed {
		t.Fatal("expected first attempt to be rejected when max_failures=1")
	}
	if retryAfter <= 0 {
		t.Errorf("expected positive retry_after, got %d", retryAfter)
	}
}

func TestRateLimiterLen(t *testing.T) {
	rl := NewRateLimiter(10, time.Minute)
	if rl.Len() != 0 {
		t.Fatalf("expected 0, got %d", rl.Len())
	}
	for i := range 3 {
		rl.Allow(fmt.Sprintf("user-%d", i), "login")
	}
	if rl.Len() != 3 {
		t.Fatalf("expected 3, got %d", rl.Len())
	}
}

func TestRateLimiterCleanupPrunesExpiredWindows(t *testing.T) {
	rl := NewRateLimiter(10, time.Millisecond)
	rl.Allow("ada", "login")
	if rl.Len() != 1 {
		t.Fatalf("expected 1, got %d", rl.Len())
	}

	time.Sleep(5 * time.Millisecond)
	rl.cleanup()

	if rl.Len() != 0 {
		t.Fatalf("expected 0 after cleanup of expired window, got %d", rl.Len())
	}
}

func TestRateLimiterStartCleanupStops(t *testing.T) {
	rl := NewRateLimiter(10, time.Millisecond)
	cancel := rl.StartCleanup(20 * time.Millisecond)

	rl.Allow("ada", "login")
	time.Sleep(100 * time.Millisecond)

	if rl.Len() != 0 {
		t.Fatalf("expected 0 windows after cleanup, got %d", rl.Len())
	}
	cancel()
}

func TestIPRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	handler := IPRateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.RemoteAddr = "192.168.1.1:5000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.168.1.1:5000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func BenchmarkRateLimiterAllow(b *testing.B) {
	rl := NewRateLimiter(1000, time.Minute)
	b.ResetTimer()
	for i := range b.N {
		id := fmt.Sprintf("user-%d", i%1000)
		rl.Allow(id, "login")
	}
}

func BenchmarkRateLimiterConcurrent(b *testing.B) {
	rl := NewRateLimiter(1000, time.Minute)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			id := fmt.Sprintf("user-%d", i%1000)
			rl.Allow(id, "login")
			i++
		}
	})
}
