package render

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/agblogger/agblogger/internal/domain"
)

func TestRenderRejectsInputOverMaxBytes(t *testing.T) {
	c := New(Config{
		Timeout:       time.Second,
		Concurrency:   1,
		MaxInputBytes: 8,
	})

	_, err := c.Render(context.Background(), strings.Repeat("a", 9))
	if !errors.Is(err, domain.ErrInputTooLarge) {
		t.Fatalf("expected ErrInputTooLarge, got %v", err)
	}
}

func TestRenderZeroMaxInputBytesDisablesSizeCheck(t *testing.T) {
	// A zero-value semaphore weight with Concurrency: 0 blocks forever
	// on Acquire, so use a canceled context to observe the size guard is
	// skipped without actually spawning the render-engine subprocess:
	// MaxInputBytes=0 must fall through past the guard to the semaphore
	// acquire, which then fails on the canceled context rather than
	// ErrInputTooLarge.
	c := New(Config{
		Timeout:     time.Second,
		Concurrency: 1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Render(ctx, strings.Repeat("a", 1<<20))
	if errors.Is(err, domain.ErrInputTooLarge) {
		t.Fatalf("MaxInputBytes=0 must disable the size check, got %v", err)
	}
	if !errors.Is(err, domain.ErrRenderUnavailable) {
		t.Fatalf("expected ErrRenderUnavailable from the canceled context, got %v", err)
	}
}
