package rendercache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agblogger/agblogger/internal/adapter/ristretto"
	"github.com/agblogger/agblogger/internal/rendercache"
)

type countingRenderer struct {
	calls int
	html  string
	err   error
}

func (c *countingRenderer) Render(_ context.Context, _ string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.html, nil
}

func TestCachedRendererCachesOnSecondCall(t *testing.T) {
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatalf("ristretto.New: %v", err)
	}
	t.Cleanup(c.Close)

	inner := &countingRenderer{html: "<p>hi</p>"}
	cached := rendercache.New(inner, c, time.Minute)

	ctx := context.Background()
	html1, err := cached.Render(ctx, "hi")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// ristretto's Set is asynchronous; give it a moment to land before
	// asserting the second call hits the cache.
	time.Sleep(50 * time.Millisecond)

	html2, err := cached.Render(ctx, "hi")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if html1 != "<p>hi</p>" || html2 != "<p>hi</p>" {
		t.Fatalf("unexpected html: %q, %q", html1, html2)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner renderer called once, got %d", inner.calls)
	}
}

func TestCachedRendererPropagatesRenderError(t *testing.T) {
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatalf("ristretto.New: %v", err)
	}
	t.Cleanup(c.Close)

	inner := &countingRenderer{err: errors.New("boom")}
	cached := rendercache.New(inner, c, time.Minute)

	if _, err := cached.Render(context.Background(), "anything"); err == nil {
		t.Fatal("expected render error to propagate")
	}
}
