// Package rendercache wraps the Renderer subprocess client (spec §4.6)
// with a content-hash-keyed cache, avoiding a subprocess round trip for
// markdown bodies that have already been rendered. Grounded on the
// teacher's generic cache.Cache port, backed in production by the
// ristretto (L1) and natskv (L2) adapters combined through tiered.Cache.
package rendercache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/agblogger/agblogger/internal/port/cache"
)

// Renderer is the subset of *render.Client rendercache wraps.
type Renderer interface {
	Render(ctx context.Context, markdown string) (string, error)
}

// CachedRenderer serves Render from cache by content hash before falling
// through to the wrapped renderer.
type CachedRenderer struct {
	inner Renderer
	cache cache.Cache
	ttl   time.Duration
}

// New wraps inner with cache, caching results for ttl.
func New(inner Renderer, c cache.Cache, ttl time.Duration) *CachedRenderer {
	return &CachedRenderer{inner: inner, cache: c, ttl: ttl}
}

// Render returns the cached HTML for markdown's content hash if present,
// otherwise renders, caches, and returns the result. A cache read/write
// failure never fails the render itself; it only forgoes caching.
func (r *CachedRenderer) Render(ctx context.Context, markdown string) (string, error) {
	key := cacheKey(markdown)

	if cached, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		return string(cached), nil
	}

	html, err := r.inner.Render(ctx, markdown)
	if err != nil {
		return "", err
	}

	_ = r.cache.Set(ctx, key, []byte(html), r.ttl)
	return html, nil
}

func cacheKey(markdown string) string {
	sum := sha256.Sum256([]byte(markdown))
	return "render:" + hex.EncodeToString(sum[:])
}
