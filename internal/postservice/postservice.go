// Package postservice orchestrates the HTTP boundary's post mutations
// (create, update, delete) across the subsystems each one touches: the
// content store (source of truth), git versioning, the cache
// materializer's incremental upkeep, and the renderer (spec §4.4, §4.6,
// §4.7, §4.9). It follows the "filesystem first, then commit" ordering
// from spec §5: the markdown file is written before the git commit and
// cache upkeep are attempted, so a failure in either of those later
// steps never loses content that already landed on disk.
package postservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/agblogger/agblogger/internal/cachebuild"
	"github.com/agblogger/agblogger/internal/contentstore"
	"github.com/agblogger/agblogger/internal/datetimefmt"
	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/post"
	"github.com/agblogger/agblogger/internal/frontmatter"
	"github.com/agblogger/agblogger/internal/gitrepo"
	"github.com/agblogger/agblogger/internal/port/database"
	"github.com/agblogger/agblogger/internal/rendercache"
	"github.com/agblogger/agblogger/internal/sanitize"
)

// Service mutates posts through the content store, commits the change
// to git, refreshes the rendered-HTML cache, and incrementally upkeeps
// the SQLite cache — the write path the HTTP boundary's /posts
// endpoints call into (spec §4.4, §4.6, §4.9).
type Service struct {
	content       *contentstore.Store
	repo          *gitrepo.Repo
	store         database.Store
	cache         *cachebuild.Materializer
	render        *rendercache.CachedRenderer
	sanitizer     *sanitize.Sanitizer
	site          datetimefmt.Site
	defaultAuthor string
}

// New returns a Service wired to its collaborators.
func New(content *contentstore.Store, repo *gitrepo.Repo, store database.Store, cache *cachebuild.Materializer, render *rendercache.CachedRenderer, sanitizer *sanitize.Sanitizer, site datetimefmt.Site, defaultAuthor string) *Service {
	return &Service{content: content, repo: repo, store: store, cache: cache, render: render, sanitizer: sanitizer, site: site, defaultAuthor: defaultAuthor}
}

// List returns the filtered, paginated post listing, applying ancestor
// expansion so a label filter also matches the label's descendants'
// ancestors per spec §4.8's "posts in X or below".
func (s *Service) List(ctx context.Context, filter post.ListFilter) ([]post.Post, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Sort == "" {
		filter.Sort = "created_at"
	}
	if filter.Order == "" {
		filter.Order = "desc"
	}
	if filter.Query != "" {
		return s.store.SearchPosts(ctx, filter.Query, filter)
	}
	return s.store.ListPosts(ctx, filter)
}

// Get returns a single post's cache row by path.
func (s *Service) Get(ctx context.Context, filePath string) (*post.Post, error) {
	return s.store.GetPost(ctx, filePath)
}

// Raw returns a post's raw file bytes, enforcing draft visibility at the
// call site (handlers check the caller's role before calling Raw for a
// draft post, spec §4.11 "draft posts are visible only to admins").
func (s *Service) Raw(filePath string) ([]byte, error) {
	return s.content.ReadPost(filePath)
}

// Rendered returns a post's sanitized HTML, rendering and caching it on
// first request if the cache row carries none yet.
func (s *Service) Rendered(ctx context.Context, filePath string) (string, error) {
	p, err := s.store.GetPost(ctx, filePath)
	if err != nil {
		return "", err
	}
	if p.RenderedHTML != "" {
		return p.RenderedHTML, nil
	}
	raw, err := s.content.ReadPost(filePath)
	if err != nil {
		return "", err
	}
	doc := frontmatter.Split(raw)
	html, err := s.render.Render(ctx, doc.Body)
	if err != nil {
		return "", err
	}
	return s.sanitizer.Sanitize(html), nil
}

// Create writes a new post file, commits it to git, and incrementally
// upkeeps the cache (spec §4.4, §4.6 publish-time render, §4.9).
func (s *Service) Create(ctx context.Context, req post.CreateRequest) (*post.Post, error) {
	if req.FilePath == "" || !strings.HasPrefix(req.FilePath, "posts/") || !strings.HasSuffix(req.FilePath, ".md") {
		return nil, fmt.Errorf("%w: file_path must be under posts/ and end in .md", domain.ErrBadRequest)
	}
	if _, err := s.content.ResolveSafe(req.FilePath); err != nil {
		return nil, err
	}
	if existing, err := s.content.ReadPost(req.FilePath); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: %s already exists", domain.ErrConflict, req.FilePath)
	}

	now := datetimefmt.Format(time.Now().UTC())
	doc := frontmatter.Document{
		CreatedAt:  &now,
		ModifiedAt: &now,
		Author:     req.Author,
		Labels:     req.Labels,
		Draft:      req.Draft,
		Body:       req.Body,
		Unknown:    map[string]any{},
	}
	return s.writeAndMaterialize(ctx, req.FilePath, doc, fmt.Sprintf("create %s", req.FilePath))
}

// Update rewrites an existing post's body/labels/draft flag, bumping
// modified_at, then commits and upkeeps the cache like Create.
func (s *Service) Update(ctx context.Context, filePath string, req post.UpdateRequest) (*post.Post, error) {
	raw, err := s.content.ReadPost(filePath)
	if err != nil {
		return nil, err
	}
	doc := frontmatter.Split(raw)

	doc.Body = req.Body
	if req.Author != "" {
		doc.Author = req.Author
	}
	if req.Labels != nil {
		doc.Labels = req.Labels
	}
	if req.Draft != nil {
		doc.Draft = *req.Draft
	}
	now := datetimefmt.Format(time.Now().UTC())
	doc.ModifiedAt = &now

	return s.writeAndMaterialize(ctx, filePath, doc, fmt.Sprintf("update %s", filePath))
}

// Delete removes a post's file (and colocated asset directory), commits
// the removal, and drops its cache row.
func (s *Service) Delete(ctx context.Context, filePath string) error {
	if err := s.content.DeletePost(filePath); err != nil {
		return err
	}
	if _, err := s.repo.CommitAll(ctx, fmt.Sprintf("delete %s", filePath)); err != nil {
		slog.Warn("git commit failed after post delete", "path", filePath, "error", err)
	}
	if err := s.cache.RemovePost(ctx, filePath); err != nil {
		slog.Warn("cache upkeep failed after post delete", "path", filePath, "error", err)
	}
	return nil
}

// writeAndMaterialize joins doc into file bytes, writes them, commits to
// git (a failure there is logged and returned as a warning condition at
// the boundary, never a request failure per spec §4.7/§7), pre-renders
// and sanitizes the body for the render cache, and incrementally
// upkeeps the post's cache row.
func (s *Service) writeAndMaterialize(ctx context.Context, filePath string, doc frontmatter.Document, commitMessage string) (*post.Post, error) {
	raw, err := frontmatter.Join(doc, s.defaultAuthor, s.site)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}
	if err := s.content.WritePost(filePath, raw); err != nil {
		return nil, err
	}

	if _, err := s.repo.CommitAll(ctx, commitMessage); err != nil {
		slog.Warn("git commit failed after post write", "path", filePath, "error", err)
	}

	if _, err := s.render.Render(ctx, doc.Body); err != nil {
		slog.Warn("publish-time render failed", "path", filePath, "error", err)
	}

	sp, err := s.scanOne(filePath)
	if err != nil {
		return nil, err
	}
	if err := s.cache.UpsertPost(ctx, sp); err != nil {
		slog.Warn("cache upkeep failed after post write", "path", filePath, "error", err)
	}

	return s.store.GetPost(ctx, filePath)
}

// scanOne re-reads filePath's freshly written bytes into the same
// ScannedPost shape cachebuild's incremental upkeep expects, avoiding a
// full ScanPosts walk for a single-file mutation.
func (s *Service) scanOne(filePath string) (contentstore.ScannedPost, error) {
	abs, err := s.content.ResolveSafe(filePath)
	if err != nil {
		return contentstore.ScannedPost{}, err
	}
	raw, err := s.content.ReadPost(filePath)
	if err != nil {
		return contentstore.ScannedPost{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return contentstore.ScannedPost{}, fmt.Errorf("%w: stat %s: %v", domain.ErrStorageFailure, filePath, err)
	}
	return contentstore.ScannedPost{
		RelPath: filePath,
		Doc:     frontmatter.Split(raw),
		Hash:    hashBytes(raw),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
