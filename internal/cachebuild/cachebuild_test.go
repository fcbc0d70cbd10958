package cachebuild_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agblogger/agblogger/internal/adapter/sqlite"
	"github.com/agblogger/agblogger/internal/cachebuild"
	"github.com/agblogger/agblogger/internal/config"
	"github.com/agblogger/agblogger/internal/contentstore"
	"github.com/agblogger/agblogger/internal/datetimefmt"
)

func setup(t *testing.T) (*cachebuild.Materializer, *contentstore.Store, *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "posts"), 0o755); err != nil {
		t.Fatalf("mkdir posts: %v", err)
	}

	cfg := config.Database{DSN: "file::memory:?cache=shared", MaxOpenConns: 1, BusyTimeout: 5 * time.Second}
	db, err := sqlite.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	store := sqlite.NewStore(db)

	cs := contentstore.New(root, maxMarkdownBytes)
	m := cachebuild.New(cs, store, datetimefmt.NewSite("UTC"), "Site Author", filepath.Join(root, "labels.toml"))
	return m, cs, store
}

const maxMarkdownBytes = 10 << 20

func writePost(t *testing.T, cs *contentstore.Store, relPath, content string) {
	t.Helper()
	if err := cs.WritePost(relPath, []byte(content)); err != nil {
		t.Fatalf("write post %q: %v", relPath, err)
	}
}

func TestRebuildCache_TitleFromHeading(t *testing.T) {
	m, cs, store := setup(t)
	ctx := context.Background()

	writePost(t, cs, "posts/hello.md", "---\nauthor: ada\n---\n# Hello World\n\nbody text")

	if err := m.RebuildCache(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	got, err := store.GetPost(ctx, "posts/hello.md")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != "Hello World" {
		t.Errorf("title = %q, want %q", got.Title, "Hello World")
	}
	if got.Author != "ada" {
		t.Errorf("author = %q, want ada", got.Author)
	}
}

func TestRebuildCache_TitleFallsBackToFilename(t *testing.T) {
	m, cs, store := setup(t)
	ctx := context.Background()

	writePost(t, cs, "posts/my-first-post.md", "no heading here, just prose")

	if err := m.RebuildCache(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	got, err := store.GetPost(ctx, "posts/my-first-post.md")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != "my first post" {
		t.Errorf("title = %q, want %q", got.Title, "my first post")
	}
}

func TestRebuildCache_DirectoryDerivedLabels(t *testing.T) {
	m, cs, store := setup(t)
	ctx := context.Background()

	writePost(t, cs, "posts/tech/swe/x.md", "# X\n\nbody")

	if err := m.RebuildCache(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	got, err := store.GetPost(ctx, "posts/tech/swe/x.md")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	want := map[string]bool{"tech": true, "swe": true}
	if len(got.Labels) != 2 {
		t.Fatalf("labels = %v, want tech+swe", got.Labels)
	}
	for _, l := range got.Labels {
		if !want[l] {
			t.Errorf("unexpected label %q", l)
		}
	}

	techLabel, err := store.GetLabel(ctx, "tech")
	if err != nil {
		t.Fatalf("get label: %v", err)
	}
	if !techLabel.IsImplicit {
		t.Error("expected directory-derived label to be implicit")
	}
}

func TestRebuildCache_DeletesStaleRows(t *testing.T) {
	m, cs, store := setup(t)
	ctx := context.Background()

	writePost(t, cs, "posts/one.md", "# One\n\nbody")
	writePost(t, cs, "posts/two.md", "# Two\n\nbody")
	if err := m.RebuildCache(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if err := cs.DeletePost("posts/two.md"); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if err := m.RebuildCache(ctx); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}

	paths, err := store.ListAllPostPaths(ctx)
	if err != nil {
		t.Fatalf("list paths: %v", err)
	}
	if len(paths) != 1 || paths[0] != "posts/one.md" {
		t.Fatalf("paths = %v, want only posts/one.md", paths)
	}
}

func TestRebuildCache_ExcerptIsPlainText(t *testing.T) {
	m, cs, store := setup(t)
	ctx := context.Background()

	writePost(t, cs, "posts/fmt.md", "# Title\n\nSome **bold** and _italic_ and a [link](http://example.com) here.")

	if err := m.RebuildCache(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	got, err := store.GetPost(ctx, "posts/fmt.md")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Excerpt == "" {
		t.Fatal("expected non-empty excerpt")
	}
	for _, bad := range []string{"**", "_italic_", "](http"} {
		if strings.Contains(got.Excerpt, bad) {
			t.Errorf("excerpt %q still contains markdown syntax %q", got.Excerpt, bad)
		}
	}
}

func TestUpsertPost_IncrementalMaintenance(t *testing.T) {
	m, cs, store := setup(t)
	ctx := context.Background()

	writePost(t, cs, "posts/incr.md", "# Incremental\n\nbody #newlabel")
	scanned, err := cs.ScanPosts()
	if err != nil {
		t.Fatalf("scan posts: %v", err)
	}
	if len(scanned) != 1 {
		t.Fatalf("expected 1 scanned post, got %d", len(scanned))
	}

	if err := m.UpsertPost(ctx, scanned[0]); err != nil {
		t.Fatalf("upsert post: %v", err)
	}

	got, err := store.GetPost(ctx, "posts/incr.md")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != "Incremental" {
		t.Errorf("title = %q, want Incremental", got.Title)
	}
}

func TestRemovePost_PrunesImplicitLabel(t *testing.T) {
	m, cs, store := setup(t)
	ctx := context.Background()

	writePost(t, cs, "posts/only.md", "---\nlabels:\n  - \"#solo\"\n---\n# Only\n\nbody")
	if err := m.RebuildCache(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, err := store.GetLabel(ctx, "solo"); err != nil {
		t.Fatalf("expected solo label to exist: %v", err)
	}

	if err := m.RemovePost(ctx, "posts/only.md"); err != nil {
		t.Fatalf("remove post: %v", err)
	}
	if _, err := store.GetLabel(ctx, "solo"); err == nil {
		t.Error("expected unreferenced implicit label to be pruned")
	}
}
