package syncengine_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/agblogger/agblogger/internal/adapter/sqlite"
	"github.com/agblogger/agblogger/internal/cachebuild"
	"github.com/agblogger/agblogger/internal/config"
	"github.com/agblogger/agblogger/internal/contentstore"
	"github.com/agblogger/agblogger/internal/datetimefmt"
	"github.com/agblogger/agblogger/internal/domain/sync"
	"github.com/agblogger/agblogger/internal/git"
	"github.com/agblogger/agblogger/internal/gitrepo"
	"github.com/agblogger/agblogger/internal/syncengine"
)

const maxMarkdownBytes = 10 << 20

func setup(t *testing.T) (*syncengine.Engine, *contentstore.Store, *gitrepo.Repo) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in test environment")
	}
	ctx := context.Background()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "posts"), 0o755); err != nil {
		t.Fatalf("mkdir posts: %v", err)
	}

	dbCfg := config.Database{DSN: "file::memory:?cache=shared", MaxOpenConns: 1, BusyTimeout: 5 * time.Second}
	db, err := sqlite.Open(ctx, dbCfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	store := sqlite.NewStore(db)

	cs := contentstore.New(root, maxMarkdownBytes)
	repo := gitrepo.New(root, "AgBlogger Test", "test@agblogger.invalid", 5*time.Second, git.NewPool(4))
	if err := repo.InitIfAbsent(ctx); err != nil {
		t.Fatalf("InitIfAbsent: %v", err)
	}
	cache := cachebuild.New(cs, store, datetimefmt.NewSite("UTC"), "Site Author", filepath.Join(root, "labels.toml"))

	eng := syncengine.New(cs, repo, store, cache, datetimefmt.NewSite("UTC"))
	return eng, cs, repo
}

func TestInit_LocalAddUploads(t *testing.T) {
	eng, _, _ := setup(t)
	ctx := context.Background()

	resp, err := eng.Init(ctx, sync.InitRequest{
		Manifest: []sync.ManifestEntry{{FilePath: "posts/new.md", SHA256: "abc123"}},
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(resp.Plan) != 1 || resp.Plan[0].Action != sync.ActionUpload {
		t.Fatalf("expected single upload entry, got %+v", resp.Plan)
	}
}

func TestInit_EmptySessionProducesEmptyPlan(t *testing.T) {
	eng, cs, repo := setup(t)
	ctx := context.Background()

	if err := cs.WritePost("posts/existing.md", []byte("---\n---\n# Existing")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := repo.CommitAll(ctx, "seed"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The server manifest is only populated via ReplaceServerManifest
	// (normally refreshed at COMMIT time), so with an empty client
	// manifest and no stored server manifest the plan is empty; this
	// confirms Init does not error out on an empty session.
	resp, err := eng.Init(ctx, sync.InitRequest{Manifest: nil})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(resp.Plan) != 0 {
		t.Fatalf("expected empty plan, got %+v", resp.Plan)
	}
}

func TestCommit_RejectsUnsafePath(t *testing.T) {
	eng, _, _ := setup(t)
	ctx := context.Background()

	_, err := eng.Commit(ctx, sync.CommitRequest{
		UploadedPaths: []string{"../escape.md"},
	})
	if err == nil {
		t.Fatal("expected error for path escaping content root")
	}
}

func TestCommit_NoOpProducesOKStatus(t *testing.T) {
	eng, _, _ := setup(t)
	ctx := context.Background()

	resp, err := eng.Commit(ctx, sync.CommitRequest{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if resp.Status != sync.StatusOK {
		t.Fatalf("expected status ok for an empty no-op commit, got %q", resp.Status)
	}
}

func TestCommit_ConflictResolutionWritesCleanMerge(t *testing.T) {
	eng, cs, repo := setup(t)
	ctx := context.Background()

	if err := cs.WritePost("posts/shared.md", []byte("line one\nline two\nline three\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	base, err := repo.CommitAll(ctx, "base")
	if err != nil {
		t.Fatalf("commit base: %v", err)
	}

	// Server changes a line untouched by the client's edit.
	if err := cs.WritePost("posts/shared.md", []byte("line one\nline two\nSERVER EDIT\n")); err != nil {
		t.Fatalf("write server edit: %v", err)
	}

	ours := []byte("CLIENT EDIT\nline two\nline three\n")

	resp, err := eng.Commit(ctx, sync.CommitRequest{
		BaseCommit: base,
		ConflictResolutions: []sync.ConflictResolution{
			{FilePath: "posts/shared.md", Content: ours},
		},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(resp.Conflicts) != 0 {
		t.Fatalf("expected a clean merge, got conflicts: %+v", resp.Conflicts)
	}

	merged, err := cs.ReadPost("posts/shared.md")
	if err != nil {
		t.Fatalf("read merged: %v", err)
	}
	got := string(merged)
	if got != "CLIENT EDIT\nline two\nSERVER EDIT\n" {
		t.Fatalf("unexpected merge result: %q", got)
	}
}
