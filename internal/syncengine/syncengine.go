// Package syncengine implements the Bidirectional Sync Engine (spec
// §4.10): manifest classification, the INIT plan, and the COMMIT
// finalization that applies deletions, writes clean three-way merges,
// commits to git, and rebuilds the cache. Grounded on
// internal/gitrepo.Repo (the merge primitive), internal/contentstore.Store
// (path safety and file I/O), and internal/cachebuild.Materializer (the
// post-commit cache rebuild).
package syncengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/agblogger/agblogger/internal/cachebuild"
	"github.com/agblogger/agblogger/internal/contentstore"
	"github.com/agblogger/agblogger/internal/datetimefmt"
	"github.com/agblogger/agblogger/internal/domain"
	syncdomain "github.com/agblogger/agblogger/internal/domain/sync"
	"github.com/agblogger/agblogger/internal/frontmatter"
	"github.com/agblogger/agblogger/internal/gitrepo"
	"github.com/agblogger/agblogger/internal/port/database"
)

// Engine coordinates a sync session's INIT plan and COMMIT finalization.
// mu serializes COMMIT across the whole process (spec §4.10.2 "global
// serialization is enforced by an asynchronous mutex around COMMIT").
type Engine struct {
	content *contentstore.Store
	repo    *gitrepo.Repo
	store   database.Store
	cache   *cachebuild.Materializer
	site    datetimefmt.Site

	mu sync.Mutex
}

// New returns an Engine wired to the content store, git repository,
// database store, cache materializer, and the site's configured
// timezone (used to reparse non-canonical timestamps on genuinely
// merged files, spec §4.10.5 step 4).
func New(content *contentstore.Store, repo *gitrepo.Repo, store database.Store, cache *cachebuild.Materializer, site datetimefmt.Site) *Engine {
	return &Engine{content: content, repo: repo, store: store, cache: cache, site: site}
}

// baseEntry is the merge-base (last_sync_commit) state for one path,
// reconstructed on demand via git show since the server keeps no
// standing base manifest (spec §4.10.1).
type baseEntry struct {
	hash    string
	present bool
}

// Init computes the sync plan by classifying every path across the
// client's manifest, the server's current manifest, and the merge base
// at req.LastSyncCommit (spec §4.10.1-4.10.3).
func (e *Engine) Init(ctx context.Context, req syncdomain.InitRequest) (*syncdomain.InitResponse, error) {
	serverRows, err := e.store.ServerManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load server manifest: %v", domain.ErrStorageFailure, err)
	}

	clientByPath := make(map[string]syncdomain.ManifestEntry, len(req.Manifest))
	for _, m := range req.Manifest {
		clientByPath[m.FilePath] = m
	}
	serverByPath := make(map[string]database.ManifestRow, len(serverRows))
	for _, r := range serverRows {
		serverByPath[r.FilePath] = r
	}

	baseAvailable := req.LastSyncCommit != "" && gitrepo.CommitHashPattern.MatchString(req.LastSyncCommit)

	paths := make(map[string]bool, len(clientByPath)+len(serverByPath))
	for p := range clientByPath {
		paths[p] = true
	}
	for p := range serverByPath {
		paths[p] = true
	}

	plan := make([]syncdomain.PlanEntry, 0, len(paths))
	for _, p := range sortedKeys(paths) {
		c, hasC := clientByPath[p]
		s, hasS := serverByPath[p]

		var base baseEntry
		if baseAvailable {
			base, err = e.baseState(ctx, req.LastSyncCommit, p)
			if err != nil {
				return nil, err
			}
		}

		action := classify(hasC, c.SHA256, hasS, s.SHA256, baseAvailable, base)
		plan = append(plan, syncdomain.PlanEntry{FilePath: p, Action: action})
	}

	head, err := e.repo.HeadCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read head commit: %v", domain.ErrStorageFailure, err)
	}

	return &syncdomain.InitResponse{Plan: plan, ServerHead: head}, nil
}

// baseState looks up path's content at commit and hashes it, reporting
// absence (rather than erroring) when the path did not exist at that
// commit (spec §4.10.1).
func (e *Engine) baseState(ctx context.Context, commit, path string) (baseEntry, error) {
	text, found, err := e.repo.BlobAtCommit(ctx, commit, path)
	if err != nil {
		return baseEntry{}, fmt.Errorf("%w: blob at commit: %v", domain.ErrStorageFailure, err)
	}
	if !found {
		return baseEntry{present: false}, nil
	}
	return baseEntry{hash: hashString(text), present: true}, nil
}

// classify implements the spec §4.10.3 table. hasC/hasS/base.present
// distinguish "absent" from "equal to an empty file"; hash equality
// distinguishes "equal" from "changed".
func classify(hasC bool, cHash string, hasS bool, sHash string, baseAvailable bool, base baseEntry) syncdomain.Action {
	if !baseAvailable {
		// "falls back to server wins on conflict but still uploads
		// local-only paths" (spec §4.10.3).
		switch {
		case hasC && !hasS:
			return syncdomain.ActionUpload
		case !hasC && hasS:
			return syncdomain.ActionDownload
		case hasC && hasS && cHash == sHash:
			return syncdomain.ActionCoincident
		case hasC && hasS:
			return syncdomain.ActionDownload // server wins
		default:
			return syncdomain.ActionSkip
		}
	}

	cEqualsBase := hasC == base.present && (!hasC || cHash == base.hash)
	sEqualsBase := hasS == base.present && (!hasS || sHash == base.hash)

	switch {
	case cEqualsBase && sEqualsBase:
		return syncdomain.ActionSkip

	case !cEqualsBase && sEqualsBase:
		// client changed, server unchanged relative to base.
		if hasC && !base.present {
			return syncdomain.ActionUpload // local add
		}
		if !hasC && base.present {
			return syncdomain.ActionDeleteServer // local delete
		}
		return syncdomain.ActionUpload // local edit

	case cEqualsBase && !sEqualsBase:
		// server changed, client unchanged relative to base.
		if hasS && !base.present {
			return syncdomain.ActionDownload // remote add
		}
		if !hasS && base.present {
			return syncdomain.ActionDeleteLocal // remote delete
		}
		return syncdomain.ActionDownload // remote edit

	default:
		// both changed relative to base.
		if hasC && hasS && cHash == sHash {
			return syncdomain.ActionCoincident
		}
		if !hasC && hasS {
			// deleted locally, modified on server: keep modified (download).
			return syncdomain.ActionDownload
		}
		if hasC && !hasS {
			// modified locally, deleted on server: keep modified (upload).
			return syncdomain.ActionUpload
		}
		if !hasC && !hasS {
			return syncdomain.ActionSkip
		}
		return syncdomain.ActionConflict
	}
}

// Commit finalizes a sync session under the per-process sync mutex
// (spec §4.10.5). It validates every path, applies acknowledged
// server-side deletions (only where the server's hash still matches the
// base), writes clean merges for submitted conflict resolutions,
// attempts a git commit, rescans the manifest, and rebuilds the cache.
func (e *Engine) Commit(ctx context.Context, req syncdomain.CommitRequest) (*syncdomain.CommitResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validatePaths(req); err != nil {
		return nil, err
	}

	var warnings []string
	var conflicts []syncdomain.ConflictDescriptor

	baseAvailable := req.BaseCommit != "" && gitrepo.CommitHashPattern.MatchString(req.BaseCommit)

	for _, path := range req.AcknowledgedServerDeletions {
		if err := e.applyServerDeletion(ctx, req.BaseCommit, baseAvailable, path, &warnings); err != nil {
			return nil, err
		}
	}

	for _, res := range req.ConflictResolutions {
		descriptor, merged, err := e.resolveConflict(ctx, req.BaseCommit, baseAvailable, res)
		if err != nil {
			return nil, err
		}
		if descriptor != nil {
			conflicts = append(conflicts, *descriptor)
			continue
		}
		if err := e.content.WritePost(res.FilePath, []byte(merged)); err != nil {
			return nil, fmt.Errorf("write merged file %q: %w", res.FilePath, err)
		}
		if err := e.normalizeTimestamps(res.FilePath); err != nil {
			slog.Warn("failed to normalize timestamps on merged file", "path", res.FilePath, "error", err)
			warnings = append(warnings, fmt.Sprintf("timestamp normalization failed for %s: %v", res.FilePath, err))
		}
	}

	message := fmt.Sprintf("sync: %d uploaded, %d deleted, %d merged", len(req.UploadedPaths), len(req.AcknowledgedServerDeletions), len(req.ConflictResolutions)-len(conflicts))
	commitHash, err := e.repo.CommitAll(ctx, message)
	status := syncdomain.StatusOK
	var commitHashPtr *string
	if err != nil {
		status = syncdomain.StatusWarning
		warnings = append(warnings, fmt.Sprintf("git commit failed: %v", err))
	} else if commitHash != "" {
		commitHashPtr = &commitHash
	}

	entries, err := e.content.ScanAll()
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("post-commit rescan failed: %v", err))
	} else {
		rows := make([]database.ManifestRow, 0, len(entries))
		for _, entry := range entries {
			rows = append(rows, database.ManifestRow{FilePath: entry.RelPath, SHA256: entry.SHA256, Size: entry.Size, MTime: entry.MTime})
		}
		if err := e.store.ReplaceServerManifest(ctx, rows); err != nil {
			warnings = append(warnings, fmt.Sprintf("manifest update failed: %v", err))
		}
	}

	if err := e.cache.RebuildCache(ctx); err != nil {
		warnings = append(warnings, fmt.Sprintf("cache rebuild failed: %v", err))
	}

	return &syncdomain.CommitResponse{
		Status:     status,
		CommitHash: commitHashPtr,
		Conflicts:  conflicts,
		Warnings:   warnings,
	}, nil
}

// validatePaths rejects any client-supplied path that escapes the
// content root; invalid paths are a 400, never silently skipped (spec
// §4.10.5 step 1).
func (e *Engine) validatePaths(req syncdomain.CommitRequest) error {
	check := func(path string) error {
		if _, err := e.content.ResolveSafe(path); err != nil {
			return err
		}
		return nil
	}
	for _, p := range req.AcknowledgedServerDeletions {
		if err := check(p); err != nil {
			return err
		}
	}
	for _, p := range req.UploadedPaths {
		if err := check(p); err != nil {
			return err
		}
	}
	for _, r := range req.ConflictResolutions {
		if err := check(r.FilePath); err != nil {
			return err
		}
	}
	return nil
}

// applyServerDeletion deletes path on the server only if the server's
// current content still matches the merge base; otherwise the delete is
// demoted to the delete/modify data-preservation rule and the file is
// left alone (spec §4.10.5 step 2).
func (e *Engine) applyServerDeletion(ctx context.Context, baseCommit string, baseAvailable bool, path string, warnings *[]string) error {
	current, err := e.content.ReadPost(path)
	if err != nil {
		if isNotFound(err) {
			return nil // already gone.
		}
		return fmt.Errorf("read %q before delete: %w", path, err)
	}

	if baseAvailable {
		base, err := e.baseState(ctx, baseCommit, path)
		if err != nil {
			return err
		}
		if !base.present || hashBytes(current) != base.hash {
			*warnings = append(*warnings, fmt.Sprintf("server deletion of %q skipped: server copy was modified since base", path))
			return nil
		}
	}

	if err := e.content.DeletePost(path); err != nil {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	return nil
}

// resolveConflict runs the three-way merge for a submitted conflict
// resolution. A clean merge returns (nil, mergedText, nil); a merge that
// still contains conflict markers returns a ConflictDescriptor and
// leaves the server copy untouched (spec §4.10.4).
func (e *Engine) resolveConflict(ctx context.Context, baseCommit string, baseAvailable bool, res syncdomain.ConflictResolution) (*syncdomain.ConflictDescriptor, string, error) {
	theirs, err := e.content.ReadPost(res.FilePath)
	if err != nil && !isNotFound(err) {
		return nil, "", fmt.Errorf("read server copy of %q: %w", res.FilePath, err)
	}

	var base string
	if baseAvailable {
		text, found, err := e.repo.BlobAtCommit(ctx, baseCommit, res.FilePath)
		if err != nil {
			return nil, "", fmt.Errorf("%w: blob at commit: %v", domain.ErrStorageFailure, err)
		}
		if found {
			base = text
		}
	}

	ours := string(res.Content)
	result, err := e.repo.Merge3(ctx, base, ours, string(theirs))
	if err != nil {
		return nil, "", fmt.Errorf("three-way merge of %q: %w", res.FilePath, err)
	}

	if result.HasConflict {
		return &syncdomain.ConflictDescriptor{
			FilePath:          res.FilePath,
			Base:              base,
			Ours:              ours,
			Theirs:            string(theirs),
			MergedWithMarkers: result.Merged,
		}, "", nil
	}
	return nil, result.Merged, nil
}

// normalizeTimestamps rewrites a genuinely-merged file's front-matter
// timestamps into canonical form (spec §4.10.5 step 4: "only on
// genuinely merged files"), bumping modified_at to now and
// re-canonicalizing whatever created_at the merge produced.
func (e *Engine) normalizeTimestamps(relPath string) error {
	raw, err := e.content.ReadPost(relPath)
	if err != nil {
		return err
	}
	doc := frontmatter.Split(raw)
	now := datetimefmt.Format(time.Now().UTC())
	doc.ModifiedAt = &now
	out, err := frontmatter.Join(doc, "", e.site)
	if err != nil {
		return err
	}
	return e.content.WritePost(relPath, out)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hashString(s string) string {
	return hashBytes([]byte(s))
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
