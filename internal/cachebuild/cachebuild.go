// Package cachebuild implements the Cache Materializer (spec §4.9): it
// keeps the SQLite cache (posts_cache, labels, post_labels_cache, FTS)
// in sync with the canonical content directory, both via a full
// rebuild_cache() pass and via incremental per-mutation maintenance.
package cachebuild

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/agblogger/agblogger/internal/contentstore"
	"github.com/agblogger/agblogger/internal/datetimefmt"
	"github.com/agblogger/agblogger/internal/domain/label"
	"github.com/agblogger/agblogger/internal/domain/post"
	"github.com/agblogger/agblogger/internal/labeldag"
	"github.com/agblogger/agblogger/internal/port/database"
	"github.com/agblogger/agblogger/internal/tomlconfig"
)

// excerptLength is the plain-text prefix length materialized into
// posts_cache.excerpt (spec §3 "excerpt (plain-text prefix)"). The
// distilled spec leaves the exact length unspecified; this mirrors the
// common blog-index teaser length.
const excerptLength = 280

// Materializer keeps the cache converged with the content directory
// (spec §4.9).
type Materializer struct {
	content       *contentstore.Store
	store         database.Store
	site          datetimefmt.Site
	defaultAuthor string
	labelsPath    string
}

// New returns a Materializer over content, store, and the site's
// configured timezone/default author, reading and writing labels.toml
// at labelsPath.
func New(content *contentstore.Store, store database.Store, site datetimefmt.Site, defaultAuthor, labelsPath string) *Materializer {
	return &Materializer{
		content:       content,
		store:         store,
		site:          site,
		defaultAuthor: defaultAuthor,
		labelsPath:    labelsPath,
	}
}

// RebuildCache performs a full refresh (spec §4.9): scan posts/,
// reparse every file, upsert cached rows by file_path, delete cached
// rows whose file is gone, upsert labels (explicit + implicit +
// directory-derived), rebuild post_labels_cache, and repopulate FTS.
func (m *Materializer) RebuildCache(ctx context.Context) error {
	scanned, err := m.content.ScanPosts()
	if err != nil {
		return fmt.Errorf("rebuild cache: scan posts: %w", err)
	}

	posts := make([]*post.Post, 0, len(scanned))
	implicitIDs := map[string]bool{}
	for _, sp := range scanned {
		p := m.toPost(sp)
		posts = append(posts, p)
		for _, id := range p.Labels {
			implicitIDs[id] = true
		}
	}

	explicit, err := m.readExplicitLabels()
	if err != nil {
		return fmt.Errorf("rebuild cache: read labels.toml: %w", err)
	}
	for _, l := range explicit {
		delete(implicitIDs, l.ID)
	}
	implicitList := make([]string, 0, len(implicitIDs))
	for id := range implicitIDs {
		implicitList = append(implicitList, id)
	}
	sort.Strings(implicitList)

	dag := labeldag.Reconcile(explicit, implicitList)
	for _, l := range dag.All() {
		lCopy := l
		if err := m.store.UpsertLabel(ctx, &lCopy); err != nil {
			return fmt.Errorf("rebuild cache: upsert label %q: %w", l.ID, err)
		}
	}

	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		seen[p.FilePath] = true
		if err := m.store.UpsertPost(ctx, p); err != nil {
			return fmt.Errorf("rebuild cache: upsert post %q: %w", p.FilePath, err)
		}
	}

	existing, err := m.store.ListAllPostPaths(ctx)
	if err != nil {
		return fmt.Errorf("rebuild cache: list existing posts: %w", err)
	}
	for _, filePath := range existing {
		if seen[filePath] {
			continue
		}
		if err := m.store.DeletePost(ctx, filePath); err != nil {
			slog.Warn("rebuild cache: failed to drop stale post row", "path", filePath, "error", err)
		}
	}

	if err := m.store.PruneUnreferencedImplicitLabels(ctx); err != nil {
		return fmt.Errorf("rebuild cache: prune implicit labels: %w", err)
	}

	slog.Info("cache rebuilt", "posts", len(posts), "labels", len(dag.All()))
	return nil
}

// UpsertPost materializes a single post's cache row and label
// associations after a create/update mutation or a sync write,
// avoiding a full rescan (spec §4.9 "incremental maintenance").
// Labels referenced for the first time materialize implicitly.
func (m *Materializer) UpsertPost(ctx context.Context, sp contentstore.ScannedPost) error {
	p := m.toPost(sp)
	if err := m.store.UpsertPost(ctx, p); err != nil {
		return fmt.Errorf("upsert post %q: %w", p.FilePath, err)
	}
	return m.store.PruneUnreferencedImplicitLabels(ctx)
}

// RemovePost deletes a single post's cache row after a delete mutation
// or sync deletion, then prunes any implicit label left unreferenced
// (spec §4.9 "dropped if implicit").
func (m *Materializer) RemovePost(ctx context.Context, filePath string) error {
	if err := m.store.DeletePost(ctx, filePath); err != nil {
		return fmt.Errorf("remove post %q: %w", filePath, err)
	}
	return m.store.PruneUnreferencedImplicitLabels(ctx)
}

// readExplicitLabels loads labels.toml and converts it into the
// label.Label shape labeldag.Reconcile expects.
func (m *Materializer) readExplicitLabels() ([]label.Label, error) {
	normalized, err := tomlconfig.ReadLabels(m.labelsPath)
	if err != nil {
		return nil, err
	}
	out := make([]label.Label, 0, len(normalized))
	for _, n := range normalized {
		if !label.ValidID(n.ID) {
			slog.Warn("dropping invalid label id from labels.toml", "id", n.ID)
			continue
		}
		out = append(out, label.Label{ID: n.ID, Names: n.Names, Parents: n.Parents})
	}
	return out, nil
}

// toPost converts a scanned file into its cache row shape: title
// extraction, directory-derived implicit labels, excerpt generation,
// and timestamp normalization (spec §3).
func (m *Materializer) toPost(sp contentstore.ScannedPost) *post.Post {
	doc := sp.Doc

	author := doc.Author
	if author == "" {
		author = m.defaultAuthor
	}

	labels := mergeLabels(doc.Labels, directoryLabels(sp.RelPath))

	p := &post.Post{
		FilePath:    sp.RelPath,
		Title:       deriveTitle(doc.Body, sp.RelPath),
		Author:      author,
		IsDraft:     doc.Draft,
		Labels:      labels,
		ContentHash: sp.Hash,
		Excerpt:     excerpt(doc.Body),
		Body:        doc.Body,
		CreatedAt:   sp.ModTime,
		ModifiedAt:  sp.ModTime,
	}

	if doc.CreatedAt != nil {
		if t, err := m.site.Parse(*doc.CreatedAt); err == nil {
			p.CreatedAt = t
		}
	}
	if doc.ModifiedAt != nil {
		if t, err := m.site.Parse(*doc.ModifiedAt); err == nil {
			p.ModifiedAt = t
		}
	}
	return p
}

// headingPattern matches a top-level markdown heading used as the
// title fallback (spec §3 "first `# ` heading").
var headingPattern = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t]*$`)

// deriveTitle returns the first `# ` heading in body, or a
// filename-derived title if none is present (spec §3).
func deriveTitle(body, relPath string) string {
	if match := headingPattern.FindStringSubmatch(body); match != nil {
		return strings.TrimSpace(match[1])
	}
	base := path.Base(relPath)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.ReplaceAll(base, "-", " ")
	base = strings.ReplaceAll(base, "_", " ")
	return strings.TrimSpace(base)
}

// directoryLabels derives implicit labels from posts/-relative path
// segments (spec §3 "posts/tech/swe/x.md ⇒ {#tech, #swe}").
func directoryLabels(relPath string) []string {
	rel := strings.TrimPrefix(relPath, "posts/")
	dir := path.Dir(rel)
	if dir == "." || dir == "" {
		return nil
	}
	segs := strings.Split(dir, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}

// mergeLabels deduplicates front-matter and directory-derived label
// ids, preserving front-matter order first.
func mergeLabels(sets ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, set := range sets {
		for _, id := range set {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// The patterns below are a conservative scrubber used only for excerpt
// generation: they strip the markdown syntax used for emphasis,
// headings, and links without attempting a full parse.
var (
	stripHeading   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	stripEmphasis  = regexp.MustCompile(`[*_` + "`" + `~]+`)
	stripLinkImage = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	collapseSpace  = regexp.MustCompile(`\s+`)
)

// excerpt produces the plain-text prefix stored as posts_cache.excerpt
// (spec §3).
func excerpt(body string) string {
	text := stripLinkImage.ReplaceAllString(body, "$1")
	text = stripHeading.ReplaceAllString(text, "")
	text = stripEmphasis.ReplaceAllString(text, "")
	text = collapseSpace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptLength])) + "…"
}
