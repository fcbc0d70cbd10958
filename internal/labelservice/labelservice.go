// Package labelservice applies admin label mutations to both of the
// Label DAG's persisted forms (spec §4.8, §3): labels.toml stays the
// authoritative explicit-label source, and the SQLite cache is
// resynchronized through a full cachebuild.Materializer rebuild so
// implicit labels discovered on disk and the explicit edit agree.
package labelservice

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agblogger/agblogger/internal/cachebuild"
	"github.com/agblogger/agblogger/internal/domain/label"
	"github.com/agblogger/agblogger/internal/labeldag"
	"github.com/agblogger/agblogger/internal/port/database"
	"github.com/agblogger/agblogger/internal/tomlconfig"
)

// Service mutates the label DAG's explicit half on disk, then lets a
// cache rebuild reconcile the persisted cache. mu serializes mutations
// so two concurrent upserts can't race each other's read-modify-write of
// labels.toml (spec §5's "filesystem first, then commit" rule, applied
// here to a TOML file instead of a single markdown file).
type Service struct {
	labelsPath string
	store      database.Store
	cache      *cachebuild.Materializer

	mu sync.Mutex
}

// New returns a Service over labelsPath, store, and cache.
func New(labelsPath string, store database.Store, cache *cachebuild.Materializer) *Service {
	return &Service{labelsPath: labelsPath, store: store, cache: cache}
}

// List returns every label currently in the cache (spec §4.8).
func (s *Service) List(ctx context.Context) ([]label.Label, error) {
	return s.store.ListLabels(ctx)
}

// Get returns a single label by id.
func (s *Service) Get(ctx context.Context, id string) (*label.Label, error) {
	return s.store.GetLabel(ctx, id)
}

// Ancestors returns every label id reachable from id via the parent
// relation, used for "posts in X or below" queries.
func (s *Service) Ancestors(ctx context.Context, id string) ([]string, error) {
	return s.store.Ancestors(ctx, id)
}

// Descendants returns every label id that has id as an ancestor.
func (s *Service) Descendants(ctx context.Context, id string) ([]string, error) {
	return s.store.Descendants(ctx, id)
}

// Upsert validates req against the current explicit-label set (rejecting
// a change that would introduce a cycle), persists the updated explicit
// set to labels.toml, and rebuilds the cache (spec §4.8).
func (s *Service) Upsert(ctx context.Context, req label.UpsertRequest) (*label.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	explicit, err := s.readExplicit()
	if err != nil {
		return nil, fmt.Errorf("read labels.toml: %w", err)
	}

	dag := labeldag.New()
	for _, l := range explicit {
		if err := dag.Upsert(label.UpsertRequest{ID: l.ID, Names: l.Names, Parents: l.Parents}); err != nil {
			return nil, fmt.Errorf("rebuild dag from labels.toml: %w", err)
		}
	}

	if err := dag.Upsert(req); err != nil {
		return nil, err
	}

	if err := s.writeExplicit(dag); err != nil {
		return nil, err
	}
	if err := s.cache.RebuildCache(ctx); err != nil {
		return nil, fmt.Errorf("rebuild cache after label upsert: %w", err)
	}

	l, _ := dag.Get(req.ID)
	return &l, nil
}

// Delete removes an explicit label, clearing it from every other
// label's parent list, persists the result, and rebuilds the cache
// (spec §4.8).
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	explicit, err := s.readExplicit()
	if err != nil {
		return fmt.Errorf("read labels.toml: %w", err)
	}

	dag := labeldag.New()
	for _, l := range explicit {
		if err := dag.Upsert(label.UpsertRequest{ID: l.ID, Names: l.Names, Parents: l.Parents}); err != nil {
			return fmt.Errorf("rebuild dag from labels.toml: %w", err)
		}
	}

	if err := dag.Delete(id); err != nil {
		return err
	}

	if err := s.writeExplicit(dag); err != nil {
		return err
	}
	return s.cache.RebuildCache(ctx)
}

func (s *Service) readExplicit() ([]label.Label, error) {
	normalized, err := tomlconfig.ReadLabels(s.labelsPath)
	if err != nil {
		return nil, err
	}
	out := make([]label.Label, 0, len(normalized))
	for _, n := range normalized {
		out = append(out, label.Label{ID: n.ID, Names: n.Names, Parents: n.Parents})
	}
	return out, nil
}

func (s *Service) writeExplicit(dag *labeldag.DAG) error {
	all := dag.All()
	out := make([]tomlconfig.NormalizedLabel, 0, len(all))
	for _, l := range all {
		out = append(out, tomlconfig.NormalizedLabel{ID: l.ID, Names: l.Names, Parents: l.Parents})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return tomlconfig.WriteLabels(s.labelsPath, out)
}
