// Package labeldag implements the Label DAG (spec §4.8): an in-memory
// directed acyclic graph of labels over a child -> {parents} relation,
// backed by labels.toml and mirrored into the cache for transitive
// ancestor/descendant queries. Grounded on the domain label types in
// internal/domain/label/label.go; no graph library appears anywhere in
// the example pack, so the adjacency-map representation here is a
// deliberate stdlib-only choice (see DESIGN.md).
package labeldag

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agblogger/agblogger/internal/domain"
	"github.com/agblogger/agblogger/internal/domain/label"
)

// DAG holds the in-memory label graph. All mutating methods are
// serialized by mu; callers persist the resulting state to labels.toml
// and the cache after a successful call.
type DAG struct {
	mu     sync.RWMutex
	labels map[string]*label.Label
}

// New returns an empty DAG.
func New() *DAG {
	return &DAG{labels: make(map[string]*label.Label)}
}

// Get returns a copy of the label with the given id, if present.
func (d *DAG) Get(id string) (label.Label, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.labels[id]
	if !ok {
		return label.Label{}, false
	}
	return *l, true
}

// All returns every label in the DAG, sorted by id for deterministic
// listing.
func (d *DAG) All() []label.Label {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]label.Label, 0, len(d.labels))
	for _, l := range d.labels {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Upsert adds or updates an explicit label, rejecting the change if it
// would introduce a cycle (spec §4.8). The cycle check runs against the
// proposed new edge set before any existing edges are mutated, so a
// rejected upsert leaves the DAG untouched.
func (d *DAG) Upsert(req label.UpsertRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadRequest, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range req.Parents {
		if p == req.ID {
			return &domain.CycleError{Child: req.ID, Parent: p}
		}
		if d.reaches(p, req.ID) {
			return &domain.CycleError{Child: req.ID, Parent: p}
		}
	}

	d.labels[req.ID] = &label.Label{
		ID:      req.ID,
		Names:   append([]string{}, req.Names...),
		Parents: append([]string{}, req.Parents...),
	}
	return nil
}

// reaches reports whether a path exists from -> to following parent
// pointers (BFS), used as the real-time cycle check: if the proposed
// parent `from` can already reach the child `to`, adding `to -> from`
// would close a cycle.
func (d *DAG) reaches(from, to string) bool {
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		l, ok := d.labels[cur]
		if !ok {
			continue
		}
		for _, p := range l.Parents {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}

// Delete removes id and every edge referencing it, as both child and
// parent (spec §4.8).
func (d *DAG) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.labels[id]; !ok {
		return fmt.Errorf("%w: label %q", domain.ErrNotFound, id)
	}
	delete(d.labels, id)
	for _, l := range d.labels {
		l.Parents = removeAll(l.Parents, id)
	}
	return nil
}

// Ancestors returns every label reachable from id by following parent
// pointers (spec §4.8), used for "posts in X or below" queries.
func (d *DAG) Ancestors(id string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closure(id, func(l *label.Label) []string { return l.Parents })
}

// Descendants returns every label that has id as an ancestor.
func (d *DAG) Descendants(id string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	children := make(map[string][]string, len(d.labels))
	for cid, l := range d.labels {
		for _, p := range l.Parents {
			children[p] = append(children[p], cid)
		}
	}
	return d.closure(id, func(l *label.Label) []string { return children[l.ID] })
}

func (d *DAG) closure(id string, next func(*label.Label) []string) []string {
	visited := map[string]bool{}
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		l, ok := d.labels[cur]
		if !ok {
			continue
		}
		for _, n := range next(l) {
			if !visited[n] {
				visited[n] = true
				out = append(out, n)
				queue = append(queue, n)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ResolveByName looks up a label id by its own id or by any declared
// name (spec §4.8).
func (d *DAG) ResolveByName(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if _, ok := d.labels[name]; ok {
		return name, true
	}
	for _, l := range d.labels {
		for _, n := range l.Names {
			if strings.EqualFold(n, name) {
				return l.ID, true
			}
		}
	}
	return "", false
}

// Reconcile rebuilds the DAG from the explicit labels declared in
// labels.toml plus the implicit labels discovered by a content scan
// (spec §4.8): implicit labels receive names=[], parents=∅,
// is_implicit=true. Any cycle surviving in the TOML is repaired by
// BreakCycles before the DAG is accepted, since externally edited TOML
// cannot be trusted to be acyclic the way Upsert's real-time check
// guarantees.
func Reconcile(explicit []label.Label, implicitIDs []string) *DAG {
	d := New()
	for _, l := range explicit {
		cp := l
		cp.IsImplicit = false
		d.labels[l.ID] = &cp
	}
	for _, id := range implicitIDs {
		if _, exists := d.labels[id]; exists {
			continue
		}
		d.labels[id] = &label.Label{ID: id, Names: []string{}, Parents: nil, IsImplicit: true}
	}
	BreakCycles(d)
	return d
}

// BreakCycles runs an iterative (not recursive) DFS cycle-repair pass
// over the DAG, removing the highest-indexed offending edge on each
// cycle found and repeating until the graph is acyclic (spec §4.8).
// It is used only during cache rebuild, to tolerate hand-edited TOML;
// Upsert's real-time BFS check is what normally prevents cycles from
// being introduced at all.
func BreakCycles(d *DAG) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var repaired []string
	for {
		cycleChild, cycleParentIdx, found := findCycleEdge(d.labels)
		if !found {
			return repaired
		}
		l := d.labels[cycleChild]
		removedParent := l.Parents[cycleParentIdx]
		l.Parents = append(l.Parents[:cycleParentIdx], l.Parents[cycleParentIdx+1:]...)
		repaired = append(repaired, fmt.Sprintf("%s -> %s", cycleChild, removedParent))
	}
}

// findCycleEdge performs an iterative DFS over the parent relation and
// returns the (child, parent-index) of the edge that closes the first
// cycle encountered, walking each label's parents in order so the
// "highest-indexed edge on the cycle" is deterministic.
func findCycleEdge(labels map[string]*label.Label) (string, int, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(labels))
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	type frame struct {
		id   string
		next int
	}

	for _, start := range ids {
		if color[start] != white {
			continue
		}
		stack := []frame{{id: start, next: 0}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			l, ok := labels[top.id]
			if !ok || top.next >= len(l.Parents) {
				color[top.id] = black
				stack = stack[:len(stack)-1]
				continue
			}
			parent := l.Parents[top.next]
			idx := top.next
			top.next++
			switch color[parent] {
			case white:
				color[parent] = gray
				stack = append(stack, frame{id: parent, next: 0})
			case gray:
				return top.id, idx, true
			}
		}
	}
	return "", 0, false
}

func removeAll(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
