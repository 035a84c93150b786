// Package resolver computes and enforces a safe initialization order among
// descriptor sets with cross-references.
//
// Names registered by one unit form a single registration group: mutual
// recursion inside a unit is fine and the whole group becomes ready
// atomically. Edges between groups must form a DAG; a dependency cycle that
// spans two or more units is an unsatisfiable configuration and is reported
// as fatal with the offending path.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vk/typegrid/internal/ctxlog"
)

// ErrCycleDetected is the sentinel wrapped by CycleError.
var ErrCycleDetected = errors.New("cycle detected")

// CycleError reports a cross-unit dependency cycle. Path is the chain of
// fully-qualified names that closes the cycle, first name repeated last.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cross-unit dependency cycle: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// Status is the readiness of a name.
type Status int

const (
	// StatusUnknown means the name has not been registered by any unit.
	StatusUnknown Status = iota
	// StatusPending means the name is registered but some transitive
	// dependency is not yet satisfiable.
	StatusPending
	// StatusReady means every transitive dependency resolves to a ready
	// group; the name is safe to construct.
	StatusReady
)

// Result is the outcome of a readiness check. Missing lists the
// fully-qualified names that block readiness when Status is StatusPending.
type Result struct {
	Status  Status
	Missing []string
}

// group is one unit's registration group. deps holds referenced names
// outside the member set; in-group references are collapsed away.
type group struct {
	id      string
	members map[string]struct{}
	deps    map[string]struct{}
	ready   bool
}

// Resolver tracks registration groups and incrementally re-evaluates
// readiness as new groups land.
type Resolver struct {
	mu      sync.RWMutex
	groupOf map[string]string
	groups  map[string]*group
}

// New creates an empty resolver.
func New() *Resolver {
	return &Resolver{
		groupOf: make(map[string]string),
		groups:  make(map[string]*group),
	}
}

// AddGroup registers a unit's names as one atomically-ready group. members
// maps each name to the names its descriptor references. A name already
// owned by another group keeps its original owner: the descriptor store has
// already guaranteed the content is structurally identical, so the edges are
// consistent either way. Re-adding a group under the same id replaces it,
// which makes repeated identical loads idempotent.
func (r *Resolver) AddGroup(ctx context.Context, id string, members map[string][]string) error {
	if id == "" {
		return fmt.Errorf("registration group id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	logger := ctxlog.FromContext(ctx)

	if _, exists := r.groups[id]; exists {
		r.removeGroupLocked(id)
	}

	g := &group{
		id:      id,
		members: make(map[string]struct{}),
		deps:    make(map[string]struct{}),
	}
	for name := range members {
		if owner, taken := r.groupOf[name]; taken && owner != id {
			logger.Debug("Name already owned by another group, keeping original owner.",
				"name", name, "owner", owner, "group", id)
			continue
		}
		g.members[name] = struct{}{}
		r.groupOf[name] = id
	}
	for name := range g.members {
		for _, ref := range members[name] {
			if _, internal := g.members[ref]; internal {
				continue
			}
			g.deps[ref] = struct{}{}
		}
	}
	r.groups[id] = g
	r.recomputeLocked()
	logger.Debug("Registration group added.", "group", id, "members", len(g.members), "external_deps", len(g.deps))
	return nil
}

// RemoveGroup drops a group and every name it owns. It exists for the load
// sequencer's failure rollback.
func (r *Resolver) RemoveGroup(ctx context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeGroupLocked(id)
	r.recomputeLocked()
}

func (r *Resolver) removeGroupLocked(id string) {
	g, exists := r.groups[id]
	if !exists {
		return
	}
	for name := range g.members {
		if r.groupOf[name] == id {
			delete(r.groupOf, name)
		}
	}
	delete(r.groups, id)
}

// recomputeLocked re-derives group readiness from scratch by fixpoint. Load
// events are rare and groups are few, so the quadratic worst case is fine.
func (r *Resolver) recomputeLocked() {
	for _, g := range r.groups {
		g.ready = false
	}
	for changed := true; changed; {
		changed = false
		for _, g := range r.groups {
			if g.ready {
				continue
			}
			satisfied := true
			for dep := range g.deps {
				owner, registered := r.groupOf[dep]
				if !registered || !r.groups[owner].ready {
					satisfied = false
					break
				}
			}
			if satisfied {
				g.ready = true
				changed = true
			}
		}
	}
}

// Verify reports the readiness of a single name. A cross-unit cycle on the
// name's dependency path is returned as a CycleError.
func (r *Resolver) Verify(ctx context.Context, name string) (Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gid, registered := r.groupOf[name]
	if !registered {
		return Result{Status: StatusUnknown}, nil
	}
	g := r.groups[gid]
	if g.ready {
		return Result{Status: StatusReady}, nil
	}

	missing := make(map[string]struct{})
	state := make(map[string]int) // 0 unvisited, 1 on stack, 2 done
	path := []string{name}
	var cycle []string

	var walk func(g *group) bool
	walk = func(g *group) bool {
		state[g.id] = 1
		for dep := range g.deps {
			owner, ok := r.groupOf[dep]
			if !ok {
				missing[dep] = struct{}{}
				continue
			}
			target := r.groups[owner]
			if target.ready {
				continue
			}
			switch state[owner] {
			case 1:
				cycle = append(append([]string{}, path...), dep)
				return true
			case 2:
				continue
			}
			path = append(path, dep)
			if walk(target) {
				return true
			}
			path = path[:len(path)-1]
		}
		state[g.id] = 2
		return false
	}

	if walk(g) {
		return Result{}, &CycleError{Path: cycle}
	}

	names := make([]string, 0, len(missing))
	for n := range missing {
		names = append(names, n)
	}
	sort.Strings(names)
	return Result{Status: StatusPending, Missing: names}, nil
}
