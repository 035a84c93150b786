// Package factory lazily materializes concrete type objects once their
// descriptor and all transitive dependencies are registered and arbitrated.
//
// Each name moves through an explicit state machine:
//
//	Unregistered -> Registered -> DependenciesPending -> Constructible -> Constructed
//
// Construction happens at most once per authoritative registration.
// Concurrent RequestType calls for the same name coalesce onto a single
// construction attempt, and a name's dependencies are always constructed
// before the name itself, so a returned handle never precedes its dependency
// closure.
package factory

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/vk/typegrid/internal/arbiter"
	"github.com/vk/typegrid/internal/ctxlog"
	"github.com/vk/typegrid/internal/descriptor"
	"github.com/vk/typegrid/internal/descstore"
	"github.com/vk/typegrid/internal/resolver"
	"github.com/vk/typegrid/internal/variant"
)

// State is the position of a name in the construction state machine.
type State int

const (
	StateUnregistered State = iota
	StateRegistered
	StateDependenciesPending
	StateConstructible
	StateConstructed
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateDependenciesPending:
		return "dependencies-pending"
	case StateConstructible:
		return "constructible"
	case StateConstructed:
		return "constructed"
	}
	return "unknown"
}

// Type is a materialized, usable type object bound to a single authoritative
// registration. Handles are never retracted: a Type stays valid for the
// process lifetime even if its name is later rebound to a higher-ranked
// variant.
type Type struct {
	name    string
	variant variant.Backend
	origin  string
	desc    *descriptor.Descriptor
}

// Name returns the fully-qualified name the type was constructed for.
func (t *Type) Name() string { return t.name }

// Variant returns the backend variant the type is bound to.
func (t *Type) Variant() variant.Backend { return t.variant }

// Origin returns the unit that held authority at construction time.
func (t *Type) Origin() string { return t.origin }

// Descriptor returns the structural definition the type was built from.
func (t *Type) Descriptor() *descriptor.Descriptor { return t.desc }

// Factory owns the constructed-type table and is its sole writer.
type Factory struct {
	store descstore.Store
	arb   *arbiter.Registry
	res   *resolver.Resolver

	mu          sync.RWMutex
	constructed map[string]*Type
	flight      singleflight.Group
}

// New creates a factory over the given store, arbiter, and resolver.
func New(store descstore.Store, arb *arbiter.Registry, res *resolver.Resolver) *Factory {
	return &Factory{
		store:       store,
		arb:         arb,
		res:         res,
		constructed: make(map[string]*Type),
	}
}

// RequestType returns the constructed type for name, constructing it (and
// its not-yet-constructed transitive dependencies, dependencies first) on
// first access. It blocks while a construction attempt for the name is in
// flight; it never blocks waiting for future unit loads. An unready name
// returns a recoverable PendingError instead.
func (f *Factory) RequestType(ctx context.Context, name string) (*Type, error) {
	if t := f.cached(name); t != nil {
		return t, nil
	}

	if _, ok := f.store.Lookup(ctx, name); !ok {
		return nil, &NotFoundError{Name: name}
	}
	if _, ok := f.arb.Authority(ctx, name); !ok {
		return nil, &PendingError{Name: name}
	}

	res, err := f.res.Verify(ctx, name)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case resolver.StatusReady:
		// Constructible; fall through.
	case resolver.StatusPending:
		return nil, &PendingError{Name: name, Missing: res.Missing}
	default:
		return nil, &PendingError{Name: name}
	}

	var result *Type
	for _, dep := range f.closure(ctx, name) {
		t, err := f.constructOne(ctx, dep)
		if err != nil {
			return nil, err
		}
		if dep == name {
			result = t
		}
	}
	return result, nil
}

// IsConstructed reports whether a usable type object currently exists for
// the name. It never blocks.
func (f *Factory) IsConstructed(ctx context.Context, name string) bool {
	return f.cached(name) != nil
}

// StateOf derives the state-machine position of a name. Diagnostic only.
func (f *Factory) StateOf(ctx context.Context, name string) State {
	if f.cached(name) != nil {
		return StateConstructed
	}
	if _, ok := f.store.Lookup(ctx, name); !ok {
		return StateUnregistered
	}
	if _, ok := f.arb.Authority(ctx, name); !ok {
		return StateRegistered
	}
	res, err := f.res.Verify(ctx, name)
	if err != nil || res.Status != resolver.StatusReady {
		return StateDependenciesPending
	}
	return StateConstructible
}

// Invalidate drops the constructed binding for a name so the next
// RequestType constructs against the current authority. Handles already
// returned to callers stay valid. The load sequencer calls this when a
// higher-ranked claim supersedes a constructed name.
func (f *Factory) Invalidate(ctx context.Context, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.constructed[name]; ok {
		delete(f.constructed, name)
		ctxlog.FromContext(ctx).Debug("Constructed binding invalidated.", "name", name)
	}
}

func (f *Factory) cached(name string) *Type {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.constructed[name]
}

// closure returns the transitive dependency closure of name in dependency
// postorder: every reachable name appears after the names it references,
// except where in-unit recursion makes that impossible, and name itself is
// last. Readiness has already been verified, so missing references simply
// drop out of the walk and surface later as construction errors.
func (f *Factory) closure(ctx context.Context, name string) []string {
	visited := make(map[string]bool)
	var order []string

	var walk func(n string)
	walk = func(n string) {
		visited[n] = true
		if entry, ok := f.store.Lookup(ctx, n); ok {
			for _, ref := range entry.Descriptor.References {
				if !visited[ref] {
					walk(ref)
				}
			}
		}
		order = append(order, n)
	}
	walk(name)
	return order
}

// constructOne builds the type object for a single name whose readiness is
// already established. Concurrent calls for the same name coalesce onto one
// construction.
func (f *Factory) constructOne(ctx context.Context, name string) (*Type, error) {
	if t := f.cached(name); t != nil {
		return t, nil
	}

	v, err, _ := f.flight.Do(name, func() (any, error) {
		if t := f.cached(name); t != nil {
			return t, nil
		}

		entry, ok := f.store.Lookup(ctx, name)
		if !ok {
			return nil, &NotFoundError{Name: name}
		}
		auth, ok := f.arb.Authority(ctx, name)
		if !ok {
			return nil, &PendingError{Name: name}
		}

		if auth.Variant == variant.GeneratedNative {
			if err := f.verifyNativeLinkage(ctx, name, entry.Descriptor); err != nil {
				return nil, err
			}
		}

		t := &Type{
			name:    name,
			variant: auth.Variant,
			origin:  auth.Origin,
			desc:    entry.Descriptor,
		}
		f.mu.Lock()
		f.constructed[name] = t
		f.mu.Unlock()

		ctxlog.FromContext(ctx).Debug("Type constructed.",
			"name", name, "variant", auth.Variant.String(), "origin", auth.Origin)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Type), nil
}

// verifyNativeLinkage enforces that every name in the dependency closure of
// a generated-native type is itself bound to a native implementation.
func (f *Factory) verifyNativeLinkage(ctx context.Context, name string, d *descriptor.Descriptor) error {
	visited := map[string]bool{name: true}
	queue := append([]string{}, d.References...)

	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if visited[dep] {
			continue
		}
		visited[dep] = true

		depAuth, ok := f.arb.Authority(ctx, dep)
		if !ok || !depAuth.Variant.Native() {
			return &LinkageError{
				Name:              name,
				Dependency:        dep,
				DependencyVariant: depAuth.Variant,
			}
		}
		if entry, found := f.store.Lookup(ctx, dep); found {
			queue = append(queue, entry.Descriptor.References...)
		}
	}
	return nil
}
