// Package sequencer drives the registration of one independently-loaded
// unit: descriptor-store registration, backend arbitration, and dependency
// verification, as a single atomic step.
//
// LoadUnit is the only entry point external callers use. It is idempotent
// for repeated identical loads of the same unit, and it fails fast with a
// diagnosable error instead of leaving a partially-claimed registry: claims
// of a failed unit are rolled back to non-authoritative.
package sequencer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/vk/typegrid/internal/arbiter"
	"github.com/vk/typegrid/internal/ctxlog"
	"github.com/vk/typegrid/internal/descriptor"
	"github.com/vk/typegrid/internal/descstore"
	"github.com/vk/typegrid/internal/factory"
	"github.com/vk/typegrid/internal/inmemorydesc"
	"github.com/vk/typegrid/internal/resolver"
	"github.com/vk/typegrid/internal/variant"
)

// Unit is one independently loaded collection of descriptors plus the
// backend variant its implementation supplies. Origin identifies the unit
// across repeated loads; when empty, a random one is assigned.
type Unit struct {
	Origin      string
	Variant     variant.Backend
	Descriptors []*descriptor.Descriptor
}

// Result reports the registry view of a unit's names after a successful
// load: which are ready for construction and which still wait on other
// units. Both slices are sorted.
type Result struct {
	Origin  string
	Ready   []string
	Pending []string
}

// TypeReport is the read-only diagnostic record for one name, combining the
// arbitration history with the construction state.
type TypeReport struct {
	Name          string
	Authoritative *arbiter.Claim
	Claims        []arbiter.Claim
	State         factory.State
}

// Options are the process-wide knobs, read once at construction and
// immutable thereafter.
type Options struct {
	// StrictArbitration prevents portable claims from ever becoming
	// authoritative, so a fast portable load cannot win a name away from a
	// slower native one.
	StrictArbitration bool
	// ForcePortable makes every unit load behave as if it requested the
	// portable variant, disabling native backends entirely. It takes
	// precedence over StrictArbitration.
	ForcePortable bool
}

// Sequencer is the singleton-scoped registry state object. Construct one per
// process in production, or one per test case; there is no teardown, its
// contents live as long as the instance.
type Sequencer struct {
	opts  Options
	store descstore.Store
	arb   *arbiter.Registry
	res   *resolver.Resolver
	fac   *factory.Factory

	// mu serializes register -> claim -> verify per LoadUnit call. Load
	// events are rare and short, so one coarse lock is enough; steady-state
	// reads go straight to the stores' reader locks.
	mu     sync.Mutex
	loaded map[string]string // origin -> unit fingerprint
}

// New creates a sequencer with a fresh store, arbiter, resolver, and
// factory.
func New(opts Options) *Sequencer {
	if opts.ForcePortable {
		// Strict arbitration would leave forced-portable claims without any
		// possible authority.
		opts.StrictArbitration = false
	}
	store := inmemorydesc.New()
	arb := arbiter.New(opts.StrictArbitration)
	res := resolver.New()
	return &Sequencer{
		opts:   opts,
		store:  store,
		arb:    arb,
		res:    res,
		fac:    factory.New(store, arb, res),
		loaded: make(map[string]string),
	}
}

// LoadUnit registers a unit's descriptors, arbitrates backend ownership for
// every name in the set, and verifies dependency resolvability. All checks
// run before any mutation, so a failed load leaves the registry exactly as
// it was, except that a cycle discovered at verification time is rolled back
// explicitly.
func (s *Sequencer) LoadUnit(ctx context.Context, unit Unit) (*Result, error) {
	logger := ctxlog.FromContext(ctx)

	origin := unit.Origin
	if origin == "" {
		origin = uuid.NewString()
		logger.Debug("Unit load without origin, assigned one.", "origin", origin)
	}

	v := unit.Variant
	if s.opts.ForcePortable && v != variant.Portable {
		logger.Debug("Native backend disabled, forcing portable variant.",
			"origin", origin, "requested", v.String())
		v = variant.Portable
	}
	if !v.Valid() {
		return nil, fmt.Errorf("load of unit %q: invalid variant %q", origin, v)
	}
	if len(unit.Descriptors) == 0 {
		return nil, fmt.Errorf("load of unit %q: descriptor set is empty", origin)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fp, err := unitFingerprint(unit.Descriptors, v)
	if err != nil {
		return nil, err
	}
	if s.loaded[origin] == fp {
		logger.Debug("Identical unit already loaded, no-op.", "origin", origin)
		return s.resultLocked(ctx, origin, unit.Descriptors)
	}

	// Phase 1: validate everything before mutating anything.
	if err := s.precheckLocked(ctx, unit.Descriptors, v, origin); err != nil {
		return nil, err
	}

	// Phase 2: commit registrations and claims.
	members := make(map[string][]string, len(unit.Descriptors))
	for _, d := range unit.Descriptors {
		if _, err := s.store.Register(ctx, d, origin); err != nil {
			// Precheck makes this unreachable; fail loudly if it is not.
			s.rollbackLocked(ctx, origin, unit.Descriptors)
			return nil, err
		}
		members[d.Name] = d.References
	}
	for _, d := range unit.Descriptors {
		dec, err := s.arb.Claim(ctx, d.Name, v, origin)
		if err != nil {
			s.rollbackLocked(ctx, origin, unit.Descriptors)
			return nil, err
		}
		if dec.Superseded != nil {
			// Not-yet-constructed callers rebind to the new authority;
			// handles already issued stay valid.
			s.fac.Invalidate(ctx, d.Name)
		}
	}
	if err := s.res.AddGroup(ctx, origin, members); err != nil {
		s.rollbackLocked(ctx, origin, unit.Descriptors)
		return nil, err
	}

	// Phase 3: verification pass. A cross-unit cycle is a fatal
	// configuration error and undoes the whole unit.
	for _, d := range unit.Descriptors {
		if _, err := s.res.Verify(ctx, d.Name); err != nil {
			s.rollbackLocked(ctx, origin, unit.Descriptors)
			return nil, err
		}
	}

	s.loaded[origin] = fp
	logger.Info("Unit loaded.", "origin", origin, "variant", v.String(), "descriptors", len(unit.Descriptors))
	return s.resultLocked(ctx, origin, unit.Descriptors)
}

// LoadSerialized decodes a set of canonically-encoded descriptors and loads
// them as one unit.
func (s *Sequencer) LoadSerialized(ctx context.Context, raw [][]byte, v variant.Backend, origin string) (*Result, error) {
	descs := make([]*descriptor.Descriptor, 0, len(raw))
	for i, b := range raw {
		d, err := descriptor.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("unit %q: descriptor %d: %w", origin, i, err)
		}
		descs = append(descs, d)
	}
	return s.LoadUnit(ctx, Unit{Origin: origin, Variant: v, Descriptors: descs})
}

// RequestType returns the constructed type for a fully-qualified name,
// constructing it on first access. See factory.Factory.RequestType.
func (s *Sequencer) RequestType(ctx context.Context, name string) (*factory.Type, error) {
	return s.fac.RequestType(ctx, name)
}

// IsConstructed reports whether the name currently has a constructed type.
func (s *Sequencer) IsConstructed(ctx context.Context, name string) bool {
	return s.fac.IsConstructed(ctx, name)
}

// Describe returns the arbitration and construction record for a name.
func (s *Sequencer) Describe(ctx context.Context, name string) (TypeReport, bool) {
	desc, ok := s.arb.Describe(ctx, name)
	if !ok {
		if _, registered := s.store.Lookup(ctx, name); !registered {
			return TypeReport{}, false
		}
		desc = arbiter.Description{Name: name}
	}
	return TypeReport{
		Name:          name,
		Authoritative: desc.Authoritative,
		Claims:        desc.Claims,
		State:         s.fac.StateOf(ctx, name),
	}, true
}

// Names returns a sorted snapshot of every registered name.
func (s *Sequencer) Names(ctx context.Context) []string {
	return s.store.AllNames(ctx)
}

func (s *Sequencer) precheckLocked(ctx context.Context, descs []*descriptor.Descriptor, v variant.Backend, origin string) error {
	seen := make(map[string]string, len(descs)) // name -> fingerprint within this unit
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("load of unit %q: %w", origin, err)
		}
		fp, err := d.Fingerprint()
		if err != nil {
			return err
		}
		if prev, dup := seen[d.Name]; dup && prev != fp {
			return &descstore.ConflictError{
				Name:           d.Name,
				ExistingOrigin: origin,
				NewOrigin:      origin,
				Diff:           "two structurally different descriptors in one unit",
			}
		}
		seen[d.Name] = fp

		if existing, ok := s.store.Lookup(ctx, d.Name); ok && existing.Fingerprint != fp {
			return &descstore.ConflictError{
				Name:           d.Name,
				ExistingOrigin: existing.Origin,
				NewOrigin:      origin,
				Diff:           descriptor.Diff(existing.Descriptor, d),
			}
		}

		if auth, ok := s.arb.Authority(ctx, d.Name); ok && auth.Variant == v && auth.Origin != origin {
			return &arbiter.DuplicateAuthorityError{
				Name:           d.Name,
				Variant:        v,
				ExistingOrigin: auth.Origin,
				NewOrigin:      origin,
			}
		}
	}
	return nil
}

// rollbackLocked detaches a failed unit: its claims are retracted and its
// registration group removed. Descriptor entries stay in the append-only
// store, which is harmless because nothing points at them.
func (s *Sequencer) rollbackLocked(ctx context.Context, origin string, descs []*descriptor.Descriptor) {
	for _, d := range descs {
		s.arb.Retract(ctx, d.Name, origin)
	}
	s.res.RemoveGroup(ctx, origin)
	delete(s.loaded, origin)
	ctxlog.FromContext(ctx).Warn("Unit load rolled back.", "origin", origin)
}

func (s *Sequencer) resultLocked(ctx context.Context, origin string, descs []*descriptor.Descriptor) (*Result, error) {
	result := &Result{Origin: origin}
	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		res, err := s.res.Verify(ctx, d.Name)
		if err != nil {
			return nil, err
		}
		if res.Status == resolver.StatusReady {
			result.Ready = append(result.Ready, d.Name)
		} else {
			result.Pending = append(result.Pending, d.Name)
		}
	}
	sort.Strings(result.Ready)
	sort.Strings(result.Pending)
	return result, nil
}

// unitFingerprint hashes the canonical content of a descriptor set together
// with the effective variant, for the repeated-identical-load check.
func unitFingerprint(descs []*descriptor.Descriptor, v variant.Backend) (string, error) {
	fps := make([]string, 0, len(descs))
	for _, d := range descs {
		fp, err := d.Fingerprint()
		if err != nil {
			return "", err
		}
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	h := sha256.New()
	h.Write([]byte(v.String()))
	for _, fp := range fps {
		h.Write([]byte(fp))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
