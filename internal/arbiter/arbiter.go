// Package arbiter tracks, per fully-qualified type name, which backend
// implementation variant is authoritative. Claims are never discarded: a
// losing claim stays in the per-name history so arbitration outcomes remain
// diagnosable after the fact.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vk/typegrid/internal/ctxlog"
	"github.com/vk/typegrid/internal/variant"
)

// ErrDuplicateAuthority is the sentinel wrapped by DuplicateAuthorityError.
// Two independently built implementations of equal rank for the same type
// must never coexist.
var ErrDuplicateAuthority = errors.New("duplicate authority")

// DuplicateAuthorityError reports an equal-rank claim from a different
// origin than the current authority.
type DuplicateAuthorityError struct {
	Name           string
	Variant        variant.Backend
	ExistingOrigin string
	NewOrigin      string
}

func (e *DuplicateAuthorityError) Error() string {
	return fmt.Sprintf("duplicate %s authority for %q: origins %q and %q",
		e.Variant, e.Name, e.ExistingOrigin, e.NewOrigin)
}

func (e *DuplicateAuthorityError) Unwrap() error { return ErrDuplicateAuthority }

// Outcome is the result of a claim from the claimant's point of view.
type Outcome int

const (
	// Accepted means the claim is (or remains) authoritative for the name.
	Accepted Outcome = iota + 1
	// NonAuthoritative means the claim was recorded for bookkeeping but the
	// claimant must not treat its descriptor as authoritative for type
	// construction.
	NonAuthoritative
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case NonAuthoritative:
		return "non-authoritative"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Claim is one recorded arbitration claim for a name.
type Claim struct {
	Variant       variant.Backend
	Origin        string
	Authoritative bool
}

// Decision is the full result of a claim: the outcome for the claimant plus
// the previous authority when this claim superseded one.
type Decision struct {
	Outcome    Outcome
	Superseded *Claim
}

// Description is the read-only arbitration record for one name, for the
// diagnostic Describe call.
type Description struct {
	Name          string
	Authoritative *Claim
	// Claims is the ordered claim history, oldest first.
	Claims []Claim
}

// Registry owns the per-name authority decision. It does not own descriptor
// memory; callers hold descriptors in the descriptor store.
type Registry struct {
	mu     sync.RWMutex
	strict bool
	claims map[string][]*Claim
	// authority points at an element of the claim history.
	authority map[string]*Claim
}

// New creates an empty arbitration registry. With strict arbitration
// enabled, portable claims are recorded but never become authoritative, so a
// fast portable load can never win a name away from a slower native one;
// construction for such names stays pending until a native claim lands.
func New(strict bool) *Registry {
	return &Registry{
		strict:    strict,
		claims:    make(map[string][]*Claim),
		authority: make(map[string]*Claim),
	}
}

// Claim records a claim for name by origin at the given variant and decides
// authority against the current holder.
func (r *Registry) Claim(ctx context.Context, name string, v variant.Backend, origin string) (Decision, error) {
	if !v.Valid() {
		return Decision{}, fmt.Errorf("claim for %q: invalid variant %q", name, v)
	}
	if origin == "" {
		return Decision{}, fmt.Errorf("claim for %q: origin must not be empty", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	logger := ctxlog.FromContext(ctx)
	auth := r.authority[name]

	if auth != nil && auth.Variant == v {
		if auth.Origin == origin {
			// Idempotent re-claim.
			return Decision{Outcome: Accepted}, nil
		}
		return Decision{}, &DuplicateAuthorityError{
			Name:           name,
			Variant:        v,
			ExistingOrigin: auth.Origin,
			NewOrigin:      origin,
		}
	}

	claim := r.record(name, v, origin)

	if r.strict && v == variant.Portable {
		logger.Debug("Portable claim recorded without authority under strict arbitration.",
			"name", name, "origin", origin)
		return Decision{Outcome: NonAuthoritative}, nil
	}

	switch {
	case auth == nil:
		claim.Authoritative = true
		r.authority[name] = claim
		logger.Debug("Claim accepted.", "name", name, "variant", v.String(), "origin", origin)
		return Decision{Outcome: Accepted}, nil

	case v.Outranks(auth.Variant):
		prev := *auth
		auth.Authoritative = false
		claim.Authoritative = true
		r.authority[name] = claim
		logger.Debug("Claim superseded previous authority.",
			"name", name, "variant", v.String(), "origin", origin,
			"previous_variant", prev.Variant.String(), "previous_origin", prev.Origin)
		return Decision{Outcome: Accepted, Superseded: &prev}, nil

	default:
		// Strictly lower-ranked than the current authority: recorded, never
		// authoritative. Supersession is discovered lazily by the claimant if
		// it ever tries to construct the type.
		logger.Debug("Claim recorded as non-authoritative.", "name", name, "variant", v.String(), "origin", origin)
		return Decision{Outcome: NonAuthoritative}, nil
	}
}

// record appends a claim to the history unless an identical one exists.
func (r *Registry) record(name string, v variant.Backend, origin string) *Claim {
	for _, c := range r.claims[name] {
		if c.Variant == v && c.Origin == origin {
			return c
		}
	}
	c := &Claim{Variant: v, Origin: origin}
	r.claims[name] = append(r.claims[name], c)
	return c
}

// Authority returns the authoritative claim for a name, if any.
func (r *Registry) Authority(ctx context.Context, name string) (Claim, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auth := r.authority[name]
	if auth == nil {
		return Claim{}, false
	}
	return *auth, true
}

// Describe returns the full arbitration record for a name.
func (r *Registry) Describe(ctx context.Context, name string) (Description, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.claims[name]
	if len(history) == 0 {
		return Description{}, false
	}

	desc := Description{Name: name, Claims: make([]Claim, 0, len(history))}
	for _, c := range history {
		desc.Claims = append(desc.Claims, *c)
	}
	if auth := r.authority[name]; auth != nil {
		copied := *auth
		desc.Authoritative = &copied
	}
	return desc, true
}

// Retract removes every claim an origin holds on a name. It exists for the
// load sequencer's failure rollback: a unit that failed to load must leave no
// authoritative claims behind. When the retracted origin held authority, the
// oldest claim of the highest remaining rank is promoted.
func (r *Registry) Retract(ctx context.Context, name, origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := r.claims[name]
	if len(history) == 0 {
		return
	}

	kept := history[:0]
	retractedAuthority := false
	for _, c := range history {
		if c.Origin == origin {
			if c.Authoritative {
				retractedAuthority = true
			}
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		delete(r.claims, name)
	} else {
		r.claims[name] = kept
	}

	if !retractedAuthority {
		return
	}
	delete(r.authority, name)

	var best *Claim
	for _, c := range kept {
		if r.strict && c.Variant == variant.Portable {
			continue
		}
		if best == nil || c.Variant.Outranks(best.Variant) {
			best = c
		}
	}
	if best != nil {
		best.Authoritative = true
		r.authority[name] = best
		ctxlog.FromContext(ctx).Debug("Authority reassigned after retraction.",
			"name", name, "variant", best.Variant.String(), "origin", best.Origin)
	}
}
