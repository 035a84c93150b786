// Package descstore defines the interface for the process-wide repository of
// type descriptors.
//
// # Why Descriptor Store Exists
//
// The store isolates the **immutable structural metadata** (what a type looks
// like) from the **arbitration state** (which backend owns it, managed by the
// arbiter) and from the **construction state** (whether a usable type object
// exists yet, managed by the factory).
//
// This separation provides several architectural benefits:
//   - **Clarity:** Structural lookups don't mix with authority decisions
//   - **Thread-Safety:** Read-heavy lookups use RLocks without contention from rare load events
//   - **Testability:** Structural conflict detection can be validated independently
//   - **Flexibility:** Storage backends can be swapped without touching arbitration
//
// # Lifecycle and Usage
//
// The store is:
//  1. Created once per registry instance (singleton-scoped in production,
//     fresh per test case)
//  2. Appended to by the load sequencer as units arrive
//  3. Read by the resolver, factory, and diagnostic calls
//  4. Never compacted or torn down; entries live for the process lifetime
//
// Registration is append-only: entries are never removed or mutated, only the
// set grows.
package descstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/typegrid/internal/descriptor"
)

// ErrConflictingDescriptor is the sentinel wrapped by ConflictError. Two
// registrations for the same name with structurally different content signal
// a build inconsistency (e.g. mismatched schema versions across linked units)
// and are never silently resolved.
var ErrConflictingDescriptor = errors.New("conflicting descriptor")

// ConflictError reports a structural mismatch between an existing entry and a
// new registration under the same name.
type ConflictError struct {
	Name           string
	ExistingOrigin string
	NewOrigin      string
	Diff           string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting descriptor for %q: origin %q disagrees with origin %q:\n%s",
		e.Name, e.NewOrigin, e.ExistingOrigin, e.Diff)
}

func (e *ConflictError) Unwrap() error { return ErrConflictingDescriptor }

// Entry is one registered descriptor together with the bookkeeping the rest
// of the registry needs: its canonical fingerprint and the origin that first
// supplied it.
type Entry struct {
	Descriptor  *descriptor.Descriptor
	Fingerprint string
	Origin      string
}

// Name returns the fully-qualified name the entry is registered under.
func (e *Entry) Name() string {
	return e.Descriptor.Name
}

// Store is the interface for the append-only descriptor repository.
//
// Implementations MUST be thread-safe: load events and steady-state lookups
// arrive on arbitrary goroutines.
type Store interface {
	// Register adds a descriptor under its fully-qualified name. It is
	// idempotent for byte-identical re-registrations (the existing entry is
	// returned) and fails with a ConflictError when the name is already
	// bound to structurally different content.
	Register(ctx context.Context, d *descriptor.Descriptor, origin string) (*Entry, error)

	// Lookup retrieves the entry for a fully-qualified name.
	Lookup(ctx context.Context, name string) (*Entry, bool)

	// AllNames returns a sorted, snapshot-consistent slice of every
	// registered name.
	AllNames(ctx context.Context) []string
}
