// Package inmemorydesc provides a thread-safe, in-memory implementation of
// the descstore.Store interface. Descriptor sets are small and loads are
// rare, so a single RWMutex over two maps is sufficient.
package inmemorydesc

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/typegrid/internal/ctxlog"
	"github.com/vk/typegrid/internal/descriptor"
	"github.com/vk/typegrid/internal/descstore"
)

// Store implements descstore.Store using a map and a mutex for thread-safe
// concurrent access. Entries are never removed.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*descstore.Entry
}

// New creates a new, empty in-memory descriptor store.
func New() descstore.Store {
	return &Store{
		entries: make(map[string]*descstore.Entry),
	}
}

// Register adds a descriptor to the store, or returns the existing entry for
// a byte-identical re-registration.
func (s *Store) Register(ctx context.Context, d *descriptor.Descriptor, origin string) (*descstore.Entry, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	fp, err := d.Fingerprint()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[d.Name]; ok {
		if existing.Fingerprint == fp {
			// Re-registering identical content is idempotent; this is the
			// normal case for diamond-shaped unit dependencies.
			return existing, nil
		}
		return nil, &descstore.ConflictError{
			Name:           d.Name,
			ExistingOrigin: existing.Origin,
			NewOrigin:      origin,
			Diff:           descriptor.Diff(existing.Descriptor, d),
		}
	}

	entry := &descstore.Entry{
		Descriptor:  d,
		Fingerprint: fp,
		Origin:      origin,
	}
	s.entries[d.Name] = entry
	ctxlog.FromContext(ctx).Debug("Descriptor registered.", "name", d.Name, "origin", origin)
	return entry, nil
}

// Lookup retrieves a single entry by fully-qualified name.
func (s *Store) Lookup(ctx context.Context, name string) (*descstore.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[name]
	return entry, ok
}

// AllNames returns a sorted snapshot of every registered name.
func (s *Store) AllNames(ctx context.Context) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
