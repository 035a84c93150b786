package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/typegrid/internal/variant"
)

// Sentinel errors for the two recoverable resolution outcomes and the one
// fatal construction-time failure.
var (
	// ErrNotFound means no unit has registered the requested name. The
	// caller may retry after loading more units.
	ErrNotFound = errors.New("type not found")
	// ErrPending means the name is registered but not yet constructible.
	// The caller should await further unit loads and retry.
	ErrPending = errors.New("type not ready")
	// ErrIncompleteNativeLinkage means a generated-native type depends on a
	// type that is not native-bound. This is a linkage bug, never silently
	// downgraded to a portable fallback.
	ErrIncompleteNativeLinkage = errors.New("incomplete native linkage")
)

// NotFoundError reports a lookup for an unregistered name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("type %q is not registered", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// PendingError reports a lookup for a registered name whose dependencies are
// not yet satisfied. Missing lists the unregistered names blocking it, when
// known.
type PendingError struct {
	Name    string
	Missing []string
}

func (e *PendingError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("type %q is registered but not yet constructible", e.Name)
	}
	return fmt.Sprintf("type %q is waiting on unregistered dependencies: %s",
		e.Name, strings.Join(e.Missing, ", "))
}

func (e *PendingError) Unwrap() error { return ErrPending }

// LinkageError reports a generated-native type whose dependency closure
// includes a non-native binding.
type LinkageError struct {
	Name              string
	Dependency        string
	DependencyVariant variant.Backend
}

func (e *LinkageError) Error() string {
	return fmt.Sprintf("generated-native type %q depends on %q which is bound to %s",
		e.Name, e.Dependency, e.DependencyVariant)
}

func (e *LinkageError) Unwrap() error { return ErrIncompleteNativeLinkage }
