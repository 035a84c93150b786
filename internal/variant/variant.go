// Package variant defines the backend implementation variants a type may be
// bound to, and the strict preference order used for arbitration between
// them: GeneratedNative > ReflectiveNative > Portable.
package variant

import "fmt"

// Backend identifies which implementation strategy supplies a type's runtime
// behavior. The zero value means no variant has been claimed yet and ranks
// below every real variant.
type Backend int

const (
	// None is the absent variant; it never wins arbitration.
	None Backend = iota
	// Portable is the pure reference implementation.
	Portable
	// ReflectiveNative is the runtime-reflective compiled implementation.
	ReflectiveNative
	// GeneratedNative is the compile-time-generated compiled implementation.
	GeneratedNative
)

var names = map[Backend]string{
	None:             "none",
	Portable:         "portable",
	ReflectiveNative: "reflective-native",
	GeneratedNative:  "generated-native",
}

// String returns the canonical lowercase name of the variant.
func (b Backend) String() string {
	if name, ok := names[b]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// Valid reports whether b is one of the three claimable variants.
func (b Backend) Valid() bool {
	return b == Portable || b == ReflectiveNative || b == GeneratedNative
}

// Outranks reports whether b is strictly preferred over other.
func (b Backend) Outranks(other Backend) bool {
	return b > other
}

// Native reports whether the variant is backed by compiled code. A
// generated-native type may depend on any native-bound type, but never on a
// portable-bound one.
func (b Backend) Native() bool {
	return b == ReflectiveNative || b == GeneratedNative
}

// Parse converts a canonical variant name into a Backend.
func Parse(s string) (Backend, error) {
	for b, name := range names {
		if b != None && name == s {
			return b, nil
		}
	}
	return None, fmt.Errorf("unknown backend variant: %q", s)
}
