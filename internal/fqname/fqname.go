package fqname

import (
	"fmt"
	"regexp"
	"strings"
)

// segmentRegex matches a single segment of a fully-qualified name, e.g.
// `LabelSet` or `metrics_v2`.
var segmentRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Name is the structured representation of a fully-qualified type name.
// It is modeled as a path of identifier segments.
type Name struct {
	Segments []string
}

// Parse creates a new Name by parsing its canonical string representation.
func Parse(raw string) (*Name, error) {
	if raw == "" {
		return nil, fmt.Errorf("fully-qualified name cannot be empty")
	}

	name := &Name{}
	for _, segment := range strings.Split(raw, ".") {
		if segment == "" {
			return nil, fmt.Errorf("fully-qualified name %q contains empty segment", raw)
		}
		if !segmentRegex.MatchString(segment) {
			return nil, fmt.Errorf("invalid name segment: %q", segment)
		}
		name.Segments = append(name.Segments, segment)
	}

	return name, nil
}

// String serializes the Name into its canonical dot-separated representation.
func (n *Name) String() string {
	if n == nil {
		return ""
	}
	return strings.Join(n.Segments, ".")
}

// Package returns the leading package segment of the name, or the empty
// string for a single-segment name.
func (n *Name) Package() string {
	if n == nil || len(n.Segments) < 2 {
		return ""
	}
	return n.Segments[0]
}

// Parent returns the name with its last segment removed, or nil for a
// single-segment name. For a nested message this is the enclosing type.
func (n *Name) Parent() *Name {
	if n == nil || len(n.Segments) < 2 {
		return nil
	}
	return &Name{Segments: n.Segments[:len(n.Segments)-1]}
}

// Equal checks for deep equality between two Name pointers.
func (n *Name) Equal(other *Name) bool {
	if n == nil || other == nil {
		return n == other
	}
	if len(n.Segments) != len(other.Segments) {
		return false
	}
	for i, s := range n.Segments {
		if other.Segments[i] != s {
			return false
		}
	}
	return true
}
