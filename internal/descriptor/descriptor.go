// Package descriptor defines the structural metadata for one type: its
// fields, nested types, enum values, extension ranges, and the list of other
// fully-qualified names it references. A descriptor is independent of any
// backend and immutable once registered.
package descriptor

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vk/typegrid/internal/fqname"
)

// Kind distinguishes between message and enum descriptors.
type Kind int

const (
	// Message describes a composite type with fields.
	Message Kind = iota
	// Enum describes a named set of integer values.
	Enum
)

// FieldKind is the scalar or composite kind of a single field.
type FieldKind int

const (
	KindInt32 FieldKind = iota
	KindInt64
	KindUint32
	KindUint64
	KindBool
	KindString
	KindBytes
	KindFloat
	KindDouble
	KindEnum
	KindMessage
)

// Label is the cardinality of a field.
type Label int

const (
	LabelOptional Label = iota
	LabelRequired
	LabelRepeated
)

// Field is one field declaration inside a message descriptor. TypeName is the
// fully-qualified name of the referenced type and is set only for enum and
// message fields.
type Field struct {
	Name     string    `msgpack:"name"`
	Number   int32     `msgpack:"number"`
	Kind     FieldKind `msgpack:"kind"`
	Label    Label     `msgpack:"label"`
	TypeName string    `msgpack:"type_name,omitempty"`
}

// EnumValue is one named value inside an enum descriptor.
type EnumValue struct {
	Name   string `msgpack:"name"`
	Number int32  `msgpack:"number"`
}

// ExtensionRange is a half-open [Start, End) field-number range reserved for
// extensions.
type ExtensionRange struct {
	Start int32 `msgpack:"start"`
	End   int32 `msgpack:"end"`
}

// Descriptor is the structural definition of a single type, keyed by its
// fully-qualified name. References holds the fully-qualified names of every
// other descriptor this one depends on; it is kept sorted and deduplicated by
// Normalize so that structurally equal descriptors encode to identical bytes.
type Descriptor struct {
	Name            string           `msgpack:"name"`
	Kind            Kind             `msgpack:"kind"`
	Fields          []Field          `msgpack:"fields,omitempty"`
	EnumValues      []EnumValue      `msgpack:"enum_values,omitempty"`
	NestedTypes     []string         `msgpack:"nested_types,omitempty"`
	ExtensionRanges []ExtensionRange `msgpack:"extension_ranges,omitempty"`
	References      []string         `msgpack:"references,omitempty"`
}

// Normalize sorts and deduplicates the reference and nested-type lists.
// Field and enum-value order is declaration order and is preserved: two
// descriptors whose fields differ in order are structurally different.
func (d *Descriptor) Normalize() {
	d.References = sortedUnique(d.References)
	d.NestedTypes = sortedUnique(d.NestedTypes)
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	j := 0
	for i := 1; i < len(out); i++ {
		if out[i] != out[j] {
			j++
			out[j] = out[i]
		}
	}
	return out[:j+1]
}

// Validate checks the structural consistency of the descriptor: its name and
// every referenced name must parse, field numbers must be positive and
// unique, and enum descriptors must not carry fields.
func (d *Descriptor) Validate() error {
	if _, err := fqname.Parse(d.Name); err != nil {
		return fmt.Errorf("descriptor name: %w", err)
	}

	switch d.Kind {
	case Message:
		seen := make(map[int32]string, len(d.Fields))
		for _, f := range d.Fields {
			if f.Name == "" {
				return fmt.Errorf("descriptor %q: field with empty name", d.Name)
			}
			if f.Number <= 0 {
				return fmt.Errorf("descriptor %q: field %q has non-positive number %d", d.Name, f.Name, f.Number)
			}
			if prev, dup := seen[f.Number]; dup {
				return fmt.Errorf("descriptor %q: fields %q and %q share number %d", d.Name, prev, f.Name, f.Number)
			}
			seen[f.Number] = f.Name
			if (f.Kind == KindMessage || f.Kind == KindEnum) && f.TypeName == "" {
				return fmt.Errorf("descriptor %q: field %q requires a type name", d.Name, f.Name)
			}
			if f.TypeName != "" {
				if _, err := fqname.Parse(f.TypeName); err != nil {
					return fmt.Errorf("descriptor %q: field %q: %w", d.Name, f.Name, err)
				}
			}
		}
		for _, r := range d.ExtensionRanges {
			if r.Start <= 0 || r.End <= r.Start {
				return fmt.Errorf("descriptor %q: invalid extension range [%d, %d)", d.Name, r.Start, r.End)
			}
		}
	case Enum:
		if len(d.Fields) > 0 {
			return fmt.Errorf("descriptor %q: enum descriptors cannot declare fields", d.Name)
		}
		if len(d.EnumValues) == 0 {
			return fmt.Errorf("descriptor %q: enum descriptors require at least one value", d.Name)
		}
	default:
		return fmt.Errorf("descriptor %q: unknown kind %d", d.Name, d.Kind)
	}

	for _, ref := range d.References {
		if _, err := fqname.Parse(ref); err != nil {
			return fmt.Errorf("descriptor %q: reference: %w", d.Name, err)
		}
	}
	return nil
}

// Encode serializes the descriptor into its canonical byte form. The
// descriptor is normalized first, so structurally equal descriptors always
// produce identical bytes.
func (d *Descriptor) Encode() ([]byte, error) {
	d.Normalize()
	raw, err := msgpack.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor %q: %w", d.Name, err)
	}
	return raw, nil
}

// Decode parses a descriptor from its canonical byte form and validates it.
func Decode(raw []byte) (*Descriptor, error) {
	var d Descriptor
	if err := msgpack.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.Normalize()
	return &d, nil
}

// Fingerprint returns a stable hex digest of the canonical encoding.
// Fingerprint equality is the definition of structural equality used by the
// descriptor store's idempotency check.
func (d *Descriptor) Fingerprint() (string, error) {
	raw, err := d.Encode()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Diff returns a human-readable structural diff between two descriptors, for
// conflict diagnostics. It returns the empty string when they are equal.
func Diff(a, b *Descriptor) string {
	a.Normalize()
	b.Normalize()
	return cmp.Diff(a, b)
}
