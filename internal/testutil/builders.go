package testutil

import (
	"github.com/vk/typegrid/internal/descriptor"
	"github.com/vk/typegrid/internal/sequencer"
	"github.com/vk/typegrid/internal/variant"
)

// Message builds a minimal message descriptor with one scalar field and the
// given cross-type references.
func Message(name string, refs ...string) *descriptor.Descriptor {
	d := &descriptor.Descriptor{
		Name: name,
		Kind: descriptor.Message,
		Fields: []descriptor.Field{
			{Name: "id", Number: 1, Kind: descriptor.KindInt64},
		},
		References: refs,
	}
	for i, ref := range refs {
		d.Fields = append(d.Fields, descriptor.Field{
			Name:     "ref_" + string(rune('a'+i)),
			Number:   int32(i + 2),
			Kind:     descriptor.KindMessage,
			TypeName: ref,
		})
	}
	return d
}

// Enum builds an enum descriptor whose values are numbered in declaration
// order starting at zero.
func Enum(name string, values ...string) *descriptor.Descriptor {
	d := &descriptor.Descriptor{
		Name: name,
		Kind: descriptor.Enum,
	}
	for i, v := range values {
		d.EnumValues = append(d.EnumValues, descriptor.EnumValue{
			Name:   v,
			Number: int32(i),
		})
	}
	return d
}

// Unit bundles descriptors into a loadable unit.
func Unit(origin string, backend variant.Backend, descs ...*descriptor.Descriptor) sequencer.Unit {
	return sequencer.Unit{
		Origin:      origin,
		Variant:     backend,
		Descriptors: descs,
	}
}
