// Package manifest loads unit definitions from .hcl files. A manifest file
// declares one or more units, each carrying the backend variant its
// implementation supplies and the messages and enums it registers:
//
//	unit "metrics-native" {
//	  variant = "generated-native"
//
//	  message "metrics.Sample" {
//	    field "timestamp" {
//	      number = 1
//	      kind   = "int64"
//	    }
//	    field "labels" {
//	      number = 2
//	      kind   = "message"
//	      type   = "metrics.LabelSet"
//	      label  = "repeated"
//	    }
//	  }
//	}
//
// Manifests are the file-based feed for the CLI and the test harness;
// library callers construct descriptors directly.
package manifest

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/typegrid/internal/descriptor"
	"github.com/vk/typegrid/internal/fqname"
	"github.com/vk/typegrid/internal/sequencer"
	"github.com/vk/typegrid/internal/variant"
)

// hclFile is the top-level structure of a manifest file for decoding.
type hclFile struct {
	Units []*hclUnit `hcl:"unit,block"`
}

type hclUnit struct {
	Origin   string        `hcl:"origin,label" validate:"required"`
	Variant  string        `hcl:"variant" validate:"required,oneof=portable reflective-native generated-native"`
	Messages []*hclMessage `hcl:"message,block" validate:"dive"`
	Enums    []*hclEnum    `hcl:"enum,block" validate:"dive"`
}

type hclMessage struct {
	Name            string         `hcl:"name,label" validate:"required"`
	Fields          []*hclField    `hcl:"field,block" validate:"dive"`
	ExtensionRanges []*hclRange    `hcl:"extension_range,block" validate:"dive"`
	DependsOn       hcl.Expression `hcl:"depends_on,optional" validate:"-"`
}

type hclField struct {
	Name   string `hcl:"name,label" validate:"required"`
	Number int    `hcl:"number" validate:"gt=0"`
	Kind   string `hcl:"kind" validate:"required,oneof=int32 int64 uint32 uint64 bool string bytes float double enum message"`
	Label  string `hcl:"label,optional" validate:"omitempty,oneof=optional required repeated"`
	Type   string `hcl:"type,optional"`
}

type hclRange struct {
	Start int `hcl:"start" validate:"gt=0"`
	End   int `hcl:"end" validate:"gtfield=Start"`
}

type hclEnum struct {
	Name   string          `hcl:"name,label" validate:"required"`
	Values []*hclEnumValue `hcl:"value,block" validate:"min=1,dive"`
}

type hclEnumValue struct {
	Name   string `hcl:"name,label" validate:"required"`
	Number int    `hcl:"number"`
}

var validate = validator.New()

var fieldKinds = map[string]descriptor.FieldKind{
	"int32":   descriptor.KindInt32,
	"int64":   descriptor.KindInt64,
	"uint32":  descriptor.KindUint32,
	"uint64":  descriptor.KindUint64,
	"bool":    descriptor.KindBool,
	"string":  descriptor.KindString,
	"bytes":   descriptor.KindBytes,
	"float":   descriptor.KindFloat,
	"double":  descriptor.KindDouble,
	"enum":    descriptor.KindEnum,
	"message": descriptor.KindMessage,
}

var fieldLabels = map[string]descriptor.Label{
	"":         descriptor.LabelOptional,
	"optional": descriptor.LabelOptional,
	"required": descriptor.LabelRequired,
	"repeated": descriptor.LabelRepeated,
}

// toUnit converts one decoded unit block into a loadable unit.
func (u *hclUnit) toUnit(ctx context.Context, filePath string) (sequencer.Unit, error) {
	if err := validate.Struct(u); err != nil {
		return sequencer.Unit{}, fmt.Errorf("invalid unit %q in %s: %w", u.Origin, filePath, err)
	}

	v, err := variant.Parse(u.Variant)
	if err != nil {
		return sequencer.Unit{}, fmt.Errorf("unit %q in %s: %w", u.Origin, filePath, err)
	}

	declared := make(map[string]*descriptor.Descriptor)
	var descs []*descriptor.Descriptor

	for _, m := range u.Messages {
		d, err := m.toDescriptor()
		if err != nil {
			return sequencer.Unit{}, fmt.Errorf("unit %q in %s: %w", u.Origin, filePath, err)
		}
		declared[d.Name] = d
		descs = append(descs, d)
	}
	for _, e := range u.Enums {
		d := e.toDescriptor()
		declared[d.Name] = d
		descs = append(descs, d)
	}

	// Nesting is implied by the name hierarchy: a declared type whose parent
	// is also declared in this unit is recorded as the parent's nested type.
	for name, d := range declared {
		parsed, err := fqname.Parse(name)
		if err != nil {
			return sequencer.Unit{}, fmt.Errorf("unit %q in %s: %w", u.Origin, filePath, err)
		}
		if parent := parsed.Parent(); parent != nil {
			if pd, ok := declared[parent.String()]; ok {
				pd.NestedTypes = append(pd.NestedTypes, name)
				d.References = append(d.References, parent.String())
			}
		}
	}

	for _, d := range descs {
		d.Normalize()
		if err := d.Validate(); err != nil {
			return sequencer.Unit{}, fmt.Errorf("unit %q in %s: %w", u.Origin, filePath, err)
		}
	}

	return sequencer.Unit{Origin: u.Origin, Variant: v, Descriptors: descs}, nil
}

func (m *hclMessage) toDescriptor() (*descriptor.Descriptor, error) {
	d := &descriptor.Descriptor{
		Name: m.Name,
		Kind: descriptor.Message,
	}

	for _, f := range m.Fields {
		kind := fieldKinds[f.Kind]
		d.Fields = append(d.Fields, descriptor.Field{
			Name:     f.Name,
			Number:   int32(f.Number),
			Kind:     kind,
			Label:    fieldLabels[f.Label],
			TypeName: f.Type,
		})
		if f.Type != "" {
			d.References = append(d.References, f.Type)
		}
	}
	for _, r := range m.ExtensionRanges {
		d.ExtensionRanges = append(d.ExtensionRanges, descriptor.ExtensionRange{
			Start: int32(r.Start),
			End:   int32(r.End),
		})
	}

	extra, err := evalDependsOn(m.DependsOn)
	if err != nil {
		return nil, fmt.Errorf("message %q: %w", m.Name, err)
	}
	d.References = append(d.References, extra...)

	return d, nil
}

func (e *hclEnum) toDescriptor() *descriptor.Descriptor {
	d := &descriptor.Descriptor{
		Name: e.Name,
		Kind: descriptor.Enum,
	}
	for _, v := range e.Values {
		d.EnumValues = append(d.EnumValues, descriptor.EnumValue{
			Name:   v.Name,
			Number: int32(v.Number),
		})
	}
	return d
}

// evalDependsOn evaluates an optional depends_on expression into a list of
// fully-qualified names. The expression must be a list of strings; it exists
// for ordering dependencies that no field reference implies.
func evalDependsOn(expr hcl.Expression) ([]string, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluating depends_on: %w", diags)
	}
	if val.IsNull() {
		return nil, nil
	}
	if !val.Type().IsTupleType() && !val.Type().IsListType() {
		return nil, fmt.Errorf("depends_on must be a list of type names, got %s", val.Type().FriendlyName())
	}

	var names []string
	for it := val.ElementIterator(); it.Next(); {
		_, el := it.Element()
		if el.Type() != cty.String {
			return nil, fmt.Errorf("depends_on entries must be strings, got %s", el.Type().FriendlyName())
		}
		names = append(names, el.AsString())
	}
	return names, nil
}
