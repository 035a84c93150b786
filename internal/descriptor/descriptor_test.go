package descriptor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() *Descriptor {
	return &Descriptor{
		Name: "metrics.Sample",
		Kind: Message,
		Fields: []Field{
			{Name: "timestamp", Number: 1, Kind: KindInt64},
			{Name: "labels", Number: 2, Kind: KindMessage, Label: LabelRepeated, TypeName: "metrics.LabelSet"},
		},
		ExtensionRanges: []ExtensionRange{{Start: 100, End: 200}},
		References:      []string{"metrics.LabelSet"},
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(d *Descriptor)
		expectErr string
	}{
		{
			name:   "valid message",
			mutate: func(d *Descriptor) {},
		},
		{
			name:      "invalid name",
			mutate:    func(d *Descriptor) { d.Name = "metrics..Sample" },
			expectErr: "empty segment",
		},
		{
			name:      "duplicate field number",
			mutate:    func(d *Descriptor) { d.Fields[1].Number = 1 },
			expectErr: "share number",
		},
		{
			name:      "non-positive field number",
			mutate:    func(d *Descriptor) { d.Fields[0].Number = 0 },
			expectErr: "non-positive",
		},
		{
			name:      "message field without type name",
			mutate:    func(d *Descriptor) { d.Fields[1].TypeName = "" },
			expectErr: "requires a type name",
		},
		{
			name:      "invalid reference",
			mutate:    func(d *Descriptor) { d.References = []string{"bad..name"} },
			expectErr: "reference",
		},
		{
			name:      "invalid extension range",
			mutate:    func(d *Descriptor) { d.ExtensionRanges[0].End = 50 },
			expectErr: "extension range",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := sampleMessage()
			tc.mutate(d)
			err := d.Validate()
			if tc.expectErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectErr)
		})
	}
}

func TestValidate_Enum(t *testing.T) {
	e := &Descriptor{
		Name:       "metrics.Unit",
		Kind:       Enum,
		EnumValues: []EnumValue{{Name: "UNIT_UNSPECIFIED", Number: 0}},
	}
	require.NoError(t, e.Validate())

	empty := &Descriptor{Name: "metrics.Unit", Kind: Enum}
	require.Error(t, empty.Validate())

	withFields := &Descriptor{
		Name:       "metrics.Unit",
		Kind:       Enum,
		EnumValues: []EnumValue{{Name: "A", Number: 0}},
		Fields:     []Field{{Name: "x", Number: 1, Kind: KindBool}},
	}
	require.Error(t, withFields.Validate())
}

func TestEncodeDecode(t *testing.T) {
	d := sampleMessage()
	raw, err := d.Encode()
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, d, decoded)
}

func TestDecode_RejectsInvalid(t *testing.T) {
	d := sampleMessage()
	d.Fields[0].Number = -3
	raw, err := d.Encode()
	require.NoError(t, err)

	_, err = Decode(raw)
	require.Error(t, err)
}

func TestFingerprint_IgnoresReferenceOrder(t *testing.T) {
	a := sampleMessage()
	a.References = []string{"metrics.LabelSet", "metrics.Unit"}
	b := sampleMessage()
	b.References = []string{"metrics.Unit", "metrics.LabelSet", "metrics.Unit"}

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFingerprint_SensitiveToStructure(t *testing.T) {
	a := sampleMessage()
	b := sampleMessage()
	b.Fields = append(b.Fields, Field{Name: "weight", Number: 3, Kind: KindDouble})

	fpA, err := a.Fingerprint()
	require.NoError(t, err)
	fpB, err := b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fpA, fpB)
}

func TestDiff(t *testing.T) {
	a := sampleMessage()
	b := sampleMessage()
	assert.Empty(t, Diff(a, b))

	b.Fields = append(b.Fields, Field{Name: "weight", Number: 3, Kind: KindDouble})
	assert.NotEmpty(t, Diff(a, b))
}
