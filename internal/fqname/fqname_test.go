package fqname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expectErr bool
		segments  []string
	}{
		{
			name:     "simple two-segment name",
			raw:      "pkg.Foo",
			segments: []string{"pkg", "Foo"},
		},
		{
			name:     "nested message name",
			raw:      "metrics.Sample.LabelSet",
			segments: []string{"metrics", "Sample", "LabelSet"},
		},
		{
			name:     "single segment",
			raw:      "Foo",
			segments: []string{"Foo"},
		},
		{
			name:     "underscores and digits",
			raw:      "metrics_v2.Sample1",
			segments: []string{"metrics_v2", "Sample1"},
		},
		{
			name:      "empty string",
			raw:       "",
			expectErr: true,
		},
		{
			name:      "empty segment",
			raw:       "pkg..Foo",
			expectErr: true,
		},
		{
			name:      "leading dot",
			raw:       ".pkg.Foo",
			expectErr: true,
		},
		{
			name:      "segment starting with digit",
			raw:       "pkg.1Foo",
			expectErr: true,
		},
		{
			name:      "hyphen is not a valid identifier character",
			raw:       "pkg.foo-bar",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := Parse(tc.raw)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.segments, parsed.Segments)
		})
	}
}

func TestName_RoundTrip(t *testing.T) {
	testNames := []string{
		"pkg.Foo",
		"metrics.Sample.LabelSet",
		"a.b.c.d",
	}

	for _, raw := range testNames {
		t.Run(raw, func(t *testing.T) {
			parsed, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, parsed.String())
		})
	}
}

func TestName_Package(t *testing.T) {
	parsed, err := Parse("metrics.Sample.LabelSet")
	require.NoError(t, err)
	assert.Equal(t, "metrics", parsed.Package())

	single, err := Parse("Sample")
	require.NoError(t, err)
	assert.Equal(t, "", single.Package())
}

func TestName_Parent(t *testing.T) {
	parsed, err := Parse("metrics.Sample.LabelSet")
	require.NoError(t, err)
	require.NotNil(t, parsed.Parent())
	assert.Equal(t, "metrics.Sample", parsed.Parent().String())

	single, err := Parse("Sample")
	require.NoError(t, err)
	assert.Nil(t, single.Parent())
}

func TestName_Equal(t *testing.T) {
	a, err := Parse("pkg.Foo")
	require.NoError(t, err)
	b, err := Parse("pkg.Foo")
	require.NoError(t, err)
	c, err := Parse("pkg.Bar")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))

	var nilName *Name
	assert.True(t, nilName.Equal(nil))
}
