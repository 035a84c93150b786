package integration_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/typegrid/internal/arbiter"
	"github.com/vk/typegrid/internal/sequencer"
	"github.com/vk/typegrid/internal/testutil"
	"github.com/vk/typegrid/internal/variant"
)

func TestDuplicateAuthority_EqualRankSecondUnitIsRejectedWhole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// --- Arrange ---
	seq := sequencer.New(sequencer.Options{})
	first := testutil.Unit("gen-a", variant.GeneratedNative,
		testutil.Message("shop.Order"),
		testutil.Message("shop.Invoice"))
	second := testutil.Unit("gen-b", variant.GeneratedNative,
		testutil.Message("shop.Shipment"),
		testutil.Message("shop.Order"))

	_, err := seq.LoadUnit(ctx, first)
	require.NoError(t, err)

	// --- Act ---
	_, err = seq.LoadUnit(ctx, second)

	// --- Assert ---
	require.Error(t, err)
	require.ErrorIs(t, err, arbiter.ErrDuplicateAuthority)

	// The failed load must not leave partial state behind: the name that
	// did not collide is absent and the original authority is intact.
	_, ok := seq.Describe(ctx, "shop.Shipment")
	assert.False(t, ok)

	report, ok := seq.Describe(ctx, "shop.Order")
	require.True(t, ok)
	require.NotNil(t, report.Authoritative)
	assert.Equal(t, "gen-a", report.Authoritative.Origin)

	handle, err := seq.RequestType(ctx, "shop.Order")
	require.NoError(t, err)
	assert.Equal(t, "gen-a", handle.Origin())
}
