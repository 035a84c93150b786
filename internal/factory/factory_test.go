package factory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/typegrid/internal/arbiter"
	"github.com/vk/typegrid/internal/descriptor"
	"github.com/vk/typegrid/internal/descstore"
	"github.com/vk/typegrid/internal/inmemorydesc"
	"github.com/vk/typegrid/internal/resolver"
	"github.com/vk/typegrid/internal/variant"
)

type fixture struct {
	store descstore.Store
	arb   *arbiter.Registry
	res   *resolver.Resolver
	fac   *Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := inmemorydesc.New()
	arb := arbiter.New(false)
	res := resolver.New()
	return &fixture{store: store, arb: arb, res: res, fac: New(store, arb, res)}
}

func message(name string, refs ...string) *descriptor.Descriptor {
	return &descriptor.Descriptor{
		Name: name,
		Kind: descriptor.Message,
		Fields: []descriptor.Field{
			{Name: "id", Number: 1, Kind: descriptor.KindInt64},
		},
		References: refs,
	}
}

// loadUnit pushes a set of descriptors through store, arbiter, and resolver
// the way the sequencer would, without involving the sequencer itself.
func (fx *fixture) loadUnit(t *testing.T, origin string, v variant.Backend, descs ...*descriptor.Descriptor) {
	t.Helper()
	ctx := context.Background()
	members := make(map[string][]string, len(descs))
	for _, d := range descs {
		_, err := fx.store.Register(ctx, d, origin)
		require.NoError(t, err)
		_, err = fx.arb.Claim(ctx, d.Name, v, origin)
		require.NoError(t, err)
		members[d.Name] = d.References
	}
	require.NoError(t, fx.res.AddGroup(ctx, origin, members))
}

func TestRequestType_Unregistered(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.fac.RequestType(context.Background(), "pkg.Missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, StateUnregistered, fx.fac.StateOf(context.Background(), "pkg.Missing"))
}

func TestRequestType_ConstructsReadyType(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "unit-1", variant.Portable, message("pkg.Foo"))

	assert.Equal(t, StateConstructible, fx.fac.StateOf(ctx, "pkg.Foo"))
	assert.False(t, fx.fac.IsConstructed(ctx, "pkg.Foo"))

	typ, err := fx.fac.RequestType(ctx, "pkg.Foo")
	require.NoError(t, err)
	assert.Equal(t, "pkg.Foo", typ.Name())
	assert.Equal(t, variant.Portable, typ.Variant())
	assert.Equal(t, "unit-1", typ.Origin())

	assert.True(t, fx.fac.IsConstructed(ctx, "pkg.Foo"))
	assert.Equal(t, StateConstructed, fx.fac.StateOf(ctx, "pkg.Foo"))

	// Repeated requests return the same handle.
	again, err := fx.fac.RequestType(ctx, "pkg.Foo")
	require.NoError(t, err)
	assert.Same(t, typ, again)
}

func TestRequestType_PendingDependency(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "unit-1", variant.Portable, message("pkg.Sample", "pkg.LabelSet"))

	_, err := fx.fac.RequestType(ctx, "pkg.Sample")
	require.ErrorIs(t, err, ErrPending)

	var pending *PendingError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, []string{"pkg.LabelSet"}, pending.Missing)
	assert.Equal(t, StateDependenciesPending, fx.fac.StateOf(ctx, "pkg.Sample"))

	// The missing unit arrives; the same call now succeeds.
	fx.loadUnit(t, "unit-2", variant.Portable, message("pkg.LabelSet"))

	typ, err := fx.fac.RequestType(ctx, "pkg.Sample")
	require.NoError(t, err)
	assert.Equal(t, "pkg.Sample", typ.Name())
}

// A type's whole dependency closure is constructed before the requested
// handle is returned.
func TestRequestType_ConstructsDependenciesFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "unit-a", variant.Portable, message("pkg.A", "pkg.B"))
	fx.loadUnit(t, "unit-b", variant.Portable, message("pkg.B", "pkg.C"))
	fx.loadUnit(t, "unit-c", variant.Portable, message("pkg.C"))

	_, err := fx.fac.RequestType(ctx, "pkg.A")
	require.NoError(t, err)

	for _, name := range []string{"pkg.A", "pkg.B", "pkg.C"} {
		assert.True(t, fx.fac.IsConstructed(ctx, name), name)
	}
}

func TestRequestType_InUnitRecursion(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "unit-1", variant.Portable,
		message("pkg.Tree", "pkg.Node"),
		message("pkg.Node", "pkg.Tree"),
	)

	typ, err := fx.fac.RequestType(ctx, "pkg.Tree")
	require.NoError(t, err)
	assert.Equal(t, "pkg.Tree", typ.Name())
	assert.True(t, fx.fac.IsConstructed(ctx, "pkg.Node"))
}

func TestRequestType_CrossUnitCycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "unit-a", variant.Portable, message("pkg.A", "pkg.B"))
	fx.loadUnit(t, "unit-b", variant.Portable, message("pkg.B", "pkg.A"))

	_, err := fx.fac.RequestType(ctx, "pkg.A")
	require.ErrorIs(t, err, resolver.ErrCycleDetected)
}

func TestRequestType_IncompleteNativeLinkage(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "native-unit", variant.GeneratedNative, message("pkg.A", "pkg.B"))
	fx.loadUnit(t, "pure-unit", variant.Portable, message("pkg.B"))

	_, err := fx.fac.RequestType(ctx, "pkg.A")
	require.ErrorIs(t, err, ErrIncompleteNativeLinkage)

	var linkage *LinkageError
	require.ErrorAs(t, err, &linkage)
	assert.Equal(t, "pkg.A", linkage.Name)
	assert.Equal(t, "pkg.B", linkage.Dependency)
	assert.Equal(t, variant.Portable, linkage.DependencyVariant)

	// The failure is surfaced, not swallowed into a portable fallback.
	assert.False(t, fx.fac.IsConstructed(ctx, "pkg.A"))
}

func TestRequestType_NativeLinkageAcceptsReflectiveDependency(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "native-unit", variant.GeneratedNative, message("pkg.A", "pkg.B"))
	fx.loadUnit(t, "reflective-unit", variant.ReflectiveNative, message("pkg.B"))

	typ, err := fx.fac.RequestType(ctx, "pkg.A")
	require.NoError(t, err)
	assert.Equal(t, variant.GeneratedNative, typ.Variant())
}

func TestRequestType_RebindsAfterSupersession(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "pure-unit", variant.Portable, message("pkg.Foo"))

	portable, err := fx.fac.RequestType(ctx, "pkg.Foo")
	require.NoError(t, err)
	assert.Equal(t, variant.Portable, portable.Variant())

	// An identically structured generated-native unit supersedes; the
	// sequencer would invalidate the constructed binding.
	fx.loadUnit(t, "native-unit", variant.GeneratedNative, message("pkg.Foo"))
	fx.fac.Invalidate(ctx, "pkg.Foo")

	native, err := fx.fac.RequestType(ctx, "pkg.Foo")
	require.NoError(t, err)
	assert.Equal(t, variant.GeneratedNative, native.Variant())

	// The earlier handle is not retracted.
	assert.Equal(t, variant.Portable, portable.Variant())
}

func TestRequestType_NoAuthorityIsPending(t *testing.T) {
	store := inmemorydesc.New()
	arb := arbiter.New(true) // strict: portable claims never take authority
	res := resolver.New()
	fac := New(store, arb, res)
	ctx := context.Background()

	d := message("pkg.Foo")
	_, err := store.Register(ctx, d, "pure-unit")
	require.NoError(t, err)
	_, err = arb.Claim(ctx, "pkg.Foo", variant.Portable, "pure-unit")
	require.NoError(t, err)
	require.NoError(t, res.AddGroup(ctx, "pure-unit", map[string][]string{"pkg.Foo": nil}))

	_, err = fac.RequestType(ctx, "pkg.Foo")
	require.ErrorIs(t, err, ErrPending)
	assert.Equal(t, StateRegistered, fac.StateOf(ctx, "pkg.Foo"))
}

// Concurrent requests for the same name coalesce onto one construction and
// all observe the same handle.
func TestRequestType_ConcurrentCallersCoalesce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.loadUnit(t, "unit-1", variant.Portable, message("pkg.Foo"))

	numGoroutines := 50
	results := make([]*Type, numGoroutines)
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			typ, err := fx.fac.RequestType(ctx, "pkg.Foo")
			assert.NoError(t, err)
			results[i] = typ
		}(i)
	}
	wg.Wait()

	for i := 1; i < numGoroutines; i++ {
		assert.Same(t, results[0], results[i], fmt.Sprintf("caller %d", i))
	}
}
