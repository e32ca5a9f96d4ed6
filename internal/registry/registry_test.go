package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/viewgrid/internal/ctxlog"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/value"
)

func noop(context.Context, *Invocation) (map[string]any, error) { return nil, nil }

func pvFunction(id string, priority int, props map[string]string) *Descriptor {
	return &Descriptor{
		ID:             id,
		TargetType:     "SWAP",
		Outputs:        []Output{{Name: "PresentValue", Properties: value.NewProperties(props)}},
		Priority:       priority,
		Implementation: "noop",
	}
}

func TestResolve_PriorityThenRegistrationOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(pvFunction("low", 0, map[string]string{"method": "a"})))
	require.NoError(t, r.Register(pvFunction("high", 10, map[string]string{"method": "b"})))
	require.NoError(t, r.Register(pvFunction("low-later", 0, map[string]string{"method": "c"})))

	got := r.Resolve("SWAP", "PresentValue")
	ids := make([]string, len(got))
	for i, d := range got {
		ids[i] = d.ID
	}
	assert.Equal(t, []string{"high", "low", "low-later"}, ids)

	assert.Empty(t, r.Resolve("CURVE", "PresentValue"))
	assert.Empty(t, r.Resolve("SWAP", "Delta"))
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(pvFunction("pv", 0, nil)))

	err := r.Register(pvFunction("pv", 1, nil))
	require.Error(t, err)
	assert.True(t, cerrors.ErrDuplicateFunction.Equal(err))
	assert.Panics(t, func() { r.MustRegister(pvFunction("pv", 2, nil)) })
}

func TestDescriptor_Produces(t *testing.T) {
	d := pvFunction("pv", 0, map[string]string{"currency": "USD"})
	swap := value.NewTarget("SWAP", "A")

	out, ok := d.Produces(value.NewRequirement(swap, "PresentValue", value.NewProperties(map[string]string{"currency": value.Wildcard})))
	require.True(t, ok)
	assert.Equal(t, "PresentValue", out.Name)

	_, ok = d.Produces(value.NewRequirement(swap, "PresentValue", value.NewProperties(map[string]string{"currency": "EUR"})))
	assert.False(t, ok)
	_, ok = d.Produces(value.NewRequirement(value.NewTarget("CURVE", "X"), "PresentValue", value.Properties{}))
	assert.False(t, ok)

	specs := d.Specifications(swap)
	require.Len(t, specs, 1)
	assert.Equal(t, "pv", specs[0].FunctionID)
	assert.Equal(t, "pv", d.AffinityKey())

	reqs, err := d.Requirements(swap, nil)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestInvokers(t *testing.T) {
	r := New()
	r.RegisterInvoker("noop", InvokerFunc(noop))
	require.NoError(t, r.Register(pvFunction("pv", 0, nil)))

	_, ok := r.Invoker("noop")
	assert.True(t, ok)
	_, ok = r.InvokerFor("pv")
	assert.True(t, ok)
	_, ok = r.InvokerFor("missing")
	assert.False(t, ok)

	assert.Panics(t, func() { r.RegisterInvoker("noop", InvokerFunc(noop)) })
}

func TestInvocation_Inputs(t *testing.T) {
	curve := value.NewTarget("CURVE", "X")
	df := value.NewSpecification(curve, "DiscountFactor", value.Properties{}, "MarketData")
	inv := &Invocation{Inputs: map[value.Specification]any{df: 0.98}}

	f, err := inv.Float("DiscountFactor")
	require.NoError(t, err)
	assert.Equal(t, 0.98, f)

	_, err = inv.Float("ZeroRate")
	assert.Error(t, err)
	assert.Len(t, inv.Values("DiscountFactor"), 1)

	_, err = ToFloat("0.98")
	assert.Error(t, err)
}

func TestValidateRegistry(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())

	t.Run("valid", func(t *testing.T) {
		r := New()
		r.RegisterInvoker("noop", InvokerFunc(noop))
		require.NoError(t, r.Register(pvFunction("a", 0, map[string]string{"method": "a"})))
		require.NoError(t, r.Register(pvFunction("b", 0, map[string]string{"method": "b"})))
		require.NoError(t, r.Register(pvFunction("c", 1, map[string]string{"method": "a"})))
		assert.NoError(t, r.ValidateRegistry(ctx))
	})

	t.Run("ambiguous", func(t *testing.T) {
		r := New()
		r.RegisterInvoker("noop", InvokerFunc(noop))
		require.NoError(t, r.Register(pvFunction("a", 5, nil)))
		require.NoError(t, r.Register(pvFunction("b", 5, nil)))

		err := r.ValidateRegistry(ctx)
		require.Error(t, err)
		assert.True(t, cerrors.ErrAmbiguousFunction.Equal(err))
	})

	t.Run("unknown implementation", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(pvFunction("a", 0, nil)))

		err := r.ValidateRegistry(ctx)
		require.Error(t, err)
		assert.True(t, cerrors.ErrUnknownImplementation.Equal(err))
	})

	t.Run("several problems are listed", func(t *testing.T) {
		r := New()
		require.NoError(t, r.Register(pvFunction("a", 0, nil)))
		require.NoError(t, r.Register(pvFunction("b", 0, nil)))

		err := r.ValidateRegistry(ctx)
		require.Error(t, err)
		assert.True(t, cerrors.ErrUnknownImplementation.Equal(err))
		assert.Contains(t, err.Error(), "registry validation failed")
		assert.Contains(t, err.Error(), "same priority")
	})
}
