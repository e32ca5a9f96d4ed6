package rates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/viewgrid/internal/ctxlog"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
)

func TestSwapPresentValue(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	df := value.NewSpecification(value.NewTarget("CURVE", "X"), DiscountFactor, value.Properties{}, "MarketData")

	inv := &registry.Invocation{
		Target:     value.NewTarget("SWAP", "A"),
		Attributes: value.Attributes{AttrNotional: "1000000", AttrFixedRate: "0.05"},
		Inputs:     map[value.Specification]any{df: 0.98},
	}
	out, err := SwapPresentValue(ctx, inv)
	require.NoError(t, err)
	assert.InDelta(t, 49000.0, out[PresentValue], 1e-9)

	inv.Attributes = value.Attributes{AttrNotional: "1000000"}
	_, err = SwapPresentValue(ctx, inv)
	assert.Error(t, err)
}

func TestDiscountFactorFromRate(t *testing.T) {
	zr := value.NewSpecification(value.NewTarget("CURVE", "X"), ZeroRate, value.Properties{}, "MarketData")
	inv := &registry.Invocation{
		Attributes: value.Attributes{AttrTenor: "2"},
		Inputs:     map[value.Specification]any{zr: 0.05},
	}

	out, err := DiscountFactorFromRate(context.Background(), inv)
	require.NoError(t, err)
	assert.InDelta(t, 1/1.1, out[DiscountFactor], 1e-12)

	inv.Inputs = map[value.Specification]any{zr: -1.0}
	_, err = DiscountFactorFromRate(context.Background(), inv)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	r := registry.New()
	(&Module{}).Register(r)

	_, ok := r.Invoker("rates.SwapPresentValue")
	assert.True(t, ok)
	_, ok = r.Invoker("rates.DiscountFactorFromRate")
	assert.True(t, ok)
}
