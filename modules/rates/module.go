// Package rates provides interest-rate pricing functions.
package rates

import (
	"context"
	"fmt"

	"github.com/vk/viewgrid/internal/ctxlog"
	"github.com/vk/viewgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Value and attribute names used by the functions of this package.
const (
	PresentValue   = "PresentValue"
	DiscountFactor = "DiscountFactor"
	ZeroRate       = "ZeroRate"

	AttrNotional  = "notional"
	AttrFixedRate = "fixed_rate"
	AttrTenor     = "tenor"
)

// SwapPresentValue prices a fixed leg as notional × fixed rate × discount
// factor.
func SwapPresentValue(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
	notional, err := inv.Attributes.Float(AttrNotional)
	if err != nil {
		return nil, err
	}
	fixed, err := inv.Attributes.Float(AttrFixedRate)
	if err != nil {
		return nil, err
	}
	df, err := inv.Float(DiscountFactor)
	if err != nil {
		return nil, err
	}

	pv := notional * fixed * df
	ctxlog.FromContext(ctx).Debug("Priced swap.", "target", inv.Target, "df", df, "pv", pv)
	return map[string]any{PresentValue: pv}, nil
}

// DiscountFactorFromRate derives a discount factor 1/(1+r·t) from a zero
// rate and the curve's tenor in years.
func DiscountFactorFromRate(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
	r, err := inv.Float(ZeroRate)
	if err != nil {
		return nil, err
	}
	t, err := inv.Attributes.Float(AttrTenor)
	if err != nil {
		return nil, err
	}
	denom := 1 + r*t
	if denom <= 0 {
		return nil, fmt.Errorf("rate %v over tenor %v gives a non-positive discount denominator", r, t)
	}
	return map[string]any{DiscountFactor: 1 / denom}, nil
}

// Register registers the invokers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterInvoker("rates.SwapPresentValue", registry.InvokerFunc(SwapPresentValue))
	r.RegisterInvoker("rates.DiscountFactorFromRate", registry.InvokerFunc(DiscountFactorFromRate))
}
