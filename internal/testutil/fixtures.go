package testutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
	"github.com/vk/viewgrid/modules/portfolio"
	"github.com/vk/viewgrid/modules/rates"
)

// Target types of the fixture.
const (
	Swap      value.TargetType = "SWAP"
	Curve     value.TargetType = "CURVE"
	Portfolio value.TargetType = "PORTFOLIO"
)

// Fixture function ids.
const (
	SwapPV      = "swap-pv"
	CurveDF     = "curve-df"
	PortfolioPV = "portfolio-pv"
)

// Target parses a "TYPE~ID" target, panicking on malformed input.
func Target(s string) value.Target {
	t, err := value.ParseTarget(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Req returns an unconstrained requirement.
func Req(target, name string) value.Requirement {
	return value.NewRequirement(Target(target), name, value.Properties{})
}

// Leaf returns an unconstrained market-data leaf specification.
func Leaf(target, name string) value.Specification {
	return marketdata.Leaf(Target(target), name, value.Properties{})
}

// SwapTargets returns the fixture targets: three swaps on two curves and a
// portfolio holding all three.
//
//	SWAP~A  notional 1,000,000  fixed 5%  on CURVE~X
//	SWAP~B  notional 2,000,000  fixed 4%  on CURVE~Y
//	SWAP~C  notional   500,000  fixed 3%  on CURVE~X
func SwapTargets() value.Targets {
	return value.Targets{
		Target("SWAP~A"):      {rates.AttrNotional: "1000000", rates.AttrFixedRate: "0.05", "curve": "X"},
		Target("SWAP~B"):      {rates.AttrNotional: "2000000", rates.AttrFixedRate: "0.04", "curve": "Y"},
		Target("SWAP~C"):      {rates.AttrNotional: "500000", rates.AttrFixedRate: "0.03", "curve": "X"},
		Target("CURVE~X"):     {rates.AttrTenor: "1"},
		Target("CURVE~Y"):     {rates.AttrTenor: "2"},
		Target("PORTFOLIO~P"): {"positions": "SWAP~A,SWAP~B,SWAP~C"},
	}
}

// SwapRegistry returns a validated registry with the rates and portfolio
// modules and three functions:
//
//	swap-pv       PresentValue(SWAP)      <- DiscountFactor(CURVE~<curve>)
//	curve-df      DiscountFactor(CURVE)   <- ZeroRate(CURVE)
//	portfolio-pv  PresentValue(PORTFOLIO) <- PresentValue(<each position>)
func SwapRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	(&rates.Module{}).Register(r)
	(&portfolio.Module{}).Register(r)

	require.NoError(t, r.Register(&registry.Descriptor{
		ID:         SwapPV,
		TargetType: Swap,
		Outputs:    []registry.Output{{Name: rates.PresentValue}},
		Inputs: func(_ value.Target, attrs value.Attributes) ([]value.Requirement, error) {
			curve := value.NewTarget(Curve, attrs["curve"])
			return []value.Requirement{value.NewRequirement(curve, rates.DiscountFactor, value.Properties{})}, nil
		},
		Implementation: "rates.SwapPresentValue",
	}))
	require.NoError(t, r.Register(&registry.Descriptor{
		ID:         CurveDF,
		TargetType: Curve,
		Outputs:    []registry.Output{{Name: rates.DiscountFactor}},
		Inputs: func(target value.Target, _ value.Attributes) ([]value.Requirement, error) {
			return []value.Requirement{value.NewRequirement(target, rates.ZeroRate, value.Properties{})}, nil
		},
		Implementation: "rates.DiscountFactorFromRate",
	}))
	require.NoError(t, r.Register(&registry.Descriptor{
		ID:         PortfolioPV,
		TargetType: Portfolio,
		Outputs:    []registry.Output{{Name: rates.PresentValue}},
		Inputs: func(_ value.Target, attrs value.Attributes) ([]value.Requirement, error) {
			var reqs []value.Requirement
			for _, p := range strings.Split(attrs["positions"], ",") {
				pos, err := value.ParseTarget(p)
				if err != nil {
					return nil, err
				}
				reqs = append(reqs, value.NewRequirement(pos, rates.PresentValue, value.Properties{}))
			}
			return reqs, nil
		},
		Implementation: "portfolio.Sum",
	}))
	return r
}

// DiscountFactors returns a snapshot holding discount factor leaves for both
// fixture curves.
func DiscountFactors(x, y float64) *marketdata.Snapshot {
	return marketdata.NewSnapshot(map[value.Specification]any{
		Leaf("CURVE~X", rates.DiscountFactor): x,
		Leaf("CURVE~Y", rates.DiscountFactor): y,
	})
}
