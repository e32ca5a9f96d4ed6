// Package portfolio provides aggregation functions over positions.
package portfolio

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Sum adds up every input value, in specification order, and reports the total under each declared
// output, typically a portfolio present value over its positions.
func Sum(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
	specs := make([]value.Specification, 0, len(inv.Inputs))
	for spec := range inv.Inputs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].String() < specs[j].String() })

	var total float64
	for _, spec := range specs {
		f, err := registry.ToFloat(inv.Inputs[spec])
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", spec, err)
		}
		total += f
	}
	out := make(map[string]any, len(inv.Outputs))
	for _, spec := range inv.Outputs {
		out[spec.Name] = total
	}
	return out, nil
}

// Register registers the invokers with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterInvoker("portfolio.Sum", registry.InvokerFunc(Sum))
}
