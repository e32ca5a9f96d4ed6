package config

import (
	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
)

// View is the unified, format-agnostic representation of a view definition.
type View struct {
	Targets      value.Targets
	Functions    []*Function
	Requirements []value.Requirement
	MarketData   map[value.Specification]any
}

// NewView returns an empty view.
func NewView() *View {
	return &View{
		Targets:    make(value.Targets),
		MarketData: make(map[value.Specification]any),
	}
}

// Function is the format-agnostic representation of a `function` block.
type Function struct {
	ID             string
	TargetType     value.TargetType
	Implementation string
	Priority       int
	Affinity       string
	Cost           int
	Outputs        []Output
	Inputs         []Input
}

// Output is one declared output of a function.
type Output struct {
	Name       string
	Properties value.Properties
}

// Input is one declared input of a function.
type Input struct {
	Name        string
	Constraints value.Properties
	// Target is nil when the input is on the function's own target.
	Target TargetExpr
}

// Descriptor converts f into a registry descriptor.
func (f *Function) Descriptor() *registry.Descriptor {
	outputs := make([]registry.Output, len(f.Outputs))
	for i, out := range f.Outputs {
		outputs[i] = registry.Output{Name: out.Name, Properties: out.Properties}
	}

	inputs := append([]Input(nil), f.Inputs...)
	d := &registry.Descriptor{
		ID:             f.ID,
		TargetType:     f.TargetType,
		Outputs:        outputs,
		Inputs:         registry.NoInputs,
		Priority:       f.Priority,
		Affinity:       f.Affinity,
		Cost:           f.Cost,
		Implementation: f.Implementation,
	}
	if len(inputs) > 0 {
		d.Inputs = func(target value.Target, attrs value.Attributes) ([]value.Requirement, error) {
			reqs := make([]value.Requirement, 0, len(inputs))
			for _, in := range inputs {
				on := []value.Target{target}
				if in.Target != nil {
					ts, err := in.Target.Evaluate(target, attrs)
					if err != nil {
						return nil, errors.Annotatef(err, "input %s", in.Name)
					}
					on = ts
				}
				for _, t := range on {
					reqs = append(reqs, value.NewRequirement(t, in.Name, in.Constraints))
				}
			}
			return reqs, nil
		}
	}
	return d
}
