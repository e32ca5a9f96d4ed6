package registry

import (
	"github.com/vk/viewgrid/internal/value"
)

// Output is one value a function declares it produces.
type Output struct {
	Name       string
	Properties value.Properties
}

// InputsFunc computes the requirements of a function applied to a concrete
// target. Inputs usually depend on target attributes, e.g. the curve a swap
// discounts on.
type InputsFunc func(target value.Target, attrs value.Attributes) ([]value.Requirement, error)

// NoInputs is the InputsFunc of a function with no inputs.
func NoInputs(value.Target, value.Attributes) ([]value.Requirement, error) {
	return nil, nil
}

// Descriptor describes one function: the target type it applies to, the
// outputs it produces, how to derive its inputs and which Go implementation
// executes it.
type Descriptor struct {
	ID         string
	TargetType value.TargetType
	Outputs    []Output
	Inputs     InputsFunc
	Priority   int
	// Affinity groups nodes the job builder prefers to dispatch together.
	// Empty means the function id is used.
	Affinity string
	// Cost is a relative cost estimate, informational only.
	Cost           int
	Implementation string

	seq int
}

// Produces returns the declared output that satisfies r, if any.
func (d *Descriptor) Produces(r value.Requirement) (Output, bool) {
	if r.Target.Type != d.TargetType {
		return Output{}, false
	}
	for _, out := range d.Outputs {
		if out.Name == r.Name && out.Properties.Satisfies(r.Constraints) {
			return out, true
		}
	}
	return Output{}, false
}

// Specifications returns the output specifications of d applied to target,
// in declaration order.
func (d *Descriptor) Specifications(target value.Target) []value.Specification {
	specs := make([]value.Specification, len(d.Outputs))
	for i, out := range d.Outputs {
		specs[i] = value.NewSpecification(target, out.Name, out.Properties, d.ID)
	}
	return specs
}

// Requirements returns the inputs of d applied to a target.
func (d *Descriptor) Requirements(target value.Target, attrs value.Attributes) ([]value.Requirement, error) {
	if d.Inputs == nil {
		return nil, nil
	}
	return d.Inputs(target, attrs)
}

// AffinityKey returns the key nodes of this function are grouped by.
func (d *Descriptor) AffinityKey() string {
	if d.Affinity != "" {
		return d.Affinity
	}
	return d.ID
}
