// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package value

import "fmt"

// Requirement asks for a named output on a target, subject to constraints.
// Two requirements are equal iff target, name and constraints all match.
type Requirement struct {
	Target      Target
	Name        string
	Constraints Properties
}

// NewRequirement creates a requirement.
func NewRequirement(target Target, name string, constraints Properties) Requirement {
	return Requirement{Target: target, Name: name, Constraints: constraints}
}

// String renders the requirement as Name(TYPE~ID){constraints}.
func (r Requirement) String() string {
	if r.Constraints.IsEmpty() {
		return fmt.Sprintf("%s(%s)", r.Name, r.Target)
	}
	return fmt.Sprintf("%s(%s)%s", r.Name, r.Target, r.Constraints)
}

// Specification is a concrete output: the target and name it answers, the
// fully resolved properties, and the function that produces it.
type Specification struct {
	Target     Target
	Name       string
	Properties Properties
	FunctionID string
}

// NewSpecification creates a specification.
func NewSpecification(target Target, name string, props Properties, functionID string) Specification {
	return Specification{Target: target, Name: name, Properties: props, FunctionID: functionID}
}

// Satisfies reports whether the specification answers the requirement.
func (s Specification) Satisfies(r Requirement) bool {
	return s.Target == r.Target && s.Name == r.Name && s.Properties.Satisfies(r.Constraints)
}

// Key returns the (target, name, properties) triple of the specification,
// which is what the graph builder shares producers on.
func (s Specification) Key() Key {
	return Key{Target: s.Target, Name: s.Name, Properties: s.Properties}
}

// String renders the specification as Name(TYPE~ID){props}@function.
func (s Specification) String() string {
	return fmt.Sprintf("%s(%s)%s@%s", s.Name, s.Target, s.Properties, s.FunctionID)
}

// Key is a specification without its producing function.
type Key struct {
	Target     Target
	Name       string
	Properties Properties
}
