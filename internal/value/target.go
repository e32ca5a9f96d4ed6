// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package value

import (
	"fmt"
	"strconv"
	"strings"

	cerrors "github.com/vk/viewgrid/internal/errors"
)

// TargetType is the kind of a computation target, e.g. "SWAP" or "CURVE".
type TargetType string

// targetSeparator splits the type from the id in the string form of a target.
const targetSeparator = "~"

// Target identifies the object a value is computed on.
type Target struct {
	Type TargetType
	ID   string
}

// NewTarget creates a target of the given type.
func NewTarget(typ TargetType, id string) Target {
	return Target{Type: typ, ID: id}
}

// ParseTarget parses the "TYPE~ID" form produced by Target.String.
func ParseTarget(s string) (Target, error) {
	typ, id, ok := strings.Cut(s, targetSeparator)
	if !ok || typ == "" || id == "" {
		return Target{}, cerrors.ErrInvalidTarget.GenWithStackByArgs(s)
	}
	return Target{Type: TargetType(typ), ID: id}, nil
}

// String returns the canonical "TYPE~ID" form.
func (t Target) String() string {
	return string(t.Type) + targetSeparator + t.ID
}

// IsZero reports whether t is the zero target.
func (t Target) IsZero() bool {
	return t.Type == "" && t.ID == ""
}

// Attributes are the static, read-only facts known about a target, such as a
// swap's notional or the curve it discounts on.
type Attributes map[string]string

// Float parses the attribute as a float64.
func (a Attributes) Float(key string) (float64, error) {
	raw, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("attribute %q is not set", key)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("attribute %q: %w", key, err)
	}
	return f, nil
}

// TargetResolver looks up the attributes of a target. It stands in for the
// security and configuration masters, which the engine only reads.
type TargetResolver interface {
	Attributes(t Target) (Attributes, bool)
}

// Targets is a static, in-memory TargetResolver.
type Targets map[Target]Attributes

// Attributes implements TargetResolver.
func (ts Targets) Attributes(t Target) (Attributes, bool) {
	attrs, ok := ts[t]
	return attrs, ok
}
