package config

import (
	"context"

	"github.com/vk/viewgrid/internal/value"
)

// Loader is the interface for a format-specific view loader.
type Loader interface {
	// Load reads view definitions from the given paths and merges them into
	// one format-agnostic View.
	Load(ctx context.Context, paths ...string) (*View, error)
}

// TargetExpr computes the targets of a function input from the target the
// function is applied to and that target's attributes. An input on several
// targets, such as the positions of a portfolio, yields one requirement per
// target.
type TargetExpr interface {
	Evaluate(target value.Target, attrs value.Attributes) ([]value.Target, error)
}
