package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/viewgrid/internal/value"
)

// Invocation is everything an implementation sees when it is executed on
// one node: the target, its attributes, the resolved input values and the
// specifications it must produce.
type Invocation struct {
	FunctionID string
	Target     value.Target
	Attributes value.Attributes
	Inputs     map[value.Specification]any
	Outputs    []value.Specification
}

// Input returns the value of the first input with the given name.
func (inv *Invocation) Input(name string) (any, bool) {
	for spec, v := range inv.Inputs {
		if spec.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Values returns the values of every input with the given name.
func (inv *Invocation) Values(name string) []any {
	var out []any
	for spec, v := range inv.Inputs {
		if spec.Name == name {
			out = append(out, v)
		}
	}
	return out
}

// Float returns the input with the given name as a float64.
func (inv *Invocation) Float(name string) (float64, error) {
	v, ok := inv.Input(name)
	if !ok {
		return 0, fmt.Errorf("input %q is missing", name)
	}
	return ToFloat(v)
}

// ToFloat converts a numeric value as produced by functions or market data
// into a float64.
func ToFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value %v of type %T is not numeric", v, v)
	}
}

// Invoker executes a function. It returns one value per output name.
type Invoker interface {
	Invoke(ctx context.Context, inv *Invocation) (map[string]any, error)
}

// InvokerFunc adapts a plain function to Invoker.
type InvokerFunc func(ctx context.Context, inv *Invocation) (map[string]any, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, inv *Invocation) (map[string]any, error) {
	return f(ctx, inv)
}

// RegisterInvoker registers a Go implementation under a name.
func (r *Registry) RegisterInvoker(name string, inv Invoker) {
	if _, exists := r.invokers[name]; exists {
		panic(fmt.Sprintf("invoker with name '%s' already registered", name))
	}
	slog.Debug("Registering invoker.", "name", name)
	r.invokers[name] = inv
}

// Invoker returns the implementation registered under name.
func (r *Registry) Invoker(name string) (Invoker, bool) {
	inv, ok := r.invokers[name]
	return inv, ok
}

// InvokerFor returns the implementation of a registered function.
func (r *Registry) InvokerFor(functionID string) (Invoker, bool) {
	d, ok := r.functions[functionID]
	if !ok {
		return nil, false
	}
	return r.Invoker(d.Implementation)
}
