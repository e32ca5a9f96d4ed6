package registry

import (
	"log/slog"
	"sort"

	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/value"
)

// Module is the interface that all function modules must implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the function descriptors and invokers of a single
// application instance.
type Registry struct {
	functions map[string]*Descriptor
	byOutput  map[outputKey][]*Descriptor
	invokers  map[string]Invoker
	seq       int
}

type outputKey struct {
	targetType value.TargetType
	name       string
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		functions: make(map[string]*Descriptor),
		byOutput:  make(map[outputKey][]*Descriptor),
		invokers:  make(map[string]Invoker),
	}
}

// Register adds a function descriptor. Registration order breaks ties
// between candidates of equal priority.
func (r *Registry) Register(d *Descriptor) error {
	if _, exists := r.functions[d.ID]; exists {
		return cerrors.ErrDuplicateFunction.GenWithStackByArgs(d.ID)
	}
	r.seq++
	d.seq = r.seq
	r.functions[d.ID] = d
	for _, out := range d.Outputs {
		k := outputKey{targetType: d.TargetType, name: out.Name}
		r.byOutput[k] = append(r.byOutput[k], d)
	}
	slog.Debug("Registering function.", "function", d.ID, "target_type", d.TargetType, "priority", d.Priority)
	return nil
}

// MustRegister is Register for module init code, where a duplicate is a bug.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Function returns the descriptor registered under id.
func (r *Registry) Function(id string) (*Descriptor, bool) {
	d, ok := r.functions[id]
	return d, ok
}

// Functions returns every descriptor in registration order.
func (r *Registry) Functions() []*Descriptor {
	out := make([]*Descriptor, 0, len(r.functions))
	for _, d := range r.functions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Resolve returns the candidate functions producing output on targets of the
// given type, highest priority first and in registration order among equals.
// The result is deterministic for a fixed registry.
func (r *Registry) Resolve(targetType value.TargetType, output string) []*Descriptor {
	candidates := r.byOutput[outputKey{targetType: targetType, name: output}]
	out := make([]*Descriptor, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}
