package depgraph

import (
	"context"
	"strings"

	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/ctxlog"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
)

// Availability tells the builder which requirements live market data can
// satisfy. *marketdata.Snapshot implements it.
type Availability interface {
	Available(r value.Requirement) (value.Specification, bool)
}

// Builder resolves requirements into a Graph by backward chaining through
// the function registry.
type Builder struct {
	registry *registry.Registry
	targets  value.TargetResolver
}

// NewBuilder creates a builder. targets may be nil when no function reads
// target attributes.
func NewBuilder(reg *registry.Registry, targets value.TargetResolver) *Builder {
	return &Builder{registry: reg, targets: targets}
}

// build is the state of one Build call.
type build struct {
	*Builder
	ctx    context.Context
	graph  *Graph
	avail  Availability
	memo   map[value.Requirement]value.Specification
	stack  []reqKey
	active map[reqKey]bool
}

// Build constructs the graph for reqs. Resolution for each requirement
// tries, in order: a specification already in the graph, market data, and
// the registry candidates by priority. The first applicable candidate wins;
// a failure below it fails the build rather than trying the next one.
func (b *Builder) Build(ctx context.Context, reqs []value.Requirement, avail Availability) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Build: Starting graph construction.", "requirements", len(reqs))

	st := &build{
		Builder: b,
		ctx:     ctx,
		graph:   newGraph(),
		avail:   avail,
		memo:    make(map[value.Requirement]value.Specification),
		active:  make(map[reqKey]bool),
	}
	for _, r := range reqs {
		if _, seen := st.graph.terminal[r]; seen {
			continue
		}
		spec, _, err := st.resolve(r)
		if err != nil {
			return nil, errors.Annotatef(err, "resolving %s", r)
		}
		st.graph.requirements = append(st.graph.requirements, r)
		st.graph.terminal[r] = spec
	}

	logger.Debug("Build: Graph construction successful.", "node_count", st.graph.Len())
	return st.graph, nil
}

func (st *build) resolve(r value.Requirement) (value.Specification, NodeID, error) {
	if spec, ok := st.memo[r]; ok {
		return spec, st.graph.producers[spec], nil
	}
	if spec, ok := st.graph.lookup(r); ok {
		st.memo[r] = spec
		return spec, st.graph.producers[spec], nil
	}

	k := reqKey{target: r.Target, name: r.Name}
	if st.active[k] {
		return value.Specification{}, 0, cerrors.ErrCyclicDependency.GenWithStackByArgs(r, st.path())
	}
	st.active[k] = true
	st.stack = append(st.stack, k)
	defer func() {
		st.stack = st.stack[:len(st.stack)-1]
		delete(st.active, k)
	}()

	if st.avail != nil {
		if spec, ok := st.avail.Available(r); ok {
			id := st.graph.add(&Node{
				Target:     r.Target,
				FunctionID: marketdata.FunctionID,
				Outputs:    []value.Specification{spec},
				MarketData: true,
			})
			ctxlog.FromContext(st.ctx).Debug("Build: Added market data leaf.", "node", id, "spec", spec)
			st.memo[r] = spec
			return spec, id, nil
		}
	}

	for _, d := range st.registry.Resolve(r.Target.Type, r.Name) {
		out, ok := d.Produces(r)
		if !ok {
			continue
		}
		id, err := st.apply(d, r.Target)
		if err != nil {
			return value.Specification{}, 0, err
		}
		spec := value.NewSpecification(r.Target, out.Name, out.Properties, d.ID)
		st.memo[r] = spec
		return spec, id, nil
	}

	return value.Specification{}, 0, cerrors.ErrUnsatisfiableRequirement.GenWithStackByArgs(r)
}

// apply resolves the inputs of d on target and adds its node.
func (st *build) apply(d *registry.Descriptor, target value.Target) (NodeID, error) {
	var attrs value.Attributes
	if st.targets != nil {
		attrs, _ = st.targets.Attributes(target)
	}
	reqs, err := d.Requirements(target, attrs)
	if err != nil {
		return 0, errors.Annotatef(err, "computing inputs of %s on %s", d.ID, target)
	}

	n := &Node{
		Target:     target,
		Attributes: attrs,
		FunctionID: d.ID,
		Function:   d,
		Outputs:    d.Specifications(target),
	}
	for _, in := range reqs {
		spec, id, err := st.resolve(in)
		if err != nil {
			return 0, err
		}
		n.Inputs = append(n.Inputs, spec)
		n.InputNodes = append(n.InputNodes, id)
	}

	id := st.graph.add(n)
	ctxlog.FromContext(st.ctx).Debug("Build: Added function node.", "node", id, "function", d.ID, "target", target)
	return id, nil
}

func (st *build) path() string {
	parts := make([]string, len(st.stack))
	for i, k := range st.stack {
		parts[i] = k.name + "(" + k.target.String() + ")"
	}
	return strings.Join(parts, " -> ")
}
