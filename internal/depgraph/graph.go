package depgraph

import (
	"sort"

	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
)

// NodeID addresses a node inside one Graph.
type NodeID int

// Node is one function invocation on one target. A node produces all the
// outputs its function declares for the target at once.
type Node struct {
	ID         NodeID
	Target     value.Target
	Attributes value.Attributes
	FunctionID string
	// Function is nil for market-data leaves.
	Function *registry.Descriptor
	// Inputs are the input specifications in declaration order, and
	// InputNodes their producers, index for index.
	Inputs     []value.Specification
	InputNodes []NodeID
	Outputs    []value.Specification
	// MarketData nodes take their values from the market-data snapshot.
	MarketData bool
	// Preresolved nodes take their values from a prior cycle and are never
	// dispatched.
	Preresolved bool
}

// Affinity is the key the job builder groups the node by.
func (n *Node) Affinity() string {
	if n.Function != nil {
		return n.Function.AffinityKey()
	}
	return n.FunctionID
}

// Graph is the immutable result of a build.
type Graph struct {
	nodes        []*Node
	dependents   [][]NodeID
	dependencies [][]NodeID
	producers    map[value.Specification]NodeID
	byKey        map[reqKey][]value.Specification
	terminal     map[value.Requirement]value.Specification
	requirements []value.Requirement
}

type reqKey struct {
	target value.Target
	name   string
}

func newGraph() *Graph {
	return &Graph{
		producers: make(map[value.Specification]NodeID),
		byKey:     make(map[reqKey][]value.Specification),
		terminal:  make(map[value.Requirement]value.Specification),
	}
}

// add appends n, assigning its id and indexing its outputs and edges. Every
// input node must already be in the graph.
func (g *Graph) add(n *Node) NodeID {
	n.ID = NodeID(len(g.nodes))
	g.nodes = append(g.nodes, n)
	g.dependents = append(g.dependents, nil)

	var deps []NodeID
	seen := make(map[NodeID]struct{}, len(n.InputNodes))
	for _, in := range n.InputNodes {
		if _, dup := seen[in]; dup {
			continue
		}
		seen[in] = struct{}{}
		deps = append(deps, in)
		g.dependents[in] = append(g.dependents[in], n.ID)
	}
	g.dependencies = append(g.dependencies, deps)

	for _, out := range n.Outputs {
		g.producers[out] = n.ID
		k := reqKey{target: out.Target, name: out.Name}
		g.byKey[k] = append(g.byKey[k], out)
	}
	return n.ID
}

// lookup returns an already produced specification satisfying r.
func (g *Graph) lookup(r value.Requirement) (value.Specification, bool) {
	for _, spec := range g.byKey[reqKey{target: r.Target, name: r.Name}] {
		if spec.Satisfies(r) {
			return spec, true
		}
	}
	return value.Specification{}, false
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node with the given id. It panics on an unknown id.
func (g *Graph) Node(id NodeID) *Node {
	return g.nodes[id]
}

// Nodes returns every node in execution order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// ExecutionOrder returns node ids leaves first.
func (g *Graph) ExecutionOrder() []NodeID {
	out := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		out[i] = NodeID(i)
	}
	return out
}

// TopologicalOrder returns node ids roots first.
func (g *Graph) TopologicalOrder() []NodeID {
	out := make([]NodeID, len(g.nodes))
	for i := range g.nodes {
		out[len(g.nodes)-1-i] = NodeID(i)
	}
	return out
}

// Dependencies returns the distinct producers of a node's inputs.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	return g.dependencies[id]
}

// Dependents returns the nodes consuming any output of id, in id order.
func (g *Graph) Dependents(id NodeID) []NodeID {
	return g.dependents[id]
}

// Producer returns the node producing spec.
func (g *Graph) Producer(spec value.Specification) (NodeID, bool) {
	id, ok := g.producers[spec]
	return id, ok
}

// Requirements returns the top-level requirements in request order.
func (g *Graph) Requirements() []value.Requirement {
	out := make([]value.Requirement, len(g.requirements))
	copy(out, g.requirements)
	return out
}

// Terminal returns the specification a top-level requirement resolved to.
func (g *Graph) Terminal(r value.Requirement) (value.Specification, bool) {
	spec, ok := g.terminal[r]
	return spec, ok
}

// TerminalOutputs returns a copy of the requirement to specification map of
// the top-level requirements.
func (g *Graph) TerminalOutputs() map[value.Requirement]value.Specification {
	out := make(map[value.Requirement]value.Specification, len(g.terminal))
	for r, s := range g.terminal {
		out[r] = s
	}
	return out
}

// MarketDataLeaves returns the specifications supplied by market data.
func (g *Graph) MarketDataLeaves() []value.Specification {
	var out []value.Specification
	for _, n := range g.nodes {
		if n.MarketData {
			out = append(out, n.Outputs...)
		}
	}
	return out
}

// Invalidate returns the nodes affected by a change of the given
// specifications: their producers and everything reachable through
// dependent edges, in execution order. Unknown specifications are ignored.
func (g *Graph) Invalidate(changed []value.Specification) []NodeID {
	marked := make(map[NodeID]struct{})
	var queue []NodeID
	for _, spec := range changed {
		id, ok := g.producers[spec]
		if !ok {
			continue
		}
		if _, done := marked[id]; !done {
			marked[id] = struct{}{}
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependents[id] {
			if _, done := marked[dep]; !done {
				marked[dep] = struct{}{}
				queue = append(queue, dep)
			}
		}
	}

	out := make([]NodeID, 0, len(marked))
	for id := range marked {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Delta builds the graph of a delta cycle: the invalidated nodes, plus every
// input of theirs that is not invalidated as a Preresolved boundary node.
// Relative node order is kept, so the delta graph is a valid graph on its
// own. Only top-level requirements answered by an invalidated node are
// carried over.
func (g *Graph) Delta(invalidated []NodeID) *Graph {
	keep := make(map[NodeID]bool, len(invalidated))
	for _, id := range invalidated {
		keep[id] = true
	}
	boundary := make(map[NodeID]bool)
	for _, id := range invalidated {
		for _, in := range g.dependencies[id] {
			if !keep[in] {
				boundary[in] = true
			}
		}
	}

	d := newGraph()
	remap := make(map[NodeID]NodeID, len(keep)+len(boundary))
	for i, n := range g.nodes {
		old := NodeID(i)
		switch {
		case keep[old]:
			c := *n
			c.InputNodes = make([]NodeID, len(n.InputNodes))
			for j, in := range n.InputNodes {
				c.InputNodes[j] = remap[in]
			}
			remap[old] = d.add(&c)
		case boundary[old]:
			c := *n
			c.Inputs, c.InputNodes = nil, nil
			c.Preresolved = true
			remap[old] = d.add(&c)
		}
	}

	for _, r := range g.requirements {
		spec := g.terminal[r]
		if keep[g.producers[spec]] {
			d.requirements = append(d.requirements, r)
			d.terminal[r] = spec
		}
	}
	return d
}
