package viewcycle

import (
	"sort"
	"time"

	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/value"
)

// Kind distinguishes full cycles from delta cycles.
type Kind string

const (
	Full  Kind = "full"
	Delta Kind = "delta"
)

// Metadata describes a cycle.
type Metadata struct {
	ID              string
	Kind            Kind
	PriorID         string
	SnapshotVersion int64
	Start           time.Time
	End             time.Time
	// Nodes is the number of nodes this cycle executed or seeded.
	Nodes int
}

// Outcome is the result for one specification: a value or a failure.
type Outcome struct {
	Value   any
	Failure *calcjob.Failure
}

// Failed reports whether the outcome is a failure.
func (o Outcome) Failed() bool {
	return o.Failure != nil
}

// NodeState is the terminal state of a node.
type NodeState int

const (
	NodeDone NodeState = iota + 1
	NodeFailed
)

func (s NodeState) String() string {
	switch s {
	case NodeDone:
		return "DONE"
	case NodeFailed:
		return "FAILED"
	default:
		return "UNRESOLVED"
	}
}

// Execution is how one node was resolved.
type Execution struct {
	FunctionID  string
	Target      value.Target
	State       NodeState
	ComputeNode value.ComputeNodeID
	// Seeded executions were taken from market data or a prior cycle.
	Seeded  bool
	Failure *calcjob.Failure
	// Cycle is the id of the cycle that produced this execution.
	Cycle string
}

// Cycle is an immutable ViewCycle. It is safe for concurrent readers.
type Cycle struct {
	meta       Metadata
	graph      *depgraph.Graph
	results    map[value.Specification]Outcome
	executions map[value.Specification]*Execution
}

// Metadata returns the cycle metadata.
func (c *Cycle) Metadata() Metadata {
	return c.meta
}

// ID returns the cycle id.
func (c *Cycle) ID() string {
	return c.meta.ID
}

// Graph returns the view's full dependency graph. For a delta cycle this is
// the graph of the full cycle it descends from, not the delta graph.
func (c *Cycle) Graph() *depgraph.Graph {
	return c.graph
}

// Get returns the outcome for spec; false means spec was never requested
// in this view.
func (c *Cycle) Get(spec value.Specification) (Outcome, bool) {
	o, ok := c.results[spec]
	return o, ok
}

// Value returns the computed value for spec, if it succeeded.
func (c *Cycle) Value(spec value.Specification) (any, bool) {
	o, ok := c.results[spec]
	if !ok || o.Failed() {
		return nil, false
	}
	return o.Value, true
}

// Lookup returns the outcome for a top-level requirement.
func (c *Cycle) Lookup(r value.Requirement) (value.Specification, Outcome, bool) {
	spec, ok := c.graph.Terminal(r)
	if !ok {
		return value.Specification{}, Outcome{}, false
	}
	o, ok := c.results[spec]
	return spec, o, ok
}

// Execution returns how the producer of spec was resolved.
func (c *Cycle) Execution(spec value.Specification) (*Execution, bool) {
	e, ok := c.executions[spec]
	return e, ok
}

// Specifications returns every specification with an outcome, in string
// order.
func (c *Cycle) Specifications() []value.Specification {
	out := make([]value.Specification, 0, len(c.results))
	for spec := range c.results {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Failures returns the failed specifications, in string order.
func (c *Cycle) Failures() []value.Specification {
	var out []value.Specification
	for _, spec := range c.Specifications() {
		if c.results[spec].Failed() {
			out = append(out, spec)
		}
	}
	return out
}
