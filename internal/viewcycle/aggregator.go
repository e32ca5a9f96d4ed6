package viewcycle

import (
	"fmt"
	"math"
	"reflect"

	"github.com/benbjohnson/clock"
	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/depgraph"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/value"
)

// seededNode is the compute node recorded for seeded executions.
var seededNode = value.NewComputeNodeID("seed")

// Aggregator collects the outcomes of one graph execution. It is owned by
// one control loop and is not safe for concurrent use.
type Aggregator struct {
	meta    Metadata
	graph   *depgraph.Graph
	prior   *Cycle
	clock   clock.Clock
	results map[value.Specification]Outcome
	nodes   []*Execution
}

// NewAggregator creates the aggregator of a full cycle over g.
func NewAggregator(meta Metadata, g *depgraph.Graph, clk clock.Clock) *Aggregator {
	if clk == nil {
		clk = clock.New()
	}
	if meta.Kind == "" {
		meta.Kind = Full
	}
	if meta.Start.IsZero() {
		meta.Start = clk.Now()
	}
	meta.Nodes = g.Len()
	return &Aggregator{
		meta:    meta,
		graph:   g,
		clock:   clk,
		results: make(map[value.Specification]Outcome),
		nodes:   make([]*Execution, g.Len()),
	}
}

// NewDeltaAggregator creates the aggregator of a delta cycle executing the
// delta graph g on top of prior.
func NewDeltaAggregator(meta Metadata, g *depgraph.Graph, prior *Cycle, clk clock.Clock) *Aggregator {
	meta.Kind = Delta
	meta.PriorID = prior.ID()
	a := NewAggregator(meta, g, clk)
	a.prior = prior
	return a
}

// ID returns the id of the cycle being aggregated.
func (a *Aggregator) ID() string {
	return a.meta.ID
}

// Value returns a value recorded in this cycle.
func (a *Aggregator) Value(spec value.Specification) (any, bool) {
	o, ok := a.results[spec]
	if !ok || o.Failed() {
		return nil, false
	}
	return o.Value, true
}

// Seed records the values of a node resolved without dispatch.
func (a *Aggregator) Seed(node depgraph.NodeID, values map[value.Specification]any) error {
	n := a.graph.Node(node)
	for _, spec := range n.Outputs {
		v, ok := values[spec]
		if !ok {
			continue
		}
		if err := a.put(spec, Outcome{Value: v}); err != nil {
			return err
		}
	}
	return a.resolve(node, &Execution{State: NodeDone, ComputeNode: seededNode, Seeded: true})
}

// Record records every item of a job result. Recording an identical result
// twice is a no-op.
func (a *Aggregator) Record(res *calcjob.Result) error {
	for _, item := range res.Items {
		if item.Node < 0 || int(item.Node) >= a.graph.Len() {
			return cerrors.ErrUnknownSpecification.GenWithStackByArgs(fmt.Sprintf("node %d", item.Node), a.meta.ID)
		}
		if item.Failed() {
			if err := a.failOutputs(item.Node, *item.Failure); err != nil {
				return err
			}
			f := *item.Failure
			if err := a.resolve(item.Node, &Execution{State: NodeFailed, ComputeNode: res.ComputeNode, Failure: &f}); err != nil {
				return err
			}
			continue
		}

		n := a.graph.Node(item.Node)
		for spec, v := range item.Values {
			if !produces(n, spec) {
				return cerrors.ErrUnknownSpecification.GenWithStackByArgs(spec, a.meta.ID)
			}
			if err := a.put(spec, Outcome{Value: v}); err != nil {
				return err
			}
		}
		if err := a.resolve(item.Node, &Execution{State: NodeDone, ComputeNode: res.ComputeNode}); err != nil {
			return err
		}
	}
	return nil
}

// Fail records a failure for every output of node.
func (a *Aggregator) Fail(node depgraph.NodeID, f calcjob.Failure) error {
	if err := a.failOutputs(node, f); err != nil {
		return err
	}
	return a.resolve(node, &Execution{State: NodeFailed, Failure: &f})
}

func (a *Aggregator) failOutputs(node depgraph.NodeID, f calcjob.Failure) error {
	for _, spec := range a.graph.Node(node).Outputs {
		fc := f
		if err := a.put(spec, Outcome{Failure: &fc}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) put(spec value.Specification, o Outcome) error {
	if prev, ok := a.results[spec]; ok {
		if !sameOutcome(prev, o) {
			return cerrors.ErrInconsistentResult.GenWithStackByArgs(spec, a.meta.ID)
		}
		return nil
	}
	a.results[spec] = o
	return nil
}

func (a *Aggregator) resolve(node depgraph.NodeID, e *Execution) error {
	n := a.graph.Node(node)
	e.FunctionID, e.Target, e.Cycle = n.FunctionID, n.Target, a.meta.ID
	if prev := a.nodes[node]; prev != nil {
		if prev.State != e.State || !reflect.DeepEqual(prev.Failure, e.Failure) {
			what := fmt.Sprintf("node %d", node)
			if len(n.Outputs) > 0 {
				what = n.Outputs[0].String()
			}
			return cerrors.ErrInconsistentResult.GenWithStackByArgs(what, a.meta.ID)
		}
		return nil
	}
	a.nodes[node] = e
	return nil
}

// Resolved returns the number of nodes with a terminal outcome.
func (a *Aggregator) Resolved() int {
	count := 0
	for _, e := range a.nodes {
		if e != nil {
			count++
		}
	}
	return count
}

// Finalize freezes the aggregator into a Cycle. Every node must be
// resolved.
func (a *Aggregator) Finalize() (*Cycle, error) {
	if unresolved := a.graph.Len() - a.Resolved(); unresolved > 0 {
		return nil, cerrors.ErrCycleNotResolved.GenWithStackByArgs(a.meta.ID, unresolved)
	}

	meta := a.meta
	meta.End = a.clock.Now()
	c := &Cycle{
		meta:       meta,
		graph:      a.graph,
		results:    make(map[value.Specification]Outcome, len(a.results)),
		executions: make(map[value.Specification]*Execution),
	}
	if a.prior != nil {
		c.graph = a.prior.graph
		for spec, o := range a.prior.results {
			c.results[spec] = o
		}
		for spec, e := range a.prior.executions {
			c.executions[spec] = e
		}
	}
	for spec, o := range a.results {
		c.results[spec] = o
	}
	for id, e := range a.nodes {
		n := a.graph.Node(depgraph.NodeID(id))
		if a.prior != nil && n.Preresolved {
			continue
		}
		for _, spec := range n.Outputs {
			c.executions[spec] = e
		}
	}
	return c, nil
}

func produces(n *depgraph.Node, spec value.Specification) bool {
	for _, out := range n.Outputs {
		if out == spec {
			return true
		}
	}
	return false
}

func sameOutcome(a, b Outcome) bool {
	if a.Failed() != b.Failed() {
		return false
	}
	if a.Failed() {
		return reflect.DeepEqual(a.Failure, b.Failure)
	}
	return sameValue(a.Value, b.Value)
}

// sameValue is reflect.DeepEqual, except that NaN equals NaN.
func sameValue(a, b any) bool {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			return fa == fb || (math.IsNaN(fa) && math.IsNaN(fb))
		}
	}
	if fa, ok := a.(float32); ok {
		if fb, ok := b.(float32); ok {
			return fa == fb || (math.IsNaN(float64(fa)) && math.IsNaN(float64(fb)))
		}
	}
	return reflect.DeepEqual(a, b)
}
