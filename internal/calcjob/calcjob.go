// Package calcjob defines the unit of work that crosses from the scheduler
// to a worker: a CalculationJob of ready nodes, and the per-node result
// items a worker returns for it.
package calcjob

import (
	"fmt"

	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/value"
)

// Item is one node of a job, with everything a worker needs to execute it.
type Item struct {
	Node       depgraph.NodeID
	FunctionID string
	Target     value.Target
	Attributes value.Attributes
	// ResolvedInputs are the values of the node's inputs, keyed by
	// specification.
	ResolvedInputs map[value.Specification]any
	Outputs        []value.Specification
}

// Job is an ordered batch of ready nodes addressed to one worker. Its id is
// unique within the cycle.
type Job struct {
	ID       string
	CycleID  string
	Affinity string
	Items    []Item
}

// Nodes returns the node ids of the job in item order.
func (j *Job) Nodes() []depgraph.NodeID {
	out := make([]depgraph.NodeID, len(j.Items))
	for i, it := range j.Items {
		out[i] = it.Node
	}
	return out
}

// Reason classifies a node failure.
type Reason int

const (
	// FunctionExecutionFailure means the function itself returned an error
	// or panicked. It is deterministic and never retried.
	FunctionExecutionFailure Reason = iota + 1
	// MissingInput means an upstream node failed.
	MissingInput
	// MissingMarketData means a market-data leaf had no value in the snapshot.
	MissingMarketData
	// WorkerUnavailable means the job could not be executed on any worker.
	WorkerUnavailable
	// Cancelled means the cycle was aborted before the node resolved.
	Cancelled
)

func (r Reason) String() string {
	switch r {
	case FunctionExecutionFailure:
		return "FunctionExecutionFailure"
	case MissingInput:
		return "MissingInput"
	case MissingMarketData:
		return "MissingMarketData"
	case WorkerUnavailable:
		return "WorkerUnavailable"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Failure is the failure marker of a node. FailedInput is set when the node
// failed because of one of its inputs; it names the specification whose
// failure originated the chain.
type Failure struct {
	Reason      Reason
	Message     string
	FailedInput value.Specification
}

// HasFailedInput reports whether the failure references an input.
func (f *Failure) HasFailedInput() bool {
	return f.FailedInput != value.Specification{}
}

func (f *Failure) String() string {
	if f.HasFailedInput() {
		return fmt.Sprintf("%s: %s (input %s)", f.Reason, f.Message, f.FailedInput)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

// ResultItem is the outcome of one node: a value for each output
// specification, or a failure.
type ResultItem struct {
	Node    depgraph.NodeID
	Values  map[value.Specification]any
	Failure *Failure
}

// Failed reports whether the item is a failure.
func (r ResultItem) Failed() bool {
	return r.Failure != nil
}

// Succeeded returns a value item.
func Succeeded(node depgraph.NodeID, values map[value.Specification]any) ResultItem {
	return ResultItem{Node: node, Values: values}
}

// FailedItem returns a failure item.
func FailedItem(node depgraph.NodeID, reason Reason, msg string) ResultItem {
	return ResultItem{Node: node, Failure: &Failure{Reason: reason, Message: msg}}
}

// Result is what a worker returns for a job: one item per job item, in job
// order, tagged with the compute node that ran it.
type Result struct {
	JobID       string
	ComputeNode value.ComputeNodeID
	Items       []ResultItem
}
