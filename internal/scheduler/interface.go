package scheduler

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/value"
)

// State is the scheduling state of a node.
type State int

const (
	Pending State = iota
	Ready
	Dispatched
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Ready:
		return "READY"
	case Dispatched:
		return "DISPATCHED"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Values is a read-only source of specification values, such as a
// market-data snapshot or a prior cycle.
type Values interface {
	Value(spec value.Specification) (any, bool)
}

// Sink receives every outcome of a run. The cycle result aggregator
// implements it. Sink methods are only called from the control loop.
type Sink interface {
	Values
	// Seed records the values of a node resolved without dispatch.
	Seed(node depgraph.NodeID, values map[value.Specification]any) error
	// Record records a job result.
	Record(res *calcjob.Result) error
	// Fail records a failure the scheduler decided on its own: upstream
	// failures, unavailable workers and cancellation.
	Fail(node depgraph.NodeID, failure calcjob.Failure) error
}

// Config holds the scheduler knobs.
type Config struct {
	MaxJobSize      int
	MaxJobsInFlight int
	JobTimeout      time.Duration
	// MaxRetries is the number of resubmissions after a timeout.
	MaxRetries int
	Clock      clock.Clock
}

// DefaultConfig returns the default knobs.
func DefaultConfig() Config {
	return Config{
		MaxJobSize:      16,
		MaxJobsInFlight: 8,
		JobTimeout:      30 * time.Second,
		MaxRetries:      1,
	}
}

// Run describes one graph execution.
type Run struct {
	CycleID string
	// Kind labels metrics and spans, "full" or "delta".
	Kind     string
	Graph    *depgraph.Graph
	Snapshot Values
	// Prior supplies the values of pre-resolved nodes.
	Prior Values
	Sink  Sink
}

// Report summarises a finished run.
type Report struct {
	Jobs        int
	Submissions int
	Retries     int
	Excluded    []value.ComputeNodeID
	States      []State
	Done        int
	Failed      int
}
