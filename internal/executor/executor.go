// Package executor defines the worker pool boundary of the engine: the
// scheduler submits CalculationJobs and receives futures of their results.
// How a job is executed, in process or remotely, is opaque to the scheduler.
package executor

import (
	"context"
	"time"

	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/value"
)

// SubmitOptions tune a single submission.
type SubmitOptions struct {
	// Exclude lists compute nodes the job must not be sent to, e.g. nodes
	// that already timed out on it.
	Exclude []value.ComputeNodeID
}

// Excludes reports whether id is excluded.
func (o SubmitOptions) Excludes(id value.ComputeNodeID) bool {
	for _, ex := range o.Exclude {
		if ex == id {
			return true
		}
	}
	return false
}

// WorkerPool executes jobs. Implementations are shared by concurrently
// running cycles and must keep at most one outstanding submission per job
// id, rejecting a second one with ErrDuplicateJob.
//
// Submit returns ErrWorkerUnavailable when no compute node is eligible and
// ErrPoolClosed after Close. Otherwise the future completes exactly once:
// with the job result, or with ErrJobTimedOut if the deadline passed first.
type WorkerPool interface {
	Submit(ctx context.Context, job *calcjob.Job, deadline time.Time, opts SubmitOptions) (*Future, error)
	ComputeNodes() []value.ComputeNodeID
	Close() error
}
