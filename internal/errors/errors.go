// Package errors holds the normalized error taxonomy of the calculation engine.
//
// Graph construction errors (unsatisfiable and cyclic requirements) are fatal
// and are returned before anything is dispatched. Execution errors are recorded
// per node in the cycle results and never abort sibling branches.
package errors

import (
	"github.com/pingcap/errors"
)

// graph construction
var (
	ErrUnsatisfiableRequirement = errors.Normalize(
		"no function or market data can satisfy requirement %s",
		errors.RFCCodeText("VIEW:ErrUnsatisfiableRequirement"),
	)
	ErrCyclicDependency = errors.Normalize(
		"cyclic dependency: requirement %s is already on the resolution path %s",
		errors.RFCCodeText("VIEW:ErrCyclicDependency"),
	)
	ErrInvalidTarget = errors.Normalize(
		"invalid computation target %q",
		errors.RFCCodeText("VIEW:ErrInvalidTarget"),
	)
)

// function registry
var (
	ErrAmbiguousFunction = errors.Normalize(
		"functions %s and %s produce %s on %s with the same priority %d",
		errors.RFCCodeText("VIEW:ErrAmbiguousFunction"),
	)
	ErrUnknownImplementation = errors.Normalize(
		"function %s refers to unknown implementation %q",
		errors.RFCCodeText("VIEW:ErrUnknownImplementation"),
	)
	ErrDuplicateFunction = errors.Normalize(
		"function %s is already registered",
		errors.RFCCodeText("VIEW:ErrDuplicateFunction"),
	)
)

// execution
var (
	ErrFunctionExecution = errors.Normalize(
		"function %s failed on target %s: %s",
		errors.RFCCodeText("VIEW:ErrFunctionExecution"),
	)
	ErrMissingMarketData = errors.Normalize(
		"market data %s is missing from the snapshot",
		errors.RFCCodeText("VIEW:ErrMissingMarketData"),
	)
	ErrJobTimedOut = errors.Normalize(
		"job %s did not complete on compute node %s before its deadline",
		errors.RFCCodeText("VIEW:ErrJobTimedOut"),
	)
	ErrComputeNodeBusy = errors.Normalize(
		"compute node %s has a full queue and did not accept job %s",
		errors.RFCCodeText("VIEW:ErrComputeNodeBusy"),
	)
	ErrWorkerUnavailable = errors.Normalize(
		"no compute node available for job %s",
		errors.RFCCodeText("VIEW:ErrWorkerUnavailable"),
	)
	ErrDuplicateJob = errors.Normalize(
		"job %s already has an outstanding submission",
		errors.RFCCodeText("VIEW:ErrDuplicateJob"),
	)
	ErrPoolClosed = errors.Normalize(
		"worker pool is closed",
		errors.RFCCodeText("VIEW:ErrPoolClosed"),
	)
	ErrCancelled = errors.Normalize(
		"cycle %s was cancelled",
		errors.RFCCodeText("VIEW:ErrCancelled"),
	)
)

// results
var (
	ErrInconsistentResult = errors.Normalize(
		"conflicting values recorded for %s in cycle %s",
		errors.RFCCodeText("VIEW:ErrInconsistentResult"),
	)
	ErrCycleNotResolved = errors.Normalize(
		"cycle %s cannot be finalized: %d nodes are not resolved",
		errors.RFCCodeText("VIEW:ErrCycleNotResolved"),
	)
	ErrUnknownSpecification = errors.Normalize(
		"specification %s is not produced by any node of cycle %s",
		errors.RFCCodeText("VIEW:ErrUnknownSpecification"),
	)
)

// configuration
var (
	ErrInvalidConfig = errors.Normalize(
		"invalid configuration: %s",
		errors.RFCCodeText("VIEW:ErrInvalidConfig"),
	)
	ErrLoadView = errors.Normalize(
		"failed to load view definition %s: %s",
		errors.RFCCodeText("VIEW:ErrLoadView"),
	)
)
