// Package scheduler drives one dependency graph to completion.
//
// The scheduler is single threaded: one control loop owns every node state
// transition, cuts jobs from the ready queue, submits them to the worker
// pool and drains their futures through a single event channel. Only job
// execution runs in parallel.
//
// Node states move PENDING -> READY -> DISPATCHED -> DONE | FAILED.
// Market-data and pre-resolved nodes are seeded before the first dispatch.
// A failed node fails every unresolved descendant without dispatching it,
// while sibling branches keep running. A job that times out is resubmitted,
// up to the retry limit, to a compute node that has not timed out in this
// cycle; after that its nodes fail with WorkerUnavailable.
package scheduler
