// Package viewcycle aggregates the job results of one graph execution into
// an immutable ViewCycle.
//
// The Aggregator is filled by the scheduler's control loop: seeded values,
// recorded job results and scheduler-decided failures. Recording is
// idempotent per specification and commutative across specifications; two
// different outcomes for the same specification are a consistency error.
// Finalize freezes the result once every node is resolved. A delta cycle's
// aggregator overlays its outcomes on the prior cycle, so untouched
// specifications keep the prior cycle's values.
package viewcycle
