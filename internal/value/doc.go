// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package value defines the identifiers the engine uses to talk about data:
// what a caller wants (Requirement) versus what a function actually produced
// (Specification), the targets both refer to, and the compute nodes that
// executed the work.
//
// Why separate requirement from specification?
//
// A requirement is a question ("the PV of SwapA, in USD"); a specification is
// an answer with every property resolved and the producing function attached.
// Keeping them distinct lets the graph builder share one producer between
// several differently constrained requirements, and lets results be keyed by
// exactly what was computed. All types in this package are comparable values
// so they can be used directly as map keys.
package value
