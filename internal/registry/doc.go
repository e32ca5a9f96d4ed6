// Package registry is the function registry of the engine.
//
// A Registry holds two things: function descriptors, which declare what a
// function produces on a target type and what it needs as inputs, and named
// invokers, which are the compiled Go implementations modules contribute.
// Descriptors refer to invokers by implementation name. The registry is
// populated at startup, validated once, and read-only afterwards.
package registry
