package value

import "unique"

// ComputeNodeID identifies the worker that executed a job. The underlying
// string is interned, so ids compare by handle.
type ComputeNodeID struct {
	h unique.Handle[string]
}

// NewComputeNodeID interns s as a compute node id.
func NewComputeNodeID(s string) ComputeNodeID {
	return ComputeNodeID{h: unique.Make(s)}
}

// String returns the id as a string.
func (id ComputeNodeID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.h.Value()
}

// IsZero reports whether the id was never assigned.
func (id ComputeNodeID) IsZero() bool {
	return id == ComputeNodeID{}
}
