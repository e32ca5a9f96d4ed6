// Package marketdata holds the market data the engine consumes: immutable,
// versioned snapshots of leaf values and the update stream that produces the
// next snapshot.
package marketdata

import (
	"reflect"
	"sort"
	"time"

	"github.com/vk/viewgrid/internal/value"
)

// FunctionID is the producer recorded on market-data leaf specifications.
const FunctionID = "MarketData"

// Leaf returns the specification of a market-data leaf.
func Leaf(target value.Target, name string, props value.Properties) value.Specification {
	return value.NewSpecification(target, name, props, FunctionID)
}

// Update is one tick of the market-data stream.
type Update struct {
	Spec      value.Specification
	Value     any
	Timestamp time.Time
}

// Snapshot is an immutable set of leaf values. Each Apply yields a new
// snapshot with the next version number.
type Snapshot struct {
	version int64
	values  map[value.Specification]any
	byKey   map[reqKey][]value.Specification
}

type reqKey struct {
	target value.Target
	name   string
}

// NewSnapshot creates version 1 of a snapshot. Specifications without the
// MarketData producer are normalized to it.
func NewSnapshot(values map[value.Specification]any) *Snapshot {
	s := &Snapshot{version: 1, values: make(map[value.Specification]any, len(values))}
	for spec, v := range values {
		spec.FunctionID = FunctionID
		s.values[spec] = v
	}
	s.index()
	return s
}

func (s *Snapshot) index() {
	s.byKey = make(map[reqKey][]value.Specification)
	for spec := range s.values {
		k := reqKey{target: spec.Target, name: spec.Name}
		s.byKey[k] = append(s.byKey[k], spec)
	}
	for _, specs := range s.byKey {
		sort.Slice(specs, func(i, j int) bool { return specs[i].String() < specs[j].String() })
	}
}

// Version returns the snapshot version.
func (s *Snapshot) Version() int64 {
	return s.version
}

// Len returns the number of leaves in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.values)
}

// Available returns the leaf specification that satisfies r. When several
// leaves do, the one with the smallest string form wins.
func (s *Snapshot) Available(r value.Requirement) (value.Specification, bool) {
	for _, spec := range s.byKey[reqKey{target: r.Target, name: r.Name}] {
		if spec.Satisfies(r) {
			return spec, true
		}
	}
	return value.Specification{}, false
}

// Value returns the value of a leaf.
func (s *Snapshot) Value(spec value.Specification) (any, bool) {
	v, ok := s.values[spec]
	return v, ok
}

// Specifications returns every leaf in a stable order.
func (s *Snapshot) Specifications() []value.Specification {
	out := make([]value.Specification, 0, len(s.values))
	for spec := range s.values {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Apply returns the next snapshot with the updates applied and the leaves
// whose value actually changed. An update that carries the current value is
// not a change. When nothing changed the receiver is returned as is.
func (s *Snapshot) Apply(updates []Update) (*Snapshot, []value.Specification) {
	next := make(map[value.Specification]any, len(s.values)+len(updates))
	for spec, v := range s.values {
		next[spec] = v
	}

	seen := make(map[value.Specification]struct{})
	var changed []value.Specification
	for _, u := range updates {
		spec := u.Spec
		spec.FunctionID = FunctionID
		if old, ok := next[spec]; ok && reflect.DeepEqual(old, u.Value) {
			continue
		}
		next[spec] = u.Value
		if _, dup := seen[spec]; !dup {
			seen[spec] = struct{}{}
			changed = append(changed, spec)
		}
	}
	if len(changed) == 0 {
		return s, nil
	}

	out := &Snapshot{version: s.version + 1, values: next}
	out.index()
	return out, changed
}
