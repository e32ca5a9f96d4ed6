// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package value

import (
	"sort"
	"strings"
)

// Wildcard as a constraint value accepts any value, as long as the property is present.
const Wildcard = "*"

const (
	pairSeparator = "\x1e"
	kvSeparator   = "\x1f"
	escapeByte    = "\x1d"
)

// Keys and values are escaped so the separators never occur inside them.
var (
	escaper   = strings.NewReplacer(escapeByte, escapeByte+"0", pairSeparator, escapeByte+"1", kvSeparator, escapeByte+"2")
	unescaper = strings.NewReplacer(escapeByte+"0", escapeByte, escapeByte+"1", pairSeparator, escapeByte+"2", kvSeparator)
)

// Properties is an immutable set of key/value strings. It is stored in a
// canonical encoded form so that two equal property sets are == and can be
// part of a map key.
type Properties struct {
	enc string
}

// NewProperties builds a property set from a map. A nil or empty map yields
// the empty set.
func NewProperties(kv map[string]string) Properties {
	if len(kv) == 0 {
		return Properties{}
	}
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(pairSeparator)
		}
		b.WriteString(escaper.Replace(k))
		b.WriteString(kvSeparator)
		b.WriteString(escaper.Replace(kv[k]))
	}
	return Properties{enc: b.String()}
}

// Map returns a copy of the properties as a map.
func (p Properties) Map() map[string]string {
	out := make(map[string]string)
	p.each(func(k, v string) bool {
		out[k] = v
		return true
	})
	return out
}

// Get returns the value of a property.
func (p Properties) Get(key string) (string, bool) {
	var (
		found string
		ok    bool
	)
	p.each(func(k, v string) bool {
		if k == key {
			found, ok = v, true
			return false
		}
		return true
	})
	return found, ok
}

// With returns a copy of p with key set to v.
func (p Properties) With(key, v string) Properties {
	m := p.Map()
	m[key] = v
	return NewProperties(m)
}

// Len returns the number of properties.
func (p Properties) Len() int {
	if p.enc == "" {
		return 0
	}
	return strings.Count(p.enc, pairSeparator) + 1
}

// IsEmpty reports whether the set has no properties.
func (p Properties) IsEmpty() bool {
	return p.enc == ""
}

// Satisfies reports whether p is compatible with a set of constraints: every
// constrained key is present, and its value matches unless the constraint is
// the Wildcard.
func (p Properties) Satisfies(constraints Properties) bool {
	ok := true
	constraints.each(func(k, want string) bool {
		got, present := p.Get(k)
		if !present || (want != Wildcard && got != want) {
			ok = false
		}
		return ok
	})
	return ok
}

// String renders the properties as {k=v, ...} in key order.
func (p Properties) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	p.each(func(k, v string) bool {
		if !first {
			b.WriteString(", ")
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		return true
	})
	b.WriteByte('}')
	return b.String()
}

func (p Properties) each(fn func(k, v string) bool) {
	if p.enc == "" {
		return
	}
	for _, pair := range strings.Split(p.enc, pairSeparator) {
		k, v, _ := strings.Cut(pair, kvSeparator)
		if !fn(unescaper.Replace(k), unescaper.Replace(v)) {
			return
		}
	}
}
