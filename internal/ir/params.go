package ir

import (
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Params maps parameter (or attribute) names to values.
// Keys are unique. Insertion order is kept for serialization only;
// Equal ignores it.
//
// A nil *Params behaves as an empty, read-only map.
type Params struct {
	m *orderedmap.OrderedMap[string, Value]
}

// NewParams creates an empty parameter map.
func NewParams() *Params {
	return &Params{m: orderedmap.New[string, Value]()}
}

// P is a key-value pair for ParamsOf.
type P struct {
	Key   string
	Value Value
}

// ParamsOf builds a parameter map from pairs in order.
// Example: ParamsOf(P{"kernel_size", Ints{3, 3}}, P{"ceil_mode", Bool(false)})
func ParamsOf(pairs ...P) *Params {
	p := NewParams()
	for _, kv := range pairs {
		p.Set(kv.Key, kv.Value)
	}
	return p
}

// Set stores v under key. Re-setting a key keeps its original position.
func (p *Params) Set(key string, v Value) {
	p.m.Set(key, v)
}

// Get returns the value stored under key.
func (p *Params) Get(key string) (Value, bool) {
	if p == nil {
		return nil, false
	}
	return p.m.Get(key)
}

// Has reports whether key is present.
func (p *Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Delete removes key.
func (p *Params) Delete(key string) {
	if p == nil {
		return
	}
	p.m.Delete(key)
}

// Len returns the number of keys.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns the keys in insertion order.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// SortedKeys returns the keys in byte order.
func (p *Params) SortedKeys() []string {
	keys := p.Keys()
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy. Values are immutable by convention.
func (p *Params) Clone() *Params {
	out := NewParams()
	if p == nil {
		return out
	}
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		out.m.Set(pair.Key, pair.Value)
	}
	return out
}

// Equal reports whether p and q hold the same keys with Equal values.
func (p *Params) Equal(q *Params) bool {
	if p.Len() != q.Len() {
		return false
	}
	for _, k := range p.Keys() {
		a, _ := p.Get(k)
		b, ok := q.Get(k)
		if !ok || !Equal(a, b) {
			return false
		}
	}
	return true
}
