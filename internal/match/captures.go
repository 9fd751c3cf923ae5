package match

import (
	"slices"

	"github.com/Tabbleman/ncnn/internal/ir"
)

// Captures is the capture table of one match attempt.
type Captures struct {
	values map[string]ir.Value
	order  []string
}

func newCaptures() *Captures {
	return &Captures{values: make(map[string]ir.Value)}
}

// bind records v under name, or checks v against the existing binding.
func (c *Captures) bind(name string, v ir.Value) bool {
	if old, ok := c.values[name]; ok {
		return ir.Equal(old, v)
	}
	c.values[name] = v
	c.order = append(c.order, name)
	return true
}

func (c *Captures) clone() *Captures {
	out := &Captures{values: make(map[string]ir.Value, len(c.values)), order: slices.Clone(c.order)}
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}

// Get returns the value bound to name.
func (c *Captures) Get(name string) (ir.Value, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Int returns the integer bound to name.
func (c *Captures) Int(name string) (int64, bool) {
	v, ok := c.values[name].(ir.Int)
	return int64(v), ok
}

// Ints returns the integer array bound to name.
func (c *Captures) Ints(name string) ([]int64, bool) {
	v, ok := c.values[name].(ir.Ints)
	return []int64(v), ok
}

// Bool returns the boolean bound to name.
func (c *Captures) Bool(name string) (bool, bool) {
	v, ok := c.values[name].(ir.Bool)
	return bool(v), ok
}

// Flag interprets the value bound to name as a boolean: a Bool as is, an
// Int as nonzero.
func (c *Captures) Flag(name string) (bool, bool) {
	switch v := c.values[name].(type) {
	case ir.Bool:
		return bool(v), true
	case ir.Int:
		return v != 0, true
	default:
		return false, false
	}
}

// Attribute returns the tensor attribute bound to name.
func (c *Captures) Attribute(name string) (*ir.Attribute, bool) {
	v, ok := c.values[name].(*ir.Attribute)
	return v, ok
}

// Names returns the bound names in binding order.
func (c *Captures) Names() []string {
	return slices.Clone(c.order)
}

// Len returns the number of bindings.
func (c *Captures) Len() int {
	return len(c.order)
}
