package pattern

import (
	"slices"

	"github.com/Tabbleman/ncnn/internal/ir"
)

// Param is one keyed slot of a pattern operator.
type Param struct {
	Key  string
	Slot Slot
}

// Operator is a pattern operator line.
type Operator struct {
	Type    string
	Name    string
	Inputs  []string
	Outputs []string
	Params  []Param
	Attrs   []Param
	Line    int
}

// IsBoundary reports whether op is a pnnx.Input or pnnx.Output line.
func (op *Operator) IsBoundary() bool {
	return op.Type == ir.InputType || op.Type == ir.OutputType
}

// Param returns the slot for key.
func (op *Operator) Param(key string) (Slot, bool) {
	for _, p := range op.Params {
		if p.Key == key {
			return p.Slot, true
		}
	}
	return Slot{}, false
}

// Operand is a named pattern operand. Names are the identity: every
// reference to the same name denotes the same live operand.
type Operand struct {
	Name      string
	Producer  string   // operator name
	Consumers []string // operator names, one entry per input position
	Shape     []int64  // nil when unconstrained
	DType     ir.DType
}

// Constrained reports whether the operand carries a #shape constraint.
func (o *Operand) Constrained() bool {
	return o.Shape != nil || o.DType != ir.NoDType
}

// Graph is a parsed pattern.
//
// INVARIANTS:
//   - at least one interior operator
//   - every operand has exactly one producer
//   - interior operators are connected through interior operands
//   - Captures lists each capture name once, in order of first appearance
type Graph struct {
	Operators []*Operator // declaration order, boundary lines included
	Inputs    []string    // operands produced by pnnx.Input, in order
	Outputs   []string    // operands consumed by pnnx.Output, in order
	Captures  []string

	operands map[string]*Operand
	names    []string // operand declaration order
	anchor   int
}

// Operator returns the pattern operator with the given name, or nil.
func (p *Graph) Operator(name string) *Operator {
	for _, op := range p.Operators {
		if op.Name == name {
			return op
		}
	}
	return nil
}

// Operand returns the pattern operand with the given name, or nil.
func (p *Graph) Operand(name string) *Operand {
	return p.operands[name]
}

// Operands returns the operands in declaration order.
func (p *Graph) Operands() []*Operand {
	out := make([]*Operand, len(p.names))
	for i, n := range p.names {
		out[i] = p.operands[n]
	}
	return out
}

// Interior returns the non-boundary operators in declaration order.
func (p *Graph) Interior() []*Operator {
	var out []*Operator
	for _, op := range p.Operators {
		if !op.IsBoundary() {
			out = append(out, op)
		}
	}
	return out
}

// Anchor returns the last interior operator. The sweep tries a rule only at
// live operators whose type equals the anchor's.
func (p *Graph) Anchor() *Operator {
	return p.Operators[p.anchor]
}

// IsInterior reports whether the operand is produced by an interior
// operator.
func (p *Graph) IsInterior(operand string) bool {
	o := p.operands[operand]
	if o == nil {
		return false
	}
	prod := p.Operator(o.Producer)
	return prod != nil && !prod.IsBoundary()
}

// IsOutput reports whether the operand is consumed by pnnx.Output.
func (p *Graph) IsOutput(operand string) bool {
	return slices.Contains(p.Outputs, operand)
}

// HasCapture reports whether the pattern binds name.
func (p *Graph) HasCapture(name string) bool {
	return slices.Contains(p.Captures, name)
}
