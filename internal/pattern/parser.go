package pattern

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Tabbleman/ncnn/internal/ir"
)

// ParseError reports a malformed pattern. Codes are shared with the graph
// text reader (ir.ErrBadHeader and friends).
type ParseError struct {
	Line    int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("pattern [%s] line %d: %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("pattern [%s] %s", e.Code, e.Message)
}

// IsParseError returns true if err is a ParseError.
// Uses errors.As to handle wrapped errors.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func fail(line int, code, format string, args ...any) error {
	return &ParseError{Line: line, Code: code, Message: fmt.Sprintf(format, args...)}
}

// MustParse is like Parse but panics on error. Intended for package-level
// rule tables whose patterns are fixed at compile time.
func MustParse(text string) *Graph {
	p, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse reads a pattern in graph text form extended with %capture and *
// wildcard values.
//
// Parse failures are configuration errors: a rule whose pattern does not
// parse must never be registered.
func Parse(text string) (*Graph, error) {
	t, err := ir.ScanText(text)
	if err != nil {
		var se *ir.SyntaxError
		if errors.As(err, &se) {
			return nil, &ParseError{Line: se.Line, Code: se.Code, Message: se.Message}
		}
		return nil, err
	}

	p := &Graph{operands: make(map[string]*Operand), anchor: -1}
	seen := make(map[string]bool)

	for _, l := range t.Lines {
		if seen[l.Name] {
			return nil, fail(l.Number, ir.ErrDuplicateName, "operator name %s repeated", l.Name)
		}
		seen[l.Name] = true

		op := &Operator{
			Type:    l.Type,
			Name:    l.Name,
			Inputs:  slices.Clone(l.Inputs),
			Outputs: slices.Clone(l.Outputs),
			Line:    l.Number,
		}
		if err := p.checkBoundary(op, l); err != nil {
			return nil, err
		}

		for _, name := range op.Inputs {
			o := p.operands[name]
			if o == nil {
				return nil, fail(l.Number, ir.ErrUndefined, "%s reads operand %s before it is produced", op.Name, name)
			}
			o.Consumers = append(o.Consumers, op.Name)
		}
		for _, name := range op.Outputs {
			if o := p.operands[name]; o != nil {
				return nil, fail(l.Number, ir.ErrDuplicateOutput, "operand %s produced by both %s and %s", name, o.Producer, op.Name)
			}
			p.operands[name] = &Operand{Name: name, Producer: op.Name}
			p.names = append(p.names, name)
		}

		for _, kv := range l.Params {
			s, err := ParseSlot(kv.Value)
			if err != nil {
				return nil, fail(l.Number, ir.ErrBadValue, "%s.%s: %v", op.Name, kv.Key, err)
			}
			op.Params = append(op.Params, Param{Key: kv.Key, Slot: s})
		}
		for _, kv := range l.Attrs {
			s, err := ParseAttributeSlot(kv.Value)
			if err != nil {
				return nil, fail(l.Number, ir.ErrBadValue, "%s.@%s: %v", op.Name, kv.Key, err)
			}
			op.Attrs = append(op.Attrs, Param{Key: kv.Key, Slot: s})
		}
		for _, kv := range l.Shapes {
			if err := p.constrain(op, l.Number, kv); err != nil {
				return nil, err
			}
		}

		switch op.Type {
		case ir.InputType:
			p.Inputs = append(p.Inputs, op.Outputs...)
		case ir.OutputType:
			for _, name := range op.Inputs {
				if slices.Contains(p.Outputs, name) {
					return nil, fail(l.Number, ir.ErrBoundary, "operand %s is a pattern output twice", name)
				}
				p.Outputs = append(p.Outputs, name)
			}
		default:
			p.anchor = len(p.Operators)
		}
		p.Operators = append(p.Operators, op)
	}

	if len(p.operands) != t.OperandCount {
		return nil, fail(0, ir.ErrCountMismatch, "header declares %d operands, found %d", t.OperandCount, len(p.operands))
	}
	if p.anchor < 0 {
		return nil, fail(0, ir.ErrNoInterior, "pattern has no interior operator")
	}
	if err := p.checkOperands(); err != nil {
		return nil, err
	}
	if err := p.checkConnected(); err != nil {
		return nil, err
	}

	for _, op := range p.Operators {
		for _, prm := range op.Params {
			p.Captures = prm.Slot.captures(p.Captures)
		}
		for _, prm := range op.Attrs {
			p.Captures = prm.Slot.captures(p.Captures)
		}
	}
	p.Captures = dedupe(p.Captures)
	return p, nil
}

func (p *Graph) checkBoundary(op *Operator, l ir.Line) error {
	switch op.Type {
	case ir.InputType:
		if len(op.Inputs) != 0 || len(op.Outputs) == 0 {
			return fail(l.Number, ir.ErrBoundary, "%s %s must have no inputs and at least one output", op.Type, op.Name)
		}
	case ir.OutputType:
		if len(op.Outputs) != 0 || len(op.Inputs) == 0 {
			return fail(l.Number, ir.ErrBoundary, "%s %s must have no outputs and at least one input", op.Type, op.Name)
		}
	default:
		return nil
	}
	if len(l.Params) > 0 || len(l.Attrs) > 0 {
		return fail(l.Number, ir.ErrBoundary, "%s %s cannot carry parameters", op.Type, op.Name)
	}
	return nil
}

func (p *Graph) constrain(op *Operator, line int, kv ir.KeyValue) error {
	if !slices.Contains(op.Inputs, kv.Key) && !slices.Contains(op.Outputs, kv.Key) {
		return fail(line, ir.ErrUndefined, "%s: shape for operand %s it does not use", op.Name, kv.Key)
	}
	shape, dtype, err := ir.ParseShape(kv.Value)
	if err != nil {
		return fail(line, ir.ErrBadValue, "%s.#%s: %v", op.Name, kv.Key, err)
	}
	o := p.operands[kv.Key]
	if o.Constrained() && (!slices.Equal(o.Shape, shape) || o.DType != dtype) {
		return fail(line, ir.ErrBadValue, "%s.#%s: conflicts with %s", op.Name, kv.Key, ir.FormatShape(o.Shape, o.DType))
	}
	o.Shape, o.DType = shape, dtype
	return nil
}

// checkOperands rejects pattern inputs nothing reads and pattern outputs
// that bypass every interior operator.
func (p *Graph) checkOperands() error {
	for _, name := range p.Inputs {
		o := p.operands[name]
		if len(o.Consumers) == 0 {
			return fail(p.Operator(o.Producer).Line, ir.ErrBoundary, "pattern input %s is never read", name)
		}
	}
	for _, name := range p.Outputs {
		if !p.IsInterior(name) {
			return fail(0, ir.ErrBoundary, "pattern output %s is not produced by an interior operator", name)
		}
	}
	return nil
}

// checkConnected verifies that interior operators form one component when
// linked through operands that an interior operator produces.
func (p *Graph) checkConnected() error {
	interior := p.Interior()
	parent := make(map[string]string, len(interior))
	for _, op := range interior {
		parent[op.Name] = op.Name
	}
	find := func(x string) string {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for _, o := range p.operands {
		if _, ok := parent[o.Producer]; !ok {
			continue
		}
		for _, c := range o.Consumers {
			if _, ok := parent[c]; ok {
				parent[find(c)] = find(o.Producer)
			}
		}
	}

	root := find(interior[0].Name)
	for _, op := range interior[1:] {
		if find(op.Name) != root {
			return fail(op.Line, ir.ErrDisconnected, "interior operator %s is not connected to %s", op.Name, interior[0].Name)
		}
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
