// Package rewrite splices a canonical operator into a live graph in place
// of a matched region.
package rewrite

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/match"
	"github.com/Tabbleman/ncnn/internal/registry"
)

// InvariantError reports a rewrite that would leave, or has left, the graph
// malformed. It is always fatal to the conversion.
type InvariantError struct {
	Rule    string
	Anchor  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("rule %s at %s: %s", e.Rule, e.Anchor, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *InvariantError) Unwrap() error {
	return e.Err
}

// IsInvariantError returns true if err is an InvariantError.
// Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

// WriteError reports a rule writer that could not build parameters. The
// graph is untouched.
type WriteError struct {
	Rule string
	Err  error
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("rule %s: write parameters: %v", e.Rule, e.Err)
}

// Unwrap returns the underlying cause.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Apply replaces the region of m with one operator of the entry's canonical
// type and returns its ID.
//
// Everything that can fail for a well-formed graph is checked before the
// first mutation: the writer runs, the canonical arity is checked and every
// referenced ID is resolved. The splice then:
//  1. removes the region operators, freeing the anchor's name
//  2. removes operands internal to the pattern
//  3. inserts the new operator, named after the anchor, where the last
//     region operator was
//  4. wires the boundary inputs in pattern order and reuses the boundary
//     output operands, so downstream consumers need no repointing
//  5. restores a topological order and validates the graph
//
// A failure in steps 1-5 is an *InvariantError.
func Apply(g *ir.Graph, m *match.Result, e *registry.Entry) (ir.OperatorID, error) {
	rule := e.Rule.Name
	anchor := g.Operator(m.Anchor)
	if anchor == nil {
		return 0, &InvariantError{Rule: rule, Message: fmt.Sprintf("anchor operator %d is gone", m.Anchor)}
	}
	fail := func(msg string, err error) error {
		return &InvariantError{Rule: rule, Anchor: anchor.Name, Message: msg, Err: err}
	}

	params := ir.NewParams()
	if err := e.Rule.Write(m, params); err != nil {
		return 0, &WriteError{Rule: rule, Err: err}
	}
	if !e.Canonical.Allows(len(m.Inputs), len(m.Outputs)) {
		return 0, fail(fmt.Sprintf("%s cannot have %d inputs and %d outputs", e.Rule.Type, len(m.Inputs), len(m.Outputs)), nil)
	}

	pos := -1
	for _, id := range m.Region {
		p := g.Position(id)
		if p < 0 {
			return 0, fail(fmt.Sprintf("region operator %d is gone", id), nil)
		}
		pos = max(pos, p)
	}
	for _, id := range slices.Concat(m.Inputs, m.Outputs) {
		if g.Operand(id) == nil {
			return 0, fail(fmt.Sprintf("boundary operand %d is gone", id), nil)
		}
	}
	var dead []ir.OperandID
	for _, po := range m.Pattern.Operands() {
		if m.Pattern.IsInterior(po.Name) && !m.Pattern.IsOutput(po.Name) {
			id, ok := m.OperandID(po.Name)
			if !ok {
				return 0, fail(fmt.Sprintf("pattern operand %s is unbound", po.Name), nil)
			}
			dead = append(dead, id)
		}
	}
	name := anchor.Name

	for _, id := range m.Region {
		if err := g.RemoveOperator(id); err != nil {
			return 0, fail("remove region", err)
		}
	}
	for _, id := range dead {
		if err := g.RemoveOperand(id); err != nil {
			return 0, fail("remove internal operand", err)
		}
	}

	op, err := g.InsertOperator(pos-(len(m.Region)-1), e.Rule.Type, name)
	if err != nil {
		return 0, fail("insert canonical operator", err)
	}
	op.Params = params
	for _, id := range m.Inputs {
		if err := g.AddInput(op.ID, id); err != nil {
			return 0, fail("wire input", err)
		}
	}
	for _, id := range m.Outputs {
		if err := g.AddOutput(op.ID, id); err != nil {
			return 0, fail("wire output", err)
		}
	}

	if err := g.Reorder(); err != nil {
		return 0, fail("reorder", err)
	}
	if err := g.Validate(); err != nil {
		return 0, fail("post-condition", err)
	}
	return op.ID, nil
}
