package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Tabbleman/ncnn/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the applied rewrites to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Rules    []string // Applied rules, in order
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nApplied rules:\n")
	for i, r := range e.Rules {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, r)
	}

	return buf.String()
}

func countType(g *ir.Graph, typ string) int {
	n := 0
	for _, op := range g.Operators() {
		if op.Type == typ {
			n++
		}
	}
	return n
}

// assertOpCount checks that exactly Count operators of OpType remain.
func assertOpCount(g *ir.Graph, result *Result, a Assertion) error {
	if n := countType(g, a.OpType); n != a.Count {
		return &AssertionError{
			Type:     AssertOpCount,
			Expected: fmt.Sprintf("%d operators of type %s", a.Count, a.OpType),
			Actual:   fmt.Sprintf("%d operators", n),
			Rules:    result.Rules(),
		}
	}
	return nil
}

// assertAbsent checks that no operator of OpType remains.
func assertAbsent(g *ir.Graph, result *Result, a Assertion) error {
	var names []string
	for _, op := range g.Operators() {
		if op.Type == a.OpType {
			names = append(names, op.Name)
		}
	}
	if len(names) > 0 {
		return &AssertionError{
			Type:     AssertAbsent,
			Expected: fmt.Sprintf("no operators of type %s", a.OpType),
			Actual:   fmt.Sprintf("found %s", strings.Join(names, ", ")),
			Rules:    result.Rules(),
		}
	}
	return nil
}

// assertOpParams checks the type and parameters of a named operator.
// Parameters are compared in their text form, so "(3,3)" and "False"
// are written the way the graph file writes them.
func assertOpParams(g *ir.Graph, result *Result, a Assertion) error {
	op := g.OperatorByName(a.Operator)
	if op == nil {
		return &AssertionError{
			Type:     AssertOpParams,
			Expected: fmt.Sprintf("operator %s", a.Operator),
			Actual:   "not found in graph",
			Rules:    result.Rules(),
		}
	}

	if a.OpType != "" && op.Type != a.OpType {
		return &AssertionError{
			Type:     AssertOpParams,
			Expected: fmt.Sprintf("operator %s of type %s", a.Operator, a.OpType),
			Actual:   fmt.Sprintf("type %s", op.Type),
			Rules:    result.Rules(),
		}
	}

	for _, k := range slices.Sorted(maps.Keys(a.Params)) {
		want := a.Params[k]
		v, ok := op.Params.Get(k)
		if !ok {
			return &AssertionError{
				Type:     AssertOpParams,
				Expected: fmt.Sprintf("%s.%s=%s", a.Operator, k, want),
				Actual:   "parameter missing",
				Rules:    result.Rules(),
			}
		}
		if got := ir.FormatValue(v); got != want {
			return &AssertionError{
				Type:     AssertOpParams,
				Expected: fmt.Sprintf("%s.%s=%s", a.Operator, k, want),
				Actual:   fmt.Sprintf("%s.%s=%s", a.Operator, k, got),
				Rules:    result.Rules(),
			}
		}
	}
	return nil
}

// assertRewriteOrder checks that the rules were applied in the given order.
// Other rewrites may be interleaved.
func assertRewriteOrder(result *Result, a Assertion) error {
	applied := result.Rules()
	next := 0
	for _, r := range applied {
		if next < len(a.Rules) && r == a.Rules[next] {
			next++
		}
	}
	if next < len(a.Rules) {
		return &AssertionError{
			Type:     AssertRewriteOrder,
			Expected: fmt.Sprintf("rules in order: %v", a.Rules),
			Actual:   fmt.Sprintf("%s not applied after %v", a.Rules[next], a.Rules[:next]),
			Rules:    applied,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the output graph and
// the result. Returns a slice of error messages for failed assertions.
func EvaluateAssertions(g *ir.Graph, result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertOpCount:
			err = assertOpCount(g, result, assertion)
		case AssertAbsent:
			err = assertAbsent(g, result, assertion)
		case AssertOpParams:
			err = assertOpParams(g, result, assertion)
		case AssertRewriteOrder:
			err = assertRewriteOrder(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
