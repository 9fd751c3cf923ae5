package registry

import (
	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/match"
	"github.com/Tabbleman/ncnn/internal/pattern"
)

// Validator accepts or rejects a structural match. A nil Validator accepts
// every match.
type Validator func(m *match.Result) bool

// Writer fills the parameters of the canonical operator that replaces a
// match. It must not touch the graph.
type Writer func(m *match.Result, params *ir.Params) error

// Rule rewrites one pattern into one canonical operator.
type Rule struct {
	// Name identifies the rule in errors, logs and the rewrite journal.
	Name string

	// Type is the canonical operator type the rule produces.
	Type string

	// Priority orders competing rules: higher is tried first, ties go to
	// the earlier registration.
	Priority int

	// Pattern is the pattern text.
	Pattern string

	// Uses lists the capture names Validate and Write read. Each must be
	// bound by the pattern.
	Uses []string

	Validate Validator
	Write    Writer
}

// Unbounded marks an arity bound as open.
const Unbounded = -1

// Canonical declares a canonical operator type and the arities a rewrite
// may give it.
type Canonical struct {
	Name       string
	MinInputs  int
	MaxInputs  int // Unbounded for no limit
	MinOutputs int
	MaxOutputs int // Unbounded for no limit
}

// Allows reports whether an operator with the given arity is well formed.
func (c Canonical) Allows(inputs, outputs int) bool {
	within := func(n, lo, hi int) bool {
		return n >= lo && (hi == Unbounded || n <= hi)
	}
	return within(inputs, c.MinInputs, c.MaxInputs) && within(outputs, c.MinOutputs, c.MaxOutputs)
}

// Entry is a registered rule with its parsed pattern.
type Entry struct {
	Rule      Rule
	Pattern   *pattern.Graph
	Canonical Canonical

	// Index is the registration position. It breaks priority ties.
	Index int
}

// AnchorType returns the operator type the sweep must see to try this rule.
func (e *Entry) AnchorType() string {
	return e.Pattern.Anchor().Type
}
