package compiler

import (
	"fmt"
	"strings"

	"github.com/Tabbleman/ncnn/internal/pattern"
	"github.com/Tabbleman/ncnn/internal/registry"
)

// Validation error codes (E200-E299)
const (
	// Rule errors (E201-E209)
	ErrRuleNameEmpty    = "E201" // name is required
	ErrDuplicateRule    = "E202" // rule name declared twice
	ErrUnknownCanonical = "E203" // rule type has no canonical definition
	ErrBadPattern       = "E204" // pattern text does not parse
	ErrUnknownCapture   = "E205" // params reference a capture the pattern never binds
	ErrPatternArity     = "E206" // pattern boundary counts not allowed by the canonical type
	ErrNegativePriority = "E207" // priority must be >= 0

	// Canonical errors (E210-E219)
	ErrCanonicalNameEmpty = "E210" // name is required
	ErrDuplicateCanonical = "E211" // canonical type declared twice
	ErrBadArity           = "E212" // inconsistent arity bounds
)

// ValidationError represents a manifest validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled manifest. known lists canonical types defined
// elsewhere, such as the built-in ones, that rules may target.
// Returns all errors found (does not fail-fast).
func Validate(m *Manifest, known ...registry.Canonical) []ValidationError {
	var errs []ValidationError
	line := func(name string) int {
		if pos, ok := m.Positions[name]; ok && pos.IsValid() {
			return pos.Line()
		}
		return 0
	}

	canon := make(map[string]registry.Canonical, len(known)+len(m.Canonicals))
	for _, c := range known {
		canon[c.Name] = c
	}
	for i, c := range m.Canonicals {
		field := fmt.Sprintf("canonicals[%d]", i)

		// E210: name is required
		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "canonical name is required", Code: ErrCanonicalNameEmpty})
			continue
		}

		// E211: duplicate canonical
		if _, dup := canon[c.Name]; dup {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate canonical type: %q", c.Name), Code: ErrDuplicateCanonical, Line: line(c.Name)})
		}

		// E212: arity bounds
		if !consistent(c.MinInputs, c.MaxInputs) || !consistent(c.MinOutputs, c.MaxOutputs) {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("inconsistent arity bounds for %q", c.Name), Code: ErrBadArity, Line: line(c.Name)})
		}
		canon[c.Name] = c
	}

	names := make(map[string]bool)
	for i, r := range m.Rules {
		field := fmt.Sprintf("rules[%d]", i)

		// E201: name is required
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, ValidationError{Field: field + ".name", Message: "rule name is required", Code: ErrRuleNameEmpty})
			continue
		}
		ln := line(r.Name)

		// E202: duplicate rule
		if names[r.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate rule name: %q", r.Name), Code: ErrDuplicateRule, Line: ln})
		}
		names[r.Name] = true

		// E207: priority
		if r.Priority < 0 {
			errs = append(errs, ValidationError{Field: field + ".priority", Message: fmt.Sprintf("priority %d is negative", r.Priority), Code: ErrNegativePriority, Line: ln})
		}

		// E203: canonical type must be defined
		c, defined := canon[r.Type]
		if !defined {
			errs = append(errs, ValidationError{Field: field + ".type", Message: fmt.Sprintf("canonical type %q is not defined", r.Type), Code: ErrUnknownCanonical, Line: ln})
		}

		// E204: pattern must parse
		p, err := pattern.Parse(r.Pattern)
		if err != nil {
			errs = append(errs, ValidationError{Field: field + ".pattern", Message: err.Error(), Code: ErrBadPattern, Line: ln})
			continue
		}

		// E205: params may only copy bound captures
		for _, name := range r.Uses {
			if !p.HasCapture(name) {
				errs = append(errs, ValidationError{Field: field + ".params", Message: fmt.Sprintf("capture %%%s is not bound by the pattern", name), Code: ErrUnknownCapture, Line: ln})
			}
		}

		// E206: the rewrite must produce a well formed operator
		if defined && !c.Allows(len(p.Inputs), len(p.Outputs)) {
			errs = append(errs, ValidationError{
				Field:   field + ".pattern",
				Message: fmt.Sprintf("%s cannot have %d inputs and %d outputs", r.Type, len(p.Inputs), len(p.Outputs)),
				Code:    ErrPatternArity,
				Line:    ln,
			})
		}
	}

	return errs
}

func consistent(lo, hi int) bool {
	return lo >= 0 && (hi == registry.Unbounded || hi >= lo)
}
