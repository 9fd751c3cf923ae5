package pattern

import (
	"fmt"
	"strings"

	"github.com/Tabbleman/ncnn/internal/ir"
)

// SlotKind distinguishes the forms a pattern parameter value can take.
type SlotKind int

const (
	// Literal requires structural equality with the live value.
	Literal SlotKind = iota
	// Capture binds the live value on first occurrence and requires
	// equality with the binding on every later occurrence.
	Capture
	// Wildcard matches any value without binding.
	Wildcard
	// Array matches an array value element by element. Used when an array
	// literal contains at least one capture or wildcard element.
	Array
)

func (k SlotKind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Capture:
		return "capture"
	case Wildcard:
		return "wildcard"
	case Array:
		return "array"
	default:
		return fmt.Sprintf("SlotKind(%d)", int(k))
	}
}

// Slot is one parameter or attribute value position in a pattern.
type Slot struct {
	Kind  SlotKind
	Value ir.Value // Literal
	Name  string   // Capture
	Elems []Slot   // Array; each element is Literal, Capture or Wildcard
}

// String renders the slot in pattern text syntax.
func (s Slot) String() string {
	switch s.Kind {
	case Capture:
		return "%" + s.Name
	case Wildcard:
		return "*"
	case Array:
		parts := make([]string, len(s.Elems))
		for i, e := range s.Elems {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return ir.FormatValue(s.Value)
	}
}

// captures appends the capture names of s to dst in order of appearance.
func (s Slot) captures(dst []string) []string {
	switch s.Kind {
	case Capture:
		return append(dst, s.Name)
	case Array:
		for _, e := range s.Elems {
			dst = e.captures(dst)
		}
	}
	return dst
}

// ParseSlot parses a parameter value token.
func ParseSlot(tok string) (Slot, error) {
	if s, ok, err := parseToken(tok); ok || err != nil {
		return s, err
	}

	if strings.HasPrefix(tok, "(") {
		elems, err := ir.SplitArray(tok)
		if err != nil {
			return Slot{}, err
		}
		if hasPlaceholder(elems) {
			arr := Slot{Kind: Array, Elems: make([]Slot, len(elems))}
			for i, e := range elems {
				es, ok, err := parseToken(e)
				if err != nil {
					return Slot{}, err
				}
				if !ok {
					v, err := ir.ParseScalar(e)
					if err != nil {
						return Slot{}, err
					}
					es = Slot{Kind: Literal, Value: v}
				}
				arr.Elems[i] = es
			}
			return arr, nil
		}
	}

	v, err := ir.ParseValue(tok)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Kind: Literal, Value: v}, nil
}

// ParseAttributeSlot parses an @attribute value token: a capture, a
// wildcard or a (shape)dtype literal.
func ParseAttributeSlot(tok string) (Slot, error) {
	if s, ok, err := parseToken(tok); ok || err != nil {
		return s, err
	}
	a, err := ir.ParseAttribute(tok)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Kind: Literal, Value: a}, nil
}

// parseToken recognizes the capture and wildcard forms.
func parseToken(tok string) (Slot, bool, error) {
	switch {
	case tok == "*":
		return Slot{Kind: Wildcard}, true, nil
	case strings.HasPrefix(tok, "%"):
		name := tok[1:]
		if !isIdentifier(name) {
			return Slot{}, false, fmt.Errorf("bad capture name %q", tok)
		}
		return Slot{Kind: Capture, Name: name}, true, nil
	}
	return Slot{}, false, nil
}

func hasPlaceholder(elems []string) bool {
	for _, e := range elems {
		if e == "*" || strings.HasPrefix(e, "%") {
			return true
		}
	}
	return false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
