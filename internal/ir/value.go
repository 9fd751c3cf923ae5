package ir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over operator parameter and attribute values.
// Only Bool, Int, Float, String, Ints, Floats, Strings and *Attribute
// implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Bool is a boolean parameter. Written as True / False.
type Bool bool

func (Bool) irValue() {}

// Int is an integer parameter. Always int64.
type Int int64

func (Int) irValue() {}

// Float is a floating point parameter.
type Float float64

func (Float) irValue() {}

// String is a string parameter. Strings are NFC normalized on parse.
type String string

func (String) irValue() {}

// Ints is an integer array parameter.
type Ints []int64

func (Ints) irValue() {}

// Floats is a float array parameter.
type Floats []float64

func (Floats) irValue() {}

// Strings is a string array parameter.
type Strings []string

func (Strings) irValue() {}

// Kind returns the tag name of v.
func Kind(v Value) string {
	switch v.(type) {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Ints:
		return "int[]"
	case Floats:
		return "float[]"
	case Strings:
		return "string[]"
	case *Attribute:
		return "tensor"
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Equal reports whether a and b carry the same tag and the same payload.
// Floats compare with ==, so NaN never equals anything.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		y, ok := b.(Int)
		return ok && x == y
	case Float:
		y, ok := b.(Float)
		return ok && x == y
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Ints:
		y, ok := b.(Ints)
		return ok && slices.Equal(x, y)
	case Floats:
		y, ok := b.(Floats)
		return ok && slices.Equal(x, y)
	case Strings:
		y, ok := b.(Strings)
		return ok && slices.Equal(x, y)
	case *Attribute:
		y, ok := b.(*Attribute)
		return ok && x.Equal(y)
	default:
		return false
	}
}

// Len returns the number of elements of an array value, or -1 for scalars
// and tensors.
func Len(v Value) int {
	switch x := v.(type) {
	case Ints:
		return len(x)
	case Floats:
		return len(x)
	case Strings:
		return len(x)
	default:
		return -1
	}
}

// Elem returns element i of an array value as a scalar value.
func Elem(v Value, i int) (Value, bool) {
	if i < 0 || i >= Len(v) {
		return nil, false
	}
	switch x := v.(type) {
	case Ints:
		return Int(x[i]), true
	case Floats:
		return Float(x[i]), true
	case Strings:
		return String(x[i]), true
	}
	return nil, false
}

// ArrayOf builds an array value from scalar elements. The array kind is the
// widest element kind: any String gives Strings, any Float gives Floats,
// otherwise Ints. An empty element list gives an empty Ints.
func ArrayOf(elems []Value) (Value, error) {
	kind := "int"
	for i, e := range elems {
		switch e.(type) {
		case Int:
		case Float:
			if kind == "int" {
				kind = "float"
			}
		case String:
			kind = "string"
		default:
			return nil, fmt.Errorf("array element %d: %s is not a scalar", i, Kind(e))
		}
	}

	switch kind {
	case "string":
		out := make(Strings, len(elems))
		for i, e := range elems {
			out[i] = scalarString(e)
		}
		return out, nil
	case "float":
		out := make(Floats, len(elems))
		for i, e := range elems {
			switch x := e.(type) {
			case Int:
				out[i] = float64(x)
			case Float:
				out[i] = float64(x)
			}
		}
		return out, nil
	default:
		out := make(Ints, len(elems))
		for i, e := range elems {
			out[i] = int64(e.(Int))
		}
		return out, nil
	}
}

func scalarString(v Value) string {
	switch x := v.(type) {
	case String:
		return string(x)
	default:
		return FormatValue(v)
	}
}

// ParseValue parses the literal text form of a parameter value.
//
//	True False        -> Bool
//	12 -3             -> Int
//	1.5 1e-05         -> Float
//	(1,2) (1.5,2)     -> Ints / Floats
//	(a,b)             -> Strings
//	anything else     -> String
func ParseValue(s string) (Value, error) {
	switch s {
	case "":
		return nil, fmt.Errorf("empty value")
	case "True":
		return Bool(true), nil
	case "False":
		return Bool(false), nil
	}

	if s[0] == '(' {
		elems, err := SplitArray(s)
		if err != nil {
			return nil, err
		}
		vals := make([]Value, len(elems))
		for i, e := range elems {
			v, err := ParseScalar(e)
			if err != nil {
				return nil, fmt.Errorf("array element %d: %w", i, err)
			}
			vals[i] = v
		}
		return ArrayOf(vals)
	}

	return ParseScalar(s)
}

// SplitArray splits "(a,b,c)" into its element texts. Nested arrays are
// not part of the format.
func SplitArray(s string) ([]string, error) {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("malformed array %q", s)
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return []string{}, nil
	}
	if strings.ContainsAny(inner, "()") {
		return nil, fmt.Errorf("nested array in %q", s)
	}
	elems := strings.Split(inner, ",")
	for i, e := range elems {
		if e == "" {
			return nil, fmt.Errorf("empty element %d in %q", i, s)
		}
	}
	return elems, nil
}

// ParseScalar parses a single non-array literal.
func ParseScalar(s string) (Value, error) {
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	if strings.ContainsAny(s, "()=") {
		return nil, fmt.Errorf("unexpected character in value %q", s)
	}
	if looksNumeric(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(n), nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f), nil
		}
	}
	return String(norm.NFC.String(s)), nil
}

func looksNumeric(s string) bool {
	c := s[0]
	if c == '-' || c == '+' {
		if len(s) == 1 {
			return false
		}
		c = s[1]
	}
	return (c >= '0' && c <= '9') || c == '.'
}

// FormatValue renders v in the text form read by ParseValue.
// Floats always carry an exponent so they read back as floats.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case Bool:
		if x {
			return "True"
		}
		return "False"
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return formatFloat(float64(x))
	case String:
		return string(x)
	case Ints:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case Floats:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = formatFloat(f)
		}
		return "(" + strings.Join(parts, ",") + ")"
	case Strings:
		return "(" + strings.Join(x, ",") + ")"
	case *Attribute:
		return x.String()
	default:
		return fmt.Sprintf("<%s>", Kind(v))
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'e', -1, 64)
}
