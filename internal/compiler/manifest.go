package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/match"
	"github.com/Tabbleman/ncnn/internal/registry"
)

// Manifest is the compiled content of one or more rule manifests.
//
// A manifest declares canonical types and rules whose applicator only
// copies literals and captured values:
//
//	canonicals: [{name: "F.relu", inputs: 1, outputs: 1}]
//	rules: [{
//		name:     "F_relu_onnx"
//		type:     "F.relu"
//		priority: 10
//		pattern:  """
//			7767517
//			3 2
//			pnnx.Input  input 0 1 input
//			Relu        op_0  1 1 input out
//			pnnx.Output output 1 0 out
//			"""
//		params: {inplace: false}
//	}]
//
// A params value is a literal or a "%name" string naming a capture; the
// captured value is copied whole. Rules keep their list order, which is
// their registration order.
type Manifest struct {
	Canonicals []registry.Canonical
	Rules      []registry.Rule

	// Positions records where each rule and canonical was declared, keyed
	// by name.
	Positions map[string]token.Pos
}

// Register defines the manifest's canonical types on b and registers its
// rules.
func (m *Manifest) Register(b *registry.Builder) *registry.Builder {
	for _, c := range m.Canonicals {
		b.Define(c)
	}
	return b.Register(m.Rules...)
}

// Merge appends the content of other to m.
func (m *Manifest) Merge(other *Manifest) {
	m.Canonicals = append(m.Canonicals, other.Canonicals...)
	m.Rules = append(m.Rules, other.Rules...)
	if m.Positions == nil {
		m.Positions = make(map[string]token.Pos)
	}
	for k, v := range other.Positions {
		if _, ok := m.Positions[k]; !ok {
			m.Positions[k] = v
		}
	}
}

// Compile parses a manifest from a CUE value holding optional "canonicals"
// and "rules" lists.
func Compile(v cue.Value) (*Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &Manifest{Positions: make(map[string]token.Pos)}

	canonicals, err := CompileCanonicals(v)
	if err != nil {
		return nil, err
	}
	m.Canonicals = canonicals

	rules, err := CompileRules(v)
	if err != nil {
		return nil, err
	}
	m.Rules = rules

	recordPositions(m, v, "canonicals")
	recordPositions(m, v, "rules")
	return m, nil
}

func recordPositions(m *Manifest, v cue.Value, list string) {
	iter, err := v.LookupPath(cue.ParsePath(list)).List()
	if err != nil {
		return
	}
	for iter.Next() {
		name, err := iter.Value().LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			continue
		}
		if _, ok := m.Positions[name]; !ok {
			m.Positions[name] = iter.Value().Pos()
		}
	}
}

// CompileCanonicals parses the "canonicals" list of v.
//
// Each entry has a name and either exact "inputs"/"outputs" counts or
// "min_inputs"/"max_inputs" and "min_outputs"/"max_outputs" bounds. A max
// of -1 leaves the count unbounded.
func CompileCanonicals(v cue.Value) ([]registry.Canonical, error) {
	listVal := v.LookupPath(cue.ParsePath("canonicals"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []registry.Canonical
	for i := 0; iter.Next(); i++ {
		cv := iter.Value()
		field := fmt.Sprintf("canonicals[%d]", i)

		name, err := requiredString(cv, field, "name")
		if err != nil {
			return nil, err
		}
		c := registry.Canonical{Name: name}
		if c.MinInputs, c.MaxInputs, err = arity(cv, field, "inputs"); err != nil {
			return nil, err
		}
		if c.MinOutputs, c.MaxOutputs, err = arity(cv, field, "outputs"); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// arity reads either an exact count or a min/max pair.
func arity(v cue.Value, field, what string) (lo, hi int, err error) {
	exact := v.LookupPath(cue.ParsePath(what))
	if exact.Exists() {
		n, err := intField(exact, field+"."+what)
		return n, n, err
	}

	minVal := v.LookupPath(cue.ParsePath("min_" + what))
	if !minVal.Exists() {
		return 0, 0, &CompileError{
			Field:   field + "." + what,
			Message: fmt.Sprintf("%s or min_%s is required", what, what),
			Pos:     v.Pos(),
		}
	}
	if lo, err = intField(minVal, field+".min_"+what); err != nil {
		return 0, 0, err
	}
	hi = lo
	if maxVal := v.LookupPath(cue.ParsePath("max_" + what)); maxVal.Exists() {
		if hi, err = intField(maxVal, field+".max_"+what); err != nil {
			return 0, 0, err
		}
	}
	return lo, hi, nil
}

// CompileRules parses the "rules" list of v into registry rules in list
// order.
func CompileRules(v cue.Value) ([]registry.Rule, error) {
	listVal := v.LookupPath(cue.ParsePath("rules"))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []registry.Rule
	for i := 0; iter.Next(); i++ {
		r, err := compileRule(iter.Value(), fmt.Sprintf("rules[%d]", i))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func compileRule(v cue.Value, field string) (registry.Rule, error) {
	var r registry.Rule
	var err error

	if r.Name, err = requiredString(v, field, "name"); err != nil {
		return r, err
	}
	if r.Type, err = requiredString(v, field, "type"); err != nil {
		return r, err
	}
	if r.Pattern, err = requiredString(v, field, "pattern"); err != nil {
		return r, err
	}

	if p := v.LookupPath(cue.ParsePath("priority")); p.Exists() {
		if r.Priority, err = intField(p, field+".priority"); err != nil {
			return r, err
		}
	}

	specs, err := compileParams(v, field)
	if err != nil {
		return r, err
	}
	for _, s := range specs {
		if s.capture != "" {
			r.Uses = append(r.Uses, s.capture)
		}
	}
	r.Write = specs.write
	return r, nil
}

// paramSpec is one entry of a rule's params block.
type paramSpec struct {
	key     string
	value   ir.Value // literal, when capture is empty
	capture string
}

type paramSpecs []paramSpec

func (ps paramSpecs) write(m *match.Result, params *ir.Params) error {
	for _, s := range ps {
		if s.capture == "" {
			params.Set(s.key, s.value)
			continue
		}
		v, ok := m.Captures.Get(s.capture)
		if !ok {
			return fmt.Errorf("param %s: capture %%%s is not bound", s.key, s.capture)
		}
		params.Set(s.key, v)
	}
	return nil
}

func compileParams(v cue.Value, field string) (paramSpecs, error) {
	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, nil
	}
	iter, err := paramsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs paramSpecs
	for iter.Next() {
		key := iter.Selector().Unquoted()
		path := field + ".params." + key
		val, capture, err := toValue(iter.Value(), path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, paramSpec{key: key, value: val, capture: capture})
	}
	return specs, nil
}

// toValue converts a concrete CUE value to a parameter value. A string
// starting with % is a capture reference and is returned as capture.
func toValue(v cue.Value, field string) (val ir.Value, capture string, err error) {
	switch v.Kind() {
	case cue.BoolKind:
		b, err := v.Bool()
		return ir.Bool(b), "", formatCUEError(err)
	case cue.IntKind:
		n, err := v.Int64()
		return ir.Int(n), "", formatCUEError(err)
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		return ir.Float(f), "", formatCUEError(err)
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, "", formatCUEError(err)
		}
		if name, ok := strings.CutPrefix(s, "%"); ok {
			if !isIdentifier(name) {
				return nil, "", &CompileError{Field: field, Message: fmt.Sprintf("invalid capture reference %q", s), Pos: v.Pos()}
			}
			return nil, name, nil
		}
		return ir.String(norm.NFC.String(s)), "", nil
	case cue.ListKind:
		arr, err := toArray(v, field)
		return arr, "", err
	case cue.BottomKind:
		return nil, "", &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
	default:
		return nil, "", &CompileError{Field: field, Message: fmt.Sprintf("unsupported value kind %v", v.Kind()), Pos: v.Pos()}
	}
}

// toArray picks the array kind from the widest element: any string makes
// a string array, which must then hold only strings; any float makes a
// float array.
func toArray(v cue.Value, field string) (ir.Value, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var ints []int64
	var floats []float64
	var strs []string
	numbers := 0
	hasFloat := false
	for i := 0; iter.Next(); i++ {
		ev := iter.Value()
		switch ev.Kind() {
		case cue.IntKind:
			n, err := ev.Int64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			ints = append(ints, n)
			floats = append(floats, float64(n))
			numbers++
		case cue.FloatKind, cue.NumberKind:
			f, err := ev.Float64()
			if err != nil {
				return nil, formatCUEError(err)
			}
			floats = append(floats, f)
			hasFloat = true
			numbers++
		case cue.StringKind:
			s, err := ev.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			if strings.HasPrefix(s, "%") {
				return nil, &CompileError{Field: fmt.Sprintf("%s[%d]", field, i), Message: "captures must be whole param values", Pos: ev.Pos()}
			}
			strs = append(strs, norm.NFC.String(s))
		default:
			return nil, &CompileError{Field: fmt.Sprintf("%s[%d]", field, i), Message: fmt.Sprintf("unsupported element kind %v", ev.Kind()), Pos: ev.Pos()}
		}
	}

	switch {
	case len(strs) > 0 && numbers > 0:
		return nil, &CompileError{Field: field, Message: "array mixes strings and numbers", Pos: v.Pos()}
	case len(strs) > 0:
		return ir.Strings(strs), nil
	case hasFloat:
		return ir.Floats(floats), nil
	case ints == nil:
		return ir.Ints{}, nil
	default:
		return ir.Ints(ints), nil
	}
}

func requiredString(v cue.Value, field, name string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", &CompileError{Field: field + "." + name, Message: name + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func intField(v cue.Value, field string) (int, error) {
	n, err := v.Int64()
	if err != nil {
		return 0, &CompileError{Field: field, Message: "must be an integer", Pos: v.Pos()}
	}
	return int(n), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
