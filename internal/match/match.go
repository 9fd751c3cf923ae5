package match

import (
	"slices"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/pattern"
)

// Result is a successful structural match of a pattern in a live graph.
// It refers to live operators and operands by ID only.
type Result struct {
	Pattern  *pattern.Graph
	Graph    *ir.Graph
	Captures *Captures

	// Anchor is the live operator matched by the pattern anchor.
	Anchor ir.OperatorID

	// Region lists the matched live operators in sequence order.
	Region []ir.OperatorID

	// Inputs and Outputs are the live boundary operands in the order of the
	// pattern's pnnx.Input and pnnx.Output declarations.
	Inputs  []ir.OperandID
	Outputs []ir.OperandID

	operators map[string]ir.OperatorID
	operands  map[string]ir.OperandID
}

// OperatorID returns the live operator bound to a pattern operator name.
func (r *Result) OperatorID(name string) (ir.OperatorID, bool) {
	id, ok := r.operators[name]
	return id, ok
}

// OperandID returns the live operand bound to a pattern operand name.
func (r *Result) OperandID(name string) (ir.OperandID, bool) {
	id, ok := r.operands[name]
	return id, ok
}

// Operator returns the live operator bound to a pattern operator name, or
// nil.
func (r *Result) Operator(name string) *ir.Operator {
	id, ok := r.operators[name]
	if !ok {
		return nil
	}
	return r.Graph.Operator(id)
}

// Operand returns the live operand bound to a pattern operand name, or nil.
func (r *Result) Operand(name string) *ir.Operand {
	id, ok := r.operands[name]
	if !ok {
		return nil
	}
	return r.Graph.Operand(id)
}

// Find scans g in sequence order and returns the first match of p.
func Find(p *pattern.Graph, g *ir.Graph) (*Result, bool) {
	typ := p.Anchor().Type
	for _, op := range g.Operators() {
		if op.Type != typ {
			continue
		}
		if r, ok := Match(p, g, op.ID); ok {
			return r, true
		}
	}
	return nil, false
}

// Match tries to find an occurrence of p in g whose anchor operator is the
// live operator anchor.
//
// Starting from the anchor the matcher walks backwards through operand
// producers, which is deterministic, and forwards through operand
// consumers, trying each live consumer in turn. A match also requires that
// the region can be replaced by one operator:
//   - every operand internal to the pattern has no live consumer outside
//     the region unless it is a pattern output
//   - no pattern input is produced inside the region
//   - no path leaves the region and re-enters it
//
// Failure is not an error; nothing from the attempt is retained.
func Match(p *pattern.Graph, g *ir.Graph, anchor ir.OperatorID) (*Result, bool) {
	m := &matcher{p: p, g: g, interior: p.Interior()}
	s := newState()
	if !m.assign(s, p.Anchor(), anchor) {
		return nil, false
	}
	s, ok := m.solve(s)
	if !ok || !m.closed(s) {
		return nil, false
	}
	return m.result(s, anchor), true
}

type state struct {
	ops   map[string]ir.OperatorID
	taken map[ir.OperatorID]bool
	vals  map[string]ir.OperandID
	owner map[ir.OperandID]string
	caps  *Captures
}

func newState() *state {
	return &state{
		ops:   make(map[string]ir.OperatorID),
		taken: make(map[ir.OperatorID]bool),
		vals:  make(map[string]ir.OperandID),
		owner: make(map[ir.OperandID]string),
		caps:  newCaptures(),
	}
}

func (s *state) clone() *state {
	out := &state{
		ops:   make(map[string]ir.OperatorID, len(s.ops)),
		taken: make(map[ir.OperatorID]bool, len(s.taken)),
		vals:  make(map[string]ir.OperandID, len(s.vals)),
		owner: make(map[ir.OperandID]string, len(s.owner)),
		caps:  s.caps.clone(),
	}
	for k, v := range s.ops {
		out.ops[k] = v
	}
	for k, v := range s.taken {
		out.taken[k] = v
	}
	for k, v := range s.vals {
		out.vals[k] = v
	}
	for k, v := range s.owner {
		out.owner[k] = v
	}
	return out
}

type matcher struct {
	p        *pattern.Graph
	g        *ir.Graph
	interior []*pattern.Operator
}

// solve extends s until every interior pattern operator is bound.
func (m *matcher) solve(s *state) (*state, bool) {
	for {
		pop, id, found, ok := m.backward(s)
		if !ok {
			return nil, false
		}
		if !found {
			break
		}
		if !m.assign(s, pop, id) {
			return nil, false
		}
	}

	for _, pop := range m.interior {
		if _, done := s.ops[pop.Name]; done {
			continue
		}
		for _, in := range pop.Inputs {
			v, bound := s.vals[in]
			if !bound || !m.p.IsInterior(in) {
				continue
			}
			for _, c := range distinct(m.g.Operand(v).Consumers) {
				next := s.clone()
				if !m.assign(next, pop, c) {
					continue
				}
				if res, ok := m.solve(next); ok {
					return res, true
				}
			}
			return nil, false
		}
	}
	return s, len(s.ops) == len(m.interior)
}

// backward finds an unbound pattern operator whose output is already bound
// and returns the live producer it must map to. ok is false when that
// producer does not exist.
func (m *matcher) backward(s *state) (pop *pattern.Operator, id ir.OperatorID, found, ok bool) {
	for _, pop := range m.interior {
		if _, done := s.ops[pop.Name]; done {
			continue
		}
		for _, out := range pop.Outputs {
			v, bound := s.vals[out]
			if !bound {
				continue
			}
			prod := m.g.Operand(v).Producer
			if prod == ir.NoOperator {
				return nil, 0, false, false
			}
			return pop, prod, true, true
		}
	}
	return nil, 0, false, true
}

// assign binds pattern operator pop to live operator id and binds its
// operands position by position.
func (m *matcher) assign(s *state, pop *pattern.Operator, id ir.OperatorID) bool {
	if s.taken[id] {
		return false
	}
	op := m.g.Operator(id)
	if op == nil || op.IsBoundary() || op.Type != pop.Type {
		return false
	}
	if len(op.Inputs) != len(pop.Inputs) || len(op.Outputs) != len(pop.Outputs) {
		return false
	}
	if !matchParams(pop.Params, op.Params, s.caps, matchSlot) {
		return false
	}
	if !matchParams(pop.Attrs, op.Attrs, s.caps, matchAttrSlot) {
		return false
	}

	s.ops[pop.Name] = id
	s.taken[id] = true
	for i, name := range pop.Inputs {
		if !m.bindOperand(s, name, op.Inputs[i]) {
			return false
		}
	}
	for i, name := range pop.Outputs {
		if !m.bindOperand(s, name, op.Outputs[i]) {
			return false
		}
	}
	return true
}

// bindOperand binds a pattern operand name to a live operand. Distinct
// pattern operands bind distinct live operands, except that two pattern
// inputs may both read the same live operand.
func (m *matcher) bindOperand(s *state, name string, id ir.OperandID) bool {
	if cur, ok := s.vals[name]; ok {
		return cur == id
	}
	if other, ok := s.owner[id]; ok {
		if m.p.IsInterior(name) || m.p.IsInterior(other) {
			return false
		}
	}
	if !shapeFits(m.p.Operand(name), m.g.Operand(id)) {
		return false
	}
	s.vals[name] = id
	if _, ok := s.owner[id]; !ok {
		s.owner[id] = name
	}
	return true
}

// closed checks that the bound region can be replaced by one operator.
func (m *matcher) closed(s *state) bool {
	region := make(map[ir.OperatorID]bool, len(s.ops))
	for _, id := range s.ops {
		region[id] = true
	}

	for _, po := range m.p.Operands() {
		id, bound := s.vals[po.Name]
		if !bound {
			return false
		}
		v := m.g.Operand(id)
		if !m.p.IsInterior(po.Name) {
			if region[v.Producer] {
				return false
			}
			continue
		}
		if m.p.IsOutput(po.Name) {
			continue
		}
		if len(v.Consumers) != len(po.Consumers) {
			return false
		}
		for _, c := range v.Consumers {
			if !region[c] {
				return false
			}
		}
	}
	return m.convex(region)
}

// convex reports whether no path from the region's outputs re-enters the
// region through an operator outside it.
func (m *matcher) convex(region map[ir.OperatorID]bool) bool {
	var queue []ir.OperatorID
	for id := range region {
		for _, out := range m.g.Operator(id).Outputs {
			for _, c := range m.g.Operand(out).Consumers {
				if !region[c] {
					queue = append(queue, c)
				}
			}
		}
	}

	visited := make(map[ir.OperatorID]bool)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, out := range m.g.Operator(id).Outputs {
			for _, c := range m.g.Operand(out).Consumers {
				if region[c] {
					return false
				}
				queue = append(queue, c)
			}
		}
	}
	return true
}

func (m *matcher) result(s *state, anchor ir.OperatorID) *Result {
	r := &Result{
		Pattern:   m.p,
		Graph:     m.g,
		Captures:  s.caps,
		Anchor:    anchor,
		operators: s.ops,
		operands:  s.vals,
	}
	for _, id := range s.ops {
		r.Region = append(r.Region, id)
	}
	slices.SortFunc(r.Region, func(a, b ir.OperatorID) int {
		return m.g.Position(a) - m.g.Position(b)
	})
	for _, name := range m.p.Inputs {
		r.Inputs = append(r.Inputs, s.vals[name])
	}
	for _, name := range m.p.Outputs {
		r.Outputs = append(r.Outputs, s.vals[name])
	}
	return r
}

func distinct(ids []ir.OperatorID) []ir.OperatorID {
	var out []ir.OperatorID
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
