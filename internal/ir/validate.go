package ir

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Validate checks the structural invariants of g and returns the first
// violation found:
//   - every referenced operator and operand is live
//   - producer and consumer lists agree with operator input/output lists
//   - every operand has at most one producer
//   - the operator sequence is a topological order
func (g *Graph) Validate() error {
	for _, id := range g.order {
		op := g.operators[id]
		if op == nil {
			return &GraphError{Message: fmt.Sprintf("sequence references removed operator %d", id)}
		}
		for _, in := range op.Inputs {
			v := g.Operand(in)
			if v == nil {
				return &GraphError{Operator: op.Name, Message: fmt.Sprintf("dangling input operand %d", in)}
			}
			if count(op.Inputs, in) != count(v.Consumers, id) {
				return &GraphError{Operator: op.Name, Operand: v.Name, Message: "consumer list out of sync with inputs"}
			}
		}
		for _, out := range op.Outputs {
			v := g.Operand(out)
			if v == nil {
				return &GraphError{Operator: op.Name, Message: fmt.Sprintf("dangling output operand %d", out)}
			}
			if v.Producer != id {
				return &GraphError{Operator: op.Name, Operand: v.Name, Message: "operand produced by a different operator"}
			}
		}
	}

	for _, v := range g.operands {
		if v == nil {
			continue
		}
		if v.Producer != NoOperator {
			p := g.Operator(v.Producer)
			if p == nil {
				return &GraphError{Operand: v.Name, Message: "producer was removed"}
			}
			if !slices.Contains(p.Outputs, v.ID) {
				return &GraphError{Operator: p.Name, Operand: v.Name, Message: "producer does not list operand as output"}
			}
		}
		for _, c := range v.Consumers {
			op := g.Operator(c)
			if op == nil {
				return &GraphError{Operand: v.Name, Message: "consumer was removed"}
			}
			if !slices.Contains(op.Inputs, v.ID) {
				return &GraphError{Operator: op.Name, Operand: v.Name, Message: "consumer does not list operand as input"}
			}
		}
	}

	if !g.isTopological() {
		return &GraphError{Message: "operator sequence is not a topological order"}
	}
	return nil
}

func count[T comparable](s []T, x T) int {
	n := 0
	for _, e := range s {
		if e == x {
			n++
		}
	}
	return n
}

// isTopological reports whether every operator comes after the producers
// of its inputs.
func (g *Graph) isTopological() bool {
	pos := make(map[OperatorID]int, len(g.order))
	for i, id := range g.order {
		pos[id] = i
	}
	for i, id := range g.order {
		op := g.operators[id]
		if op == nil {
			continue
		}
		for _, in := range op.Inputs {
			v := g.Operand(in)
			if v == nil || v.Producer == NoOperator {
				continue
			}
			p, ok := pos[v.Producer]
			if !ok || p >= i {
				return false
			}
		}
	}
	return true
}

// Reorder restores a topological operator sequence, keeping the current
// relative order wherever the data flow allows it. It is a no-op when the
// sequence is already topological.
func (g *Graph) Reorder() error {
	if g.isTopological() {
		return nil
	}

	pos := make(map[int64]int, len(g.order))
	dg := simple.NewDirectedGraph()
	for i, id := range g.order {
		pos[int64(id)] = i
		dg.AddNode(simple.Node(id))
	}
	for _, id := range g.order {
		op := g.operators[id]
		for _, in := range op.Inputs {
			v := g.Operand(in)
			if v == nil || v.Producer == NoOperator {
				continue
			}
			if v.Producer == id {
				return &GraphError{Operator: op.Name, Operand: v.Name, Message: "operator consumes its own output"}
			}
			if g.Operator(v.Producer) == nil {
				return &GraphError{Operator: op.Name, Operand: v.Name, Message: "producer was removed"}
			}
			if !dg.HasEdgeFromTo(int64(v.Producer), int64(id)) {
				dg.SetEdge(dg.NewEdge(simple.Node(v.Producer), simple.Node(id)))
			}
		}
	}

	sorted, err := topo.SortStabilized(dg, func(nodes []graph.Node) {
		slices.SortFunc(nodes, func(a, b graph.Node) int {
			return pos[a.ID()] - pos[b.ID()]
		})
	})
	if err != nil {
		return &GraphError{Message: fmt.Sprintf("graph has a cycle: %v", err)}
	}

	order := make([]OperatorID, len(sorted))
	for i, n := range sorted {
		order[i] = OperatorID(n.ID())
	}
	g.order = order
	return nil
}
