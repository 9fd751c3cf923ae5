package compiler

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/Tabbleman/ncnn/internal/registry"
)

// CycleWarning represents a potential rewrite cycle among rules.
//
// Cycles are warnings, not errors, because they may be harmless: a rule
// whose output type reappears in another rule's pattern only loops if the
// parameters line up. The sweep's cycle detector catches the real ones at
// run time.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["rule-a", "rule-b", "rule-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a rule registry.
//
// Rule a can enable rule b when the canonical type a produces appears as
// an interior operator type in b's pattern. The algorithm:
//  1. Build the enables graph over rules
//  2. Find strongly connected components (gonum topo.TarjanSCC)
//  3. Report each SCC with size > 1 or a self-loop as a potential cycle
//
// Warnings are ordered by the sweep position of their first rule. A rule
// set without cycles returns an empty list.
func AnalyzeCycles(reg *registry.Registry) []CycleWarning {
	entries := reg.Entries()
	if len(entries) == 0 {
		return []CycleWarning{}
	}

	g, selfLoops := buildDependencyGraph(entries)

	var sccs [][]int64
	for _, scc := range topo.TarjanSCC(g) {
		ids := make([]int64, len(scc))
		for i, n := range scc {
			ids[i] = n.ID()
		}
		slices.Sort(ids)
		sccs = append(sccs, ids)
	}
	slices.SortFunc(sccs, func(a, b []int64) int { return int(a[0] - b[0]) })

	warnings := []CycleWarning{}
	for _, ids := range sccs {
		switch {
		case len(ids) > 1:
			warnings = append(warnings, cycleWarning(reconstructCyclePath(ids, g), entries))
		case selfLoops[ids[0]]:
			warnings = append(warnings, cycleWarning([]int64{ids[0], ids[0]}, entries))
		}
	}
	return warnings
}

// buildDependencyGraph returns the enables graph over entry positions.
// Self-loops are returned separately; simple graphs cannot hold them.
func buildDependencyGraph(entries []*registry.Entry) (*simple.DirectedGraph, map[int64]bool) {
	g := simple.NewDirectedGraph()
	selfLoops := make(map[int64]bool)

	// Interior operator type → rules whose pattern contains it
	consumers := make(map[string][]int64)
	for i, e := range entries {
		g.AddNode(simple.Node(i))
		seen := make(map[string]bool)
		for _, op := range e.Pattern.Interior() {
			if !seen[op.Type] {
				seen[op.Type] = true
				consumers[op.Type] = append(consumers[op.Type], int64(i))
			}
		}
	}

	for i, e := range entries {
		from := int64(i)
		for _, to := range consumers[e.Rule.Type] {
			if to == from {
				selfLoops[from] = true
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
		}
	}
	return g, selfLoops
}

// reconstructCyclePath builds a cycle path through an SCC.
//
// Strategy: start at the lowest position, follow edges to the lowest
// unvisited SCC member, until we return to the start.
func reconstructCyclePath(scc []int64, g graph.Directed) []int64 {
	members := make(map[int64]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	start := scc[0]
	path := []int64{start}
	visited := map[int64]bool{start: true}
	current := start
	for {
		var next []int64
		for _, n := range graph.NodesOf(g.From(current)) {
			id := n.ID()
			if members[id] && (!visited[id] || id == start) {
				next = append(next, id)
			}
		}
		if len(next) == 0 {
			break
		}
		slices.Sort(next)

		// Prefer unvisited members over closing the loop early.
		step := next[0]
		if step == start && len(next) > 1 && len(path) < len(scc) {
			step = next[1]
		}
		path = append(path, step)
		if step == start {
			break
		}
		visited[step] = true
		current = step
	}
	return path
}

func cycleWarning(path []int64, entries []*registry.Entry) CycleWarning {
	names := make([]string, len(path))
	for i, id := range path {
		names[i] = entries[id].Rule.Name
	}

	if len(path) == 2 && path[0] == path[1] {
		return CycleWarning{
			Path:    names,
			Message: fmt.Sprintf("Self-enabling rule detected: %s → %s", names[0], names[0]),
			Level:   "warning",
		}
	}
	return CycleWarning{
		Path:    names,
		Message: fmt.Sprintf("Potential cycle detected: %s", strings.Join(names, " → ")),
		Level:   "warning",
	}
}
