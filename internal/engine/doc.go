// Package engine implements the rewrite sweep that converts a graph to
// canonical operators.
//
// ARCHITECTURE:
//
// Sweep:
// The engine walks the operator sequence one position at a time. For each
// operator it asks the registry for rules anchored at that operator type
// and tries them in priority order:
//  1. match.Match binds the rule pattern around the anchor
//  2. the rule's validator accepts or rejects the binding
//  3. rules that outrank the candidate are tried at every anchor; the best
//     accepted match overlapping the candidate's region replaces it
//  4. rewrite.Apply splices the canonical operator in
//
// Overlap is therefore settled by rank alone, never by which anchor the scan
// reached first. After a rewrite the sweep resumes at the mutation point,
// where the new operator can anchor a further rule. A pass that applies no
// rewrite ends the run.
//
// Termination:
// A run stops with an error if a rewrite recreates a graph state seen
// earlier in the run (CycleDetector) or if it would exceed the rewrite cap
// (RewriteQuota). Both errors name the last attempted rule and anchor.
//
// Logical Clock:
// Applied rewrites are stamped with a monotonic seq from Clock.Next(). The
// journal orders rewrites by seq, never by wall-clock time.
//
// Determinism:
// Rule order is fixed by the registry, the sweep order by the operator
// sequence and the matcher explores candidates in a fixed order. The same
// graph and registry always yield the same rewrites and the same output.
package engine
