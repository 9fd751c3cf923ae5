// Package harness provides conformance testing for rewrite rule sets.
//
// The harness loads rule manifests, runs the engine over a graph and checks
// the converted graph and the applied rewrites against the scenario's
// assertions.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	manifests:
//	  - ../manifests/activation.cue
//	graph: |
//	  7767517
//	  3 2
//	  pnnx.Input in0 0 1 x
//	  Relu relu 1 1 x y
//	  pnnx.Output out0 1 0 y
//	max_rewrites: 100
//	expect_error: cycle
//	assertions:
//	  - type: op_count
//	    op_type: F.relu
//	    count: 1
//	  - type: op_params
//	    operator: relu
//	    params: { inplace: "False" }
//	  - type: absent
//	    op_type: Relu
//	  - type: rewrite_order
//	    rules: [F_relu_onnx]
//
// Manifest paths are relative to the scenario file. The built-in rules are
// always registered unless no_builtins is set.
//
// # Assertion Types
//
//   - op_count: exactly N operators of a type remain
//   - op_params: an operator has the given type and parameter text
//   - absent: no operator of a type remains
//   - rewrite_order: the rules were applied in the given order
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run ID (the scenario name) and a fresh
// registry, so the output graph is byte-for-byte reproducible and can be
// compared against golden files.
package harness
