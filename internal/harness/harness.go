package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Tabbleman/ncnn/internal/compiler"
	"github.com/Tabbleman/ncnn/internal/engine"
	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/registry"
	"github.com/Tabbleman/ncnn/internal/rules"
)

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build a fresh registry from the built-in rules and the manifests
//  2. Parse the input graph
//  3. Run the engine with a fixed run ID and a silent logger
//  4. Check the run error against expect_error
//  5. Evaluate the assertions against the output graph
//
// A scenario that cannot be set up (bad manifest, bad graph) returns an
// error; a scenario whose expectations fail returns a result with Pass false.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-provided context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg, err := BuildRegistry(scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to build rules: %w", err)
	}

	g, err := ir.ReadGraph(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(scenario.Name)),
	}
	if scenario.MaxRewrites > 0 {
		opts = append(opts, engine.WithMaxRewrites(scenario.MaxRewrites))
	}

	report, runErr := engine.New(reg, opts...).Run(ctx, g)

	result := NewResult()
	result.RunID = report.RunID
	result.Rewrites = append(result.Rewrites, report.Rewrites...)
	result.Output = g.String()
	if runErr != nil {
		result.RunError = runErr.Error()
	}

	if msg := checkRunError(scenario.ExpectError, runErr); msg != "" {
		result.AddError(msg)
	}

	for _, msg := range EvaluateAssertions(g, result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// BuildRegistry compiles the scenario's manifests and builds its registry.
func BuildRegistry(scenario *Scenario) (*registry.Registry, error) {
	b := registry.NewBuilder()
	var known []registry.Canonical
	if !scenario.NoBuiltins {
		rules.Register(b)
		known = rules.Canonicals()
	}

	m := &compiler.Manifest{}
	for _, path := range scenario.Manifests {
		mf, err := compiler.LoadFile(path)
		if err != nil {
			return nil, err
		}
		m.Merge(mf)
	}

	if verrs := compiler.Validate(m, known...); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, errors.Join(errs...)
	}

	return m.Register(b).Build()
}

func checkRunError(expect string, err error) string {
	switch expect {
	case "":
		if err != nil {
			return fmt.Sprintf("run failed: %v", err)
		}
	case ExpectCycle:
		if !engine.IsCycleError(err) {
			return fmt.Sprintf("expected cycle error, got %v", err)
		}
	case ExpectQuota:
		if !engine.IsQuotaError(err) {
			return fmt.Sprintf("expected quota error, got %v", err)
		}
	}
	return ""
}
