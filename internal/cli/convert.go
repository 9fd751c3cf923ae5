package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tabbleman/ncnn/internal/engine"
	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/journal"
)

// ConvertOptions holds options for the convert command.
type ConvertOptions struct {
	*RootOptions
	Rules       []string // manifest files or directories
	NoBuiltins  bool
	Output      string // output graph path; stdout when empty
	Journal     string // journal database path; no journal when empty
	MaxRewrites int
}

// ConvertResult is the JSON payload of a successful conversion.
type ConvertResult struct {
	RunID      string   `json:"run_id"`
	Rewrites   int      `json:"rewrites"`
	Passes     int      `json:"passes"`
	Applied    []string `json:"applied"`
	InputHash  string   `json:"input_hash"`
	OutputHash string   `json:"output_hash"`
	Output     string   `json:"output,omitempty"`
	Graph      string   `json:"graph,omitempty"`
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <graph>",
		Short: "Rewrite a graph to canonical operators",
		Long: `Rewrite an operator graph until no rule applies.

The built-in rules run together with any manifests given by --rules. The
converted graph is written to --output, or to stdout. With --journal every
applied rewrite is recorded in a SQLite journal for trace and replay.

Exit codes:
  0 - Converged
  1 - Did not converge (cycle or rewrite cap)
  2 - Bad input (unreadable graph, invalid rules, journal failure)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Rules, "rules", "r", nil, "rule manifest file or directory (repeatable)")
	cmd.Flags().BoolVar(&opts.NoBuiltins, "no-builtins", false, "use only the rules from --rules")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output graph path (default stdout)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the run in this journal database")
	cmd.Flags().IntVar(&opts.MaxRewrites, "max-rewrites", engine.DefaultMaxRewrites, "maximum rewrites before the run fails")

	return cmd
}

func runConvert(opts *ConvertOptions, graphPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.MaxRewrites <= 0 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("--max-rewrites must be positive, got %d", opts.MaxRewrites), nil)
	}

	ruleSet, errs := LoadRules(opts.Rules, opts.NoBuiltins)
	if len(errs) > 0 {
		return reportLoadErrors(formatter, errs)
	}
	formatter.VerboseLog("Loaded %d rule(s)", ruleSet.Registry.Len())

	g, err := readGraphFile(graphPath)
	if err != nil {
		return reportInputError(formatter, err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineOpts := []engine.Option{
		engine.WithMaxRewrites(opts.MaxRewrites),
		engine.WithLogger(slog.Default()),
	}
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "open journal", err)
		}
		defer j.Close()
		engineOpts = append(engineOpts, engine.WithRecorder(j.Recorder(ctx)))
		formatter.VerboseLog("Journaling to %s", opts.Journal)
	}

	report, err := engine.New(ruleSet.Registry, engineOpts...).Run(ctx, g)
	if err != nil {
		return reportRunError(formatter, report, err)
	}

	result := ConvertResult{
		RunID:      report.RunID,
		Rewrites:   len(report.Rewrites),
		Passes:     report.Passes,
		Applied:    appliedRules(report),
		InputHash:  report.InputHash,
		OutputHash: report.OutputHash,
		Output:     opts.Output,
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(g.String()), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "write output", err)
		}
	} else if formatter.JSON() {
		result.Graph = g.String()
	} else {
		fmt.Fprint(formatter.Writer, g.String())
	}

	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: report.RunID})
	}

	// With the graph on stdout the summary goes to stderr.
	w := formatter.Writer
	if opts.Output == "" {
		w = formatter.GetErrWriter()
	}
	fmt.Fprintf(w, "✓ Converged: %d rewrite(s) in %d pass(es) (run %s)\n", result.Rewrites, result.Passes, result.RunID)
	return nil
}

// readGraphFile reads and parses a graph text file.
func readGraphFile(path string) (*ir.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("graph not found: %s", path)}
	}
	g, err := ir.ReadGraph(string(src))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBadGraph, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return g, nil
}

func reportInputError(formatter *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return WrapExitError(ExitCommandError, "read graph", err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeGeneric, "read graph", err)
}

// reportRunError outputs a failed run. Non-convergence is a conversion
// failure; anything else is a command error.
func reportRunError(formatter *OutputFormatter, report *engine.Report, err error) error {
	code, exit := ErrCodeRun, ExitCommandError
	switch {
	case engine.IsCycleError(err):
		code, exit = ErrCodeCycle, ExitFailure
	case engine.IsQuotaError(err):
		code, exit = ErrCodeQuota, ExitFailure
	case errors.Is(err, context.Canceled):
		exit = ExitFailure
	}

	details := map[string]any{"rewrites": len(report.Rewrites)}
	if formatter.JSON() {
		if encErr := formatter.Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: err.Error(), Details: details},
			RunID:  report.RunID,
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Conversion failed after %d rewrite(s)\n  %s: %v\n", len(report.Rewrites), code, err)
	}
	return WrapExitError(exit, "convert", err)
}

func appliedRules(report *engine.Report) []string {
	names := make([]string, len(report.Rewrites))
	for i, rw := range report.Rewrites {
		names[i] = rw.Rule
	}
	return names
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
