package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Tabbleman/ncnn/internal/engine"
	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/journal"
	"github.com/Tabbleman/ncnn/internal/registry"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database    string
	RunID       string // optional - specific run only
	Rules       []string
	NoBuiltins  bool
	MaxRewrites int
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
	Rewrites      int    `json:"rewrites"`
	Deterministic bool   `json:"deterministic"`
	Skipped       bool   `json:"skipped,omitempty"`
	Divergence    string `json:"divergence,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs             []ReplayRunResult `json:"runs"`
	TotalRuns        int               `json:"total_runs"`
	AllDeterministic bool              `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run journaled conversions and verify determinism",
		Long: `Re-run journaled conversions and verify they are deterministic.

Each run's input graph is read back from the journal and converted again
with the rules given by --rules (plus the built-in rules). The replayed
rewrites must match the journaled ones exactly: same rules at the same
anchors in the same order with the same graph hash after each rewrite.
Runs still marked running are skipped.

Exit codes:
  0 - All runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (journal not found, invalid rules, etc.)

Examples:
  pnnx replay --db ./pnnx.db
  pnnx replay --db ./pnnx.db --run 0190f7c2-... --rules ./rules`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")
	cmd.Flags().StringSliceVarP(&opts.Rules, "rules", "r", nil, "rule manifest file or directory (repeatable)")
	cmd.Flags().BoolVar(&opts.NoBuiltins, "no-builtins", false, "use only the rules from --rules")
	cmd.Flags().IntVar(&opts.MaxRewrites, "max-rewrites", engine.DefaultMaxRewrites, "maximum rewrites before the run fails")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	ruleSet, errs := LoadRules(opts.Rules, opts.NoBuiltins)
	if len(errs) > 0 {
		return reportLoadErrors(formatter, errs)
	}

	j, err := openJournal(opts.Database)
	if err != nil {
		return reportInputError(formatter, err)
	}
	defer j.Close()

	var runs []journal.Run
	if opts.RunID != "" {
		run, err := j.ReadRun(ctx, opts.RunID)
		if errors.Is(err, sql.ErrNoRows) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "read run", err)
		}
		runs = []journal.Run{run}
	} else {
		runs, err = j.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "list runs", err)
		}
	}

	result := ReplayResult{Runs: []ReplayRunResult{}, AllDeterministic: true}
	for _, run := range runs {
		formatter.VerboseLog("Replaying run: %s", run.ID)

		journaled, err := j.ReadRewrites(ctx, run.ID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "read rewrites", err)
		}

		rr := replayRun(ctx, ruleSet.Registry, opts.MaxRewrites, run, journaled)
		if !rr.Deterministic && !rr.Skipped {
			result.AllDeterministic = false
		}
		result.Runs = append(result.Runs, rr)
	}
	result.TotalRuns = len(result.Runs)

	return outputReplayResult(formatter, result)
}

// replayRun converts the run's journaled input again and compares the
// outcome with the journal.
func replayRun(ctx context.Context, reg *registry.Registry, maxRewrites int, run journal.Run, journaled []engine.Rewrite) ReplayRunResult {
	rr := ReplayRunResult{RunID: run.ID, Status: run.Status, Rewrites: len(journaled)}
	if run.Status == journal.StatusRunning {
		rr.Skipped = true
		return rr
	}

	g, err := ir.ReadGraph(run.Input)
	if err != nil {
		rr.Divergence = fmt.Sprintf("journaled input does not parse: %v", err)
		return rr
	}
	if h := g.Hash(); h != run.InputHash {
		rr.Divergence = fmt.Sprintf("input hash %s does not match journaled %s", h, run.InputHash)
		return rr
	}

	eng := engine.New(reg,
		engine.WithMaxRewrites(maxRewrites),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(run.ID)),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	report, runErr := eng.Run(ctx, g)

	if d := journal.Compare(journaled, report.Rewrites); d != nil {
		rr.Divergence = d.String()
		return rr
	}

	switch status := replayStatus(runErr); {
	case status != run.Status:
		rr.Divergence = fmt.Sprintf("journaled status %s, replayed %s", run.Status, status)
	case runErr == nil && report.OutputHash != run.OutputHash:
		rr.Divergence = fmt.Sprintf("output hash %s does not match journaled %s", report.OutputHash, run.OutputHash)
	default:
		rr.Deterministic = true
	}
	return rr
}

func replayStatus(runErr error) string {
	if runErr != nil {
		return journal.StatusFailed
	}
	return journal.StatusConverged
}

// outputReplayResult outputs the replay result in the configured format.
func outputReplayResult(formatter *OutputFormatter, result ReplayResult) error {
	if formatter.JSON() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		if result.TotalRuns == 0 {
			fmt.Fprintln(w, "No runs to replay")
		}
		for _, rr := range result.Runs {
			switch {
			case rr.Skipped:
				fmt.Fprintf(w, "- %s skipped (still running)\n", rr.RunID)
			case rr.Deterministic:
				fmt.Fprintf(w, "✓ %s %s, %d rewrite(s) reproduced\n", rr.RunID, rr.Status, rr.Rewrites)
			default:
				fmt.Fprintf(w, "✗ %s diverged: %s\n", rr.RunID, rr.Divergence)
			}
		}
		if result.TotalRuns > 0 {
			fmt.Fprintln(w)
			if result.AllDeterministic {
				fmt.Fprintf(w, "All %d run(s) deterministic\n", result.TotalRuns)
			} else {
				fmt.Fprintln(w, "Determinism verification failed")
			}
		}
	}

	if !result.AllDeterministic {
		return NewExitError(ExitFailure, "replay diverged from the journal")
	}
	return nil
}
