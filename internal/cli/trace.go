package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tabbleman/ncnn/internal/engine"
	"github.com/Tabbleman/ncnn/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	RunID     string // optional - list runs when empty
	Rule      string // optional - filter to one rule
	ShowGraph bool
}

// TraceResult holds the trace of a single run.
type TraceResult struct {
	Run      journal.Run      `json:"run"`
	Rewrites []engine.Rewrite `json:"rewrites"`
	Input    string           `json:"input,omitempty"`
	Output   string           `json:"output,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled runs and their rewrites",
		Long: `Show the rewrite journal.

Without --run, lists every journaled run in the order they began. With
--run, shows the run summary and its rewrites in seq order: which rule
fired at which anchor, the operators it replaced and the parameters it
wrote.

Examples:
  pnnx trace --db ./pnnx.db
  pnnx trace --db ./pnnx.db --run 0190f7c2-...
  pnnx trace --db ./pnnx.db --run 0190f7c2-... --rule F_max_pool2d_onnx
  pnnx trace --db ./pnnx.db --run 0190f7c2-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run to trace")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "show only rewrites of this rule")
	cmd.Flags().BoolVar(&opts.ShowGraph, "graph", false, "include the input and output graphs")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	j, err := openJournal(opts.Database)
	if err != nil {
		return reportInputError(formatter, err)
	}
	defer j.Close()

	if opts.RunID == "" {
		runs, err := j.ListRuns(ctx)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeJournal, "list runs", err)
		}
		return outputRunList(formatter, runs)
	}

	run, err := j.ReadRun(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("run not found: %s", opts.RunID), nil)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "read run", err)
	}

	rewrites, err := j.ReadRewrites(ctx, opts.RunID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeJournal, "read rewrites", err)
	}
	if opts.Rule != "" {
		filtered := []engine.Rewrite{}
		for _, rw := range rewrites {
			if rw.Rule == opts.Rule {
				filtered = append(filtered, rw)
			}
		}
		rewrites = filtered
	}

	result := TraceResult{Run: run, Rewrites: rewrites}
	if opts.ShowGraph {
		result.Input, result.Output = run.Input, run.Output
	}
	return outputTrace(formatter, result)
}

func outputRunList(formatter *OutputFormatter, runs []journal.Run) error {
	if formatter.JSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs journaled")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{r.ID, r.Status, strconv.Itoa(r.Rewrites), strconv.Itoa(r.Passes), r.EngineVersion}
	}
	formatter.Table([]string{"RUN", "STATUS", "REWRITES", "PASSES", "ENGINE"}, rows)
	return nil
}

func outputTrace(formatter *OutputFormatter, result TraceResult) error {
	if formatter.JSON() {
		return formatter.Encode(CLIResponse{Status: "ok", Data: result, RunID: result.Run.ID})
	}

	run := result.Run
	w := formatter.Writer
	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Status: %s\n", run.Status)
	fmt.Fprintf(w, "Rewrites: %d in %d pass(es)\n", run.Rewrites, run.Passes)
	fmt.Fprintf(w, "Input: %s\n", run.InputHash)
	if run.OutputHash != "" {
		fmt.Fprintf(w, "Output: %s\n", run.OutputHash)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	fmt.Fprintln(w)

	if len(result.Rewrites) == 0 {
		fmt.Fprintln(w, "No rewrites")
	} else {
		rows := make([][]string, len(result.Rewrites))
		for i, rw := range result.Rewrites {
			rows[i] = []string{
				strconv.FormatInt(rw.Seq, 10),
				strconv.Itoa(rw.Pass),
				rw.Rule,
				rw.Type,
				rw.Anchor,
				strings.Join(rw.Replaced, ","),
				rw.Params,
			}
		}
		formatter.Table([]string{"SEQ", "PASS", "RULE", "TYPE", "ANCHOR", "REPLACED", "PARAMS"}, rows)
	}

	if result.Input != "" {
		fmt.Fprintf(w, "\nInput graph:\n%s", result.Input)
	}
	if result.Output != "" {
		fmt.Fprintf(w, "\nOutput graph:\n%s", result.Output)
	}
	return nil
}
