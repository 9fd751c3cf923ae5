package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tabbleman/ncnn/internal/pattern"
)

// PatternSummary describes a parsed pattern.
type PatternSummary struct {
	Anchor    string   `json:"anchor"`
	Operators []string `json:"operators"`
	Inputs    []string `json:"inputs"`
	Outputs   []string `json:"outputs"`
	Captures  []string `json:"captures"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <pattern-file>",
		Short: "Parse a pattern file and summarize it",
		Long: `Parse a rule pattern written in graph text form and print its anchor,
interior operators, boundary operands and captures. A malformed pattern is
reported with its line number.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runCheck(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	src, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("pattern not found: %s", path), nil)
	}

	p, err := pattern.Parse(string(src))
	if err != nil {
		return outputPatternError(formatter, err)
	}

	summary := PatternSummary{
		Anchor:   p.Anchor().Name,
		Inputs:   p.Inputs,
		Outputs:  p.Outputs,
		Captures: p.Captures,
	}
	for _, op := range p.Interior() {
		summary.Operators = append(summary.Operators, op.Type+" "+op.Name)
	}

	if formatter.JSON() {
		return formatter.Success(summary)
	}

	fmt.Fprintf(formatter.Writer, "✓ Pattern valid\n")
	fmt.Fprintf(formatter.Writer, "  anchor:    %s (%s)\n", summary.Anchor, p.Anchor().Type)
	fmt.Fprintf(formatter.Writer, "  operators: %s\n", strings.Join(summary.Operators, ", "))
	fmt.Fprintf(formatter.Writer, "  inputs:    %s\n", strings.Join(summary.Inputs, ", "))
	fmt.Fprintf(formatter.Writer, "  outputs:   %s\n", strings.Join(summary.Outputs, ", "))
	if len(summary.Captures) > 0 {
		fmt.Fprintf(formatter.Writer, "  captures:  %%%s\n", strings.Join(summary.Captures, ", %"))
	}
	return nil
}

func outputPatternError(formatter *OutputFormatter, err error) error {
	var pe *pattern.ParseError
	if !errors.As(err, &pe) {
		return formatter.Fail(ExitFailure, ErrCodeBadPattern, "invalid pattern", err)
	}

	if formatter.JSON() {
		if encErr := formatter.Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    pe.Code,
				Message: pe.Message,
				Details: map[string]int{"line": pe.Line},
			},
		}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Invalid pattern")
		if pe.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", pe.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", pe.Code, pe.Message)
	}
	return WrapExitError(ExitFailure, "invalid pattern", err)
}
