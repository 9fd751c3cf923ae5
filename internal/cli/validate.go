package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tabbleman/ncnn/internal/compiler"
	"github.com/Tabbleman/ncnn/internal/registry"
	"github.com/Tabbleman/ncnn/internal/rules"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                        `json:"valid"`
	Rules    int                         `json:"rules"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// ValidateOptions holds options for the validate command.
type ValidateOptions struct {
	*RootOptions
	NoBuiltins bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <manifest>...",
		Short: "Validate rule manifests without converting a graph",
		Long: `Validate CUE rule manifests.

Every rule is checked (names, priorities, canonical types, pattern syntax,
captures and arity) and all problems are reported with their line. A
manifest that passes is then checked for rule sets that can re-enable each
other; those are reported as warnings.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoBuiltins, "no-builtins", false, "validate without the built-in canonical types and rules")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	m, _, err := LoadManifests(paths)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Error())
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error())
	}
	formatter.VerboseLog("Loaded %d canonical type(s) and %d rule(s)", len(m.Canonicals), len(m.Rules))

	var known []registry.Canonical
	b := registry.NewBuilder()
	if !opts.NoBuiltins {
		known = rules.Canonicals()
		rules.Register(b)
	}

	if errs := compiler.Validate(m, known...); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	reg, err := m.Register(b).Build()
	if err != nil {
		return outputValidateError(formatter, ErrCodeBuildFailed, err.Error())
	}

	return outputValidateSuccess(formatter, ValidationResult{
		Valid:    true,
		Rules:    len(m.Rules),
		Warnings: compiler.AnalyzeCycles(reg),
	})
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All rules valid (%d rule(s))\n", result.Rules)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  warning: %s\n", w.Message)
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Unreadable input is a command-level error (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := formatter.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
