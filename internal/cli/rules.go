package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// RuleInfo describes one registered rule.
type RuleInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
	Anchor   string `json:"anchor"`
	Source   string `json:"source"`
}

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	*RootOptions
	Rules      []string
	NoBuiltins bool
}

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List rules in the order the sweep tries them",
		Long: `List the registered rules: the built-in rules and any manifests given by
--rules. Rules are listed by priority, highest first, then registration
order, which is the order a sweep tries rules at an anchor.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRules(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Rules, "rules", "r", nil, "rule manifest file or directory (repeatable)")
	cmd.Flags().BoolVar(&opts.NoBuiltins, "no-builtins", false, "list only the rules from --rules")

	return cmd
}

func runRules(opts *RulesOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ruleSet, errs := LoadRules(opts.Rules, opts.NoBuiltins)
	if len(errs) > 0 {
		return reportLoadErrors(formatter, errs)
	}

	entries := ruleSet.Registry.Entries()
	infos := make([]RuleInfo, len(entries))
	for i, e := range entries {
		infos[i] = RuleInfo{
			Name:     e.Rule.Name,
			Type:     e.Rule.Type,
			Priority: e.Rule.Priority,
			Anchor:   e.AnchorType(),
			Source:   ruleSet.Sources[e.Rule.Name],
		}
	}

	if formatter.JSON() {
		return formatter.Success(infos)
	}

	if len(infos) == 0 {
		fmt.Fprintln(formatter.Writer, "No rules registered")
		return nil
	}

	rows := make([][]string, len(infos))
	for i, r := range infos {
		rows[i] = []string{r.Name, r.Type, strconv.Itoa(r.Priority), r.Anchor, r.Source}
	}
	formatter.Table([]string{"NAME", "TYPE", "PRIORITY", "ANCHOR", "SOURCE"}, rows)
	return nil
}
