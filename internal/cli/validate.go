package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/kestrel/event"
	"github.com/kestrelsec/kestrel/internal/engine"
)

// NewValidateCommand creates `kestrel validate <rules-file>`: it parses,
// validates, and compiles the rules into a scratch engine, reporting the
// resulting graph or the failure: every validation error at once, or the
// first compile error.
func NewValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <rules-file>",
		Short: "Validate and compile a rule file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading rules: %w", err)
			}

			eng := engine.New(event.NewAutoMeta())
			if err := eng.AddRules(string(text)); err != nil {
				return fmt.Errorf("rules invalid: %w", err)
			}

			if opts.Format == "json" {
				out := map[string]any{"valid": true, "rules": eng.RuleNames()}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rules valid")
			fmt.Fprint(cmd.OutOrStdout(), eng.Describe())
			return nil
		},
	}
}
