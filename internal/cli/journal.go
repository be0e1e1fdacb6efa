package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/kestrel/internal/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	HostOnly bool
}

// NewJournalCommand creates `kestrel journal <journal-file>`: it dumps the
// recorded event trace of a previous run in seq order.
func NewJournalCommand(opts *RootOptions) *cobra.Command {
	jOpts := &JournalOptions{}

	cmd := &cobra.Command{
		Use:   "journal <journal-file>",
		Short: "Dump a recorded event journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(args[0])
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Entries(cmd.Context(), jOpts.HostOnly)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			for _, e := range entries {
				kind := "event"
				if e.Derived {
					kind = "derived"
				}
				fmt.Fprintf(out, "%6d  %-8s %s  (%s)\n", e.Seq, kind, e.Name, e.Token)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jOpts.HostOnly, "host-only", false,
		"omit derived events from the dump")
	return cmd
}
