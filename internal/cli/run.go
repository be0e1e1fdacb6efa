package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelsec/kestrel/event"
	"github.com/kestrelsec/kestrel/internal/engine"
	"github.com/kestrelsec/kestrel/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	EventsPath  string
	JournalPath string
}

// NewRunCommand creates `kestrel run <rules-file>`: it compiles the rules,
// streams JSONL events from a file or stdin through the engine, and prints
// every derived event as it is produced.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	runOpts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <rules-file>",
		Short: "Run events through a rule file and print derived events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(cmd, opts, runOpts, args[0])
		},
	}
	cmd.Flags().StringVarP(&runOpts.EventsPath, "events", "e", "-",
		"JSONL event input file (- for stdin)")
	cmd.Flags().StringVar(&runOpts.JournalPath, "journal", "",
		"record processed events to this SQLite journal")
	return cmd
}

func runEvents(cmd *cobra.Command, opts *RootOptions, runOpts *RunOptions, rulesPath string) error {
	text, err := os.ReadFile(rulesPath)
	if err != nil {
		return fmt.Errorf("reading rules: %w", err)
	}

	meta := event.NewAutoMeta()
	engOpts := []engine.Option{}
	if runOpts.JournalPath != "" {
		j, err := journal.Open(runOpts.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		engOpts = append(engOpts, engine.WithRecorder(j))
	}
	eng := engine.New(meta, engOpts...)

	if err := eng.AddRules(string(text)); err != nil {
		return fmt.Errorf("rules invalid: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, ruleName := range eng.RuleNames() {
		derived, ok := eng.DerivedEvent(ruleName)
		if !ok {
			continue
		}
		eng.RegisterActor(derived, func(ev event.Event) {
			printDerived(out, opts.Format, ev)
		}, false)
	}

	var in io.Reader = cmd.InOrStdin()
	if runOpts.EventsPath != "" && runOpts.EventsPath != "-" {
		f, err := os.Open(runOpts.EventsPath)
		if err != nil {
			return fmt.Errorf("opening events: %w", err)
		}
		defer f.Close()
		in = f
	}

	events, err := readEvents(in, meta)
	if err != nil {
		return fmt.Errorf("reading events: %w", err)
	}

	ctx := context.Background()
	for _, ev := range events {
		eng.ProcessEvent(ctx, ev)
	}
	return nil
}

func printDerived(out io.Writer, format string, ev event.Event) {
	me, ok := ev.(*event.MapEvent)
	if !ok {
		fmt.Fprintf(out, "derived: %s\n", ev.Name())
		return
	}
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.Encode(map[string]any{"name": me.Name(), "props": me.Properties()})
		return
	}
	fmt.Fprintf(out, "derived: %s %v\n", me.Name(), me.Properties())
}
