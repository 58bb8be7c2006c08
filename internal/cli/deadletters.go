package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/relogd/relog/internal/config"
	"github.com/relogd/relog/internal/recovery"
	"github.com/relogd/relog/internal/store"
)

// DeadLettersOptions holds flags for the deadletters command.
type DeadLettersOptions struct {
	*RootOptions
	Limit int
}

// NewDeadLettersCommand creates the deadletters command: list FAILED
// entries awaiting operator intervention.
func NewDeadLettersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeadLettersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "deadletters",
		Short:         "List dead-lettered recovery log entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeadLetters(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum entries to list")
	return cmd
}

func runDeadLetters(opts *DeadLettersOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.RecoveryLog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open recovery log", err)
	}
	defer st.Close()

	entries, err := st.DeadLetters(cmd.Context(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read recovery log", err)
	}

	out := NewOutputFormatter(opts.Format, cmd.OutOrStdout())
	if out.JSON() {
		return out.EmitJSON(entries)
	}
	renderDeadLetters(out, entries)
	return nil
}

// renderDeadLetters writes the text form of a dead-letter listing.
func renderDeadLetters(out *OutputFormatter, entries []recovery.Entry) {
	if len(entries) == 0 {
		out.Printf("no dead-lettered entries\n")
		return
	}
	for _, e := range entries {
		out.Printf("log %d  target %d  source %d  retries %d  created %s\n",
			e.ID, e.TargetNode, e.SourceNode, e.RetryCount,
			e.CreatedAt.UTC().Format(time.RFC3339))
		out.Printf("  statement: %s\n", e.Statement)
		if e.ErrorMessage != "" {
			out.Printf("  last error: %s\n", e.ErrorMessage)
		}
	}
}
