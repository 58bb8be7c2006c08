package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/relogd/relog/internal/config"
	"github.com/relogd/relog/internal/store"
)

// NewRedriveCommand creates the redrive command: promote a dead-lettered
// entry back to PENDING. This is the manual counterpart to automatic
// dead-lettering - FAILED entries are never auto-retried.
func NewRedriveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redrive <log-id>",
		Short: "Requeue a dead-lettered entry for replay",
		Long: `Promote a FAILED recovery log entry back to PENDING with a fresh
retry budget. The next replay cycle for its target picks it up.

Example:
  relog redrive 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRedrive(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runRedrive(opts *RootOptions, arg string, cmd *cobra.Command) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid log id %q", arg), err)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, err := store.Open(cfg.RecoveryLog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open recovery log", err)
	}
	defer st.Close()

	redriven, err := st.Redrive(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "redrive failed", err)
	}
	if !redriven {
		return NewExitError(ExitFailure, fmt.Sprintf("entry %d is not dead-lettered", id))
	}

	out := NewOutputFormatter(opts.Format, cmd.OutOrStdout())
	if out.JSON() {
		return out.EmitJSON(map[string]any{"log_id": id, "redriven": true})
	}
	out.Printf("entry %d requeued\n", id)
	return nil
}
