package cli

import (
	"github.com/spf13/cobra"

	"github.com/relogd/relog/internal/config"
	"github.com/relogd/relog/internal/dispatch"
	"github.com/relogd/relog/internal/logger"
	"github.com/relogd/relog/internal/nodes"
	"github.com/relogd/relog/internal/recovery"
	"github.com/relogd/relog/internal/store"
)

// DispatchOptions holds flags for the dispatch command.
type DispatchOptions struct {
	*RootOptions
	Source    int
	Target    int
	Statement string
	TxID      string
}

// NewDispatchCommand creates the dispatch command: a one-shot write
// through the dispatcher.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Apply a write to a target node, queueing it on failure",
		Long: `Apply a single write statement against a target node.

On success the statement is applied directly. If the target is
unreachable the write is durably queued in the recovery log and replayed
by the serve daemon once the node recovers.

Example:
  relog dispatch --source 1 --target 2 --statement "INSERT INTO t(k,v) VALUES ('a',1)"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Source, "source", 0, "originating node id (required)")
	cmd.Flags().IntVar(&opts.Target, "target", 0, "target node id (required)")
	cmd.Flags().StringVar(&opts.Statement, "statement", "", "SQL statement to apply (required)")
	cmd.Flags().StringVar(&opts.TxID, "tx-id", "", "logical transaction id (minted when omitted)")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("statement")

	return cmd
}

func runDispatch(opts *DispatchOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	log := logger.New(cfg.LogLevel)

	st, err := store.Open(cfg.RecoveryLog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open recovery log", err)
	}
	defer st.Close()

	pool := nodes.NewPool(targetsFromConfig(cfg), log)
	defer pool.Close()

	d := dispatch.New(st, pool, log, nil)
	result, err := d.Dispatch(cmd.Context(), dispatch.Request{
		SourceNode:  opts.Source,
		TargetNode:  opts.Target,
		Statement:   opts.Statement,
		LogicalTxID: opts.TxID,
	})
	if err != nil {
		if recovery.IsStorage(err) {
			return WrapExitError(ExitCommandError, "write neither applied nor queued", err)
		}
		return WrapExitError(ExitFailure, "write rejected", err)
	}

	out := NewOutputFormatter(opts.Format, cmd.OutOrStdout())
	if out.JSON() {
		return out.EmitJSON(result)
	}
	switch result.Outcome {
	case dispatch.Applied:
		out.Printf("applied (tx %s)\n", result.LogicalTxID)
	case dispatch.Queued:
		out.Printf("queued for recovery (log id %d, tx %s)\n", result.LogID, result.LogicalTxID)
	}
	return nil
}
