package cli

import (
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/relogd/relog/internal/config"
	"github.com/relogd/relog/internal/logger"
	"github.com/relogd/relog/internal/nodes"
	"github.com/relogd/relog/internal/recovery"
	"github.com/relogd/relog/internal/store"
)

// StatusReport is the snapshot rendered by the status command.
type StatusReport struct {
	Nodes           []nodes.NodeStatus      `json:"nodes"`
	Counts          map[recovery.Status]int `json:"counts"`
	PendingByTarget map[int]int             `json:"pending_by_target"`
}

// NewStatusCommand creates the status command: probe every node once and
// summarize the recovery log.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show node reachability and recovery log counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	log := logger.Nop()

	st, err := store.Open(cfg.RecoveryLog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open recovery log", err)
	}
	defer st.Close()

	targets := targetsFromConfig(cfg)
	pool := nodes.NewPool(targets, log)
	defer pool.Close()

	// One-shot probe round; the daemon's registry is not shared, so the
	// status command measures reachability itself.
	registry := nodes.NewRegistry(targets)
	prober := nodes.NewProber(registry, pool, cfg.ProbeInterval, cfg.ProbeTimeout, log, nil)
	prober.ProbeAll(cmd.Context())

	counts, err := st.CountByStatus(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read recovery log", err)
	}
	pending, err := st.PendingByTarget(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read recovery log", err)
	}

	report := StatusReport{
		Nodes:           registry.Snapshot(),
		Counts:          counts,
		PendingByTarget: pending,
	}

	out := NewOutputFormatter(opts.Format, cmd.OutOrStdout())
	if out.JSON() {
		return out.EmitJSON(report)
	}
	renderStatus(out, report)
	return nil
}

// renderStatus writes the text form of a status report. Separated from
// probing so it can be golden-tested with fixed data.
func renderStatus(out *OutputFormatter, report StatusReport) {
	w := tabwriter.NewWriter(out.Writer, 0, 4, 2, ' ', 0)

	out.Printf("NODES\n")
	w.Write([]byte("  ID\tNAME\tREACHABLE\tLAST PROBED\n"))
	for _, n := range report.Nodes {
		reachable := "no"
		if n.Reachable {
			reachable = "yes"
		}
		probed := "never"
		if !n.LastProbedAt.IsZero() {
			probed = n.LastProbedAt.UTC().Format(time.RFC3339)
		}
		w.Write([]byte("  " + strconv.Itoa(n.ID) + "\t" + n.Name + "\t" + reachable + "\t" + probed + "\n"))
	}
	w.Flush()

	out.Printf("\nRECOVERY LOG\n")
	out.Printf("  PENDING    %d\n", report.Counts[recovery.StatusPending])
	out.Printf("  COMPLETED  %d\n", report.Counts[recovery.StatusCompleted])
	out.Printf("  FAILED     %d\n", report.Counts[recovery.StatusFailed])

	if len(report.PendingByTarget) > 0 {
		out.Printf("\nPENDING BY TARGET\n")
		ids := make([]int, 0, len(report.PendingByTarget))
		for id := range report.PendingByTarget {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			out.Printf("  node %d: %d\n", id, report.PendingByTarget[id])
		}
	}
}
