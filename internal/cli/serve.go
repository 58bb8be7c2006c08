package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relogd/relog/internal/config"
	"github.com/relogd/relog/internal/logger"
	"github.com/relogd/relog/internal/metrics"
	"github.com/relogd/relog/internal/nodes"
	"github.com/relogd/relog/internal/replay"
	"github.com/relogd/relog/internal/store"
)

// NewServeCommand creates the serve command: the long-running daemon that
// probes node health and replays queued writes.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the health prober and replay engine",
		Long: `Run the relog daemon.

Starts one replay worker per configured target node plus the health
prober, and serves Prometheus metrics when metrics_addr is configured.

Example:
  relog serve --config relog.yaml
  relog serve --config relog.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
	return cmd
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log := logger.New(level)

	log.Info().Str("path", cfg.RecoveryLog).Msg("opening recovery log")
	st, err := store.Open(cfg.RecoveryLog)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open recovery log", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("error closing recovery log")
		}
	}()

	targets := targetsFromConfig(cfg)
	pool := nodes.NewPool(targets, log)
	defer pool.Close()

	m := metrics.New("")
	registry := nodes.NewRegistry(targets)
	prober := nodes.NewProber(registry, pool, cfg.ProbeInterval, cfg.ProbeTimeout, log, m)

	engine := replay.New(st, pool, registry, cfg.Policy(), cfg.TargetIDs(), replay.Config{
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		AttemptTimeout:  cfg.AttemptTimeout,
		AllowOutOfOrder: cfg.AllowOutOfOrder,
	}, log, m)

	// Setup signal handling for graceful shutdown
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listener started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics listener failed")
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		prober.Run(ctx)
	}()

	log.Info().Int("targets", len(targets)).Msg("replay engine starting")
	fmt.Fprintln(cmd.OutOrStdout(), "relog started. Press Ctrl-C to stop.")

	engine.Run(ctx)
	wg.Wait()

	log.Info().Msg("stopped gracefully")
	return nil
}

// targetsFromConfig maps configured nodes into pool targets.
func targetsFromConfig(cfg *config.Config) []nodes.Target {
	targets := make([]nodes.Target, 0, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		targets = append(targets, nodes.Target{ID: n.ID, Name: n.Name, DSN: n.DSN})
	}
	return targets
}
