package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relogd/relog/internal/metrics"
	"github.com/relogd/relog/internal/recovery"
	"github.com/relogd/relog/internal/retry"
)

// Log is the slice of the recovery log the engine needs. Implemented by
// *store.Store.
type Log interface {
	FetchPending(ctx context.Context, targetNode, limit int) ([]recovery.Entry, error)
	BeginAttempt(ctx context.Context, id int64, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id int64, note string) (bool, error)
	MarkFailedAttempt(ctx context.Context, id int64, errMsg string) (bool, error)
	MarkDeadLettered(ctx context.Context, id int64, errMsg string) (bool, error)
}

// Applier applies an opaque statement against a target node.
// Implemented by *nodes.Pool; tests substitute a scripted applier.
type Applier interface {
	Apply(ctx context.Context, nodeID int, statement string) error
}

// Reachability is the read-only view of the node registry.
type Reachability interface {
	IsReachable(nodeID int) bool
}

// Config bounds the engine's scheduling.
type Config struct {
	// PollInterval is the sleep between worker cycles.
	PollInterval time.Duration

	// BatchSize caps the entries fetched per cycle per target.
	BatchSize int

	// AttemptTimeout bounds each statement application. A timed-out
	// attempt counts as a failure; the statement may have partially
	// landed, which is why accepted statements must be re-appliable.
	AttemptTimeout time.Duration

	// AllowOutOfOrder lets a cycle continue past an entry that failed or
	// is still in backoff. This trades the per-target ordering guarantee
	// for throughput and is off by default; enabling it is an explicit,
	// logged deviation.
	AllowOutOfOrder bool
}

func (c *Config) withDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
}

// Engine runs one replay worker per target node.
type Engine struct {
	log      Log
	applier  Applier
	registry Reachability
	policy   retry.Policy
	targets  []int
	cfg      Config
	logger   *zerolog.Logger
	metrics  *metrics.Metrics

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// New assembles an engine over the given targets.
func New(log Log, applier Applier, registry Reachability, policy retry.Policy, targets []int, cfg Config, logger *zerolog.Logger, m *metrics.Metrics) *Engine {
	cfg.withDefaults()
	return &Engine{
		log:      log,
		applier:  applier,
		registry: registry,
		policy:   policy,
		targets:  targets,
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// SetNow overrides the engine's clock. Test hook.
func (e *Engine) SetNow(now func() time.Time) {
	e.now = now
}

// Run starts one worker per target node and blocks until ctx is
// cancelled. Per-entry failures never escape a worker; only cancellation
// ends the run.
func (e *Engine) Run(ctx context.Context) {
	if e.cfg.AllowOutOfOrder {
		e.logger.Warn().Msg("out-of-order replay enabled: per-target ordering guarantee is waived")
	}

	var wg sync.WaitGroup
	for _, target := range e.targets {
		wg.Add(1)
		go func(node int) {
			defer wg.Done()
			e.runWorker(ctx, node)
		}(target)
	}
	wg.Wait()
}

// runWorker cycles one target node until cancellation.
func (e *Engine) runWorker(ctx context.Context, node int) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := e.Cycle(ctx, node); err != nil && ctx.Err() == nil {
			// Log storage unavailability is the one error class that
			// halts a cycle; it is escalated by logging at error level
			// and retried next cycle.
			e.logger.Error().Int("node_id", node).Err(err).Msg("replay cycle aborted")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Cycle processes one batch for one target node. Exported so tests (and
// one-shot tooling) can drive the engine without the timer loop.
//
// Per cycle: skip unreachable targets entirely (no attempts, no retry
// accounting), fetch the pending batch in creation order, then walk it
// front to back. A failed or still-backing-off entry ends the cycle for
// this target unless out-of-order replay is enabled.
func (e *Engine) Cycle(ctx context.Context, node int) error {
	if !e.registry.IsReachable(node) {
		e.logger.Debug().Int("node_id", node).Msg("target unreachable, skipping cycle")
		return nil
	}

	entries, err := e.log.FetchPending(ctx, node, e.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetch pending: %w", err)
	}
	e.metrics.SetPending(node, len(entries))

	for i := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		proceed, err := e.processEntry(ctx, node, &entries[i])
		if err != nil {
			return err
		}
		if !proceed && !e.cfg.AllowOutOfOrder {
			// A later write must not be applied while an earlier one for
			// the same target is unresolved.
			break
		}
	}
	return nil
}

// processEntry resolves a single entry for this cycle. proceed reports
// whether the entry ended in a terminal or skippable state that unblocks
// the ones queued behind it. A non-nil error means the recovery log
// itself failed and the cycle must abort.
func (e *Engine) processEntry(ctx context.Context, node int, entry *recovery.Entry) (proceed bool, err error) {
	now := e.now()

	switch e.policy.Decide(entry.RetryCount, entry.LastAttemptAt, now) {
	case retry.DeadLetter:
		msg := fmt.Sprintf("retries exhausted after %d attempts; last error: %s",
			entry.RetryCount, entry.ErrorMessage)
		transitioned, err := e.log.MarkDeadLettered(ctx, entry.ID, msg)
		if err != nil {
			return false, fmt.Errorf("dead-letter entry %d: %w", entry.ID, err)
		}
		if transitioned {
			e.metrics.IncOutcome(node, "dead_lettered")
			e.logger.Warn().Int64("log_id", entry.ID).Int("node_id", node).
				Int("retry_count", entry.RetryCount).Msg("entry dead-lettered")
		}
		// Terminal either way: the queue behind it is unblocked.
		return true, nil

	case retry.Wait:
		return false, nil
	}

	claimed, err := e.log.BeginAttempt(ctx, entry.ID, now)
	if err != nil {
		return false, fmt.Errorf("claim entry %d: %w", entry.ID, err)
	}
	if !claimed {
		// Another worker resolved or claimed it since the fetch. Leave
		// the rest of the batch to whoever holds it.
		return false, nil
	}

	e.metrics.IncAttempt(node)
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	start := time.Now()
	applyErr := e.applier.Apply(attemptCtx, node, entry.Statement)
	e.metrics.ObserveAttempt(node, time.Since(start))
	cancel()

	if applyErr == nil {
		if _, err := e.log.MarkCompleted(ctx, entry.ID, ""); err != nil {
			return false, fmt.Errorf("complete entry %d: %w", entry.ID, err)
		}
		e.metrics.IncOutcome(node, "completed")
		e.logger.Info().Int64("log_id", entry.ID).Int("node_id", node).Msg("entry replayed")
		return true, nil
	}

	werr := recovery.Classify(node, applyErr)
	switch werr.Class {
	case recovery.ClassDuplicate:
		// The write already landed at the target (a crash after a
		// partially acknowledged attempt, or a concurrent path). The
		// logical transaction is done.
		if _, err := e.log.MarkCompleted(ctx, entry.ID, "already applied at target"); err != nil {
			return false, fmt.Errorf("complete entry %d: %w", entry.ID, err)
		}
		e.metrics.IncOutcome(node, "already_applied")
		e.logger.Info().Int64("log_id", entry.ID).Int("node_id", node).
			Msg("entry already applied at target, marked completed")
		return true, nil

	case recovery.ClassStatement:
		// Retrying can never succeed; dead-letter on first failure so the
		// budget is kept for genuinely transient trouble, and keep the
		// class in the message so operators don't chase a connectivity
		// ghost.
		if _, err := e.log.MarkDeadLettered(ctx, entry.ID, werr.Error()); err != nil {
			return false, fmt.Errorf("dead-letter entry %d: %w", entry.ID, err)
		}
		e.metrics.IncOutcome(node, "dead_lettered")
		e.logger.Error().Int64("log_id", entry.ID).Int("node_id", node).Err(werr).
			Msg("non-retryable statement, entry dead-lettered")
		return false, nil

	default:
		if _, err := e.log.MarkFailedAttempt(ctx, entry.ID, werr.Error()); err != nil {
			return false, fmt.Errorf("record failed attempt %d: %w", entry.ID, err)
		}
		e.metrics.IncOutcome(node, "failed_attempt")
		e.logger.Warn().Int64("log_id", entry.ID).Int("node_id", node).Err(werr).
			Int("retry_count", entry.RetryCount+1).Msg("replay attempt failed")
		// The node likely flipped unreachable mid-batch; the rest of the
		// queue defers to the next cycle, where exhaustion (if any) is
		// picked up by the policy check before another attempt.
		return false, nil
	}
}
