package nodes

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/relogd/relog/internal/metrics"
)

// Pinger is the connectivity check the prober runs against each node.
// Implemented by Pool; tests substitute a scripted pinger.
type Pinger interface {
	Ping(ctx context.Context, nodeID int) error
}

// Prober refreshes the registry's reachability on its own schedule,
// decoupled from replay. Probe failures are logged and recorded, never
// returned: reachability is advisory.
type Prober struct {
	registry *Registry
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewProber wires a prober over the registry. interval is the gap between
// probe rounds, timeout bounds each individual probe.
func NewProber(registry *Registry, pinger Pinger, interval, timeout time.Duration, logger *zerolog.Logger, m *metrics.Metrics) *Prober {
	return &Prober{
		registry: registry,
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Run probes all nodes immediately, then on every tick until ctx is
// cancelled.
func (p *Prober) Run(ctx context.Context) {
	p.ProbeAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeAll(ctx)
		}
	}
}

// ProbeAll runs one probe round over every registered node. Exported so
// one-shot callers (the status command) can reuse it.
func (p *Prober) ProbeAll(ctx context.Context) {
	for _, id := range p.registry.IDs() {
		if ctx.Err() != nil {
			return
		}

		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.pinger.Ping(probeCtx, id)
		cancel()

		up := err == nil
		probedAt := p.now()
		changed := p.registry.SetReachable(id, up, probedAt)
		p.metrics.SetNodeUp(id, up)

		if changed {
			if up {
				p.logger.Info().Int("node_id", id).Msg("node back online")
			} else {
				p.logger.Warn().Int("node_id", id).Err(err).Msg("node went offline")
			}
		} else if !up {
			p.logger.Debug().Int("node_id", id).Err(err).Msg("node still offline")
		}
	}
}
