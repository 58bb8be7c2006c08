// Package dispatch is the write entry point: it applies a logical write
// directly against its target node and, when the node is unreachable,
// hands the write to the recovery log instead of losing it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/relogd/relog/internal/metrics"
	"github.com/relogd/relog/internal/recovery"
)

// Outcome is what happened to a dispatched write.
type Outcome string

const (
	// Applied means the statement ran directly against the target.
	Applied Outcome = "applied"

	// Queued means the target was unreachable and the write is durably
	// queued for replay. Not a failure: the write will happen.
	Queued Outcome = "queued"
)

// Request is one logical write bound for a target node.
type Request struct {
	SourceNode int
	TargetNode int
	Statement  string

	// LogicalTxID scopes the dedup hash: the same statement under a new
	// transaction id is a new logical write. Minted when empty.
	LogicalTxID string
}

// Result reports the outcome of a dispatch. LogID and TransactionHash are
// set only for Queued results.
type Result struct {
	Outcome         Outcome
	LogicalTxID     string
	LogID           int64
	TransactionHash string
}

// Log is the enqueue slice of the recovery log. Implemented by
// *store.Store.
type Log interface {
	Enqueue(ctx context.Context, e *recovery.Entry) (id int64, inserted bool, err error)
}

// Applier applies a statement against a node. Implemented by *nodes.Pool.
type Applier interface {
	Apply(ctx context.Context, nodeID int, statement string) error
}

// Dispatcher routes writes: direct application first, recovery log on
// transient failure, hard error on anything retrying can't fix.
type Dispatcher struct {
	log     Log
	applier Applier
	logger  *zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New assembles a dispatcher.
func New(log Log, applier Applier, logger *zerolog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		log:     log,
		applier: applier,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// SetNow overrides the dispatcher's clock. Test hook.
func (d *Dispatcher) SetNow(now func() time.Time) {
	d.now = now
}

// Dispatch applies the request's statement against its target node.
//
//   - Success (or the write already present at the target): Applied.
//   - Transient/authorization failure: the write is enqueued as a PENDING
//     recovery log entry and the result is Queued - never a silent
//     success, never an unrecoverable error.
//   - Non-retryable statement error: returned to the caller immediately;
//     nothing is queued since replaying could never succeed.
//   - Recovery log unavailable: fatal, returned as a STORAGE-classed
//     error - the write is neither applied nor safely queued.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if req.Statement == "" {
		return Result{}, recovery.NewWriteError(recovery.ClassStatement, req.TargetNode,
			errors.New("empty statement"))
	}

	txID := req.LogicalTxID
	if txID == "" {
		txID = uuid.NewString()
	}

	applyErr := d.applier.Apply(ctx, req.TargetNode, req.Statement)
	if applyErr == nil {
		d.metrics.IncDispatch("applied")
		return Result{Outcome: Applied, LogicalTxID: txID}, nil
	}

	werr := recovery.Classify(req.TargetNode, applyErr)
	switch werr.Class {
	case recovery.ClassDuplicate:
		// Accepted statements are idempotent; the write is already there.
		d.metrics.IncDispatch("applied")
		d.logger.Debug().Int("node_id", req.TargetNode).Str("tx_id", txID).
			Msg("write already present at target")
		return Result{Outcome: Applied, LogicalTxID: txID}, nil

	case recovery.ClassStatement:
		d.metrics.IncDispatch("rejected")
		return Result{}, fmt.Errorf("non-retryable write to node %d: %w", req.TargetNode, werr)
	}

	// Transient or authorization failure: queue for recovery. The two are
	// deliberately indistinguishable here.
	hash := recovery.TransactionHash(req.SourceNode, req.TargetNode, req.Statement, txID)
	entry := &recovery.Entry{
		TargetNode:      req.TargetNode,
		SourceNode:      req.SourceNode,
		Statement:       req.Statement,
		CreatedAt:       d.now().UTC(),
		Status:          recovery.StatusPending,
		ErrorMessage:    werr.Error(),
		TransactionHash: hash,
	}

	id, inserted, err := d.log.Enqueue(ctx, entry)
	if err != nil {
		d.metrics.IncDispatch("storage_error")
		return Result{}, recovery.NewWriteError(recovery.ClassStorage, 0,
			fmt.Errorf("write to node %d failed and could not be queued: %w", req.TargetNode, err))
	}

	d.metrics.IncDispatch("queued")
	evt := d.logger.Info().Int64("log_id", id).Int("node_id", req.TargetNode).
		Str("tx_id", txID).Err(werr)
	if inserted {
		evt.Msg("write queued for recovery")
	} else {
		evt.Msg("write already queued, failure record refreshed")
	}

	return Result{
		Outcome:         Queued,
		LogicalTxID:     txID,
		LogID:           id,
		TransactionHash: hash,
	}, nil
}
