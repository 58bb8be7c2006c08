package store

import (
	"context"
	"fmt"
	"time"

	"github.com/relogd/relog/internal/recovery"
)

// Enqueue inserts a PENDING recovery log entry, or refreshes the existing
// one when a non-terminal entry with the same transaction hash is already
// queued. Returns the row id and whether a new row was inserted.
//
// Deduplication is a first-failure record, not a replay attempt: on
// conflict only error_message is refreshed, never retry_count. The partial
// unique index on (transaction_hash WHERE status='PENDING') makes the
// insert-or-refresh race-safe.
func (s *Store) Enqueue(ctx context.Context, e *recovery.Entry) (id int64, inserted bool, err error) {
	// Use a transaction to ensure atomicity of insert-or-refresh
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO recovery_log
		(target_node, source_node, sql_statement, timestamp, status, retry_count, error_message, transaction_hash)
		VALUES (?, ?, ?, ?, 'PENDING', 0, ?, ?)
		ON CONFLICT(transaction_hash) WHERE status = 'PENDING' DO NOTHING
	`,
		e.TargetNode,
		e.SourceNode,
		e.Statement,
		e.CreatedAt.UTC(),
		nullable(e.ErrorMessage),
		e.TransactionHash,
	)
	if err != nil {
		return 0, false, fmt.Errorf("enqueue: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("enqueue: rows affected: %w", err)
	}

	if rowsAffected > 0 {
		id, err = result.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("enqueue: last insert id: %w", err)
		}
		inserted = true
	} else {
		// Conflict - a PENDING entry for this logical transaction already
		// exists. Record the latest failure text against it.
		err = tx.QueryRowContext(ctx, `
			SELECT log_id FROM recovery_log
			WHERE transaction_hash = ? AND status = 'PENDING'
		`, e.TransactionHash).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("enqueue: select existing: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE recovery_log SET error_message = ?
			WHERE log_id = ? AND status = 'PENDING'
		`, nullable(e.ErrorMessage), id)
		if err != nil {
			return 0, false, fmt.Errorf("enqueue: refresh existing: %w", err)
		}
		inserted = false
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("enqueue: commit: %w", err)
	}

	return id, inserted, nil
}

// BeginAttempt claims an entry for one replay attempt: atomically bumps
// retry_count and stamps last_attempt_at, but only while the entry is
// still PENDING. Claimed is false when another worker already resolved or
// claimed it.
//
// The claim is durable before any statement is sent to the target, and the
// status stays PENDING, so a crash mid-attempt leaves the entry eligible
// for a later worker instead of stuck in an in-progress limbo. The bump is
// the attempt's single retry_count increment; MarkFailedAttempt records
// only the error text.
func (s *Store) BeginAttempt(ctx context.Context, id int64, now time.Time) (claimed bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recovery_log
		SET retry_count = retry_count + 1, last_attempt_at = ?
		WHERE log_id = ? AND status = 'PENDING'
	`, now.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("begin attempt %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("begin attempt %d: rows affected: %w", id, err)
	}
	return rowsAffected == 1, nil
}

// MarkCompleted transitions a PENDING entry to COMPLETED. Transitioned is
// false when the entry was not PENDING (already resolved by a concurrent
// caller); terminal states are never overwritten.
func (s *Store) MarkCompleted(ctx context.Context, id int64, note string) (transitioned bool, err error) {
	return s.transition(ctx, id, recovery.StatusCompleted, note)
}

// MarkFailedAttempt records the error of a failed replay attempt. The
// entry stays PENDING; the retry_count increment already happened at
// BeginAttempt.
func (s *Store) MarkFailedAttempt(ctx context.Context, id int64, errMsg string) (recorded bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recovery_log SET error_message = ?
		WHERE log_id = ? AND status = 'PENDING'
	`, nullable(errMsg), id)
	if err != nil {
		return false, fmt.Errorf("mark failed attempt %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark failed attempt %d: rows affected: %w", id, err)
	}
	return rowsAffected == 1, nil
}

// MarkDeadLettered transitions a PENDING entry to terminal FAILED. Used
// when retries are exhausted or the statement is non-retryable. Dead
// lettered entries are never auto-retried; see Redrive.
func (s *Store) MarkDeadLettered(ctx context.Context, id int64, errMsg string) (transitioned bool, err error) {
	return s.transition(ctx, id, recovery.StatusFailed, errMsg)
}

// transition performs the guarded PENDING → terminal status change.
// At most one concurrent caller observes transitioned=true.
func (s *Store) transition(ctx context.Context, id int64, to recovery.Status, note string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recovery_log SET status = ?, error_message = ?
		WHERE log_id = ? AND status = 'PENDING'
	`, string(to), nullable(note), id)
	if err != nil {
		return false, fmt.Errorf("transition %d to %s: %w", id, to, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition %d to %s: rows affected: %w", id, to, err)
	}
	return rowsAffected == 1, nil
}

// Redrive promotes a dead-lettered entry back to PENDING with a fresh
// retry budget. Operator-only escape hatch: FAILED is terminal for the
// engine, and this is the single sanctioned way out of it.
func (s *Store) Redrive(ctx context.Context, id int64) (redriven bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE recovery_log
		SET status = 'PENDING', retry_count = 0, error_message = NULL, last_attempt_at = NULL
		WHERE log_id = ? AND status = 'FAILED'
	`, id)
	if err != nil {
		return false, fmt.Errorf("redrive %d: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("redrive %d: rows affected: %w", id, err)
	}
	return rowsAffected == 1, nil
}

// nullable maps an empty string to NULL for nullable text columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
