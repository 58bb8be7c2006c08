package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/relogd/relog/internal/recovery"
)

const entryColumns = `log_id, target_node, source_node, sql_statement,
	timestamp, status, retry_count, error_message, transaction_hash, last_attempt_at`

// FetchPending returns PENDING entries for a target node in replay order:
// timestamp ascending, log_id as the tiebreaker for entries created in the
// same instant. Backoff eligibility is the caller's concern (the replay
// worker consults the retry policy per entry), so the read stays a plain
// indexed scan.
func (s *Store) FetchPending(ctx context.Context, targetNode, limit int) ([]recovery.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM recovery_log
		WHERE target_node = ? AND status = 'PENDING'
		ORDER BY timestamp ASC, log_id ASC
		LIMIT ?
	`, targetNode, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending for node %d: %w", targetNode, err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("fetch pending for node %d: %w", targetNode, err)
	}
	return entries, nil
}

// GetByID returns a single entry by its surrogate key.
func (s *Store) GetByID(ctx context.Context, id int64) (recovery.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM recovery_log WHERE log_id = ?
	`, id)

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return recovery.Entry{}, fmt.Errorf("entry %d: %w", id, err)
	}
	if err != nil {
		return recovery.Entry{}, fmt.Errorf("get entry %d: %w", id, err)
	}
	return e, nil
}

// GetPendingByHash returns the non-terminal entry for a transaction hash,
// or sql.ErrNoRows (wrapped) when none is queued. There is at most one by
// the partial unique index.
func (s *Store) GetPendingByHash(ctx context.Context, hash string) (recovery.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM recovery_log
		WHERE transaction_hash = ? AND status = 'PENDING'
	`, hash)

	e, err := scanEntry(row)
	if err != nil {
		return recovery.Entry{}, fmt.Errorf("get pending by hash: %w", err)
	}
	return e, nil
}

// CountByStatus returns the number of entries per status. Statuses with no
// entries are present with a zero count.
func (s *Store) CountByStatus(ctx context.Context) (map[recovery.Status]int, error) {
	counts := map[recovery.Status]int{
		recovery.StatusPending:   0,
		recovery.StatusCompleted: 0,
		recovery.StatusFailed:    0,
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM recovery_log GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count by status: scan: %w", err)
		}
		counts[recovery.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count by status: iterate: %w", err)
	}

	return counts, nil
}

// PendingByTarget returns the number of PENDING entries per target node.
func (s *Store) PendingByTarget(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target_node, COUNT(*) FROM recovery_log
		WHERE status = 'PENDING'
		GROUP BY target_node
	`)
	if err != nil {
		return nil, fmt.Errorf("pending by target: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var node, n int
		if err := rows.Scan(&node, &n); err != nil {
			return nil, fmt.Errorf("pending by target: scan: %w", err)
		}
		counts[node] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending by target: iterate: %w", err)
	}

	return counts, nil
}

// DeadLetters returns FAILED entries, most recently created first, for
// operator inspection.
func (s *Store) DeadLetters(ctx context.Context, limit int) ([]recovery.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM recovery_log
		WHERE status = 'FAILED'
		ORDER BY timestamp DESC, log_id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w", err)
	}
	return entries, nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (recovery.Entry, error) {
	var e recovery.Entry
	var status string
	var errMsg sql.NullString
	var lastAttempt sql.NullTime

	err := row.Scan(
		&e.ID,
		&e.TargetNode,
		&e.SourceNode,
		&e.Statement,
		&e.CreatedAt,
		&status,
		&e.RetryCount,
		&errMsg,
		&e.TransactionHash,
		&lastAttempt,
	)
	if err != nil {
		return recovery.Entry{}, err
	}

	e.Status = recovery.Status(status)
	if errMsg.Valid {
		e.ErrorMessage = errMsg.String
	}
	if lastAttempt.Valid {
		e.LastAttemptAt = lastAttempt.Time
	}
	return e, nil
}

func scanEntries(rows *sql.Rows) ([]recovery.Entry, error) {
	var entries []recovery.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	if entries == nil {
		entries = []recovery.Entry{}
	}
	return entries, nil
}
