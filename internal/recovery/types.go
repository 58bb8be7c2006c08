package recovery

import "time"

// Status is the lifecycle state of a recovery log entry.
//
// Transitions are PENDING → COMPLETED or PENDING → FAILED only.
// COMPLETED and FAILED are terminal and immutable; the store enforces this
// by guarding every transition on the current status.
type Status string

const (
	// StatusPending marks an entry awaiting replay.
	StatusPending Status = "PENDING"

	// StatusCompleted marks an entry whose statement was applied at the
	// target (or found already applied there).
	StatusCompleted Status = "COMPLETED"

	// StatusFailed marks a dead-lettered entry: retries exhausted or the
	// statement was rejected as non-retryable. Requires operator action
	// (redrive) to ever run again.
	StatusFailed Status = "FAILED"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Entry is the unit of durable work in the recovery log: one write that
// failed direct application and must be replayed against its target node.
//
// ID is a storage surrogate only; replay order is defined by CreatedAt
// (and ID as a tiebreaker for entries created in the same instant).
type Entry struct {
	ID              int64
	TargetNode      int
	SourceNode      int
	Statement       string
	CreatedAt       time.Time
	Status          Status
	RetryCount      int
	ErrorMessage    string // empty when the column is NULL
	TransactionHash string

	// LastAttemptAt is the zero time until the first replay attempt.
	// Together with RetryCount it drives the backoff decision.
	LastAttemptAt time.Time
}

// Attempted reports whether the entry has ever been claimed for replay.
func (e *Entry) Attempted() bool {
	return !e.LastAttemptAt.IsZero()
}
