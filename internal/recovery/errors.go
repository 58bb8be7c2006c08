package recovery

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Class categorizes a failed write for retry accounting.
//
// The engine deliberately cannot distinguish "node down" from "node
// refusing this user": both classify as TRANSIENT and converge to retry.
// Only errors that no amount of retrying can fix get their own classes.
type Class string

const (
	// ClassTransient covers connectivity, authorization, lock contention
	// and timeout failures. Recoverable; drives retry accounting.
	ClassTransient Class = "TRANSIENT"

	// ClassStatement covers malformed statements and constraint
	// violations unrelated to connectivity. Retrying can never succeed,
	// so these dead-letter on first failure.
	ClassStatement Class = "STATEMENT"

	// ClassDuplicate is a unique-key violation during replay: the write
	// already landed at the target, so the entry completes instead of
	// failing.
	ClassDuplicate Class = "DUPLICATE"

	// ClassStorage means the recovery log itself is unavailable. Fatal at
	// the dispatcher boundary: the write is neither applied nor queued.
	ClassStorage Class = "STORAGE"
)

// WriteError is a classified failure of a write against a node or against
// the recovery log.
type WriteError struct {
	Class Class
	Node  int
	Err   error
}

func (e *WriteError) Error() string {
	if e.Node != 0 {
		return fmt.Sprintf("%s: node %d: %v", e.Class, e.Node, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// NewWriteError wraps err with an explicit class.
func NewWriteError(class Class, node int, err error) *WriteError {
	return &WriteError{Class: class, Node: node, Err: err}
}

// ClassOf extracts the class from a (possibly wrapped) WriteError.
// The second return is false for unclassified errors.
func ClassOf(err error) (Class, bool) {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Class, true
	}
	return "", false
}

// IsTransient reports whether err classifies as a recoverable failure.
func IsTransient(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassTransient
}

// IsStatement reports whether err classifies as a non-retryable statement
// failure.
func IsStatement(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassStatement
}

// IsDuplicate reports whether err is a unique-key violation.
func IsDuplicate(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassDuplicate
}

// IsStorage reports whether err is a recovery log storage failure.
func IsStorage(err error) bool {
	c, ok := ClassOf(err)
	return ok && c == ClassStorage
}

// Classify maps a raw driver error from a write against node into a
// WriteError. Already-classified errors pass through unchanged.
//
// Unknown errors default to TRANSIENT: when in doubt the write is queued
// and retried rather than dropped.
func Classify(node int, err error) *WriteError {
	var we *WriteError
	if errors.As(err, &we) {
		return we
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewWriteError(ClassTransient, node, err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return NewWriteError(ClassTransient, node, err)
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		switch serr.Code {
		case sqlite3.ErrConstraint:
			switch serr.ExtendedCode {
			case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
				return NewWriteError(ClassDuplicate, node, err)
			}
			return NewWriteError(ClassStatement, node, err)
		case sqlite3.ErrError, sqlite3.ErrTooBig, sqlite3.ErrMismatch, sqlite3.ErrRange:
			// SQL logic errors: bad syntax, missing table, type mismatch.
			return NewWriteError(ClassStatement, node, err)
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen,
			sqlite3.ErrAuth, sqlite3.ErrPerm, sqlite3.ErrIoErr,
			sqlite3.ErrNotADB, sqlite3.ErrReadonly, sqlite3.ErrProtocol:
			return NewWriteError(ClassTransient, node, err)
		}
	}

	return NewWriteError(ClassTransient, node, err)
}
