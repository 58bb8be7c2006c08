package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/relogd/relog/internal/recovery"
)

// createTestStore creates a fresh on-disk store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relog.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testEntry creates an entry with minimal required fields. The hash is
// derived from the inputs so distinct statements get distinct hashes.
func testEntry(source, target int, statement, txID string, createdAt time.Time) *recovery.Entry {
	return &recovery.Entry{
		TargetNode:      target,
		SourceNode:      source,
		Statement:       statement,
		CreatedAt:       createdAt,
		Status:          recovery.StatusPending,
		ErrorMessage:    "connection refused",
		TransactionHash: recovery.TransactionHash(source, target, statement, txID),
	}
}

// mustEnqueue enqueues an entry and fails the test on error.
func mustEnqueue(t *testing.T, s *Store, e *recovery.Entry) int64 {
	t.Helper()
	id, _, err := s.Enqueue(context.Background(), e)
	if err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	return id
}
