package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/relogd/relog/internal/recovery"
)

func TestFetchPending_ReplayOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Enqueued out of creation order: replay must follow timestamps, not
	// insertion order.
	late := mustEnqueue(t, s, testEntry(1, 2, "stmt-late", "tx-late", t0.Add(2*time.Minute)))
	early := mustEnqueue(t, s, testEntry(1, 2, "stmt-early", "tx-early", t0))
	mid := mustEnqueue(t, s, testEntry(1, 2, "stmt-mid", "tx-mid", t0.Add(time.Minute)))

	entries, err := s.FetchPending(ctx, 2, 10)
	if err != nil {
		t.Fatalf("FetchPending() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	wantOrder := []int64{early, mid, late}
	for i, want := range wantOrder {
		if entries[i].ID != want {
			t.Errorf("entries[%d].ID = %d, want %d", i, entries[i].ID, want)
		}
	}
}

func TestFetchPending_LogIDBreaksTimestampTies(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first := mustEnqueue(t, s, testEntry(1, 2, "stmt-a", "tx-a", t0))
	second := mustEnqueue(t, s, testEntry(1, 2, "stmt-b", "tx-b", t0))

	entries, err := s.FetchPending(ctx, 2, 10)
	if err != nil {
		t.Fatalf("FetchPending() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID != first || entries[1].ID != second {
		t.Errorf("tie broke as [%d %d], want [%d %d]",
			entries[0].ID, entries[1].ID, first, second)
	}
}

func TestFetchPending_FiltersTargetAndStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustEnqueue(t, s, testEntry(1, 2, "for-node-2", "tx-1", t0))
	mustEnqueue(t, s, testEntry(1, 3, "for-node-3", "tx-2", t0))
	done := mustEnqueue(t, s, testEntry(1, 2, "already-done", "tx-3", t0))
	if _, err := s.MarkCompleted(ctx, done, ""); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}
	dead := mustEnqueue(t, s, testEntry(1, 2, "dead", "tx-4", t0))
	if _, err := s.MarkDeadLettered(ctx, dead, "exhausted"); err != nil {
		t.Fatalf("MarkDeadLettered() failed: %v", err)
	}

	entries, err := s.FetchPending(ctx, 2, 10)
	if err != nil {
		t.Fatalf("FetchPending() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Statement != "for-node-2" {
		t.Errorf("statement = %q, want the one pending node-2 write", entries[0].Statement)
	}
}

func TestFetchPending_HonorsLimit(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mustEnqueue(t, s, testEntry(1, 2, "stmt", string(rune('a'+i)), t0.Add(time.Duration(i)*time.Second)))
	}

	entries, err := s.FetchPending(ctx, 2, 2)
	if err != nil {
		t.Fatalf("FetchPending() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want limit of 2", len(entries))
	}
}

func TestFetchPending_EmptyIsNotNil(t *testing.T) {
	s := createTestStore(t)

	entries, err := s.FetchPending(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("FetchPending() failed: %v", err)
	}
	if entries == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestGetPendingByHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := testEntry(1, 2, "stmt", "tx-1", t0)
	id := mustEnqueue(t, s, e)

	got, err := s.GetPendingByHash(ctx, e.TransactionHash)
	if err != nil {
		t.Fatalf("GetPendingByHash() failed: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}

	if _, err := s.MarkCompleted(ctx, id, ""); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}

	_, err = s.GetPendingByHash(ctx, e.TransactionHash)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected wrapped sql.ErrNoRows once terminal, got %v", err)
	}
}

func TestCountByStatus_SeedsZeroes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	counts, err := s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() failed: %v", err)
	}
	for _, status := range []recovery.Status{
		recovery.StatusPending, recovery.StatusCompleted, recovery.StatusFailed,
	} {
		if n, ok := counts[status]; !ok || n != 0 {
			t.Errorf("counts[%s] = %d (present=%v), want 0 present", status, n, ok)
		}
	}

	mustEnqueue(t, s, testEntry(1, 2, "a", "tx-1", t0))
	mustEnqueue(t, s, testEntry(1, 2, "b", "tx-2", t0))
	done := mustEnqueue(t, s, testEntry(1, 3, "c", "tx-3", t0))
	if _, err := s.MarkCompleted(ctx, done, ""); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}

	counts, err = s.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() failed: %v", err)
	}
	if counts[recovery.StatusPending] != 2 {
		t.Errorf("pending = %d, want 2", counts[recovery.StatusPending])
	}
	if counts[recovery.StatusCompleted] != 1 {
		t.Errorf("completed = %d, want 1", counts[recovery.StatusCompleted])
	}
	if counts[recovery.StatusFailed] != 0 {
		t.Errorf("failed = %d, want 0", counts[recovery.StatusFailed])
	}
}

func TestPendingByTarget(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustEnqueue(t, s, testEntry(1, 2, "a", "tx-1", t0))
	mustEnqueue(t, s, testEntry(1, 2, "b", "tx-2", t0))
	mustEnqueue(t, s, testEntry(1, 3, "c", "tx-3", t0))
	done := mustEnqueue(t, s, testEntry(1, 3, "d", "tx-4", t0))
	if _, err := s.MarkCompleted(ctx, done, ""); err != nil {
		t.Fatalf("MarkCompleted() failed: %v", err)
	}

	counts, err := s.PendingByTarget(ctx)
	if err != nil {
		t.Fatalf("PendingByTarget() failed: %v", err)
	}
	if counts[2] != 2 {
		t.Errorf("counts[2] = %d, want 2", counts[2])
	}
	if counts[3] != 1 {
		t.Errorf("counts[3] = %d, want 1", counts[3])
	}
}

func TestDeadLetters_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	old := mustEnqueue(t, s, testEntry(1, 2, "old", "tx-1", t0))
	recent := mustEnqueue(t, s, testEntry(1, 2, "recent", "tx-2", t0.Add(time.Hour)))
	mustEnqueue(t, s, testEntry(1, 2, "still pending", "tx-3", t0))
	for _, id := range []int64{old, recent} {
		if _, err := s.MarkDeadLettered(ctx, id, "exhausted"); err != nil {
			t.Fatalf("MarkDeadLettered(%d) failed: %v", id, err)
		}
	}

	dead, err := s.DeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("DeadLetters() failed: %v", err)
	}
	if len(dead) != 2 {
		t.Fatalf("got %d dead letters, want 2", len(dead))
	}
	if dead[0].ID != recent || dead[1].ID != old {
		t.Errorf("order = [%d %d], want newest first [%d %d]",
			dead[0].ID, dead[1].ID, recent, old)
	}
	if dead[0].ErrorMessage != "exhausted" {
		t.Errorf("error_message = %q, want %q", dead[0].ErrorMessage, "exhausted")
	}
}

func TestGetByID_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.GetByID(context.Background(), 404)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected wrapped sql.ErrNoRows, got %v", err)
	}
}
