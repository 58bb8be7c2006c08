package nodes

import (
	"testing"
	"time"
)

func testTargets() []Target {
	return []Target{
		{ID: 2, Name: "node-2", DSN: "file:node2.db"},
		{ID: 1, Name: "node-1", DSN: "file:node1.db"},
		{ID: 3, Name: "node-3", DSN: "file:node3.db"},
	}
}

func TestRegistry_StartsUnreachable(t *testing.T) {
	r := NewRegistry(testTargets())

	for _, id := range []int{1, 2, 3} {
		if r.IsReachable(id) {
			t.Errorf("node %d should be unreachable before its first probe", id)
		}
	}
}

func TestRegistry_UnknownNodeIsUnreachable(t *testing.T) {
	r := NewRegistry(testTargets())

	if r.IsReachable(99) {
		t.Error("unknown node ids must report unreachable")
	}
	if r.SetReachable(99, true, time.Now()) {
		t.Error("setting an unknown node must not report a transition")
	}
}

func TestRegistry_SetReachableReportsTransitions(t *testing.T) {
	r := NewRegistry(testTargets())
	probedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !r.SetReachable(1, true, probedAt) {
		t.Error("unreachable -> reachable is a transition")
	}
	if r.SetReachable(1, true, probedAt.Add(time.Second)) {
		t.Error("reachable -> reachable is not a transition")
	}
	if !r.SetReachable(1, false, probedAt.Add(2*time.Second)) {
		t.Error("reachable -> unreachable is a transition")
	}
	if r.IsReachable(1) {
		t.Error("node 1 should be unreachable after the last probe")
	}
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry(testTargets())

	ids := r.IDs()
	want := []int{1, 2, 3}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(testTargets())
	probedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.SetReachable(2, true, probedAt)

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("got %d nodes, want 3", len(snap))
	}
	if snap[0].ID != 1 || snap[1].ID != 2 || snap[2].ID != 3 {
		t.Errorf("snapshot not ordered by id: %v %v %v", snap[0].ID, snap[1].ID, snap[2].ID)
	}
	if !snap[1].Reachable {
		t.Error("node 2 should be reachable in the snapshot")
	}
	if snap[1].LastProbedAt != probedAt {
		t.Errorf("LastProbedAt = %v, want %v", snap[1].LastProbedAt, probedAt)
	}
	if snap[0].Reachable || snap[2].Reachable {
		t.Error("unprobed nodes should stay unreachable")
	}
	if snap[1].Name != "node-2" || snap[1].Endpoint != "file:node2.db" {
		t.Errorf("snapshot lost target details: %+v", snap[1])
	}
}
