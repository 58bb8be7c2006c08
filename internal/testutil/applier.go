package testutil

import (
	"context"
	"sync"
)

// Call records one statement application observed by the scripted applier.
type Call struct {
	NodeID    int
	Statement string
}

// ScriptedApplier implements the replay engine's Applier and the prober's
// Pinger with per-node scripted behavior: one-shot results consumed in
// order, then a persistent per-node error (nil meaning success).
type ScriptedApplier struct {
	mu     sync.Mutex
	down   map[int]error
	script map[int][]error
	calls  []Call
}

// NewScriptedApplier creates an applier where every node succeeds until
// told otherwise.
func NewScriptedApplier() *ScriptedApplier {
	return &ScriptedApplier{
		down:   make(map[int]error),
		script: make(map[int][]error),
	}
}

// FailNode makes every subsequent call against node return err.
func (a *ScriptedApplier) FailNode(nodeID int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down[nodeID] = err
}

// RecoverNode makes node succeed again.
func (a *ScriptedApplier) RecoverNode(nodeID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.down, nodeID)
}

// Push queues a one-shot result for node, consumed before the persistent
// behavior applies. A nil err is a one-shot success.
func (a *ScriptedApplier) Push(nodeID int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script[nodeID] = append(a.script[nodeID], err)
}

// Apply records the call and returns the scripted result.
func (a *ScriptedApplier) Apply(ctx context.Context, nodeID int, statement string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, Call{NodeID: nodeID, Statement: statement})
	return a.result(nodeID)
}

// Ping returns the node's persistent state without consuming one-shot
// results or recording a call.
func (a *ScriptedApplier) Ping(ctx context.Context, nodeID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.down[nodeID]
}

// Calls returns a copy of the recorded applications.
func (a *ScriptedApplier) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// CallCount returns how many applications have been attempted.
func (a *ScriptedApplier) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func (a *ScriptedApplier) result(nodeID int) error {
	if q := a.script[nodeID]; len(q) > 0 {
		err := q[0]
		a.script[nodeID] = q[1:]
		return err
	}
	return a.down[nodeID]
}
