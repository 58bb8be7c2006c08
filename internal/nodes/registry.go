package nodes

import (
	"sort"
	"sync"
	"time"
)

// NodeStatus is a point-in-time view of one node for callers outside the
// probe subsystem.
type NodeStatus struct {
	ID           int
	Name         string
	Endpoint     string
	Reachable    bool
	LastProbedAt time.Time
}

type nodeState struct {
	target       Target
	reachable    bool
	lastProbedAt time.Time
}

// Registry tracks the known node set and its last-known reachability.
//
// Nodes are registered once from static configuration and never removed at
// runtime. Reachability is mutated only by the health prober; everyone
// else reads. Until a node's first probe completes it reports unreachable,
// which keeps the replay engine from attempting targets nobody has seen up.
type Registry struct {
	mu    sync.RWMutex
	nodes map[int]*nodeState
	order []int
}

// NewRegistry registers the configured targets, all initially unreachable.
func NewRegistry(targets []Target) *Registry {
	r := &Registry{nodes: make(map[int]*nodeState, len(targets))}
	for _, t := range targets {
		r.nodes[t.ID] = &nodeState{target: t}
		r.order = append(r.order, t.ID)
	}
	sort.Ints(r.order)
	return r
}

// IsReachable returns the last-known reachability of a node. Unknown node
// ids report unreachable.
func (r *Registry) IsReachable(nodeID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[nodeID]
	return ok && n.reachable
}

// SetReachable records a probe result. Reserved for the health prober.
// Returns whether the reachability flipped, so the caller can log the
// transition.
func (r *Registry) SetReachable(nodeID int, up bool, probedAt time.Time) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[nodeID]
	if !ok {
		return false
	}
	changed = n.reachable != up
	n.reachable = up
	n.lastProbedAt = probedAt
	return changed
}

// IDs returns the registered node ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int, len(r.order))
	copy(out, r.order)
	return out
}

// Snapshot returns the state of every node, ordered by id.
func (r *Registry) Snapshot() []NodeStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NodeStatus, 0, len(r.order))
	for _, id := range r.order {
		n := r.nodes[id]
		out = append(out, NodeStatus{
			ID:           id,
			Name:         n.target.Name,
			Endpoint:     n.target.DSN,
			Reachable:    n.reachable,
			LastProbedAt: n.lastProbedAt,
		})
	}
	return out
}
