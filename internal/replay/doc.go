// Package replay re-applies queued recovery log entries once their target
// node is reachable again.
//
// One worker goroutine runs per target node. Workers for different nodes
// are independent; a single node's entries are processed by exactly one
// worker, in creation order, so per-target ordering holds without any
// cross-worker coordination. The recovery log's guarded status transitions
// are the only mutation path, which also gives the single-writer-per-entry
// guarantee when several processes share one log.
package replay
