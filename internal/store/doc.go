// Package store is the durable recovery log: an append-only SQLite table
// of failed cross-node writes with per-entry status and retry bookkeeping.
//
// The log is the single shared mutable resource across replay workers.
// Every mutation after Enqueue goes through a guarded status transition
// (UPDATE ... WHERE status = 'PENDING'), so concurrent workers racing on
// the same entry resolve with exactly one winner and terminal states are
// immutable.
package store
