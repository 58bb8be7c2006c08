// Package nodes manages the replication peers: a connection pool that
// applies opaque SQL statements against a node's database, a registry of
// last-known reachability, and a background prober that refreshes it.
//
// Reachability is advisory, not authoritative. An actual write attempt is
// the ground truth: a node marked reachable may still fail a specific
// statement, and a probe failure never propagates as an error to callers.
package nodes
