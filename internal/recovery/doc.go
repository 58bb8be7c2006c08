// Package recovery defines the core types of the recovery log: the durable
// entry recorded when a cross-node write fails, its status lifecycle, the
// content hash used for deduplication, and the error taxonomy that decides
// whether a failed write is retried, dead-lettered, or rejected outright.
package recovery
