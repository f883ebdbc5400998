// Package state persists the per-issue processing record.
//
// Records live in a single JSON file keyed by issue number. Every write is
// serialized by an in-process mutex and a gofrs/flock advisory lock, lands via
// write-then-rename, and is retried with the shared retry policy. A file that
// fails to decode is quarantined beside the original and the store starts
// empty.
//
// Record carries the lifecycle transitions (Begin, Complete, Fail, ...) so the
// processing layer never edits status fields directly.
package state
