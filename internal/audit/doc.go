// Package audit keeps a SQLite history of execution plans and telemetry
// events.
//
// Plans themselves are never persisted; the audit log stores their summaries
// so operators can see which workflows an issue was routed to and how each
// attempt ended. Store implements telemetry.Sink, so it is wired in next to
// the log and metrics sinks.
//
// The database is an append-mostly log. Schema changes bump schemaVersion; an
// old database is rejected with ErrSchemaMismatch and must be removed.
package audit
