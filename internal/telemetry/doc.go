// Package telemetry publishes fire-and-forget planning and execution events.
//
// A Publisher fans each Event out to its sinks. Sink failures and panics are
// logged and swallowed; telemetry never changes a processing outcome. Sinks
// shipped here log events and feed Prometheus collectors; the audit package
// provides a SQLite-backed sink.
package telemetry
