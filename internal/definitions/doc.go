// Package definitions loads declarative workflow definitions from a directory
// of YAML files and owns the live snapshot consumed by the candidate resolver
// and the processor.
//
// Every file is checked against the embedded base/v1 JSON schema profile;
// definitions that also satisfy taxonomy/v1 (version, category, priority,
// confidence threshold) are taxonomy compliant, the rest are legacy. The
// Repository is an explicitly owned value: callers trigger Refresh (or
// RefreshIfStale) and can read LastScan, and an optional Watcher refreshes it
// when files change.
package definitions
