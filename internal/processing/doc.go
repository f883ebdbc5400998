// Package processing drives one issue through planning and deliverable
// generation and persists every lifecycle transition.
//
// Processor.Process resolves the issue's labels to workflow candidates, builds
// a staged execution plan, names the deliverables, and walks the stages in
// order. Members of a parallel stage still run one at a time; the stage mode
// only certifies that they could not interfere. The outcome is returned as a
// closed Result variant and mirrored to the state store, the tracker, and
// telemetry.
//
// Stale PROCESSING records are closed lazily on the next touch or eagerly by
// RecoverStuck. Items whose stale attempts exhaust the retry budget are PAUSED
// until Resume moves them back to PENDING.
package processing
