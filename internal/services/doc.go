// Package services defines shared utilities consumed by the planning core and
// the external integrations it drives.
//
// Key responsibilities:
//   - Context helpers that stamp issue numbers, stage labels, workflow names,
//     plan identifiers, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helpers that translate failures
//     into consistent processing statuses and stable error codes.
//   - Integration clients (see the github subpackage) that satisfy the
//     collaborator interfaces consumed by the processor.
//
// Use these helpers when wiring new components so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
