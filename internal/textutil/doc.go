// Package textutil provides text normalisation helpers shared by the naming
// resolver, the planner, and the deliverable writer.
//
// The primary use cases are:
//   - Deriving ASCII slugs from workflow names and issue titles
//   - Sanitizing filenames and path segments for safe filesystem use
package textutil
