// Package naming turns an execution plan into the relative paths each
// workflow's deliverables are written to.
//
// Folder and file templates use {placeholder} tokens. When two workflows
// resolve to the same path, every member of that group is renamed with a
// "--<workflow-slug>" suffix and the group is recorded on the Manifest so
// callers can surface it.
package naming
