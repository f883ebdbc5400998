// Package preflight provides readiness checks for the filesystem paths,
// workflow definitions, and tracker credentials speculum depends on.
//
// These checks run in two contexts:
//   - The process and recover commands call RunAll before touching any issue.
//     If a check fails, the command stops before an attempt is opened.
//   - The status command renders every Result so operators can see what is
//     misconfigured.
package preflight
