// Package generator produces deliverable content and writes it below the
// output root.
//
// Generator is the backend contract. TemplateGenerator renders text/template
// files that live next to the workflow definitions, falling back to a built-in
// layout. BasicRecovery is the minimal generator the processor retries with
// after a primary failure. Writer places content atomically and refuses paths
// that would leave its root.
package generator
