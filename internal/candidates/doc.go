// Package candidates matches workflow definitions against an item's labels
// and turns the matches into ordered, immutable Candidate values annotated
// with priority, conflict keys, and dependency names.
//
// Taxonomy-compliant definitions take precedence: when at least one matches,
// every legacy match for the same labels is suppressed. BuildPlan never fails;
// ambiguity is reported through Plan.Reason.
package candidates
