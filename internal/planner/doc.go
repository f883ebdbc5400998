// Package planner converts a candidate plan into a deterministic, staged
// execution plan.
//
// Build runs Kahn's topological sort and, level by level, greedily packs ready
// candidates into a stage while their conflict keys stay disjoint (and the
// optional MaxParallel cap allows). Candidates that do not fit are deferred to
// the next stage, never dropped. Identical inputs always produce the same
// partition; ties are broken by priority, then case-insensitive name.
//
// A "parallel" stage is a safety certificate only: its members share no
// conflict keys, but the executor still runs them one at a time.
package planner
