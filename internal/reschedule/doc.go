// Package reschedule turns missed work into a new plan horizon.
//
// The analyzer is a three-phase pass, each phase able to short-circuit to a
// no-op: gate (feature disabled or plan inactive), detect (no missed
// tasks), then extend-and-redistribute. The extension heuristic grants one
// extra day per distinct missed date, not per missed task. The analyzer
// itself is pure decision-making over the read ports; committing the
// resulting placements is the store's transactional job, and a retried
// pass recomputes from persisted state so it never double-counts.
package reschedule
