// Package schedule is the time-block packing engine. It distributes a
// backlog of tasks over a date window: urgent and earlier-declared work
// first, day by day, never overlapping blocks on a date and never exceeding
// a date's effective capacity.
//
// The packer is deterministic: for a fixed backlog, policy, and window it
// emits an identical placement list on every run. It decides dates and
// clock ranges only; task durations pass through unchanged. Tasks are never
// split across days here (cross-midnight splitting is an explicit timeutil
// operation on true wraparound clock ranges).
package schedule
