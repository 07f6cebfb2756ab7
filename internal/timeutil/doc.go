// Package timeutil holds the clock-time arithmetic the planner is built on:
// HH:MM <-> minutes-since-midnight conversion, cross-midnight durations,
// half-open overlap tests, grid snapping, and the block-duration policy.
//
// All functions are pure. Times are minute-granular; a day is 1440 minutes.
//
// Cross-midnight rule: a range whose end is numerically <= its start spans
// midnight into the next calendar date. Note the <=: a range with identical
// start and end is a full 24-hour block, not a zero-duration one.
package timeutil
