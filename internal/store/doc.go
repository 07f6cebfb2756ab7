// Package store persists plans, tasks, placements, and reschedule history.
//
// Two drivers sit behind the Store interface: a JSON-file backend for
// zero-setup deployments and a SQLite backend for everything else. Both
// honor the apply boundary: a reschedule commits whole or not at all.
package store
