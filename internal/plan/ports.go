package plan

import "context"

// TaskSource is the read port the analyzer pulls plan state from.
// Implementations must return tasks annotated with their current placement.
type TaskSource interface {
	// Plan returns the plan record for id.
	Plan(ctx context.Context, id string) (Plan, error)

	// ScheduledTasks returns every task in the plan that has a placement,
	// ordered by (date, start) for stable iteration.
	ScheduledTasks(ctx context.Context, planID string) ([]Task, error)

	// IncompleteTasksAfter returns not-yet-completed tasks whose scheduled
	// date is strictly after the given date.
	IncompleteTasksAfter(ctx context.Context, planID string, after Date) ([]Task, error)
}

// Applier is the write boundary. ApplyReschedule must commit every delta
// plus the new end date atomically, or nothing at all. Serializing
// concurrent applies for the same plan is the implementation's job.
type Applier interface {
	ApplyReschedule(ctx context.Context, res Result) error
}

// HistorySink records reschedule attempts for auditing. Failures here are
// telemetry-grade: callers log them and move on.
type HistorySink interface {
	AppendHistory(ctx context.Context, e HistoryEntry) error
}

// HistoryEntry is one audited reschedule attempt.
type HistoryEntry struct {
	PlanID       string
	Trigger      TriggerKind
	OldEndDate   Date
	NewEndDate   Date
	DaysExtended int
	DeltaCount   int
	Success      bool
	FailureCause string
}
