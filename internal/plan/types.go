package plan

import "time"

// Priority orders tasks for packing. Lower value = more urgent.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
)

func (p Priority) Valid() bool { return p >= PriorityCritical && p <= PriorityLow }

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskKind distinguishes where a task came from. Auto-generated tasks are
// subject to the maximum-duration clamp; manual and calendar tasks are not.
type TaskKind string

const (
	KindAuto     TaskKind = "auto"
	KindManual   TaskKind = "manual"
	KindCalendar TaskKind = "calendar"
)

// Task is an immutable unit of work handed to the scheduler.
//
// OriginIndex preserves insertion order for deterministic tie-breaks.
// ComplexityScore is carried for callers that derive Priority from it;
// the packer itself never reads it.
type Task struct {
	ID              string
	PlanID          string
	Name            string
	DurationMinutes int
	Priority        Priority
	ComplexityScore int
	OriginIndex     int
	Kind            TaskKind
	Completed       bool

	// Current placement annotation (zero when the task is unscheduled).
	Scheduled Placement
}

// Placement assigns a task to a date and clock range.
// Start/End are 24-hour HH:MM strings; the range is half-open [Start, End).
// Invariant: DurationMinutes == End - Start (mod 24h for split segments).
type Placement struct {
	TaskID          string
	Date            Date
	Start           string
	End             string
	DurationMinutes int
}

func (p Placement) IsZero() bool { return p == Placement{} }

// Plan is the scheduling horizon a set of tasks belongs to.
type Plan struct {
	ID             string
	Name           string
	Window         DateRange
	Active         bool
	AutoReschedule bool
	CreatedAt      time.Time
}

// MissedTask identifies a scheduled, incomplete task whose end time has
// elapsed. Recomputed on every detection pass; never persisted.
type MissedTask struct {
	TaskID        string
	ScheduledDate Date
	DaysOverdue   int
}

// TriggerKind records why a reschedule was attempted.
type TriggerKind string

const (
	TriggerAutoMissed TriggerKind = "auto-missed"
	TriggerManual     TriggerKind = "manual"
)

// Reason explains a reschedule in structured form. The host renders any
// user-facing text from these fields; Message is a plain default.
type Reason struct {
	Trigger         TriggerKind
	MissedDates     []Date
	IncompleteCount int
	Message         string
}

// Delta describes one task moving from its old placement to a new one.
type Delta struct {
	TaskID          string
	OldDate         Date
	NewDate         Date
	NewStart        string
	NewEnd          string
	DurationMinutes int
}

// Result is a full re-plan decision. Constructed once per analysis pass,
// consumed once by the applier, never mutated afterward.
type Result struct {
	PlanID       string
	NewEndDate   Date
	DaysExtended int
	Deltas       []Delta
	Reason       Reason
}
