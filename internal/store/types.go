package store

import (
	"context"
	"errors"
	"time"

	"timeplan/internal/plan"
)

var (
	ErrDisabled     = errors.New("storage disabled")
	ErrPlanNotFound = errors.New("plan not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free JSON snapshot backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API behind the planner and the sweep. It carries
// the analyzer's read port, the apply boundary, and the history sink, plus
// the plan lifecycle the sweep drives.
//
// ApplyReschedule and ActivatePlan are transactional: every row they touch
// commits together or not at all.
type Store interface {
	plan.TaskSource
	plan.Applier
	plan.HistorySink

	// CreatePlan inserts a draft plan and its backlog. The plan stays
	// invisible to the sweep until ActivatePlan.
	CreatePlan(ctx context.Context, p plan.Plan, tasks []plan.Task) error

	// ActivatePlan commits the initial packing: end date, placements for
	// every task, and the switch to active, in one transaction.
	ActivatePlan(ctx context.Context, planID string, endDate plan.Date, placements []plan.Placement) error

	// PlanTasks returns every task in the plan in origin order, scheduled
	// or not. Draft backlogs are packed from this.
	PlanTasks(ctx context.Context, planID string) ([]plan.Task, error)

	// ActivePlans returns plans the sweep should analyze.
	ActivePlans(ctx context.Context) ([]plan.Plan, error)

	// DraftPlans returns created-but-not-yet-packed plans.
	DraftPlans(ctx context.Context) ([]plan.Plan, error)

	Close() error
}
