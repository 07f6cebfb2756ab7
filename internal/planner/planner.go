// Package planner turns draft plans into active schedules. A draft carries
// a backlog but no placements; activation sizes the horizon from what is
// left of today plus the daily cap, packs the backlog, and commits the
// placements together with the plan's end date.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"timeplan/internal/capacity"
	"timeplan/internal/eventbus"
	"timeplan/internal/plan"
	"timeplan/internal/schedule"
	"timeplan/internal/timeutil"
	logx "timeplan/pkg/logx"
)

// maxHorizonGrowth bounds how many extra days activation will add beyond
// the initial estimate before giving up on a backlog that will not fit.
const maxHorizonGrowth = 14

// Source is the store surface activation needs.
type Source interface {
	DraftPlans(ctx context.Context) ([]plan.Plan, error)
	PlanTasks(ctx context.Context, planID string) ([]plan.Task, error)
	ActivatePlan(ctx context.Context, planID string, endDate plan.Date, placements []plan.Placement) error
}

// Settings supplies the day policy and the block grid.
type Settings interface {
	PolicyFor(ctx context.Context, planID string) (capacity.Policy, error)
	SnapMinutes() int
}

type Planner struct {
	src      Source
	settings Settings
	bus      eventbus.Bus
	log      logx.Logger
}

func New(src Source, settings Settings, bus eventbus.Bus, log logx.Logger) *Planner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Planner{src: src, settings: settings, bus: bus, log: log}
}

// ActivateDrafts packs and activates every draft plan. One plan failing to
// activate does not block the others; the first error is returned after
// the full pass.
func (p *Planner) ActivateDrafts(ctx context.Context, now time.Time) (int, error) {
	drafts, err := p.src.DraftPlans(ctx)
	if err != nil {
		return 0, fmt.Errorf("list drafts: %w", err)
	}

	activated := 0
	var firstErr error
	for _, d := range drafts {
		if err := p.Activate(ctx, d, now); err != nil {
			p.log.Warn("draft activation failed", logx.String("plan", d.ID), logx.Err(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		activated++
	}
	return activated, firstErr
}

// Activate packs one draft plan and commits the result.
func (p *Planner) Activate(ctx context.Context, pl plan.Plan, now time.Time) error {
	tasks, err := p.src.PlanTasks(ctx, pl.ID)
	if err != nil {
		return fmt.Errorf("load backlog: %w", err)
	}
	policy, err := p.settings.PolicyFor(ctx, pl.ID)
	if err != nil {
		return fmt.Errorf("load day policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return err
	}

	backlog := p.normalize(tasks)
	if len(backlog) == 0 {
		return fmt.Errorf("plan %s has no schedulable tasks", pl.ID)
	}

	start := pl.Window.Start
	if start.IsZero() {
		start = plan.DateOf(now)
	}
	end := p.initialEnd(pl, backlog, policy, start, now)

	// The estimate ignores weekends and partial-day losses, so grow the
	// horizon until the backlog fits or the growth bound trips.
	var packed schedule.Result
	for grown := 0; ; grown++ {
		packed, err = schedule.ScheduleTasks(backlog, plan.DateRange{Start: start, End: end}, policy)
		if err == nil {
			break
		}
		var capErr *schedule.CapacityExceededError
		if !errors.As(err, &capErr) {
			return fmt.Errorf("pack backlog: %w", err)
		}
		if len(capErr.Oversized) > 0 || grown >= maxHorizonGrowth {
			return fmt.Errorf("pack backlog: %w", err)
		}
		end = end.AddDays(1)
	}

	if err := p.src.ActivatePlan(ctx, pl.ID, end, packed.Placements); err != nil {
		return fmt.Errorf("commit activation: %w", err)
	}

	p.log.Info("plan activated",
		logx.String("plan", pl.ID),
		logx.Int("tasks", len(backlog)),
		logx.String("start", start.String()),
		logx.String("end", end.String()))
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.TypePlanCreated, PlanID: pl.ID, Data: len(backlog)})
	}
	return nil
}

// normalize drops completed tasks and conforms auto-generated durations to
// the block policy: clamp into bounds, then snap to the grid. Manual and
// calendar tasks keep their durations untouched.
func (p *Planner) normalize(tasks []plan.Task) []plan.Task {
	snap := p.settings.SnapMinutes()
	out := make([]plan.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Completed {
			continue
		}
		if t.Kind == plan.KindAuto {
			d := timeutil.ClampDuration(t.DurationMinutes, false)
			d = timeutil.Snap(d, snap)
			t.DurationMinutes = timeutil.ClampDuration(d, false)
		}
		out = append(out, t)
	}
	return out
}

// initialEnd estimates the horizon: what is left of today (when the plan
// starts today) plus ceil(rest / daily cap) further days. A wider window
// already on the draft wins over the estimate.
func (p *Planner) initialEnd(pl plan.Plan, backlog []plan.Task, policy capacity.Policy, start plan.Date, now time.Time) plan.Date {
	total := 0
	for _, t := range backlog {
		total += t.DurationMinutes
	}

	remaining := 0
	today := plan.DateOf(now)
	if start == today {
		remaining = policy.RemainingToday(start, now.Hour()*60+now.Minute())
	} else if policy.Eligible(start) {
		remaining = policy.EffectiveCapacity(start)
	}

	dailyCap := policy.EffectiveCapacity(firstWeekday(start))
	end := start.AddDays(capacity.DaysNeeded(total, remaining, dailyCap))

	if pl.Window.End.After(end) {
		return pl.Window.End
	}
	return end
}

func firstWeekday(d plan.Date) plan.Date {
	for d.IsWeekend() {
		d = d.AddDays(1)
	}
	return d
}
