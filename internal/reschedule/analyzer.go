package reschedule

import (
	"context"
	"fmt"
	"time"

	"timeplan/internal/capacity"
	"timeplan/internal/plan"
	"timeplan/internal/schedule"
	logx "timeplan/pkg/logx"
)

// Settings supplies the day policy for a plan's owner.
type Settings interface {
	PolicyFor(ctx context.Context, planID string) (capacity.Policy, error)
}

// Analyzer computes full re-plans. It holds no mutable state between
// invocations; concurrent calls for different plans need no coordination.
type Analyzer struct {
	src      plan.TaskSource
	settings Settings
	log      logx.Logger
}

func NewAnalyzer(src plan.TaskSource, settings Settings, log logx.Logger) *Analyzer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Analyzer{src: src, settings: settings, log: log}
}

// DetectMissed pulls the plan's scheduled tasks and runs missed detection
// against asOf.
func (a *Analyzer) DetectMissed(ctx context.Context, planID string, asOf time.Time) ([]plan.MissedTask, error) {
	tasks, err := a.src.ScheduledTasks(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load scheduled tasks: %w", err)
	}
	return DetectMissed(tasks, asOf), nil
}

// Analyze produces a re-plan decision for one plan, or nil when there is
// nothing to do (feature off, plan inactive, or no missed work).
//
// Any sub-error aborts the whole analysis; no partial result is ever
// returned. The decision is advisory until the applier commits it.
func (a *Analyzer) Analyze(ctx context.Context, planID string, asOf time.Time, trigger plan.TriggerKind) (*plan.Result, error) {
	log := a.log.With(logx.String("plan", planID))

	// Phase 1: gate.
	p, err := a.src.Plan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if !p.Active || !p.AutoReschedule {
		log.Debug("reschedule gated off", logx.Bool("active", p.Active), logx.Bool("auto", p.AutoReschedule))
		return nil, nil
	}

	// Phase 2: detect.
	missed, err := a.DetectMissed(ctx, planID, asOf)
	if err != nil {
		return nil, err
	}
	if len(missed) == 0 {
		log.Debug("no missed tasks")
		return nil, nil
	}

	// Phase 3: extend and redistribute.
	missedDates := distinctDates(missed)
	daysExtended := len(missedDates)
	newEnd := p.Window.End.AddDays(daysExtended)
	earliest := missedDates[0]

	backlog, err := a.src.IncompleteTasksAfter(ctx, planID, earliest)
	if err != nil {
		return nil, fmt.Errorf("load backlog: %w", err)
	}

	policy, err := a.settings.PolicyFor(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load day policy: %w", err)
	}

	packed, err := schedule.ScheduleTasks(backlog, plan.DateRange{Start: p.Window.Start, End: newEnd}, policy)
	if err != nil {
		return nil, fmt.Errorf("redistribute backlog: %w", err)
	}

	oldDates := make(map[string]plan.Date, len(backlog))
	for _, t := range backlog {
		oldDates[t.ID] = t.Scheduled.Date
	}

	// Only tasks whose date actually moved appear in the delta list; the
	// change-set stays minimal for the applier and any notification.
	var deltas []plan.Delta
	for _, pl := range packed.Placements {
		if oldDates[pl.TaskID] == pl.Date {
			continue
		}
		deltas = append(deltas, plan.Delta{
			TaskID:          pl.TaskID,
			OldDate:         oldDates[pl.TaskID],
			NewDate:         pl.Date,
			NewStart:        pl.Start,
			NewEnd:          pl.End,
			DurationMinutes: pl.DurationMinutes,
		})
	}

	res := &plan.Result{
		PlanID:       planID,
		NewEndDate:   newEnd,
		DaysExtended: daysExtended,
		Deltas:       deltas,
		Reason: plan.Reason{
			Trigger:         trigger,
			MissedDates:     missedDates,
			IncompleteCount: len(backlog),
			Message: fmt.Sprintf("%d task(s) missed across %d day(s); plan extended to %s, %d task(s) moved",
				len(missed), daysExtended, newEnd, len(deltas)),
		},
	}
	log.Info("reschedule computed",
		logx.Int("missed", len(missed)),
		logx.Int("days_extended", daysExtended),
		logx.Int("deltas", len(deltas)),
		logx.String("new_end", newEnd.String()))
	return res, nil
}
