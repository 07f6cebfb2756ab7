package reschedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeplan/internal/capacity"
	"timeplan/internal/plan"
	"timeplan/internal/schedule"
	logx "timeplan/pkg/logx"
)

type fakeSource struct {
	plan  plan.Plan
	tasks []plan.Task
}

func (f *fakeSource) Plan(ctx context.Context, id string) (plan.Plan, error) {
	return f.plan, nil
}

func (f *fakeSource) ScheduledTasks(ctx context.Context, planID string) ([]plan.Task, error) {
	var out []plan.Task
	for _, t := range f.tasks {
		if !t.Scheduled.IsZero() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSource) IncompleteTasksAfter(ctx context.Context, planID string, after plan.Date) ([]plan.Task, error) {
	var out []plan.Task
	for _, t := range f.tasks {
		if !t.Completed && !t.Scheduled.IsZero() && t.Scheduled.Date.After(after) {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeSettings struct {
	policy capacity.Policy
}

func (f *fakeSettings) PolicyFor(ctx context.Context, planID string) (capacity.Policy, error) {
	return f.policy, nil
}

func defaultPolicy() capacity.Policy {
	return capacity.Policy{
		WorkdayStartHour:  9,
		WorkdayEndHour:    17,
		LunchStartHour:    12,
		LunchEndHour:      13,
		WeekdayMaxMinutes: 420,
		WeekendMaxMinutes: 180,
	}
}

func activePlan(t *testing.T) plan.Plan {
	return plan.Plan{
		ID:             "p1",
		Name:           "sprint",
		Window:         plan.DateRange{Start: mustDate(t, "2024-01-08"), End: mustDate(t, "2024-01-12")},
		Active:         true,
		AutoReschedule: true,
	}
}

func newTestAnalyzer(src plan.TaskSource) *Analyzer {
	return NewAnalyzer(src, &fakeSettings{policy: defaultPolicy()}, logx.Nop())
}

func TestAnalyzeNoMissedIsNoop(t *testing.T) {
	src := &fakeSource{
		plan: activePlan(t),
		tasks: []plan.Task{
			scheduledTask("future", "2024-01-12", "09:00", "10:00", 60, false, t),
		},
	}
	a := newTestAnalyzer(src)
	asOf := time.Date(2024, 1, 8, 8, 0, 0, 0, time.UTC)

	res, err := a.Analyze(context.Background(), "p1", asOf, plan.TriggerAutoMissed)
	require.NoError(t, err)
	assert.Nil(t, res, "zero missed tasks must be a no-op")
}

func TestAnalyzeGates(t *testing.T) {
	missedTask := scheduledTask("m", "2024-01-09", "09:00", "10:00", 60, false, t)
	asOf := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)

	inactive := activePlan(t)
	inactive.Active = false
	src := &fakeSource{plan: inactive, tasks: []plan.Task{missedTask}}
	res, err := newTestAnalyzer(src).Analyze(context.Background(), "p1", asOf, plan.TriggerAutoMissed)
	require.NoError(t, err)
	assert.Nil(t, res, "inactive plan must gate off")

	disabled := activePlan(t)
	disabled.AutoReschedule = false
	src = &fakeSource{plan: disabled, tasks: []plan.Task{missedTask}}
	res, err = newTestAnalyzer(src).Analyze(context.Background(), "p1", asOf, plan.TriggerAutoMissed)
	require.NoError(t, err)
	assert.Nil(t, res, "disabled feature must gate off")
}

func TestAnalyzeExtendsAndRedistributes(t *testing.T) {
	src := &fakeSource{
		plan: activePlan(t),
		tasks: []plan.Task{
			// Two missed dates: 01-09 (two tasks) and 01-10 (one task).
			func() plan.Task {
				tk := scheduledTask("m1", "2024-01-09", "09:00", "10:00", 60, false, t)
				tk.OriginIndex = 1
				return tk
			}(),
			func() plan.Task {
				tk := scheduledTask("m2", "2024-01-09", "10:00", "11:00", 60, false, t)
				tk.OriginIndex = 2
				return tk
			}(),
			func() plan.Task {
				tk := scheduledTask("m3", "2024-01-10", "09:00", "10:00", 60, false, t)
				tk.OriginIndex = 3
				return tk
			}(),
			scheduledTask("done", "2024-01-09", "13:00", "14:00", 60, true, t),
			func() plan.Task {
				tk := scheduledTask("b1", "2024-01-11", "09:00", "10:00", 60, false, t)
				tk.OriginIndex = 4
				return tk
			}(),
			func() plan.Task {
				tk := scheduledTask("b2", "2024-01-12", "09:00", "10:00", 60, false, t)
				tk.OriginIndex = 5
				return tk
			}(),
		},
	}
	a := newTestAnalyzer(src)
	asOf := time.Date(2024, 1, 11, 9, 0, 0, 0, time.UTC)

	res, err := a.Analyze(context.Background(), "p1", asOf, plan.TriggerAutoMissed)
	require.NoError(t, err)
	require.NotNil(t, res)

	// Missed dates 01-09 and 01-10: one day of runway each.
	assert.Equal(t, 2, res.DaysExtended)
	assert.Equal(t, "2024-01-14", res.NewEndDate.String())
	assert.Equal(t, plan.TriggerAutoMissed, res.Reason.Trigger)
	require.Len(t, res.Reason.MissedDates, 2)
	assert.Equal(t, "2024-01-09", res.Reason.MissedDates[0].String())
	assert.Equal(t, "2024-01-10", res.Reason.MissedDates[1].String())

	// Backlog: incomplete tasks strictly after 01-09 -> m3, b1, b2. All
	// repack onto the plan start day, so all three move.
	assert.Equal(t, 3, res.Reason.IncompleteCount)
	require.Len(t, res.Deltas, 3)
	assert.Equal(t, "m3", res.Deltas[0].TaskID)
	assert.Equal(t, "2024-01-10", res.Deltas[0].OldDate.String())
	assert.Equal(t, "2024-01-08", res.Deltas[0].NewDate.String())
	assert.Equal(t, "09:00", res.Deltas[0].NewStart)
	assert.Equal(t, "10:00", res.Deltas[0].NewEnd)
}

func TestAnalyzeOmitsUnmovedTasksFromDeltas(t *testing.T) {
	src := &fakeSource{
		plan: activePlan(t),
		tasks: []plan.Task{
			func() plan.Task {
				tk := scheduledTask("m", "2024-01-08", "09:00", "10:00", 60, false, t)
				tk.OriginIndex = 1
				return tk
			}(),
			// Fills the whole first day after repacking.
			func() plan.Task {
				tk := scheduledTask("big", "2024-01-09", "09:00", "16:00", 420, false, t)
				tk.OriginIndex = 2
				tk.Priority = plan.PriorityCritical
				tk.Kind = plan.KindManual
				return tk
			}(),
			// Repacks onto 01-09, its current date: no delta.
			func() plan.Task {
				tk := scheduledTask("stays", "2024-01-09", "10:00", "11:00", 60, false, t)
				tk.OriginIndex = 3
				return tk
			}(),
		},
	}
	// No lunch gap so the 420m block can fill a whole day.
	noLunch := defaultPolicy()
	noLunch.LunchStartHour = 0
	noLunch.LunchEndHour = 0
	a := NewAnalyzer(src, &fakeSettings{policy: noLunch}, logx.Nop())
	asOf := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	res, err := a.Analyze(context.Background(), "p1", asOf, plan.TriggerAutoMissed)
	require.NoError(t, err)
	require.NotNil(t, res)

	// "stays" repacks onto its current date (time-only shifts are not
	// surfaced); only "big" moves.
	require.Len(t, res.Deltas, 1)
	assert.Equal(t, "big", res.Deltas[0].TaskID)
	assert.Equal(t, "2024-01-08", res.Deltas[0].NewDate.String())
}

func TestAnalyzePropagatesCapacityExceeded(t *testing.T) {
	tight := defaultPolicy()
	tight.WeekdayMaxMinutes = 60

	src := &fakeSource{
		plan: activePlan(t),
		tasks: []plan.Task{
			scheduledTask("m", "2024-01-08", "09:00", "10:00", 60, false, t),
			// Each 120m task exceeds the 60m day cap: nothing can absorb them.
			scheduledTask("x1", "2024-01-09", "09:00", "11:00", 120, false, t),
			scheduledTask("x2", "2024-01-10", "09:00", "11:00", 120, false, t),
		},
	}
	a := NewAnalyzer(src, &fakeSettings{policy: tight}, logx.Nop())
	asOf := time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC)

	res, err := a.Analyze(context.Background(), "p1", asOf, plan.TriggerAutoMissed)
	var cee *schedule.CapacityExceededError
	require.ErrorAs(t, err, &cee, "capacity exhaustion must abort the whole analysis")
	assert.Nil(t, res, "no partial result on error")
}
