package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"timeplan/internal/plan"
	logx "timeplan/pkg/logx"
)

func openTestFileStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "plans.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustDate(t *testing.T, s string) plan.Date {
	t.Helper()
	d, err := plan.ParseDate(s)
	if err != nil {
		t.Fatalf("date %q: %v", s, err)
	}
	return d
}

func seedPlan(t *testing.T, st Store) plan.Plan {
	t.Helper()
	p := plan.Plan{
		ID:             "p1",
		Name:           "release prep",
		Window:         plan.DateRange{Start: mustDate(t, "2024-03-04"), End: mustDate(t, "2024-03-08")},
		AutoReschedule: true,
	}
	tasks := []plan.Task{
		{ID: "t1", Name: "write docs", DurationMinutes: 120, Priority: plan.PriorityHigh, OriginIndex: 0, Kind: plan.KindAuto},
		{ID: "t2", Name: "review", DurationMinutes: 60, Priority: plan.PriorityMedium, OriginIndex: 1, Kind: plan.KindAuto},
	}
	if err := st.CreatePlan(context.Background(), p, tasks); err != nil {
		t.Fatalf("create: %v", err)
	}
	return p
}

func TestFileStorePlanLifecycle(t *testing.T) {
	st := openTestFileStore(t)
	ctx := context.Background()
	seedPlan(t, st)

	drafts, err := st.DraftPlans(ctx)
	if err != nil || len(drafts) != 1 {
		t.Fatalf("drafts = %v, %v; want one draft", drafts, err)
	}
	if active, _ := st.ActivePlans(ctx); len(active) != 0 {
		t.Fatalf("draft plan visible to sweep: %v", active)
	}

	placements := []plan.Placement{
		{TaskID: "t1", Date: mustDate(t, "2024-03-04"), Start: "09:00", End: "11:00", DurationMinutes: 120},
		{TaskID: "t2", Date: mustDate(t, "2024-03-04"), Start: "11:00", End: "12:00", DurationMinutes: 60},
	}
	if err := st.ActivatePlan(ctx, "p1", mustDate(t, "2024-03-08"), placements); err != nil {
		t.Fatalf("activate: %v", err)
	}

	active, err := st.ActivePlans(ctx)
	if err != nil || len(active) != 1 {
		t.Fatalf("active = %v, %v; want one plan", active, err)
	}
	if !active[0].Active {
		t.Fatal("plan not marked active")
	}

	got, err := st.ScheduledTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("scheduled: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("scheduled tasks = %d, want 2", len(got))
	}
	if got[0].ID != "t1" || got[0].Scheduled.Start != "09:00" {
		t.Fatalf("unexpected first task %+v", got[0])
	}
}

func TestFileStoreActivateUnknownPlan(t *testing.T) {
	st := openTestFileStore(t)
	err := st.ActivatePlan(context.Background(), "nope", plan.Date{}, nil)
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}
}

func TestFileStoreApplyReschedule(t *testing.T) {
	st := openTestFileStore(t)
	ctx := context.Background()
	seedPlan(t, st)

	if err := st.ActivatePlan(ctx, "p1", mustDate(t, "2024-03-08"), []plan.Placement{
		{TaskID: "t1", Date: mustDate(t, "2024-03-04"), Start: "09:00", End: "11:00", DurationMinutes: 120},
		{TaskID: "t2", Date: mustDate(t, "2024-03-05"), Start: "09:00", End: "10:00", DurationMinutes: 60},
	}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	res := plan.Result{
		PlanID:       "p1",
		NewEndDate:   mustDate(t, "2024-03-11"),
		DaysExtended: 1,
		Deltas: []plan.Delta{
			{TaskID: "t2", OldDate: mustDate(t, "2024-03-05"), NewDate: mustDate(t, "2024-03-06"),
				NewStart: "09:00", NewEnd: "10:00", DurationMinutes: 60},
		},
	}
	if err := st.ApplyReschedule(ctx, res); err != nil {
		t.Fatalf("apply: %v", err)
	}

	p, err := st.Plan(ctx, "p1")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.Window.End != res.NewEndDate {
		t.Fatalf("end date = %s, want %s", p.Window.End, res.NewEndDate)
	}

	after, err := st.IncompleteTasksAfter(ctx, "p1", mustDate(t, "2024-03-05"))
	if err != nil {
		t.Fatalf("incomplete: %v", err)
	}
	if len(after) != 1 || after[0].ID != "t2" || after[0].Scheduled.Date != res.Deltas[0].NewDate {
		t.Fatalf("unexpected backlog %+v", after)
	}
}

func TestFileStoreApplyRescheduleUnknownTask(t *testing.T) {
	st := openTestFileStore(t)
	ctx := context.Background()
	seedPlan(t, st)

	err := st.ApplyReschedule(ctx, plan.Result{
		PlanID:     "p1",
		NewEndDate: mustDate(t, "2024-03-09"),
		Deltas:     []plan.Delta{{TaskID: "ghost", NewDate: mustDate(t, "2024-03-06")}},
	})
	if err == nil {
		t.Fatal("expected error for unknown task delta")
	}
	// the failed apply must not leak the end-date update
	p, _ := st.Plan(ctx, "p1")
	if p.Window.End != mustDate(t, "2024-03-08") {
		t.Fatalf("end date mutated by failed apply: %s", p.Window.End)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Driver: "file", Path: filepath.Join(dir, "plans.db")}
	ctx := context.Background()

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seedPlan(t, st)
	if err := st.AppendHistory(ctx, plan.HistoryEntry{PlanID: "p1", Trigger: plan.TriggerManual, Success: true}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	drafts, err := st2.DraftPlans(ctx)
	if err != nil || len(drafts) != 1 || drafts[0].ID != "p1" {
		t.Fatalf("drafts after reopen = %v, %v", drafts, err)
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	if st, err := Open(Config{}, logx.Nop()); st != nil || err != nil {
		t.Fatalf("disabled open = %v, %v; want nil, nil", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
