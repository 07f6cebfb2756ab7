package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"timeplan/internal/plan"
	logx "timeplan/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.plans.json      (full snapshot, atomically replaced)
//   - <prefix>.history.jsonl   (append-only JSON Lines)
//
// Writes mutate a copy of the in-memory state, persist the snapshot, and
// only then swap the copy in, so a failed write never leaves a half-applied
// state behind.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	historyFile  *os.File
	state        fileState
}

type fileState struct {
	Plans []planRecord `json:"plans"`
}

type planRecord struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	StartDate      plan.Date    `json:"start_date"`
	EndDate        plan.Date    `json:"end_date"`
	Status         string       `json:"status"`
	AutoReschedule bool         `json:"auto_reschedule"`
	CreatedAt      time.Time    `json:"created_at"`
	Tasks          []taskRecord `json:"tasks"`
}

type taskRecord struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	DurationMinutes int              `json:"duration_minutes"`
	Priority        int              `json:"priority"`
	Complexity      int              `json:"complexity,omitempty"`
	OriginIndex     int              `json:"origin_index"`
	Kind            string           `json:"kind"`
	Completed       bool             `json:"completed"`
	Placement       *placementRecord `json:"placement,omitempty"`
}

// placementRecord keeps the logical wraparound form; splitting into
// same-day rows is a relational-storage concern the snapshot doesn't have.
type placementRecord struct {
	Date            plan.Date `json:"date"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

type historyRecord struct {
	ID           string    `json:"id"`
	PlanID       string    `json:"plan_id"`
	At           time.Time `json:"at"`
	Trigger      string    `json:"trigger"`
	OldEndDate   plan.Date `json:"old_end_date"`
	NewEndDate   plan.Date `json:"new_end_date"`
	DaysExtended int       `json:"days_extended"`
	DeltaCount   int       `json:"delta_count"`
	Success      bool      `json:"success"`
	FailureCause string    `json:"failure_cause,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".plans.json"
	historyPath := prefix + ".history.jsonl"

	var state fileState
	if err := loadSnapshot(snapPath, &state); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	hf, err := os.OpenFile(historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		historyFile:  hf,
		state:        state,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile != nil {
		err := s.historyFile.Close()
		s.historyFile = nil
		return err
	}
	return nil
}

func (s *fileStore) CreatePlan(ctx context.Context, p plan.Plan, tasks []plan.Task) error {
	_ = ctx
	if p.ID == "" || p.Name == "" {
		return errors.New("plan id and name are required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findPlanLocked(p.ID) != nil {
		return fmt.Errorf("plan %s already exists", p.ID)
	}

	rec := planRecord{
		ID:             p.ID,
		Name:           p.Name,
		StartDate:      p.Window.Start,
		EndDate:        p.Window.End,
		Status:         "draft",
		AutoReschedule: p.AutoReschedule,
		CreatedAt:      p.CreatedAt,
	}
	for _, t := range tasks {
		rec.Tasks = append(rec.Tasks, taskRecord{
			ID:              t.ID,
			Name:            t.Name,
			DurationMinutes: t.DurationMinutes,
			Priority:        int(t.Priority),
			Complexity:      t.ComplexityScore,
			OriginIndex:     t.OriginIndex,
			Kind:            string(t.Kind),
			Completed:       t.Completed,
		})
	}

	next := s.cloneStateLocked()
	next.Plans = append(next.Plans, rec)
	return s.commitLocked(next)
}

func (s *fileStore) ActivatePlan(ctx context.Context, planID string, endDate plan.Date, placements []plan.Placement) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneStateLocked()
	rec := findPlan(&next, planID)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	rec.Status = "active"
	rec.EndDate = endDate

	byTask := map[string]plan.Placement{}
	for _, pl := range placements {
		byTask[pl.TaskID] = pl
	}
	for i := range rec.Tasks {
		if pl, ok := byTask[rec.Tasks[i].ID]; ok {
			rec.Tasks[i].Placement = &placementRecord{
				Date:            pl.Date,
				Start:           pl.Start,
				End:             pl.End,
				DurationMinutes: pl.DurationMinutes,
			}
		}
	}
	return s.commitLocked(next)
}

func (s *fileStore) ActivePlans(ctx context.Context) ([]plan.Plan, error) {
	return s.plansByStatus(ctx, "active")
}

func (s *fileStore) DraftPlans(ctx context.Context) ([]plan.Plan, error) {
	return s.plansByStatus(ctx, "draft")
}

func (s *fileStore) plansByStatus(ctx context.Context, status string) ([]plan.Plan, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []plan.Plan
	for i := range s.state.Plans {
		if s.state.Plans[i].Status == status {
			out = append(out, toPlan(&s.state.Plans[i]))
		}
	}
	return out, nil
}

func (s *fileStore) Plan(ctx context.Context, id string) (plan.Plan, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findPlanLocked(id)
	if rec == nil {
		return plan.Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return toPlan(rec), nil
}

func (s *fileStore) PlanTasks(ctx context.Context, planID string) ([]plan.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findPlanLocked(planID)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	out := make([]plan.Task, 0, len(rec.Tasks))
	for i := range rec.Tasks {
		out = append(out, toTask(planID, &rec.Tasks[i]))
	}
	return out, nil
}

func (s *fileStore) ScheduledTasks(ctx context.Context, planID string) ([]plan.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findPlanLocked(planID)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	var out []plan.Task
	for i := range rec.Tasks {
		if rec.Tasks[i].Placement == nil {
			continue
		}
		out = append(out, toTask(planID, &rec.Tasks[i]))
	}
	sortByPlacement(out)
	return out, nil
}

func (s *fileStore) IncompleteTasksAfter(ctx context.Context, planID string, after plan.Date) ([]plan.Task, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.findPlanLocked(planID)
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	var out []plan.Task
	for i := range rec.Tasks {
		t := &rec.Tasks[i]
		if t.Completed || t.Placement == nil || !t.Placement.Date.After(after) {
			continue
		}
		out = append(out, toTask(planID, t))
	}
	sortByPlacement(out)
	return out, nil
}

func (s *fileStore) ApplyReschedule(ctx context.Context, res plan.Result) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneStateLocked()
	rec := findPlan(&next, res.PlanID)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, res.PlanID)
	}
	rec.EndDate = res.NewEndDate

	byTask := map[string]plan.Delta{}
	for _, d := range res.Deltas {
		byTask[d.TaskID] = d
	}
	for i := range rec.Tasks {
		d, ok := byTask[rec.Tasks[i].ID]
		if !ok {
			continue
		}
		rec.Tasks[i].Placement = &placementRecord{
			Date:            d.NewDate,
			Start:           d.NewStart,
			End:             d.NewEnd,
			DurationMinutes: d.DurationMinutes,
		}
		delete(byTask, d.TaskID)
	}
	if len(byTask) > 0 {
		return fmt.Errorf("reschedule references unknown tasks in plan %s", res.PlanID)
	}
	return s.commitLocked(next)
}

func (s *fileStore) AppendHistory(ctx context.Context, e plan.HistoryEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("history file closed")
	}
	rec := historyRecord{
		ID:           uuid.NewString(),
		PlanID:       e.PlanID,
		At:           time.Now(),
		Trigger:      string(e.Trigger),
		OldEndDate:   e.OldEndDate,
		NewEndDate:   e.NewEndDate,
		DaysExtended: e.DaysExtended,
		DeltaCount:   e.DeltaCount,
		Success:      e.Success,
		FailureCause: e.FailureCause,
	}
	return json.NewEncoder(s.historyFile).Encode(rec)
}

func (s *fileStore) findPlanLocked(id string) *planRecord {
	return findPlan(&s.state, id)
}

func findPlan(st *fileState, id string) *planRecord {
	for i := range st.Plans {
		if st.Plans[i].ID == id {
			return &st.Plans[i]
		}
	}
	return nil
}

// cloneStateLocked deep-copies the state so a failed commit leaves the
// in-memory view untouched.
func (s *fileStore) cloneStateLocked() fileState {
	next := fileState{Plans: make([]planRecord, len(s.state.Plans))}
	copy(next.Plans, s.state.Plans)
	for i := range next.Plans {
		tasks := make([]taskRecord, len(next.Plans[i].Tasks))
		copy(tasks, next.Plans[i].Tasks)
		for j := range tasks {
			if tasks[j].Placement != nil {
				pl := *tasks[j].Placement
				tasks[j].Placement = &pl
			}
		}
		next.Plans[i].Tasks = tasks
	}
	return next
}

// commitLocked persists next atomically and swaps it in on success.
func (s *fileStore) commitLocked(next fileState) error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(next); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	s.state = next
	return nil
}

func loadSnapshot(path string, out *fileState) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}

func toPlan(rec *planRecord) plan.Plan {
	return plan.Plan{
		ID:             rec.ID,
		Name:           rec.Name,
		Window:         plan.DateRange{Start: rec.StartDate, End: rec.EndDate},
		Active:         rec.Status == "active",
		AutoReschedule: rec.AutoReschedule,
		CreatedAt:      rec.CreatedAt,
	}
}

func toTask(planID string, rec *taskRecord) plan.Task {
	t := plan.Task{
		ID:              rec.ID,
		PlanID:          planID,
		Name:            rec.Name,
		DurationMinutes: rec.DurationMinutes,
		Priority:        plan.Priority(rec.Priority),
		ComplexityScore: rec.Complexity,
		OriginIndex:     rec.OriginIndex,
		Kind:            plan.TaskKind(rec.Kind),
		Completed:       rec.Completed,
	}
	if rec.Placement != nil {
		t.Scheduled = plan.Placement{
			TaskID:          rec.ID,
			Date:            rec.Placement.Date,
			Start:           rec.Placement.Start,
			End:             rec.Placement.End,
			DurationMinutes: rec.Placement.DurationMinutes,
		}
	}
	return t
}
