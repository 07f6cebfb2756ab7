package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"timeplan/internal/plan"
	"timeplan/internal/timeutil"
	logx "timeplan/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers. A single
	// connection also serializes per-plan applies for free.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreatePlan(ctx context.Context, p plan.Plan, tasks []plan.Task) error {
	if p.ID == "" || p.Name == "" {
		return errors.New("plan id and name are required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO plans(id, name, start_date, end_date, status, auto_reschedule, created_at)
		 VALUES(?,?,?,?,'draft',?,?)`,
		p.ID, p.Name, p.Window.Start.String(), p.Window.End.String(),
		boolInt(p.AutoReschedule), p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks(id, plan_id, name, duration_minutes, priority, complexity, origin_index, kind, completed)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			t.ID, p.ID, t.Name, t.DurationMinutes, int(t.Priority), t.ComplexityScore,
			t.OriginIndex, string(t.Kind), boolInt(t.Completed),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ActivatePlan(ctx context.Context, planID string, endDate plan.Date, placements []plan.Placement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE plans SET status='active', end_date=? WHERE id=?`,
		endDate.String(), planID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	for _, pl := range placements {
		if err := insertPlacementTx(ctx, tx, pl); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ActivePlans(ctx context.Context) ([]plan.Plan, error) {
	return s.plansByStatus(ctx, "active")
}

func (s *sqliteStore) DraftPlans(ctx context.Context) ([]plan.Plan, error) {
	return s.plansByStatus(ctx, "draft")
}

func (s *sqliteStore) plansByStatus(ctx context.Context, status string) ([]plan.Plan, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, start_date, end_date, status, auto_reschedule, created_at
		 FROM plans WHERE status=? ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Plan(ctx context.Context, id string) (plan.Plan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, status, auto_reschedule, created_at
		 FROM plans WHERE id=?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Plan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	return p, err
}

func (s *sqliteStore) PlanTasks(ctx context.Context, planID string) ([]plan.Task, error) {
	return s.planTasks(ctx, planID, false)
}

func (s *sqliteStore) ScheduledTasks(ctx context.Context, planID string) ([]plan.Task, error) {
	tasks, err := s.planTasks(ctx, planID, false)
	if err != nil {
		return nil, err
	}
	out := tasks[:0]
	for _, t := range tasks {
		if !t.Scheduled.IsZero() {
			out = append(out, t)
		}
	}
	sortByPlacement(out)
	return out, nil
}

func (s *sqliteStore) IncompleteTasksAfter(ctx context.Context, planID string, after plan.Date) ([]plan.Task, error) {
	tasks, err := s.planTasks(ctx, planID, true)
	if err != nil {
		return nil, err
	}
	out := tasks[:0]
	for _, t := range tasks {
		if !t.Scheduled.IsZero() && t.Scheduled.Date.After(after) {
			out = append(out, t)
		}
	}
	sortByPlacement(out)
	return out, nil
}

// planTasks loads the plan's tasks with reassembled placement annotations.
func (s *sqliteStore) planTasks(ctx context.Context, planID string, onlyIncomplete bool) ([]plan.Task, error) {
	q := `SELECT t.id, t.name, t.duration_minutes, t.priority, t.complexity, t.origin_index, t.kind, t.completed
	      FROM tasks t WHERE t.plan_id=?`
	if onlyIncomplete {
		q += ` AND t.completed = 0`
	}
	q += ` ORDER BY t.origin_index`
	rows, err := s.db.QueryContext(ctx, q, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []plan.Task
	for rows.Next() {
		t := plan.Task{PlanID: planID}
		var prio, completed int
		var kind string
		if err := rows.Scan(&t.ID, &t.Name, &t.DurationMinutes, &prio, &t.ComplexityScore,
			&t.OriginIndex, &kind, &completed); err != nil {
			return nil, err
		}
		t.Priority = plan.Priority(prio)
		t.Kind = plan.TaskKind(kind)
		t.Completed = completed != 0
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	placed, err := s.placementsByTask(ctx, planID)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].Scheduled = placed[tasks[i].ID]
	}
	return tasks, nil
}

// placementsByTask reassembles stored parts back into logical placements.
// A two-part task gets its original wraparound form: the first part's date
// and start with the second part's end, durations summed.
func (s *sqliteStore) placementsByTask(ctx context.Context, planID string) (map[string]plan.Placement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.task_id, p.part, p.date, p.start_time, p.end_time, p.duration_minutes
		 FROM placements p JOIN tasks t ON t.id = p.task_id
		 WHERE t.plan_id=? ORDER BY p.task_id, p.part`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]plan.Placement{}
	for rows.Next() {
		var taskID, date, start, end string
		var part, dur int
		if err := rows.Scan(&taskID, &part, &date, &start, &end, &dur); err != nil {
			return nil, err
		}
		if part == 0 {
			d, err := plan.ParseDate(date)
			if err != nil {
				return nil, err
			}
			out[taskID] = plan.Placement{TaskID: taskID, Date: d, Start: start, End: end, DurationMinutes: dur}
			continue
		}
		pl, ok := out[taskID]
		if !ok {
			continue
		}
		pl.End = end
		pl.DurationMinutes += dur
		out[taskID] = pl
	}
	return out, rows.Err()
}

func (s *sqliteStore) ApplyReschedule(ctx context.Context, res plan.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	r, err := tx.ExecContext(ctx,
		`UPDATE plans SET end_date=? WHERE id=?`, res.NewEndDate.String(), res.PlanID)
	if err != nil {
		return err
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrPlanNotFound, res.PlanID)
	}

	for _, d := range res.Deltas {
		if _, err := tx.ExecContext(ctx, `DELETE FROM placements WHERE task_id=?`, d.TaskID); err != nil {
			return err
		}
		pl := plan.Placement{
			TaskID:          d.TaskID,
			Date:            d.NewDate,
			Start:           d.NewStart,
			End:             d.NewEnd,
			DurationMinutes: d.DurationMinutes,
		}
		if err := insertPlacementTx(ctx, tx, pl); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) AppendHistory(ctx context.Context, e plan.HistoryEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history(id, plan_id, at, trigger_kind, old_end_date, new_end_date, days_extended, delta_count, success, failure_cause)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), e.PlanID, time.Now().Format(time.RFC3339Nano), string(e.Trigger),
		e.OldEndDate.String(), e.NewEndDate.String(), e.DaysExtended, e.DeltaCount,
		boolInt(e.Success), nullStr(e.FailureCause),
	)
	return err
}

// insertPlacementTx normalizes wraparound placements into two stored parts.
func insertPlacementTx(ctx context.Context, tx *sql.Tx, pl plan.Placement) error {
	if !timeutil.CrossesMidnight(pl.Start, pl.End) {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO placements(task_id, part, date, start_time, end_time, duration_minutes)
			 VALUES(?,0,?,?,?,?)`,
			pl.TaskID, pl.Date.String(), pl.Start, pl.End, pl.DurationMinutes)
		return err
	}

	first, second, err := timeutil.Split(pl.Start, pl.End)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO placements(task_id, part, date, start_time, end_time, duration_minutes)
		 VALUES(?,0,?,?,?,?)`,
		pl.TaskID, pl.Date.String(), first.Start, first.End, first.Minutes)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO placements(task_id, part, date, start_time, end_time, duration_minutes)
		 VALUES(?,1,?,?,?,?)`,
		pl.TaskID, pl.Date.AddDays(1).String(), second.Start, second.End, second.Minutes)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (plan.Plan, error) {
	var p plan.Plan
	var start, end, status, createdAt string
	var auto int
	if err := row.Scan(&p.ID, &p.Name, &start, &end, &status, &auto, &createdAt); err != nil {
		return plan.Plan{}, err
	}
	var err error
	if p.Window.Start, err = plan.ParseDate(start); err != nil {
		return plan.Plan{}, err
	}
	if p.Window.End, err = plan.ParseDate(end); err != nil {
		return plan.Plan{}, err
	}
	p.Active = status == "active"
	p.AutoReschedule = auto != 0
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		p.CreatedAt = t
	}
	return p, nil
}

func sortByPlacement(tasks []plan.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].Scheduled, tasks[j].Scheduled
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		return a.Start < b.Start
	})
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
