package sweep

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"timeplan/internal/eventbus"
	"timeplan/internal/plan"
	logx "timeplan/pkg/logx"
)

const (
	defaultSpec          = "@every 15m"
	defaultMaxConcurrent = 4
	runTimeout           = 10 * time.Minute
)

type Config struct {
	Enabled       bool
	Spec          string
	Timezone      string
	MaxConcurrent int
}

// Store is the persistence surface one sweep pass needs.
type Store interface {
	plan.Applier
	plan.HistorySink
	ActivePlans(ctx context.Context) ([]plan.Plan, error)
}

// Analyzer decides the re-plan for one plan. nil result means no-op.
type Analyzer interface {
	Analyze(ctx context.Context, planID string, asOf time.Time, trigger plan.TriggerKind) (*plan.Result, error)
}

// Activator packs draft plans before the analysis pass. Optional.
type Activator interface {
	ActivateDrafts(ctx context.Context, now time.Time) (int, error)
}

// Notifier delivers a digest for an applied reschedule. Optional,
// best-effort: errors are logged, never propagated.
type Notifier interface {
	RescheduleApplied(ctx context.Context, res plan.Result) error
}

// Stats summarizes one sweep pass.
type Stats struct {
	Plans     int
	Applied   int
	Failed    int
	Activated int
}

type Service struct {
	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	loc     *time.Location
	started bool

	parser cron.Parser

	store     Store
	analyzer  Analyzer
	activator Activator
	notifier  Notifier
	bus       eventbus.Bus
	log       logx.Logger
}

func New(cfg Config, store Store, analyzer Analyzer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		analyzer: analyzer,
		log:      log,
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// SetActivator wires draft activation into the sweep pass.
func (s *Service) SetActivator(a Activator) { s.activator = a }

// SetNotifier wires the digest sink.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

// SetBus wires event publication.
func (s *Service) SetBus(b eventbus.Bus) { s.bus = b }

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply swaps the config. A changed spec or timezone restarts the cron
// trigger; everything else takes effect on the next pass.
//
// The drain happens outside the lock: a running pass takes s.mu to read
// its limit, so waiting for it under the lock would deadlock.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	restart := strings.TrimSpace(cfg.Spec) != strings.TrimSpace(s.cfg.Spec) ||
		strings.TrimSpace(cfg.Timezone) != strings.TrimSpace(s.cfg.Timezone) ||
		cfg.Enabled != s.cfg.Enabled
	s.cfg = cfg
	if !s.started || !restart {
		s.mu.Unlock()
		return
	}
	old := s.c
	s.c = nil
	s.mu.Unlock()

	if old != nil {
		<-old.Stop().Done()
	}

	s.mu.Lock()
	if s.started && s.c == nil {
		s.startCronLocked()
	}
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.startCronLocked()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.started = false
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort drain
	}
	s.log.Info("sweep stopped")
}

func (s *Service) startCronLocked() {
	if !s.cfg.Enabled {
		s.log.Debug("sweep disabled")
		return
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		} else {
			loc = l
		}
	}
	s.loc = loc

	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		spec = defaultSpec
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, s.runScheduled); err != nil {
		s.log.Error("invalid sweep spec", logx.String("spec", spec), logx.Err(err))
		return
	}
	c.Start()
	s.c = c
	s.log.Info("sweep started", logx.String("spec", spec), logx.String("tz", loc.String()))
}

func (s *Service) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	stats, err := s.RunOnce(ctx, time.Now())
	if err != nil {
		s.log.Error("sweep pass failed", logx.Err(err))
		return
	}
	s.log.Info("sweep pass done",
		logx.Int("plans", stats.Plans),
		logx.Int("applied", stats.Applied),
		logx.Int("failed", stats.Failed),
		logx.Int("activated", stats.Activated))
}

// RunOnce executes one full sweep pass: activate drafts, then analyze and
// apply per active plan with bounded concurrency. Per-plan failures are
// recorded and do not stop the pass.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (Stats, error) {
	var stats Stats

	if s.activator != nil {
		n, err := s.activator.ActivateDrafts(ctx, now)
		if err != nil {
			s.log.Warn("draft activation incomplete", logx.Err(err))
		}
		stats.Activated = n
	}

	plans, err := s.store.ActivePlans(ctx)
	if err != nil {
		return stats, err
	}
	stats.Plans = len(plans)
	if len(plans) == 0 {
		return stats, nil
	}

	s.mu.Lock()
	limit := s.cfg.MaxConcurrent
	s.mu.Unlock()
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	var applied, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range plans {
		p := p
		g.Go(func() error {
			ok, did := s.sweepPlan(gctx, p, now)
			if did {
				applied.Add(1)
			}
			if !ok {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Applied = int(applied.Load())
	stats.Failed = int(failed.Load())
	return stats, nil
}

// sweepPlan runs analyze-apply-record for one plan. ok reports the plan
// finished without a fatal step; did reports a reschedule was committed.
func (s *Service) sweepPlan(ctx context.Context, p plan.Plan, now time.Time) (ok, did bool) {
	log := s.log.With(logx.String("plan", p.ID))

	res, err := s.analyzer.Analyze(ctx, p.ID, now, plan.TriggerAutoMissed)
	if err != nil {
		log.Error("analysis failed", logx.Err(err))
		s.recordFailure(ctx, p, err)
		return false, false
	}
	if res == nil {
		return true, false
	}

	if err := s.store.ApplyReschedule(ctx, *res); err != nil {
		log.Error("apply failed", logx.Err(err))
		s.recordFailure(ctx, p, err)
		return false, false
	}

	// Applied. Everything from here on is telemetry and must not fail the plan.
	if err := s.store.AppendHistory(ctx, plan.HistoryEntry{
		PlanID:       p.ID,
		Trigger:      res.Reason.Trigger,
		OldEndDate:   p.Window.End,
		NewEndDate:   res.NewEndDate,
		DaysExtended: res.DaysExtended,
		DeltaCount:   len(res.Deltas),
		Success:      true,
	}); err != nil {
		log.Warn("history write failed", logx.Err(err))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypePlanRescheduled, PlanID: p.ID, Data: res})
	}
	if s.notifier != nil {
		if err := s.notifier.RescheduleApplied(ctx, *res); err != nil {
			log.Warn("notification failed", logx.Err(err))
		}
	}
	log.Info("reschedule applied",
		logx.Int("deltas", len(res.Deltas)),
		logx.Int("days_extended", res.DaysExtended),
		logx.String("new_end", res.NewEndDate.String()))
	return true, true
}

func (s *Service) recordFailure(ctx context.Context, p plan.Plan, cause error) {
	if err := s.store.AppendHistory(ctx, plan.HistoryEntry{
		PlanID:       p.ID,
		Trigger:      plan.TriggerAutoMissed,
		OldEndDate:   p.Window.End,
		NewEndDate:   p.Window.End,
		Success:      false,
		FailureCause: cause.Error(),
	}); err != nil {
		s.log.Warn("history write failed", logx.String("plan", p.ID), logx.Err(err))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepFailed, PlanID: p.ID, Data: cause.Error()})
	}
}
