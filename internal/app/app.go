// Package app wires the planner daemon: config, logging, storage, the
// analyzer, draft activation, the sweep, and the optional notifier.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"timeplan/internal/capacity"
	"timeplan/internal/config"
	"timeplan/internal/eventbus"
	"timeplan/internal/notify"
	"timeplan/internal/plan"
	"timeplan/internal/planner"
	"timeplan/internal/reschedule"
	"timeplan/internal/store"
	"timeplan/internal/sweep"
	logx "timeplan/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	logs *logx.Service
	log  logx.Logger

	bus eventbus.Bus
	st  store.Store

	analyzer *reschedule.Analyzer
	planner  *planner.Planner
	sweeper  *sweep.Service
	notif    *notify.Service

	wg sync.WaitGroup
}

// settings reads the day policy from the live config so hot reloads reach
// the next analysis pass without a restart.
type settings struct {
	cfgm *config.ConfigManager
}

func (s settings) PolicyFor(ctx context.Context, planID string) (capacity.Policy, error) {
	_ = ctx
	cfg := s.cfgm.Get()
	if cfg == nil {
		return capacity.Policy{}, errors.New("config not loaded")
	}
	return cfg.Planner.Policy(), nil
}

func (s settings) SnapMinutes() int {
	cfg := s.cfgm.Get()
	if cfg == nil {
		return 0
	}
	return cfg.Planner.Snap()
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logs.Logger().With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if st == nil {
		return nil, errors.New("storage.driver is required (file or sqlite)")
	}

	bus := eventbus.New()
	sett := settings{cfgm: cfgm}

	analyzer := reschedule.NewAnalyzer(st, sett, logs.Logger().With(logx.String("comp", "analyzer")))
	plannerSvc := planner.New(st, sett, bus, logs.Logger().With(logx.String("comp", "planner")))

	notif, err := notify.New(notify.Config{
		Enabled:    cfg.Notify.Enabled,
		Token:      cfg.Notify.Token,
		ChatID:     cfg.Notify.ChatID,
		RatePerSec: cfg.Notify.RatePerSec,
	}, logs.Logger().With(logx.String("comp", "notify")))
	if err != nil {
		return nil, err
	}

	sweeper := sweep.New(sweepConfig(cfg), st, analyzer, logs.Logger().With(logx.String("comp", "sweep")))
	sweeper.SetActivator(plannerSvc)
	sweeper.SetBus(bus)
	sweeper.SetNotifier(notif)

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		logs:     logs,
		log:      log,
		bus:      bus,
		st:       st,
		analyzer: analyzer,
		planner:  plannerSvc,
		sweeper:  sweeper,
		notif:    notif,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(ctx context.Context, cfg *config.Config) error {
		_ = ctx
		return cfg.Validate()
	})

	updates := a.cfgm.Subscribe(4)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(cfg)
			}
		}
	}()

	// Plan lifecycle events land in the daemon log so operators can follow
	// activations, reschedules, and failures from one stream.
	events, unsub := a.bus.Subscribe(16)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.logEvent(e)
			}
		}
	}()

	a.sweeper.Start(ctx)

	// One pass up front so drafts activate and overdue plans catch up
	// without waiting for the first tick.
	if a.sweeper.Enabled() {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			rctx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			if _, err := a.sweeper.RunOnce(rctx, time.Now()); err != nil {
				a.log.Warn("initial sweep failed", logx.Err(err))
			}
		}()
	}

	a.log.Info("daemon started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.sweeper.Stop(ctx)
	a.wg.Wait()

	var firstErr error
	if err := a.st.Close(); err != nil {
		firstErr = err
	}
	a.log.Info("daemon stopped")
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) logEvent(e eventbus.Event) {
	log := a.log.With(logx.String("event", e.Type), logx.String("plan", e.PlanID))
	switch e.Type {
	case eventbus.TypeSweepFailed:
		log.Warn("plan sweep failed", logx.Any("cause", e.Data))
	case eventbus.TypePlanRescheduled:
		if res, ok := e.Data.(*plan.Result); ok && res != nil {
			log.Info("plan rescheduled",
				logx.Int("deltas", len(res.Deltas)),
				logx.String("new_end", res.NewEndDate.String()))
			return
		}
		log.Info("plan rescheduled")
	default:
		log.Info("plan event")
	}
}

// applyConfig pushes a validated reload into the running services.
// Storage is deliberately not hot-swappable.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.sweeper.Apply(sweepConfig(cfg))
	a.notif.Apply(notify.Config{
		Enabled:    cfg.Notify.Enabled,
		Token:      cfg.Notify.Token,
		ChatID:     cfg.Notify.ChatID,
		RatePerSec: cfg.Notify.RatePerSec,
	})
	a.log.Info("config applied")
}

func sweepConfig(cfg *config.Config) sweep.Config {
	return sweep.Config{
		Enabled:       cfg.Sweep.Enabled,
		Spec:          cfg.Sweep.Spec,
		Timezone:      cfg.Sweep.Timezone,
		MaxConcurrent: cfg.Sweep.MaxConcurrent,
	}
}
