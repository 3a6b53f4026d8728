// Package scheduler drives periodic source syncs, full sweeps, retraining
// hooks and the retention pass on cron cadences.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/xraph/convene/id"
	"github.com/xraph/convene/source"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("convene: scheduler already running")

// Fixed cadences.
const (
	FullSyncSpec      = "0 */6 * * *"
	CleanupSpec       = "30 3 * * *"
	DailyRetrainSpec  = "0 2 * * *"
	WeeklyRetrainSpec = "0 4 * * 0"
	RefreshSpec       = "*/10 * * * *"
)

// Cadence maps a sync frequency in minutes to a bucketed cron spec.
func Cadence(minutes int) string {
	switch {
	case minutes <= 5:
		return "*/5 * * * *"
	case minutes <= 15:
		return "*/15 * * * *"
	case minutes <= 30:
		return "*/30 * * * *"
	case minutes <= 60:
		return "0 * * * *"
	case minutes <= 120:
		return "0 */2 * * *"
	default:
		return "0 */6 * * *"
	}
}

// Tasks are the operations the scheduler triggers.
type Tasks struct {
	SyncSource  func(ctx context.Context, srcID id.ID) error
	FullSync    func(ctx context.Context) error
	Cleanup     func(ctx context.Context) error
	ListSources func(ctx context.Context) ([]*source.EventSource, error)
}

// Config holds the scheduler cadences. Empty specs fall back to the
// package defaults.
type Config struct {
	FullSyncSpec      string
	CleanupSpec       string
	DailyRetrainSpec  string
	WeeklyRetrainSpec string
	RefreshSpec       string
	Retrainer         Retrainer
}

// DefaultConfig returns the default cadences with a no-op retrainer.
func DefaultConfig() Config {
	return Config{
		FullSyncSpec:      FullSyncSpec,
		CleanupSpec:       CleanupSpec,
		DailyRetrainSpec:  DailyRetrainSpec,
		WeeklyRetrainSpec: WeeklyRetrainSpec,
		RefreshSpec:       RefreshSpec,
		Retrainer:         NopRetrainer{},
	}
}

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler owns one cron runner.
type Scheduler struct {
	tasks  Tasks
	config Config
	logger *slog.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	sources map[id.ID]entry
}

// New returns a Scheduler. Nil tasks are never scheduled.
func New(tasks Tasks, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.FullSyncSpec == "" {
		cfg.FullSyncSpec = def.FullSyncSpec
	}
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = def.CleanupSpec
	}
	if cfg.DailyRetrainSpec == "" {
		cfg.DailyRetrainSpec = def.DailyRetrainSpec
	}
	if cfg.WeeklyRetrainSpec == "" {
		cfg.WeeklyRetrainSpec = def.WeeklyRetrainSpec
	}
	if cfg.RefreshSpec == "" {
		cfg.RefreshSpec = def.RefreshSpec
	}
	if cfg.Retrainer == nil {
		cfg.Retrainer = def.Retrainer
	}

	cl := cronLogger{logger}
	return &Scheduler{
		tasks:  tasks,
		config: cfg,
		logger: logger,
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		sources: make(map[id.ID]entry),
	}
}

// Start registers the fixed jobs and one entry per pullable source, then
// starts the cron runner. Jobs run under a context derived from ctx that
// is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.running = true
	s.mu.Unlock()

	fixed := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"full_sync", s.config.FullSyncSpec, s.tasks.FullSync},
		{"cleanup", s.config.CleanupSpec, s.tasks.Cleanup},
		{"retrain_daily", s.config.DailyRetrainSpec, func(ctx context.Context) error {
			return s.config.Retrainer.Retrain(ctx, Daily)
		}},
		{"retrain_weekly", s.config.WeeklyRetrainSpec, func(ctx context.Context) error {
			return s.config.Retrainer.Retrain(ctx, Weekly)
		}},
		{"refresh_sources", s.config.RefreshSpec, s.Refresh},
	}
	for _, f := range fixed {
		if f.run == nil {
			continue
		}
		if _, err := s.cron.AddFunc(f.spec, s.job(f.name, f.run)); err != nil {
			s.abort()
			return err
		}
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "initial source refresh failed", "error", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "scheduler started", "sources", len(s.Entries()))
	return nil
}

// Stop halts the runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	cancel()
	select {
	case <-done.Done():
		s.logger.InfoContext(ctx, "scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Refresh reconciles per-source entries with the active pullable sources:
// new sources are added, removed or deactivated ones dropped, and changed
// cadences replaced.
func (s *Scheduler) Refresh(ctx context.Context) error {
	if s.tasks.ListSources == nil || s.tasks.SyncSource == nil {
		return nil
	}
	srcs, err := s.tasks.ListSources(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[id.ID]struct{}, len(srcs))
	for _, src := range srcs {
		if !src.Active || !src.Pullable() {
			continue
		}
		seen[src.ID] = struct{}{}
		spec := Cadence(src.SyncFrequency)
		if cur, ok := s.sources[src.ID]; ok {
			if cur.spec == spec {
				continue
			}
			s.cron.Remove(cur.id)
		}

		srcID := src.ID
		eid, err := s.cron.AddFunc(spec, s.job("sync_source", func(ctx context.Context) error {
			return s.tasks.SyncSource(ctx, srcID)
		}))
		if err != nil {
			return err
		}
		s.sources[srcID] = entry{id: eid, spec: spec}
	}

	for srcID, cur := range s.sources {
		if _, ok := seen[srcID]; !ok {
			s.cron.Remove(cur.id)
			delete(s.sources, srcID)
		}
	}
	return nil
}

// Entries returns the cron spec scheduled per source.
func (s *Scheduler) Entries() map[id.ID]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[id.ID]string, len(s.sources))
	for srcID, e := range s.sources {
		out[srcID] = e.spec
	}
	return out
}

// Running reports whether the scheduler has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) job(name string, run func(context.Context) error) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil || ctx.Err() != nil {
			return
		}
		if err := run(ctx); err != nil {
			s.logger.ErrorContext(ctx, "scheduled job failed", "job", name, "error", err)
		}
	}
}

func (s *Scheduler) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
