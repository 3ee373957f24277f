package monitor

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/watchpost/watchpost/internal/storage"
)

// Scheduler drives local checks, one at a time. The due query orders by
// last_checked_at with never-checked monitors first, so a backlog drains
// oldest first and no monitor is starved. Throughput scales by
// registering remote probe locations, not by local concurrency.
type Scheduler struct {
	store    storage.Store
	pipeline *Pipeline
	logger   *slog.Logger

	warmup time.Duration
	idle   time.Duration
	yield  time.Duration
}

func NewScheduler(store storage.Store, pipeline *Pipeline, warmup, idle, yield time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		pipeline: pipeline,
		logger:   logger,
		warmup:   warmup,
		idle:     idle,
		yield:    yield,
	}
}

// Run blocks until ctx is cancelled. The warmup delay lets the HTTP
// surface come live before the first outbound probe fires.
func (s *Scheduler) Run(ctx context.Context) {
	if !sleepCtx(ctx, s.warmup) {
		return
	}
	s.logger.Info("scheduler started", "idle_poll", s.idle)

	for {
		m, err := s.store.NextDueMonitor(ctx, time.Now().UTC())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Error("scheduler: next due monitor", "error", err)
			}
			if !sleepCtx(ctx, s.idle) {
				return
			}
			continue
		}

		s.runOne(ctx, m)

		if !sleepCtx(ctx, s.yield) {
			return
		}
	}
}

func (s *Scheduler) runOne(ctx context.Context, m *storage.Monitor) {
	out, err := s.pipeline.RunCheck(ctx, m)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("check failed", "monitor_id", m.ID, "monitor", m.Name, "error", err)
		return
	}
	s.logger.Debug("check complete",
		"monitor_id", m.ID,
		"monitor", m.Name,
		"status", out.Heartbeat.Status,
		"response_time_ms", out.Heartbeat.ResponseTimeMs)
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
