// Package scheduler provides unified scheduler management using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/logger"
)

// AnalyticsFlusher forces in-flight presence and tab durations from the
// ephemeral store into the durable store for every known user.
type AnalyticsFlusher interface {
	FlushAllUsers(ctx context.Context) error
}

// SchedulerManager manages all scheduled jobs on a single gocron instance.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	started   bool
	startedMu sync.RWMutex
}

// NewSchedulerManager creates a new SchedulerManager instance.
func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(biztime.Location()),
	)
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: s,
		logger:    log.Named("scheduler"),
	}, nil
}

// RegisterAnalyticsFlushJob registers the periodic flush. It fires once
// immediately at process start to drain anything a previous process's crash
// left behind, then on every interval. Singleton mode: a tick that outlives
// the interval is rescheduled, never overlapped.
func (m *SchedulerManager) RegisterAnalyticsFlushJob(flusher AnalyticsFlusher, interval time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			m.runAnalyticsFlush(ctx, flusher)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("analytics", "flush"),
		gocron.WithName("analytics-flush"),
	)
	if err != nil {
		return err
	}

	m.logger.Infow("registered analytics flush job", "interval", interval)
	return nil
}

func (m *SchedulerManager) runAnalyticsFlush(ctx context.Context, flusher AnalyticsFlusher) {
	startTime := biztime.NowUTC()
	m.logger.Debugw("analytics flush tick started")

	if err := flusher.FlushAllUsers(ctx); err != nil {
		m.logger.Errorw("analytics flush tick failed",
			"error", err,
			"duration", time.Since(startTime),
		)
		return
	}

	m.logger.Infow("analytics flush tick completed", "duration", time.Since(startTime))
}

// Start begins executing registered jobs. Idempotent.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop shuts the scheduler down and waits for running jobs.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")

	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

// IsStarted reports whether Start has been called.
func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}
