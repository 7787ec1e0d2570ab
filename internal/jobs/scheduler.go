// Package jobs runs the background maintenance work: cache and limiter
// sweeps on tickers, plus daily reconciliation and retention passes on a
// cron schedule.
package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"glance/internal/cache"
	"glance/internal/config"
	"glance/internal/database"
	"glance/internal/limiter"
)

// Daily schedules, staggered so the passes never overlap a fresh day
// boundary or each other.
const (
	reconcileSchedule = "5 0 * * *"
	cleanupSchedule   = "35 0 * * *"
)

// Scheduler owns all background work. Sweeps run on per-tier tickers;
// the daily jobs share a mutex so a slow pass skips instead of stacking.
type Scheduler struct {
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	cron    *cron.Cron
	tiers   *cache.Tiers
	limiter *limiter.Limiter

	reconcileJob *ReconcileJob
	cleanupJob   *CleanupJob

	processingMutex sync.Mutex
	isProcessing    bool
	isRunning       bool
}

func NewScheduler(dbManager *database.Manager, logger *slog.Logger, cfg *config.Config, tiers *cache.Tiers, lim *limiter.Limiter) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		cron:         cron.New(),
		tiers:        tiers,
		limiter:      lim,
		reconcileJob: NewReconcileJob(dbManager, logger),
		cleanupJob:   NewCleanupJob(dbManager, logger, cfg),
	}
}

// executeJobSafely runs a job unless another one is still going, and
// contains panics so a broken pass cannot take the process down.
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job, previous run still active", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}
		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Background job failed", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start launches the sweepers and the cron schedule. Calling Start twice
// is a no-op.
func (s *Scheduler) Start() error {
	if s.isRunning {
		return nil
	}
	s.isRunning = true

	s.tiers.StartSweepers(s.ctx)
	s.limiter.StartSweeper(s.ctx)

	if _, err := s.cron.AddFunc(reconcileSchedule, func() {
		s.executeJobSafely("reconcile", s.reconcileJob.Run)
	}); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(cleanupSchedule, func() {
		s.executeJobSafely("cleanup", s.cleanupJob.Run)
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Background jobs started")
	return nil
}

// Stop halts the cron schedule and the sweepers, waiting for any running
// cron job to finish.
func (s *Scheduler) Stop() {
	if !s.isRunning {
		return
	}
	s.isRunning = false

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Background jobs stopped")
}
