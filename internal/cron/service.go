package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

// ServiceParams configure the scheduler service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    LockProvider
	Metrics  *metrics.CronJobMetrics
}

// Service runs every registered job on its own cadence. Each job has an
// independent ticker loop and lock so a slow job never delays the others.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockProvider
	metrics  *metrics.CronJobMetrics
}

// NewService builds a scheduler service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock provider required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
	}, nil
}

// Run starts one loop per entry and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	entries := s.registry.Entries()
	locks := make([]Lock, len(entries))
	for i, entry := range entries {
		lock, err := s.locks.LockFor(entry.Job.Name())
		if err != nil {
			return fmt.Errorf("lock for %s: %w", entry.Job.Name(), err)
		}
		locks[i] = lock
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		entry, lock := entry, locks[i]
		group.Go(func() error {
			return s.loop(groupCtx, entry, lock)
		})
	}
	err := group.Wait()
	s.logg.Info(ctx, "scheduler stopped")
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

func (s *Service) loop(ctx context.Context, entry Entry, lock Lock) error {
	jobCtx := s.logg.WithJob(ctx, entry.Job.Name())
	s.logg.Info(s.logg.WithField(jobCtx, "interval", entry.Interval.String()), "job scheduled")

	s.trigger(jobCtx, entry.Job, lock)
	ticker := time.NewTicker(entry.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.trigger(jobCtx, entry.Job, lock)
		}
	}
}

// trigger runs one job under its lock. Errors are logged and counted; they
// never stop the loop.
func (s *Service) trigger(ctx context.Context, job Job, lock Lock) {
	locked, err := lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "job lock acquire failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	if !locked {
		s.logg.Info(ctx, "another scheduler instance holds the job lock; skipping")
		s.metrics.IncLockSkipped(job.Name())
		return
	}
	defer func() {
		if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release job lock", relErr)
		}
	}()
	s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := runRecovered(jobCtx, job)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}

func runRecovered(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}
