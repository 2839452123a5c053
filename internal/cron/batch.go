package cron

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
)

// BatchResult summarizes one pass over a job's candidates.
type BatchResult struct {
	Candidates int
	Succeeded  int
	Failed     int
}

// ErrBatchFailed marks a run in which no candidate succeeded.
var ErrBatchFailed = errors.New("every candidate failed")

// Err fails the run when there were candidates and none succeeded. A partial
// failure leaves the run successful; the failed candidates are picked up again
// by the next poll.
func (r BatchResult) Err() error {
	if r.Candidates > 0 && r.Failed == r.Candidates {
		return fmt.Errorf("%w: %d of %d", ErrBatchFailed, r.Failed, r.Candidates)
	}
	return nil
}

// Batch describes how a job processes its candidates.
type Batch[T any] struct {
	Job     string
	Logger  *logger.Logger
	Metrics *metrics.CronJobMetrics
	// Fields adds per-candidate log fields such as campaign_id.
	Fields  func(T) map[string]any
	Process func(ctx context.Context, candidate T) error
}

// RunBatch processes candidates one at a time. A failing or panicking
// candidate is logged and counted; it never aborts the rest of the batch.
func RunBatch[T any](ctx context.Context, b Batch[T], candidates []T) BatchResult {
	result := BatchResult{Candidates: len(candidates)}
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			result.Failed += result.Candidates - result.Succeeded - result.Failed
			break
		}
		candidateCtx := ctx
		if b.Logger != nil && b.Fields != nil {
			candidateCtx = b.Logger.WithFields(ctx, b.Fields(candidate))
		}
		if err := processRecovered(candidateCtx, b.Process, candidate); err != nil {
			result.Failed++
			if b.Logger != nil {
				b.Logger.Error(candidateCtx, "candidate failed", err)
			}
			continue
		}
		result.Succeeded++
	}
	b.Metrics.AddCandidates(b.Job, result.Succeeded, result.Failed)
	if b.Logger != nil {
		b.Logger.Info(b.Logger.WithFields(ctx, map[string]any{
			"candidates": result.Candidates,
			"succeeded":  result.Succeeded,
			"failed":     result.Failed,
		}), "batch complete")
	}
	return result
}

func processRecovered[T any](ctx context.Context, fn func(context.Context, T) error, candidate T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("candidate panicked: %v", r)
		}
	}()
	return fn(ctx, candidate)
}
