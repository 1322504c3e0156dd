package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"farewatch/internal/db"
	"farewatch/internal/metrics"
	"farewatch/internal/types"
)

const (
	// DefaultPageSize is how many watches are read per ListActive call.
	DefaultPageSize = 200
	// DispatchConcurrency bounds the number of in-flight SQS batch calls.
	DispatchConcurrency = 4
	// dispatchChunk matches the SQS batch limit.
	dispatchChunk = 10
	// DeletedRetention is how long soft-deleted watches are kept.
	DeletedRetention = 30 * 24 * time.Hour

	enqueueReason = "schedule"
)

// WatchLister pages through active watches. Implemented by db.WatchRepository.
type WatchLister interface {
	ListActive(ctx context.Context, params db.ListActiveParams) ([]*types.Watch, types.PageInfo, error)
}

// DeletedPurger removes soft-deleted watches. Implemented by db.WatchRepository.
type DeletedPurger interface {
	PurgeDeleted(ctx context.Context, before time.Time) (int64, error)
}

// TriggerEnqueuer sends trigger requests. Implemented by queue.TriggerQueue.
type TriggerEnqueuer interface {
	EnqueueBatch(ctx context.Context, watchIDs []string, reason string) (int, error)
}

// RunResult summarizes one scheduler invocation.
type RunResult struct {
	Listed   int
	Enqueued int
	Failed   int
	Purged   int64
}

// WatchScheduler enqueues trigger runs for active watches.
type WatchScheduler struct {
	lister   WatchLister
	purger   DeletedPurger
	enqueuer TriggerEnqueuer
	metrics  metrics.Recorder
	pageSize int
	logger   *slog.Logger
}

// WatchSchedulerConfig holds the dependencies of a WatchScheduler.
type WatchSchedulerConfig struct {
	Lister   WatchLister
	Purger   DeletedPurger
	Enqueuer TriggerEnqueuer
	Metrics  metrics.Recorder
	PageSize int
	Logger   *slog.Logger
}

// NewWatchScheduler creates a WatchScheduler with defaults for unset fields.
func NewWatchScheduler(cfg WatchSchedulerConfig) *WatchScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rec := cfg.Metrics
	if rec == nil {
		rec = metrics.Noop{}
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &WatchScheduler{
		lister:   cfg.Lister,
		purger:   cfg.Purger,
		enqueuer: cfg.Enqueuer,
		metrics:  rec,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Handle dispatches a payload to the matching job.
func (s *WatchScheduler) Handle(ctx context.Context, payload SchedulerPayload) (RunResult, error) {
	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	switch payload.Task {
	case TaskEnqueueWatches, "":
		return s.EnqueueActive(ctx, now, payload.Limit)
	case TaskPurgeDeleted:
		if s.purger == nil {
			return RunResult{}, fmt.Errorf("scheduler: purge not configured")
		}
		n, err := s.purger.PurgeDeleted(ctx, now.Add(-DeletedRetention))
		if err != nil {
			return RunResult{}, fmt.Errorf("scheduler: purge deleted watches: %w", err)
		}
		s.logger.InfoContext(ctx, "purged deleted watches", "count", n)
		return RunResult{Purged: n}, nil
	default:
		return RunResult{}, fmt.Errorf("scheduler: unknown task %q", payload.Task)
	}
}

// EnqueueActive lists active watches page by page and enqueues a trigger for
// each. Watches whose window has fully passed are not listed. A failed SQS
// batch is counted and logged but does not stop the run; a failed page read
// does.
func (s *WatchScheduler) EnqueueActive(ctx context.Context, now time.Time, limit int) (RunResult, error) {
	var res RunResult
	var enqueued, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(DispatchConcurrency)

	cursor := ""
	for {
		pageSize := s.pageSize
		if limit > 0 {
			pageSize = min(pageSize, limit-res.Listed)
		}
		if pageSize <= 0 {
			break
		}

		watches, page, err := s.lister.ListActive(gCtx, db.ListActiveParams{
			Cursor: cursor,
			Limit:  pageSize,
			Today:  now,
		})
		if err != nil {
			_ = g.Wait()
			return res, fmt.Errorf("scheduler: listing active watches: %w", err)
		}
		res.Listed += len(watches)

		ids := make([]string, len(watches))
		for i, w := range watches {
			ids[i] = w.ID
		}
		for start := 0; start < len(ids); start += dispatchChunk {
			chunk := ids[start:min(start+dispatchChunk, len(ids))]
			g.Go(func() error {
				n, err := s.enqueuer.EnqueueBatch(gCtx, chunk, enqueueReason)
				enqueued.Add(int64(n))
				failed.Add(int64(len(chunk) - n))
				if err != nil {
					s.logger.ErrorContext(gCtx, "trigger batch failed",
						"first_watch_id", chunk[0],
						"size", len(chunk),
						"error", err,
					)
				}
				// Isolate batch failures so the remaining pages still go out.
				return nil
			})
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	_ = g.Wait()
	res.Enqueued = int(enqueued.Load())
	res.Failed = int(failed.Load())

	s.metrics.RecordWatchesEnqueued(ctx, res.Enqueued)
	s.logger.InfoContext(ctx, "scheduler run complete",
		"listed", res.Listed,
		"enqueued", res.Enqueued,
		"failed", res.Failed,
	)
	return res, nil
}
