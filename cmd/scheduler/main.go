// Package main is the entry point for the Scheduler Lambda.
//
// EventBridge invokes it on a fixed rate with a SchedulerPayload. The default
// task lists every active watch and enqueues one trigger message per watch on
// the FIFO trigger queue; purge_deleted removes soft-deleted watches past
// retention.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"farewatch/internal/app"
	"farewatch/internal/scheduler"
)

// Runner executes one scheduler payload. Implemented by
// scheduler.WatchScheduler.
type Runner interface {
	Handle(ctx context.Context, payload scheduler.SchedulerPayload) (scheduler.RunResult, error)
}

// Handler adapts a Runner to the Lambda runtime.
type Handler struct {
	runner Runner
	logger *slog.Logger
}

// Handle runs the payload's task and returns a short summary for the
// invocation log.
func (h *Handler) Handle(ctx context.Context, payload scheduler.SchedulerPayload) (string, error) {
	task := payload.Task
	if task == "" {
		task = scheduler.TaskEnqueueWatches
	}
	h.logger.InfoContext(ctx, "scheduler invoked", "task", string(task), "limit", payload.Limit)

	res, err := h.runner.Handle(ctx, payload)
	if err != nil {
		h.logger.ErrorContext(ctx, "scheduler task failed",
			"task", string(task),
			"error", err,
			"enqueued_before_error", res.Enqueued,
		)
		return "", fmt.Errorf("task %s failed: %w", task, err)
	}

	var result string
	switch task {
	case scheduler.TaskPurgeDeleted:
		result = fmt.Sprintf("task %s complete: %d watches purged", task, res.Purged)
	default:
		result = fmt.Sprintf("task %s complete: %d listed, %d enqueued, %d failed",
			task, res.Listed, res.Enqueued, res.Failed)
	}
	h.logger.InfoContext(ctx, result,
		"task", string(task),
		"listed", res.Listed,
		"enqueued", res.Enqueued,
		"failed", res.Failed,
		"purged", res.Purged,
	)
	return result, nil
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel).With("service", "scheduler")
	logger.Info("Scheduler Lambda initializing (cold start)", "build", cfg.Build)

	deps, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	handler := &Handler{
		runner: scheduler.NewWatchScheduler(scheduler.WatchSchedulerConfig{
			Lister:   deps.Watches,
			Purger:   deps.Watches,
			Enqueuer: deps.Queue,
			Metrics:  deps.Metrics,
			Logger:   logger,
		}),
		logger: logger,
	}

	if cfg.Environment == "local" {
		res, err := handler.Handle(context.Background(), scheduler.SchedulerPayload{Task: scheduler.TaskType(os.Getenv("SCHEDULER_TASK"))})
		if err != nil {
			logger.Error("scheduler run failed", "error", err)
			deps.Close()
			os.Exit(1)
		}
		fmt.Println(res)
		return
	}

	lambda.Start(handler.Handle)
}
