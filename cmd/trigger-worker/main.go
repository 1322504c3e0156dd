// Package main is the entry point for the Trigger Worker Lambda.
//
// The worker consumes the FIFO trigger queue. Each message names one watch;
// the worker runs a full trigger cycle for it. Messages that fail with a
// transient error are reported back as batch item failures so SQS retries
// only those. Permanent failures (unknown or paused watch, lost version race)
// are logged and acknowledged.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"farewatch/internal/app"
	"farewatch/internal/types"
)

// Triggerer runs one trigger cycle. Implemented by trigger.Controller.
type Triggerer interface {
	Trigger(ctx context.Context, watchID string) (*types.TriggerOutcome, error)
}

// Handler processes SQS trigger events.
type Handler struct {
	triggerer Triggerer
	logger    *slog.Logger
}

// Handle processes an SQS event. Lambda SQS integration uses partial batch
// responses; only retryable failures are listed.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "trigger failed, scheduling retry",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage returns an error only when the message should be retried.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var msg types.TriggerMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil || msg.WatchID == "" {
		h.logger.ErrorContext(ctx, "dropping malformed trigger message",
			"message_id", record.MessageId,
			"error", err,
		)
		return nil
	}

	logger := h.logger.With(
		"watch_id", msg.WatchID,
		"reason", msg.Reason,
		"trace_id", msg.TraceID,
	)
	if !msg.ScheduledAt.IsZero() {
		logger = logger.With("queue_lag_ms", time.Since(msg.ScheduledAt).Milliseconds())
	}

	outcome, err := h.triggerer.Trigger(ctx, msg.WatchID)
	if err != nil {
		if !retryable(err) {
			logger.WarnContext(ctx, "trigger rejected, not retrying",
				"code", string(types.CodeOf(err)),
				"error", err.Error(),
			)
			return nil
		}
		return fmt.Errorf("watch %s: %w", msg.WatchID, err)
	}

	logger.InfoContext(ctx, "trigger completed",
		"action", string(outcome.Action),
		"outcome_reason", string(outcome.Reason),
		"searched", outcome.SearchedCombinations,
		"notified", outcome.NotificationSent,
	)
	return nil
}

// retryable reports whether another delivery could succeed. Client-class
// errors are permanent except upstream rate limiting.
func retryable(err error) bool {
	code := types.CodeOf(err)
	if code == types.ErrCodeUpstreamRateLimited {
		return true
	}
	return code.HTTPStatus() >= http.StatusInternalServerError
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel).With("service", "trigger-worker")
	logger.Info("Trigger Worker Lambda initializing (cold start)", "build", cfg.Build)

	deps, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	handler := &Handler{triggerer: deps.Controller, logger: logger}

	// Local mode: read a JSON SQS event from stdin instead of starting the
	// Lambda runtime.
	if cfg.Environment == "local" {
		code := runLocal(handler, os.Stdin, logger)
		deps.Close()
		os.Exit(code)
	}

	lambda.Start(handler.Handle)
}

func runLocal(handler *Handler, in io.Reader, logger *slog.Logger) int {
	logger.Info("APP_ENV=local: reading SQS event from stdin")
	payload, err := io.ReadAll(in)
	if err != nil || len(payload) == 0 {
		logger.Error("No input received on stdin", "error", err)
		return 1
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		logger.Error("Failed to parse stdin as SQS event", "error", err)
		return 1
	}
	response, _ := handler.Handle(context.Background(), sqsEvent)
	if len(response.BatchItemFailures) > 0 {
		respJSON, _ := json.MarshalIndent(response, "", "  ")
		fmt.Fprintln(os.Stderr, string(respJSON))
	}
	logger.Info("Handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return 0
}
