package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"farewatch/internal/types"
)

// --- Mock Types ---

type mockTriggerer struct {
	calls   []string
	errs    map[string]error
	outcome *types.TriggerOutcome
}

func (m *mockTriggerer) Trigger(_ context.Context, watchID string) (*types.TriggerOutcome, error) {
	m.calls = append(m.calls, watchID)
	if err, ok := m.errs[watchID]; ok {
		return nil, err
	}
	if m.outcome != nil {
		return m.outcome, nil
	}
	return &types.TriggerOutcome{Action: types.ActionNoop, Reason: types.ReasonAboveTarget}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(t *testing.T, id string, msg types.TriggerMessage) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

// --- Tests ---

func TestHandle_AllSucceed(t *testing.T) {
	tr := &mockTriggerer{}
	h := &Handler{triggerer: tr, logger: discardLogger()}

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		record(t, "m1", types.TriggerMessage{WatchID: "wch_1", Reason: "schedule", ScheduledAt: time.Now()}),
		record(t, "m2", types.TriggerMessage{WatchID: "wch_2", Reason: "schedule"}),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("expected no failures, got %v", resp.BatchItemFailures)
	}
	if strings.Join(tr.calls, ",") != "wch_1,wch_2" {
		t.Errorf("unexpected trigger calls: %v", tr.calls)
	}
}

func TestHandle_FailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"not found", types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil), false},
		{"inactive", types.NewAppError(types.ErrCodeValidationWatchInactive, "watch is paused", nil), false},
		{"lost version race", types.NewAppError(types.ErrCodeConflictConcurrent, "modified", nil), false},
		{"database", types.NewAppError(types.ErrCodeInternalDB, "db down", errors.New("conn refused")), true},
		{"rate limited", types.NewAppError(types.ErrCodeUpstreamRateLimited, "slow down", nil), true},
		{"provider", types.NewAppError(types.ErrCodeUpstreamFareProvider, "bad gateway", nil), true},
		{"plain error", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &mockTriggerer{errs: map[string]error{"wch_1": tt.err}}
			h := &Handler{triggerer: tr, logger: discardLogger()}

			resp, _ := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
				record(t, "m1", types.TriggerMessage{WatchID: "wch_1"}),
			}})

			gotRetry := len(resp.BatchItemFailures) == 1
			if gotRetry != tt.wantRetry {
				t.Errorf("retry = %v, want %v", gotRetry, tt.wantRetry)
			}
			if gotRetry && resp.BatchItemFailures[0].ItemIdentifier != "m1" {
				t.Errorf("unexpected item identifier %q", resp.BatchItemFailures[0].ItemIdentifier)
			}
		})
	}
}

func TestHandle_PartialFailureOnlyReportsFailedMessage(t *testing.T) {
	tr := &mockTriggerer{errs: map[string]error{"wch_2": errors.New("timeout")}}
	h := &Handler{triggerer: tr, logger: discardLogger()}

	resp, _ := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		record(t, "m1", types.TriggerMessage{WatchID: "wch_1"}),
		record(t, "m2", types.TriggerMessage{WatchID: "wch_2"}),
		record(t, "m3", types.TriggerMessage{WatchID: "wch_3"}),
	}})

	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m2" {
		t.Errorf("expected only m2 to fail, got %v", resp.BatchItemFailures)
	}
	if len(tr.calls) != 3 {
		t.Errorf("expected 3 trigger calls, got %d", len(tr.calls))
	}
}

func TestHandle_MalformedMessageIsAcked(t *testing.T) {
	tr := &mockTriggerer{}
	h := &Handler{triggerer: tr, logger: discardLogger()}

	resp, _ := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad", Body: "not json"},
		{MessageId: "empty", Body: `{"reason":"schedule"}`},
	}})

	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("malformed messages should not be retried, got %v", resp.BatchItemFailures)
	}
	if len(tr.calls) != 0 {
		t.Errorf("triggerer should not be called, got %v", tr.calls)
	}
}

func TestRunLocal(t *testing.T) {
	h := &Handler{triggerer: &mockTriggerer{}, logger: discardLogger()}

	if code := runLocal(h, strings.NewReader(`{"Records":[{"messageId":"1","body":"{\"watch_id\":\"wch_1\"}"}]}`), discardLogger()); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	if code := runLocal(h, strings.NewReader(""), discardLogger()); code != 1 {
		t.Errorf("empty input exit code = %d, want 1", code)
	}
	if code := runLocal(h, strings.NewReader("{"), discardLogger()); code != 1 {
		t.Errorf("invalid input exit code = %d, want 1", code)
	}
}
