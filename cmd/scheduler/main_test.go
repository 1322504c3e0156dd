package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"farewatch/internal/scheduler"
)

type mockRunner struct {
	got scheduler.SchedulerPayload
	res scheduler.RunResult
	err error
}

func (m *mockRunner) Handle(_ context.Context, p scheduler.SchedulerPayload) (scheduler.RunResult, error) {
	m.got = p
	return m.res, m.err
}

func newHandler(r Runner) *Handler {
	return &Handler{runner: r, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHandle_EnqueueSummary(t *testing.T) {
	r := &mockRunner{res: scheduler.RunResult{Listed: 12, Enqueued: 10, Failed: 2}}

	got, err := newHandler(r).Handle(context.Background(), scheduler.SchedulerPayload{Limit: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "task enqueue_watches complete: 12 listed, 10 enqueued, 2 failed"
	if got != want {
		t.Errorf("result = %q, want %q", got, want)
	}
	if r.got.Limit != 50 {
		t.Errorf("limit not forwarded: %+v", r.got)
	}
}

func TestHandle_PurgeSummary(t *testing.T) {
	r := &mockRunner{res: scheduler.RunResult{Purged: 4}}

	got, err := newHandler(r).Handle(context.Background(), scheduler.SchedulerPayload{Task: scheduler.TaskPurgeDeleted})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "task purge_deleted complete: 4 watches purged" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestHandle_Error(t *testing.T) {
	r := &mockRunner{err: errors.New("db unavailable")}

	_, err := newHandler(r).Handle(context.Background(), scheduler.SchedulerPayload{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "enqueue_watches") || !strings.Contains(err.Error(), "db unavailable") {
		t.Errorf("unexpected error message: %v", err)
	}
}
