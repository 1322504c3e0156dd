// Package main implements the trigger-runner CLI for evaluating a single
// watch outside the API and the queue.
//
// Usage:
//
//	go run ./cmd/tools/trigger-runner --watch=wch_123
//	go run ./cmd/tools/trigger-runner --watch=wch_123 --enqueue --reason=manual
//	go run ./cmd/tools/trigger-runner --watch=wch_123 --show
//
// By default the trigger runs inline and the outcome is printed as JSON in
// the same shape the API returns. --enqueue sends a trigger message to the
// FIFO queue instead. --show prints the stored watch without triggering.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"farewatch/internal/api/handlers"
	"farewatch/internal/app"
)

type options struct {
	watchID string
	reason  string
	enqueue bool
	show    bool
}

func main() {
	opts := options{}
	flag.StringVar(&opts.watchID, "watch", "", "Watch ID to evaluate (required)")
	flag.StringVar(&opts.reason, "reason", "manual", "Reason attached to enqueued trigger messages")
	flag.BoolVar(&opts.enqueue, "enqueue", false, "Send to the trigger queue instead of running inline")
	flag.BoolVar(&opts.show, "show", false, "Print the stored watch and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: trigger-runner --watch=<id> [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Run one fare watch trigger directly, bypassing Lambda.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if opts.watchID == "" {
		fmt.Fprintf(os.Stderr, "error: --watch is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.LogLevel).With("service", "trigger-runner")

	deps, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	switch {
	case opts.show:
		w, err := deps.Watches.Get(ctx, opts.watchID)
		if err != nil {
			return err
		}
		return writeJSON(out, handlers.NewWatchView(w))
	case opts.enqueue:
		if err := deps.Queue.EnqueueTrigger(ctx, opts.watchID, opts.reason); err != nil {
			return err
		}
		fmt.Fprintf(out, "enqueued trigger for %s (reason=%s)\n", opts.watchID, opts.reason)
		return nil
	default:
		outcome, err := deps.Controller.Trigger(ctx, opts.watchID)
		if err != nil {
			return err
		}
		return writeJSON(out, handlers.NewTriggerResponse(opts.watchID, outcome))
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
