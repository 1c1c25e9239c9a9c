// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package worker provides the signal-driven run loop shared by the two
// consumer-group workers, sisyphus and minos (§9.1). Grounded on the teacher corpus's
// pkg/storage/cleanup.go ticker-plus-stop-channel shape, generalized from
// a single ticker to an arbitrary per-iteration step function and an
// os/signal-driven cancellation source instead of an explicit Stop()
// call, since each worker here is a standalone process rather than a
// library embedded in a longer-lived host.
package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
)

// Step runs one unit of work and returns an error only for conditions the
// caller considers fatal to the whole process; ordinary per-job failures
// are expected to be handled (logged, retried, DLQ'd) inside Step itself.
type Step func(ctx context.Context) error

// Run installs a SIGINT/SIGTERM handler, then calls step in a loop until
// ctx is cancelled or step returns a non-nil error. On cancellation it
// lets the in-flight Step call observe ctx.Done() and return before
// Run itself returns, so a worker mid-job gets the chance to finish
// acknowledging or releasing that job rather than being killed outright
// (§9.1 "graceful shutdown: finish the in-flight job, then exit").
func Run(parent context.Context, name string, step Step) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("worker started", zap.String("worker", name))

	for {
		select {
		case <-ctx.Done():
			logging.Info("worker shutting down", zap.String("worker", name))
			return nil
		default:
		}

		if err := step(ctx); err != nil {
			if ctx.Err() != nil {
				logging.Info("worker shutting down", zap.String("worker", name))
				return nil
			}
			logging.Error("worker step failed fatally", zap.String("worker", name), zap.Error(err))
			return err
		}
	}
}
