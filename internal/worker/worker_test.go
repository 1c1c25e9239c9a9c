// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_StopsCleanlyWhenParentCancelled(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	err := Run(parent, "test-worker", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	assert.NoError(t, err)
	// the loop observes ctx.Done() before ever stepping, or steps once and
	// then notices cancellation next iteration; either is acceptable.
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestRun_PropagatesFatalStepError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(context.Background(), "test-worker", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestRun_StopsAfterCancelMidLoop(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	var calls int32

	err := Run(parent, "test-worker", func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n >= 3 {
			cancel()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(3))
}
