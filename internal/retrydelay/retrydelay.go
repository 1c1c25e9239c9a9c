// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package retrydelay computes the exponential backoff interval shared by
// the compile-queue and run-queue consumers (§4.3/§4.5: "wait base *
// 2^retry_count ms then re-enqueue"). The cenkalti/backoff/v5
// ExponentialBackOff generator is the idiom the mycelian-memory example
// repo uses for this exact shape (fresh backoff per attempt, zero
// jitter, doubling multiplier) rather than hand-rolled bit-shift math.
package retrydelay

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// For computes base*2^retryCount by driving a freshly seeded
// ExponentialBackOff with RandomizationFactor 0, discarding every
// interval but the last. retryCount is small (bounded by MaxRetries),
// so replaying the sequence from scratch each call costs nothing and
// keeps the result a pure function of (base, retryCount) instead of
// accumulating state across calls.
func For(base time.Duration, retryCount int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = time.Hour

	delay := base
	for i := 0; i <= retryCount; i++ {
		d := eb.NextBackOff()
		if d == backoff.Stop {
			break
		}
		delay = d
	}
	return delay
}
