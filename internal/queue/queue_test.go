// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, isBusyGroup(errors.New("WRONGTYPE Operation against a key")))
	assert.False(t, isBusyGroup(nil))
}

func TestIsNoGroup(t *testing.T) {
	assert.True(t, isNoGroup(errors.New("NOGROUP No such key 'run_queue' or consumer group 'minos_group' in XREADGROUP")))
	assert.False(t, isNoGroup(errors.New("some other error")))
}

func TestRetryCount(t *testing.T) {
	assert.Equal(t, 0, RetryCount(map[string]string{}))
	assert.Equal(t, 0, RetryCount(map[string]string{"retry_count": "not-a-number"}))
	assert.Equal(t, 3, RetryCount(map[string]string{"retry_count": "3"}))
}
