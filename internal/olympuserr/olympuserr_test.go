// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package olympuserr

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_PassesThroughClassifiedError(t *testing.T) {
	err := User(errors.New("bad submission"))
	assert.Equal(t, CategoryUser, Classify(err))

	err = Problem(errors.New("missing generator"))
	assert.Equal(t, CategoryProblem, Classify(err))
}

func TestClassify_SyscallErrno(t *testing.T) {
	cases := []syscall.Errno{syscall.ENOSPC, syscall.EMFILE, syscall.ENOMEM, syscall.ECONNREFUSED, syscall.ETIMEDOUT}
	for _, errno := range cases {
		wrapped := fmt.Errorf("wrapped: %w", errno)
		assert.Equal(t, CategoryInfra, Classify(wrapped), "errno %v should classify as infra", errno)
	}
}

func TestClassify_SubstringTable(t *testing.T) {
	cases := []string{
		"operation timed out",
		"dial tcp: connection refused",
		"write /data: no space left on device",
		"fork/exec: resource temporarily unavailable",
		"cannot allocate memory",
		"too many open files",
	}
	for _, msg := range cases {
		assert.Equal(t, CategoryInfra, Classify(errors.New(msg)), "message %q should classify as infra", msg)
	}
}

func TestClassify_NoGroupIsProtocol(t *testing.T) {
	assert.Equal(t, CategoryProtocol, Classify(errors.New("NOGROUP No such key 'run_queue' or consumer group 'minos_group'")))
}

func TestClassify_UnknownDefaultsToInfra(t *testing.T) {
	assert.Equal(t, CategoryInfra, Classify(errors.New("some never-seen-before failure")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("connection refused")))
	assert.False(t, IsRetryable(User(errors.New("wrong answer"))))
	assert.False(t, IsRetryable(Problem(errors.New("missing checker"))))
}

func TestClassifiedError_UnwrapAndMessage(t *testing.T) {
	inner := errors.New("boom")
	wrapped := User(inner)
	assert.ErrorIs(t, wrapped, inner)
	assert.Equal(t, "user: boom", wrapped.Error())
}
