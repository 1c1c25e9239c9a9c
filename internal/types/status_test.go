// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmissionStatus_Terminal(t *testing.T) {
	terminal := []SubmissionStatus{StatusAccepted, StatusWrongAnswer, StatusTimeLimit, StatusMemoryLimit, StatusRuntimeError, StatusSystemError}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	nonTerminal := []SubmissionStatus{StatusPending, StatusCompiling, StatusCompiled, StatusCompilationError, StatusQueuePending, StatusJudging}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestSubmissionStatus_Active(t *testing.T) {
	active := []SubmissionStatus{StatusPending, StatusCompiling, StatusCompiled, StatusJudging, StatusQueuePending}
	for _, s := range active {
		assert.True(t, s.Active(), "%s should be active", s)
	}

	assert.False(t, StatusAccepted.Active())
	assert.False(t, StatusCompilationError.Active())
}

func TestCaseVerdict_SubmissionStatus(t *testing.T) {
	cases := map[CaseVerdict]SubmissionStatus{
		VerdictAccepted:            StatusAccepted,
		VerdictWrongAnswer:         StatusWrongAnswer,
		VerdictTimeLimitExceeded:   StatusTimeLimit,
		VerdictMemoryLimitExceeded: StatusMemoryLimit,
		VerdictRuntimeError:        StatusRuntimeError,
		VerdictOutputLimitExceeded: StatusRuntimeError,
		VerdictJudgeError:          StatusSystemError,
	}
	for verdict, want := range cases {
		assert.Equal(t, want, verdict.SubmissionStatus(), "verdict %s", verdict)
	}
}
