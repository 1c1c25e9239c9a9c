// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package judge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/types"
)

func TestPrepareArtifact_FileBinary(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "main")
	require.NoError(t, os.WriteFile(binPath, []byte("#!/bin/sh\necho ok\n"), 0o644))

	isDir, err := prepareArtifact(binPath)
	require.NoError(t, err)
	assert.False(t, isDir)

	info, err := os.Stat(binPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestPrepareArtifact_DirectoryRequiresRunSH(t *testing.T) {
	dir := t.TempDir()
	_, err := prepareArtifact(dir)
	assert.Error(t, err)
}

func TestPrepareArtifact_DirectoryWithRunSH(t *testing.T) {
	dir := t.TempDir()
	runSH := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(runSH, []byte("#!/bin/sh\npython3 main.py \"$@\"\n"), 0o644))

	isDir, err := prepareArtifact(dir)
	require.NoError(t, err)
	assert.True(t, isDir)

	info, err := os.Stat(runSH)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestPrepareArtifact_MissingPath(t *testing.T) {
	_, err := prepareArtifact(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestAggregate_ZeroTestCasesIsSystemError(t *testing.T) {
	v := aggregate(nil, 0)
	assert.Equal(t, types.StatusSystemError, v.Status)
	assert.Equal(t, 0, v.Score)
}

func TestAggregate_AllAcceptedScoresHundred(t *testing.T) {
	results := []types.CaseResult{
		{CaseNumber: 1, Verdict: types.VerdictAccepted, TimeMS: 10, MemoryKB: 1024},
		{CaseNumber: 2, Verdict: types.VerdictAccepted, TimeMS: 25, MemoryKB: 2048},
	}
	v := aggregate(results, 2)
	assert.Equal(t, types.StatusAccepted, v.Status)
	assert.Equal(t, 100, v.Score)
	assert.Equal(t, 2, v.PassedCount)
	assert.Equal(t, 2, v.TotalCount)
	assert.Equal(t, int64(25), v.MaxTimeMS)
	assert.Equal(t, int64(2048), v.MaxMemoryKB)
}

func TestAggregate_WrongAnswerShortCircuit(t *testing.T) {
	// Exactly one case ran before the short-circuit stopped the loop, but
	// the problem is configured for two test cases in total.
	results := []types.CaseResult{
		{CaseNumber: 1, Verdict: types.VerdictWrongAnswer, TimeMS: 5, MemoryKB: 512},
	}
	v := aggregate(results, 2)
	assert.Equal(t, types.StatusWrongAnswer, v.Status)
	assert.Equal(t, 0, v.PassedCount)
	assert.Equal(t, 2, v.TotalCount)
	assert.Equal(t, 0, v.Score)
	assert.Len(t, v.Cases, 1)
}

func TestAggregate_JudgeErrorBecomesSystemError(t *testing.T) {
	results := []types.CaseResult{
		{CaseNumber: 1, Verdict: types.VerdictJudgeError},
	}
	v := aggregate(results, 3)
	assert.Equal(t, types.StatusSystemError, v.Status)
}

func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "run_queue_dlq", deadLetterStream("run_queue"))
}
