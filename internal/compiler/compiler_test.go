// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/olympuserr"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/types"
)

func TestDeadLetterStream(t *testing.T) {
	assert.Equal(t, "compile_queue_dead_letter", deadLetterStream("compile_queue"))
}

func TestLanguageTable_CoversExpectedLanguages(t *testing.T) {
	for _, lang := range []string{"cpp", "c++", "c", "rust", "go", "python", "zig"} {
		spec, ok := languageTable[lang]
		require.True(t, ok, "missing language %q", lang)
		assert.NotEmpty(t, spec.file)
		assert.NotEmpty(t, spec.cmd)
	}
}

func TestJobFieldsAndParseJob_RoundTrip(t *testing.T) {
	job := types.CompileJob{
		SubmissionID: uuid.New(),
		JobType:      types.KindSource,
		FilePath:     "/data/temp/x/main.cpp",
		Language:     "cpp",
		RetryCount:   2,
	}

	fields := jobFields(job)
	parsed, err := parseJob(fields)
	require.NoError(t, err)

	assert.Equal(t, job.SubmissionID, parsed.SubmissionID)
	assert.Equal(t, job.JobType, parsed.JobType)
	assert.Equal(t, job.FilePath, parsed.FilePath)
	assert.Equal(t, job.Language, parsed.Language)
	assert.Equal(t, job.RetryCount, parsed.RetryCount)
}

func TestParseJob_MissingSubmissionID(t *testing.T) {
	_, err := parseJob(map[string]string{"type": "source"})
	assert.Error(t, err)
}

func TestParseJob_DefaultsToArchiveType(t *testing.T) {
	job, err := parseJob(map[string]string{"submission_id": uuid.New().String()})
	require.NoError(t, err)
	assert.Equal(t, types.KindArchive, job.JobType)
}

func TestSaveBinary_PrefersFirstMatchInSearchOrder(t *testing.T) {
	buildDir := t.TempDir()
	binariesDir := t.TempDir()

	// "a.out" and "solution" both present; binaryNames puts "main" first,
	// so it should never be reached here and "a.out" should win.
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "a.out"), []byte("binary-a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "solution"), []byte("binary-b"), 0o644))

	w := &Worker{cfg: &config.SisyphusConfig{Storage: config.Storage{BinariesPath: binariesDir}}}
	job := types.CompileJob{SubmissionID: uuid.New()}

	destPath, err := w.saveBinary(job, buildDir, false)
	require.NoError(t, err)

	content, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, "binary-a", string(content))
}

func TestSaveBinary_FallsBackToRunSHDirectory(t *testing.T) {
	buildDir := t.TempDir()
	binariesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "run.sh"), []byte("#!/bin/sh\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(buildDir, "main.py"), []byte("print(1)"), 0o644))

	w := &Worker{cfg: &config.SisyphusConfig{Storage: config.Storage{BinariesPath: binariesDir}}}
	job := types.CompileJob{SubmissionID: uuid.New()}

	destPath, err := w.saveBinary(job, buildDir, true)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(destPath, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestSaveBinary_NoBinaryNoRunSHIsUserError(t *testing.T) {
	buildDir := t.TempDir()
	binariesDir := t.TempDir()

	w := &Worker{cfg: &config.SisyphusConfig{Storage: config.Storage{BinariesPath: binariesDir}}}
	job := types.CompileJob{SubmissionID: uuid.New()}

	_, err := w.saveBinary(job, buildDir, false)
	assert.Error(t, err)
	assert.Equal(t, olympuserr.CategoryUser, olympuserr.Classify(err))
}
