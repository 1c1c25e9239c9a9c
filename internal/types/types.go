// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types holds the shared domain model for the execution pipeline:
// submissions, problems, test cases, and the job/queue shapes exchanged
// between workers. It has no dependencies on any worker's business logic,
// mirroring the teacher corpus's convention of a dependency-free shared
// types package (cf. olympus-common in the reference implementation).
package types

import (
	"time"

	"github.com/google/uuid"
)

// Submission is the authoritative row from the submissions table (§3, §6).
type Submission struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	ProblemID        uuid.UUID
	ContestID        *uuid.UUID
	Status           SubmissionStatus
	SubmissionType   SubmissionKind
	Language         *string
	SourceCode       *string
	FilePath         *string
	CompilationLog   *string
	Score            *int
	MaxTimeMS        *int64
	MaxMemoryKB      *int64
	PassedTestCases  *int
	TotalTestCases   *int
	SubmittedAt      time.Time
	CompiledAt       *time.Time
	JudgedAt         *time.Time
	CreatedAt        time.Time
}

// Problem is the read-only problem record referenced by the pipeline (§3).
type Problem struct {
	ID            uuid.UUID
	TimeLimitMS   int
	MemoryLimitKB int
	NumTestCases  int
	MaxScore      *int
}

// TestCase is a single 1-indexed test case for a problem, materialized on
// disk by the test-case manager (§3, §4.4).
type TestCase struct {
	ProblemID   uuid.UUID
	Number      int
	InputPath   string
	OutputPath  string // empty if the problem has no reference output file
}

// CaseResult is one row of submission_results, produced by the judge loop
// (§4.5 step 9d) and persisted via an upsert (§4.5 step 11).
type CaseResult struct {
	SubmissionID  uuid.UUID
	CaseNumber    int
	Verdict       CaseVerdict
	TimeMS        int64
	MemoryKB      int64
	CheckerOutput *string
}

// JudgeJob is the hydrated context a judge worker needs to run one
// submission, assembled from submissions ⋈ problems (§4.5 step 2).
type JudgeJob struct {
	SubmissionID  uuid.UUID
	ProblemID     uuid.UUID
	ContestID     *uuid.UUID
	TimeLimitMS   int
	MemoryLimitKB int
	NumTestCases  int
	RetryCount    int
}

// CompileJob is the hydrated context a compiler worker needs, built from the
// queue message fields directly (§4.3 step 1) — no DB hydration is required
// beyond the source text for `source`-kind jobs.
type CompileJob struct {
	SubmissionID uuid.UUID
	JobType      SubmissionKind
	FilePath     string
	Language     string
	RetryCount   int
}

// Verdict aggregates the outcome of an entire judged submission (§4.5 step
// 10): the overall status, score, and the resource maxima observed across
// executed cases.
type Verdict struct {
	Status      SubmissionStatus
	Score       int
	PassedCount int
	TotalCount  int
	MaxTimeMS   int64
	MaxMemoryKB int64
	Cases       []CaseResult
}

// Score computes floor(100 * passed / total), or 0 when total is 0 (§4.5
// step 10, §8 boundary "num_test_cases = 0").
func Score(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return (100 * passed) / total
}
