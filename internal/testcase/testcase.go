// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package testcase owns <testcases>/<pid>/ (§3, §4.4): lazy generation and
// caching of test-case inputs, plus checker invocation under the testlib
// exit-code convention. Grounded on
// original_source/crates/minos/src/testcase.rs, translated from
// tokio::process::Command direct spawning to the shared sandbox.Runner
// abstraction so generator/checker execution goes through the same
// resource-limited path as every other untrusted-adjacent invocation in
// this pipeline.
package testcase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/sandbox"
)

// Manager is the test-case cache and checker gateway handed to the judge
// worker.
type Manager struct {
	storage   config.Storage
	execution config.Execution
	runner    sandbox.Runner
}

func New(storage config.Storage, execution config.Execution, runner sandbox.Runner) *Manager {
	return &Manager{storage: storage, execution: execution, runner: runner}
}

// TestCase is a single materialized input/[output] pair.
type TestCase struct {
	Number     int
	InputPath  string
	OutputPath string // empty when no reference output file is cached
}

func inputName(n int) string  { return fmt.Sprintf("input_%03d.txt", n) }
func outputName(n int) string { return fmt.Sprintf("output_%03d.txt", n) }

// trustedImage is the container image generator/checker invocations run
// under when the manager's runner is a DockerRunner. Problem-setter
// binaries are semi-trusted, not contestant-supplied, so this image
// carries the problem-setter toolchain rather than the bare contestant
// runtime (§9 Open Questions). DirectRunner ignores this field entirely.
const trustedImage = "algojudge-tools:latest"

// GetOrGenerate returns count test cases for problemID, generating and
// caching them on first use (§4.4 get_or_generate). fromCache reports
// whether every input file was already present, so callers can
// distinguish a warm cache hit from a cold-generate path.
func (m *Manager) GetOrGenerate(ctx context.Context, problemID uuid.UUID, count int) (cases []TestCase, fromCache bool, err error) {
	dir := filepath.Join(m.storage.TestcasesPath, problemID.String())

	if m.allExist(dir, count) {
		if err := m.touch(dir); err != nil {
			return nil, false, err
		}
		return m.load(dir, count), true, nil
	}

	cases, err = m.generate(ctx, problemID, dir, count)
	return cases, false, err
}

func (m *Manager) allExist(dir string, count int) bool {
	for i := 1; i <= count; i++ {
		if _, err := os.Stat(filepath.Join(dir, inputName(i))); err != nil {
			return false
		}
	}
	return true
}

// touch updates .last_access's mtime to now, the stamp LastAccessOlderThan
// reads (§3 "sibling file .last_access whose mtime tracks the most recent
// judge use").
func (m *Manager) touch(dir string) error {
	marker := filepath.Join(dir, ".last_access")
	now := time.Now()
	if err := os.WriteFile(marker, []byte(now.UTC().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("testcase: touch %s: %w", dir, err)
	}
	return os.Chtimes(marker, now, now)
}

func (m *Manager) load(dir string, count int) []TestCase {
	cases := make([]TestCase, 0, count)
	for i := 1; i <= count; i++ {
		tc := TestCase{Number: i, InputPath: filepath.Join(dir, inputName(i))}
		if _, err := os.Stat(filepath.Join(dir, outputName(i))); err == nil {
			tc.OutputPath = filepath.Join(dir, outputName(i))
		}
		cases = append(cases, tc)
	}
	return cases
}

// generate runs the problem's generator binary with argument i for each
// test case 1..count, sandboxed with the generator's own (large) resource
// envelope, distinct from contestant limits (§4.4). Any single generator
// failure aborts the whole batch; partial files already written are left
// in place and will be completed on the next call, matching the original
// "no partial cache is returned" contract.
func (m *Manager) generate(ctx context.Context, problemID uuid.UUID, dir string, count int) ([]TestCase, error) {
	generatorPath := filepath.Join(m.storage.ProblemBinariesPath, problemID.String(), "generator")
	if _, err := os.Stat(generatorPath); err != nil {
		return nil, fmt.Errorf("testcase: generator not found for problem %s", problemID)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("testcase: mkdir %s: %w", dir, err)
	}

	cases := make([]TestCase, 0, count)
	for i := 1; i <= count; i++ {
		outcome, err := m.runner.Run(ctx, sandbox.Spec{
			Image:         trustedImage,
			Command:       []string{generatorPath, strconv.Itoa(i)},
			WorkDir:       dir,
			WallLimit:     time.Duration(m.execution.GeneratorTimeLimitMS) * time.Millisecond,
			MemoryLimitKB: m.execution.GeneratorMemoryLimitKB,
			StdoutCap:     64 * 1024 * 1024,
			StderrCap:     4096,
		})
		if err != nil {
			return nil, fmt.Errorf("testcase: run generator case %d: %w", i, err)
		}
		if outcome.Kind != sandbox.KindSuccess {
			return nil, fmt.Errorf("testcase: generator failed for case %d (outcome kind %d)", i, outcome.Kind)
		}

		inputPath := filepath.Join(dir, inputName(i))
		if err := os.WriteFile(inputPath, outcome.Stdout, 0o644); err != nil {
			return nil, fmt.Errorf("testcase: write %s: %w", inputPath, err)
		}
		cases = append(cases, TestCase{Number: i, InputPath: inputPath})
	}

	if err := m.touch(dir); err != nil {
		return nil, err
	}
	return cases, nil
}

// CheckerKind tags which CheckerResult variant is populated.
type CheckerKind int

const (
	CheckerAccepted CheckerKind = iota
	CheckerWrongAnswer
	CheckerPartialCredit
	CheckerJudgeError
)

// CheckerResult is the outcome of invoking a problem's checker (§4.4
// run_checker).
type CheckerResult struct {
	Kind    CheckerKind
	Comment string
	Points  float64
}

// RunChecker invokes <problem_binaries>/<pid>/checker with the testlib
// positional convention `checker <input> <output> <answer>` and interprets
// its exit code per the table in §4.4.
func (m *Manager) RunChecker(ctx context.Context, problemID uuid.UUID, inputPath, outputPath, answerPath string) (CheckerResult, error) {
	checkerPath := filepath.Join(m.storage.ProblemBinariesPath, problemID.String(), "checker")
	if _, err := os.Stat(checkerPath); err != nil {
		return CheckerResult{}, fmt.Errorf("testcase: checker not found for problem %s", problemID)
	}

	outcome, err := m.runner.Run(ctx, sandbox.Spec{
		Image:         trustedImage,
		Command:       []string{checkerPath, inputPath, outputPath, answerPath},
		WorkDir:       filepath.Dir(inputPath),
		WallLimit:     time.Duration(m.execution.CheckerTimeLimitMS) * time.Millisecond,
		MemoryLimitKB: m.execution.CheckerMemoryLimitKB,
		StdoutCap:     m.execution.CheckerOutputCapBytes,
		StderrCap:     m.execution.CheckerOutputCapBytes,
	})
	if err != nil {
		return CheckerResult{}, fmt.Errorf("testcase: run checker: %w", err)
	}

	switch outcome.Kind {
	case sandbox.KindTimeLimitExceeded:
		return CheckerResult{Kind: CheckerJudgeError, Comment: "Checker timeout"}, nil

	case sandbox.KindSuccess:
		return CheckerResult{Kind: CheckerAccepted, Comment: string(outcome.Stdout)}, nil

	case sandbox.KindRuntimeError:
		if outcome.Signal != nil {
			return CheckerResult{Kind: CheckerJudgeError, Comment: "Checker terminated by signal"}, nil
		}
		return classifyExitCode(outcome.ExitCode, outcome.StderrPrefix, string(outcome.Stdout)), nil

	default:
		return CheckerResult{Kind: CheckerJudgeError, Comment: fmt.Sprintf("unexpected checker outcome kind %d", outcome.Kind)}, nil
	}
}

func classifyExitCode(code int, stderr, stdout string) CheckerResult {
	switch code {
	case 1, 2:
		if strings.TrimSpace(stderr) != "" {
			return CheckerResult{Kind: CheckerWrongAnswer, Comment: stderr}
		}
		return CheckerResult{Kind: CheckerWrongAnswer, Comment: stdout}
	case 3:
		return CheckerResult{Kind: CheckerJudgeError, Comment: stderr}
	case 7:
		points := 0.0
		if line := firstLine(stdout); line != "" {
			if p, err := strconv.ParseFloat(strings.TrimSpace(line), 64); err == nil {
				points = p
			}
		}
		return CheckerResult{Kind: CheckerPartialCredit, Points: points, Comment: stdout}
	default:
		return CheckerResult{Kind: CheckerJudgeError, Comment: fmt.Sprintf("Checker exited with code %d: %s", code, stderr)}
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
