// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package judge implements the run_queue consumer (§4.5). Each job is
// hydrated from the database, gated on problem binary readiness, run
// against every cached test case with a first-failure short-circuit, and
// the aggregated verdict is persisted atomically. Grounded directly on
// original_source/crates/minos/src/{consumer,executor}.rs: the
// queue_pending sentinel, the per-test-case invocation contract (file
// artifact → `./binary input output`; directory artifact → `bash run.sh
// input output` with cwd at the artifact directory), and the
// retry/dead-letter branch on a general judging failure all carry over
// from that source, with real sandboxed execution (sandbox.Runner)
// replacing the unsandboxed tokio::process::Command the original used.
package judge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/metrics"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/olympuserr"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/queue"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/retrydelay"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/sandbox"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/store"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/testcase"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/types"
)

// errQueuePending is the sentinel distinguishing "problem not ready yet"
// from a genuine judging failure, mirroring the original's string-sentinel
// approach but as a typed error so callers don't do string comparison.
var errQueuePending = fmt.Errorf("judge: queue_pending")

func deadLetterStream(runStream string) string { return runStream + "_dlq" }

// Worker drains run_queue. Contestant artifacts and problem-setter
// generators/checkers sit in different trust tiers (§9 Open Questions
// resolution): contestant code always runs through contestantRunner, a
// mandatory DockerRunner, while the generator/checker pair runs through
// testcase's own runner, which may be a DockerRunner with a separate
// pre-vetted image or (configured explicitly, never auto-detected) a
// DirectRunner.
type Worker struct {
	cfg              *config.MinosConfig
	q                *queue.Client
	store            *store.Store
	contestantRunner sandbox.Runner
	testcase         *testcase.Manager
}

func New(cfg *config.MinosConfig, q *queue.Client, st *store.Store, contestantRunner, trustedRunner sandbox.Runner) *Worker {
	return &Worker{
		cfg:              cfg,
		q:                q,
		store:            st,
		contestantRunner: contestantRunner,
		testcase:         testcase.New(cfg.Storage, cfg.Execution, trustedRunner),
	}
}

// Initialize creates the run_queue and dead-letter consumer groups, and
// claims any messages abandoned by a dead consumer before the loop starts
// (§4.5 step 0 / consumer.rs run()'s claim_pending_messages call).
func (w *Worker) Initialize(ctx context.Context) error {
	if err := w.q.EnsureGroup(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup); err != nil {
		return err
	}
	if err := w.q.EnsureGroup(ctx, deadLetterStream(w.cfg.StreamName), w.cfg.ConsumerGroup); err != nil {
		return err
	}

	claimed, err := w.q.ClaimAbandoned(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup, w.cfg.WorkerID, 60*time.Second, 10)
	if err != nil && err != queue.ErrGroupMissing {
		return err
	}
	for _, msg := range claimed {
		logging.Info("claimed abandoned message", zap.String("message_id", msg.ID))
		w.process(ctx, &msg)
	}
	return nil
}

// Step reads and processes at most one run_queue message.
func (w *Worker) Step(ctx context.Context) error {
	msg, err := w.q.ReadNext(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup, w.cfg.WorkerID, w.cfg.BlockTimeout)
	if err != nil {
		if err == queue.ErrGroupMissing {
			logging.Warn("run_queue consumer group missing, recreating")
			return w.Initialize(ctx)
		}
		return nil
	}
	if msg == nil {
		return nil
	}

	w.process(ctx, msg)
	return nil
}

func (w *Worker) process(ctx context.Context, msg *queue.Message) {
	submissionID, err := uuid.Parse(msg.Fields["submission_id"])
	if err != nil {
		logging.Error("run_queue: missing or invalid submission_id, dropping", zap.String("message_id", msg.ID), zap.Error(err))
		_ = w.q.Ack(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup, msg.ID)
		return
	}
	retryCount := queue.RetryCount(msg.Fields)

	job, err := w.store.HydrateJudgeJob(ctx, submissionID)
	if err != nil {
		// A missing submission row can never be judged: dead-letter the
		// message and ACK it. Any other hydration error (e.g. the database
		// being unreachable) leaves the message unacknowledged so a later
		// XCLAIM retries it.
		logging.Error("failed to hydrate judge job", zap.String("submission_id", submissionID.String()), zap.Error(err))
		if errors.Is(err, store.ErrNotFound) {
			fields := map[string]string{"submission_id": submissionID.String(), "retry_count": fmt.Sprintf("%d", retryCount)}
			if _, dlqErr := w.q.SendToDeadLetter(ctx, deadLetterStream(w.cfg.StreamName), fields, err); dlqErr != nil {
				logging.Error("failed to send to dead letter", zap.String("submission_id", submissionID.String()), zap.Error(dlqErr))
				return
			}
			_ = w.q.Ack(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup, msg.ID)
		}
		return
	}
	job.RetryCount = retryCount

	log := logging.With(zap.String("submission_id", job.SubmissionID.String()), zap.String("problem_id", job.ProblemID.String()), zap.String("message_id", msg.ID))
	log.Info("processing judge job")

	metrics.ActiveJobs.Inc()
	verdict, err := w.judgeSubmission(ctx, job)
	metrics.ActiveJobs.Dec()

	switch {
	case err == nil:
		if err := w.store.PersistVerdict(ctx, job.SubmissionID, *verdict); err != nil {
			log.Error("failed to persist verdict", zap.Error(err))
			return
		}
		metrics.JobsProcessed.Inc()
		metrics.VerdictTotal.WithLabelValues(string(verdict.Status)).Inc()
		metrics.ExecutionDuration.WithLabelValues(job.ProblemID.String()).Observe(float64(verdict.MaxTimeMS) / 1000.0)
		metrics.MemoryUsage.WithLabelValues(job.ProblemID.String()).Observe(float64(verdict.MaxMemoryKB) * 1024)
		_ = w.q.Ack(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup, msg.ID)
		log.Info("submission judged", zap.String("status", string(verdict.Status)), zap.Int("passed", verdict.PassedCount), zap.Int("total", verdict.TotalCount))

	case err == errQueuePending:
		metrics.JobsProcessed.Inc()
		_ = w.q.Ack(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup, msg.ID)
		log.Info("submission deferred (queue_pending) — binaries not ready")

	default:
		metrics.JobsFailed.Inc()
		log.Error("failed to judge submission", zap.Error(err))
		w.handleFailure(ctx, log, msg, job, err)
	}
}

func (w *Worker) handleFailure(ctx context.Context, log *zap.Logger, msg *queue.Message, job *types.JudgeJob, judgeErr error) {
	fields := map[string]string{
		"submission_id": job.SubmissionID.String(),
		"retry_count":   fmt.Sprintf("%d", job.RetryCount+1),
	}

	if job.RetryCount < w.cfg.MaxRetries {
		delay := retrydelay.For(w.cfg.RetryBaseDelay, job.RetryCount)
		log.Warn("retrying judge job after delay", zap.Error(judgeErr), zap.Duration("delay", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		if _, err := w.q.Enqueue(ctx, w.cfg.StreamName, fields); err != nil {
			log.Error("failed to re-queue judge job", zap.Error(err))
			return
		}
	} else {
		log.Error("max retries exceeded, moving to dead letter queue")
		if _, err := w.q.SendToDeadLetter(ctx, deadLetterStream(w.cfg.StreamName), fields, judgeErr); err != nil {
			log.Error("failed to send to dead letter", zap.Error(err))
			return
		}
		if err := w.store.SetStatus(ctx, job.SubmissionID, types.StatusSystemError); err != nil {
			log.Error("failed to record system_error status", zap.Error(err))
			return
		}
	}
	_ = w.q.Ack(ctx, w.cfg.StreamName, w.cfg.ConsumerGroup, msg.ID)
}

// judgeSubmission runs the readiness gate, then the per-test-case loop,
// returning errQueuePending when the problem is not yet ready (§4.5 step 3).
func (w *Worker) judgeSubmission(ctx context.Context, job *types.JudgeJob) (*types.Verdict, error) {
	ready, err := w.problemBinariesReady(job.ProblemID)
	if err != nil {
		return nil, olympuserr.Infra(err)
	}
	if !ready {
		if err := w.store.SetQueuePending(ctx, job.SubmissionID); err != nil {
			return nil, olympuserr.Infra(err)
		}
		return nil, errQueuePending
	}

	binaryPath := filepath.Join(w.cfg.Storage.BinariesPath, job.SubmissionID.String()+"_bin")
	isDir, err := prepareArtifact(binaryPath)
	if err != nil {
		return nil, olympuserr.User(err)
	}

	if err := w.store.MarkJudging(ctx, job.SubmissionID); err != nil {
		return nil, olympuserr.Infra(err)
	}

	tempDir := filepath.Join(w.cfg.Storage.TempPath, job.SubmissionID.String())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, olympuserr.Infra(fmt.Errorf("judge: create temp dir: %w", err))
	}
	defer os.RemoveAll(tempDir)

	cases, fromCache, err := w.testcase.GetOrGenerate(ctx, job.ProblemID, job.NumTestCases)
	if err != nil {
		return nil, olympuserr.Problem(fmt.Errorf("judge: generator failed: %w", err))
	}
	if fromCache {
		metrics.TestcaseCacheHit.Inc()
	} else {
		metrics.TestcaseCacheMiss.Inc()
		metrics.TestcasesGenerated.Add(float64(len(cases)))
	}

	results := make([]types.CaseResult, 0, len(cases))
	var maxTimeMS, maxMemoryKB int64

	for _, tc := range cases {
		outputPath := filepath.Join(tempDir, fmt.Sprintf("output_%03d.txt", tc.Number))

		start := time.Now()
		outcome, err := w.runArtifact(ctx, binaryPath, isDir, tc.InputPath, outputPath, job)
		elapsedMS := time.Since(start).Milliseconds()

		if err != nil {
			results = append(results, types.CaseResult{SubmissionID: job.SubmissionID, CaseNumber: tc.Number, Verdict: types.VerdictJudgeError})
			break
		}

		result, stop := w.classifyOutcome(ctx, job, tc, outcome, outputPath, elapsedMS)
		results = append(results, result)

		if result.TimeMS > maxTimeMS {
			maxTimeMS = result.TimeMS
		}
		if result.MemoryKB > maxMemoryKB {
			maxMemoryKB = result.MemoryKB
		}
		if stop {
			break
		}
	}

	return aggregate(results, len(cases)), nil
}

// prepareArtifact makes the compiled artifact executable and reports
// whether it is a directory (interpreted-language run.sh artifact) or a
// single binary file (§4.5 step 4 / executor.rs execute's permission
// handling).
func prepareArtifact(binaryPath string) (isDir bool, err error) {
	info, err := os.Stat(binaryPath)
	if err != nil {
		return false, fmt.Errorf("judge: binary not found for submission: %w", err)
	}

	if info.IsDir() {
		runSH := filepath.Join(binaryPath, "run.sh")
		if _, err := os.Stat(runSH); err != nil {
			return false, fmt.Errorf("judge: interpreted submission directory missing run.sh: %s", binaryPath)
		}
		if err := os.Chmod(runSH, 0o755); err != nil {
			return false, fmt.Errorf("judge: chmod run.sh: %w", err)
		}
		return true, nil
	}

	if err := os.Chmod(binaryPath, 0o755); err != nil {
		return false, fmt.Errorf("judge: chmod binary: %w", err)
	}
	return false, nil
}

// runArtifact invokes the artifact per §4.4's two calling conventions.
func (w *Worker) runArtifact(ctx context.Context, binaryPath string, isDir bool, inputPath, outputPath string, job *types.JudgeJob) (sandbox.Outcome, error) {
	var cmd []string
	workDir := filepath.Dir(inputPath)
	if isDir {
		cmd = []string{"bash", filepath.Join(binaryPath, "run.sh"), inputPath, outputPath}
		workDir = binaryPath
	} else {
		cmd = []string{binaryPath, inputPath, outputPath}
	}

	timeLimit := time.Duration(job.TimeLimitMS) * time.Millisecond
	return w.contestantRunner.Run(ctx, sandbox.Spec{
		Image:         "algojudge-run:latest",
		WorkDir:       workDir,
		Command:       cmd,
		WallLimit:     timeLimit,
		MemoryLimitKB: int64(job.MemoryLimitKB),
		StdoutCap:     4096,
		StderrCap:     4096,
	})
}

// classifyOutcome maps a sandbox.Outcome plus (on success) checker
// invocation onto a persisted CaseResult, and reports whether the
// per-test-case loop should stop (§4.5 step 9).
func (w *Worker) classifyOutcome(ctx context.Context, job *types.JudgeJob, tc testcase.TestCase, outcome sandbox.Outcome, outputPath string, elapsedMS int64) (types.CaseResult, bool) {
	base := types.CaseResult{SubmissionID: job.SubmissionID, CaseNumber: tc.Number, TimeMS: elapsedMS}

	switch outcome.Kind {
	case sandbox.KindTimeLimitExceeded:
		base.Verdict = types.VerdictTimeLimitExceeded
		base.TimeMS = int64(job.TimeLimitMS)
		return base, true

	case sandbox.KindMemoryLimitExceeded:
		base.Verdict = types.VerdictMemoryLimitExceeded
		base.MemoryKB = outcome.PeakMemoryKB
		return base, true

	case sandbox.KindRuntimeError:
		base.Verdict = types.VerdictRuntimeError
		base.MemoryKB = outcome.PeakMemoryKB
		comment := outcome.StderrPrefix
		base.CheckerOutput = &comment
		return base, true

	case sandbox.KindSuccess:
		base.MemoryKB = outcome.PeakMemoryKB
		if info, err := os.Stat(outputPath); err == nil && info.Size() > w.cfg.Execution.OutputLimitBytes {
			base.Verdict = types.VerdictOutputLimitExceeded
			return base, true
		}

		// Pass input as "answer" for interoperability with checkers that
		// expect a three-argument invocation but derive expectations from
		// the input itself (§4.4, executor.rs run_testcase).
		checkerResult, err := w.testcase.RunChecker(ctx, job.ProblemID, tc.InputPath, outputPath, tc.InputPath)
		if err != nil {
			base.Verdict = types.VerdictJudgeError
			return base, true
		}

		switch checkerResult.Kind {
		case testcase.CheckerAccepted:
			base.Verdict = types.VerdictAccepted
			return base, false
		case testcase.CheckerWrongAnswer, testcase.CheckerPartialCredit:
			base.Verdict = types.VerdictWrongAnswer
			comment := checkerResult.Comment
			base.CheckerOutput = &comment
			return base, true
		default:
			base.Verdict = types.VerdictJudgeError
			comment := checkerResult.Comment
			base.CheckerOutput = &comment
			return base, true
		}

	default:
		base.Verdict = types.VerdictJudgeError
		return base, true
	}
}

// aggregate builds the Verdict from the ordered per-case results,
// mirroring SubmissionResult::from_testcases: the status is the verdict
// of the last recorded case when the loop stopped early, or accepted when
// every case up to total was recorded and the last is accepted.
func aggregate(results []types.CaseResult, total int) *types.Verdict {
	// A problem with zero test cases can never be meaningfully accepted
	// (§8 boundary "num_test_cases = 0" → system_error, score 0).
	if total == 0 {
		return &types.Verdict{Status: types.StatusSystemError, Cases: results}
	}

	passed := 0
	var maxTimeMS, maxMemoryKB int64
	status := types.StatusAccepted

	for _, r := range results {
		if r.Verdict == types.VerdictAccepted {
			passed++
		} else {
			status = r.Verdict.SubmissionStatus()
		}
		if r.TimeMS > maxTimeMS {
			maxTimeMS = r.TimeMS
		}
		if r.MemoryKB > maxMemoryKB {
			maxMemoryKB = r.MemoryKB
		}
	}

	return &types.Verdict{
		Status:      status,
		Score:       types.Score(passed, total),
		PassedCount: passed,
		TotalCount:  total,
		MaxTimeMS:   maxTimeMS,
		MaxMemoryKB: maxMemoryKB,
		Cases:       results,
	}
}

func (w *Worker) problemBinariesReady(problemID uuid.UUID) (bool, error) {
	generator := filepath.Join(w.cfg.Storage.ProblemBinariesPath, problemID.String(), "generator")
	checker := filepath.Join(w.cfg.Storage.ProblemBinariesPath, problemID.String(), "checker")
	if _, err := os.Stat(generator); err != nil {
		return false, nil
	}
	if _, err := os.Stat(checker); err != nil {
		return false, nil
	}
	return true, nil
}
