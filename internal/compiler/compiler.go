// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package compiler implements the compile_queue consumer (§4.3). It
// extracts or materializes a submission, runs its language-specific
// build under the shared sandbox.Runner, locates the resulting artifact,
// and either enqueues the submission for judging or records a durable
// failure. Grounded directly on
// original_source/crates/sisyphus/src/{compiler,consumer}.rs: the
// language-to-compile-command table, the binary_names search order, and
// the retry/backoff/dead-letter state machine all carry over from that
// source, with the build command run through sandbox.Runner instead of
// an unsandboxed tokio::process::Command, since untrusted build scripts
// get the same isolation as the run step (§9 Open Questions). Archives
// are validated and extracted in-process by internal/archive.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/archive"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/olympuserr"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/queue"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/retrydelay"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/sandbox"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/store"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/types"
)

// binaryNames is the search order for a freshly built archive submission's
// artifact, identical to the original compiler's "main", "a.out",
// "solution", "run" table.
var binaryNames = []string{"main", "a.out", "solution", "run"}

// languageTable maps a source-kind submission's language to the file it
// is written to and the command that builds or checks it, carried over
// verbatim from get_compile_command.
type langSpec struct {
	file string
	cmd  []string
}

var languageTable = map[string]langSpec{
	"cpp":    {"main.cpp", []string{"g++", "-O2", "-std=c++17", "-o", "main", "main.cpp"}},
	"c++":    {"main.cpp", []string{"g++", "-O2", "-std=c++17", "-o", "main", "main.cpp"}},
	"c":      {"main.c", []string{"gcc", "-O2", "-std=c11", "-o", "main", "main.c"}},
	"rust":   {"main.rs", []string{"rustc", "-O", "-o", "main", "main.rs"}},
	"go":     {"main.go", []string{"go", "build", "-o", "main", "main.go"}},
	"python": {"main.py", []string{"python3", "-m", "py_compile", "main.py"}},
	"zig":    {"main.zig", []string{"zig", "build-exe", "-O", "ReleaseFast", "main.zig"}},
}

// deadLetterStream suffixes the configured compile stream, mirroring
// "{compile_stream}_dead_letter".
func deadLetterStream(compileStream string) string { return compileStream + "_dead_letter" }

// Worker drains compile_queue: extract or write source, build, locate and
// install the artifact, then hand off to run_queue or record failure.
type Worker struct {
	cfg    *config.SisyphusConfig
	q      *queue.Client
	store  *store.Store
	runner sandbox.Runner
}

func New(cfg *config.SisyphusConfig, q *queue.Client, st *store.Store, runner sandbox.Runner) *Worker {
	return &Worker{cfg: cfg, q: q, store: st, runner: runner}
}

// Initialize creates the compile_queue and dead-letter consumer groups,
// tolerating either already existing (§4.3 step 0 / consumer.rs initialize).
func (w *Worker) Initialize(ctx context.Context) error {
	if err := w.q.EnsureGroup(ctx, w.cfg.CompileStream, w.cfg.ConsumerGroup); err != nil {
		return err
	}
	return w.q.EnsureGroup(ctx, deadLetterStream(w.cfg.CompileStream), w.cfg.ConsumerGroup)
}

// Step reads and processes at most one compile_queue message. A nil error
// with no message read is a normal idle tick.
func (w *Worker) Step(ctx context.Context) error {
	msg, err := w.q.ReadNext(ctx, w.cfg.CompileStream, w.cfg.ConsumerGroup, w.cfg.ConsumerName, w.cfg.BlockTimeout)
	if err != nil {
		if err == queue.ErrGroupMissing {
			logging.Warn("compile_queue consumer group missing, recreating")
			return w.Initialize(ctx)
		}
		return nil // infra hiccup reading the stream; retry next tick
	}
	if msg == nil {
		return nil
	}

	w.process(ctx, msg)
	return nil
}

func (w *Worker) process(ctx context.Context, msg *queue.Message) {
	job, err := parseJob(msg.Fields)
	if err != nil {
		logging.Error("compile_queue: malformed message, dropping", zap.String("message_id", msg.ID), zap.Error(err))
		_ = w.q.Ack(ctx, w.cfg.CompileStream, w.cfg.ConsumerGroup, msg.ID)
		return
	}

	log := logging.With(zap.String("submission_id", job.SubmissionID.String()), zap.String("message_id", msg.ID), zap.Int("retry_count", job.RetryCount))
	log.Info("processing compilation job")

	if err := w.store.SetStatus(ctx, job.SubmissionID, types.StatusCompiling); err != nil {
		log.Error("failed to mark compiling", zap.Error(err))
		return
	}

	binaryPath, compileErr := w.compile(ctx, job)
	if compileErr == nil {
		log.Info("compilation successful", zap.String("binary_path", binaryPath))
		if err := w.store.RecordCompiled(ctx, job.SubmissionID, binaryPath); err != nil {
			log.Error("failed to record compiled status", zap.Error(err))
			return
		}
		if _, err := w.q.Enqueue(ctx, w.cfg.RunStream, map[string]string{
			"submission_id": job.SubmissionID.String(),
			"binary_path":   binaryPath,
		}); err != nil {
			log.Error("failed to enqueue run_queue job", zap.Error(err))
			return
		}
		_ = w.q.Ack(ctx, w.cfg.CompileStream, w.cfg.ConsumerGroup, msg.ID)
		return
	}

	w.handleFailure(ctx, log, msg, job, compileErr)
}

// handleFailure implements the exponential-backoff-then-dead-letter state
// machine from consumer.rs process_next_job's error branch.
func (w *Worker) handleFailure(ctx context.Context, log *zap.Logger, msg *queue.Message, job types.CompileJob, compileErr error) {
	retryable := olympuserr.IsRetryable(compileErr)

	switch {
	case retryable && job.RetryCount < w.cfg.MaxRetries:
		job.RetryCount++
		delay := retrydelay.For(w.cfg.RetryBaseDelay, job.RetryCount-1)
		log.Warn("retrying compilation after delay", zap.Error(compileErr), zap.Int("retry_count", job.RetryCount), zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		if _, err := w.q.Enqueue(ctx, w.cfg.CompileStream, jobFields(job)); err != nil {
			log.Error("failed to re-queue compile job", zap.Error(err))
			return
		}
		_ = w.q.Ack(ctx, w.cfg.CompileStream, w.cfg.ConsumerGroup, msg.ID)

	case retryable:
		log.Error("max retries exceeded, moving to dead letter queue", zap.Error(compileErr))
		if _, err := w.q.SendToDeadLetter(ctx, deadLetterStream(w.cfg.CompileStream), jobFields(job), compileErr); err != nil {
			log.Error("failed to send to dead letter", zap.Error(err))
			return
		}
		if err := w.store.RecordCompilationError(ctx, job.SubmissionID, fmt.Sprintf("Max retries exceeded: %v", compileErr)); err != nil {
			log.Error("failed to record compilation error", zap.Error(err))
			return
		}
		_ = w.q.Ack(ctx, w.cfg.CompileStream, w.cfg.ConsumerGroup, msg.ID)

	default:
		log.Warn("compilation failed (non-retryable)", zap.Error(compileErr))
		if err := w.store.RecordCompilationError(ctx, job.SubmissionID, compileErr.Error()); err != nil {
			log.Error("failed to record compilation error", zap.Error(err))
			return
		}
		_ = w.q.Ack(ctx, w.cfg.CompileStream, w.cfg.ConsumerGroup, msg.ID)
	}
}

func jobFields(job types.CompileJob) map[string]string {
	fields := map[string]string{
		"submission_id": job.SubmissionID.String(),
		"type":          string(job.JobType),
		"retry_count":   strconv.Itoa(job.RetryCount),
	}
	if job.FilePath != "" {
		fields["file_path"] = job.FilePath
	}
	if job.Language != "" {
		fields["language"] = job.Language
	}
	return fields
}

func parseJob(fields map[string]string) (types.CompileJob, error) {
	raw, ok := fields["submission_id"]
	if !ok {
		return types.CompileJob{}, fmt.Errorf("compiler: missing submission_id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return types.CompileJob{}, fmt.Errorf("compiler: invalid submission_id: %w", err)
	}

	jobType := types.KindArchive
	if fields["type"] == "source" {
		jobType = types.KindSource
	}

	return types.CompileJob{
		SubmissionID: id,
		JobType:      jobType,
		FilePath:     fields["file_path"],
		Language:     fields["language"],
		RetryCount:   queue.RetryCount(fields),
	}, nil
}

// compile dispatches on job type and returns the installed binary path.
func (w *Worker) compile(ctx context.Context, job types.CompileJob) (string, error) {
	buildDir, err := os.MkdirTemp(w.cfg.Storage.TempPath, "build-*")
	if err != nil {
		return "", olympuserr.Infra(fmt.Errorf("compiler: create build dir: %w", err))
	}
	defer os.RemoveAll(buildDir)

	switch job.JobType {
	case types.KindArchive:
		return w.compileArchive(ctx, job, buildDir)
	case types.KindSource:
		return w.compileSource(ctx, job, buildDir)
	default:
		return "", olympuserr.Userf("compiler: unknown job type %q", job.JobType)
	}
}

func (w *Worker) compileArchive(ctx context.Context, job types.CompileJob, buildDir string) (string, error) {
	manifest, err := archive.Validate(job.FilePath)
	if err != nil {
		return "", olympuserr.User(fmt.Errorf("compiler: archive validation: %w", err))
	}
	if err := archive.Extract(manifest, buildDir); err != nil {
		return "", olympuserr.Infra(fmt.Errorf("compiler: extract: %w", err))
	}

	compileScript := filepath.Join(buildDir, "compile.sh")
	if err := os.Chmod(compileScript, 0o755); err != nil {
		return "", olympuserr.Infra(fmt.Errorf("compiler: chmod compile.sh: %w", err))
	}

	outcome, err := w.runCompile(ctx, []string{"./compile.sh"}, buildDir)
	if err != nil {
		return "", err
	}
	if outcome.Kind != sandbox.KindSuccess {
		return "", olympuserr.User(fmt.Errorf("compilation failed:\n%s", outcome.StderrPrefix))
	}

	return w.saveBinary(job, buildDir, manifest.HasRunSH)
}

func (w *Worker) compileSource(ctx context.Context, job types.CompileJob, buildDir string) (string, error) {
	rec, err := w.store.GetSourceCode(ctx, job.SubmissionID)
	if err != nil {
		if err == store.ErrNotFound {
			return "", olympuserr.User(fmt.Errorf("compiler: submission %s not found", job.SubmissionID))
		}
		return "", olympuserr.Infra(fmt.Errorf("compiler: fetch source: %w", err))
	}

	lang := job.Language
	if lang == "" {
		lang = rec.Language
	}
	spec, ok := languageTable[lang]
	if !ok {
		return "", olympuserr.Userf("compiler: unsupported language %q", lang)
	}

	if err := os.WriteFile(filepath.Join(buildDir, spec.file), []byte(rec.SourceCode), 0o644); err != nil {
		return "", olympuserr.Infra(fmt.Errorf("compiler: write source: %w", err))
	}

	outcome, err := w.runCompile(ctx, spec.cmd, buildDir)
	if err != nil {
		return "", err
	}
	if outcome.Kind != sandbox.KindSuccess {
		return "", olympuserr.User(fmt.Errorf("compilation failed:\n%s", outcome.StderrPrefix))
	}

	return w.saveBinary(job, buildDir, false)
}

func (w *Worker) runCompile(ctx context.Context, command []string, buildDir string) (sandbox.Outcome, error) {
	outcome, err := w.runner.Run(ctx, sandbox.Spec{
		Image:          "algojudge-build:latest",
		WorkDir:        buildDir,
		Command:        command,
		WallLimit:      w.cfg.CompileTimeout,
		MemoryLimitKB:  w.cfg.MaxMemoryBytes / 1024,
		CPUCores:       float64(w.cfg.MaxCPUCores),
		NetworkEnabled: w.cfg.NetworkEnabled,
		StdoutCap:      1 << 20,
		StderrCap:      1 << 20,
	})
	if err != nil {
		return sandbox.Outcome{}, olympuserr.Infra(fmt.Errorf("compiler: run compile command: %w", err))
	}
	if outcome.Kind == sandbox.KindTimeLimitExceeded {
		return outcome, olympuserr.Infra(fmt.Errorf("compilation timed out after %s", w.cfg.CompileTimeout))
	}
	return outcome, nil
}

// saveBinary installs the build's output under <binaries>/<sid>_bin,
// following the original save_binary's search order: a named binary file
// first, then (for archive jobs with a run.sh) the whole build directory.
func (w *Worker) saveBinary(job types.CompileJob, buildDir string, hasRunSH bool) (string, error) {
	destPath := filepath.Join(w.cfg.Storage.BinariesPath, job.SubmissionID.String()+"_bin")

	for _, name := range binaryNames {
		candidate := filepath.Join(buildDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return "", olympuserr.Infra(fmt.Errorf("compiler: mkdir binaries dir: %w", err))
			}
			if err := copyFile(candidate, destPath, 0o755); err != nil {
				return "", olympuserr.Infra(fmt.Errorf("compiler: install binary: %w", err))
			}
			return destPath, nil
		}
	}

	if hasRunSH {
		if err := copyDirRecursive(buildDir, destPath); err != nil {
			return "", olympuserr.Infra(fmt.Errorf("compiler: install run.sh artifact dir: %w", err))
		}
		if err := os.Chmod(filepath.Join(destPath, "run.sh"), 0o755); err != nil {
			return "", olympuserr.Infra(fmt.Errorf("compiler: chmod run.sh: %w", err))
		}
		return destPath, nil
	}

	return "", olympuserr.User(fmt.Errorf("compiler: no compiled binary found"))
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}

func copyDirRecursive(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}
