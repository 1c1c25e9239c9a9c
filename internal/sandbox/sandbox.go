// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sandbox executes one child command under strict isolation and
// reports its outcome as a closed set of variants (§4.2). The Docker
// runner's hardening — read-only rootfs, a bounded tmpfs /tmp, dropped
// capabilities, no-new-privileges, disabled networking by default — is
// grounded on the teacher corpus's pkg/docker/runtime ApplySecurityOptions
// and ApplyResourceLimits helpers, generalized from that package's
// agent-runtime use case to ours: one-shot, non-interactive, no package
// installation, no container reuse across jobs.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Kind tags which Outcome variant is populated (§4.2 Outputs).
type Kind int

const (
	KindSuccess Kind = iota
	KindTimeLimitExceeded
	KindMemoryLimitExceeded
	KindRuntimeError
)

// Outcome is the sandbox runner's closed result type. Only the fields
// relevant to Kind are meaningful; this mirrors the teacher corpus's
// preference for a single result struct over a Go-native tagged union
// (Go has no sum types), same shape the compiler and judge workers switch
// on by Kind.
type Outcome struct {
	Kind Kind

	// KindSuccess. Stdout holds up to Spec.StdoutCap bytes of captured
	// output — the testcase manager needs the literal bytes (generator
	// input, checker's first line for partial credit), not just a count.
	PeakMemoryKB int64
	StdoutLen    int64
	Stdout       []byte

	// KindMemoryLimitExceeded also sets PeakMemoryKB.

	// KindRuntimeError. Stdout is also populated here (not just on
	// success): the testlib checker convention writes its comment to
	// either stream depending on exit code, so callers need both.
	ExitCode     int
	Signal       *int
	StderrPrefix string
}

func Success(peakMemoryKB, stdoutLen int64, stdout []byte) Outcome {
	return Outcome{Kind: KindSuccess, PeakMemoryKB: peakMemoryKB, StdoutLen: stdoutLen, Stdout: stdout}
}

func TimeLimitExceeded() Outcome {
	return Outcome{Kind: KindTimeLimitExceeded}
}

func MemoryLimitExceeded(peakMemoryKB int64) Outcome {
	return Outcome{Kind: KindMemoryLimitExceeded, PeakMemoryKB: peakMemoryKB}
}

func RuntimeError(exitCode int, signal *int, stderrPrefix string, stdout []byte) Outcome {
	return Outcome{Kind: KindRuntimeError, ExitCode: exitCode, Signal: signal, StderrPrefix: stderrPrefix, Stdout: stdout}
}

// maxStderrPrefix bounds the captured stderr prefix on a runtime error
// (§4.2 "stderr_prefix is truncated to a bounded length").
const maxStderrPrefix = 4096

// grace is the slack added to wall-clock limits before declaring TLE, so
// that a child finishing at exactly the limit is still reportable (§4.2,
// GLOSSARY "Grace").
const grace = 100 * time.Millisecond

// Spec describes one sandboxed invocation (§4.2 Inputs).
type Spec struct {
	// Image is the container image to run the command in. Ignored by
	// DirectRunner.
	Image string
	// WorkDir is bind-mounted read-write as /workspace.
	WorkDir string
	// Command is argv; Command[0] is resolved relative to /workspace.
	Command []string
	// WallLimit is the time budget before grace is added.
	WallLimit time.Duration
	// MemoryLimitKB caps resident memory; 0 means no limit (used for the
	// compiler's own envelope which is configured directly in KB already
	// converted by the caller).
	MemoryLimitKB int64
	CPUCores      float64
	PIDLimit      int64
	NetworkEnabled bool
	// Stdin is piped to the child; nil means /dev/null.
	Stdin io.Reader
	// StdoutCap/StderrCap bound how much of each stream is captured into
	// memory; bytes beyond the cap are discarded, and StdoutLen counts
	// only the captured bytes.
	StdoutCap int64
	StderrCap int64
}

// Runner executes one Spec and returns its Outcome. Two implementations
// exist: DockerRunner for untrusted contestant artifacts (mandatory per
// §9 Open Questions resolution) and DirectRunner for pre-vetted
// generator/checker binaries selected explicitly by configuration.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Outcome, error)
}

// DockerRunner isolates each Spec in a freshly created, single-use
// container: no rotation, no package installation, no cache volumes —
// this sandbox's trust boundary is per-job, not per-session.
type DockerRunner struct {
	cli *dockerclient.Client
}

// NewDockerRunner wraps an already-constructed Docker API client.
func NewDockerRunner(cli *dockerclient.Client) *DockerRunner {
	return &DockerRunner{cli: cli}
}

// Run creates, starts, waits on, and tears down one container per call.
func (d *DockerRunner) Run(ctx context.Context, spec Spec) (Outcome, error) {
	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        spec.Command,
		WorkingDir: "/workspace",
		Tty:        false,
		OpenStdin:  spec.Stdin != nil,
		StdinOnce:  spec.Stdin != nil,
		AttachStdin: spec.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.WorkDir,
			Target: "/workspace",
		}},
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=256m,mode=1777"},
		CapDrop:        []string{"ALL"},
		Privileged:     false,
		SecurityOpt:    []string{"no-new-privileges"},
	}
	applyResourceLimits(hostCfg, spec)
	if !spec.NetworkEnabled {
		hostCfg.NetworkMode = "none"
	}

	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return Outcome{}, fmt.Errorf("sandbox: create container: %w", err)
	}
	containerID := created.ID
	defer func() {
		_ = d.cli.ContainerRemove(context.Background(), containerID, container.RemoveOptions{Force: true})
	}()

	attach, err := d.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true, Stdin: spec.Stdin != nil, Stdout: true, Stderr: true,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("sandbox: attach: %w", err)
	}
	defer attach.Close()

	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return Outcome{}, fmt.Errorf("sandbox: start container: %w", err)
	}

	if spec.Stdin != nil {
		go func() {
			_, _ = io.Copy(attach.Conn, spec.Stdin)
			_ = attach.CloseWrite()
		}()
	}

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(boundedWriter(&stdout, spec.StdoutCap), boundedWriter(&stderr, spec.StderrCap), attach.Reader)
		copyDone <- err
	}()

	waitCtx, cancel := context.WithTimeout(ctx, spec.WallLimit+grace)
	defer cancel()

	statusCh, errCh := d.cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case <-waitCtx.Done():
		_ = d.cli.ContainerKill(context.Background(), containerID, "KILL")
		<-copyDone
		return TimeLimitExceeded(), nil

	case err := <-errCh:
		return Outcome{}, fmt.Errorf("sandbox: wait: %w", err)

	case status := <-statusCh:
		<-copyDone
		peakMemoryKB := d.readPeakMemoryKB(context.Background(), containerID)

		inspect, inspectErr := d.cli.ContainerInspect(context.Background(), containerID)
		if inspectErr != nil {
			return Outcome{}, fmt.Errorf("sandbox: inspect: %w", inspectErr)
		}

		if inspect.State != nil && inspect.State.OOMKilled {
			return MemoryLimitExceeded(peakMemoryKB), nil
		}

		if status.StatusCode == 0 {
			return Success(peakMemoryKB, int64(stdout.Len()), stdout.Bytes()), nil
		}

		prefix := stderr.String()
		if len(prefix) > maxStderrPrefix {
			prefix = prefix[:maxStderrPrefix]
		}

		// A SIGKILL (9) with observed peak at or above the configured
		// limit is the fallback OOM signal when runtime accounting
		// doesn't set OOMKilled directly (§4.2 "falls back to 'signal 9
		// AND observed peak ≥ limit'").
		if status.StatusCode == 137 && spec.MemoryLimitKB > 0 && peakMemoryKB >= spec.MemoryLimitKB {
			return MemoryLimitExceeded(peakMemoryKB), nil
		}

		var signal *int
		if status.StatusCode > 128 {
			s := int(status.StatusCode) - 128
			signal = &s
		}
		return RuntimeError(int(status.StatusCode), signal, prefix, stdout.Bytes()), nil
	}
}

func applyResourceLimits(hostCfg *container.HostConfig, spec Spec) {
	if spec.CPUCores > 0 {
		hostCfg.NanoCPUs = int64(spec.CPUCores * 1e9)
	}
	if spec.MemoryLimitKB > 0 {
		hostCfg.Memory = spec.MemoryLimitKB * 1024
	}
	if spec.PIDLimit > 0 {
		pids := spec.PIDLimit
		hostCfg.PidsLimit = &pids
	}
}

// dockerMemStats is the subset of the Docker stats JSON payload this
// sandbox reads; the full schema carries many fields this pipeline has no
// use for.
type dockerMemStats struct {
	MemoryStats struct {
		MaxUsage uint64 `json:"max_usage"`
		Usage    uint64 `json:"usage"`
	} `json:"memory_stats"`
}

// readPeakMemoryKB takes a one-shot stats snapshot after the container has
// exited. cgroup v1 reports a true max_usage; cgroup v2 (where max_usage
// is absent) falls back to the final usage reading, which is the best
// approximation available without continuous sampling during the run.
// Returning 0 signals "unavailable" per §4.2's fallback-to-signal rule.
func (d *DockerRunner) readPeakMemoryKB(ctx context.Context, containerID string) int64 {
	resp, err := d.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	var stats dockerMemStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0
	}

	if stats.MemoryStats.MaxUsage > 0 {
		return int64(stats.MemoryStats.MaxUsage / 1024)
	}
	return int64(stats.MemoryStats.Usage / 1024)
}

func boundedWriter(buf *bytes.Buffer, cap int64) io.Writer {
	if cap <= 0 {
		return buf
	}
	return &capWriter{buf: buf, remaining: cap}
}

// capWriter discards bytes beyond a cap while still reporting them as
// "seen" to the caller via accumulated Len() on the underlying buffer up
// to the cap — the checker-output and compile-log captures in this
// pipeline only need a bounded prefix, not an exact total byte count.
type capWriter struct {
	buf       *bytes.Buffer
	remaining int64
}

func (w *capWriter) Write(p []byte) (int, error) {
	if w.remaining <= 0 {
		return len(p), nil
	}
	n := int64(len(p))
	if n > w.remaining {
		n = w.remaining
	}
	w.buf.Write(p[:n])
	w.remaining -= n
	return len(p), nil
}

var _ Runner = (*DockerRunner)(nil)
