// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command minos runs the run_queue consumer as a standalone process
// (§4.5, §6, §9.1). Grounded on the teacher corpus's cmd/looms
// cobra-root + RunE pattern; the metrics HTTP endpoint is the one piece
// of ambient surface this binary carries that the other two workers do
// not, per the distilled spec's "metrics surface lives on the judge
// worker" scoping.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/dbx"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/judge"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/metrics"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/queue"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/sandbox"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/store"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:   "minos",
	Short: "Run-queue worker: judges compiled submissions against test cases",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadMinosConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Init(cfg.Environment); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	fields := make([]zap.Field, 0, len(cfg.LogFields()))
	for k, v := range cfg.LogFields() {
		fields = append(fields, zap.Any(k, v))
	}
	logging.Info("minos starting", fields...)

	ctx := context.Background()

	pool, err := dbx.NewPool(ctx, cfg.DatabaseURL, dbx.PoolOptions{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer q.Close()

	// Contestant artifacts are always container-isolated (§9 Open
	// Questions resolution: Docker sandboxing for untrusted code is
	// mandatory, never config-selectable). The generator/checker pair is
	// semi-trusted and may instead run via DirectRunner when configured,
	// reserved for that trust tier only.
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("create docker client: %w", err)
	}
	contestantRunner := sandbox.NewDockerRunner(dockerClient)

	var trustedRunner sandbox.Runner
	if cfg.UseDirectRunner {
		logging.Warn("direct runner selected for generator/checker invocations")
		trustedRunner = sandbox.NewDirectRunner()
	} else {
		trustedRunner = sandbox.NewDockerRunner(dockerClient)
	}

	w := judge.New(cfg, q, st, contestantRunner, trustedRunner)
	if err := w.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize worker: %w", err)
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.MetricsPort)
		logging.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := metrics.Serve(addr); err != nil {
			logging.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()

	return worker.Run(ctx, "minos", w.Step)
}
