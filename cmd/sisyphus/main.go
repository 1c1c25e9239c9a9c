// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command sisyphus runs the compile_queue consumer as a standalone
// process (§4.3, §9.1). Grounded on the teacher corpus's cmd/looms
// cobra-root + RunE pattern, trimmed to a single "run" action since this
// binary has no subcommands of its own.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/compiler"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/dbx"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/queue"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/sandbox"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/store"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:   "sisyphus",
	Short: "Compile-queue worker: builds submitted sources into runnable artifacts",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadSisyphusConfig()
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
	logging.Info("sisyphus starting", fields...)

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

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("create docker client: %w", err)
	}
	runner := sandbox.NewDockerRunner(dockerClient)

	w := compiler.New(cfg, q, st, runner)
	if err := w.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize worker: %w", err)
	}

	return worker.Run(ctx, "sisyphus", w.Step)
}
