// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command horus runs the four cron-scheduled reclamation policies as a
// standalone process (§4.6, §9.1). Unlike sisyphus and minos, this
// binary never blocks on a blocking queue read: the scheduler itself
// runs in the background, and the process just waits for a shutdown
// signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/cleaner"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/dbx"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "horus",
	Short: "Cleaner worker: reaps stale test data, scratch dirs, orphan binaries, and old submissions",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadHorusConfig()
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
	logging.Info("horus starting", fields...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := dbx.NewPool(ctx, cfg.DatabaseURL, dbx.PoolOptions{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)
	runner := cleaner.NewRunner(cfg.Storage, st)
	scheduler := cleaner.NewScheduler(runner, cfg.Schedules)

	if err := scheduler.SetupJobs(ctx); err != nil {
		return fmt.Errorf("schedule cleanup jobs: %w", err)
	}

	scheduler.Start()
	logging.Info("horus scheduler running")

	<-ctx.Done()
	logging.Info("horus shutting down")
	scheduler.Stop(context.Background())
	return nil
}
