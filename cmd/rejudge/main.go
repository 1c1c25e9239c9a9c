// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command rejudge is the administrative escape hatch named in §3: reset a
// submission to pending and re-enqueue it onto run_queue for a fresh judge
// pass. store.RejudgeSubmission's own doc comment defers re-enqueueing to
// "the caller... outside this package's scope, the API gateway per §1
// Non-goals" — since an API gateway is explicitly out of scope, this
// one-shot operator tool is the in-scope caller, mirroring the teacher's
// cmd/looms one-off admin subcommands rather than the long-lived workers'
// run-to-exit contract.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/dbx"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/queue"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "rejudge <submission-id>",
	Short: "Reset a submission to pending and re-enqueue it for judging",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("rejudge: invalid submission id %q: %w", args[0], err)
	}

	cfg, err := config.LoadRejudgeConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Init(cfg.Environment); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	ctx := context.Background()

	pool, err := dbx.NewPool(ctx, cfg.DatabaseURL, dbx.PoolOptions{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)

	if err := st.RejudgeSubmission(ctx, id); err != nil {
		return fmt.Errorf("rejudge: reset status: %w", err)
	}

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer q.Close()

	binaryPath := filepath.Join(cfg.Storage.BinariesPath, id.String()+"_bin")
	if _, err := q.Enqueue(ctx, cfg.RunStream, map[string]string{
		"submission_id": id.String(),
		"binary_path":   binaryPath,
	}); err != nil {
		return fmt.Errorf("rejudge: enqueue run_queue job: %w", err)
	}

	logging.Info("submission re-enqueued for judging")
	return nil
}
