// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command migrate applies the idempotent schema bootstrap (§3, §6) against
// a PostgreSQL database and exits. Grounded on the teacher corpus's "upgrade"
// subcommand (cmd/looms/cmd_upgrade.go): schema provisioning is operator-run
// tooling, not something any of the three long-lived workers does on their
// own, so it lives in its own cmd/ binary rather than a subcommand bolted
// onto sisyphus, minos, or horus, which expose no CLI surface beyond
// run-to-exit (spec.md:237).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/config"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/dbx"
	"github.com/In-Saiyan/AlgoJudge-sub000/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the problems/submissions/submission_results schema bootstrap",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadMigrateConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logging.Init(cfg.Environment); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	dsn := cfg.DSN()
	if dsn == "" {
		return fmt.Errorf("migrate: no DATABASE_URL or PG_HOST set")
	}

	logging.Info("applying schema bootstrap")
	if err := dbx.Migrate(dsn); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logging.Info("schema bootstrap applied")
	return nil
}
