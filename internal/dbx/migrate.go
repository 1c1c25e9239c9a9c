// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package dbx

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
)

// schema is the idempotent bootstrap for the three tables the pipeline
// reads and writes (§3, §6). It is intentionally separate from the pgx
// pool used by the workers: migrations run once, from a CLI entrypoint,
// against a plain database/sql connection the way the teacher corpus keeps
// its lib/pq-based tooling path distinct from its pgxpool query path.
const schema = `
CREATE TABLE IF NOT EXISTS problems (
	id UUID PRIMARY KEY,
	time_limit_ms INT NOT NULL,
	memory_limit_kb INT NOT NULL,
	num_test_cases INT NOT NULL,
	max_score INT
);

CREATE TABLE IF NOT EXISTS submissions (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	problem_id UUID NOT NULL,
	contest_id UUID,
	status TEXT NOT NULL,
	submission_type TEXT NOT NULL,
	language TEXT,
	source_code TEXT,
	file_path TEXT,
	compilation_log TEXT,
	score INT,
	max_time_ms BIGINT,
	max_memory_kb BIGINT,
	passed_test_cases INT,
	total_test_cases INT,
	submitted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	compiled_at TIMESTAMPTZ,
	judged_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS submissions_status_idx ON submissions (status);
CREATE INDEX IF NOT EXISTS submissions_created_at_idx ON submissions (created_at);

CREATE TABLE IF NOT EXISTS submission_results (
	submission_id UUID NOT NULL,
	test_case_number INT NOT NULL,
	verdict TEXT NOT NULL,
	time_ms BIGINT NOT NULL,
	memory_kb BIGINT NOT NULL,
	checker_output TEXT,
	PRIMARY KEY (submission_id, test_case_number)
);
`

// Migrate opens dsn with the lib/pq driver and applies the schema, which is
// written entirely in terms of CREATE ... IF NOT EXISTS so repeated runs
// against an already-provisioned database are no-ops.
func Migrate(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("dbx: open migration connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbx: ping migration connection: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("dbx: apply schema: %w", err)
	}
	return nil
}
