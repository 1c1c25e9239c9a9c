// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "postgres://<redacted>@db:5432/olympus",
		redactDSN("postgres://olympus:s3cr3t@db:5432/olympus"))
	assert.Equal(t, "<redacted>", redactDSN("not-a-url"))
}

func TestLoadSisyphusConfig_Defaults(t *testing.T) {
	cfg, err := LoadSisyphusConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "compile_queue", cfg.CompileStream)
	assert.Equal(t, "run_queue", cfg.RunStream)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "sisyphus_group", cfg.ConsumerGroup)
	assert.Contains(t, cfg.Storage.BinariesPath, "binaries")
	assert.Contains(t, cfg.Storage.TestcasesPath, "testcases")
}

func TestLoadSisyphusConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("COMPILE_STREAM", "custom_compile")

	cfg, err := LoadSisyphusConfig()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, "custom_compile", cfg.CompileStream)
}

func TestSisyphusConfig_LogFieldsRedactsCredentials(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/olympus")
	cfg, err := LoadSisyphusConfig()
	require.NoError(t, err)

	fields := cfg.LogFields()
	assert.NotContains(t, fields["database"], "u:p")
	assert.Equal(t, "postgres://<redacted>@db:5432/olympus", fields["database"])
}

func TestLoadMinosConfig_RejectsEmptyDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadMinosConfig()
	assert.Error(t, err)
}

func TestLoadMinosConfig_DirectRunnerDefaultsFalse(t *testing.T) {
	cfg, err := LoadMinosConfig()
	require.NoError(t, err)
	assert.False(t, cfg.UseDirectRunner)
	assert.Equal(t, int64(2000), cfg.Execution.DefaultTimeLimitMS)
}

func TestLoadHorusConfig_RejectsEmptyDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadHorusConfig()
	assert.Error(t, err)
}

func TestLoadHorusConfig_DefaultsSubmissionRetentionDisabled(t *testing.T) {
	cfg, err := LoadHorusConfig()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Schedules.SubmissionRetentionDays)
	assert.Equal(t, "0 0 * * * *", cfg.Schedules.TestcaseCleanupCron)
}
