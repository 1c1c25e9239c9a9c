// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_SelectsEncoderByEnvironment(t *testing.T) {
	require.NoError(t, Init("development"))
	assert.NotNil(t, Logger())

	require.NoError(t, Init("production"))
	assert.NotNil(t, Logger())
}

func TestWith_ScopesFieldsOnEveryEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))

	With(zap.String("submission_id", "abc-123")).Info("judging started")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "judging started", entries[0].Message)
	assert.Equal(t, "abc-123", entries[0].ContextMap()["submission_id"])
}

func TestLevelHelpers_WriteAtExpectedLevel(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetLogger(zap.New(core))

	Debug("d")
	Info("i")
	Warn("w")
	Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zap.DebugLevel, entries[0].Level)
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
	assert.Equal(t, zap.ErrorLevel, entries[3].Level)
}
