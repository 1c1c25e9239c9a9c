// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package logging provides the process-global structured logger shared by
// all three worker binaries.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

func init() {
	logger, _ = zap.NewDevelopment()
}

// Init replaces the global logger, selecting a JSON production encoder when
// env is "production" and a human-readable console encoder otherwise.
func Init(env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.OutputPaths = []string{"stdout"}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// Logger returns the global logger.
func Logger() *zap.Logger { return logger }

// SetLogger overrides the global logger, primarily for tests.
func SetLogger(l *zap.Logger) { logger = l }

// With returns a logger scoped with additional fields, e.g. a submission_id.
func With(fields ...zap.Field) *zap.Logger { return logger.With(fields...) }

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { logger.Fatal(msg, fields...) }

// Sync flushes any buffered log entries; safe to call on shutdown even when
// stdout is a pipe that errors on Sync (common under test runners).
func Sync() {
	if err := logger.Sync(); err != nil {
		_ = err // best-effort; stdout sync errors are expected on some platforms
	}
}
