// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package dbx builds the shared pgxpool.Pool connection used by every
// worker, and the lib/pq-based migration path used by the one-shot schema
// bootstrap. The pool construction mirrors the teacher corpus's
// internal/pgxdriver package: parse a DSN, apply pool settings, verify
// connectivity with a ping before returning.
package dbx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions configures the connection pool. Zero values fall back to the
// same defaults the teacher corpus applies when no pool config is given.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxConns == 0 {
		o.MaxConns = 25
	}
	if o.MinConns == 0 {
		o.MinConns = 5
	}
	if o.MaxConnIdleTime == 0 {
		o.MaxConnIdleTime = 5 * time.Minute
	}
	if o.MaxConnLifetime == 0 {
		o.MaxConnLifetime = time.Hour
	}
	if o.HealthCheckPeriod == 0 {
		o.HealthCheckPeriod = 30 * time.Second
	}
	return o
}

// NewPool parses dsn and returns a pool verified reachable with a ping.
func NewPool(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dbx: DATABASE_URL is empty")
	}
	opts = opts.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("dbx: parse dsn: %w", err)
	}

	poolCfg.MaxConns = opts.MaxConns
	poolCfg.MinConns = opts.MinConns
	poolCfg.MaxConnIdleTime = opts.MaxConnIdleTime
	poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	poolCfg.HealthCheckPeriod = opts.HealthCheckPeriod

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO public")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("dbx: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbx: ping: %w", err)
	}

	return pool, nil
}

// QuoteLiteral escapes a value for single-quoted inclusion in a libpq
// keyword/value connection string, per the documented escaping rules:
// backslashes and single quotes are backslash-escaped, and every value is
// quoted unconditionally for simplicity.
func QuoteLiteral(val string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(val)
	return "'" + escaped + "'"
}

// BuildDSN assembles a libpq keyword/value DSN from discrete fields, used by
// the migration CLI path which takes host/port/db/user/password env vars
// instead of a single DATABASE_URL.
func BuildDSN(host string, port int, database, user, password, sslMode string) string {
	if port == 0 {
		port = 5432
	}
	if sslMode == "" {
		sslMode = "require"
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		QuoteLiteral(host), port, QuoteLiteral(database), QuoteLiteral(sslMode))
	if user != "" {
		dsn += " user=" + QuoteLiteral(user)
	}
	if password != "" {
		dsn += " password=" + QuoteLiteral(password)
	}
	return dsn
}
