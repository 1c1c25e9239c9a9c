// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package olympuserr implements the error taxonomy from spec §7: every
// worker job runs inside a boundary that classifies the outcome into one of
// four categories before deciding whether to retry, DLQ, or write a durable
// verdict. Classification prefers typed/sentinel errors and only falls back
// to substring matching at the true I/O boundary, per design note §9.
package olympuserr

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Category is the top-level error classification from spec §7.
type Category int

const (
	// CategoryUser covers durable, non-retryable, submission-attributable
	// outcomes (compilation failure, archive violation, runtime error, TLE,
	// MLE, wrong answer, output-limit exceeded).
	CategoryUser Category = iota
	// CategoryProblem covers problem-setup issues: missing generator/checker
	// (→ queue_pending), generator crash or checker judge-error (→ system_error
	// for the current submission, without mutating problem state).
	CategoryProblem
	// CategoryInfra covers transient infrastructure failures subject to
	// exponential backoff retry and eventual DLQ.
	CategoryInfra
	// CategoryProtocol covers malformed messages and missing consumer groups.
	CategoryProtocol
)

func (c Category) String() string {
	switch c {
	case CategoryUser:
		return "user"
	case CategoryProblem:
		return "problem"
	case CategoryInfra:
		return "infra"
	case CategoryProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an underlying error with its taxonomy category.
type ClassifiedError struct {
	Category Category
	Err      error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// User, Problem, Infra, and Protocol construct a ClassifiedError of the
// matching category, wrapping err.
func User(err error) error    { return &ClassifiedError{Category: CategoryUser, Err: err} }
func Problem(err error) error { return &ClassifiedError{Category: CategoryProblem, Err: err} }
func Infra(err error) error   { return &ClassifiedError{Category: CategoryInfra, Err: err} }
func Protocol(err error) error { return &ClassifiedError{Category: CategoryProtocol, Err: err} }

// Userf, Infraf are convenience constructors mirroring fmt.Errorf.
func Userf(format string, args ...any) error  { return User(fmt.Errorf(format, args...)) }
func Infraf(format string, args ...any) error { return Infra(fmt.Errorf(format, args...)) }

// infraSubstrings are the candidate substrings from spec §7 category 3, used
// only when an error carries no structured classification (e.g. text
// surfaced across the Docker API boundary).
var infraSubstrings = []string{
	"timed out",
	"connection refused",
	"no space left",
	"resource temporarily unavailable",
	"cannot allocate memory",
	"too many open files",
}

// Classify converts an arbitrary error into a Category. It tries, in order:
//  1. an existing *ClassifiedError (pass through),
//  2. known syscall.Errno sentinels (ENOSPC, EMFILE, ENOMEM,
//     ECONNREFUSED, ETIMEDOUT),
//  3. the NOGROUP protocol marker,
//  4. the infra substring table,
//  5. default: CategoryInfra, since an unhandled exception must never crash
//     the worker loop (§7 Propagation) and "unknown" is safest treated as
//     transient-and-retryable rather than silently durable.
func Classify(err error) Category {
	if err == nil {
		return CategoryInfra
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Category
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOSPC, syscall.EMFILE, syscall.ENOMEM, syscall.ECONNREFUSED, syscall.ETIMEDOUT:
			return CategoryInfra
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "nogroup") {
		return CategoryProtocol
	}
	for _, substr := range infraSubstrings {
		if strings.Contains(msg, substr) {
			return CategoryInfra
		}
	}

	return CategoryInfra
}

// IsRetryable reports whether the error's category should be retried with
// backoff rather than written as a durable terminal outcome.
func IsRetryable(err error) bool {
	return Classify(err) == CategoryInfra
}
