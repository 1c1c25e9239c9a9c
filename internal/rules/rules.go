// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package rules implements the cleaner's predicate algebra (§4.6, §9
// "Dynamic dispatch... predicate composition, solved by an enum-of-variants
// with recursive evaluation"). A Predicate is a function over an Entry;
// And/Or/Not combine predicates into a small recursively-evaluated
// expression tree — no interfaces or type switches are needed because Go
// closures already give us the "boxed closure" alternative the design
// notes call out as equally valid to an enum-of-variants.
package rules

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/types"
)

// Entry carries everything a leaf predicate needs: the path under
// inspection, its cached os.FileInfo, and a database handle for the
// HasProblemRecord/HasSubmissionRecord/HasActiveSubmission lookups (§4.6
// "Entry context carries: the filesystem path, cached metadata, and a DB
// handle").
type Entry struct {
	Path string
	Info os.FileInfo
	DB   DBLookup
}

// DBLookup is the narrow slice of *store.Store the rule predicates need,
// kept as an interface here so this package has no dependency on the
// store package's pgxpool internals.
type DBLookup interface {
	ProblemExists(ctx context.Context, pid uuid.UUID) (bool, error)
	SubmissionState(ctx context.Context, sid uuid.UUID) (status types.SubmissionStatus, exists bool, err error)
}

// Predicate evaluates to true when Entry should be treated as a match
// (e.g. "eligible for deletion").
type Predicate func(ctx context.Context, e Entry) (bool, error)

// And is true only when every p evaluates true; it short-circuits on the
// first false or error, same as Rust's lazy && chains.
func And(ps ...Predicate) Predicate {
	return func(ctx context.Context, e Entry) (bool, error) {
		for _, p := range ps {
			ok, err := p(ctx, e)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// Or is true when any p evaluates true.
func Or(ps ...Predicate) Predicate {
	return func(ctx context.Context, e Entry) (bool, error) {
		for _, p := range ps {
			ok, err := p(ctx, e)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// Not negates p.
func Not(p Predicate) Predicate {
	return func(ctx context.Context, e Entry) (bool, error) {
		ok, err := p(ctx, e)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

// IsFile matches regular files.
func IsFile(_ context.Context, e Entry) (bool, error) {
	return e.Info != nil && !e.Info.IsDir(), nil
}

// IsDirectory matches directories.
func IsDirectory(_ context.Context, e Entry) (bool, error) {
	return e.Info != nil && e.Info.IsDir(), nil
}

// LastAccessOlderThan matches entries whose access marker (a sibling
// .last_access stamp file's mtime, or the entry's own mtime when no stamp
// exists) is strictly older than d (§4.6 LastAccessOlderThan).
func LastAccessOlderThan(d time.Duration) Predicate {
	return func(_ context.Context, e Entry) (bool, error) {
		stampPath := e.Path + string(os.PathSeparator) + ".last_access"
		if e.Info != nil && e.Info.IsDir() {
			if fi, err := os.Stat(stampPath); err == nil {
				return time.Since(fi.ModTime()) > d, nil
			}
		}
		if e.Info == nil {
			return false, nil
		}
		return time.Since(e.Info.ModTime()) > d, nil
	}
}

// CreatedOlderThan matches entries whose modification time is strictly
// older than d. Go's os.FileInfo exposes no portable birth/ctime, so this
// uses mtime as the creation-time proxy, matching how entries in this
// pipeline are never rewritten after creation (§3 "never mutated after
// creation").
func CreatedOlderThan(d time.Duration) Predicate {
	return func(_ context.Context, e Entry) (bool, error) {
		if e.Info == nil {
			return false, nil
		}
		return time.Since(e.Info.ModTime()) > d, nil
	}
}

// HasProblemRecord matches when a problems row exists for the entry's
// basename interpreted as a problem id.
func HasProblemRecord(ctx context.Context, e Entry) (bool, error) {
	id, err := basenameUUID(e.Path)
	if err != nil {
		return false, nil
	}
	return e.DB.ProblemExists(ctx, id)
}

// HasSubmissionRecord matches when a submissions row exists at all for
// the entry's basename interpreted as a submission id.
func HasSubmissionRecord(ctx context.Context, e Entry) (bool, error) {
	id, err := basenameUUID(e.Path)
	if err != nil {
		return false, nil
	}
	_, exists, err := e.DB.SubmissionState(ctx, id)
	return exists, err
}

// HasActiveSubmission matches when the submissions row exists and its
// status is Active (§4.6 "A queue_pending submission is considered
// active — its scratch dir must not be reaped").
func HasActiveSubmission(ctx context.Context, e Entry) (bool, error) {
	id, err := basenameUUID(e.Path)
	if err != nil {
		return false, nil
	}
	status, exists, err := e.DB.SubmissionState(ctx, id)
	if err != nil || !exists {
		return false, err
	}
	return status.Active(), nil
}

func basenameUUID(path string) (uuid.UUID, error) {
	base := path
	if idx := lastSeparator(path); idx >= 0 {
		base = path[idx+1:]
	}
	// An artifact basename is "<sid>_bin"; strip the suffix before parsing.
	const binSuffix = "_bin"
	if len(base) > len(binSuffix) && base[len(base)-len(binSuffix):] == binSuffix {
		base = base[:len(base)-len(binSuffix)]
	}
	return uuid.Parse(base)
}

func lastSeparator(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if os.IsPathSeparator(path[i]) {
			return i
		}
	}
	return -1
}

// Registry is the supplemented named-predicate lookup (§9.3 of the
// expanded design): it resolves leaf predicates by name plus string
// args. It holds no combinator structure; resolved leaves are combined
// with And/Or/Not in Go code. internal/cleaner composes its policies
// that way and resolves its duration-threshold leaves through Leaf.
type Registry struct {
	leaves map[string]func(args []string) Predicate
}

// NewRegistry builds the registry of leaf predicates keyed by name, with
// the duration-parameterized leaves accepting their argument as the first
// (and only) element of args, parsed with time.ParseDuration.
func NewRegistry() *Registry {
	r := &Registry{leaves: make(map[string]func(args []string) Predicate)}
	r.leaves["is_file"] = func([]string) Predicate { return IsFile }
	r.leaves["is_directory"] = func([]string) Predicate { return IsDirectory }
	r.leaves["last_access_older_than"] = func(args []string) Predicate {
		d, _ := time.ParseDuration(firstOr(args, "0s"))
		return LastAccessOlderThan(d)
	}
	r.leaves["created_older_than"] = func(args []string) Predicate {
		d, _ := time.ParseDuration(firstOr(args, "0s"))
		return CreatedOlderThan(d)
	}
	r.leaves["has_problem_record"] = func([]string) Predicate { return HasProblemRecord }
	r.leaves["has_submission_record"] = func([]string) Predicate { return HasSubmissionRecord }
	r.leaves["has_active_submission"] = func([]string) Predicate { return HasActiveSubmission }
	return r
}

func firstOr(args []string, def string) string {
	if len(args) == 0 {
		return def
	}
	return args[0]
}

// Leaf resolves a named leaf predicate, or reports ok=false for an unknown
// name.
func (r *Registry) Leaf(name string, args ...string) (Predicate, bool) {
	factory, ok := r.leaves[name]
	if !ok {
		return nil, false
	}
	return factory(args), true
}
