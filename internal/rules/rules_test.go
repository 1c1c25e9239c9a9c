// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package rules

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/In-Saiyan/AlgoJudge-sub000/internal/types"
)

type fakeDB struct {
	problems    map[uuid.UUID]bool
	submissions map[uuid.UUID]types.SubmissionStatus
	err         error
}

func (f *fakeDB) ProblemExists(_ context.Context, pid uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.problems[pid], nil
}

func (f *fakeDB) SubmissionState(_ context.Context, sid uuid.UUID) (types.SubmissionStatus, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	status, ok := f.submissions[sid]
	return status, ok, nil
}

func alwaysTrue(context.Context, Entry) (bool, error)  { return true, nil }
func alwaysFalse(context.Context, Entry) (bool, error) { return false, nil }
func alwaysErr(context.Context, Entry) (bool, error)   { return false, errors.New("boom") }

func TestAnd_ShortCircuitsOnFalse(t *testing.T) {
	ok, err := And(alwaysTrue, alwaysFalse, alwaysErr)(context.Background(), Entry{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnd_AllTrue(t *testing.T) {
	ok, err := And(alwaysTrue, alwaysTrue)(context.Background(), Entry{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnd_PropagatesError(t *testing.T) {
	_, err := And(alwaysTrue, alwaysErr)(context.Background(), Entry{})
	assert.Error(t, err)
}

func TestOr_TrueOnFirstMatch(t *testing.T) {
	ok, err := Or(alwaysFalse, alwaysTrue, alwaysErr)(context.Background(), Entry{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNot_Negates(t *testing.T) {
	ok, err := Not(alwaysTrue)(context.Background(), Entry{})
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeInfo struct {
	dir   bool
	mtime time.Time
}

func (f fakeInfo) Name() string       { return "entry" }
func (f fakeInfo) Size() int64        { return 0 }
func (f fakeInfo) Mode() os.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return f.mtime }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

func TestIsFileAndIsDirectory(t *testing.T) {
	fileEntry := Entry{Info: fakeInfo{dir: false}}
	dirEntry := Entry{Info: fakeInfo{dir: true}}

	ok, _ := IsFile(context.Background(), fileEntry)
	assert.True(t, ok)
	ok, _ = IsFile(context.Background(), dirEntry)
	assert.False(t, ok)

	ok, _ = IsDirectory(context.Background(), dirEntry)
	assert.True(t, ok)
}

func TestCreatedOlderThan(t *testing.T) {
	old := Entry{Info: fakeInfo{mtime: time.Now().Add(-2 * time.Hour)}}
	fresh := Entry{Info: fakeInfo{mtime: time.Now()}}

	ok, err := CreatedOlderThan(time.Hour)(context.Background(), old)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CreatedOlderThan(time.Hour)(context.Background(), fresh)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasProblemRecord(t *testing.T) {
	pid := uuid.New()
	db := &fakeDB{problems: map[uuid.UUID]bool{pid: true}}

	match, err := HasProblemRecord(context.Background(), Entry{Path: "/data/testcases/" + pid.String(), DB: db})
	require.NoError(t, err)
	assert.True(t, match)

	other := uuid.New()
	match, err = HasProblemRecord(context.Background(), Entry{Path: "/data/testcases/" + other.String(), DB: db})
	require.NoError(t, err)
	assert.False(t, match)
}

func TestHasActiveSubmission_TreatsQueuePendingAsActive(t *testing.T) {
	sid := uuid.New()
	db := &fakeDB{submissions: map[uuid.UUID]types.SubmissionStatus{sid: types.StatusQueuePending}}

	match, err := HasActiveSubmission(context.Background(), Entry{Path: "/data/temp/" + sid.String(), DB: db})
	require.NoError(t, err)
	assert.True(t, match)
}

func TestHasActiveSubmission_FalseWhenNoRow(t *testing.T) {
	db := &fakeDB{submissions: map[uuid.UUID]types.SubmissionStatus{}}
	match, err := HasActiveSubmission(context.Background(), Entry{Path: "/data/temp/" + uuid.New().String(), DB: db})
	require.NoError(t, err)
	assert.False(t, match)
}

func TestHasSubmissionRecord_StripsBinSuffix(t *testing.T) {
	sid := uuid.New()
	db := &fakeDB{submissions: map[uuid.UUID]types.SubmissionStatus{sid: types.StatusAccepted}}

	match, err := HasSubmissionRecord(context.Background(), Entry{Path: "/data/binaries/" + sid.String() + "_bin", DB: db})
	require.NoError(t, err)
	assert.True(t, match)
}

func TestBasenameUUID_NonUUIDReturnsNoMatch(t *testing.T) {
	db := &fakeDB{}
	match, err := HasProblemRecord(context.Background(), Entry{Path: "/data/testcases/not-a-uuid", DB: db})
	require.NoError(t, err)
	assert.False(t, match)
}

func TestRegistry_ResolvesLeavesByName(t *testing.T) {
	r := NewRegistry()

	p, ok := r.Leaf("is_file")
	require.True(t, ok)
	ok2, _ := p(context.Background(), Entry{Info: fakeInfo{dir: false}})
	assert.True(t, ok2)

	p, ok = r.Leaf("created_older_than", "1h")
	require.True(t, ok)
	match, _ := p(context.Background(), Entry{Info: fakeInfo{mtime: time.Now().Add(-2 * time.Hour)}})
	assert.True(t, match)

	_, ok = r.Leaf("does_not_exist")
	assert.False(t, ok)
}
