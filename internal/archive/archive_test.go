// Copyright 2026 In-Saiyan
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, "submission.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestValidate_AcceptsCompileOnlyArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string]string{
		"compile.sh": "#!/bin/sh\ng++ -o main main.cpp\n",
		"main.cpp":   "int main() { return 0; }",
	})

	m, err := Validate(path)
	require.NoError(t, err)
	assert.False(t, m.HasRunSH)
	assert.Len(t, m.Entries, 2)
}

func TestValidate_DetectsRunSH(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string]string{
		"compile.sh": "#!/bin/sh\necho ok\n",
		"run.sh":     "#!/bin/sh\npython3 main.py \"$@\"\n",
		"main.py":    "print('hi')",
	})

	m, err := Validate(path)
	require.NoError(t, err)
	assert.True(t, m.HasRunSH)
}

func TestValidate_RejectsMissingCompileSH(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string]string{
		"main.cpp": "int main() { return 0; }",
	})

	_, err := Validate(path)
	assert.ErrorIs(t, err, ErrMissingCompile)
}

func TestValidate_RejectsEmptyArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string]string{})

	_, err := Validate(path)
	assert.ErrorIs(t, err, ErrEmptyArchive)
}

func TestValidate_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string]string{
		"compile.sh":          "#!/bin/sh\n",
		"../../etc/passwd":    "root:x:0:0",
	})

	_, err := Validate(path)
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestValidate_StripsLeadingDotSlash(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string]string{
		"./compile.sh": "#!/bin/sh\n",
	})

	m, err := Validate(path)
	require.NoError(t, err)
	assert.Len(t, m.Entries, 1)
}

func TestExtract_WritesFilesUnderDestDir(t *testing.T) {
	dir := t.TempDir()
	path := writeZip(t, dir, map[string]string{
		"compile.sh":     "#!/bin/sh\necho build\n",
		"src/main.cpp":   "int main() { return 0; }",
	})

	m, err := Validate(path)
	require.NoError(t, err)

	destDir := t.TempDir()
	require.NoError(t, Extract(m, destDir))

	compileContent, err := os.ReadFile(filepath.Join(destDir, "compile.sh"))
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho build\n", string(compileContent))

	srcContent, err := os.ReadFile(filepath.Join(destDir, "src", "main.cpp"))
	require.NoError(t, err)
	assert.Equal(t, "int main() { return 0; }", string(srcContent))
}
