// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWriter_PlainWrite(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root)

	require.NoError(t, w.Write(ReadmePath, "# Counter App\n"))

	data, err := os.ReadFile(filepath.Join(root, ReadmePath))
	require.NoError(t, err)
	assert.Equal(t, "# Counter App\n", string(data))
}

// The canonical page path is four directories deep; the first tier
// fails on the missing chain and the mkdir tier takes over.
func TestFileWriter_CreatesDirectoryChain(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root)

	require.NoError(t, w.Write(EntryPagePath, arktsBody))

	data, err := os.ReadFile(filepath.Join(root, EntryPagePath))
	require.NoError(t, err)
	assert.Equal(t, arktsBody, string(data))
}

func TestFileWriter_OverwritesExisting(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root)

	require.NoError(t, w.Write(ReadmePath, "first"))
	require.NoError(t, w.Write(ReadmePath, "second"))

	data, err := os.ReadFile(filepath.Join(root, ReadmePath))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

// Empty content can be written but never verifies, so every tier is
// exhausted and the error lists each attempt.
func TestFileWriter_EmptyContentFailsVerification(t *testing.T) {
	root := t.TempDir()
	w := NewFileWriter(root)

	err := w.Write(ReadmePath, "")

	require.Error(t, err)
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, ReadmePath, writeErr.Path)
	assert.Len(t, writeErr.Attempts, 3)
	assert.ErrorIs(t, err, ErrWrite)
}

func TestFileWriter_UnwritableRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(locked, 0500))
	t.Cleanup(func() { os.Chmod(locked, 0750) })

	w := NewFileWriter(locked)
	err := w.Write("out/file.ets", arktsBody)

	require.Error(t, err)
	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
}

func TestReadRequirement(t *testing.T) {
	root := t.TempDir()

	_, ok := ReadRequirement(root)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(root, ReadmePath), []byte("build a todo list"), 0640))
	req, ok := ReadRequirement(root)
	assert.True(t, ok)
	assert.Equal(t, "build a todo list", req)
}
