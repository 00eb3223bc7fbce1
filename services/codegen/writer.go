// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// FileWriter persists generated content under a project root with a
// three-tier strategy: plain write, directory-creating write, then
// temp-file-and-rename. Each tier is verified before the next runs.
//
// # Thread Safety
//
// Safe for concurrent use on distinct paths.
type FileWriter struct {
	root string
}

// NewFileWriter creates a writer rooted at the project directory.
func NewFileWriter(root string) *FileWriter {
	return &FileWriter{root: root}
}

// Write persists content at the project-relative path.
//
// Succeeds on the first tier whose result verifies as an existing,
// non-empty file. Exhausting all three tiers yields a WriteError
// listing every attempt.
func (w *FileWriter) Write(relPath, content string) error {
	full := filepath.Join(w.root, relPath)
	var attempts []string

	// Tier one: plain write into an existing directory.
	if err := os.WriteFile(full, []byte(content), 0640); err == nil {
		if w.verify(full) {
			return nil
		}
		attempts = append(attempts, "plain write: verification failed")
	} else {
		attempts = append(attempts, fmt.Sprintf("plain write: %v", err))
	}

	// Tier two: create the directory chain first.
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		attempts = append(attempts, fmt.Sprintf("mkdir: %v", err))
	} else if err := os.WriteFile(full, []byte(content), 0640); err != nil {
		attempts = append(attempts, fmt.Sprintf("write after mkdir: %v", err))
	} else if w.verify(full) {
		return nil
	} else {
		attempts = append(attempts, "write after mkdir: verification failed")
	}

	// Tier three: temp file in the target directory, then rename.
	if err := w.writeViaTemp(full, content); err != nil {
		attempts = append(attempts, fmt.Sprintf("temp-and-rename: %v", err))
	} else if w.verify(full) {
		return nil
	} else {
		attempts = append(attempts, "temp-and-rename: verification failed")
	}

	slog.Error("All write strategies failed", "path", relPath, "attempts", attempts)
	return &WriteError{Path: relPath, Attempts: attempts}
}

// writeViaTemp writes to a sibling temp file and renames into place.
func (w *FileWriter) writeViaTemp(full, content string) error {
	dir := filepath.Dir(full)
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// verify confirms the file exists and is non-empty.
func (w *FileWriter) verify(full string) bool {
	info, err := os.Stat(full)
	return err == nil && info.Size() > 0
}

// ReadRequirement loads the project README as the requirement text.
// A missing README is not an error; the caller falls back to the
// query it was given.
func ReadRequirement(root string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(root, ReadmePath))
	if err != nil || len(data) == 0 {
		return "", false
	}
	return string(data), true
}
