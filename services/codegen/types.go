// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package codegen generates and repairs ArkTS project files: prompt
// composition, strict output sanitation, analyzer-noise filtering,
// error classification, and resilient file writing.
package codegen

import (
	"errors"
	"fmt"
)

// Canonical project slots the error classifier understands. Target
// inference falls back onto these when an issue carries no usable
// file path.
const (
	EntryPagePath      = "entry/src/main/ets/pages/Index.ets"
	StringResourcePath = "entry/src/main/resources/base/element/string.json"
	ModuleManifestPath = "entry/src/main/module.json5"
	ReadmePath         = "README.md"
)

// Sentinel errors for the codegen package.
var (
	// ErrGeneration indicates the model output contained no extractable
	// code body. There is deliberately no template fallback.
	ErrGeneration = errors.New("no valid code in model output")

	// ErrWrite indicates all write strategies failed.
	ErrWrite = errors.New("file write failed")
)

// GenerationError reports an unusable model output for one file.
//
// Thread Safety: Immutable after creation.
type GenerationError struct {
	// Path is the file the generation targeted.
	Path string

	// Reason describes what the sanitized output was missing.
	Reason string
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating %s: %s", e.Path, e.Reason)
}

// Unwrap ties the error to ErrGeneration for errors.Is support.
func (e *GenerationError) Unwrap() error { return ErrGeneration }

// IsGenerationError reports whether err is a generation failure.
func IsGenerationError(err error) bool {
	return errors.Is(err, ErrGeneration)
}

// WriteError reports a file write that failed across all strategies.
//
// Thread Safety: Immutable after creation.
type WriteError struct {
	// Path is the destination file.
	Path string

	// Attempts records the per-strategy failures.
	Attempts []string
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s after %d strategies: %v", e.Path, len(e.Attempts), e.Attempts)
}

// Unwrap ties the error to ErrWrite for errors.Is support.
func (e *WriteError) Unwrap() error { return ErrWrite }

// =============================================================================
// Plans
// =============================================================================

// FileKind classifies a planned project file.
type FileKind string

const (
	KindSource   FileKind = "source"
	KindResource FileKind = "resource"
	KindManifest FileKind = "manifest"
)

// FilePlan describes one file the generation pipeline will produce.
type FilePlan struct {
	// Path is project-relative.
	Path string `json:"path"`

	// Kind selects the prompt shape.
	Kind FileKind `json:"kind"`

	// Purpose is a one-line description of the file's role.
	Purpose string `json:"purpose"`

	// Outline sketches the expected content.
	Outline string `json:"outline,omitempty"`
}

// ProjectPlan is the ordered set of files a requirement expands into.
type ProjectPlan struct {
	// Requirement is the user's original ask.
	Requirement string `json:"requirement"`

	// Files are generated in order.
	Files []FilePlan `json:"files"`
}

// DefaultPlan is the minimal ArkTS project layout used when planning
// cannot derive anything richer from the requirement.
func DefaultPlan(requirement string) *ProjectPlan {
	return &ProjectPlan{
		Requirement: requirement,
		Files: []FilePlan{
			{Path: EntryPagePath, Kind: KindSource, Purpose: "entry page implementing the requirement"},
			{Path: StringResourcePath, Kind: KindResource, Purpose: "string resources referenced by the entry page"},
			{Path: ModuleManifestPath, Kind: KindManifest, Purpose: "module manifest declaring the entry ability"},
		},
	}
}
