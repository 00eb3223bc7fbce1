// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs the search-generate-verify control loop: plan a
// project, generate its files, analyze them, filter the noise, research
// fixes, and repeat within an attempt budget.
package pipeline

import (
	"time"

	"github.com/ArkForgeAI/ArkForge/services/codegen"
	"github.com/ArkForgeAI/ArkForge/services/review"
)

// DefaultMaxAttempts bounds the fix cycle.
const DefaultMaxAttempts = 4

// Phase identifies one node of the control loop.
type Phase string

const (
	PhasePlan     Phase = "PLAN"
	PhaseGenerate Phase = "GENERATE"
	PhaseCheck    Phase = "CHECK"
	PhaseFilter   Phase = "FILTER"
	PhaseAnalyze  Phase = "ANALYZE"
	PhaseResearch Phase = "RESEARCH"
	PhaseDone     Phase = "DONE"
	PhaseError    Phase = "ERROR"
)

// AllPhases returns every phase of the loop.
func AllPhases() []Phase {
	return []Phase{
		PhasePlan, PhaseGenerate, PhaseCheck, PhaseFilter,
		PhaseAnalyze, PhaseResearch, PhaseDone, PhaseError,
	}
}

// IsTerminal reports whether the phase ends the loop.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseError
}

// LoopState is the explicit state threaded through the trampoline. The
// loop is mutual recursion between GENERATE and RESEARCH on paper;
// holding everything here keeps the attempt budget and cancellation
// visible at a single point.
//
// # Thread Safety
//
// Owned by a single run; not safe for concurrent mutation.
type LoopState struct {
	// Requirement is the user's ask, verbatim.
	Requirement string

	// SessionKey scopes search history; empty disables it.
	SessionKey string

	// Attempt counts completed fix cycles.
	Attempt int

	// MaxAttempts is the budget; the loop terminates at
	// Attempt == MaxAttempts regardless of remaining errors.
	MaxAttempts int

	// Plan is derived once and reused across attempts.
	Plan *codegen.ProjectPlan

	// CodeByPath holds the latest written content per file.
	CodeByPath map[string]string

	// Issues are the most recent filtered findings.
	Issues []review.Issue

	// Analyses are the classified errors driving the current fix cycle.
	Analyses []codegen.ErrorAnalysis

	// ReferencesByFile holds research material per target file.
	ReferencesByFile map[string][]string

	// PlanReferences is the precedent material gathered during PLAN.
	PlanReferences string

	// RawOutput is the concatenated analyzer report text, consulted by
	// the noise filter for authoritative error counts.
	RawOutput string

	// Diagnostics records recoverable failures along the way.
	Diagnostics []string

	// TokenUsage sums LLM tokens across every call of the run.
	TokenUsage int
}

// RunResult is the loop's final record. A run always produces one,
// resolved or not.
type RunResult struct {
	// Requirement echoes the input.
	Requirement string `json:"requirement"`

	// Success is true when the loop reached DONE.
	Success bool `json:"success"`

	// FinalPhase is DONE or ERROR.
	FinalPhase Phase `json:"final_phase"`

	// Attempts is the number of fix cycles consumed.
	Attempts int `json:"attempts"`

	// Files is the last written content per project-relative path.
	Files map[string]string `json:"files"`

	// Issues are the unresolved findings, empty on success.
	Issues []review.Issue `json:"issues,omitempty"`

	// Diagnostics lists recoverable failures encountered during the run.
	Diagnostics []string `json:"diagnostics,omitempty"`

	// TokenUsage sums LLM tokens across the run.
	TokenUsage int `json:"token_usage"`

	// Elapsed is the wall-clock run duration.
	Elapsed time.Duration `json:"elapsed"`
}
