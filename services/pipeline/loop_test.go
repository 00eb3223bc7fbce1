// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArkForgeAI/ArkForge/services/codegen"
	"github.com/ArkForgeAI/ArkForge/services/evidence"
	"github.com/ArkForgeAI/ArkForge/services/review"
	"github.com/ArkForgeAI/ArkForge/services/search"
)

const pageBody = "@Entry\n@Component\nstruct Index {\n  build() {}\n}"

// fakeSearcher returns a canned result and records every call.
type fakeSearcher struct {
	queries []string
	modes   []search.Mode
	items   []evidence.RetrievedItem
	tokens  int
}

func (f *fakeSearcher) Search(_ context.Context, query string, mode search.Mode, _ string) *search.Result {
	f.queries = append(f.queries, query)
	f.modes = append(f.modes, mode)
	return &search.Result{
		Query:       query,
		FinalAnswer: "reference answer",
		Items:       f.items,
		ModeUsed:    mode,
		TokenUsage:  f.tokens,
	}
}

// fakeAgent generates per-path content and records fix calls.
type fakeAgent struct {
	genErr       error
	genErrBudget int // fail this many generate calls, then succeed
	fixRefs      [][]string
	fixPaths     []string
	genCalls     int
}

func (f *fakeAgent) GenerateFile(_ context.Context, plan codegen.FilePlan, _, _ string) (string, int, error) {
	f.genCalls++
	if f.genErr != nil && f.genErrBudget != 0 {
		f.genErrBudget--
		return "", 5, f.genErr
	}
	if plan.Kind == codegen.KindSource {
		return pageBody, 5, nil
	}
	return "content of " + plan.Path, 5, nil
}

func (f *fakeAgent) FixFile(_ context.Context, _, path, _ string, _ []codegen.ErrorAnalysis, _ []review.Issue, _, references []string) (string, int, error) {
	f.fixPaths = append(f.fixPaths, path)
	f.fixRefs = append(f.fixRefs, references)
	return pageBody + "\n// revised", 5, nil
}

// fakeChecker pops one canned result per review call.
type fakeChecker struct {
	results []*review.ReviewResult
	calls   int
}

func (f *fakeChecker) Review(_ context.Context, req *review.ReviewRequest) *review.ReviewResult {
	f.calls++
	if len(f.results) == 0 {
		return review.NewReviewResult(req)
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res
}

// fakeWriter records writes and can fail a fixed number of times.
type fakeWriter struct {
	files    map[string]string
	failures int
}

func (f *fakeWriter) Write(relPath, content string) error {
	if f.failures > 0 {
		f.failures--
		return &codegen.WriteError{Path: relPath, Attempts: []string{"injected"}}
	}
	if f.files == nil {
		f.files = make(map[string]string)
	}
	f.files[relPath] = content
	return nil
}

func errorResult(msg string) *review.ReviewResult {
	res := review.NewReviewResult(nil)
	res.Issues = []review.Issue{{Severity: review.SeverityError, Message: msg}}
	return res
}

func newTestPipeline(s *fakeSearcher, a *fakeAgent, c *fakeChecker, w *fakeWriter, maxAttempts int) *Pipeline {
	return NewPipeline(s, a, c, w, Config{MaxAttempts: maxAttempts})
}

func TestRun_CleanFirstPass(t *testing.T) {
	searcher := &fakeSearcher{
		items:  []evidence.RetrievedItem{{Title: "Counter", Text: "use @State"}},
		tokens: 7,
	}
	agent := &fakeAgent{}
	checker := &fakeChecker{}
	writer := &fakeWriter{}

	result := newTestPipeline(searcher, agent, checker, writer, 0).
		Run(context.Background(), "build a counter app", "s1")

	assert.True(t, result.Success)
	assert.Equal(t, PhaseDone, result.FinalPhase)
	assert.Equal(t, 0, result.Attempts)
	assert.Empty(t, result.Issues)

	// One plan per default project layout, all written.
	assert.Len(t, writer.files, 3)
	assert.Contains(t, writer.files, codegen.EntryPagePath)
	assert.Contains(t, writer.files, codegen.StringResourcePath)
	assert.Contains(t, writer.files, codegen.ModuleManifestPath)

	// Planning searched once; only the source file was reviewed.
	require.Len(t, searcher.modes, 1)
	assert.Equal(t, search.ModeHybrid, searcher.modes[0])
	assert.Equal(t, 1, checker.calls)

	// 7 search tokens + 3 generations at 5 each.
	assert.Equal(t, 22, result.TokenUsage)
}

func TestRun_FixCycleResolvesError(t *testing.T) {
	searcher := &fakeSearcher{}
	agent := &fakeAgent{}
	checker := &fakeChecker{results: []*review.ReviewResult{
		errorResult("Cannot find module '@ohos.router'"),
		// Second pass is clean.
	}}
	writer := &fakeWriter{}

	result := newTestPipeline(searcher, agent, checker, writer, 0).
		Run(context.Background(), "router demo", "")

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 2, checker.calls)

	// Research ran in chain mode after the planning search.
	require.Len(t, searcher.modes, 2)
	assert.Equal(t, search.ModeChain, searcher.modes[1])
	assert.Contains(t, searcher.queries[1], "ArkTS")

	// The fix targeted the entry page and carried the research answer.
	require.Len(t, agent.fixPaths, 1)
	assert.Equal(t, codegen.EntryPagePath, agent.fixPaths[0])
	require.NotEmpty(t, agent.fixRefs[0])
	assert.Equal(t, "reference answer", agent.fixRefs[0][0])

	assert.Contains(t, writer.files[codegen.EntryPagePath], "revised")
}

func TestRun_BudgetExhausted(t *testing.T) {
	checker := &fakeChecker{results: []*review.ReviewResult{
		errorResult("error one"),
		errorResult("error two"),
	}}

	result := newTestPipeline(&fakeSearcher{}, &fakeAgent{}, checker, &fakeWriter{}, 2).
		Run(context.Background(), "doomed app", "")

	assert.False(t, result.Success)
	assert.Equal(t, PhaseError, result.FinalPhase)
	assert.Equal(t, 2, result.Attempts)
	assert.NotEmpty(t, result.Issues)
	require.NotEmpty(t, result.Diagnostics)
	assert.Contains(t, result.Diagnostics[len(result.Diagnostics)-1], "budget exhausted")
}

// Compiler chatter with a passing summary is filtered out entirely, so
// warning-shaped findings do not trigger a fix cycle.
func TestRun_WarningsWithCleanCompileFinish(t *testing.T) {
	res := review.NewReviewResult(nil)
	res.Issues = []review.Issue{
		{Severity: review.SeverityWarning, Message: "warning: unused variable"},
	}
	res.ReportText = "COMPILE RESULT:PASS {ERROR:0 WARN:1}"
	checker := &fakeChecker{results: []*review.ReviewResult{res}}

	result := newTestPipeline(&fakeSearcher{}, &fakeAgent{}, checker, &fakeWriter{}, 0).
		Run(context.Background(), "warn app", "")

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Attempts)
}

func TestRun_GenerationFailureChargesBudget(t *testing.T) {
	agent := &fakeAgent{
		genErr:       &codegen.GenerationError{Path: codegen.EntryPagePath, Reason: "prose only"},
		genErrBudget: 1,
	}

	result := newTestPipeline(&fakeSearcher{}, agent, &fakeChecker{}, &fakeWriter{}, 0).
		Run(context.Background(), "flaky model", "")

	// One failed attempt, then a clean retry.
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	require.NotEmpty(t, result.Diagnostics)
	assert.Contains(t, result.Diagnostics[0], "generating")
}

func TestRun_PersistentGenerationFailureTerminates(t *testing.T) {
	agent := &fakeAgent{
		genErr:       &codegen.GenerationError{Path: codegen.EntryPagePath, Reason: "prose only"},
		genErrBudget: -1, // never succeed
	}

	result := newTestPipeline(&fakeSearcher{}, agent, &fakeChecker{}, &fakeWriter{}, 3).
		Run(context.Background(), "hopeless", "")

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Len(t, result.Diagnostics, 3)
}

func TestRun_WriteFailureChargesBudget(t *testing.T) {
	writer := &fakeWriter{failures: 1}

	result := newTestPipeline(&fakeSearcher{}, &fakeAgent{}, &fakeChecker{}, writer, 0).
		Run(context.Background(), "disk hiccup", "")

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.Contains(t, result.Diagnostics[0], "writing")
}

func TestRun_EmptyRequirement(t *testing.T) {
	searcher := &fakeSearcher{}

	result := newTestPipeline(searcher, &fakeAgent{}, &fakeChecker{}, &fakeWriter{}, 0).
		Run(context.Background(), "   ", "")

	assert.False(t, result.Success)
	assert.Empty(t, searcher.queries)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestPipeline(&fakeSearcher{}, &fakeAgent{}, &fakeChecker{}, &fakeWriter{}, 0).
		Run(ctx, "never starts", "")

	assert.False(t, result.Success)
	require.NotEmpty(t, result.Diagnostics)
	assert.Contains(t, result.Diagnostics[0], "cancelled")
}

func TestStateMachine_Transitions(t *testing.T) {
	sm := NewStateMachine()

	valid := [][2]Phase{
		{PhasePlan, PhaseGenerate},
		{PhaseGenerate, PhaseCheck},
		{PhaseGenerate, PhaseGenerate},
		{PhaseCheck, PhaseFilter},
		{PhaseFilter, PhaseDone},
		{PhaseFilter, PhaseAnalyze},
		{PhaseAnalyze, PhaseResearch},
		{PhaseResearch, PhaseGenerate},
		{PhasePlan, PhaseError},
	}
	for _, tr := range valid {
		assert.True(t, sm.CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	invalid := [][2]Phase{
		{PhasePlan, PhaseCheck},
		{PhaseDone, PhasePlan},
		{PhaseError, PhaseGenerate},
		{PhaseResearch, PhaseCheck},
	}
	for _, tr := range invalid {
		assert.False(t, sm.CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
		assert.Error(t, sm.Validate(tr[0], tr[1]))
	}
}

func TestPhaseIsTerminal(t *testing.T) {
	assert.True(t, PhaseDone.IsTerminal())
	assert.True(t, PhaseError.IsTerminal())
	for _, p := range []Phase{PhasePlan, PhaseGenerate, PhaseCheck, PhaseFilter, PhaseAnalyze, PhaseResearch} {
		assert.False(t, p.IsTerminal(), string(p))
	}
}
