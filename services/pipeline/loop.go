// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ArkForgeAI/ArkForge/services/codegen"
	"github.com/ArkForgeAI/ArkForge/services/evidence"
	"github.com/ArkForgeAI/ArkForge/services/review"
	"github.com/ArkForgeAI/ArkForge/services/search"
)

// loopTracer is the OpenTelemetry tracer for the control loop.
var loopTracer = otel.Tracer("arkforge.pipeline")

// Searcher gathers reference material.
type Searcher interface {
	Search(ctx context.Context, query string, mode search.Mode, sessionKey string) *search.Result
}

// Generator produces and repairs project files.
type Generator interface {
	GenerateFile(ctx context.Context, plan codegen.FilePlan, requirement, references string) (string, int, error)
	FixFile(ctx context.Context, requirement, path, content string, analyses []codegen.ErrorAnalysis, rawIssues []review.Issue, rawExcerpts, references []string) (string, int, error)
}

// Checker analyzes generated code.
type Checker interface {
	Review(ctx context.Context, req *review.ReviewRequest) *review.ReviewResult
}

// Writer persists generated files.
type Writer interface {
	Write(relPath, content string) error
}

// Config tunes a pipeline.
type Config struct {
	// MaxAttempts bounds the fix cycle. Zero or negative falls back to
	// DefaultMaxAttempts.
	MaxAttempts int

	// PlanReferenceItems caps the precedent documents rendered into the
	// initial generation prompt. Zero means all.
	PlanReferenceItems int
}

// Pipeline is the control loop over planning, generation, analysis,
// and research.
//
// # Thread Safety
//
// Safe for concurrent use; each Run owns its own LoopState.
type Pipeline struct {
	searcher Searcher
	agent    Generator
	checker  Checker
	writer   Writer
	machine  *StateMachine
	config   Config
}

// NewPipeline assembles the control loop from its subsystems.
func NewPipeline(searcher Searcher, agent Generator, checker Checker, writer Writer, config Config) *Pipeline {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	return &Pipeline{
		searcher: searcher,
		agent:    agent,
		checker:  checker,
		writer:   writer,
		machine:  DefaultStateMachine,
		config:   config,
	}
}

// Run executes the loop for one requirement until DONE, ERROR, or
// context cancellation. It always returns a result record; failures
// are folded into it rather than returned.
func (p *Pipeline) Run(ctx context.Context, requirement, sessionKey string) *RunResult {
	start := time.Now()
	ctx, span := loopTracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("requirement", requirement))

	st := &LoopState{
		Requirement:      requirement,
		SessionKey:       sessionKey,
		MaxAttempts:      p.config.MaxAttempts,
		CodeByPath:       make(map[string]string),
		ReferencesByFile: make(map[string][]string),
	}

	phase := PhasePlan
	if strings.TrimSpace(requirement) == "" {
		st.Diagnostics = append(st.Diagnostics, "empty requirement")
		phase = PhaseError
	}

	// Trampoline: each step returns the next phase; the budget, the
	// transition graph, and cancellation are all checked here.
	for !phase.IsTerminal() {
		if err := ctx.Err(); err != nil {
			st.Diagnostics = append(st.Diagnostics, fmt.Sprintf("run cancelled in %s: %v", phase, err))
			phase = PhaseError
			break
		}

		next := p.step(ctx, phase, st)
		if err := p.machine.Validate(phase, next); err != nil {
			// A step asking for an impossible transition is a bug, not
			// a user-input failure. Fail the run loudly.
			slog.Error("Control loop transition rejected", "from", phase, "to", next)
			st.Diagnostics = append(st.Diagnostics, err.Error())
			next = PhaseError
		}

		slog.Debug("Loop transition", "from", phase, "to", next, "attempt", st.Attempt)
		phase = next
	}

	result := &RunResult{
		Requirement: requirement,
		Success:     phase == PhaseDone,
		FinalPhase:  phase,
		Attempts:    st.Attempt,
		Files:       st.CodeByPath,
		Issues:      st.Issues,
		Diagnostics: st.Diagnostics,
		TokenUsage:  st.TokenUsage,
		Elapsed:     time.Since(start),
	}
	span.SetAttributes(
		attribute.Bool("success", result.Success),
		attribute.Int("attempts", result.Attempts),
	)
	slog.Info("Control loop finished",
		"success", result.Success,
		"attempts", result.Attempts,
		"open_issues", len(result.Issues),
		"elapsed", result.Elapsed)
	return result
}

// step dispatches one phase.
func (p *Pipeline) step(ctx context.Context, phase Phase, st *LoopState) Phase {
	switch phase {
	case PhasePlan:
		return p.stepPlan(ctx, st)
	case PhaseGenerate:
		return p.stepGenerate(ctx, st)
	case PhaseCheck:
		return p.stepCheck(ctx, st)
	case PhaseFilter:
		return p.stepFilter(st)
	case PhaseAnalyze:
		return p.stepAnalyze(st)
	case PhaseResearch:
		return p.stepResearch(ctx, st)
	default:
		return PhaseError
	}
}

// =============================================================================
// Phases
// =============================================================================

// stepPlan derives the project plan and gathers precedent material.
// The plan is reused on later passes.
func (p *Pipeline) stepPlan(ctx context.Context, st *LoopState) Phase {
	if st.Plan != nil {
		return PhaseGenerate
	}

	res := p.searcher.Search(ctx, st.Requirement, search.ModeHybrid, st.SessionKey)
	st.TokenUsage += res.TokenUsage
	st.PlanReferences = evidence.FormatDocuments(res.Items, evidence.FormatOptions{
		MaxItems: p.config.PlanReferenceItems,
	})
	if len(res.Items) == 0 {
		st.Diagnostics = append(st.Diagnostics, "planning search returned no precedents")
	}

	st.Plan = codegen.DefaultPlan(st.Requirement)
	return PhaseGenerate
}

// stepGenerate writes files. With classified errors pending it rewrites
// the affected files; otherwise it produces the whole plan.
func (p *Pipeline) stepGenerate(ctx context.Context, st *LoopState) Phase {
	if len(st.Analyses) > 0 {
		return p.fixFiles(ctx, st)
	}
	return p.generateAll(ctx, st)
}

// generateAll produces every planned file in order.
func (p *Pipeline) generateAll(ctx context.Context, st *LoopState) Phase {
	for _, plan := range st.Plan.Files {
		content, tokens, err := p.agent.GenerateFile(ctx, plan, st.Requirement, st.PlanReferences)
		st.TokenUsage += tokens
		if err != nil {
			return p.failAttempt(st, fmt.Sprintf("generating %s: %v", plan.Path, err))
		}
		if err := p.writer.Write(plan.Path, content); err != nil {
			return p.failAttempt(st, fmt.Sprintf("writing %s: %v", plan.Path, err))
		}
		st.CodeByPath[plan.Path] = content
	}
	return PhaseCheck
}

// fixFiles rewrites each file named by the classified errors.
func (p *Pipeline) fixFiles(ctx context.Context, st *LoopState) Phase {
	grouped := groupByTarget(st.Analyses)
	for _, path := range sortedKeys(grouped) {
		analyses := grouped[path]
		content := st.CodeByPath[path]

		fixed, tokens, err := p.agent.FixFile(ctx, st.Requirement, path, content,
			analyses, issuesForFile(st.Issues, path), nil, st.ReferencesByFile[path])
		st.TokenUsage += tokens
		if err != nil {
			return p.failAttempt(st, fmt.Sprintf("fixing %s: %v", path, err))
		}
		if err := p.writer.Write(path, fixed); err != nil {
			return p.failAttempt(st, fmt.Sprintf("writing %s: %v", path, err))
		}
		st.CodeByPath[path] = fixed
	}

	st.Analyses = nil
	return PhaseCheck
}

// failAttempt records a recoverable failure and charges the budget.
// Classified errors are kept so the retry stays in fix mode.
func (p *Pipeline) failAttempt(st *LoopState, diagnostic string) Phase {
	slog.Warn("Attempt failed", "attempt", st.Attempt, "reason", diagnostic)
	st.Diagnostics = append(st.Diagnostics, diagnostic)
	st.Attempt++
	if st.Attempt >= st.MaxAttempts {
		return PhaseError
	}
	return PhaseGenerate
}

// stepCheck reviews every source file and pools the findings.
func (p *Pipeline) stepCheck(ctx context.Context, st *LoopState) Phase {
	var issues []review.Issue
	var reports []string

	for _, path := range sortedKeys(st.CodeByPath) {
		if !isSourcePath(path) {
			continue
		}
		res := p.checker.Review(ctx, &review.ReviewRequest{
			OriginalQuery: st.Requirement,
			Code:          st.CodeByPath[path],
			Metadata: map[string]any{
				"file_path": path,
				"attempt":   st.Attempt,
			},
		})
		for _, iss := range res.Issues {
			if iss.FilePath == "" {
				iss.FilePath = path
			}
			issues = append(issues, iss)
		}
		if res.ReportText != "" {
			reports = append(reports, res.ReportText)
		}
	}

	st.Issues = issues
	st.RawOutput = strings.Join(reports, "\n")
	return PhaseFilter
}

// stepFilter strips analyzer noise; a clean report ends the loop.
func (p *Pipeline) stepFilter(st *LoopState) Phase {
	st.Issues = codegen.FilterNoise(st.Issues, st.RawOutput)
	if countErrors(st.Issues) == 0 {
		st.Issues = nil
		return PhaseDone
	}
	return PhaseAnalyze
}

// stepAnalyze classifies the surviving errors and charges the budget.
func (p *Pipeline) stepAnalyze(st *LoopState) Phase {
	st.Attempt++
	if st.Attempt >= st.MaxAttempts {
		st.Diagnostics = append(st.Diagnostics,
			fmt.Sprintf("attempt budget exhausted with %d unresolved issues", len(st.Issues)))
		return PhaseError
	}

	st.Analyses = codegen.Classify(st.Issues, sortedKeys(st.CodeByPath))
	return PhaseResearch
}

// stepResearch gathers reference material per target file. Chain mode
// is requested; the orchestrator degrades it to hybrid on its own when
// the chain engine is unavailable. Research failures are tolerated:
// a fix attempt without references is still worth making.
func (p *Pipeline) stepResearch(ctx context.Context, st *LoopState) Phase {
	st.ReferencesByFile = make(map[string][]string)

	for path, analyses := range groupByTarget(st.Analyses) {
		res := p.searcher.Search(ctx, researchQuery(analyses), search.ModeChain, st.SessionKey)
		st.TokenUsage += res.TokenUsage

		var refs []string
		if res.FinalAnswer != "" {
			refs = append(refs, res.FinalAnswer)
		}
		for _, item := range res.Items {
			refs = append(refs, item.Text)
		}
		st.ReferencesByFile[path] = refs
	}
	return PhaseGenerate
}

// =============================================================================
// Helpers
// =============================================================================

// researchQuery builds one search query for a target file's error
// group from the highest-priority analysis.
func researchQuery(analyses []codegen.ErrorAnalysis) string {
	top := analyses[0]
	if len(top.SearchKeywords) > 0 {
		return strings.Join(top.SearchKeywords, " ")
	}
	return top.OriginalMessage
}

// groupByTarget buckets analyses by the file they repair.
func groupByTarget(analyses []codegen.ErrorAnalysis) map[string][]codegen.ErrorAnalysis {
	grouped := make(map[string][]codegen.ErrorAnalysis)
	for _, an := range analyses {
		grouped[an.TargetFile] = append(grouped[an.TargetFile], an)
	}
	return grouped
}

// issuesForFile selects the raw issues attributed to one file.
func issuesForFile(issues []review.Issue, path string) []review.Issue {
	var out []review.Issue
	for _, iss := range issues {
		if iss.FilePath == path {
			out = append(out, iss)
		}
	}
	return out
}

// countErrors counts error-severity issues.
func countErrors(issues []review.Issue) int {
	n := 0
	for _, iss := range issues {
		if iss.Severity == review.SeverityError {
			n++
		}
	}
	return n
}

// isSourcePath reports whether the path holds analyzable code.
func isSourcePath(path string) bool {
	return strings.HasSuffix(path, ".ets") || strings.HasSuffix(path, ".ts")
}

// sortedKeys returns map keys in stable order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
