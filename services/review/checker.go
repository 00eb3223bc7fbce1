// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDispatch is the language-to-back-end matrix. Selection is
// data, not polymorphism: a language maps to an ordered list of
// back-end IDs, all of which run when available.
func DefaultDispatch() map[Language][]string {
	return map[Language][]string{
		LangArkTS:      {"eslint", "sonarqube"},
		LangTypeScript: {"eslint", "sonarqube"},
		LangJavaScript: {"eslint", "sonarqube"},
		LangC:          {"cppcheck", "sonarqube"},
		LangCPP:        {"cppcheck", "sonarqube"},
		LangJava:       {"sonarqube"},
		LangPython:     {"sonarqube"},
		LangHTML:       {"sonarqube"},
		LangCSS:        {"sonarqube"},
	}
}

// CheckerConfig tunes the unified checker.
type CheckerConfig struct {
	// Dispatch overrides the default language-to-back-end matrix.
	Dispatch map[Language][]string
}

// UnifiedChecker dispatches review requests across analyzer back-ends
// and merges their findings.
//
// # Thread Safety
//
// Safe for concurrent use.
type UnifiedChecker struct {
	analyzers map[string]Analyzer
	dispatch  map[Language][]string
}

// NewUnifiedChecker wires the checker over a set of back-ends.
func NewUnifiedChecker(config CheckerConfig, analyzers ...Analyzer) *UnifiedChecker {
	dispatch := config.Dispatch
	if dispatch == nil {
		dispatch = DefaultDispatch()
	}
	byID := make(map[string]Analyzer, len(analyzers))
	for _, a := range analyzers {
		byID[a.ID()] = a
	}
	return &UnifiedChecker{
		analyzers: byID,
		dispatch:  dispatch,
	}
}

// Review analyzes the request and always returns a result record.
//
// Language detection runs first when the request does not declare one.
// Every back-end the dispatch matrix names for the language runs
// concurrently if it supports the language and is available; the
// merged result preserves each issue's back-end provenance and
// recomputes the score from the merged list rather than averaging
// per-back-end scores. With no usable back-end, the result is the
// info-severity fallback with score 0 - this method never fails.
func (c *UnifiedChecker) Review(ctx context.Context, req *ReviewRequest) *ReviewResult {
	start := time.Now()
	ctx, span := startReviewSpan(ctx, "unified", string(req.Language))
	defer span.End()

	if req.ReviewType == "" {
		req.ReviewType = ReviewComprehensive
	}
	if req.Language == "" || req.Language == LangUnknown {
		req.Language = DetectLanguage(req.Code)
	}

	selected := c.selectBackends(req.Language)
	if len(selected) == 0 {
		result := c.unavailableResult(req, time.Since(start))
		recordReviewMetrics(ctx, "unified", string(req.Language), result.Elapsed, 0, 0, false)
		return result
	}

	results := make([]*ReviewResult, len(selected))
	var (
		mu       sync.Mutex
		failures []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, analyzer := range selected {
		g.Go(func() error {
			res, err := analyzer.Review(gctx, req)
			if err != nil {
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", analyzer.ID(), err))
				mu.Unlock()
				slog.Warn("Analyzer back-end failed",
					"analyzer", analyzer.ID(), "error", err)
				return nil // isolate: one dead back-end is not fatal
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	merged := NewReviewResult(req)
	var reports []string
	ran := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		ran++
		merged.Issues = append(merged.Issues, res.Issues...)
		merged.Suggestions = append(merged.Suggestions, res.Suggestions...)
		if res.ReportText != "" {
			reports = append(reports, res.ReportText)
		}
	}

	if ran == 0 {
		result := c.unavailableResult(req, time.Since(start))
		result.Metadata["backend_failures"] = failures
		recordReviewMetrics(ctx, "unified", string(req.Language), result.Elapsed, 0, 0, false)
		return result
	}

	merged.Score = ScoreIssues(merged.Issues)
	if len(merged.Issues) == 0 {
		merged.ReportText = "no issues found"
	} else {
		merged.ReportText = strings.Join(reports, "\n")
	}
	merged.Metadata["backends_run"] = ran
	if len(failures) > 0 {
		merged.Metadata["backend_failures"] = failures
	}
	merged.Elapsed = time.Since(start)

	setReviewSpanResult(span, len(merged.Issues), merged.Score)
	recordReviewMetrics(ctx, "unified", string(req.Language), merged.Elapsed, len(merged.Issues), merged.Score, true)
	slog.Info("Unified review completed",
		"language", req.Language,
		"backends", ran,
		"issues", len(merged.Issues),
		"score", merged.Score,
	)
	return merged
}

// selectBackends resolves the dispatch matrix for a language down to
// back-ends that both support it and are currently available.
func (c *UnifiedChecker) selectBackends(lang Language) []Analyzer {
	var selected []Analyzer
	for _, id := range c.dispatch[lang] {
		analyzer, ok := c.analyzers[id]
		if !ok {
			continue
		}
		if !analyzer.Supports(lang) {
			continue
		}
		if !analyzer.IsAvailable() {
			slog.Debug("Analyzer unavailable, skipping", "analyzer", id, "language", lang)
			continue
		}
		selected = append(selected, analyzer)
	}
	return selected
}

// unavailableResult is the fallback contract: info severity, score 0,
// a message explaining unavailability, and suggestions listing what
// the configured back-ends could analyze instead.
func (c *UnifiedChecker) unavailableResult(req *ReviewRequest, elapsed time.Duration) *ReviewResult {
	result := NewReviewResult(req)
	result.Score = 0
	result.Issues = []Issue{{
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("no analyzer available for language %q", req.Language),
		Backend:  "unified",
	}}
	result.ReportText = fmt.Sprintf("analysis skipped: no back-end can review %s code", req.Language)
	result.Suggestions = []string{
		"supported languages: " + strings.Join(c.supportedLanguages(), ", "),
	}
	result.Metadata["analyzer_unavailable"] = true
	result.Elapsed = elapsed
	return result
}

// supportedLanguages unions the languages of every registered,
// dispatchable back-end.
func (c *UnifiedChecker) supportedLanguages() []string {
	seen := make(map[string]bool)
	for lang, ids := range c.dispatch {
		for _, id := range ids {
			if analyzer, ok := c.analyzers[id]; ok && analyzer.Supports(lang) {
				seen[string(lang)] = true
			}
		}
	}
	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}
