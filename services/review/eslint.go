// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// Compile-time interface implementation check.
var _ Analyzer = (*ESLintAnalyzer)(nil)

// ESLintAnalyzer runs a lint-style analyzer over ArkTS, TypeScript,
// and JavaScript code.
//
// ArkTS is analyzed through the TypeScript parser: decorators and
// struct bodies survive parsing, so syntax-level findings still apply.
//
// # Thread Safety
//
// Safe for concurrent use.
type ESLintAnalyzer struct {
	command string
	args    []string
	timeout time.Duration
}

// ESLintOption configures the analyzer.
type ESLintOption func(*ESLintAnalyzer)

// WithESLintCommand overrides the binary name (tests).
func WithESLintCommand(command string) ESLintOption {
	return func(a *ESLintAnalyzer) {
		a.command = command
	}
}

// WithESLintTimeout overrides the subprocess budget (default 30s).
func WithESLintTimeout(timeout time.Duration) ESLintOption {
	return func(a *ESLintAnalyzer) {
		a.timeout = timeout
	}
}

// NewESLintAnalyzer creates the lint back-end.
func NewESLintAnalyzer(opts ...ESLintOption) *ESLintAnalyzer {
	a := &ESLintAnalyzer{
		command: "eslint",
		args:    []string{"--format", "json", "--no-eslintrc", "--parser-options", "ecmaVersion:latest"},
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID implements the Analyzer interface.
func (a *ESLintAnalyzer) ID() string { return "eslint" }

// IsAvailable probes PATH for the binary.
func (a *ESLintAnalyzer) IsAvailable() bool {
	_, err := exec.LookPath(a.command)
	return err == nil
}

// Supports implements the Analyzer interface.
func (a *ESLintAnalyzer) Supports(lang Language) bool {
	switch lang {
	case LangArkTS, LangTypeScript, LangJavaScript:
		return true
	}
	return false
}

// eslintFileReport mirrors one entry of eslint's JSON output.
type eslintFileReport struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity int    `json:"severity"`
		Message  string `json:"message"`
		Line     int    `json:"line"`
		Column   int    `json:"column"`
	} `json:"messages"`
}

// Review implements the Analyzer interface.
func (a *ESLintAnalyzer) Review(ctx context.Context, req *ReviewRequest) (*ReviewResult, error) {
	start := time.Now()
	ctx, span := startReviewSpan(ctx, a.ID(), string(req.Language))
	defer span.End()

	if !a.Supports(req.Language) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	// eslint has no ArkTS parser; lint .ets content through .ts.
	ext := ExtensionForLanguage(req.Language)
	if req.Language == LangArkTS {
		ext = ".ts"
	}

	tmpFile, err := os.CreateTemp("", "review-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(req.Code); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	tmpFile.Close()

	cmdCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := append(append([]string(nil), a.args...), tmpPath)
	cmd := exec.CommandContext(cmdCtx, a.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return timeoutResult(req, a.ID(), a.timeout, time.Since(start)), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// eslint exits non-zero when it finds issues; only an empty stdout
	// marks a real execution failure.
	if runErr != nil && stdout.Len() == 0 {
		return nil, NewAnalyzerError(a.ID(), string(req.Language), ErrAnalyzerFailed).
			WithOutput(stderr.String())
	}

	var reports []eslintFileReport
	if err := json.Unmarshal(stdout.Bytes(), &reports); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseOutput, err)
	}

	result := NewReviewResult(req)
	for _, report := range reports {
		for _, m := range report.Messages {
			severity := SeverityWarning
			if m.Severity == 2 {
				severity = SeverityError
			}
			result.Issues = append(result.Issues, Issue{
				Severity: severity,
				Message:  m.Message,
				Line:     m.Line,
				Column:   m.Column,
				RuleID:   m.RuleID,
				Backend:  a.ID(),
			})
		}
	}

	result.Score = ScoreIssues(result.Issues)
	result.ReportText = summarizeIssues(a.ID(), result.Issues)
	result.Elapsed = time.Since(start)

	setReviewSpanResult(span, len(result.Issues), result.Score)
	recordReviewMetrics(ctx, a.ID(), string(req.Language), result.Elapsed, len(result.Issues), result.Score, true)
	slog.Debug("Lint review completed",
		"analyzer", a.ID(),
		"issues", len(result.Issues),
		"score", result.Score,
	)
	return result, nil
}

// timeoutResult builds the error-severity result contract for a tool
// that exceeded its budget.
func timeoutResult(req *ReviewRequest, analyzerID string, budget, elapsed time.Duration) *ReviewResult {
	result := NewReviewResult(req)
	result.Issues = []Issue{{
		Severity: SeverityError,
		Message:  fmt.Sprintf("%s timed out after %s", analyzerID, budget),
		Backend:  analyzerID,
	}}
	result.Score = ScoreIssues(result.Issues)
	result.ReportText = fmt.Sprintf("%s did not finish within %s", analyzerID, budget)
	result.Metadata["timeout"] = true
	result.Elapsed = elapsed
	return result
}

// summarizeIssues renders a short human-readable report.
func summarizeIssues(analyzerID string, issues []Issue) string {
	if len(issues) == 0 {
		return fmt.Sprintf("%s: no issues found", analyzerID)
	}
	errors, warnings, infos := 0, 0, 0
	for _, iss := range issues {
		switch iss.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		default:
			infos++
		}
	}
	return fmt.Sprintf("%s: %d error(s), %d warning(s), %d info", analyzerID, errors, warnings, infos)
}
