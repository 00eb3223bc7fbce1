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
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Compile-time interface implementation check.
var _ Analyzer = (*CppcheckAnalyzer)(nil)

// cppcheckTemplate makes findings line-parseable: one issue per line,
// colon-separated with the message last.
const cppcheckTemplate = "{file}:{line}:{column}:{severity}:{id}:{message}"

// CppcheckAnalyzer runs the native static analyzer over C and C++.
//
// # Thread Safety
//
// Safe for concurrent use.
type CppcheckAnalyzer struct {
	command string
	timeout time.Duration
}

// CppcheckOption configures the analyzer.
type CppcheckOption func(*CppcheckAnalyzer)

// WithCppcheckCommand overrides the binary name (tests).
func WithCppcheckCommand(command string) CppcheckOption {
	return func(a *CppcheckAnalyzer) {
		a.command = command
	}
}

// WithCppcheckTimeout overrides the subprocess budget (default 60s).
func WithCppcheckTimeout(timeout time.Duration) CppcheckOption {
	return func(a *CppcheckAnalyzer) {
		a.timeout = timeout
	}
}

// NewCppcheckAnalyzer creates the native static-analysis back-end.
func NewCppcheckAnalyzer(opts ...CppcheckOption) *CppcheckAnalyzer {
	a := &CppcheckAnalyzer{
		command: "cppcheck",
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID implements the Analyzer interface.
func (a *CppcheckAnalyzer) ID() string { return "cppcheck" }

// IsAvailable probes PATH for the binary.
func (a *CppcheckAnalyzer) IsAvailable() bool {
	_, err := exec.LookPath(a.command)
	return err == nil
}

// Supports implements the Analyzer interface.
func (a *CppcheckAnalyzer) Supports(lang Language) bool {
	return lang == LangC || lang == LangCPP
}

// Review implements the Analyzer interface.
func (a *CppcheckAnalyzer) Review(ctx context.Context, req *ReviewRequest) (*ReviewResult, error) {
	start := time.Now()
	ctx, span := startReviewSpan(ctx, a.ID(), string(req.Language))
	defer span.End()

	if !a.Supports(req.Language) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	tmpFile, err := os.CreateTemp("", "review-*"+ExtensionForLanguage(req.Language))
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

	cmd := exec.CommandContext(cmdCtx, a.command,
		"--enable=warning,style,performance,portability",
		"--template="+cppcheckTemplate,
		"--quiet",
		tmpPath,
	)
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
	// Findings go to stderr; a hard failure leaves it empty and sets
	// a non-zero exit.
	if runErr != nil && stderr.Len() == 0 {
		return nil, NewAnalyzerError(a.ID(), string(req.Language), ErrAnalyzerFailed).
			WithOutput(stdout.String())
	}

	result := NewReviewResult(req)
	result.Issues = a.parseReport(stderr.String())
	result.Score = ScoreIssues(result.Issues)
	result.ReportText = summarizeIssues(a.ID(), result.Issues)
	result.Elapsed = time.Since(start)

	setReviewSpanResult(span, len(result.Issues), result.Score)
	recordReviewMetrics(ctx, a.ID(), string(req.Language), result.Elapsed, len(result.Issues), result.Score, true)
	slog.Debug("Native static analysis completed",
		"analyzer", a.ID(),
		"issues", len(result.Issues),
		"score", result.Score,
	)
	return result, nil
}

// parseReport parses template-formatted findings, one per line.
func (a *CppcheckAnalyzer) parseReport(output string) []Issue {
	var issues []Issue
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// file:line:column:severity:id:message - message may itself
		// contain colons, so split a bounded number of times.
		parts := strings.SplitN(line, ":", 6)
		if len(parts) != 6 {
			continue
		}
		lineNo, _ := strconv.Atoi(parts[1])
		col, _ := strconv.Atoi(parts[2])
		issues = append(issues, Issue{
			Severity: NormalizeSeverity(parts[3]),
			Message:  strings.TrimSpace(parts[5]),
			Line:     lineNo,
			Column:   col,
			RuleID:   parts[4],
			Backend:  a.ID(),
		})
	}
	return issues
}
