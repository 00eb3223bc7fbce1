// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package review runs static analysis over generated code through a
// set of pluggable analyzer back-ends and merges their findings into a
// single scored result.
package review

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for the review package.
var (
	// ErrAnalyzerUnavailable indicates the analyzer tool cannot be reached.
	ErrAnalyzerUnavailable = errors.New("analyzer unavailable")

	// ErrAnalyzerFailed indicates the analyzer process failed to execute.
	ErrAnalyzerFailed = errors.New("analyzer execution failed")

	// ErrUnsupportedLanguage indicates no analyzer handles the language.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParseOutput indicates failure to parse the analyzer's report.
	ErrParseOutput = errors.New("failed to parse analyzer output")

	// ErrInvalidInput indicates invalid input to a review function.
	ErrInvalidInput = errors.New("invalid input")
)

// AnalyzerError wraps errors from a specific back-end with context.
//
// Thread Safety: Immutable after creation.
type AnalyzerError struct {
	// Analyzer is the back-end that failed (e.g., "eslint").
	Analyzer string

	// Language is the language under analysis.
	Language string

	// Err is the underlying error.
	Err error

	// Output contains any stderr output from the tool.
	Output string
}

// Error implements the error interface.
func (e *AnalyzerError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s (%s): %v: %s", e.Analyzer, e.Language, e.Err, e.Output)
	}
	return fmt.Sprintf("%s (%s): %v", e.Analyzer, e.Language, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AnalyzerError) Unwrap() error {
	return e.Err
}

// NewAnalyzerError creates a new AnalyzerError.
func NewAnalyzerError(analyzer, language string, err error) *AnalyzerError {
	return &AnalyzerError{
		Analyzer: analyzer,
		Language: language,
		Err:      err,
	}
}

// WithOutput returns a copy of the error with stderr attached.
func (e *AnalyzerError) WithOutput(output string) *AnalyzerError {
	return &AnalyzerError{
		Analyzer: e.Analyzer,
		Language: e.Language,
		Err:      e.Err,
		Output:   output,
	}
}

// =============================================================================
// Severity
// =============================================================================

// Severity is the canonical issue severity. Every back-end maps its
// tool-native levels onto this set.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// NormalizeSeverity maps tool-native severity strings onto the
// canonical set. Unknown values default to warning.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err", "fatal", "critical", "blocker":
		return SeverityError
	case "warning", "warn", "major", "minor", "style", "performance", "portability":
		return SeverityWarning
	case "info", "information", "note", "hint":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

// =============================================================================
// Issues and Reviews
// =============================================================================

// Issue categories carried through scoring.
const (
	CategoryBug           = "bug"
	CategoryVulnerability = "vulnerability"
	CategoryCodeSmell     = "code_smell"
)

// Issue is one finding from an analyzer back-end.
//
// Thread Safety: Immutable after creation.
type Issue struct {
	// Severity is canonical: error, warning, or info.
	Severity Severity `json:"severity"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// FilePath is the project-relative file, when known.
	FilePath string `json:"file_path,omitempty"`

	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`

	// RuleID is the tool's rule identifier.
	RuleID string `json:"rule_id,omitempty"`

	// Category is bug, vulnerability, or code_smell when the back-end
	// classifies findings; empty otherwise.
	Category string `json:"category,omitempty"`

	// FixHint is an optional suggested fix.
	FixHint string `json:"fix_hint,omitempty"`

	// Backend identifies the analyzer that produced this issue.
	Backend string `json:"backend"`
}

// ReviewType selects the analysis focus.
type ReviewType string

const (
	ReviewComprehensive ReviewType = "comprehensive"
	ReviewSyntax        ReviewType = "syntax"
	ReviewSecurity      ReviewType = "security"
	ReviewPerformance   ReviewType = "performance"
)

// ReviewRequest asks for one static-analysis pass over a code blob.
type ReviewRequest struct {
	// OriginalQuery is the user requirement the code answers.
	OriginalQuery string `json:"original_query,omitempty"`

	// Code is the source text to analyze.
	Code string `json:"code"`

	// Language is the detected (or caller-declared) language. Empty
	// triggers detection.
	Language Language `json:"language,omitempty"`

	// ReviewType defaults to comprehensive.
	ReviewType ReviewType `json:"review_type,omitempty"`

	// Metadata carries caller context (file path, attempt number).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ReviewResult is the merged outcome of one review call.
type ReviewResult struct {
	// RequestID is unique across the process.
	RequestID string `json:"request_id"`

	// Request echoes the analyzed request.
	Request *ReviewRequest `json:"request,omitempty"`

	// ReportText is a human-readable summary.
	ReportText string `json:"report_text"`

	// Issues are the merged findings, each tagged with its back-end.
	Issues []Issue `json:"issues"`

	// Suggestions are actionable follow-ups.
	Suggestions []string `json:"suggestions,omitempty"`

	// Score starts at 100 and is decremented per issue; clamped to 0.
	Score int `json:"score"`

	// Metadata records back-end participation and failures.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Elapsed is the wall-clock analysis duration.
	Elapsed time.Duration `json:"elapsed"`
}

// NewReviewResult creates an empty result for a request with a fresh
// process-unique ID and a perfect starting score.
func NewReviewResult(req *ReviewRequest) *ReviewResult {
	return &ReviewResult{
		RequestID: uuid.NewString(),
		Request:   req,
		Score:     100,
		Metadata:  make(map[string]any),
	}
}

// ErrorCount returns the number of error-severity issues.
func (r *ReviewResult) ErrorCount() int {
	n := 0
	for _, iss := range r.Issues {
		if iss.Severity == SeverityError {
			n++
		}
	}
	return n
}
