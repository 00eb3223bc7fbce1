// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ArkForgeAI/ArkForge/services/review"
)

// ErrorType classifies what kind of failure an issue describes.
type ErrorType string

const (
	ErrorSyntax      ErrorType = "syntax"
	ErrorImport      ErrorType = "import"
	ErrorResource    ErrorType = "resource"
	ErrorCompilation ErrorType = "compilation"
	ErrorTypeCheck   ErrorType = "type"
	ErrorUnknown     ErrorType = "unknown"
)

// FixSeverity ranks how urgently an error needs fixing.
type FixSeverity string

const (
	FixCritical FixSeverity = "critical"
	FixHigh     FixSeverity = "high"
	FixMedium   FixSeverity = "medium"
	FixLow      FixSeverity = "low"
)

// FixStrategy is the fixed repair recipe for one error type.
type FixStrategy struct {
	// Approach is a short token naming the repair tactic.
	Approach string `json:"approach"`

	// CanAutoFix reports whether the fix loop should attempt it
	// without human review.
	CanAutoFix bool `json:"can_auto_fix"`

	// Priority labels the fix round this error belongs to.
	Priority string `json:"priority"`
}

// ErrorAnalysis is the classifier's enriched view of one issue.
type ErrorAnalysis struct {
	// ErrorID is unique across the process.
	ErrorID string `json:"error_id"`

	// OriginalMessage is the raw analyzer message.
	OriginalMessage string `json:"original_message"`

	// TargetFile is the inferred project-relative file to repair.
	TargetFile string `json:"target_file"`

	// RootCause is a one-line diagnosis.
	RootCause string `json:"root_cause"`

	// LocationHint carries line/column context when known.
	LocationHint string `json:"location_hint,omitempty"`

	// FixDescription tells the generator what to change.
	FixDescription string `json:"fix_description"`

	// SearchKeywords feed the research step of the fix loop.
	SearchKeywords []string `json:"search_keywords"`

	// Type is the keyword-derived error type.
	Type ErrorType `json:"error_type"`

	// Severity is the keyword-derived urgency.
	Severity FixSeverity `json:"severity"`

	// Strategy is the fixed recipe for Type.
	Strategy FixStrategy `json:"fix_strategy"`

	// Priority orders fix rounds: type weight plus severity weight.
	Priority int `json:"priority"`
}

// =============================================================================
// Keyword Tables
// =============================================================================

// Error-type patterns, checked in order. First match wins.
var errorTypePatterns = []struct {
	errType ErrorType
	re      *regexp.Regexp
}{
	{ErrorImport, regexp.MustCompile(`(?i)cannot find module|module not found|unresolved import|cannot resolve|no exported member`)},
	{ErrorResource, regexp.MustCompile(`(?i)resource|string\.json|\$r\(|media file|element/`)},
	{ErrorTypeCheck, regexp.MustCompile(`(?i)is not assignable|type error|property .* does not exist|incompatible type|expected type`)},
	{ErrorSyntax, regexp.MustCompile(`(?i)syntax|unexpected token|expected ['";,)\]}]|missing [;)}]|unterminated`)},
	{ErrorCompilation, regexp.MustCompile(`(?i)compile|build failed|arkts:|transpile`)},
}

// Severity patterns, checked in order.
var severityPatterns = []struct {
	severity FixSeverity
	re       *regexp.Regexp
}{
	{FixCritical, regexp.MustCompile(`(?i)fatal|crash|cannot find module|cannot resolve|build failed`)},
	{FixHigh, regexp.MustCompile(`(?i)\berror\b|failed|is not assignable|does not exist`)},
	{FixMedium, regexp.MustCompile(`(?i)\bwarn(ing)?\b|deprecat|should`)},
}

// fixStrategies is the fixed per-type repair recipe table.
var fixStrategies = map[ErrorType]FixStrategy{
	ErrorSyntax:      {Approach: "rewrite_statement", CanAutoFix: true, Priority: "first_round"},
	ErrorImport:      {Approach: "correct_import_path", CanAutoFix: true, Priority: "first_round"},
	ErrorResource:    {Approach: "add_resource_entry", CanAutoFix: true, Priority: "second_round"},
	ErrorCompilation: {Approach: "regenerate_file", CanAutoFix: true, Priority: "first_round"},
	ErrorTypeCheck:   {Approach: "align_declarations", CanAutoFix: true, Priority: "second_round"},
	ErrorUnknown:     {Approach: "manual_review", CanAutoFix: false, Priority: "last_round"},
}

// Priority weights. Higher totals are fixed earlier.
var (
	typeWeights = map[ErrorType]int{
		ErrorSyntax:      50,
		ErrorImport:      45,
		ErrorCompilation: 40,
		ErrorTypeCheck:   30,
		ErrorResource:    25,
		ErrorUnknown:     10,
	}
	severityWeights = map[FixSeverity]int{
		FixCritical: 40,
		FixHigh:     30,
		FixMedium:   20,
		FixLow:      10,
	}
)

// =============================================================================
// Classification
// =============================================================================

// ClassifyErrorType maps a message onto an error type by keyword.
func ClassifyErrorType(message string) ErrorType {
	for _, p := range errorTypePatterns {
		if p.re.MatchString(message) {
			return p.errType
		}
	}
	return ErrorUnknown
}

// ClassifySeverity maps a message onto a fix severity by keyword.
func ClassifySeverity(message string) FixSeverity {
	for _, p := range severityPatterns {
		if p.re.MatchString(message) {
			return p.severity
		}
	}
	return FixLow
}

// Classify enriches filtered issues into ordered error analyses.
// knownFiles are the project-relative paths that exist; they anchor
// target inference. The result is sorted by descending priority.
func Classify(issues []review.Issue, knownFiles []string) []ErrorAnalysis {
	analyses := make([]ErrorAnalysis, 0, len(issues))
	for _, iss := range issues {
		errType := ClassifyErrorType(iss.Message)
		severity := ClassifySeverity(iss.Message)

		analysis := ErrorAnalysis{
			ErrorID:         uuid.NewString(),
			OriginalMessage: iss.Message,
			TargetFile:      InferTargetFile(iss, knownFiles),
			RootCause:       rootCauseFor(errType),
			FixDescription:  fixDescriptionFor(errType),
			SearchKeywords:  searchKeywords(iss.Message, errType),
			Type:            errType,
			Severity:        severity,
			Strategy:        fixStrategies[errType],
			Priority:        typeWeights[errType] + severityWeights[severity],
		}
		if iss.Line > 0 {
			analysis.LocationHint = locationHint(iss)
		}
		analyses = append(analyses, analysis)
	}

	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].Priority > analyses[j].Priority
	})
	return analyses
}

func locationHint(iss review.Issue) string {
	hint := "line " + strconv.Itoa(iss.Line)
	if iss.Column > 0 {
		hint += ", column " + strconv.Itoa(iss.Column)
	}
	return hint
}

func rootCauseFor(t ErrorType) string {
	switch t {
	case ErrorSyntax:
		return "malformed statement or unbalanced delimiter"
	case ErrorImport:
		return "import path does not resolve to a module"
	case ErrorResource:
		return "referenced resource missing from resource files"
	case ErrorCompilation:
		return "file fails to compile as a unit"
	case ErrorTypeCheck:
		return "declaration and usage disagree on a type"
	default:
		return "unclassified analyzer finding"
	}
}

func fixDescriptionFor(t ErrorType) string {
	switch t {
	case ErrorSyntax:
		return "rewrite the offending statement with valid ArkTS syntax"
	case ErrorImport:
		return "correct the import specifier or add the missing module"
	case ErrorResource:
		return "add the missing entry to the string resource file"
	case ErrorCompilation:
		return "regenerate the file so it compiles cleanly"
	case ErrorTypeCheck:
		return "align the declared type with its usage"
	default:
		return "inspect the message and repair the reported construct"
	}
}

// quotedNameRe captures identifiers the analyzer singled out.
var quotedNameRe = regexp.MustCompile(`['"` + "`" + `]([\w$./@-]+)['"` + "`" + `]`)

// searchKeywords derives research keywords from a message: quoted
// identifiers first, then the error-type token, always anchored to
// the ArkTS domain.
func searchKeywords(message string, errType ErrorType) []string {
	keywords := []string{"ArkTS"}
	for _, m := range quotedNameRe.FindAllStringSubmatch(message, 3) {
		keywords = append(keywords, m[1])
	}
	keywords = append(keywords, string(errType)+" error")
	return keywords
}

// =============================================================================
// Target Inference
// =============================================================================

// resourceMsgRe and manifestMsgRe route pathless issues to the
// resource or manifest slots.
var (
	resourceMsgRe = regexp.MustCompile(`(?i)resource|element/string|string\.json|\$r\(`)
	manifestMsgRe = regexp.MustCompile(`(?i)module\.json|manifest|ability config`)
	buildMsgRe    = regexp.MustCompile(`(?i)build|compil|transpile`)
)

// InferTargetFile resolves the project-relative file an issue should
// be fixed in. A usable path on the issue wins; otherwise the message
// routes to a canonical slot, preferring a known source file for
// build-level failures.
func InferTargetFile(iss review.Issue, knownFiles []string) string {
	path := strings.TrimSpace(iss.FilePath)
	if path != "" && !strings.EqualFold(path, "unknown") && isProjectRelative(path) {
		return path
	}

	switch {
	case resourceMsgRe.MatchString(iss.Message):
		return StringResourcePath
	case manifestMsgRe.MatchString(iss.Message):
		return ModuleManifestPath
	case buildMsgRe.MatchString(iss.Message):
		for _, f := range knownFiles {
			if strings.HasSuffix(f, ".ets") {
				return f
			}
		}
		return EntryPagePath
	default:
		return EntryPagePath
	}
}

// isProjectRelative rejects absolute paths and traversal.
func isProjectRelative(path string) bool {
	if strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return false
	}
	return !strings.Contains(path, ":")
}
