// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"context"
)

// Analyzer is one static-analysis back-end.
//
// Back-ends share no implementation; selection is data-driven through
// the checker's dispatch table, not polymorphism over a base type.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Analyzer interface {
	// ID names the back-end (carried onto every Issue it produces).
	ID() string

	// IsAvailable probes whether the tool can run. No side effects.
	IsAvailable() bool

	// Supports reports whether the back-end handles the language.
	Supports(lang Language) bool

	// Review runs the tool over the request and parses its report.
	//
	// A tool timeout is not an error: it yields a result holding one
	// error-severity issue naming the timed-out tool. A nil error with
	// a populated result is the normal path; a non-nil error means the
	// tool could not run at all.
	Review(ctx context.Context, req *ReviewRequest) (*ReviewResult, error)
}

// =============================================================================
// Scoring
// =============================================================================

// Score decrements per issue, indexed by kind and severity. Bugs and
// vulnerabilities outweigh code smells; error outweighs warning
// outweighs info.
var scoreDecrements = map[string][3]int{
	CategoryBug:           {20, 10, 5},
	CategoryVulnerability: {25, 15, 8},
	CategoryCodeSmell:     {8, 4, 2},
}

// IssueDecrement returns the score penalty for one issue.
//
// Categorized issues use the published kind/severity table.
// Uncategorized issues fall back on severity alone: errors count as
// bugs, warnings as code smells, and plain informational notes are
// free.
func IssueDecrement(iss Issue) int {
	col := 2
	switch iss.Severity {
	case SeverityError:
		col = 0
	case SeverityWarning:
		col = 1
	}

	if row, ok := scoreDecrements[iss.Category]; ok {
		return row[col]
	}

	switch iss.Severity {
	case SeverityError:
		return scoreDecrements[CategoryBug][0]
	case SeverityWarning:
		return scoreDecrements[CategoryCodeSmell][1]
	default:
		return 0
	}
}

// ScoreIssues computes a review score from a merged issue list:
// start at 100, subtract each issue's decrement, clamp to 0.
func ScoreIssues(issues []Issue) int {
	score := 100
	for _, iss := range issues {
		score -= IssueDecrement(iss)
	}
	if score < 0 {
		score = 0
	}
	return score
}
