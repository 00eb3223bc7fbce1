// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArkForgeAI/ArkForge/services/review"
)

func warnIssue(msg string) review.Issue {
	return review.Issue{Severity: review.SeverityWarning, Message: msg}
}

func errIssue(msg string) review.Issue {
	return review.Issue{Severity: review.SeverityError, Message: msg}
}

func TestAuthoritativeErrorCount(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		count int
		found bool
	}{
		{"compiler pass", "COMPILE RESULT:PASS {ERROR:0 WARN:3}", 0, true},
		{"compiler fail", "COMPILE RESULT:FAIL {ERROR:2 WARN:0}", 2, true},
		{"native linter", "Defects: found Errors:4 Warns:1", 4, true},
		{"no summary", "some random build output", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, found := AuthoritativeErrorCount(tt.raw)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.count, count)
		})
	}
}

// A clean compile empties the list even when warning entries exist.
func TestFilterNoise_CleanCompile(t *testing.T) {
	issues := []review.Issue{
		warnIssue("warning: unused variable a"),
		warnIssue("warning: unused variable b"),
		warnIssue("warning: deprecated API"),
	}
	raw := "COMPILE RESULT:PASS {ERROR:0 WARN:3}"

	got := FilterNoise(issues, raw)
	assert.Empty(t, got)
}

// All five entries look like warnings, but the compiler counted two
// real errors: the safety net keeps the first three, the authoritative
// count truncates to two.
func TestFilterNoise_SafetyNet(t *testing.T) {
	issues := []review.Issue{
		warnIssue("warning: entry one"),
		warnIssue("warning: entry two"),
		warnIssue("warning: entry three"),
		warnIssue("warning: entry four"),
		warnIssue("warning: entry five"),
	}
	raw := "COMPILE RESULT:FAIL {ERROR:2 WARN:0}"

	got := FilterNoise(issues, raw)

	require.Len(t, got, 2)
	assert.Equal(t, "warning: entry one", got[0].Message)
	assert.Equal(t, "warning: entry two", got[1].Message)
}

func TestFilterNoise_DropsChatter(t *testing.T) {
	issues := []review.Issue{
		errIssue("BUILD SUCCESSFUL in 3s"),
		warnIssue("Total: 3 errors, 1 warnings"),
		errIssue("cannot find module '@ohos.router'"),
		warnIssue("warning: shadowed variable"),
	}

	got := FilterNoise(issues, "")

	require.Len(t, got, 1)
	assert.Equal(t, "cannot find module '@ohos.router'", got[0].Message)
}

// An error-severity entry survives even when its message is
// warning-shaped.
func TestFilterNoise_ErrorSeverityBeatsWarningPattern(t *testing.T) {
	issues := []review.Issue{
		errIssue("warning treated as error: implicit any"),
	}

	got := FilterNoise(issues, "")
	require.Len(t, got, 1)
}

func TestFilterNoise_SafetyNetSmallerList(t *testing.T) {
	issues := []review.Issue{
		warnIssue("warning: only entry"),
	}

	got := FilterNoise(issues, "")
	require.Len(t, got, 1)
	assert.Equal(t, "warning: only entry", got[0].Message)
}

func TestFilterNoise_EmptyInput(t *testing.T) {
	assert.Empty(t, FilterNoise(nil, ""))
	assert.Empty(t, FilterNoise(nil, "COMPILE RESULT:FAIL {ERROR:2 WARN:0}"))
}
