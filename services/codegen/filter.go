// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"log/slog"
	"regexp"
	"strconv"

	"github.com/ArkForgeAI/ArkForge/services/review"
)

// Authoritative summary-line patterns. The compiler and the native
// linter both print their own totals; when present, those totals
// outrank any per-entry heuristic.
var (
	compileResultRe = regexp.MustCompile(`COMPILE RESULT:\s*\S*\s*\{ERROR:(\d+)\s+WARN:(\d+)\}`)
	defectsRe       = regexp.MustCompile(`Defects:.*Errors:\s*(\d+)\s+Warns:\s*(\d+)`)
)

// Noise patterns. Entries matching these are build chatter, not
// actionable findings.
var (
	successRe = regexp.MustCompile(`(?i)BUILD SUCCESSFUL|compilation passed|compile success|finished in \d|up-to-date`)
	statsRe   = regexp.MustCompile(`(?i)^\s*(total|summary|statistics)\b|\d+\s+errors?,\s*\d+\s+warnings?|files? analyzed`)
	warningRe = regexp.MustCompile(`(?i)\bwarn(ing)?\b|deprecat|note:`)
)

// safetyNetSize is how many entries survive when filtering would
// otherwise discard everything.
const safetyNetSize = 3

// AuthoritativeErrorCount extracts the analyzer's own error total from
// its raw output. The second return is false when no summary line is
// present.
func AuthoritativeErrorCount(rawOutput string) (int, bool) {
	if m := compileResultRe.FindStringSubmatch(rawOutput); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	if m := defectsRe.FindStringSubmatch(rawOutput); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	return 0, false
}

// FilterNoise reduces a raw issue list to the entries worth fixing.
//
// The analyzer's own summary line is authoritative: a reported error
// count of zero empties the list outright, and a non-zero count caps
// how many entries survive. Success banners, statistics lines, and
// warning-shaped entries (unless their severity is literally error)
// are dropped. If that would discard every entry while some existed,
// the first three are retained - a silent "zero real errors" must
// never mask an actual build failure.
func FilterNoise(issues []review.Issue, rawOutput string) []review.Issue {
	count, counted := AuthoritativeErrorCount(rawOutput)
	if counted && count == 0 {
		slog.Debug("Analyzer reports zero errors, dropping all entries",
			"entries", len(issues))
		return nil
	}

	var survivors []review.Issue
	for _, iss := range issues {
		if successRe.MatchString(iss.Message) {
			continue
		}
		if statsRe.MatchString(iss.Message) {
			continue
		}
		if warningRe.MatchString(iss.Message) && iss.Severity != review.SeverityError {
			continue
		}
		survivors = append(survivors, iss)
	}

	if len(survivors) == 0 && len(issues) > 0 {
		n := safetyNetSize
		if n > len(issues) {
			n = len(issues)
		}
		survivors = append([]review.Issue(nil), issues[:n]...)
		slog.Warn("Noise filter would remove all entries, retaining safety net",
			"retained", n, "original", len(issues))
	}

	if counted && len(survivors) > count {
		survivors = survivors[:count]
	}
	return survivors
}
