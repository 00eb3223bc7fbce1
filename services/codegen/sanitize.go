// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"regexp"
	"strings"

	"github.com/ArkForgeAI/ArkForge/services/llm"
)

// Sanitation patterns. Model output arrives as best-effort prose
// around code; these carve the code back out.
var (
	// fenceRe captures the first fenced block with a code-ish tag.
	fenceRe = regexp.MustCompile("(?s)```(?:arkts|typescript|ets|ts)?[ \t]*\n(.*?)```")

	// codeStartRe finds the first line that looks like code: an import
	// or an ArkTS component decorator.
	codeStartRe = regexp.MustCompile(`(?m)^[ \t]*(import\s|@Entry\b|@Component\b)`)

	// Documentation-marker lines dropped from code bodies.
	enumeratedRe = regexp.MustCompile(`^\s*\d+\.\s`)
	headingRe    = regexp.MustCompile(`^#{1,6}\s`)
	fenceLineRe  = regexp.MustCompile("^\\s*```")
	cjkLabelRe   = regexp.MustCompile(`^[\p{Han}\p{Hiragana}\p{Katakana}\p{Hangul}][^:：]*[:：]\s*$`)

	// Non-ASCII-script detection for string literals and comments.
	cjkRe       = regexp.MustCompile(`[\p{Han}\p{Hiragana}\p{Katakana}\p{Hangul}]`)
	stringLitRe = regexp.MustCompile(`'[^'\n]*'|"[^"\n]*"`)

	// Code-shape markers for validation.
	validCodeRe = regexp.MustCompile(`(?m)^[ \t]*import\s|@Entry\b|@Component\b|\bstruct\s+\w+|\bbuild\s*\(\s*\)`)
)

// Sanitize reduces raw model output to a bare code body.
//
// Steps, in order: strip reasoning tags; unwrap the first fenced code
// block; failing that, cut from the first import or decorator line
// when prose precedes it; drop documentation-marker lines; replace
// non-ASCII-script string literals with a placeholder and drop
// comment lines written in a non-ASCII script.
//
// The pipeline is a fixed point: sanitizing its own output returns
// the same text.
func Sanitize(raw string) string {
	text := llm.StripReasoning(raw)

	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else if loc := codeStartRe.FindStringIndex(text); loc != nil && proseBefore(text[:loc[0]]) {
		text = text[loc[0]:]
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if enumeratedRe.MatchString(line) ||
			headingRe.MatchString(line) ||
			fenceLineRe.MatchString(line) ||
			cjkLabelRe.MatchString(strings.TrimSpace(line)) {
			continue
		}

		if cjkRe.MatchString(line) {
			line = replaceCJKLiterals(line)
			if cjkRe.MatchString(line) {
				// Whatever is left sits in a comment or a code
				// position; neither survives.
				continue
			}
		}
		kept = append(kept, line)
	}

	return strings.TrimRight(strings.Join(kept, "\n"), " \t\n")
}

// proseBefore reports whether the prefix holds anything besides blank
// lines and comments. A leading header comment belongs to the code and
// survives; prose means the model narrated before the code started.
func proseBefore(prefix string) bool {
	for _, line := range strings.Split(prefix, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" ||
			strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "*") {
			continue
		}
		return true
	}
	return false
}

// replaceCJKLiterals swaps string literals containing non-ASCII-script
// characters for a neutral placeholder, preserving the quote style.
func replaceCJKLiterals(line string) string {
	return stringLitRe.ReplaceAllStringFunc(line, func(lit string) string {
		if !cjkRe.MatchString(lit) {
			return lit
		}
		quote := lit[:1]
		return quote + "placeholder" + quote
	})
}

// ValidCode reports whether sanitized text still looks like an ArkTS
// source body: at least one import, decorator, struct, or build().
func ValidCode(text string) bool {
	return validCodeRe.MatchString(text)
}
