// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Reasoning Tag Stripping
// =============================================================================

// Reasoning delimiters emitted by chain-of-thought models.
const (
	reasoningOpen  = "<think>"
	reasoningClose = "</think>"
)

// StripReasoning removes a model's reasoning block from its reply.
//
// If the text contains a matched pair of reasoning delimiters, everything
// up to and including the closing marker is discarded. An unmatched
// opening or closing marker leaves the text untouched.
func StripReasoning(text string) string {
	open := strings.Index(text, reasoningOpen)
	if open < 0 {
		return text
	}
	closeIdx := strings.Index(text[open:], reasoningClose)
	if closeIdx < 0 {
		return text
	}
	return strings.TrimLeft(text[open+closeIdx+len(reasoningClose):], "\n")
}

// =============================================================================
// Literal Parsing
// =============================================================================

// ParseError reports that a model reply could not be interpreted as an
// index list after all fallback strategies were exhausted.
type ParseError struct {
	// Text is a truncated copy of the reply that failed to parse.
	Text string
}

// Error implements the error interface for ParseError.
func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse literal from model reply: %q", e.Text)
}

// IsParseError checks if an error is a *ParseError.
func IsParseError(err error) bool {
	_, ok := err.(*ParseError)
	return ok
}

// fencedBlockRe matches a fenced code block and captures its body.
var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n?(.*?)```")

// intRunRe matches runs of digits with an optional leading minus sign.
var intRunRe = regexp.MustCompile(`-?\d+`)

// ParseIndexList interprets a model reply as a list of integers.
//
// The reply is free-form, so parsing is a fallback cascade:
//
//  1. Unwrap a fenced code block if one surrounds the value.
//  2. Greedy-match the first top-level [...] or {...} substring and
//     collect the integer elements inside it (quoted numerics accepted).
//  3. Scan line by line for a line that starts with '[' and ends with ']'.
//  4. Extract all integer runs from the whole text.
//
// A bare integer scalar parses as a single-element list. Returns a
// *ParseError only when every fallback fails.
func ParseIndexList(text string) ([]int, error) {
	text = StripReasoning(text)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseError{Text: truncate(text, 120)}
	}

	// Fallback 1: fenced code block.
	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		trimmed = strings.TrimSpace(m[1])
	}

	// A bare scalar is wrapped into a single-element list.
	if n, err := strconv.Atoi(trimmed); err == nil {
		return []int{n}, nil
	}

	// Fallback 2: first top-level bracketed substring.
	if body, ok := firstBalanced(trimmed, '[', ']'); ok {
		if ints := intsFromElements(body); len(ints) > 0 {
			return ints, nil
		}
	}
	if body, ok := firstBalanced(trimmed, '{', '}'); ok {
		if ints := intsFromElements(body); len(ints) > 0 {
			return ints, nil
		}
	}

	// Fallback 3: a whole line shaped like a list.
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if ints := intsFromElements(line[1 : len(line)-1]); len(ints) > 0 {
				return ints, nil
			}
		}
	}

	// Fallback 4: every integer run in the text.
	if runs := intRunRe.FindAllString(trimmed, -1); len(runs) > 0 {
		ints := make([]int, 0, len(runs))
		for _, r := range runs {
			if n, err := strconv.Atoi(r); err == nil {
				ints = append(ints, n)
			}
		}
		if len(ints) > 0 {
			return ints, nil
		}
	}

	return nil, &ParseError{Text: truncate(text, 120)}
}

// CanonicalIndexList renders an index list in its canonical string form.
//
// ParseIndexList(CanonicalIndexList(xs)) round-trips to xs.
func CanonicalIndexList(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// firstBalanced returns the contents of the first balanced open/close
// pair in s, excluding the delimiters themselves.
func firstBalanced(s string, open, closing byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return s[start+1 : i], true
			}
		}
	}
	return "", false
}

// intsFromElements parses comma-separated elements, accepting bare and
// quoted integers and skipping anything else. Dict-style "key: value"
// elements contribute their value.
func intsFromElements(body string) []int {
	var ints []int
	for _, elem := range strings.Split(body, ",") {
		elem = strings.TrimSpace(elem)
		if i := strings.LastIndex(elem, ":"); i >= 0 {
			elem = strings.TrimSpace(elem[i+1:])
		}
		elem = strings.Trim(elem, `"'`)
		if elem == "" {
			continue
		}
		if n, err := strconv.Atoi(elem); err == nil {
			ints = append(ints, n)
		}
	}
	return ints
}

// truncate shortens s to at most n bytes for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
