// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package search unifies the local vector index and the online
// search/scrape API behind a single orchestrator with adaptive mode
// selection, per-session context, and confidence scoring.
package search

import (
	"strings"
	"time"

	"github.com/ArkForgeAI/ArkForge/services/evidence"
)

// =============================================================================
// Modes and Query Types
// =============================================================================

// Mode selects a search strategy.
type Mode string

const (
	// ModeLocal searches the vector index only.
	ModeLocal Mode = "local_only"

	// ModeOnline searches the web API only.
	ModeOnline Mode = "online_only"

	// ModeHybrid runs local and online in parallel and merges.
	ModeHybrid Mode = "hybrid"

	// ModeChain runs the full chain-of-retrieval loop.
	ModeChain Mode = "chain_of_search"

	// ModeAdaptive classifies the query and picks one of the above.
	ModeAdaptive Mode = "adaptive"
)

// ParseMode maps a configuration string onto a Mode, defaulting to
// adaptive for anything unrecognized.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLocal, ModeOnline, ModeHybrid, ModeChain, ModeAdaptive:
		return Mode(strings.ToLower(strings.TrimSpace(s)))
	default:
		return ModeAdaptive
	}
}

// QueryType is the adaptive classifier's label for a query.
type QueryType string

const (
	QueryFactual         QueryType = "factual"
	QueryProcedural      QueryType = "procedural"
	QueryConceptual      QueryType = "conceptual"
	QueryTroubleshooting QueryType = "troubleshooting"
	QueryCodeExample     QueryType = "code_example"
	QueryGeneral         QueryType = "general"
)

// codeGenTriggers are phrases that mark a query as a code-generation
// request. Such queries belong to the generation pipeline, not to a
// plain search; the orchestrator flags them for the caller.
var codeGenTriggers = []string{
	"generate code",
	"code example",
	"write code",
	"write me code",
	"生成代码",
	"代码示例",
	"写代码",
	"写一段代码",
}

// IsCodeGenerationQuery reports whether the query asks for code to be
// produced rather than a question answered.
func IsCodeGenerationQuery(query string) bool {
	q := strings.ToLower(query)
	for _, trigger := range codeGenTriggers {
		if strings.Contains(q, trigger) {
			return true
		}
	}
	return false
}

// =============================================================================
// Results
// =============================================================================

// Result is the orchestrator's answer to one search call.
type Result struct {
	// Query is the original query text.
	Query string `json:"query"`

	// FinalAnswer is the synthesized answer.
	FinalAnswer string `json:"final_answer"`

	// Items are the deduplicated sources backing the answer.
	Items []evidence.RetrievedItem `json:"items"`

	// ModeUsed is the mode that actually ran (after adaptive selection
	// or degradation).
	ModeUsed Mode `json:"mode_used"`

	// QueryType is the classifier's label, or general when no
	// classification ran.
	QueryType QueryType `json:"query_type"`

	// Confidence is the heuristic answer confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Elapsed is the wall-clock duration of the call.
	Elapsed time.Duration `json:"elapsed"`

	// TokenUsage sums LLM tokens across every call this search made.
	TokenUsage int `json:"token_usage"`

	// Metadata carries diagnostic detail (degradations, branch
	// failures, cache behavior).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// confidenceScore computes the heuristic confidence for an answer.
//
// Base 0.5, plus min(0.1*|sources|, 0.3), plus a mode bonus (hybrid
// 0.2, chain 0.15, local/online 0.1), plus 0.1 when the answer length
// sits in [100, 2000]. Capped at 1.0. The constants are tuned
// heuristics, not derived values.
func confidenceScore(mode Mode, sourceCount int, answer string) float64 {
	score := 0.5

	sourceBonus := 0.1 * float64(sourceCount)
	if sourceBonus > 0.3 {
		sourceBonus = 0.3
	}
	score += sourceBonus

	switch mode {
	case ModeHybrid:
		score += 0.2
	case ModeChain:
		score += 0.15
	case ModeLocal, ModeOnline:
		score += 0.1
	}

	if n := len(answer); n >= 100 && n <= 2000 {
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
