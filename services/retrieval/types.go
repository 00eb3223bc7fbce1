// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval implements the Chain-of-Retrieval engine: an
// iterative loop that decomposes a query into follow-up sub-queries,
// retrieves evidence for each, and filters it to the documents that
// actually support each intermediate answer.
package retrieval

import (
	"github.com/ArkForgeAI/ArkForge/services/evidence"
)

// NoRelevantInformation is the negative literal an intermediate-answer
// prompt instructs the model to return when the retrieved documents do
// not answer the sub-query. An exact match skips the supporting-
// document call for that iteration.
const NoRelevantInformation = "No relevant information found"

// IntermediateStep is one iteration's outcome.
//
// Thread Safety: Immutable after the engine appends it.
type IntermediateStep struct {
	// SubQuery is the follow-up question this iteration asked.
	SubQuery string `json:"sub_query"`

	// Answer is the model's concise answer over the retrieved documents,
	// or NoRelevantInformation.
	Answer string `json:"answer"`

	// SupportingItems are the retrieved items judged to support the
	// sub-query/answer pair.
	SupportingItems []evidence.RetrievedItem `json:"supporting_items"`
}

// ChainResult is the outcome of a full chain run.
type ChainResult struct {
	// Query is the main query the chain decomposed.
	Query string `json:"query"`

	// FinalAnswer is the synthesis over all retrieved evidence.
	FinalAnswer string `json:"final_answer"`

	// Steps are the intermediate steps in iteration order.
	// len(Steps) <= MaxIter always holds.
	Steps []IntermediateStep `json:"steps"`

	// Items is the deduplicated pool of everything retrieved.
	Items []evidence.RetrievedItem `json:"items"`

	// TotalTokens sums token usage across every LLM call in the run.
	TotalTokens int `json:"total_tokens"`

	// StoppedEarly reports whether the sufficiency check ended the
	// chain before MaxIter.
	StoppedEarly bool `json:"stopped_early"`
}

// Config tunes a chain engine.
type Config struct {
	// MaxIter caps the number of iterations (default 4; the control
	// loop uses 2 in fix mode).
	MaxIter int

	// EarlyStopping enables the per-iteration sufficiency check.
	EarlyStopping bool

	// UseWiderText renders windowed context in document prompts when
	// available (the text_window_splitter configuration flag).
	UseWiderText bool
}

// DefaultConfig returns the standard chain configuration.
func DefaultConfig() Config {
	return Config{MaxIter: 4}
}
