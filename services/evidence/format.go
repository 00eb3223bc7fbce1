// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// =============================================================================
// Chunk Splitting
// =============================================================================

// ChunkSplitter breaks long scraped pages into prompt-sized chunks.
type ChunkSplitter struct {
	splitter textsplitter.RecursiveCharacter
}

// NewChunkSplitter creates a splitter tuned for documentation pages.
func NewChunkSplitter() *ChunkSplitter {
	return &ChunkSplitter{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(1500),
			textsplitter.WithChunkOverlap(100),
		),
	}
}

// Split breaks text into chunks. On splitter failure the whole text is
// returned as a single chunk.
func (c *ChunkSplitter) Split(text string) []string {
	chunks, err := c.splitter.SplitText(text)
	if err != nil {
		slog.Warn("Text splitting failed, using whole document", "error", err)
		return []string{text}
	}
	return chunks
}

// =============================================================================
// Prompt Formatting
// =============================================================================

// FormatOptions controls document rendering for prompts.
type FormatOptions struct {
	// UseWiderText substitutes WiderText for Text when present
	// (the text_window_splitter configuration flag).
	UseWiderText bool

	// MaxItems caps how many items are rendered. Zero means all.
	MaxItems int

	// MaxItemChars truncates each item's text. Zero means no limit.
	MaxItemChars int
}

// FormatDocuments renders retrieved items as a numbered document list
// for LLM prompts.
//
// Output shape, one block per item:
//
//	[Document 0: Title (url)]
//	text...
func FormatDocuments(items []RetrievedItem, opts FormatOptions) string {
	if opts.MaxItems > 0 && len(items) > opts.MaxItems {
		items = items[:opts.MaxItems]
	}

	var b strings.Builder
	for i, it := range items {
		text := it.Text
		if opts.UseWiderText && it.WiderText != "" {
			text = it.WiderText
		}
		if opts.MaxItemChars > 0 && len(text) > opts.MaxItemChars {
			text = text[:opts.MaxItemChars] + "..."
		}

		header := fmt.Sprintf("[Document %d", i)
		if it.Title != "" {
			header += ": " + it.Title
		}
		if it.URL != "" {
			header += " (" + it.URL + ")"
		}
		header += "]"

		b.WriteString(header)
		b.WriteString("\n")
		b.WriteString(text)
		if i < len(items)-1 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// FormatSources renders items as a short source list for answers.
func FormatSources(items []RetrievedItem) string {
	var b strings.Builder
	for i, it := range items {
		b.WriteString(fmt.Sprintf("%d. %s", i+1, it.Title))
		if it.URL != "" {
			b.WriteString(" - " + it.URL)
		}
		if i < len(items)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
