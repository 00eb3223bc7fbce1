// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evidence abstracts the corpora the pipeline retrieves from:
// a local vector index, a live web scraper, and the routing layer that
// decides which index partitions to query.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// =============================================================================
// Provenance
// =============================================================================

// Provenance records which retrieval path produced an item.
type Provenance string

const (
	// ProvenanceLocal marks items from the local vector index.
	ProvenanceLocal Provenance = "local"

	// ProvenanceOnline marks items from live web search or scraping.
	ProvenanceOnline Provenance = "online"

	// ProvenanceChain marks items accumulated by a chain-of-retrieval run.
	ProvenanceChain Provenance = "chain"
)

// =============================================================================
// Retrieved Items
// =============================================================================

// RetrievedItem is one ranked snippet of supporting evidence.
//
// Items are content-addressed: two items with identical Text share a
// ContentHash regardless of where they came from.
//
// Thread Safety: Treat as immutable after creation.
type RetrievedItem struct {
	// SourceID identifies the item within its source (object ID, URL hash).
	SourceID string `json:"source_id"`

	// Title is the document title, if the source provides one.
	Title string `json:"title,omitempty"`

	// URL is the document URL or project-relative file path.
	URL string `json:"url,omitempty"`

	// Text is the snippet content used for prompting.
	Text string `json:"text"`

	// WiderText is an optional windowed-context variant of Text.
	// Used in prompt formatting when the text window splitter is enabled.
	WiderText string `json:"wider_text,omitempty"`

	// Score is the source-reported relevance score.
	Score float64 `json:"score"`

	// Provenance records the retrieval path.
	Provenance Provenance `json:"provenance"`

	// Extra carries source-specific metadata.
	Extra map[string]string `json:"extra,omitempty"`
}

// ContentHash returns the stable content address of the item.
func (it *RetrievedItem) ContentHash() string {
	sum := sha256.Sum256([]byte(it.Text))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// Store Interface
// =============================================================================

// ErrRetriever wraps failures of the local vector index. Callers treat
// it as recoverable: an empty item list plus a placeholder source.
var ErrRetriever = errors.New("vector index unavailable")

// Store defines the contract for the local vector index.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Search runs a dense-vector search against one collection.
	//
	// Inputs:
	//
	//	ctx - Context for cancellation and timeout
	//	collection - Index partition to search
	//	vector - Dense query embedding
	//	query - Original query text (for keyword hybrid scoring)
	//
	// Outputs:
	//
	//	[]RetrievedItem - Ranked snippets, best first
	//	error - Wraps ErrRetriever when the index cannot be reached
	Search(ctx context.Context, collection string, vector []float32, query string) ([]RetrievedItem, error)

	// Collections lists the partitions this store knows about.
	Collections() []string
}

// Embedder converts query text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// =============================================================================
// Deduplication
// =============================================================================

// Deduper removes items whose text content has already been seen,
// preserving first-seen order.
//
// Dedup is idempotent: feeding the same items through twice yields the
// same sequence, and re-deduplicating an output is a no-op.
//
// Thread Safety: NOT safe for concurrent use; each retrieval run owns
// its own Deduper.
type Deduper struct {
	seen map[string]bool
}

// NewDeduper creates an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]bool)}
}

// Add filters items already seen by this Deduper and records the rest.
func (d *Deduper) Add(items []RetrievedItem) []RetrievedItem {
	out := make([]RetrievedItem, 0, len(items))
	for _, it := range items {
		h := it.ContentHash()
		if d.seen[h] {
			continue
		}
		d.seen[h] = true
		out = append(out, it)
	}
	return out
}

// Dedup removes duplicate-text items from a single slice, preserving
// first-seen order. Stateless convenience for one-shot callers.
func Dedup(items []RetrievedItem) []RetrievedItem {
	return NewDeduper().Add(items)
}

// PlaceholderItem builds the zero-score diagnostic source used when a
// retrieval branch fails recoverably.
func PlaceholderItem(provenance Provenance, cause error) RetrievedItem {
	return RetrievedItem{
		SourceID:   fmt.Sprintf("placeholder-%s", provenance),
		Title:      "retrieval unavailable",
		Text:       fmt.Sprintf("[%s retrieval failed: %v]", provenance, cause),
		Score:      0,
		Provenance: provenance,
	}
}
