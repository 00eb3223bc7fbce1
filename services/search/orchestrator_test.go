// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArkForgeAI/ArkForge/services/evidence"
	"github.com/ArkForgeAI/ArkForge/services/llm"
	"github.com/ArkForgeAI/ArkForge/services/retrieval"
)

// =============================================================================
// Fakes
// =============================================================================

type scriptedChat struct {
	replies []string
	calls   int
}

func (s *scriptedChat) Chat(_ context.Context, _ []llm.Message, _ llm.GenerationParams) (string, int, error) {
	s.calls++
	if len(s.replies) == 0 {
		return "", 5, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, 5, nil
}

type fakeStore struct {
	items []evidence.RetrievedItem
	err   error
}

func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, _ string) ([]evidence.RetrievedItem, error) {
	return f.items, f.err
}

func (f *fakeStore) Collections() []string { return []string{"arkts_docs"} }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.5}, nil
}

type fakeScraper struct {
	items []evidence.RetrievedItem
	err   error
}

func (f *fakeScraper) Search(_ context.Context, _ string, _ int) ([]evidence.RetrievedItem, error) {
	return f.items, f.err
}

func (f *fakeScraper) Scrape(_ context.Context, _ string, _ evidence.ScrapeOptions) (string, error) {
	return "", nil
}

type fakeChain struct {
	result *retrieval.ChainResult
	err    error
}

func (f *fakeChain) Run(_ context.Context, _ string) (*retrieval.ChainResult, error) {
	return f.result, f.err
}

func webItem(i int) evidence.RetrievedItem {
	return evidence.RetrievedItem{
		SourceID:   fmt.Sprintf("web-%d", i),
		Text:       fmt.Sprintf("online snippet %d", i),
		Provenance: evidence.ProvenanceOnline,
	}
}

func newOrchestrator(chat llm.ChatClient, store evidence.Store, scraper evidence.Scraper, chain ChainRunner) *Orchestrator {
	router := evidence.NewRouter(nil, store.Collections(), false)
	return NewOrchestrator(chat, store, fakeEmbedder{}, router, scraper, chain, Config{})
}

// =============================================================================
// Tests
// =============================================================================

func TestSearch_EmptyQuery(t *testing.T) {
	o := newOrchestrator(&scriptedChat{}, &fakeStore{}, &fakeScraper{}, nil)

	result := o.Search(context.Background(), "   ", ModeHybrid, "")

	assert.Empty(t, result.Items)
	assert.Equal(t, ModeHybrid, result.ModeUsed)
	assert.LessOrEqual(t, result.Confidence, 0.5)
}

func TestSearch_HybridBranchFailureIsolation(t *testing.T) {
	store := &fakeStore{err: errors.New("vector index down")}
	scraper := &fakeScraper{items: []evidence.RetrievedItem{webItem(0), webItem(1), webItem(2)}}
	chat := &scriptedChat{replies: []string{"A"}}

	o := newOrchestrator(chat, store, scraper, nil)
	result := o.Search(context.Background(), "why does my build fail", ModeHybrid, "")

	// The dead branch surfaces as a textual placeholder, not an error.
	assert.Contains(t, result.FinalAnswer, "local index unavailable")
	assert.Contains(t, result.FinalAnswer, "A")
	require.Len(t, result.Items, 3)
	for _, it := range result.Items {
		assert.Equal(t, evidence.ProvenanceOnline, it.Provenance)
	}
	assert.Contains(t, result.Metadata, "local_error")
}

func TestSearch_HybridBothBranchesMerge(t *testing.T) {
	store := &fakeStore{items: []evidence.RetrievedItem{{SourceID: "d1", Text: "local doc"}}}
	scraper := &fakeScraper{items: []evidence.RetrievedItem{webItem(0)}}
	// local synthesis, online synthesis, merge
	chat := &scriptedChat{replies: []string{"local answer", "online answer", "merged answer"}}

	o := newOrchestrator(chat, store, scraper, nil)
	result := o.Search(context.Background(), "q", ModeHybrid, "")

	assert.Equal(t, "merged answer", result.FinalAnswer)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, 3, chat.calls)
}

func TestSearch_AdaptiveTroubleshootingGoesOnline(t *testing.T) {
	scraper := &fakeScraper{items: []evidence.RetrievedItem{webItem(0)}}
	chat := &scriptedChat{replies: []string{"troubleshooting", "try reinstalling"}}

	o := newOrchestrator(chat, &fakeStore{}, scraper, nil)
	result := o.Search(context.Background(), "app crashes on launch", ModeAdaptive, "")

	assert.Equal(t, QueryTroubleshooting, result.QueryType)
	assert.Equal(t, ModeOnline, result.ModeUsed)
}

func TestSearch_AdaptiveGarbageClassificationDefaultsGeneral(t *testing.T) {
	chat := &scriptedChat{replies: []string{"banana"}}
	o := newOrchestrator(chat, &fakeStore{}, &fakeScraper{}, nil)

	result := o.Search(context.Background(), "something", ModeAdaptive, "")

	assert.Equal(t, QueryGeneral, result.QueryType)
	assert.Equal(t, ModeHybrid, result.ModeUsed)
}

func TestSearch_AdaptiveFlagsCodeGeneration(t *testing.T) {
	// The keyword rule decides before the classifier: every chat call
	// here belongs to the hybrid run, none to classification.
	chat := &scriptedChat{replies: []string{"local", "online", "merged"}}
	o := newOrchestrator(chat, &fakeStore{}, &fakeScraper{}, nil)

	result := o.Search(context.Background(), "write code for a login page", ModeAdaptive, "")

	assert.Equal(t, true, result.Metadata["code_generation"])
	assert.Equal(t, QueryCodeExample, result.QueryType)
	assert.Equal(t, ModeHybrid, result.ModeUsed)
	assert.Equal(t, "merged", result.FinalAnswer)
	assert.Equal(t, 3, chat.calls)
}

func TestSearch_ChainDegradesToHybrid(t *testing.T) {
	chain := &fakeChain{err: errors.New("chain engine offline")}
	scraper := &fakeScraper{items: []evidence.RetrievedItem{webItem(0)}}
	store := &fakeStore{items: []evidence.RetrievedItem{{SourceID: "d1", Text: "x"}}}
	chat := &scriptedChat{replies: []string{"la", "oa", "merged"}}

	o := newOrchestrator(chat, store, scraper, chain)
	result := o.Search(context.Background(), "how does state work", ModeChain, "")

	assert.Equal(t, ModeHybrid, result.ModeUsed)
	assert.Equal(t, string(ModeChain), result.Metadata["degraded_from"])
	assert.Equal(t, "merged", result.FinalAnswer)
}

func TestSearch_ChainSuccess(t *testing.T) {
	chain := &fakeChain{result: &retrieval.ChainResult{
		FinalAnswer: "chain answer",
		Items:       []evidence.RetrievedItem{{SourceID: "d1", Text: "x"}},
		Steps:       []retrieval.IntermediateStep{{SubQuery: "s"}},
		TotalTokens: 42,
	}}

	o := newOrchestrator(&scriptedChat{}, &fakeStore{}, &fakeScraper{}, chain)
	result := o.Search(context.Background(), "q", ModeChain, "")

	assert.Equal(t, "chain answer", result.FinalAnswer)
	assert.Equal(t, ModeChain, result.ModeUsed)
	assert.Equal(t, 42, result.TokenUsage)
	assert.Equal(t, 1, result.Metadata["chain_steps"])
}

func TestSearch_SessionHistoryRecorded(t *testing.T) {
	store := &fakeStore{items: []evidence.RetrievedItem{{SourceID: "d1", Text: "x"}}}
	o := newOrchestrator(&scriptedChat{replies: []string{"a1", "a2"}}, store, &fakeScraper{}, nil)

	o.Search(context.Background(), "first", ModeLocal, "sess-1")
	o.Search(context.Background(), "second", ModeLocal, "sess-1")

	snap, ok := o.Sessions().Snapshot("sess-1")
	require.True(t, ok)
	assert.Equal(t, []string{"first", "second"}, snap.QueryHistory)
	assert.Len(t, snap.SearchHistory, 2)
	assert.Equal(t, len(snap.QueryHistory), len(snap.SearchHistory))
}

func TestSearch_NoSessionKeySkipsStore(t *testing.T) {
	o := newOrchestrator(&scriptedChat{}, &fakeStore{}, &fakeScraper{}, nil)

	o.Search(context.Background(), "q", ModeLocal, "")

	_, ok := o.Sessions().Snapshot("")
	assert.False(t, ok)
}

func TestSessionStore_Bounded(t *testing.T) {
	s := NewSessionStore(10)
	for i := 0; i < 25; i++ {
		s.Record("k", fmt.Sprintf("q%d", i), "a", nil)
	}

	snap, ok := s.Snapshot("k")
	require.True(t, ok)
	assert.Len(t, snap.QueryHistory, 10)
	assert.Len(t, snap.SearchHistory, 10)
	// Oldest entries dropped: the window ends at the last query.
	assert.Equal(t, "q15", snap.QueryHistory[0])
	assert.Equal(t, "q24", snap.QueryHistory[9])
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		sources int
		answer  string
		want    float64
	}{
		{"no sources local", ModeLocal, 0, "short", 0.6},
		{"three sources hybrid caps at one", ModeHybrid, 3, string(make([]byte, 500)), 1.0},
		{"chain bonus", ModeChain, 1, "short", 0.75},
		{"source bonus capped", ModeOnline, 10, "short", 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := confidenceScore(tt.mode, tt.sources, tt.answer)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestIsCodeGenerationQuery(t *testing.T) {
	assert.True(t, IsCodeGenerationQuery("Please generate code for a list view"))
	assert.True(t, IsCodeGenerationQuery("给我一个代码示例"))
	assert.False(t, IsCodeGenerationQuery("what is a struct"))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeHybrid, ParseMode(" Hybrid "))
	assert.Equal(t, ModeAdaptive, ParseMode("bogus"))
	assert.Equal(t, ModeAdaptive, ParseMode(""))
}
