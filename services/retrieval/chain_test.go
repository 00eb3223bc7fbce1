// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArkForgeAI/ArkForge/services/evidence"
	"github.com/ArkForgeAI/ArkForge/services/llm"
)

// =============================================================================
// Fakes
// =============================================================================

// scriptedChat replays replies in order and records the prompts it saw.
type scriptedChat struct {
	replies []string
	prompts []string
	tokens  int
}

func (s *scriptedChat) Chat(_ context.Context, messages []llm.Message, _ llm.GenerationParams) (string, int, error) {
	s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	if len(s.replies) == 0 {
		return "", 10, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	s.tokens += 10
	return reply, 10, nil
}

// fakeStore returns a fixed item set for every collection.
type fakeStore struct {
	items       []evidence.RetrievedItem
	collections []string
}

func (f *fakeStore) Search(_ context.Context, _ string, _ []float32, _ string) ([]evidence.RetrievedItem, error) {
	return f.items, nil
}

func (f *fakeStore) Collections() []string { return f.collections }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func doc(id, text string) evidence.RetrievedItem {
	return evidence.RetrievedItem{SourceID: id, Text: text, Provenance: evidence.ProvenanceLocal}
}

func newTestEngine(chat llm.ChatClient, store evidence.Store, cfg Config) *Engine {
	router := evidence.NewRouter(nil, store.Collections(), false)
	return NewEngine(chat, store, fakeEmbedder{}, router, cfg)
}

// =============================================================================
// Tests
// =============================================================================

func TestEngine_HappyPath(t *testing.T) {
	d1 := doc("D1", "onAreaChange fires when the component area changes")
	d2 := doc("D2", "Window stage lifecycle documentation")
	store := &fakeStore{items: []evidence.RetrievedItem{d1, d2}, collections: []string{"arkts_docs"}}

	chat := &scriptedChat{replies: []string{
		"Which ArkTS event reports size changes?",   // sub-query
		"Use onAreaChange with a state variable",    // intermediate answer
		"[0]",                                       // supporting docs
		"Handle resize with onAreaChange callback.", // final answer
	}}

	engine := newTestEngine(chat, store, Config{MaxIter: 1})
	result, err := engine.Run(context.Background(), "How to handle window resize in ArkTS")
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	step := result.Steps[0]
	assert.Equal(t, "Use onAreaChange with a state variable", step.Answer)
	require.Len(t, step.SupportingItems, 1)
	assert.Equal(t, "D1", step.SupportingItems[0].SourceID)

	// Item pool is the deduplicated union of everything retrieved.
	require.Len(t, result.Items, 2)
	assert.Equal(t, "D1", result.Items[0].SourceID)
	assert.Equal(t, "D2", result.Items[1].SourceID)

	assert.Equal(t, "Handle resize with onAreaChange callback.", result.FinalAnswer)
	assert.Equal(t, 40, result.TotalTokens)
}

func TestEngine_SupportingParseFallback(t *testing.T) {
	items := []evidence.RetrievedItem{doc("D0", "a"), doc("D1", "b"), doc("D2", "c")}
	store := &fakeStore{items: items, collections: []string{"c1"}}

	chat := &scriptedChat{replies: []string{
		"sub",
		"some answer",
		"Here are the supporting docs: 0, 2", // only the integer-run path parses this
		"final",
	}}

	engine := newTestEngine(chat, store, Config{MaxIter: 1})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	sup := result.Steps[0].SupportingItems
	require.Len(t, sup, 2)
	assert.Equal(t, "D0", sup[0].SourceID)
	assert.Equal(t, "D2", sup[1].SourceID)
}

func TestEngine_GarbageSupportingReplyKeepsAll(t *testing.T) {
	items := []evidence.RetrievedItem{doc("D0", "a"), doc("D1", "b")}
	store := &fakeStore{items: items, collections: []string{"c1"}}

	chat := &scriptedChat{replies: []string{
		"sub",
		"answer",
		"none of the documents apply", // unparseable: error-safe superset
		"final",
	}}

	engine := newTestEngine(chat, store, Config{MaxIter: 1})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, result.Steps[0].SupportingItems, 2)
}

func TestEngine_OutOfBoundsIndicesDropped(t *testing.T) {
	items := []evidence.RetrievedItem{doc("D0", "a"), doc("D1", "b")}
	store := &fakeStore{items: items, collections: []string{"c1"}}

	chat := &scriptedChat{replies: []string{
		"sub",
		"answer",
		"[1, 7]",
		"final",
	}}

	engine := newTestEngine(chat, store, Config{MaxIter: 1})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)

	sup := result.Steps[0].SupportingItems
	require.Len(t, sup, 1)
	assert.Equal(t, "D1", sup[0].SourceID)
}

func TestEngine_NegativeAnswerSkipsSupportingCall(t *testing.T) {
	store := &fakeStore{items: []evidence.RetrievedItem{doc("D0", "x")}, collections: []string{"c1"}}

	chat := &scriptedChat{replies: []string{
		"sub",
		NoRelevantInformation, // no supporting-docs call must follow
		"final",
	}}

	engine := newTestEngine(chat, store, Config{MaxIter: 1})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Empty(t, result.Steps[0].SupportingItems)
	// sub-query + intermediate answer + final answer = 3 calls
	assert.Len(t, chat.prompts, 3)
}

func TestEngine_ZeroMaxIter(t *testing.T) {
	store := &fakeStore{collections: []string{"c1"}}
	chat := &scriptedChat{replies: []string{"answer from nothing"}}

	engine := newTestEngine(chat, store, Config{MaxIter: 0})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Empty(t, result.Steps)
	assert.Empty(t, result.Items)
	assert.Equal(t, "answer from nothing", result.FinalAnswer)
}

func TestEngine_EarlyStop(t *testing.T) {
	store := &fakeStore{items: []evidence.RetrievedItem{doc("D0", "x")}, collections: []string{"c1"}}

	chat := &scriptedChat{replies: []string{
		"sub 1",
		"answer 1",
		"[0]",
		"Yes", // sufficiency check ends the chain after iteration 1
		"final",
	}}

	engine := newTestEngine(chat, store, Config{MaxIter: 3, EarlyStopping: true})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Len(t, result.Steps, 1)
	assert.True(t, result.StoppedEarly)
}

func TestEngine_ContextOrderPreserved(t *testing.T) {
	store := &fakeStore{items: []evidence.RetrievedItem{doc("D0", "x")}, collections: []string{"c1"}}

	chat := &scriptedChat{replies: []string{
		"first sub", "first answer", "[0]",
		"second sub", "second answer", "[0]",
		"final",
	}}

	engine := newTestEngine(chat, store, Config{MaxIter: 2})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, "first sub", result.Steps[0].SubQuery)
	assert.Equal(t, "second sub", result.Steps[1].SubQuery)

	// The second sub-query prompt must contain the full running context
	// in iteration order.
	secondPrompt := chat.prompts[3]
	firstIdx := strings.Index(secondPrompt, "Intermediate query 1: first sub")
	require.GreaterOrEqual(t, firstIdx, 0, "running context missing from sub-query prompt")
	assert.Contains(t, secondPrompt, "Intermediate answer 1: first answer")
}

func TestEngine_StepsNeverExceedMaxIter(t *testing.T) {
	store := &fakeStore{items: []evidence.RetrievedItem{doc("D0", "x")}, collections: []string{"c1"}}
	chat := &scriptedChat{} // every reply empty

	engine := newTestEngine(chat, store, Config{MaxIter: 3})
	result, err := engine.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Steps), 3)
}
