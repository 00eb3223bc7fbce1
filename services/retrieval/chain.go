// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ArkForgeAI/ArkForge/services/evidence"
	"github.com/ArkForgeAI/ArkForge/services/llm"
)

// chainTracer is the OpenTelemetry tracer for chain-of-retrieval runs.
var chainTracer = otel.Tracer("arkforge.retrieval.chain")

// =============================================================================
// Engine
// =============================================================================

// Engine runs the chain-of-retrieval loop.
//
// Each iteration synthesizes one follow-up sub-query from the running
// context, fans a vector search out across the routed collections,
// answers the sub-query over the retrieved documents, and keeps only
// the documents the model judges to support that answer.
//
// # Thread Safety
//
// Safe for concurrent use; each Run owns its own mutable state.
type Engine struct {
	chat     llm.ChatClient
	store    evidence.Store
	embedder evidence.Embedder
	router   *evidence.Router
	config   Config
}

// NewEngine creates a chain engine.
//
// Inputs:
//
//	chat - LLM backend. Must not be nil.
//	store - Local vector index. Must not be nil.
//	embedder - Query embedder. Must not be nil.
//	router - Collection router. Must not be nil.
//	config - Engine tuning. Negative MaxIter is clamped to zero.
func NewEngine(chat llm.ChatClient, store evidence.Store, embedder evidence.Embedder, router *evidence.Router, config Config) *Engine {
	if config.MaxIter < 0 {
		config.MaxIter = 0
	}
	return &Engine{
		chat:     chat,
		store:    store,
		embedder: embedder,
		router:   router,
		config:   config,
	}
}

// =============================================================================
// Prompts
// =============================================================================

const subQueryPrompt = `You are decomposing a research question into simple follow-up questions.

Main query: %s

Previous findings:
%s

Ask exactly one simple follow-up question that would help answer the main query. Reply with only the question.`

const intermediateAnswerPrompt = `Answer the question using only the documents below. Be concise.
If the documents do not contain the answer, reply with exactly: %s

Documents:
%s

Question: %s`

const supportingDocsPrompt = `Question: %s
Answer: %s

Documents:
%s

Which documents support this answer? Reply with a list of document indices, e.g. [0, 2].`

const earlyStopPrompt = `Main query: %s

Findings so far:
%s

Is this enough information to answer the main query? Reply with only "Yes" or "No".`

const finalAnswerPrompt = `Answer the main query using the documents and intermediate findings below.

Documents:
%s

Intermediate findings:
%s

Main query: %s`

// =============================================================================
// Run
// =============================================================================

// Run executes the chain for query.
//
// # Outputs
//
//   - *ChainResult: Steps in iteration order, deduplicated item pool,
//     final answer, summed token usage.
//   - error: Non-nil only for LLM failures, which are fatal to the
//     step. Vector-index failures degrade to placeholder sources.
//
// MaxIter of zero yields an empty intermediate context and a final
// answer derived from zero evidence.
func (e *Engine) Run(ctx context.Context, query string) (*ChainResult, error) {
	ctx, span := chainTracer.Start(ctx, "ChainEngine.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", query),
		attribute.Int("max_iter", e.config.MaxIter),
	)

	result := &ChainResult{Query: query}
	deduper := evidence.NewDeduper()

	for iter := 0; iter < e.config.MaxIter; iter++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		subQuery, tokens, err := e.synthesizeSubQuery(ctx, query, result.Steps)
		result.TotalTokens += tokens
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "sub-query synthesis failed")
			return nil, fmt.Errorf("iteration %d: sub-query synthesis: %w", iter, err)
		}

		retrieved, tokens := e.retrieve(ctx, subQuery, deduper)
		result.TotalTokens += tokens

		answer, tokens, err := e.intermediateAnswer(ctx, subQuery, retrieved)
		result.TotalTokens += tokens
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "intermediate answer failed")
			return nil, fmt.Errorf("iteration %d: intermediate answer: %w", iter, err)
		}

		var supporting []evidence.RetrievedItem
		if answer == NoRelevantInformation {
			// Token save: nothing supports a negative answer.
			supporting = nil
		} else {
			var supTokens int
			supporting, supTokens = e.filterSupporting(ctx, subQuery, answer, retrieved)
			result.TotalTokens += supTokens
		}

		result.Steps = append(result.Steps, IntermediateStep{
			SubQuery:        subQuery,
			Answer:          answer,
			SupportingItems: supporting,
		})
		result.Items = append(result.Items, retrieved...)

		slog.Debug("Chain iteration completed",
			"iter", iter,
			"sub_query", subQuery,
			"retrieved", len(retrieved),
			"supporting", len(supporting),
		)

		if e.config.EarlyStopping && iter < e.config.MaxIter-1 {
			stop, tokens, err := e.shouldStop(ctx, query, result.Steps)
			result.TotalTokens += tokens
			if err != nil {
				slog.Warn("Early-stop check failed, continuing", "error", err)
			} else if stop {
				result.StoppedEarly = true
				span.AddEvent("early_stop", trace.WithAttributes(attribute.Int("iter", iter)))
				break
			}
		}
	}

	finalAnswer, tokens, err := e.finalAnswer(ctx, query, result)
	result.TotalTokens += tokens
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "final answer failed")
		return nil, fmt.Errorf("final answer: %w", err)
	}
	result.FinalAnswer = finalAnswer

	span.SetAttributes(
		attribute.Int("steps", len(result.Steps)),
		attribute.Int("items", len(result.Items)),
		attribute.Int("total_tokens", result.TotalTokens),
	)
	return result, nil
}

// =============================================================================
// Iteration Steps
// =============================================================================

// formatContext renders prior steps as the running context string.
// Prior entries are never reordered.
func formatContext(steps []IntermediateStep) string {
	if len(steps) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&b, "Intermediate query %d: %s\nIntermediate answer %d: %s\n", i+1, s.SubQuery, i+1, s.Answer)
	}
	return b.String()
}

// synthesizeSubQuery asks for exactly one follow-up question.
func (e *Engine) synthesizeSubQuery(ctx context.Context, query string, steps []IntermediateStep) (string, int, error) {
	prompt := fmt.Sprintf(subQueryPrompt, query, formatContext(steps))
	reply, tokens, err := e.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		return "", tokens, err
	}
	sub := strings.TrimSpace(llm.StripReasoning(reply))
	if sub == "" {
		sub = query
	}
	return sub, tokens, nil
}

// retrieve routes, embeds, and fans the vector search out across the
// selected collections. Search failures degrade to a placeholder; they
// never abort the iteration.
func (e *Engine) retrieve(ctx context.Context, subQuery string, deduper *evidence.Deduper) ([]evidence.RetrievedItem, int) {
	collections, tokens := e.router.Route(ctx, subQuery)

	vector, err := e.embedder.Embed(ctx, subQuery)
	if err != nil {
		slog.Warn("Embedding failed, skipping retrieval for sub-query",
			"sub_query", subQuery, "error", err)
		return []evidence.RetrievedItem{evidence.PlaceholderItem(evidence.ProvenanceLocal, err)}, tokens
	}

	var (
		mu      sync.Mutex
		results = make([][]evidence.RetrievedItem, len(collections))
		failed  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, collection := range collections {
		g.Go(func() error {
			items, err := e.store.Search(gctx, collection, vector, subQuery)
			if err != nil {
				mu.Lock()
				failed = err
				mu.Unlock()
				slog.Warn("Vector search failed for collection",
					"collection", collection, "error", err)
				return nil // isolate: a dead collection is not fatal
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	// Union in collection order, then dedup against the run pool.
	var union []evidence.RetrievedItem
	for _, r := range results {
		union = append(union, r...)
	}
	if len(union) == 0 && failed != nil {
		union = append(union, evidence.PlaceholderItem(evidence.ProvenanceLocal, failed))
	}
	return deduper.Add(union), tokens
}

// intermediateAnswer answers the sub-query over the retrieved documents.
func (e *Engine) intermediateAnswer(ctx context.Context, subQuery string, items []evidence.RetrievedItem) (string, int, error) {
	docs := evidence.FormatDocuments(items, evidence.FormatOptions{UseWiderText: e.config.UseWiderText})
	if len(items) == 0 {
		docs = "(no documents retrieved)"
	}
	prompt := fmt.Sprintf(intermediateAnswerPrompt, NoRelevantInformation, docs, subQuery)
	reply, tokens, err := e.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		return "", tokens, err
	}
	return strings.TrimSpace(llm.StripReasoning(reply)), tokens, nil
}

// filterSupporting asks which documents support the Q-A pair and keeps
// the in-bounds indices. Defensive by design: a scalar reply is
// wrapped, out-of-bounds indices are dropped, and any failure keeps
// ALL retrieved items (an error-safe superset).
func (e *Engine) filterSupporting(ctx context.Context, subQuery, answer string, items []evidence.RetrievedItem) ([]evidence.RetrievedItem, int) {
	if len(items) == 0 {
		return nil, 0
	}

	docs := evidence.FormatDocuments(items, evidence.FormatOptions{UseWiderText: e.config.UseWiderText})
	prompt := fmt.Sprintf(supportingDocsPrompt, subQuery, answer, docs)
	reply, tokens, err := e.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Supporting-document call failed, keeping all items", "error", err)
		return items, tokens
	}

	indices, err := llm.ParseIndexList(reply)
	if err != nil {
		slog.Warn("Supporting-document parse failed, keeping all items",
			"reply", reply, "error", err)
		return items, tokens
	}

	var supporting []evidence.RetrievedItem
	for _, idx := range indices {
		if idx >= 0 && idx < len(items) {
			supporting = append(supporting, items[idx])
		}
	}
	if len(supporting) == 0 {
		// An empty in-bounds selection still degrades to the superset.
		return items, tokens
	}
	return supporting, tokens
}

// shouldStop runs the sufficiency check.
func (e *Engine) shouldStop(ctx context.Context, query string, steps []IntermediateStep) (bool, int, error) {
	prompt := fmt.Sprintf(earlyStopPrompt, query, formatContext(steps))
	reply, tokens, err := e.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		return false, tokens, err
	}
	answer := strings.ToLower(strings.TrimSpace(llm.StripReasoning(reply)))
	return answer == "yes", tokens, nil
}

// finalAnswer synthesizes the chain's final answer.
func (e *Engine) finalAnswer(ctx context.Context, query string, result *ChainResult) (string, int, error) {
	docs := evidence.FormatDocuments(result.Items, evidence.FormatOptions{UseWiderText: e.config.UseWiderText})
	if len(result.Items) == 0 {
		docs = "(no documents retrieved)"
	}
	prompt := fmt.Sprintf(finalAnswerPrompt, docs, formatContext(result.Steps), query)
	reply, tokens, err := e.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		return "", tokens, err
	}
	return strings.TrimSpace(llm.StripReasoning(reply)), tokens, nil
}
