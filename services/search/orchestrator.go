// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/ArkForgeAI/ArkForge/services/evidence"
	"github.com/ArkForgeAI/ArkForge/services/llm"
	"github.com/ArkForgeAI/ArkForge/services/retrieval"
)

// searchTracer is the OpenTelemetry tracer for orchestrated searches.
var searchTracer = otel.Tracer("arkforge.search.orchestrator")

// ChainRunner abstracts the chain-of-retrieval engine so the
// orchestrator can degrade cleanly when none is configured.
type ChainRunner interface {
	Run(ctx context.Context, query string) (*retrieval.ChainResult, error)
}

// Config tunes the orchestrator.
type Config struct {
	// DefaultMode applies when a request carries no mode.
	DefaultMode Mode

	// OnlineLimit caps results from the web search API (default 5).
	OnlineLimit int

	// MaxContextLength bounds per-session history (default 10).
	MaxContextLength int

	// SynthesisItems caps how many sources feed the answer-synthesis
	// prompt (default 5).
	SynthesisItems int
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator dispatches a query across the local vector index and
// the online search API.
//
// # Thread Safety
//
// Safe for concurrent use. Session mutation serializes per session
// key inside the SessionStore.
type Orchestrator struct {
	chat     llm.ChatClient
	store    evidence.Store
	embedder evidence.Embedder
	router   *evidence.Router
	scraper  evidence.Scraper
	chain    ChainRunner
	sessions *SessionStore
	config   Config
}

// NewOrchestrator wires the orchestrator. scraper and chain may be nil
// when the corresponding source is not configured; modes needing them
// degrade instead of failing.
func NewOrchestrator(chat llm.ChatClient, store evidence.Store, embedder evidence.Embedder, router *evidence.Router, scraper evidence.Scraper, chain ChainRunner, config Config) *Orchestrator {
	if config.DefaultMode == "" {
		config.DefaultMode = ModeAdaptive
	}
	if config.OnlineLimit <= 0 {
		config.OnlineLimit = 5
	}
	if config.SynthesisItems <= 0 {
		config.SynthesisItems = 5
	}
	return &Orchestrator{
		chat:     chat,
		store:    store,
		embedder: embedder,
		router:   router,
		scraper:  scraper,
		chain:    chain,
		sessions: NewSessionStore(config.MaxContextLength),
		config:   config,
	}
}

// Sessions exposes the per-session context store.
func (o *Orchestrator) Sessions() *SessionStore { return o.sessions }

// =============================================================================
// Prompts
// =============================================================================

const classifyPrompt = `Classify the following query into exactly one category:
factual, procedural, conceptual, troubleshooting, code_example, general.

Query: %s

Reply with only the category name.`

const synthesisPrompt = `Answer the question using the sources below. Be accurate and concise.

Sources:
%s

Question: %s`

const mergePrompt = `Two searches answered the same question. Merge them into one coherent answer.

Local index answer:
%s

Web search answer:
%s

Question: %s`

// =============================================================================
// Search
// =============================================================================

// Search runs one query and always returns a result record; failures
// of individual sources degrade into placeholder text and metadata
// rather than errors.
//
// An empty mode falls back to the configured default. An empty query
// short-circuits to an empty result with low confidence.
func (o *Orchestrator) Search(ctx context.Context, query string, mode Mode, sessionKey string) *Result {
	start := time.Now()
	if mode == "" {
		mode = o.config.DefaultMode
	}

	ctx, span := searchTracer.Start(ctx, "Orchestrator.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("query", query),
		attribute.String("mode", string(mode)),
	)

	result := &Result{
		Query:     query,
		ModeUsed:  mode,
		QueryType: QueryGeneral,
		Metadata:  make(map[string]any),
	}

	if strings.TrimSpace(query) == "" {
		result.Metadata["empty_query"] = true
		result.Elapsed = time.Since(start)
		return result
	}

	if mode == ModeAdaptive {
		// The keyword rule runs before the classifier so a generation
		// request never spends a classification round-trip. The
		// generation pipeline owns these; flag and fall through so the
		// caller still gets reference material.
		if IsCodeGenerationQuery(query) {
			result.Metadata["code_generation"] = true
			result.QueryType = QueryCodeExample
			mode = modeFor(QueryCodeExample)
		} else {
			queryType, tokens := o.classify(ctx, query)
			result.TokenUsage += tokens
			result.QueryType = queryType
			mode = modeFor(queryType)
		}
		result.ModeUsed = mode
		span.SetAttributes(
			attribute.String("query_type", string(result.QueryType)),
			attribute.String("selected_mode", string(mode)),
		)
	}

	switch mode {
	case ModeLocal:
		o.runLocal(ctx, query, result)
	case ModeOnline:
		o.runOnline(ctx, query, result)
	case ModeChain:
		o.runChain(ctx, query, result)
	default:
		o.runHybrid(ctx, query, result)
	}

	result.Confidence = confidenceScore(result.ModeUsed, len(result.Items), result.FinalAnswer)
	result.Elapsed = time.Since(start)

	o.sessions.Record(sessionKey, query, result.FinalAnswer, result.Items)

	span.SetAttributes(
		attribute.Int("items", len(result.Items)),
		attribute.Float64("confidence", result.Confidence),
		attribute.Int("tokens", result.TokenUsage),
	)
	slog.Info("Search completed",
		"mode", result.ModeUsed,
		"items", len(result.Items),
		"confidence", result.Confidence,
		"elapsed", result.Elapsed,
	)
	return result
}

// classify runs the one-shot query-type prompt. Any failure or
// unrecognized reply defaults to general.
func (o *Orchestrator) classify(ctx context.Context, query string) (QueryType, int) {
	reply, tokens, err := o.chat.Chat(ctx, llm.UserMessage(fmt.Sprintf(classifyPrompt, query)), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Query classification failed, defaulting to general", "error", err)
		return QueryGeneral, tokens
	}
	label := strings.ToLower(strings.TrimSpace(llm.StripReasoning(reply)))
	switch QueryType(label) {
	case QueryFactual, QueryProcedural, QueryConceptual, QueryTroubleshooting, QueryCodeExample, QueryGeneral:
		return QueryType(label), tokens
	}
	return QueryGeneral, tokens
}

// modeFor maps a query type onto a search mode.
func modeFor(t QueryType) Mode {
	switch t {
	case QueryTroubleshooting:
		return ModeOnline
	case QueryProcedural, QueryConceptual:
		return ModeChain
	default:
		// factual, code_example, general
		return ModeHybrid
	}
}

// =============================================================================
// Mode Implementations
// =============================================================================

// runLocal retrieves from the vector index and synthesizes one answer.
func (o *Orchestrator) runLocal(ctx context.Context, query string, result *Result) {
	items, tokens, err := o.searchLocal(ctx, query)
	result.TokenUsage += tokens
	if err != nil {
		result.Metadata["local_error"] = err.Error()
		items = []evidence.RetrievedItem{evidence.PlaceholderItem(evidence.ProvenanceLocal, err)}
	}
	result.Items = items

	answer, tokens := o.synthesize(ctx, query, items)
	result.TokenUsage += tokens
	result.FinalAnswer = answer
}

// runOnline searches the web API and synthesizes one answer.
func (o *Orchestrator) runOnline(ctx context.Context, query string, result *Result) {
	items, err := o.searchOnline(ctx, query)
	if err != nil {
		result.Metadata["online_error"] = err.Error()
		items = []evidence.RetrievedItem{evidence.PlaceholderItem(evidence.ProvenanceOnline, err)}
	}
	result.Items = items

	answer, tokens := o.synthesize(ctx, query, items)
	result.TokenUsage += tokens
	result.FinalAnswer = answer
}

// runHybrid fans local and online out in parallel. A failed branch
// becomes a textual placeholder inside the merged answer; its items
// are dropped so sources reflect only what actually resolved.
func (o *Orchestrator) runHybrid(ctx context.Context, query string, result *Result) {
	var (
		localItems, onlineItems []evidence.RetrievedItem
		localErr, onlineErr     error
		localTokens             int
		wg                      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		localItems, localTokens, localErr = o.searchLocal(ctx, query)
	}()
	go func() {
		defer wg.Done()
		onlineItems, onlineErr = o.searchOnline(ctx, query)
	}()
	wg.Wait()
	result.TokenUsage += localTokens

	localAnswer := o.branchAnswer(ctx, query, localItems, localErr, "local index", result)
	onlineAnswer := o.branchAnswer(ctx, query, onlineItems, onlineErr, "web search", result)

	if localErr == nil {
		result.Items = append(result.Items, localItems...)
	} else {
		result.Metadata["local_error"] = localErr.Error()
	}
	if onlineErr == nil {
		result.Items = append(result.Items, onlineItems...)
	} else {
		result.Metadata["online_error"] = onlineErr.Error()
	}
	result.Items = evidence.Dedup(result.Items)

	if localErr != nil || onlineErr != nil {
		// A failed branch already reads as a bracketed placeholder;
		// keep both sections verbatim so the failure stays visible.
		result.FinalAnswer = localAnswer + "\n\n" + onlineAnswer
		return
	}

	merged, tokens, err := o.chat.Chat(ctx, llm.UserMessage(fmt.Sprintf(mergePrompt, localAnswer, onlineAnswer, query)), llm.GenerationParams{})
	result.TokenUsage += tokens
	if err != nil {
		slog.Warn("Hybrid merge synthesis failed, concatenating branch answers", "error", err)
		result.Metadata["merge_error"] = err.Error()
		result.FinalAnswer = localAnswer + "\n\n" + onlineAnswer
		return
	}
	result.FinalAnswer = strings.TrimSpace(llm.StripReasoning(merged))
}

// runChain runs the chain-of-retrieval engine end to end, degrading to
// hybrid when the engine is missing or fails.
func (o *Orchestrator) runChain(ctx context.Context, query string, result *Result) {
	if o.chain == nil {
		result.Metadata["degraded_from"] = string(ModeChain)
		result.ModeUsed = ModeHybrid
		o.runHybrid(ctx, query, result)
		return
	}

	chainResult, err := o.chain.Run(ctx, query)
	if err != nil {
		slog.Warn("Chain-of-retrieval failed, degrading to hybrid", "error", err)
		result.Metadata["degraded_from"] = string(ModeChain)
		result.Metadata["chain_error"] = err.Error()
		result.ModeUsed = ModeHybrid
		o.runHybrid(ctx, query, result)
		return
	}

	result.FinalAnswer = chainResult.FinalAnswer
	result.Items = chainResult.Items
	result.TokenUsage += chainResult.TotalTokens
	result.Metadata["chain_steps"] = len(chainResult.Steps)
	if chainResult.StoppedEarly {
		result.Metadata["stopped_early"] = true
	}
}

// =============================================================================
// Source Backends
// =============================================================================

// searchLocal routes, embeds, and fans a vector search out across the
// selected collections.
func (o *Orchestrator) searchLocal(ctx context.Context, query string) ([]evidence.RetrievedItem, int, error) {
	if o.store == nil || o.embedder == nil {
		return nil, 0, fmt.Errorf("local index not configured")
	}

	collections, tokens := o.router.Route(ctx, query)

	vector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, tokens, fmt.Errorf("embedding query: %w", err)
	}

	results := make([][]evidence.RetrievedItem, len(collections))
	g, gctx := errgroup.WithContext(ctx)
	var (
		mu     sync.Mutex
		failed error
	)
	for i, collection := range collections {
		g.Go(func() error {
			items, err := o.store.Search(gctx, collection, vector, query)
			if err != nil {
				mu.Lock()
				failed = err
				mu.Unlock()
				slog.Warn("Vector search failed for collection",
					"collection", collection, "error", err)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	var union []evidence.RetrievedItem
	for _, r := range results {
		union = append(union, r...)
	}
	if len(union) == 0 && failed != nil {
		return nil, tokens, failed
	}
	return evidence.Dedup(union), tokens, nil
}

// searchOnline queries the web search API.
func (o *Orchestrator) searchOnline(ctx context.Context, query string) ([]evidence.RetrievedItem, error) {
	if o.scraper == nil {
		return nil, fmt.Errorf("%w: no scraper configured", evidence.ErrScraper)
	}
	return o.scraper.Search(ctx, query, o.config.OnlineLimit)
}

// =============================================================================
// Synthesis
// =============================================================================

// synthesize answers the query over the given sources with one LLM
// call. On failure the formatted sources themselves become the answer.
func (o *Orchestrator) synthesize(ctx context.Context, query string, items []evidence.RetrievedItem) (string, int) {
	docs := evidence.FormatDocuments(items, evidence.FormatOptions{MaxItems: o.config.SynthesisItems})
	if len(items) == 0 {
		docs = "(no sources found)"
	}
	reply, tokens, err := o.chat.Chat(ctx, llm.UserMessage(fmt.Sprintf(synthesisPrompt, docs, query)), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Answer synthesis failed, returning raw sources", "error", err)
		return docs, tokens
	}
	return strings.TrimSpace(llm.StripReasoning(reply)), tokens
}

// branchAnswer produces one hybrid branch's answer: a bracketed
// placeholder on failure, a synthesized answer otherwise.
func (o *Orchestrator) branchAnswer(ctx context.Context, query string, items []evidence.RetrievedItem, branchErr error, label string, result *Result) string {
	if branchErr != nil {
		return fmt.Sprintf("[%s unavailable: %v]", label, branchErr)
	}
	answer, tokens := o.synthesize(ctx, query, items)
	result.TokenUsage += tokens
	return answer
}
