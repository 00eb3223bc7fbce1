// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// scraperTracer is the OpenTelemetry tracer for web scraping operations.
var scraperTracer = otel.Tracer("arkforge.evidence.scraper")

// ErrScraper wraps failures of the online search API. Callers treat it
// as recoverable, the same way they treat ErrRetriever.
var ErrScraper = errors.New("online search unavailable")

// =============================================================================
// Scraper Interface
// =============================================================================

// ScrapeAction is one step of a dynamic-page interaction sequence.
type ScrapeAction struct {
	// Type is one of "wait", "scroll", or "click".
	Type string `json:"type"`

	// Params carries action-specific parameters (milliseconds for wait,
	// a CSS selector for click, a direction for scroll).
	Params map[string]any `json:"params,omitempty"`
}

// ScrapeOptions configures a single page scrape.
type ScrapeOptions struct {
	Formats          []string       `json:"formats,omitempty"`
	IncludeSelectors []string       `json:"includeTags,omitempty"`
	ExcludeSelectors []string       `json:"excludeTags,omitempty"`
	WaitFor          int            `json:"waitFor,omitempty"`
	Timeout          int            `json:"timeout,omitempty"`
	Actions          []ScrapeAction `json:"actions,omitempty"`
}

// Scraper defines the contract for the external web search/scrape API.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Scraper interface {
	// Search runs a web search and returns ranked snippets.
	Search(ctx context.Context, query string, limit int) ([]RetrievedItem, error)

	// Scrape fetches one URL and returns its extracted text content.
	Scrape(ctx context.Context, url string, opts ScrapeOptions) (string, error)
}

// =============================================================================
// Firecrawl-Style HTTP Client
// =============================================================================

// Retry configuration for the scrape API. Transient 5xx failures are
// retried with exponential backoff (1s, 2s, 4s).
const (
	maxScrapeRetries  = 3
	initialRetryDelay = 1 * time.Second
)

// Compile-time interface implementation check.
var _ Scraper = (*FirecrawlScraper)(nil)

// FirecrawlScraper talks to a Firecrawl-compatible search/scrape API.
//
// Results are cached in an optional ScrapeCache keyed by query/URL so
// repeated fix-loop searches do not re-fetch the same pages.
type FirecrawlScraper struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *ScrapeCache
	splitter   *ChunkSplitter
}

// FirecrawlOption configures the FirecrawlScraper.
type FirecrawlOption func(*FirecrawlScraper)

// WithScrapeCache attaches an on-disk response cache.
func WithScrapeCache(cache *ScrapeCache) FirecrawlOption {
	return func(s *FirecrawlScraper) {
		s.cache = cache
	}
}

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) FirecrawlOption {
	return func(s *FirecrawlScraper) {
		s.httpClient = c
	}
}

// NewFirecrawlScraper builds a scraper from the environment.
//
// FIRECRAWL_URL selects the endpoint (default the hosted API);
// FIRECRAWL_API_KEY authenticates when set.
func NewFirecrawlScraper(opts ...FirecrawlOption) *FirecrawlScraper {
	baseURL := os.Getenv("FIRECRAWL_URL")
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
		slog.Warn("FIRECRAWL_URL not set, using hosted API", "url", baseURL)
	}

	s := &FirecrawlScraper{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     os.Getenv("FIRECRAWL_API_KEY"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		splitter:   NewChunkSplitter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// searchResponse mirrors the API's search payload.
type searchResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Markdown    string `json:"markdown"`
	} `json:"data"`
}

// scrapeResponse mirrors the API's scrape payload.
type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		HTML     string `json:"html"`
	} `json:"data"`
}

// Search implements the Scraper interface.
//
// Failures after all retries are wrapped with ErrScraper.
func (s *FirecrawlScraper) Search(ctx context.Context, query string, limit int) ([]RetrievedItem, error) {
	ctx, span := scraperTracer.Start(ctx, "FirecrawlScraper.Search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query), attribute.Int("limit", limit))

	if limit <= 0 {
		limit = 5
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get("search:" + query); ok {
			var items []RetrievedItem
			if err := json.Unmarshal(cached, &items); err == nil {
				span.SetAttributes(attribute.Bool("cache_hit", true))
				return items, nil
			}
		}
	}

	payload := map[string]any{
		"query": query,
		"limit": limit,
		"scrapeOptions": map[string]any{
			"formats": []string{"markdown"},
		},
	}

	body, err := s.postWithRetry(ctx, span, "/v1/search", payload)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing search response: %v", ErrScraper, err)
	}

	items := make([]RetrievedItem, 0, len(resp.Data))
	for i, d := range resp.Data {
		text := d.Markdown
		if text == "" {
			text = d.Description
		}
		if text == "" {
			continue
		}
		// Long pages are reduced to their leading chunk so a single
		// result cannot dominate the prompt budget.
		if chunks := s.splitter.Split(text); len(chunks) > 0 {
			text = chunks[0]
		}
		items = append(items, RetrievedItem{
			SourceID:   fmt.Sprintf("web-%d", i),
			Title:      d.Title,
			URL:        d.URL,
			Text:       text,
			Score:      1.0 - float64(i)*0.1,
			Provenance: ProvenanceOnline,
		})
	}

	if s.cache != nil {
		if blob, err := json.Marshal(items); err == nil {
			s.cache.Put("search:"+query, blob)
		}
	}

	span.SetAttributes(attribute.Int("items", len(items)))
	slog.Debug("Online search completed", "query", query, "items", len(items))
	return items, nil
}

// Scrape implements the Scraper interface.
func (s *FirecrawlScraper) Scrape(ctx context.Context, url string, opts ScrapeOptions) (string, error) {
	ctx, span := scraperTracer.Start(ctx, "FirecrawlScraper.Scrape")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	if s.cache != nil {
		if cached, ok := s.cache.Get("scrape:" + url); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return string(cached), nil
		}
	}

	payload := map[string]any{"url": url}
	if len(opts.Formats) > 0 {
		payload["formats"] = opts.Formats
	}
	if len(opts.IncludeSelectors) > 0 {
		payload["includeTags"] = opts.IncludeSelectors
	}
	if len(opts.ExcludeSelectors) > 0 {
		payload["excludeTags"] = opts.ExcludeSelectors
	}
	if opts.WaitFor > 0 {
		payload["waitFor"] = opts.WaitFor
	}
	if opts.Timeout > 0 {
		payload["timeout"] = opts.Timeout
	}
	if len(opts.Actions) > 0 {
		payload["actions"] = opts.Actions
	}

	body, err := s.postWithRetry(ctx, span, "/v1/scrape", payload)
	if err != nil {
		return "", err
	}

	var resp scrapeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: parsing scrape response: %v", ErrScraper, err)
	}

	content := resp.Data.Markdown
	if content == "" {
		content = resp.Data.HTML
	}

	if s.cache != nil && content != "" {
		s.cache.Put("scrape:"+url, []byte(content))
	}
	return content, nil
}

// postWithRetry posts JSON with exponential backoff on transient errors.
func (s *FirecrawlScraper) postWithRetry(ctx context.Context, span trace.Span, path string, payload any) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", ErrScraper, err)
	}

	var lastErr error
	retryDelay := initialRetryDelay

	for attempt := 0; attempt <= maxScrapeRetries; attempt++ {
		if attempt > 0 {
			span.AddEvent("retry_attempt", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.String("delay", retryDelay.String()),
			))
			slog.Info("Retrying scrape API call",
				"attempt", attempt,
				"delay", retryDelay,
				"lastError", lastErr,
			)
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		body, retryable, err := s.post(ctx, path, payloadBytes)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "scrape API failed")
	return nil, fmt.Errorf("%w: %v", ErrScraper, lastErr)
}

// post performs a single JSON POST. The bool reports retryability.
func (s *FirecrawlScraper) post(ctx context.Context, path string, payload []byte) ([]byte, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return nil, false, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		// Network errors may be transient.
		return nil, ctx.Err() == nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusServiceUnavailable ||
			resp.StatusCode == http.StatusGatewayTimeout ||
			resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("scrape API returned status %d: %s", resp.StatusCode, truncateBytes(body, 200))
	}

	return body, false, nil
}

// truncateBytes shortens a response body for error messages.
func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
