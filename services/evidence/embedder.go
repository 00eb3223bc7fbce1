// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Compile-time interface implementation check.
var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder produces dense query vectors via an OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder builds an embedder from the environment.
//
// Uses OPENAI_API_KEY (with the container secrets fallback) and
// EMBEDDING_MODEL (default text-embedding-3-small). OPENAI_BASE_URL
// points at a compatible self-hosted endpoint when set.
func NewOpenAIEmbedder() (*OpenAIEmbedder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKeyBytes, err := os.ReadFile("/run/secrets/openai_api_key")
		if err != nil {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(apiKeyBytes))
	}

	model := openai.EmbeddingModel(os.Getenv("EMBEDDING_MODEL"))
	if model == "" {
		model = openai.SmallEmbedding3
		slog.Warn("EMBEDDING_MODEL not set, defaulting to text-embedding-3-small")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Embed implements the Embedder interface.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}
