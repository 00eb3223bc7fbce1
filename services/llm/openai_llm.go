// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient implements ChatClient against any OpenAI-compatible endpoint.
//
// The zero value is not usable; construct with NewOpenAIClient.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClient builds a client from the environment.
//
// OPENAI_API_KEY is required; if unset, the Podman/Docker secrets path
// /run/secrets/openai_api_key is tried before failing. OPENAI_MODEL
// selects the model (default gpt-4o-mini). OPENAI_BASE_URL points the
// client at a compatible self-hosted endpoint when set.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
		slog.Info("Using custom OpenAI-compatible endpoint", "base_url", baseURL)
	}

	slog.Info("Initializing OpenAI chat client", "model", model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		// Client-side ceiling so a runaway fix loop cannot hammer the
		// endpoint: 2 requests/second with small bursts.
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}, nil
}

// Chat implements the ChatClient interface.
func (o *OpenAIClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, int, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", 0, err
	}

	slog.Debug("Chat completion via OpenAI", "model", o.model, "messages", len(messages))

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", 0, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", resp.Usage.TotalTokens, fmt.Errorf("OpenAI returned no choices")
	}

	slog.Debug("Received response from OpenAI",
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}
