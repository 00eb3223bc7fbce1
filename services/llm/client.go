// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "context"

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerationParams tunes a single completion request.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ChatClient defines the standard interface for any LLM backend.
//
// Chat sends an ordered message sequence and returns the assistant's
// text plus the total token count the backend reported for the call.
// Implementations must respect context cancellation.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, int, error)
}

// UserMessage is a convenience constructor for a single-user-turn call.
func UserMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}
