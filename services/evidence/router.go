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
	"strings"

	"github.com/ArkForgeAI/ArkForge/services/llm"
)

// Router chooses which vector-index collections to query for a
// question. Routing is advisory: any failure degrades to querying all
// collections rather than dropping the search.
//
// # Thread Safety
//
// Safe for concurrent use.
type Router struct {
	chat        llm.ChatClient
	collections []string
	enabled     bool
}

// NewRouter creates a Router over the given collections.
//
// Inputs:
//
//	chat - LLM used for the one-shot routing prompt. May be nil
//	       when enabled is false.
//	collections - All known collections
//	enabled - The route_collection configuration flag
func NewRouter(chat llm.ChatClient, collections []string, enabled bool) *Router {
	return &Router{chat: chat, collections: collections, enabled: enabled}
}

// routePrompt asks for a comma-separated subset of collection names.
const routePrompt = `You route questions to document collections.
Available collections: %s
Question: %s
Reply with only the relevant collection names, comma-separated. Reply with "all" if unsure.`

// Route returns the collections to search for query plus the token
// count spent deciding.
//
// When routing is disabled, or the routing call or its parse fails,
// all collections are returned.
func (r *Router) Route(ctx context.Context, query string) ([]string, int) {
	if !r.enabled || r.chat == nil || len(r.collections) <= 1 {
		return r.all(), 0
	}

	prompt := fmt.Sprintf(routePrompt, strings.Join(r.collections, ", "), query)
	reply, tokens, err := r.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		slog.Warn("Collection routing failed, using all collections", "error", err)
		return r.all(), 0
	}

	reply = strings.ToLower(strings.TrimSpace(llm.StripReasoning(reply)))
	if reply == "" || reply == "all" {
		return r.all(), tokens
	}

	known := make(map[string]string, len(r.collections))
	for _, c := range r.collections {
		known[strings.ToLower(c)] = c
	}

	var selected []string
	for _, part := range strings.Split(reply, ",") {
		part = strings.TrimSpace(strings.Trim(strings.TrimSpace(part), `"'`))
		if c, ok := known[part]; ok {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		slog.Debug("Routing reply matched no collections, using all", "reply", reply)
		return r.all(), tokens
	}

	slog.Debug("Routed query to collections", "collections", selected)
	return selected, tokens
}

// all returns a copy of every known collection.
func (r *Router) all() []string {
	out := make([]string, len(r.collections))
	copy(out, r.collections)
	return out
}
