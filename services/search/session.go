// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package search

import (
	"sync"

	"github.com/ArkForgeAI/ArkForge/services/evidence"
)

// DefaultMaxContextLength bounds per-session history.
const DefaultMaxContextLength = 10

// HistoryEntry is one completed search in a session.
type HistoryEntry struct {
	Query  string                   `json:"query"`
	Answer string                   `json:"answer"`
	Items  []evidence.RetrievedItem `json:"items"`
}

// SearchContext is the per-session state the orchestrator accumulates.
//
// QueryHistory and SearchHistory always have equal length; both are
// appended in one critical section and trimmed together.
type SearchContext struct {
	QueryHistory  []string          `json:"query_history"`
	SearchHistory []HistoryEntry    `json:"search_history"`
	Preferences   map[string]string `json:"preferences,omitempty"`
	DomainFocus   string            `json:"domain_focus,omitempty"`
}

// sessionSlot serializes writers for one session key.
type sessionSlot struct {
	mu  sync.Mutex
	ctx SearchContext
}

// SessionStore holds per-session search context.
//
// # Thread Safety
//
// Safe for concurrent use. Sessions serialize per key, not globally:
// two searches on different keys never contend, and searches without a
// session key never touch the store at all.
type SessionStore struct {
	mu     sync.Mutex
	slots  map[string]*sessionSlot
	maxLen int
}

// NewSessionStore creates a store with the given history bound.
// Non-positive maxLen falls back to DefaultMaxContextLength.
func NewSessionStore(maxLen int) *SessionStore {
	if maxLen <= 0 {
		maxLen = DefaultMaxContextLength
	}
	return &SessionStore{
		slots:  make(map[string]*sessionSlot),
		maxLen: maxLen,
	}
}

// slot returns the slot for key, creating it on first use.
func (s *SessionStore) slot(key string) *sessionSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[key]
	if !ok {
		sl = &sessionSlot{ctx: SearchContext{Preferences: make(map[string]string)}}
		s.slots[key] = sl
	}
	return sl
}

// Record appends one completed search to the session's history,
// dropping the oldest entries once the bound is exceeded. An empty key
// is a no-op.
func (s *SessionStore) Record(key, query, answer string, items []evidence.RetrievedItem) {
	if key == "" {
		return
	}
	sl := s.slot(key)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.ctx.QueryHistory = append(sl.ctx.QueryHistory, query)
	sl.ctx.SearchHistory = append(sl.ctx.SearchHistory, HistoryEntry{
		Query:  query,
		Answer: answer,
		Items:  items,
	})

	if over := len(sl.ctx.QueryHistory) - s.maxLen; over > 0 {
		sl.ctx.QueryHistory = append([]string(nil), sl.ctx.QueryHistory[over:]...)
		sl.ctx.SearchHistory = append([]HistoryEntry(nil), sl.ctx.SearchHistory[over:]...)
	}
}

// SetPreference records a user preference on the session.
func (s *SessionStore) SetPreference(key, name, value string) {
	if key == "" {
		return
	}
	sl := s.slot(key)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.ctx.Preferences[name] = value
}

// SetDomainFocus records the session's domain focus.
func (s *SessionStore) SetDomainFocus(key, focus string) {
	if key == "" {
		return
	}
	sl := s.slot(key)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.ctx.DomainFocus = focus
}

// Snapshot returns a copy of the session's context. The second return
// is false when the session does not exist.
func (s *SessionStore) Snapshot(key string) (SearchContext, bool) {
	if key == "" {
		return SearchContext{}, false
	}
	s.mu.Lock()
	sl, ok := s.slots[key]
	s.mu.Unlock()
	if !ok {
		return SearchContext{}, false
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := SearchContext{
		QueryHistory:  append([]string(nil), sl.ctx.QueryHistory...),
		SearchHistory: append([]HistoryEntry(nil), sl.ctx.SearchHistory...),
		Preferences:   make(map[string]string, len(sl.ctx.Preferences)),
		DomainFocus:   sl.ctx.DomainFocus,
	}
	for k, v := range sl.ctx.Preferences {
		out.Preferences[k] = v
	}
	return out, true
}
