// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArkForgeAI/ArkForge/services/llm"
	"github.com/ArkForgeAI/ArkForge/services/review"
)

// scriptedChat replays canned replies and records every prompt.
type scriptedChat struct {
	replies []string
	prompts []string
	err     error
}

func (s *scriptedChat) Chat(_ context.Context, messages []llm.Message, _ llm.GenerationParams) (string, int, error) {
	if len(messages) > 0 {
		s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	}
	if s.err != nil {
		return "", 0, s.err
	}
	if len(s.replies) == 0 {
		return "", 10, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, 10, nil
}

func TestGenerateFile_SanitizesFencedReply(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		"Here you go:\n```typescript\n" + arktsBody + "\n```",
	}}
	agent := NewAgent(chat)

	content, tokens, err := agent.GenerateFile(context.Background(),
		FilePlan{Path: EntryPagePath, Kind: KindSource, Purpose: "entry page"},
		"a counter app", "")

	require.NoError(t, err)
	assert.Equal(t, arktsBody, content)
	assert.Equal(t, 10, tokens)

	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], EntryPagePath)
	assert.Contains(t, chat.prompts[0], "a counter app")
}

// Prose-only output is a hard failure: there is no template fallback.
func TestGenerateFile_ProseOnlyFails(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		"I am unable to produce that file right now.",
	}}
	agent := NewAgent(chat)

	_, _, err := agent.GenerateFile(context.Background(),
		FilePlan{Path: EntryPagePath, Kind: KindSource, Purpose: "entry page"},
		"a counter app", "")

	require.Error(t, err)
	assert.True(t, IsGenerationError(err))
}

func TestGenerateFile_ResourceKindSkipsCodeShapeCheck(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		`{"string": [{"name": "title", "value": "placeholder"}]}`,
	}}
	agent := NewAgent(chat)

	content, _, err := agent.GenerateFile(context.Background(),
		FilePlan{Path: StringResourcePath, Kind: KindResource, Purpose: "string resources"},
		"a counter app", "")

	require.NoError(t, err)
	assert.Contains(t, content, `"title"`)
}

func TestGenerateFile_ChatErrorWrapped(t *testing.T) {
	wire := errors.New("connection refused")
	agent := NewAgent(&scriptedChat{err: wire})

	_, _, err := agent.GenerateFile(context.Background(),
		FilePlan{Path: EntryPagePath, Kind: KindSource, Purpose: "entry page"},
		"req", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, wire)
}

func TestFixFile_PrefersAnalysesInPrompt(t *testing.T) {
	chat := &scriptedChat{replies: []string{arktsBody}}
	agent := NewAgent(chat)

	analyses := []ErrorAnalysis{{
		Type:            ErrorImport,
		Severity:        FixCritical,
		OriginalMessage: "Cannot find module '@ohos.router'",
		FixDescription:  "verify the module name against the SDK import list",
	}}
	rawIssues := []review.Issue{{Severity: review.SeverityError, Message: "should not appear"}}

	fixed, _, err := agent.FixFile(context.Background(), "req", EntryPagePath,
		"struct Broken {}", analyses, rawIssues, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, arktsBody, fixed)

	require.Len(t, chat.prompts, 1)
	prompt := chat.prompts[0]
	assert.Contains(t, prompt, "Cannot find module '@ohos.router'")
	assert.Contains(t, prompt, "[import/critical]")
	assert.NotContains(t, prompt, "should not appear")
}

func TestFixFile_FallsBackToRawIssuesAndExcerpts(t *testing.T) {
	chat := &scriptedChat{replies: []string{arktsBody}}
	agent := NewAgent(chat)

	rawIssues := []review.Issue{{Severity: review.SeverityError, Message: "unstructured failure"}}
	excerpts := []string{"raw compiler dump line one", "two", "three", "four"}

	_, _, err := agent.FixFile(context.Background(), "req", EntryPagePath,
		"struct Broken {}", nil, rawIssues, excerpts, nil)

	require.NoError(t, err)
	prompt := chat.prompts[0]
	assert.Contains(t, prompt, "unstructured failure")
	assert.Contains(t, prompt, "raw compiler dump line one")
	assert.NotContains(t, prompt, "four", "excerpts past the cap must be dropped")
}

func TestFixFile_ReferencesTruncated(t *testing.T) {
	chat := &scriptedChat{replies: []string{arktsBody}}
	agent := NewAgent(chat)

	long := ""
	for i := 0; i < 40; i++ {
		long += "0123456789"
	}
	_, _, err := agent.FixFile(context.Background(), "req", EntryPagePath,
		"struct Broken {}", nil, nil, nil, []string{long})

	require.NoError(t, err)
	assert.Contains(t, chat.prompts[0], long[:referenceChars]+"...")
	assert.NotContains(t, chat.prompts[0], long)
}

func TestKindForPath(t *testing.T) {
	assert.Equal(t, KindSource, kindForPath("entry/src/main/ets/pages/Index.ets"))
	assert.Equal(t, KindSource, kindForPath("util/helper.ts"))
	assert.Equal(t, KindManifest, kindForPath(ModuleManifestPath))
	assert.Equal(t, KindResource, kindForPath(StringResourcePath))
	assert.Equal(t, KindResource, kindForPath(ReadmePath))
}
