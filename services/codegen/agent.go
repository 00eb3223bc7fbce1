// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package codegen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ArkForgeAI/ArkForge/services/llm"
	"github.com/ArkForgeAI/ArkForge/services/review"
)

// agentTracer is the OpenTelemetry tracer for code generation.
var agentTracer = otel.Tracer("arkforge.codegen.agent")

// Truncation budgets for fix-prompt composition.
const (
	maxRawExcerpts  = 3
	rawExcerptChars = 500
	referenceChars  = 150
	maxReferences   = 5
)

// Agent turns file plans and error reports into source files through
// prompt composition and strict output sanitation.
//
// # Thread Safety
//
// Safe for concurrent use.
type Agent struct {
	chat llm.ChatClient
}

// NewAgent creates a generation agent over an LLM backend.
func NewAgent(chat llm.ChatClient) *Agent {
	return &Agent{chat: chat}
}

// =============================================================================
// Prompts
// =============================================================================

// Deliberately terse: every extra sentence invites prose in the reply.
const initialGenerationPrompt = `Write the complete content of %s for a HarmonyOS ArkTS project.

Purpose: %s
%s
Requirement: %s

Reference material:
%s

Output only the file content. No explanations, no markdown, no code fences.`

const errorFixingPrompt = `Fix this ArkTS project file so it compiles.

Requirement: %s

File %s current content:
%s

Errors to fix:
%s

Reference solutions:
%s

Output only the corrected content of the whole file. No explanations, no markdown, no code fences, no non-ASCII text in code.`

// =============================================================================
// Generation
// =============================================================================

// GenerateFile produces one planned file's content.
//
// # Outputs
//
//   - string: the sanitized file body.
//   - int: token usage of the call.
//   - error: LLM failure, or a GenerationError when the sanitized
//     output contains no usable body. There is no template fallback.
func (a *Agent) GenerateFile(ctx context.Context, plan FilePlan, requirement, references string) (string, int, error) {
	ctx, span := agentTracer.Start(ctx, "Agent.GenerateFile")
	defer span.End()
	span.SetAttributes(
		attribute.String("path", plan.Path),
		attribute.String("kind", string(plan.Kind)),
	)

	outline := ""
	if plan.Outline != "" {
		outline = "Outline: " + plan.Outline + "\n"
	}
	if references == "" {
		references = "(none)"
	}

	prompt := fmt.Sprintf(initialGenerationPrompt, plan.Path, plan.Purpose, outline, requirement, references)
	reply, tokens, err := a.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		return "", tokens, fmt.Errorf("generating %s: %w", plan.Path, err)
	}

	content := Sanitize(reply)
	if err := a.validate(plan.Path, plan.Kind, content); err != nil {
		span.RecordError(err)
		return "", tokens, err
	}

	slog.Debug("File generated", "path", plan.Path, "bytes", len(content))
	return content, tokens, nil
}

// FixFile rewrites one file against its filtered errors.
//
// The prompt prefers the classifier's enriched analyses; when none
// exist it falls back to raw issue messages plus up to three raw
// output excerpts. Reference solutions are truncated hard so one long
// document cannot crowd out the file content itself.
func (a *Agent) FixFile(ctx context.Context, requirement, path, content string, analyses []ErrorAnalysis, rawIssues []review.Issue, rawExcerpts, references []string) (string, int, error) {
	ctx, span := agentTracer.Start(ctx, "Agent.FixFile")
	defer span.End()
	span.SetAttributes(
		attribute.String("path", path),
		attribute.Int("analyses", len(analyses)),
	)

	errorList := formatErrorList(analyses, rawIssues, rawExcerpts)
	refs := formatReferences(references)

	prompt := fmt.Sprintf(errorFixingPrompt, requirement, path, content, errorList, refs)
	reply, tokens, err := a.chat.Chat(ctx, llm.UserMessage(prompt), llm.GenerationParams{})
	if err != nil {
		return "", tokens, fmt.Errorf("fixing %s: %w", path, err)
	}

	fixed := Sanitize(reply)
	if err := a.validate(path, kindForPath(path), fixed); err != nil {
		span.RecordError(err)
		return "", tokens, err
	}

	slog.Debug("File fixed", "path", path, "errors", len(analyses), "bytes", len(fixed))
	return fixed, tokens, nil
}

// validate enforces the no-template-fallback contract: source files
// must keep a recognizable ArkTS shape, everything else only needs a
// non-empty body.
func (a *Agent) validate(path string, kind FileKind, content string) error {
	if strings.TrimSpace(content) == "" {
		return &GenerationError{Path: path, Reason: "sanitized output is empty"}
	}
	if kind == KindSource && !ValidCode(content) {
		return &GenerationError{Path: path, Reason: "no import, decorator, struct, or build() in output"}
	}
	return nil
}

// kindForPath infers the file kind from its extension.
func kindForPath(path string) FileKind {
	switch {
	case strings.HasSuffix(path, ".ets") || strings.HasSuffix(path, ".ts"):
		return KindSource
	case strings.HasSuffix(path, ".json5"):
		return KindManifest
	default:
		return KindResource
	}
}

// formatErrorList renders the itemized error section of a fix prompt.
func formatErrorList(analyses []ErrorAnalysis, rawIssues []review.Issue, rawExcerpts []string) string {
	var b strings.Builder

	if len(analyses) > 0 {
		for i, an := range analyses {
			fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i+1, an.Type, an.Severity, an.OriginalMessage)
			if an.LocationHint != "" {
				fmt.Fprintf(&b, "   at %s\n", an.LocationHint)
			}
			fmt.Fprintf(&b, "   fix: %s\n", an.FixDescription)
		}
		return b.String()
	}

	for i, iss := range rawIssues {
		fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, iss.Severity, iss.Message)
	}
	for i, excerpt := range rawExcerpts {
		if i >= maxRawExcerpts {
			break
		}
		fmt.Fprintf(&b, "output excerpt: %s\n", truncate(excerpt, rawExcerptChars))
	}
	if b.Len() == 0 {
		b.WriteString("(no structured errors; file failed to compile)")
	}
	return b.String()
}

// formatReferences renders truncated reference solutions.
func formatReferences(references []string) string {
	if len(references) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, ref := range references {
		if i >= maxReferences {
			break
		}
		fmt.Fprintf(&b, "- %s\n", truncate(ref, referenceChars))
	}
	return b.String()
}

// truncate bounds a string by bytes with an ellipsis marker.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
