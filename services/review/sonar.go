// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Compile-time interface implementation check.
var _ Analyzer = (*SonarAnalyzer)(nil)

// sonarLanguages are the languages the server-side engine analyzes.
// ArkTS is deliberately absent: the server has no ArkTS plugin, so
// those requests stay with the lint back-end.
var sonarLanguages = map[Language]bool{
	LangTypeScript: true,
	LangJavaScript: true,
	LangJava:       true,
	LangPython:     true,
	LangC:          true,
	LangCPP:        true,
	LangHTML:       true,
	LangCSS:        true,
}

// SonarAnalyzer drives a SonarQube-style server: scanner CLI upload,
// HTTP polling for issues and security hotspots, and per-request
// project cleanup.
//
// # Thread Safety
//
// Safe for concurrent use; every request works in its own temp
// project directory under its own project key.
type SonarAnalyzer struct {
	hostURL      string
	token        string
	scannerCmd   string
	timeout      time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
}

// SonarOption configures the analyzer.
type SonarOption func(*SonarAnalyzer)

// WithSonarHost sets the server URL.
func WithSonarHost(hostURL string) SonarOption {
	return func(a *SonarAnalyzer) {
		a.hostURL = strings.TrimSuffix(hostURL, "/")
	}
}

// WithSonarToken sets the authentication token.
func WithSonarToken(token string) SonarOption {
	return func(a *SonarAnalyzer) {
		a.token = token
	}
}

// WithSonarTimeout overrides the overall analysis budget (default 300s).
func WithSonarTimeout(timeout time.Duration) SonarOption {
	return func(a *SonarAnalyzer) {
		a.timeout = timeout
	}
}

// WithSonarHTTPClient overrides the HTTP client (tests).
func WithSonarHTTPClient(c *http.Client) SonarOption {
	return func(a *SonarAnalyzer) {
		a.httpClient = c
	}
}

// NewSonarAnalyzer creates the server-based multi-language back-end.
// SONAR_HOST_URL and SONAR_TOKEN seed the defaults.
func NewSonarAnalyzer(opts ...SonarOption) *SonarAnalyzer {
	a := &SonarAnalyzer{
		hostURL:      strings.TrimSuffix(os.Getenv("SONAR_HOST_URL"), "/"),
		token:        os.Getenv("SONAR_TOKEN"),
		scannerCmd:   "sonar-scanner",
		timeout:      300 * time.Second,
		pollInterval: 3 * time.Second,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID implements the Analyzer interface.
func (a *SonarAnalyzer) ID() string { return "sonarqube" }

// IsAvailable requires both the scanner binary and a configured host.
func (a *SonarAnalyzer) IsAvailable() bool {
	if a.hostURL == "" {
		return false
	}
	_, err := exec.LookPath(a.scannerCmd)
	return err == nil
}

// Supports implements the Analyzer interface.
func (a *SonarAnalyzer) Supports(lang Language) bool {
	return sonarLanguages[lang]
}

// SupportedLanguages lists the languages the server analyzes.
func (a *SonarAnalyzer) SupportedLanguages() []string {
	langs := make([]string, 0, len(sonarLanguages))
	for lang := range sonarLanguages {
		langs = append(langs, string(lang))
	}
	return langs
}

// Review implements the Analyzer interface.
//
// Lifecycle per request: temp project dir, code file, properties
// file, scanner invocation, HTTP polling for issues and hotspots,
// then temp-dir and server-side project deletion even on error.
func (a *SonarAnalyzer) Review(ctx context.Context, req *ReviewRequest) (*ReviewResult, error) {
	start := time.Now()
	ctx, span := startReviewSpan(ctx, a.ID(), string(req.Language))
	defer span.End()

	if !a.Supports(req.Language) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	ext := ExtensionForLanguage(req.Language)
	projectKey := "arkforge-review-" + uuid.NewString()

	projectDir, err := os.MkdirTemp("", "sonar-review-*")
	if err != nil {
		return nil, fmt.Errorf("creating project dir: %w", err)
	}
	defer os.RemoveAll(projectDir)
	defer a.deleteProject(projectKey)

	if err := os.WriteFile(filepath.Join(projectDir, "main"+ext), []byte(req.Code), 0640); err != nil {
		return nil, fmt.Errorf("writing code file: %w", err)
	}
	if err := a.writeProperties(projectDir, projectKey, ext); err != nil {
		return nil, err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, a.scannerCmd, "-Dproject.settings=sonar-project.properties")
	cmd.Dir = projectDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if runErr := cmd.Run(); runErr != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return timeoutResult(req, a.ID(), a.timeout, time.Since(start)), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, NewAnalyzerError(a.ID(), string(req.Language), ErrAnalyzerFailed).
			WithOutput(stderr.String())
	}

	issues, err := a.pollFindings(cmdCtx, projectKey)
	if err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return timeoutResult(req, a.ID(), a.timeout, time.Since(start)), nil
		}
		return nil, err
	}

	result := NewReviewResult(req)
	result.Issues = issues
	result.Score = ScoreIssues(issues)
	result.ReportText = summarizeIssues(a.ID(), issues)
	result.Elapsed = time.Since(start)

	setReviewSpanResult(span, len(issues), result.Score)
	recordReviewMetrics(ctx, a.ID(), string(req.Language), result.Elapsed, len(issues), result.Score, true)
	slog.Debug("Server analysis completed",
		"analyzer", a.ID(),
		"project", projectKey,
		"issues", len(issues),
		"score", result.Score,
	)
	return result, nil
}

// writeProperties emits the per-request scanner configuration.
func (a *SonarAnalyzer) writeProperties(projectDir, projectKey, ext string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "sonar.projectKey=%s\n", projectKey)
	fmt.Fprintf(&b, "sonar.host.url=%s\n", a.hostURL)
	if a.token != "" {
		fmt.Fprintf(&b, "sonar.token=%s\n", a.token)
	}
	b.WriteString("sonar.sources=.\n")
	fmt.Fprintf(&b, "sonar.inclusions=**/*%s\n", ext)
	b.WriteString("sonar.verbose=true\n")
	b.WriteString("sonar.qualitygate.wait=true\n")

	path := filepath.Join(projectDir, "sonar-project.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0640); err != nil {
		return fmt.Errorf("writing scanner properties: %w", err)
	}
	return nil
}

// sonarIssuesResponse mirrors /api/issues/search.
type sonarIssuesResponse struct {
	Total  int `json:"total"`
	Issues []struct {
		Rule     string `json:"rule"`
		Severity string `json:"severity"`
		Message  string `json:"message"`
		Type     string `json:"type"`
		Line     int    `json:"line"`
	} `json:"issues"`
}

// sonarHotspotsResponse mirrors /api/hotspots/search.
type sonarHotspotsResponse struct {
	Hotspots []struct {
		RuleKey                  string `json:"ruleKey"`
		Message                  string `json:"message"`
		VulnerabilityProbability string `json:"vulnerabilityProbability"`
		Line                     int    `json:"line"`
	} `json:"hotspots"`
}

// pollFindings waits for the server to finish processing, then merges
// issues and security hotspots into one canonical list.
func (a *SonarAnalyzer) pollFindings(ctx context.Context, projectKey string) ([]Issue, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		body, err := a.get(ctx, "/api/issues/search?componentKeys="+url.QueryEscape(projectKey))
		if err == nil {
			var resp sonarIssuesResponse
			if jsonErr := json.Unmarshal(body, &resp); jsonErr == nil {
				issues := a.convertIssues(resp)
				hotspots, hsErr := a.fetchHotspots(ctx, projectKey)
				if hsErr != nil {
					slog.Warn("Hotspot fetch failed, returning issues only", "error", hsErr)
				}
				return append(issues, hotspots...), nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: polling %s: %v", ErrAnalyzerUnavailable, a.ID(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// convertIssues maps server findings onto canonical issues.
// BLOCKER/CRITICAL become errors, MAJOR/MINOR warnings, INFO info.
func (a *SonarAnalyzer) convertIssues(resp sonarIssuesResponse) []Issue {
	issues := make([]Issue, 0, len(resp.Issues))
	for _, si := range resp.Issues {
		issues = append(issues, Issue{
			Severity: NormalizeSeverity(si.Severity),
			Message:  si.Message,
			Line:     si.Line,
			RuleID:   si.Rule,
			Category: categoryFromType(si.Type),
			Backend:  a.ID(),
		})
	}
	return issues
}

// fetchHotspots coerces security hotspots into the Issue shape.
func (a *SonarAnalyzer) fetchHotspots(ctx context.Context, projectKey string) ([]Issue, error) {
	body, err := a.get(ctx, "/api/hotspots/search?projectKey="+url.QueryEscape(projectKey))
	if err != nil {
		return nil, err
	}
	var resp sonarHotspotsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseOutput, err)
	}

	issues := make([]Issue, 0, len(resp.Hotspots))
	for _, hs := range resp.Hotspots {
		severity := SeverityWarning
		if strings.EqualFold(hs.VulnerabilityProbability, "HIGH") {
			severity = SeverityError
		}
		issues = append(issues, Issue{
			Severity: severity,
			Message:  hs.Message,
			Line:     hs.Line,
			RuleID:   hs.RuleKey,
			Category: CategoryVulnerability,
			Backend:  a.ID(),
		})
	}
	return issues, nil
}

// categoryFromType maps server finding types onto scoring categories.
func categoryFromType(t string) string {
	switch strings.ToUpper(t) {
	case "BUG":
		return CategoryBug
	case "VULNERABILITY", "SECURITY_HOTSPOT":
		return CategoryVulnerability
	case "CODE_SMELL":
		return CategoryCodeSmell
	default:
		return ""
	}
}

// get performs one authenticated GET against the server API.
func (a *SonarAnalyzer) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", a.hostURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if a.token != "" {
		req.SetBasicAuth(a.token, "")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalyzerUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: server returned %d", ErrAnalyzerUnavailable, resp.StatusCode)
	}
	return body, nil
}

// deleteProject removes the server-side project. Best effort; a
// leftover project is logged, never surfaced.
func (a *SonarAnalyzer) deleteProject(projectKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	form := url.Values{"project": {projectKey}}
	req, err := http.NewRequestWithContext(ctx, "POST", a.hostURL+"/api/projects/delete", strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if a.token != "" {
		req.SetBasicAuth(a.token, "")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		slog.Warn("Server-side project cleanup failed", "project", projectKey, "error", err)
		return
	}
	resp.Body.Close()
}
