// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for review operations.
var (
	tracer = otel.Tracer("arkforge.review")
	meter  = otel.Meter("arkforge.review")
)

// Metrics for review operations.
var (
	reviewLatency metric.Float64Histogram
	reviewTotal   metric.Int64Counter
	issuesFound   metric.Int64Histogram
	reviewScore   metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		reviewLatency, err = meter.Float64Histogram(
			"review_duration_seconds",
			metric.WithDescription("Duration of review operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		reviewTotal, err = meter.Int64Counter(
			"review_total",
			metric.WithDescription("Total number of review operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		issuesFound, err = meter.Int64Histogram(
			"review_issues_found",
			metric.WithDescription("Number of issues found per review"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		reviewScore, err = meter.Int64Histogram(
			"review_score",
			metric.WithDescription("Score of completed reviews"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startReviewSpan creates a span for a review operation.
func startReviewSpan(ctx context.Context, analyzer, language string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Review",
		trace.WithAttributes(
			attribute.String("review.analyzer", analyzer),
			attribute.String("review.language", language),
		),
	)
}

// setReviewSpanResult sets result attributes on a review span.
func setReviewSpanResult(span trace.Span, issueCount, score int) {
	span.SetAttributes(
		attribute.Int("review.issue_count", issueCount),
		attribute.Int("review.score", score),
	)
}

// recordReviewMetrics records metrics for one review operation.
func recordReviewMetrics(ctx context.Context, analyzer, language string, duration time.Duration, issueCount, score int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("analyzer", analyzer),
		attribute.String("language", language),
		attribute.Bool("success", success),
	)

	reviewLatency.Record(ctx, duration.Seconds(), attrs)
	reviewTotal.Add(ctx, 1, attrs)

	if success {
		analyzerAttr := metric.WithAttributes(attribute.String("analyzer", analyzer))
		issuesFound.Record(ctx, int64(issueCount), analyzerAttr)
		reviewScore.Record(ctx, int64(score), analyzerAttr)
	}
}
