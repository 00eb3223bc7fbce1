// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ArkForgeAI/ArkForge/services/gateway/datatypes"
	"github.com/ArkForgeAI/ArkForge/services/review"
)

// Reviewer analyzes one piece of code. Satisfied by
// *review.UnifiedChecker.
type Reviewer interface {
	Review(ctx context.Context, req *review.ReviewRequest) *review.ReviewResult
}

// HandleReview serves POST /api/v1/review.
func HandleReview(reviewer Reviewer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleReview")
		defer span.End()

		var request datatypes.ReviewRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind review request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("language", request.Language))

		result := reviewer.Review(ctx, &review.ReviewRequest{
			OriginalQuery: request.Query,
			Code:          request.Code,
			Language:      review.Language(request.Language),
		})

		slog.Info("Review served",
			"issues", len(result.Issues),
			"score", result.Score)
		c.JSON(http.StatusOK, result)
	}
}
