// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the gateway's gin endpoints.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ArkForgeAI/ArkForge/services/gateway/datatypes"
	"github.com/ArkForgeAI/ArkForge/services/search"
)

var handlerTracer = otel.Tracer("arkforge.gateway.handlers")

// Searcher answers one query. Satisfied by *search.Orchestrator.
type Searcher interface {
	Search(ctx context.Context, query string, mode search.Mode, sessionKey string) *search.Result
}

// HandleSearch serves POST /api/v1/search.
func HandleSearch(searcher Searcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleSearch")
		defer span.End()

		var request datatypes.SearchRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind search request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(
			attribute.String("mode", request.Mode),
			attribute.String("session_id", request.SessionID),
		)

		result := searcher.Search(ctx, request.Query, search.Mode(request.Mode), request.SessionID)

		slog.Info("Search served",
			"mode_used", result.ModeUsed,
			"sources", len(result.Items),
			"confidence", result.Confidence)
		c.JSON(http.StatusOK, result)
	}
}
