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
	"github.com/ArkForgeAI/ArkForge/services/pipeline"
)

// Runner executes the generation control loop. Satisfied by
// *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, requirement, sessionKey string) *pipeline.RunResult
}

// HandleGenerate serves POST /api/v1/generate.
//
// The run result is returned with 200 even when unresolved: the loop
// terminating on its budget is a domain outcome, not a transport
// failure.
func HandleGenerate(runner Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlerTracer.Start(c.Request.Context(), "HandleGenerate")
		defer span.End()

		var request datatypes.GenerateRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to bind generate request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(attribute.String("session_id", request.SessionID))

		result := runner.Run(ctx, request.Requirement, request.SessionID)

		span.SetAttributes(
			attribute.Bool("success", result.Success),
			attribute.Int("attempts", result.Attempts),
		)
		slog.Info("Generation served",
			"success", result.Success,
			"attempts", result.Attempts,
			"files", len(result.Files))
		c.JSON(http.StatusOK, result)
	}
}
