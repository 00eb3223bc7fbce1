// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the gateway's endpoints onto a gin engine.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/ArkForgeAI/ArkForge/services/gateway/handlers"
)

// SetupRoutes registers every gateway endpoint.
func SetupRoutes(router *gin.Engine, searcher handlers.Searcher, reviewer handlers.Reviewer, runner handlers.Runner) {
	router.GET("/healthz", handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/search", handlers.HandleSearch(searcher))
		v1.POST("/review", handlers.HandleReview(reviewer))
		v1.POST("/generate", handlers.HandleGenerate(runner))
	}
}
