// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all pipeline routes with the router.
//
// Description:
//
//	Registers all /v1/pipeline/* endpoints with the given Gin router
//	group. The router group should already have any required middleware
//	applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/pipeline/plan - Assemble a build plan
//	POST /v1/pipeline/runs - Start an asynchronous run
//	GET  /v1/pipeline/runs - List runs
//	GET  /v1/pipeline/runs/:id - Run state
//	GET  /v1/pipeline/runs/:id/report - Run report
//	POST /v1/pipeline/runs/:id/cancel - Cancel a run
//	GET  /v1/pipeline/health - Health check
//	GET  /v1/pipeline/ready - Readiness check
//
// Example:
//
//	service, _ := pipeline.NewService(cfg, generator, fixer, store)
//	handlers := pipeline.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	pipeline.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	pl := rg.Group("/pipeline")
	{
		// Planning
		pl.POST("/plan", handlers.HandlePlan)

		// Run lifecycle
		pl.POST("/runs", handlers.HandleStartRun)
		pl.GET("/runs", handlers.HandleListRuns)
		pl.GET("/runs/:id", handlers.HandleGetRun)
		pl.GET("/runs/:id/report", handlers.HandleGetReport)
		pl.POST("/runs/:id/cancel", handlers.HandleCancelRun)

		// Health checks
		pl.GET("/health", handlers.HandleHealth)
		pl.GET("/ready", handlers.HandleReady)
	}
}
