// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flowgraph

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/telemetry"
)

// RegisterRoutes registers all flowgraph routes with the router.
//
// Description:
//
//	Registers the /api/v1 endpoints plus the root health, readiness,
//	and metrics endpoints. Middleware (otelgin, recovery) is the
//	caller's concern.
//
// Inputs:
//
//	router - Gin engine to register on
//	handlers - The handlers instance
//
// Run Endpoints:
//
//	POST /api/v1/runs - Submit a graph for execution (202 + run id)
//	GET  /api/v1/runs - List recent runs
//	GET  /api/v1/runs/:id - Run status and results
//	POST /api/v1/runs/:id/cancel - Cooperative abort
//	GET  /api/v1/runs/:id/stream - Websocket node-data stream
//
// Graph Endpoints:
//
//	POST /api/v1/graphs/validate - Structure and cycle check
//
// Operational Endpoints:
//
//	GET /health - Liveness
//	GET /ready - Readiness with dependency checks
//	GET /metrics - Prometheus scrape endpoint
//
// Example:
//
//	svc, _ := flowgraph.NewService(cfg)
//	handlers := flowgraph.NewHandlers(svc)
//
//	router := gin.New()
//	router.Use(gin.Recovery(), otelgin.Middleware("flowgraph"))
//	flowgraph.RegisterRoutes(router, handlers)
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	v1 := router.Group("/api/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", handlers.HandleSubmitRun)
			runs.GET("", handlers.HandleListRuns)
			runs.GET("/:id", handlers.HandleGetRun)
			runs.POST("/:id/cancel", handlers.HandleCancelRun)
			runs.GET("/:id/stream", handlers.HandleRunStream)
		}

		graphs := v1.Group("/graphs")
		{
			graphs.POST("/validate", handlers.HandleValidateGraph)
		}
	}

	router.GET("/health", handlers.HandleHealth)
	router.GET("/ready", handlers.HandleReady)

	// The scrape handler appears once telemetry.Init runs with the
	// prometheus exporter, so resolve it per request.
	router.GET("/metrics", func(c *gin.Context) {
		mh := telemetry.MetricsHandler()
		if mh == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "Metrics exporter not configured",
				Code:  "METRICS_DISABLED",
			})
			return
		}
		mh.ServeHTTP(c.Writer, c.Request)
	})
}
