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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/pkg/extensions"
	"github.com/LukasSchmoelzl/ifc-flow-vibe-sub002/services/flowgraph/graph"
)

// Handlers contains the HTTP handlers for the flowgraph service.
type Handlers struct {
	svc     *Service
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewHandlers creates handlers for the given service. The submission
// rate limit comes from the service configuration.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{
		svc:     svc,
		limiter: rate.NewLimiter(svc.cfg.SubmitRate, svc.cfg.SubmitBurst),
		log:     svc.log,
	}
}

// WithRateLimit overrides the run submission rate limit.
func (h *Handlers) WithRateLimit(r rate.Limit, burst int) *Handlers {
	h.limiter = rate.NewLimiter(r, burst)
	return h
}

// WithLogger overrides the handler logger.
func (h *Handlers) WithLogger(l *slog.Logger) *Handlers {
	if l != nil {
		h.log = l
	}
	return h
}

// authorize validates the bearer token and checks the action against
// the installed authorization provider. On success it returns a
// context carrying the authenticated subject; on failure it writes the
// error response and returns ok=false. The default no-op providers
// admit every request as the local subject.
func (h *Handlers) authorize(c *gin.Context, logger *slog.Logger, action, resource string) (context.Context, bool) {
	ctx := c.Request.Context()
	exts := h.svc.Extensions()

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	info, err := exts.Auth.Validate(ctx, token)
	if err != nil {
		logger.Warn("credential validation failed", "error", err)
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error: "Invalid or missing credentials",
			Code:  "AUTH_INVALID",
		})
		return nil, false
	}

	if err := exts.Authz.Authorize(ctx, extensions.AuthzRequest{
		Subject:  info.Subject,
		Action:   action,
		Resource: resource,
	}); err != nil {
		logger.Warn("action not authorized",
			"subject", info.Subject, "action", action, "error", err)
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: "Not authorized for " + action,
			Code:  "FORBIDDEN",
		})
		return nil, false
	}

	return extensions.WithSubject(ctx, info.Subject), true
}

// HandleSubmitRun handles POST /api/v1/runs.
//
// Description:
//
//	Validates the snapshot and starts it on a fresh engine. The run
//	executes asynchronously; clients poll the status endpoint or
//	attach to the stream.
//
// Request Body:
//
//	RunRequest
//
// Response:
//
//	202 Accepted: RunSubmitResponse
//	400 Bad Request: Invalid body, invalid graph, or cycle
//	401 Unauthorized: Credential validation failed
//	403 Forbidden: Subject may not submit runs
//	429 Too Many Requests: Submission rate exceeded
//	503 Service Unavailable: Shutdown in progress
func (h *Handlers) HandleSubmitRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleSubmitRun")

	if !h.limiter.Allow() {
		logger.Warn("run submission rate limited")
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "Too many run submissions",
			Code:  "RATE_LIMITED",
		})
		return
	}

	ctx, ok := h.authorize(c, logger, "run.submit", "")
	if !ok {
		return
	}

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	runID, err := h.svc.Submit(ctx, req.Graph)
	if err != nil {
		statusCode := http.StatusBadRequest
		errCode := "INVALID_GRAPH"

		if errors.Is(err, graph.ErrCycle) {
			errCode = "GRAPH_CYCLE"
		} else if errors.Is(err, ErrShuttingDown) {
			statusCode = http.StatusServiceUnavailable
			errCode = "SHUTTING_DOWN"
		}

		logger.Warn("run rejected", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("run accepted", "run_id", runID, "nodes", len(req.Graph.Nodes))

	c.JSON(http.StatusAccepted, RunSubmitResponse{
		RunID:  runID,
		Status: engineRunning,
		Stream: "/api/v1/runs/" + runID + "/stream",
	})
}

// HandleGetRun handles GET /api/v1/runs/:id.
//
// Description:
//
//	Returns run status and, while the run is still tracked in memory,
//	the full node result map. Older runs come back as history
//	summaries.
//
// Response:
//
//	200 OK: RunStatusResponse
//	404 Not Found: Unknown run id
func (h *Handlers) HandleGetRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleGetRun")

	runID := c.Param("id")
	resp, err := h.svc.Lookup(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "RUN_NOT_FOUND",
			})
			return
		}
		logger.Error("run lookup failed", "run_id", runID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Run lookup failed",
			Code:  "LOOKUP_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HandleListRuns handles GET /api/v1/runs.
//
// Query Parameters:
//
//	limit: Maximum number of results (optional, default 20, max 100)
//
// Response:
//
//	200 OK: RunListResponse
func (h *Handlers) HandleListRuns(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleListRuns")

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		limit = min(n, 100)
	}

	runs, err := h.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.Error("history query failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "History query failed",
			Code:  "HISTORY_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

// HandleCancelRun handles POST /api/v1/runs/:id/cancel.
//
// Description:
//
//	Requests cooperative cancellation. The run stops before its next
//	node and finishes with status "aborted"; a node already executing
//	is not interrupted.
//
// Response:
//
//	202 Accepted: CancelResponse
//	401 Unauthorized: Credential validation failed
//	403 Forbidden: Subject may not cancel runs
//	404 Not Found: Unknown run id
//	409 Conflict: Run already finished
func (h *Handlers) HandleCancelRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleCancelRun")

	runID := c.Param("id")
	ctx, ok := h.authorize(c, logger, "run.cancel", runID)
	if !ok {
		return
	}

	if err := h.svc.CancelRun(ctx, runID); err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "CANCEL_FAILED"

		if errors.Is(err, ErrRunNotFound) {
			statusCode = http.StatusNotFound
			errCode = "RUN_NOT_FOUND"
		} else if errors.Is(err, ErrRunFinished) {
			statusCode = http.StatusConflict
			errCode = "RUN_FINISHED"
		}

		logger.Warn("cancel rejected", "run_id", runID, "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("run cancel accepted", "run_id", runID)
	c.JSON(http.StatusAccepted, CancelResponse{RunID: runID, Status: "aborting"})
}

// HandleValidateGraph handles POST /api/v1/graphs/validate.
//
// Description:
//
//	Runs structural validation and the cycle check without executing
//	anything. Findings come back in the body with 200; only a
//	malformed request is an HTTP error.
//
// Request Body:
//
//	ValidateRequest
//
// Response:
//
//	200 OK: ValidateResponse
//	400 Bad Request: Malformed body
func (h *Handlers) HandleValidateGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.log.With("request_id", requestID, "handler", "HandleValidateGraph")

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp := ValidateResponse{NodeCount: len(req.Graph.Nodes)}
	order, err := h.svc.ValidateGraph(req.Graph)
	if err != nil {
		resp.Error = err.Error()
		logger.Info("graph invalid", "error", err)
	} else {
		resp.Valid = true
		resp.Order = order
	}

	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /health.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /ready.
//
// Description:
//
//	Returns readiness including dependency checks. Returns 503 when
//	the model directory is unavailable or shutdown has begun.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := h.svc.Ready()
	if !resp.Ready {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// getOrCreateRequestID returns the inbound request id or mints one,
// echoing it back on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
