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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/modulift/modulift/services/pipeline/graph"
	"github.com/modulift/modulift/services/pipeline/run"
)

// Handlers contains the HTTP handlers for the pipeline service.
type Handlers struct {
	svc *Service

	// readyCheck reports whether the external validator tooling is
	// reachable. Nil means always ready.
	readyCheck func() error
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// WithReadyCheck sets the readiness probe for the validator tooling.
func (h *Handlers) WithReadyCheck(check func() error) *Handlers {
	h.readyCheck = check
	return h
}

// HandlePlan handles POST /v1/pipeline/plan.
//
// Description:
//
//	Assembles the build plan for a batch: deployment order, tiers,
//	pattern promotion decisions, and the derived module list. Nothing
//	is generated or validated.
//
// Request Body:
//
//	PlanRequest
//
// Response:
//
//	200 OK: PlanResponse
//	400 Bad Request: Validation error or invalid batch
func (h *Handlers) HandlePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePlan")

	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	plan, err := h.svc.Plan(c.Request.Context(), req)
	if err != nil {
		if isBatchError(err) {
			logger.Warn("Invalid batch", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_BATCH",
			})
			return
		}
		logger.Error("Planning failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Planning failed",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	logger.Info("Plan assembled",
		"services", len(req.Services), "modules", len(plan.Modules), "cycles", len(plan.Cycles))
	c.JSON(http.StatusOK, PlanResponse{
		Order:      plan.OrderIDs(),
		Tiers:      plan.Tiers,
		Candidates: plan.Candidates,
		Modules:    plan.Modules,
		Warnings:   plan.Warnings(),
	})
}

// HandleStartRun handles POST /v1/pipeline/runs.
//
// Description:
//
//	Plans the batch synchronously, then starts the generate, validate,
//	and fix pipeline in the background. The response returns as soon as
//	the run is launched.
//
// Request Body:
//
//	StartRunRequest
//
// Response:
//
//	202 Accepted: StartRunResponse
//	400 Bad Request: Validation error or invalid batch
func (h *Handlers) HandleStartRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStartRun")

	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	runID, plan, err := h.svc.StartRun(c.Request.Context(), req)
	if err != nil {
		if isBatchError(err) {
			logger.Warn("Invalid batch", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: err.Error(),
				Code:  "INVALID_BATCH",
			})
			return
		}
		logger.Error("Failed to start run", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "Failed to start run",
			Code:  "INTERNAL_ERROR",
		})
		return
	}

	logger.Info("Run accepted", "run_id", runID, "modules", len(plan.Modules))
	c.JSON(http.StatusAccepted, StartRunResponse{
		RunID:    runID,
		State:    StateRunning,
		Modules:  len(plan.Modules),
		Warnings: plan.Warnings(),
	})
}

// HandleListRuns handles GET /v1/pipeline/runs.
func (h *Handlers) HandleListRuns(c *gin.Context) {
	runs := h.svc.ListRuns()
	c.JSON(http.StatusOK, RunListResponse{Runs: runs, Count: len(runs)})
}

// HandleGetRun handles GET /v1/pipeline/runs/:id.
//
// Response:
//
//	200 OK: RunStatus
//	404 Not Found: Unknown run id
func (h *Handlers) HandleGetRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetRun")

	status, err := h.svc.GetRun(c.Param("id"))
	if err != nil {
		logger.Warn("Run not found", "run_id", c.Param("id"))
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "Run not found",
			Code:  "RUN_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// HandleGetReport handles GET /v1/pipeline/runs/:id/report.
//
// Description:
//
//	Returns the run's report, preferring the in-memory copy and falling
//	back to the report store for evicted runs.
//
// Response:
//
//	200 OK: report.RunReport
//	404 Not Found: Unknown run id
//	409 Conflict: Run still in progress
func (h *Handlers) HandleGetReport(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetReport")

	rep, err := h.svc.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrRunNotFinished):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "Run has not finished",
				Code:  "RUN_NOT_FINISHED",
			})
		case errors.Is(err, ErrRunNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Run not found",
				Code:  "RUN_NOT_FOUND",
			})
		default:
			logger.Error("Failed to load report", "run_id", c.Param("id"), "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: "Failed to load report",
				Code:  "INTERNAL_ERROR",
			})
		}
		return
	}

	c.JSON(http.StatusOK, rep)
}

// HandleCancelRun handles POST /v1/pipeline/runs/:id/cancel.
//
// Response:
//
//	202 Accepted: RunStatus with state "canceled"
//	404 Not Found: Unknown run id
//	409 Conflict: Run already finished
func (h *Handlers) HandleCancelRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCancelRun")

	runID := c.Param("id")
	if err := h.svc.CancelRun(runID); err != nil {
		switch {
		case errors.Is(err, ErrRunFinished):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "Run already finished",
				Code:  "RUN_FINISHED",
			})
		default:
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: "Run not found",
				Code:  "RUN_NOT_FOUND",
			})
		}
		return
	}

	logger.Info("Cancellation requested", "run_id", runID)
	status, _ := h.svc.GetRun(runID)
	c.JSON(http.StatusAccepted, status)
}

// HandleHealth handles GET /v1/pipeline/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/pipeline/ready.
//
// Description:
//
//	Reports whether the service can execute runs. Readiness fails when
//	the configured readiness probe reports the validator tooling
//	missing.
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := ReadyResponse{
		Ready:   true,
		Dialect: h.svc.config.Dialect,
	}

	if h.readyCheck != nil {
		if err := h.readyCheck(); err != nil {
			resp.Ready = false
			resp.Reason = err.Error()
			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}

	c.JSON(http.StatusOK, resp)
}

// isBatchError reports whether err stems from a malformed input batch.
func isBatchError(err error) bool {
	return errors.Is(err, graph.ErrEmptyID) ||
		errors.Is(err, graph.ErrDuplicateID) ||
		errors.Is(err, run.ErrInvalidInput)
}

// getOrCreateRequestID extracts or generates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
