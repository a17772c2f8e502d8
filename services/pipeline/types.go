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
	"time"

	"github.com/modulift/modulift/services/pipeline/graph"
	"github.com/modulift/modulift/services/pipeline/patterns"
	"github.com/modulift/modulift/services/pipeline/run"
)

// ServiceInput is one declared service in a plan or run request.
type ServiceInput struct {
	// ID uniquely identifies the service within the batch. Required.
	ID string `json:"id" binding:"required"`

	// DependsOn lists ids of services this service depends on. Ids not in
	// the batch are treated as externally satisfied.
	DependsOn []string `json:"depends_on"`

	// Patterns maps pattern key to whether this service needs it.
	Patterns map[string]bool `json:"patterns"`
}

// nodes converts request inputs into the graph's batch type.
func nodes(services []ServiceInput) []graph.ServiceNode {
	out := make([]graph.ServiceNode, len(services))
	for i, s := range services {
		out[i] = graph.ServiceNode{ID: s.ID, DependsOn: s.DependsOn, Patterns: s.Patterns}
	}
	return out
}

// PlanRequest is the request body for POST /v1/pipeline/plan.
type PlanRequest struct {
	// Services is the batch to plan. Required, at least one entry.
	Services []ServiceInput `json:"services" binding:"required,min=1,dive"`

	// Threshold overrides the pattern promotion threshold. 0 keeps the
	// configured value.
	Threshold int `json:"threshold" binding:"omitempty,min=1"`

	// Dialect overrides the target IaC dialect.
	Dialect string `json:"dialect" binding:"omitempty,oneof=terraform bicep"`
}

// PlanResponse is the response for POST /v1/pipeline/plan.
type PlanResponse struct {
	// Order lists the services in deployment order.
	Order []string `json:"order"`

	// Tiers maps service id to deployment tier.
	Tiers map[string]int `json:"tiers"`

	// Candidates holds every pattern decision.
	Candidates []patterns.PatternCandidate `json:"candidates"`

	// Modules is the derived build list.
	Modules []run.Module `json:"modules"`

	// Warnings carries broken-cycle warnings from ordering.
	Warnings []string `json:"warnings,omitempty"`
}

// StartRunRequest is the request body for POST /v1/pipeline/runs.
type StartRunRequest struct {
	// Services is the batch to build. Required, at least one entry.
	Services []ServiceInput `json:"services" binding:"required,min=1,dive"`

	// Threshold overrides the pattern promotion threshold.
	Threshold int `json:"threshold" binding:"omitempty,min=1"`

	// Dialect overrides the target IaC dialect.
	Dialect string `json:"dialect" binding:"omitempty,oneof=terraform bicep"`
}

// StartRunResponse is the response for POST /v1/pipeline/runs.
type StartRunResponse struct {
	// RunID identifies the started run.
	RunID string `json:"run_id"`

	// State is the run's initial state (always "running").
	State string `json:"state"`

	// Modules is the number of modules the run will build.
	Modules int `json:"modules"`

	// Warnings carries broken-cycle warnings from planning.
	Warnings []string `json:"warnings,omitempty"`
}

// RunStatus describes one run's lifecycle state.
type RunStatus struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// State is "running", "completed", "failed", or "canceled".
	State string `json:"state"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished. Zero while running.
	CompletedAt time.Time `json:"completed_at"`

	// Modules is the number of modules in the run's plan.
	Modules int `json:"modules"`

	// Error carries the fatal error for failed runs.
	Error string `json:"error,omitempty"`
}

// RunListResponse is the response for GET /v1/pipeline/runs.
type RunListResponse struct {
	// Runs lists the known runs, most recent first.
	Runs []RunStatus `json:"runs"`

	// Count is len(Runs).
	Count int `json:"count"`
}

// HealthResponse is the response for GET /v1/pipeline/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the response for GET /v1/pipeline/ready.
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Reason  string `json:"reason,omitempty"`
	Dialect string `json:"dialect"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
