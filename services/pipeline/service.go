// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline provides the HTTP service surface for the build
// pipeline: planning batches, starting and cancelling runs, and serving
// persisted run reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/modulift/modulift/services/pipeline/collab"
	"github.com/modulift/modulift/services/pipeline/report"
	"github.com/modulift/modulift/services/pipeline/run"
)

// ServiceVersion is the pipeline service version.
const ServiceVersion = "0.1.0"

// Run lifecycle states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCanceled  = "canceled"
)

// ServiceConfig configures the pipeline service.
type ServiceConfig struct {
	// Dialect is the default target IaC dialect.
	Dialect string

	// Threshold is the default pattern promotion threshold.
	Threshold int

	// Workers bounds concurrent module pipelines per run.
	Workers int

	// WorkDir is where module directories are materialized.
	WorkDir string

	// OutputDir receives published report files. Empty disables file
	// output; reports still land in the store.
	OutputDir string

	// GenerateTimeout bounds one module-generation call.
	GenerateTimeout time.Duration

	// SkipValidation reports every module as not_validated.
	SkipValidation bool

	// MaxTrackedRuns bounds the in-memory run handles. Finished runs
	// beyond this stay available through the store only.
	MaxTrackedRuns int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Dialect:         "terraform",
		Threshold:       2,
		WorkDir:         "modules",
		OutputDir:       "reports",
		GenerateTimeout: run.DefaultGenerateTimeout,
		MaxTrackedRuns:  50,
	}
}

// runHandle tracks one run's lifecycle.
type runHandle struct {
	id          string
	state       string
	startedAt   time.Time
	completedAt time.Time
	modules     int
	cancel      context.CancelFunc
	report      *report.RunReport
	err         error
}

// Service is the pipeline service.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	config    ServiceConfig
	generator collab.Generator
	fixer     run.FixRunner
	store     *report.Store

	mu   sync.RWMutex
	runs map[string]*runHandle

	// wg tracks in-flight run goroutines for clean shutdown.
	wg sync.WaitGroup
}

// NewService creates a pipeline service.
//
// Description:
//
//	Wires the collaborator, fix loop, and report store into a service
//	that can plan batches and execute runs asynchronously.
//
// Inputs:
//
//	config - Service configuration
//	generator - Module-generation collaborator
//	fixer - Fix loop controller (nil only with SkipValidation)
//	store - Report store; must not be nil
//
// Outputs:
//
//	*Service - The configured service
//	error - ErrInvalidInput when a required dependency is missing
func NewService(config ServiceConfig, generator collab.Generator, fixer run.FixRunner, store *report.Store) (*Service, error) {
	if generator == nil {
		return nil, fmt.Errorf("%w: nil generator", ErrInvalidInput)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil report store", ErrInvalidInput)
	}
	if fixer == nil && !config.SkipValidation {
		return nil, fmt.Errorf("%w: nil fix runner without skip-validation", ErrInvalidInput)
	}
	if config.MaxTrackedRuns < 1 {
		config.MaxTrackedRuns = DefaultServiceConfig().MaxTrackedRuns
	}

	return &Service{
		config:    config,
		generator: generator,
		fixer:     fixer,
		store:     store,
		runs:      make(map[string]*runHandle),
	}, nil
}

// Plan assembles a build plan without executing anything.
func (s *Service) Plan(ctx context.Context, req PlanRequest) (*run.Plan, error) {
	threshold := req.Threshold
	if threshold < 1 {
		threshold = s.config.Threshold
	}
	dialect := req.Dialect
	if dialect == "" {
		dialect = s.config.Dialect
	}
	return run.Assemble(ctx, nodes(req.Services), threshold, dialect)
}

// StartRun plans the batch and launches an asynchronous run.
//
// Description:
//
//	Planning happens synchronously so invalid batches fail the request;
//	module generation and fixing run in a background goroutine detached
//	from the request context. The finished report is saved to the store
//	and, when configured, written to the output directory.
//
// Outputs:
//
//	string - The run id
//	*run.Plan - The assembled plan
//	error - Planning errors only
func (s *Service) StartRun(ctx context.Context, req StartRunRequest) (string, *run.Plan, error) {
	plan, err := s.Plan(ctx, PlanRequest(req))
	if err != nil {
		return "", nil, err
	}

	orch, err := run.NewOrchestrator(s.generator, s.fixer,
		run.WithWorkers(s.config.Workers),
		run.WithWorkDir(s.config.WorkDir),
		run.WithGenerateTimeout(s.config.GenerateTimeout),
		run.WithSkipValidation(s.config.SkipValidation),
	)
	if err != nil {
		return "", nil, err
	}

	runID := run.NewRunID()
	runCtx, cancel := context.WithCancel(context.Background())
	handle := &runHandle{
		id:        runID,
		state:     StateRunning,
		startedAt: time.Now(),
		modules:   len(plan.Modules),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.runs[runID] = handle
	s.evictLocked()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.executeRun(runCtx, runID, plan, orch)
	}()

	slog.Info("Pipeline run started",
		"run_id", runID, "modules", len(plan.Modules), "dialect", plan.Dialect)
	return runID, plan, nil
}

// executeRun drives one run to completion and records its outcome.
func (s *Service) executeRun(ctx context.Context, runID string, plan *run.Plan, orch *run.Orchestrator) {
	rep, err := orch.Execute(ctx, runID, plan)

	if rep != nil {
		if saveErr := s.store.Save(context.Background(), rep); saveErr != nil {
			slog.Error("Failed to persist run report", "run_id", runID, "error", saveErr)
		}
		if s.config.OutputDir != "" {
			if writeErr := report.WriteFiles(rep, s.config.OutputDir); writeErr != nil {
				slog.Error("Failed to write report files", "run_id", runID, "error", writeErr)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	handle, ok := s.runs[runID]
	if !ok {
		return
	}
	handle.completedAt = time.Now()
	handle.report = rep
	handle.err = err

	switch {
	case err == nil:
		handle.state = StateCompleted
	case ctx.Err() != nil && handle.state == StateCanceled:
		// Cancel already stamped the state.
	case ctx.Err() != nil:
		handle.state = StateCanceled
	default:
		handle.state = StateFailed
	}
}

// GetRun returns one run's status.
func (s *Service) GetRun(runID string) (RunStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, ok := s.runs[runID]
	if !ok {
		return RunStatus{}, ErrRunNotFound
	}
	return handle.status(), nil
}

// ListRuns returns the tracked runs, most recent first.
func (s *Service) ListRuns() []RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunStatus, 0, len(s.runs))
	for _, h := range s.runs {
		out = append(out, h.status())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// GetReport returns a run's report, from memory or the store.
func (s *Service) GetReport(ctx context.Context, runID string) (*report.RunReport, error) {
	s.mu.RLock()
	handle, tracked := s.runs[runID]
	s.mu.RUnlock()

	if tracked {
		if handle.report != nil {
			return handle.report, nil
		}
		if handle.state == StateRunning {
			return nil, ErrRunNotFinished
		}
	}

	rep, err := s.store.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, report.ErrRunNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return rep, nil
}

// CancelRun propagates cancellation to an active run.
func (s *Service) CancelRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, ok := s.runs[runID]
	if !ok {
		return ErrRunNotFound
	}
	if handle.state != StateRunning {
		return ErrRunFinished
	}

	handle.state = StateCanceled
	handle.cancel()
	slog.Info("Pipeline run canceled", "run_id", runID)
	return nil
}

// Close cancels in-flight runs and waits for their reports to land.
func (s *Service) Close() {
	s.mu.Lock()
	for _, h := range s.runs {
		if h.state == StateRunning {
			h.state = StateCanceled
			h.cancel()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// status snapshots a handle. Caller holds at least a read lock.
func (h *runHandle) status() RunStatus {
	st := RunStatus{
		RunID:       h.id,
		State:       h.state,
		StartedAt:   h.startedAt,
		CompletedAt: h.completedAt,
		Modules:     h.modules,
	}
	if h.err != nil {
		st.Error = h.err.Error()
	}
	return st
}

// evictLocked drops the oldest finished handles beyond the tracking limit.
// Caller holds the write lock.
func (s *Service) evictLocked() {
	if len(s.runs) <= s.config.MaxTrackedRuns {
		return
	}

	finished := make([]*runHandle, 0, len(s.runs))
	for _, h := range s.runs {
		if h.state != StateRunning {
			finished = append(finished, h)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].startedAt.Before(finished[j].startedAt)
	})

	for _, h := range finished {
		if len(s.runs) <= s.config.MaxTrackedRuns {
			return
		}
		delete(s.runs, h.id)
	}
}
