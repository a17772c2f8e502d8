// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/modulift/modulift/services/pipeline/collab"
	"github.com/modulift/modulift/services/pipeline/fix"
	"github.com/modulift/modulift/services/pipeline/report"
	"github.com/modulift/modulift/services/pipeline/validate"
)

// DefaultGenerateTimeout bounds one module-generation collaborator call.
const DefaultGenerateTimeout = 3 * time.Minute

// FixRunner runs the fix loop for one module. Implemented by
// fix.Controller; narrowed to an interface so tests can stand in for it.
type FixRunner interface {
	Run(ctx context.Context, moduleDir string, files []collab.SourceFile) (*fix.Outcome, error)
}

// Orchestrator executes pipeline runs.
//
// Description:
//
//	An Orchestrator drives every module of a plan through generation and
//	the fix loop under a bounded worker pool. Modules proceed
//	independently: one module's failure never aborts its siblings, and
//	only a validator that cannot run at all (or a run-level cancellation)
//	ends the run early. Every run produces a report.
//
// Thread Safety: Safe for concurrent Execute calls with distinct run ids.
type Orchestrator struct {
	generator collab.Generator
	fixer     FixRunner

	workers         int
	workDir         string
	generateTimeout time.Duration
	skipValidation  bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWorkers bounds concurrent module pipelines. Values < 1 keep the
// default of one worker per CPU core.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.workers = n
		}
	}
}

// WithWorkDir sets the directory module file sets are materialized under.
func WithWorkDir(dir string) Option {
	return func(o *Orchestrator) {
		if dir != "" {
			o.workDir = dir
		}
	}
}

// WithGenerateTimeout sets the per-module generation timeout.
func WithGenerateTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.generateTimeout = d
		}
	}
}

// WithSkipValidation disables validation: generated modules are written to
// disk and reported as not_validated, and the fix loop never runs.
func WithSkipValidation(skip bool) Option {
	return func(o *Orchestrator) {
		o.skipValidation = skip
	}
}

// NewOrchestrator creates a run orchestrator.
//
// Inputs:
//
//	generator - The module-generation collaborator
//	fixer - The fix loop controller; may be nil only with skip-validation
//	opts - Optional configuration
//
// Outputs:
//
//	*Orchestrator - The configured orchestrator
//	error - ErrInvalidInput when a required dependency is nil
func NewOrchestrator(generator collab.Generator, fixer FixRunner, opts ...Option) (*Orchestrator, error) {
	if generator == nil {
		return nil, fmt.Errorf("%w: nil generator", ErrInvalidInput)
	}

	o := &Orchestrator{
		generator:       generator,
		fixer:           fixer,
		workers:         runtime.GOMAXPROCS(0),
		workDir:         "modules",
		generateTimeout: DefaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.fixer == nil && !o.skipValidation {
		return nil, fmt.Errorf("%w: nil fix runner without skip-validation", ErrInvalidInput)
	}
	return o, nil
}

// Execute runs every module of the plan and folds the results into a report.
//
// Description:
//
//	Spawns one task per module, throttled by the worker pool. Each task
//	generates the module's files and hands them to the fix loop. A
//	module-scoped failure (generation error, timeout, exhausted fix
//	budget) is recorded in that module's result and the run continues; a
//	run-fatal condition (validator unavailable, cancellation) cancels the
//	remaining tasks. Modules that never started are omitted from the
//	report rather than given an invented status.
//
// Inputs:
//
//	ctx - Context for cancellation
//	runID - Unique id for this run (NewRunID)
//	plan - The assembled build plan
//
// Outputs:
//
//	*report.RunReport - Always non-nil when inputs were valid; carries
//	every completed module and any fatal error.
//	error - Non-nil only for invalid inputs or a run-fatal condition,
//	wrapped in ErrRunFatal.
func (o *Orchestrator) Execute(ctx context.Context, runID string, plan *Plan) (*report.RunReport, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if runID == "" {
		return nil, fmt.Errorf("%w: empty run id", ErrInvalidInput)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: nil plan", ErrInvalidInput)
	}

	ctx, span := startRunSpan(ctx, runID, len(plan.Modules))
	defer span.End()
	startedAt := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []report.ModuleResult
		fatal   error
	)

	setFatal := func(err error) {
		mu.Lock()
		if fatal == nil {
			fatal = err
		}
		mu.Unlock()
		cancel()
	}

	sem := make(chan struct{}, o.workers)
	for _, module := range plan.Modules {
		module := module

		select {
		case <-runCtx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				result, fatalErr := o.runModule(runCtx, runID, plan.Dialect, module)
				if result != nil {
					mu.Lock()
					results = append(results, *result)
					mu.Unlock()
					recordModuleStatus(ctx, result.Status.String())
				}
				if fatalErr != nil {
					setFatal(fatalErr)
				}
			}()
		}
	}
	wg.Wait()

	// A cancellation that arrived from outside is still a fatal condition
	// the report must carry.
	mu.Lock()
	if fatal == nil && ctx.Err() != nil {
		fatal = ctx.Err()
	}
	finalFatal := fatal
	mu.Unlock()

	rep := report.Aggregate(runID, results, plan.Cycles)
	rep.StartedAt = startedAt
	rep.CompletedAt = time.Now()

	recordRunMetrics(ctx, time.Since(startedAt), finalFatal != nil)

	if finalFatal != nil {
		rep.FatalError = finalFatal.Error()
		slog.Error("Pipeline run aborted",
			slog.String("run_id", runID),
			slog.Int("modules_completed", len(results)),
			slog.String("error", finalFatal.Error()),
		)
		return rep, fmt.Errorf("%w: %w", ErrRunFatal, finalFatal)
	}

	slog.Info("Pipeline run complete",
		slog.String("run_id", runID),
		slog.Int("modules", rep.Summary.TotalModules),
		slog.Int("passed", rep.Summary.Passed),
		slog.Int("failed", rep.Summary.Failed),
		slog.Duration("duration", time.Since(startedAt)),
	)
	return rep, nil
}

// runModule drives one module through generation and fixing. The second
// return is non-nil only for run-fatal conditions.
func (o *Orchestrator) runModule(ctx context.Context, runID, dialect string, module Module) (*report.ModuleResult, error) {
	if ctx.Err() != nil {
		return nil, nil
	}

	moduleDir := filepath.Join(o.workDir, runID, module.Name)

	files, err := o.generateOnce(ctx, module.Spec)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// Run-level cancellation, not a module problem.
			return nil, nil
		}
		slog.Warn("Module generation failed",
			slog.String("run_id", runID),
			slog.String("module", module.Name),
			slog.String("error", err.Error()),
		)
		return &report.ModuleResult{Name: module.Name, Status: validate.StatusFail}, nil
	}

	if o.skipValidation {
		if err := materialize(moduleDir, files); err != nil {
			return &report.ModuleResult{Name: module.Name, Status: validate.StatusFail}, nil
		}
		result := report.FromValidation(module.Name, validate.NewSkippedResult(dialect, moduleDir))
		return &result, nil
	}

	outcome, err := o.fixer.Run(ctx, moduleDir, files)
	if outcome == nil {
		if err != nil {
			return nil, err
		}
		return &report.ModuleResult{Name: module.Name, Status: validate.StatusFail}, nil
	}

	result := report.FromOutcome(module.Name, outcome)
	return &result, err
}

// generateOnce runs one generation call under its own timeout.
func (o *Orchestrator) generateOnce(ctx context.Context, spec collab.ModuleSpec) ([]collab.SourceFile, error) {
	gctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()
	return o.generator.GenerateModule(gctx, spec)
}

// materialize writes a generated file set under moduleDir, confining every
// path to the module directory.
func materialize(moduleDir string, files []collab.SourceFile) error {
	for _, f := range files {
		if !filepath.IsLocal(f.Path) {
			return fmt.Errorf("%w: path %q escapes the module directory", ErrInvalidInput, f.Path)
		}
		dst := filepath.Join(moduleDir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return nil
}
