// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fix drives the iterative repair loop for generated modules:
// validate, ask the collaborator for fixes, apply the trustworthy ones, and
// validate again until the module is clean or the budget is spent.
package fix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/modulift/modulift/services/pipeline/collab"
	"github.com/modulift/modulift/services/pipeline/validate"
)

// Defaults for the fix loop.
const (
	// DefaultMaxIterations bounds how many fix rounds one module gets. The
	// loop therefore performs at most DefaultMaxIterations+1 validations.
	DefaultMaxIterations = 3

	// DefaultValidateTimeout bounds a single validator invocation.
	DefaultValidateTimeout = 2 * time.Minute

	// DefaultSuggestTimeout bounds a single collaborator call.
	DefaultSuggestTimeout = 2 * time.Minute

	// DefaultMaxPatchLines caps the size of a unified-diff fix.
	DefaultMaxPatchLines = 400
)

// Controller runs the fix loop for one module at a time.
//
// Thread Safety: Safe for concurrent Run calls on distinct module
// directories. The controller itself holds no per-run state.
type Controller struct {
	validator validate.Validator
	suggester collab.FixSuggester

	maxIterations   int
	validateTimeout time.Duration
	suggestTimeout  time.Duration
	maxPatchLines   int
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxIterations sets the fix round budget. Values below 1 keep the
// default.
func WithMaxIterations(n int) Option {
	return func(c *Controller) {
		if n >= 1 {
			c.maxIterations = n
		}
	}
}

// WithValidateTimeout sets the per-call validator timeout.
func WithValidateTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.validateTimeout = d
		}
	}
}

// WithSuggestTimeout sets the per-call collaborator timeout.
func WithSuggestTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.suggestTimeout = d
		}
	}
}

// WithMaxPatchLines sets the unified-diff size cap.
func WithMaxPatchLines(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxPatchLines = n
		}
	}
}

// NewController creates a fix loop controller.
//
// Description:
//
//	Wires a validator and a fix-suggesting collaborator into a loop
//	controller with default budgets. Options override the budgets.
//
// Inputs:
//
//	validator - Validates the module directory on disk
//	suggester - Proposes fixes for failed validations
//	opts - Optional configuration
//
// Outputs:
//
//	*Controller - The configured controller
//	error - ErrInvalidInput when either dependency is nil
func NewController(validator validate.Validator, suggester collab.FixSuggester, opts ...Option) (*Controller, error) {
	if validator == nil {
		return nil, fmt.Errorf("%w: nil validator", ErrInvalidInput)
	}
	if suggester == nil {
		return nil, fmt.Errorf("%w: nil suggester", ErrInvalidInput)
	}

	c := &Controller{
		validator:       validator,
		suggester:       suggester,
		maxIterations:   DefaultMaxIterations,
		validateTimeout: DefaultValidateTimeout,
		suggestTimeout:  DefaultSuggestTimeout,
		maxPatchLines:   DefaultMaxPatchLines,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes the fix loop for one module.
//
// Description:
//
//	Writes the file set into moduleDir, validates it, and while the result
//	is a fail asks the collaborator for fixes, applies the high-confidence
//	ones, and validates again. The loop stops on a clean result, on an
//	exhausted iteration budget, or when the error count stops improving
//	between iterations. Every pass is recorded as a FixIteration, and the
//	history survives failure and cancellation.
//
//	A validator timeout or a collaborator failure ends this module only;
//	the returned error stays nil so sibling modules keep running. A
//	validate.ErrToolUnavailable and a canceled context are returned as
//	errors because they doom the whole run.
//
// Inputs:
//
//	ctx - Context for cancellation
//	moduleDir - Directory the module is validated in
//	files - The module's file set; paths relative to moduleDir
//
// Outputs:
//
//	*Outcome - Final files, last result, and iteration history. Non-nil
//	whenever the inputs were valid, including on error.
//	error - Run-fatal conditions only
func (c *Controller) Run(ctx context.Context, moduleDir string, files []collab.SourceFile) (*Outcome, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: nil context", ErrInvalidInput)
	}
	if moduleDir == "" {
		return nil, fmt.Errorf("%w: empty module directory", ErrInvalidInput)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: empty file set", ErrInvalidInput)
	}

	ctx, span := startLoopSpan(ctx, moduleDir)
	defer span.End()
	start := time.Now()

	outcome := &Outcome{ModuleDir: moduleDir, Files: cloneFiles(files)}
	defer func() {
		setLoopSpanResult(span, outcome.Termination, len(outcome.Iterations))
		recordLoopMetrics(ctx, outcome, time.Since(start))
	}()

	if err := writeFiles(moduleDir, outcome.Files); err != nil {
		outcome.Termination = TerminationInternal
		outcome.Err = err
		return outcome, err
	}

	result, err := c.validateOnce(ctx, moduleDir)
	if err != nil {
		term, propagate := validatorTermination(err)
		return c.fail(outcome, FixIteration{IterationNumber: 1}, term, err, propagate)
	}
	outcome.FinalResult = result

	prevErrors := -1
	for iter := 1; ; iter++ {
		it := FixIteration{IterationNumber: iter, InputResult: result}

		if result.OverallStatus != validate.StatusFail {
			outcome.Iterations = append(outcome.Iterations, it)
			outcome.Termination = TerminationSuccess
			slog.Info("Fix loop finished",
				slog.String("module_dir", moduleDir),
				slog.String("status", result.OverallStatus.String()),
				slog.Int("iterations", iter),
			)
			return outcome, nil
		}

		if prevErrors >= 0 && result.Summary.ErrorCount >= prevErrors {
			it.Error = fmt.Sprintf("error count stalled at %d", result.Summary.ErrorCount)
			return c.fail(outcome, it, TerminationConverged, ErrNoProgress, nil)
		}
		prevErrors = result.Summary.ErrorCount

		if iter > c.maxIterations {
			it.Error = "iteration budget exhausted"
			return c.fail(outcome, it, TerminationMaxIterations, ErrMaxIterationsExceeded, nil)
		}

		fixes, err := c.suggestOnce(ctx, result, outcome.Files)
		if err != nil {
			term, propagate := suggesterTermination(err)
			return c.fail(outcome, it, term, err, propagate)
		}
		it.FixesProposed = fixes

		next, applied, skipped := applyFixes(outcome.Files, fixes, c.maxPatchLines)
		it.FixesApplied = applied
		it.FixesSkipped = skipped
		outcome.Files = next

		slog.Debug("Fix iteration applied",
			slog.String("module_dir", moduleDir),
			slog.Int("iteration", iter),
			slog.Int("proposed", len(fixes)),
			slog.Int("applied", len(applied)),
			slog.Int("skipped", len(skipped)),
		)

		if len(applied) == 0 {
			// Nothing changed on disk, so the result cannot change either.
			// The convergence guard ends the loop on the next pass.
			it.OutputResult = result
			outcome.Iterations = append(outcome.Iterations, it)
			continue
		}

		if err := writeFiles(moduleDir, outcome.Files); err != nil {
			it.Error = err.Error()
			return c.fail(outcome, it, TerminationInternal, err, err)
		}

		result, err = c.validateOnce(ctx, moduleDir)
		if err != nil {
			term, propagate := validatorTermination(err)
			return c.fail(outcome, it, term, err, propagate)
		}
		it.OutputResult = result
		outcome.Iterations = append(outcome.Iterations, it)
		outcome.FinalResult = result
	}
}

// fail records the final iteration, stamps the outcome, and returns. A nil
// propagate keeps the failure scoped to this module.
func (c *Controller) fail(outcome *Outcome, it FixIteration, term Termination, cause, propagate error) (*Outcome, error) {
	if it.Error == "" && cause != nil {
		it.Error = cause.Error()
	}
	outcome.Iterations = append(outcome.Iterations, it)
	outcome.Termination = term
	outcome.Err = cause

	slog.Warn("Fix loop aborted",
		slog.String("module_dir", outcome.ModuleDir),
		slog.String("termination", term.String()),
		slog.Int("iterations", len(outcome.Iterations)),
		slog.String("error", it.Error),
	)
	return outcome, propagate
}

// validateOnce runs one validator pass under its own timeout.
func (c *Controller) validateOnce(ctx context.Context, moduleDir string) (*validate.ValidationResult, error) {
	vctx, cancel := context.WithTimeout(ctx, c.validateTimeout)
	defer cancel()
	return c.validator.Validate(vctx, moduleDir)
}

// suggestOnce runs one collaborator call under its own timeout.
func (c *Controller) suggestOnce(ctx context.Context, result *validate.ValidationResult, files []collab.SourceFile) ([]collab.CodeFix, error) {
	sctx, cancel := context.WithTimeout(ctx, c.suggestTimeout)
	defer cancel()
	return c.suggester.SuggestFixes(sctx, result, files)
}

// validatorTermination classifies a validator error. The second return is
// non-nil when the error must propagate to the caller and end the run.
func validatorTermination(err error) (Termination, error) {
	switch {
	case errors.Is(err, validate.ErrToolUnavailable):
		return TerminationToolUnavailable, err
	case errors.Is(err, context.Canceled):
		return TerminationCanceled, err
	case errors.Is(err, validate.ErrToolTimeout), errors.Is(err, context.DeadlineExceeded):
		return TerminationTimeout, nil
	default:
		return TerminationInternal, nil
	}
}

// suggesterTermination classifies a collaborator error.
func suggesterTermination(err error) (Termination, error) {
	switch {
	case errors.Is(err, context.Canceled):
		return TerminationCanceled, err
	case errors.Is(err, context.DeadlineExceeded):
		return TerminationTimeout, nil
	default:
		return TerminationCollaborator, nil
	}
}

// writeFiles materializes the file set under moduleDir. Paths are confined
// to the module directory.
func writeFiles(moduleDir string, files []collab.SourceFile) error {
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

// cloneFiles copies the file set so the caller's slice is never mutated.
func cloneFiles(files []collab.SourceFile) []collab.SourceFile {
	out := make([]collab.SourceFile, len(files))
	copy(out, files)
	return out
}
