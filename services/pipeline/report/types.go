// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"time"

	"github.com/modulift/modulift/services/pipeline/fix"
	"github.com/modulift/modulift/services/pipeline/graph"
	"github.com/modulift/modulift/services/pipeline/validate"
)

// =============================================================================
// PERSISTED SHAPES
// =============================================================================

// ModuleReport is the persisted per-module report object. Its JSON shape is
// a published interface consumed by presentation layers; the key names are
// fixed.
type ModuleReport struct {
	// OverallStatus is the module's final verdict.
	OverallStatus validate.Status `json:"overall_status"`

	// ValidationSummary carries the counts from the final validation.
	ValidationSummary SummaryReport `json:"validation_summary"`

	// Issues is the final validation's issue list. Always present, empty
	// when the module is clean.
	Issues []IssueReport `json:"issues"`
}

// SummaryReport is the per-module count block.
type SummaryReport struct {
	TotalFiles   int `json:"total_files"`
	ErrorCount   int `json:"error_count"`
	WarningCount int `json:"warning_count"`
}

// IssueReport is one issue in the published shape. Line and Column are null
// when the tool did not report them.
type IssueReport struct {
	File     string            `json:"file"`
	Line     *int              `json:"line"`
	Column   *int              `json:"column"`
	Severity validate.Severity `json:"severity"`
	Rule     string            `json:"rule"`
	Message  string            `json:"message"`
}

// RunReport is the run-level report: per-module reports, bucket counts,
// cycle warnings from ordering, and the fix loop audit trail.
//
// Thread Safety: Immutable after Aggregate returns.
type RunReport struct {
	// RunID identifies the pipeline run.
	RunID string `json:"run_id"`

	// StartedAt and CompletedAt are stamped by the orchestrator.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Summary counts modules per final status bucket.
	Summary RunSummary `json:"summary"`

	// Cycles carries the ordering phase's broken-cycle warnings.
	Cycles []graph.CycleReport `json:"cycles,omitempty"`

	// Modules maps module name to its published report.
	Modules map[string]ModuleReport `json:"modules"`

	// FixHistory maps module name to its fix loop passes, for audit.
	FixHistory map[string][]fix.FixIteration `json:"fix_history,omitempty"`

	// FatalError records a run-fatal condition (validator unavailable,
	// cancellation). Completed module results are still present.
	FatalError string `json:"fatal_error,omitempty"`
}

// RunSummary counts modules per final status.
type RunSummary struct {
	TotalModules int `json:"total_modules"`
	Passed       int `json:"passed"`
	Warning      int `json:"warning"`
	Failed       int `json:"failed"`
	NotValidated int `json:"not_validated"`
}

// =============================================================================
// AGGREGATION INPUT
// =============================================================================

// ModuleResult is one module's contribution to a run report: its resolved
// status, the final validation result, and the fix loop history. The report
// package never mutates the result it is handed.
type ModuleResult struct {
	// Name is the module (service) name.
	Name string

	// Status is the module's final verdict, already resolved by the fix
	// loop (a timed-out module is a fail even if its last completed
	// validation was not).
	Status validate.Status

	// Result is the last completed validation, nil if none ran.
	Result *validate.ValidationResult

	// Iterations is the fix loop history.
	Iterations []fix.FixIteration
}

// FromOutcome builds a ModuleResult from a finished fix loop.
func FromOutcome(name string, o *fix.Outcome) ModuleResult {
	return ModuleResult{
		Name:       name,
		Status:     o.Status(),
		Result:     o.FinalResult,
		Iterations: o.Iterations,
	}
}

// FromValidation builds a ModuleResult from a validation-only pass (no fix
// loop), as used by one-shot validation and watch mode.
func FromValidation(name string, r *validate.ValidationResult) ModuleResult {
	return ModuleResult{
		Name:   name,
		Status: r.OverallStatus,
		Result: r,
	}
}
