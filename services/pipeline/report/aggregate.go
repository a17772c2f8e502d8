// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report folds per-module outcomes into run-level reports, writes
// the published JSON shapes, and persists reports in a local store.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/modulift/modulift/services/pipeline/fix"
	"github.com/modulift/modulift/services/pipeline/graph"
	"github.com/modulift/modulift/services/pipeline/validate"
)

// Aggregate folds module results into a run report.
//
// Description:
//
//	Builds the per-module published reports, counts modules per status
//	bucket, and attaches the ordering phase's cycle warnings and the fix
//	loop audit trail. A pure read-and-fold: no input is mutated and no
//	clock or I/O is touched. The caller stamps timestamps and any fatal
//	error before persisting.
//
// Inputs:
//
//	runID - The pipeline run id
//	results - One entry per module that produced a result
//	cycles - Broken-cycle warnings from ordering, may be nil
//
// Outputs:
//
//	*RunReport - The folded report
func Aggregate(runID string, results []ModuleResult, cycles []graph.CycleReport) *RunReport {
	rep := &RunReport{
		RunID:   runID,
		Summary: RunSummary{TotalModules: len(results)},
		Cycles:  cycles,
		Modules: make(map[string]ModuleReport, len(results)),
	}

	for _, r := range results {
		rep.Modules[r.Name] = moduleReport(r)

		switch r.Status {
		case validate.StatusPass:
			rep.Summary.Passed++
		case validate.StatusWarning:
			rep.Summary.Warning++
		case validate.StatusFail:
			rep.Summary.Failed++
		case validate.StatusNotValidated:
			rep.Summary.NotValidated++
		}

		if len(r.Iterations) > 0 {
			if rep.FixHistory == nil {
				rep.FixHistory = make(map[string][]fix.FixIteration)
			}
			rep.FixHistory[r.Name] = r.Iterations
		}
	}

	return rep
}

// moduleReport maps one module result onto the published shape.
func moduleReport(r ModuleResult) ModuleReport {
	rep := ModuleReport{
		OverallStatus: r.Status,
		Issues:        make([]IssueReport, 0),
	}
	if r.Result == nil {
		return rep
	}

	rep.ValidationSummary = SummaryReport{
		TotalFiles:   r.Result.Summary.FileCount,
		ErrorCount:   r.Result.Summary.ErrorCount,
		WarningCount: r.Result.Summary.WarningCount,
	}
	for _, issue := range r.Result.Issues {
		rep.Issues = append(rep.Issues, IssueReport{
			File:     issue.File,
			Line:     issue.Line,
			Column:   issue.Column,
			Severity: issue.Severity,
			Rule:     issue.RuleOrType,
			Message:  issue.Message,
		})
	}
	return rep
}

// WriteFiles persists the run report as run.json plus one
// <module>.report.json per module under dir.
//
// Description:
//
//	Writes the run-level report and the per-module published reports as
//	indented JSON. Module names become file names, so names carrying path
//	separators are rejected.
//
// Inputs:
//
//	rep - The report to write
//	dir - Output directory, created if missing
//
// Outputs:
//
//	error - ErrInvalidInput for unusable names, otherwise I/O errors
func WriteFiles(rep *RunReport, dir string) error {
	if rep == nil {
		return fmt.Errorf("%w: nil report", ErrInvalidInput)
	}
	if dir == "" {
		return fmt.Errorf("%w: empty output directory", ErrInvalidInput)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.json"), data, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}

	names := make([]string, 0, len(rep.Modules))
	for name := range rep.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if name == "" || strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) {
			return fmt.Errorf("%w: module name %q not usable as a file name", ErrInvalidInput, name)
		}
		mod := rep.Modules[name]
		data, err := json.MarshalIndent(mod, "", "  ")
		if err != nil {
			return fmt.Errorf("encode module report %s: %w", name, err)
		}
		path := filepath.Join(dir, name+".report.json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write module report %s: %w", name, err)
		}
	}
	return nil
}
