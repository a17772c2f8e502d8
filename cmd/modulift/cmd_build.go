// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modulift/modulift/services/pipeline/collab"
	"github.com/modulift/modulift/services/pipeline/config"
	"github.com/modulift/modulift/services/pipeline/fix"
	"github.com/modulift/modulift/services/pipeline/report"
	"github.com/modulift/modulift/services/pipeline/run"
	"github.com/modulift/modulift/services/pipeline/validate"
)

// runBuild runs the full generate, validate, and fix pipeline.
func runBuild(cmd *cobra.Command, args []string) {
	start := time.Now()
	out := outputConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := assemblePlan(ctx)
	if err != nil {
		os.Exit(OutputResult(out, "build", start, nil, false, err))
	}

	orch, err := buildOrchestrator(appConfig)
	if err != nil {
		os.Exit(OutputResult(out, "build", start, nil, false, err))
	}

	runID := run.NewRunID()
	slog.Info("Starting pipeline run",
		"run_id", runID, "modules", len(plan.Modules), "dialect", plan.Dialect)

	rep, execErr := orch.Execute(ctx, runID, plan)
	if rep != nil {
		// Publishing must survive a canceled run context.
		publishReport(context.Background(), rep)
	}

	if execErr != nil {
		os.Exit(OutputResult(out, "build", start, rep, false, execErr))
	}

	if !out.JSON && !out.Quiet {
		printRunSummary(rep)
	}

	hasFindings := rep.Summary.Failed > 0
	os.Exit(OutputResult(out, "build", start, rep, hasFindings, nil))
}

// buildOrchestrator wires the collaborator, validator, and fix loop
// from configuration plus command flags.
func buildOrchestrator(cfg *config.Config) (*run.Orchestrator, error) {
	client, err := collab.NewClient(cfg.Collab)
	if err != nil {
		return nil, err
	}

	dialect := dialectFlag
	if dialect == "" {
		dialect = cfg.Validate.Dialect
	}
	skip := skipValidation || cfg.Validate.Skip

	var fixer run.FixRunner
	if !skip {
		validator, err := validate.ForDialect(dialect, validate.NewRunner())
		if err != nil {
			return nil, err
		}

		var fixOpts []fix.Option
		if cfg.Fix.MaxIterations > 0 {
			fixOpts = append(fixOpts, fix.WithMaxIterations(cfg.Fix.MaxIterations))
		}
		if cfg.Fix.ValidateTimeoutSeconds > 0 {
			fixOpts = append(fixOpts, fix.WithValidateTimeout(time.Duration(cfg.Fix.ValidateTimeoutSeconds)*time.Second))
		}
		if cfg.Fix.SuggestTimeoutSeconds > 0 {
			fixOpts = append(fixOpts, fix.WithSuggestTimeout(time.Duration(cfg.Fix.SuggestTimeoutSeconds)*time.Second))
		}
		if cfg.Fix.MaxPatchLines > 0 {
			fixOpts = append(fixOpts, fix.WithMaxPatchLines(cfg.Fix.MaxPatchLines))
		}

		fixer, err = fix.NewController(validator, client, fixOpts...)
		if err != nil {
			return nil, err
		}
	}

	workers := workersFlag
	if workers < 1 {
		workers = cfg.Run.Workers
	}
	workDir := workDirFlag
	if workDir == "" {
		workDir = cfg.Run.WorkDir
	}

	opts := []run.Option{
		run.WithWorkers(workers),
		run.WithWorkDir(workDir),
		run.WithSkipValidation(skip),
	}
	if cfg.Run.GenerateTimeoutSeconds > 0 {
		opts = append(opts, run.WithGenerateTimeout(time.Duration(cfg.Run.GenerateTimeoutSeconds)*time.Second))
	}

	return run.NewOrchestrator(client, fixer, opts...)
}

// publishReport persists the report to the store (when configured) and
// writes the per-module report files.
func publishReport(ctx context.Context, rep *report.RunReport) {
	if appConfig.Run.StorePath != "" {
		store, err := report.OpenStore(report.DefaultStoreConfig(appConfig.Run.StorePath))
		if err != nil {
			slog.Warn("Failed to open report store", "error", err)
		} else {
			defer store.Close()
			if err := store.Save(ctx, rep); err != nil {
				slog.Warn("Failed to persist run report", "run_id", rep.RunID, "error", err)
			}
		}
	}

	outputDir := outputDirFlag
	if outputDir == "" {
		outputDir = appConfig.Run.OutputDir
	}
	if outputDir != "" {
		if err := report.WriteFiles(rep, outputDir); err != nil {
			slog.Warn("Failed to write report files", "run_id", rep.RunID, "error", err)
		}
	}
}
