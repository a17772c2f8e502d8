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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	servicesFile   string
	outputJSON     bool
	outputCompact  bool
	outputQuiet    bool
	verbose        bool
	dialectFlag    string
	thresholdFlag  int
	workersFlag    int
	workDirFlag    string
	outputDirFlag  string
	skipValidation bool
	debounceMs     int

	rootCmd = &cobra.Command{
		Use:   "modulift",
		Short: "A cli to plan, build, and validate IaC module batches",
		Long: `Modulift turns a batch of service definitions into deployable
				infrastructure modules: it orders services by dependency,
				promotes repeated patterns to shared modules, and drives a
				generate, validate, and fix pipeline per module.`,
	}

	// --- Planning ---
	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Assemble the build plan for a service batch without building anything",
		Run:   runPlan, // Defined in cmd_plan.go
	}

	// --- Build ---
	buildCmd = &cobra.Command{
		Use:   "build",
		Short: "Run the full generate, validate, and fix pipeline for a service batch",
		Run:   runBuild, // Defined in cmd_build.go
	}

	// --- Validation ---
	validateCmd = &cobra.Command{
		Use:   "validate [module_dir]",
		Short: "Run one validation pass against an existing module directory",
		Args:  cobra.ExactArgs(1),
		Run:   runValidate, // Defined in cmd_validate.go
	}

	// --- Reports ---
	reportCmd = &cobra.Command{
		Use:   "report [run_id]",
		Short: "Fetch a persisted run report from the report store",
		Args:  cobra.ExactArgs(1),
		Run:   runReport, // Defined in cmd_report.go
	}

	// --- Watch ---
	watchCmd = &cobra.Command{
		Use:   "watch [module_dir]",
		Short: "Re-validate a module directory whenever its files change",
		Args:  cobra.ExactArgs(1),
		Run:   runWatch, // Defined in cmd_watch.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&outputCompact, "compact", false, "JSON output without indentation")
	rootCmd.PersistentFlags().BoolVarP(&outputQuiet, "quiet", "q", false, "No output, exit code only")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&servicesFile, "file", "f", "services.yaml", "Service batch definition file")
	planCmd.Flags().IntVar(&thresholdFlag, "threshold", 0, "Pattern promotion threshold (0 uses configured value)")
	planCmd.Flags().StringVar(&dialectFlag, "dialect", "", "Target IaC dialect: terraform or bicep (default from config)")

	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&servicesFile, "file", "f", "services.yaml", "Service batch definition file")
	buildCmd.Flags().IntVar(&thresholdFlag, "threshold", 0, "Pattern promotion threshold (0 uses configured value)")
	buildCmd.Flags().StringVar(&dialectFlag, "dialect", "", "Target IaC dialect: terraform or bicep (default from config)")
	buildCmd.Flags().IntVar(&workersFlag, "workers", 0, "Concurrent module pipelines (0 uses configured value)")
	buildCmd.Flags().StringVar(&workDirFlag, "work-dir", "", "Directory for generated module trees (default from config)")
	buildCmd.Flags().StringVar(&outputDirFlag, "output-dir", "", "Directory for report files (default from config)")
	buildCmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Generate modules without running validator tooling")

	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&dialectFlag, "dialect", "", "Target IaC dialect: terraform or bicep (default from config)")

	rootCmd.AddCommand(reportCmd)

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&dialectFlag, "dialect", "", "Target IaC dialect: terraform or bicep (default from config)")
	watchCmd.Flags().IntVar(&debounceMs, "debounce", 500, "Debounce window in milliseconds")
}
