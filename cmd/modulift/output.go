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
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/modulift/modulift/services/pipeline/report"
	"github.com/modulift/modulift/services/pipeline/run"
	"github.com/modulift/modulift/services/pipeline/validate"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings/violations
	CLIExitError    = 2 // Operation failed
)

// OutputConfig controls output behavior.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
	Quiet   bool // No output, exit code only
}

// outputConfig builds the effective output configuration for a command.
// Piped stdout falls back to JSON so scripts get a stable format.
func outputConfig() OutputConfig {
	cfg := OutputConfig{
		JSON:    outputJSON,
		Compact: outputCompact,
		Quiet:   outputQuiet,
	}
	if !cfg.JSON && !cfg.Quiet && !stdoutIsTerminal() {
		cfg.JSON = true
	}
	return cfg
}

// stdoutIsTerminal reports whether stdout is an interactive terminal.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// CommandResult wraps command output with metadata.
type CommandResult struct {
	APIVersion string      `json:"api_version"`
	Command    string      `json:"command"`
	Timestamp  time.Time   `json:"timestamp"`
	DurationMs int64       `json:"duration_ms"`
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// OutputJSON writes structured data as JSON to stdout.
func OutputJSON(data interface{}, compact bool) error {
	encoder := json.NewEncoder(os.Stdout)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// OutputError writes an error in the appropriate format.
//
// # Inputs
//
//   - jsonMode: If true, output as JSON to stdout.
//   - msg: Human-readable error message.
//   - err: The underlying error.
func OutputError(jsonMode bool, msg string, err error) {
	if jsonMode {
		result := CommandResult{
			APIVersion: "1.0",
			Timestamp:  time.Now(),
			Success:    false,
			Error:      fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

// OutputResult handles all output scenarios with proper formatting.
//
// # Inputs
//
//   - cfg: Output configuration.
//   - cmd: Command name for metadata.
//   - start: Start time for duration calculation.
//   - data: The data to output.
//   - hasFindings: Whether the operation found issues (for exit code).
//   - err: Any error that occurred.
//
// # Outputs
//
//   - int: The exit code to use.
func OutputResult(cfg OutputConfig, cmd string, start time.Time, data interface{}, hasFindings bool, err error) int {
	if cfg.Quiet {
		if err != nil {
			return CLIExitError
		}
		if hasFindings {
			return CLIExitFindings
		}
		return CLIExitSuccess
	}

	if err != nil {
		OutputError(cfg.JSON, "Command failed", err)
		return CLIExitError
	}

	if cfg.JSON {
		result := CommandResult{
			APIVersion: "1.0",
			Command:    cmd,
			Timestamp:  time.Now(),
			DurationMs: time.Since(start).Milliseconds(),
			Success:    true,
			Data:       data,
		}
		if encErr := OutputJSON(result, cfg.Compact); encErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", encErr)
			return CLIExitError
		}
	}

	if hasFindings {
		return CLIExitFindings
	}
	return CLIExitSuccess
}

// printPlanSummary renders a plan for interactive use.
func printPlanSummary(plan *run.Plan) {
	fmt.Printf("Plan: %d modules, dialect %s\n", len(plan.Modules), plan.Dialect)

	for _, warning := range plan.Warnings() {
		fmt.Printf("  warning: %s\n", warning)
	}

	for _, module := range plan.Modules {
		switch module.Kind {
		case run.KindShared:
			fmt.Printf("  [shared] %s\n", module.Name)
		default:
			fmt.Printf("  [tier %d] %s", module.Tier, module.Name)
			if len(module.Spec.Dependencies) > 0 {
				fmt.Printf("  <- %v", module.Spec.Dependencies)
			}
			fmt.Println()
		}
	}
}

// printRunSummary renders a run report for interactive use.
func printRunSummary(rep *report.RunReport) {
	fmt.Printf("Run %s: %d modules (%d passed, %d warning, %d failed, %d not validated)\n",
		rep.RunID, rep.Summary.TotalModules, rep.Summary.Passed,
		rep.Summary.Warning, rep.Summary.Failed, rep.Summary.NotValidated)

	if rep.FatalError != "" {
		fmt.Printf("  fatal: %s\n", rep.FatalError)
	}

	names := make([]string, 0, len(rep.Modules))
	for name := range rep.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mod := rep.Modules[name]
		fmt.Printf("  %-12s %s", mod.OverallStatus, name)
		if len(mod.Issues) > 0 {
			fmt.Printf("  (%d issues)", len(mod.Issues))
		}
		fmt.Println()
	}
}

// printValidationSummary renders one validation result for interactive use.
func printValidationSummary(result *validate.ValidationResult) {
	fmt.Printf("%s: %s (%d errors, %d warnings)\n",
		result.ModuleDir, result.OverallStatus,
		result.Summary.ErrorCount, result.Summary.WarningCount)

	for _, issue := range result.Issues {
		fmt.Printf("  %-8s %s  %s\n", issue.Severity, issue.Location(), issue.Message)
	}
}
