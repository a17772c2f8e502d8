// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// BicepValidator validates a module directory with the bicep CLI.
//
// Description:
//
//	Runs "bicep build --stdout" once per .bicep file in the module.
//	bicep writes the compiled ARM template to stdout and diagnostics to
//	stderr; it exits non-zero when the file has errors while still
//	printing them. A non-zero exit with silent stderr means the tool
//	itself is broken.
//
// Thread Safety: Safe for concurrent use.
type BicepValidator struct {
	runner *Runner
}

// NewBicepValidator creates the bicep adapter on a shared runner.
func NewBicepValidator(runner *Runner) *BicepValidator {
	return &BicepValidator{runner: runner}
}

// Dialect returns "bicep".
func (v *BicepValidator) Dialect() string {
	return DialectBicep
}

// Tool returns the configured bicep binary name.
func (v *BicepValidator) Tool() string {
	if config := v.runner.configs.Get(DialectBicep); config != nil {
		return config.Command
	}
	return "bicep"
}

// Validate implements Validator.
func (v *BicepValidator) Validate(ctx context.Context, moduleDir string) (*ValidationResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	if moduleDir == "" {
		return nil, fmt.Errorf("%w: moduleDir must not be empty", ErrInvalidInput)
	}

	ctx, span := startValidateSpan(ctx, DialectBicep, moduleDir)
	defer span.End()
	start := time.Now()

	config := v.runner.configs.Get(DialectBicep)
	if config == nil {
		recordValidateMetrics(ctx, DialectBicep, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, DialectBicep)
	}

	if err := v.runner.ensureAvailable(ctx, config); err != nil {
		recordValidateMetrics(ctx, DialectBicep, time.Since(start), 0, 0, false)
		return nil, err
	}

	files, err := collectFiles(moduleDir, config.Extensions)
	if err != nil {
		recordValidateMetrics(ctx, DialectBicep, time.Since(start), 0, 0, false)
		return nil, err
	}

	var issues []ValidationIssue
	for _, file := range files {
		out, err := v.runner.execute(ctx, config, moduleDir, file)
		if err != nil {
			recordValidateMetrics(ctx, DialectBicep, time.Since(start), 0, 0, false)
			return nil, err
		}

		if out.ExitCode != 0 && len(bytes.TrimSpace(out.Stderr)) == 0 {
			recordValidateMetrics(ctx, DialectBicep, time.Since(start), 0, 0, false)
			return nil, NewToolError(config.Command, DialectBicep, ErrToolUnavailable).
				WithOutput(fmt.Sprintf("exit code %d with no diagnostics for %s", out.ExitCode, file))
		}

		fileIssues, err := v.runner.parseDiagnostics(config, out)
		if err != nil {
			recordValidateMetrics(ctx, DialectBicep, time.Since(start), 0, 0, false)
			return nil, err
		}
		issues = append(issues, fileIssues...)
	}
	relativize(issues, moduleDir)

	result := NewResult(DialectBicep, config.Command, moduleDir, issues, len(files), time.Since(start))

	setValidateSpanResult(span, result.OverallStatus.String(), result.Summary.ErrorCount, result.Summary.WarningCount)
	recordValidateMetrics(ctx, DialectBicep, result.Duration, result.Summary.ErrorCount, result.Summary.WarningCount, true)

	return result, nil
}
