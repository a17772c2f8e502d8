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

// TerraformValidator validates a module directory with terraform.
//
// Description:
//
//	Runs "terraform validate -json" once per module directory. terraform
//	exits non-zero for an invalid module but still writes the JSON
//	diagnostics report to stdout; only a non-zero exit with an empty
//	report is treated as the tool itself being unusable.
//
// Thread Safety: Safe for concurrent use.
type TerraformValidator struct {
	runner *Runner
}

// NewTerraformValidator creates the terraform adapter on a shared runner.
func NewTerraformValidator(runner *Runner) *TerraformValidator {
	return &TerraformValidator{runner: runner}
}

// Dialect returns "terraform".
func (v *TerraformValidator) Dialect() string {
	return DialectTerraform
}

// Tool returns the configured terraform binary name.
func (v *TerraformValidator) Tool() string {
	if config := v.runner.configs.Get(DialectTerraform); config != nil {
		return config.Command
	}
	return "terraform"
}

// Validate implements Validator.
func (v *TerraformValidator) Validate(ctx context.Context, moduleDir string) (*ValidationResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	if moduleDir == "" {
		return nil, fmt.Errorf("%w: moduleDir must not be empty", ErrInvalidInput)
	}

	ctx, span := startValidateSpan(ctx, DialectTerraform, moduleDir)
	defer span.End()
	start := time.Now()

	config := v.runner.configs.Get(DialectTerraform)
	if config == nil {
		recordValidateMetrics(ctx, DialectTerraform, time.Since(start), 0, 0, false)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, DialectTerraform)
	}

	if err := v.runner.ensureAvailable(ctx, config); err != nil {
		recordValidateMetrics(ctx, DialectTerraform, time.Since(start), 0, 0, false)
		return nil, err
	}

	files, err := collectFiles(moduleDir, config.Extensions)
	if err != nil {
		recordValidateMetrics(ctx, DialectTerraform, time.Since(start), 0, 0, false)
		return nil, err
	}

	out, err := v.runner.execute(ctx, config, moduleDir)
	if err != nil {
		recordValidateMetrics(ctx, DialectTerraform, time.Since(start), 0, 0, false)
		return nil, err
	}

	// terraform still reports JSON on exit 1; an abnormal exit with no
	// report means the tool could not do its job at all.
	if out.ExitCode != 0 && len(bytes.TrimSpace(out.Stdout)) == 0 {
		recordValidateMetrics(ctx, DialectTerraform, time.Since(start), 0, 0, false)
		return nil, NewToolError(config.Command, DialectTerraform, ErrToolUnavailable).
			WithOutput(string(out.Stderr))
	}

	issues, err := v.runner.parseDiagnostics(config, out)
	if err != nil {
		recordValidateMetrics(ctx, DialectTerraform, time.Since(start), 0, 0, false)
		return nil, err
	}
	relativize(issues, moduleDir)

	result := NewResult(DialectTerraform, config.Command, moduleDir, issues, len(files), time.Since(start))

	setValidateSpanResult(span, result.OverallStatus.String(), result.Summary.ErrorCount, result.Summary.WarningCount)
	recordValidateMetrics(ctx, DialectTerraform, result.Duration, result.Summary.ErrorCount, result.Summary.WarningCount, true)

	return result, nil
}
