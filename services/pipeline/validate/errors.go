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
	"errors"
	"fmt"
)

// Sentinel errors for the validate package.
var (
	// ErrToolUnavailable indicates the validator tool is missing, too old,
	// or exited abnormally without producing diagnostics. Callers treat
	// this as fatal for the whole run: no module can be trusted without a
	// working validator.
	ErrToolUnavailable = errors.New("validator tool unavailable")

	// ErrToolTimeout indicates the validator exceeded its configured timeout.
	ErrToolTimeout = errors.New("validator timeout")

	// ErrUnsupportedDialect indicates no validator configuration exists for
	// the dialect.
	ErrUnsupportedDialect = errors.New("unsupported dialect")

	// ErrParseOutput indicates a registered custom parser failed. The
	// built-in parsers never fail; they keep unrecognized output as
	// info-severity issues instead.
	ErrParseOutput = errors.New("failed to parse validator output")

	// ErrInvalidInput indicates invalid input to a validate function.
	ErrInvalidInput = errors.New("invalid input")
)

// ToolError wraps errors from a specific validator tool with context.
//
// Thread Safety: Immutable after creation.
type ToolError struct {
	// Tool is the name of the validator that failed (e.g., "terraform").
	Tool string

	// Dialect is the dialect being validated (e.g., "terraform").
	Dialect string

	// Err is the underlying error.
	Err error

	// Output contains any stderr output from the tool.
	Output string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s (%s): %v: %s", e.Tool, e.Dialect, e.Err, e.Output)
	}
	return fmt.Sprintf("%s (%s): %v", e.Tool, e.Dialect, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ToolError) Unwrap() error {
	return e.Err
}

// NewToolError creates a new ToolError.
//
// Description:
//
//	Creates an error with context about which validator failed.
//
// Inputs:
//
//	tool - Name of the validator binary (e.g., "bicep")
//	dialect - Dialect being validated (e.g., "bicep")
//	err - The underlying error
//
// Outputs:
//
//	*ToolError - The wrapped error
func NewToolError(tool, dialect string, err error) *ToolError {
	return &ToolError{
		Tool:    tool,
		Dialect: dialect,
		Err:     err,
	}
}

// WithOutput returns a copy of the error with the tool's stderr attached.
func (e *ToolError) WithOutput(output string) *ToolError {
	return &ToolError{
		Tool:    e.Tool,
		Dialect: e.Dialect,
		Err:     e.Err,
		Output:  output,
	}
}
