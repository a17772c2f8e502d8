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
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Supported IaC dialects.
const (
	DialectTerraform = "terraform"
	DialectBicep     = "bicep"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity represents the severity level of a validation issue.
type Severity int

const (
	// SeverityInfo represents informational diagnostics and retained raw
	// output that never affects the overall status.
	SeverityInfo Severity = iota

	// SeverityWarning represents issues worth surfacing that do not make
	// the module invalid.
	SeverityWarning

	// SeverityError represents issues that make the module invalid.
	SeverityError
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// SeverityFromString parses a severity string.
//
// Description:
//
//	Parses common severity strings from different tools.
//	Unknown values default to SeverityInfo so that nothing a tool
//	emits can escalate a module's status by accident.
//
// Inputs:
//
//	s - Severity string (e.g., "error", "warning", "info")
//
// Outputs:
//
//	Severity - The parsed severity level
func SeverityFromString(s string) Severity {
	switch s {
	case "error", "err", "fatal", "critical":
		return SeverityError
	case "warning", "warn":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// MarshalJSON implements json.Marshaler for Severity.
//
// Serializes the severity as a JSON string (e.g., "error") rather than
// a number so reports and API responses stay readable.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler for Severity.
//
// Accepts both string values (e.g., "error") and numeric values
// for backward compatibility.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SeverityFromString(str)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("Severity must be string or int: %w", err)
	}
	*s = Severity(i)
	return nil
}

// =============================================================================
// STATUS
// =============================================================================

// Status is the overall outcome of one validation pass.
type Status int

const (
	// StatusNotValidated means validation was skipped by configuration.
	StatusNotValidated Status = iota

	// StatusPass means the pass produced zero issues.
	StatusPass

	// StatusWarning means issues exist but none are errors.
	StatusWarning

	// StatusFail means at least one error-severity issue exists.
	StatusFail
)

// String returns the string representation of the status.
func (st Status) String() string {
	switch st {
	case StatusNotValidated:
		return "not_validated"
	case StatusPass:
		return "pass"
	case StatusWarning:
		return "warning"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// StatusFromString parses a status string.
// Unknown values map to StatusNotValidated.
func StatusFromString(s string) Status {
	switch s {
	case "pass":
		return StatusPass
	case "warning":
		return StatusWarning
	case "fail":
		return StatusFail
	default:
		return StatusNotValidated
	}
}

// MarshalJSON implements json.Marshaler for Status.
func (st Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.String())
}

// UnmarshalJSON implements json.Unmarshaler for Status.
func (st *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*st = StatusFromString(str)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("Status must be string or int: %w", err)
	}
	*st = Status(i)
	return nil
}

// DeriveStatus computes the overall status for a set of issues.
//
// Description:
//
//	pass when there are zero issues, fail when any issue has error
//	severity, warning otherwise. StatusNotValidated is never derived
//	here; it is only produced by NewSkippedResult.
//
// Inputs:
//
//	issues - The issues from one validation pass
//
// Outputs:
//
//	Status - The derived overall status
func DeriveStatus(issues []ValidationIssue) Status {
	if len(issues) == 0 {
		return StatusPass
	}
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return StatusFail
		}
	}
	return StatusWarning
}

// =============================================================================
// VALIDATION ISSUE
// =============================================================================

// ValidationIssue is one normalized diagnostic from a validator tool.
//
// Thread Safety: Immutable after creation.
type ValidationIssue struct {
	// File is the path to the file containing the issue. Empty when the
	// tool did not attribute the diagnostic to a file.
	File string `json:"file"`

	// Line is the 1-indexed line number, or nil when the tool did not
	// report a position.
	Line *int `json:"line"`

	// Column is the 1-indexed column number, or nil when unknown.
	Column *int `json:"column"`

	// Severity is the severity level of the issue.
	Severity Severity `json:"severity"`

	// RuleOrType identifies the diagnostic: a rule code for tools that
	// have them (e.g., "BCP037") or the diagnostic summary otherwise.
	RuleOrType string `json:"rule_or_type"`

	// Message is the human-readable description. For output the parser
	// could not understand this holds the raw line verbatim.
	Message string `json:"message"`

	// CurrentCode is the offending source snippet when the tool provides
	// one. Empty otherwise.
	CurrentCode string `json:"current_code,omitempty"`

	// Tool is the name of the validator that produced this issue.
	Tool string `json:"tool,omitempty"`
}

// Location returns a formatted location string (file:line:col).
func (i *ValidationIssue) Location() string {
	if i.Line == nil {
		return i.File
	}
	if i.Column != nil {
		return i.File + ":" + strconv.Itoa(*i.Line) + ":" + strconv.Itoa(*i.Column)
	}
	return i.File + ":" + strconv.Itoa(*i.Line)
}

// intPtr is a shorthand for building nullable positions.
func intPtr(v int) *int {
	return &v
}

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// Summary holds the counts for one validation pass.
type Summary struct {
	// FileCount is the number of source files the pass covered.
	FileCount int `json:"file_count"`

	// ErrorCount is the number of error-severity issues.
	ErrorCount int `json:"error_count"`

	// WarningCount is the number of warning-severity issues.
	WarningCount int `json:"warning_count"`
}

// ValidationResult is the outcome of one validation pass over a module.
//
// A result is produced once and never mutated; each fix-loop iteration
// that re-validates produces a new result.
//
// Thread Safety: Immutable after creation.
type ValidationResult struct {
	// OverallStatus is the derived outcome of the pass.
	OverallStatus Status `json:"overall_status"`

	// Issues is the ordered list of normalized diagnostics. Order follows
	// the tool's own reporting order, with per-file passes sorted by file.
	Issues []ValidationIssue `json:"issues"`

	// Summary holds the pass counts.
	Summary Summary `json:"summary"`

	// Dialect is the IaC dialect that was validated.
	Dialect string `json:"dialect,omitempty"`

	// Tool is the validator binary that produced this result.
	Tool string `json:"tool,omitempty"`

	// ModuleDir is the module directory the pass ran against.
	ModuleDir string `json:"module_dir,omitempty"`

	// Duration is how long the pass took.
	Duration time.Duration `json:"duration,omitempty"`
}

// NewResult builds a result from a finished pass, deriving the overall
// status and summary counts from the issues.
func NewResult(dialect, tool, moduleDir string, issues []ValidationIssue, fileCount int, duration time.Duration) *ValidationResult {
	if issues == nil {
		issues = make([]ValidationIssue, 0)
	}

	summary := Summary{FileCount: fileCount}
	for _, issue := range issues {
		switch issue.Severity {
		case SeverityError:
			summary.ErrorCount++
		case SeverityWarning:
			summary.WarningCount++
		}
	}

	return &ValidationResult{
		OverallStatus: DeriveStatus(issues),
		Issues:        issues,
		Summary:       summary,
		Dialect:       dialect,
		Tool:          tool,
		ModuleDir:     moduleDir,
		Duration:      duration,
	}
}

// NewSkippedResult builds the result for a module whose validation was
// disabled by configuration. This is the only way a result carries
// StatusNotValidated.
func NewSkippedResult(dialect, moduleDir string) *ValidationResult {
	return &ValidationResult{
		OverallStatus: StatusNotValidated,
		Issues:        make([]ValidationIssue, 0),
		Dialect:       dialect,
		ModuleDir:     moduleDir,
	}
}

// HasErrors returns true if any issue has error severity.
func (r *ValidationResult) HasErrors() bool {
	return r.Summary.ErrorCount > 0
}

// IssueCount returns the total number of issues of any severity.
func (r *ValidationResult) IssueCount() int {
	return len(r.Issues)
}

// ErrorIssues returns only the error-severity issues, in order.
func (r *ValidationResult) ErrorIssues() []ValidationIssue {
	out := make([]ValidationIssue, 0, r.Summary.ErrorCount)
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			out = append(out, issue)
		}
	}
	return out
}

// =============================================================================
// TOOL CONFIG
// =============================================================================

// ToolConfig configures how to run one dialect's validator.
//
// Thread Safety: Treat as immutable after creation.
type ToolConfig struct {
	// Dialect is the IaC dialect this tool handles (e.g., "terraform").
	Dialect string

	// Command is the validator executable name (e.g., "terraform").
	Command string

	// Args are the arguments for a validation run. For per-file tools the
	// file path is appended after these.
	Args []string

	// PerFile runs the tool once per source file instead of once per
	// module directory.
	PerFile bool

	// StderrDiagnostics reads diagnostics from stderr instead of stdout.
	StderrDiagnostics bool

	// Extensions are the file suffixes this dialect owns
	// (e.g., []string{".tf", ".tf.json"}).
	Extensions []string

	// Timeout is the maximum time for one tool invocation.
	Timeout time.Duration

	// VersionArgs invoke the tool's version report during detection.
	VersionArgs []string

	// MinVersion is the lowest tool version the pipeline accepts, as
	// "major.minor.patch". Empty disables the gate.
	MinVersion string

	// Available indicates whether the tool passed detection.
	// Set by Runner.DetectTools.
	Available bool
}

// Clone returns a deep copy of the config.
func (c *ToolConfig) Clone() *ToolConfig {
	clone := &ToolConfig{
		Dialect:           c.Dialect,
		Command:           c.Command,
		Args:              make([]string, len(c.Args)),
		PerFile:           c.PerFile,
		StderrDiagnostics: c.StderrDiagnostics,
		Extensions:        make([]string, len(c.Extensions)),
		Timeout:           c.Timeout,
		VersionArgs:       make([]string, len(c.VersionArgs)),
		MinVersion:        c.MinVersion,
		Available:         c.Available,
	}
	copy(clone.Args, c.Args)
	copy(clone.Extensions, c.Extensions)
	copy(clone.VersionArgs, c.VersionArgs)
	return clone
}
