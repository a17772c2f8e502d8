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
	"bufio"
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// TERRAFORM PARSER
// =============================================================================

// tfValidateOutput represents the JSON output from terraform validate -json.
type tfValidateOutput struct {
	FormatVersion string         `json:"format_version"`
	Valid         bool           `json:"valid"`
	ErrorCount    int            `json:"error_count"`
	WarningCount  int            `json:"warning_count"`
	Diagnostics   []tfDiagnostic `json:"diagnostics"`
}

type tfDiagnostic struct {
	Severity string     `json:"severity"`
	Summary  string     `json:"summary"`
	Detail   string     `json:"detail"`
	Range    *tfRange   `json:"range,omitempty"`
	Snippet  *tfSnippet `json:"snippet,omitempty"`
}

type tfRange struct {
	Filename string `json:"filename"`
	Start    tfPos  `json:"start"`
	End      tfPos  `json:"end"`
}

type tfPos struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Byte   int `json:"byte"`
}

type tfSnippet struct {
	Context   string `json:"context"`
	Code      string `json:"code"`
	StartLine int    `json:"start_line"`
}

// parseTerraformOutput parses JSON output from terraform validate -json.
//
// Description:
//
//	terraform validate -json produces a JSON object with a "diagnostics"
//	array. Each diagnostic carries severity, summary, detail, and an
//	optional source range and snippet. Output that is not valid JSON is
//	retained as info-severity issues line by line instead of failing.
//
// Inputs:
//
//	data - Raw stdout from terraform validate -json
//
// Outputs:
//
//	[]ValidationIssue - Normalized issues
//	error - Always nil; kept for ParserFunc compatibility
func parseTerraformOutput(data []byte) ([]ValidationIssue, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var output tfValidateOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return rawLineIssues(data, DialectTerraform), nil
	}

	if len(output.Diagnostics) == 0 {
		return nil, nil
	}

	issues := make([]ValidationIssue, 0, len(output.Diagnostics))
	for _, d := range output.Diagnostics {
		issue := ValidationIssue{
			Severity:   SeverityFromString(d.Severity),
			RuleOrType: d.Summary,
			Message:    d.Detail,
			Tool:       DialectTerraform,
		}
		if issue.Message == "" {
			issue.Message = d.Summary
		}
		if d.Range != nil {
			issue.File = d.Range.Filename
			issue.Line = intPtr(d.Range.Start.Line)
			issue.Column = intPtr(d.Range.Start.Column)
		}
		if d.Snippet != nil {
			issue.CurrentCode = d.Snippet.Code
		}

		issues = append(issues, issue)
	}

	return issues, nil
}

// =============================================================================
// BICEP PARSER
// =============================================================================

// bicepDiagRe matches one bicep diagnostic line, e.g.:
//
//	/work/main.bicep(4,7) : Error BCP018: Expected the "=" character at this location.
//	/work/main.bicep(2,7) : Warning no-unused-params: Parameter "sku" is declared but never used.
var bicepDiagRe = regexp.MustCompile(`^(.+)\((\d+),(\d+)\)\s*:\s*(Error|Warning|Info)\s+([A-Za-z0-9_-]+):\s*(.*)$`)

// parseBicepOutput parses text diagnostics from bicep build.
//
// Description:
//
//	bicep build writes diagnostics to stderr, one per line, in the form
//	"path(line,col) : Level CODE: message". Lines that do not match the
//	format are retained verbatim as info-severity issues so no tool
//	output is ever silently lost.
//
// Inputs:
//
//	data - Raw stderr from bicep build
//
// Outputs:
//
//	[]ValidationIssue - Normalized issues
//	error - Always nil; kept for ParserFunc compatibility
func parseBicepOutput(data []byte) ([]ValidationIssue, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var issues []ValidationIssue
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		m := bicepDiagRe.FindStringSubmatch(line)
		if m == nil {
			issues = append(issues, rawLineIssue(line, DialectBicep))
			continue
		}

		lineNo, _ := strconv.Atoi(m[2])
		colNo, _ := strconv.Atoi(m[3])
		issues = append(issues, ValidationIssue{
			File:       m[1],
			Line:       intPtr(lineNo),
			Column:     intPtr(colNo),
			Severity:   SeverityFromString(strings.ToLower(m[4])),
			RuleOrType: m[5],
			Message:    m[6],
			Tool:       DialectBicep,
		})
	}

	return issues, nil
}

// =============================================================================
// RAW FALLBACK
// =============================================================================

// RuleRawOutput is the RuleOrType assigned to tool output the parser
// could not understand.
const RuleRawOutput = "raw-output"

// rawLineIssue wraps one unrecognized output line as an info issue.
func rawLineIssue(line, tool string) ValidationIssue {
	return ValidationIssue{
		Severity:   SeverityInfo,
		RuleOrType: RuleRawOutput,
		Message:    line,
		Tool:       tool,
	}
}

// rawLineIssues retains every non-blank line of unrecognized output as an
// info-severity issue.
func rawLineIssues(data []byte, tool string) []ValidationIssue {
	var issues []ValidationIssue
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		issues = append(issues, rawLineIssue(line, tool))
	}
	return issues
}

// =============================================================================
// PARSER REGISTRY
// =============================================================================

// ParserFunc is a function that parses validator output into issues.
type ParserFunc func(data []byte) ([]ValidationIssue, error)

// parserRegistry maps dialect names to parser functions.
var parserRegistry = map[string]ParserFunc{
	DialectTerraform: parseTerraformOutput,
	DialectBicep:     parseBicepOutput,
}

// GetParser returns the parser function for a dialect.
//
// Description:
//
//	Returns the registered parser for the given dialect, or nil if
//	no parser is registered.
//
// Inputs:
//
//	dialect - The dialect identifier
//
// Outputs:
//
//	ParserFunc - The parser function, or nil if not found
func GetParser(dialect string) ParserFunc {
	return parserRegistry[dialect]
}

// RegisterParser adds or replaces a parser for a dialect.
//
// Description:
//
//	Allows custom parsers to be registered for additional tools
//	or to override default behavior.
//
// Inputs:
//
//	dialect - The dialect identifier
//	parser - The parser function
func RegisterParser(dialect string, parser ParserFunc) {
	parserRegistry[dialect] = parser
}
