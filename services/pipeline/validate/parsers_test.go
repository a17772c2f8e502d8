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
	"testing"
)

func TestParseTerraformOutput(t *testing.T) {
	t.Run("diagnostics with range and snippet", func(t *testing.T) {
		// Real terraform validate -json output format
		output := []byte(`{
			"format_version": "1.0",
			"valid": false,
			"error_count": 1,
			"warning_count": 1,
			"diagnostics": [
				{
					"severity": "error",
					"summary": "Unsupported argument",
					"detail": "An argument named \"nmae\" is not expected here.",
					"range": {
						"filename": "main.tf",
						"start": {"line": 15, "column": 3, "byte": 200},
						"end": {"line": 15, "column": 7, "byte": 204}
					},
					"snippet": {
						"context": "resource \"azurerm_storage_account\" \"sa\"",
						"code": "  nmae = \"example\"",
						"start_line": 15
					}
				},
				{
					"severity": "warning",
					"summary": "Deprecated attribute",
					"detail": "Use account_tier instead.",
					"range": {
						"filename": "storage.tf",
						"start": {"line": 9, "column": 1, "byte": 88},
						"end": {"line": 9, "column": 12, "byte": 99}
					}
				}
			]
		}`)

		issues, err := parseTerraformOutput(output)
		if err != nil {
			t.Fatalf("parseTerraformOutput: %v", err)
		}

		if len(issues) != 2 {
			t.Fatalf("Expected 2 issues, got %d", len(issues))
		}

		first := issues[0]
		if first.Severity != SeverityError {
			t.Errorf("Issue 0 Severity = %v, want error", first.Severity)
		}
		if first.RuleOrType != "Unsupported argument" {
			t.Errorf("Issue 0 RuleOrType = %q, want Unsupported argument", first.RuleOrType)
		}
		if first.File != "main.tf" {
			t.Errorf("Issue 0 File = %q, want main.tf", first.File)
		}
		if first.Line == nil || *first.Line != 15 {
			t.Errorf("Issue 0 Line = %v, want 15", first.Line)
		}
		if first.Column == nil || *first.Column != 3 {
			t.Errorf("Issue 0 Column = %v, want 3", first.Column)
		}
		if first.CurrentCode != `  nmae = "example"` {
			t.Errorf("Issue 0 CurrentCode = %q", first.CurrentCode)
		}

		if issues[1].Severity != SeverityWarning {
			t.Errorf("Issue 1 Severity = %v, want warning", issues[1].Severity)
		}
		if issues[1].CurrentCode != "" {
			t.Errorf("Issue 1 CurrentCode = %q, want empty", issues[1].CurrentCode)
		}
	})

	t.Run("diagnostic without range has nil position", func(t *testing.T) {
		output := []byte(`{
			"format_version": "1.0",
			"valid": false,
			"error_count": 1,
			"warning_count": 0,
			"diagnostics": [
				{
					"severity": "error",
					"summary": "Missing required provider",
					"detail": ""
				}
			]
		}`)

		issues, err := parseTerraformOutput(output)
		if err != nil {
			t.Fatalf("parseTerraformOutput: %v", err)
		}

		if len(issues) != 1 {
			t.Fatalf("Expected 1 issue, got %d", len(issues))
		}
		if issues[0].Line != nil || issues[0].Column != nil {
			t.Errorf("Expected nil position, got line=%v column=%v", issues[0].Line, issues[0].Column)
		}
		if issues[0].File != "" {
			t.Errorf("File = %q, want empty", issues[0].File)
		}
		// Empty detail falls back to the summary
		if issues[0].Message != "Missing required provider" {
			t.Errorf("Message = %q, want summary fallback", issues[0].Message)
		}
	})

	t.Run("valid module yields no issues", func(t *testing.T) {
		output := []byte(`{"format_version":"1.0","valid":true,"error_count":0,"warning_count":0,"diagnostics":[]}`)
		issues, err := parseTerraformOutput(output)
		if err != nil {
			t.Fatalf("parseTerraformOutput: %v", err)
		}
		if len(issues) != 0 {
			t.Errorf("Expected 0 issues, got %d", len(issues))
		}
	})

	t.Run("empty output yields no issues", func(t *testing.T) {
		issues, err := parseTerraformOutput([]byte("  \n "))
		if err != nil {
			t.Fatalf("parseTerraformOutput: %v", err)
		}
		if len(issues) != 0 {
			t.Errorf("Expected 0 issues, got %d", len(issues))
		}
	})

	t.Run("non-JSON output is retained as info issues", func(t *testing.T) {
		output := []byte("Terraform initialized in an empty directory!\n\nThe directory has no Terraform configuration files.\n")

		issues, err := parseTerraformOutput(output)
		if err != nil {
			t.Fatalf("parseTerraformOutput: %v", err)
		}

		if len(issues) != 2 {
			t.Fatalf("Expected 2 retained lines, got %d", len(issues))
		}
		for i, issue := range issues {
			if issue.Severity != SeverityInfo {
				t.Errorf("Issue %d Severity = %v, want info", i, issue.Severity)
			}
			if issue.RuleOrType != RuleRawOutput {
				t.Errorf("Issue %d RuleOrType = %q, want %q", i, issue.RuleOrType, RuleRawOutput)
			}
		}
		if issues[0].Message != "Terraform initialized in an empty directory!" {
			t.Errorf("Issue 0 Message = %q, want raw line", issues[0].Message)
		}
	})
}

func TestParseBicepOutput(t *testing.T) {
	t.Run("error warning and info lines", func(t *testing.T) {
		output := []byte(`/work/main.bicep(4,7) : Error BCP018: Expected the "=" character at this location.
/work/main.bicep(2,7) : Warning no-unused-params: Parameter "sku" is declared but never used. [https://aka.ms/bicep/linter/no-unused-params]
/work/main.bicep(10,1) : Info use-recent-api-versions: Use more recent API version for resource.
`)

		issues, err := parseBicepOutput(output)
		if err != nil {
			t.Fatalf("parseBicepOutput: %v", err)
		}

		if len(issues) != 3 {
			t.Fatalf("Expected 3 issues, got %d", len(issues))
		}

		first := issues[0]
		if first.Severity != SeverityError {
			t.Errorf("Issue 0 Severity = %v, want error", first.Severity)
		}
		if first.RuleOrType != "BCP018" {
			t.Errorf("Issue 0 RuleOrType = %q, want BCP018", first.RuleOrType)
		}
		if first.File != "/work/main.bicep" {
			t.Errorf("Issue 0 File = %q", first.File)
		}
		if first.Line == nil || *first.Line != 4 {
			t.Errorf("Issue 0 Line = %v, want 4", first.Line)
		}
		if first.Column == nil || *first.Column != 7 {
			t.Errorf("Issue 0 Column = %v, want 7", first.Column)
		}
		if first.Message != `Expected the "=" character at this location.` {
			t.Errorf("Issue 0 Message = %q", first.Message)
		}

		if issues[1].Severity != SeverityWarning || issues[1].RuleOrType != "no-unused-params" {
			t.Errorf("Issue 1 = %v %q, want warning no-unused-params", issues[1].Severity, issues[1].RuleOrType)
		}
		if issues[2].Severity != SeverityInfo {
			t.Errorf("Issue 2 Severity = %v, want info", issues[2].Severity)
		}
	})

	t.Run("unmatched lines are retained as info", func(t *testing.T) {
		output := []byte(`WARNING: The configuration file was loaded from defaults.
/work/main.bicep(4,7) : Error BCP018: Expected the "=" character at this location.

some stray tool banner
`)

		issues, err := parseBicepOutput(output)
		if err != nil {
			t.Fatalf("parseBicepOutput: %v", err)
		}

		// Blank line dropped, two unmatched lines retained around the real issue
		if len(issues) != 3 {
			t.Fatalf("Expected 3 issues, got %d", len(issues))
		}

		if issues[0].RuleOrType != RuleRawOutput || issues[0].Severity != SeverityInfo {
			t.Errorf("Issue 0 = %q/%v, want retained raw info", issues[0].RuleOrType, issues[0].Severity)
		}
		if issues[0].Message != "WARNING: The configuration file was loaded from defaults." {
			t.Errorf("Issue 0 Message = %q, want raw line", issues[0].Message)
		}
		if issues[0].Line != nil {
			t.Errorf("Issue 0 Line = %v, want nil", issues[0].Line)
		}
		if issues[1].RuleOrType != "BCP018" {
			t.Errorf("Issue 1 RuleOrType = %q, want BCP018", issues[1].RuleOrType)
		}
		if issues[2].Message != "some stray tool banner" {
			t.Errorf("Issue 2 Message = %q", issues[2].Message)
		}
	})

	t.Run("windows line endings", func(t *testing.T) {
		output := []byte("C:\\work\\main.bicep(4,7) : Error BCP018: Expected here.\r\n")

		issues, err := parseBicepOutput(output)
		if err != nil {
			t.Fatalf("parseBicepOutput: %v", err)
		}
		if len(issues) != 1 {
			t.Fatalf("Expected 1 issue, got %d", len(issues))
		}
		if issues[0].RuleOrType != "BCP018" {
			t.Errorf("RuleOrType = %q, want BCP018", issues[0].RuleOrType)
		}
		if issues[0].Message != "Expected here." {
			t.Errorf("Message = %q, trailing CR should be stripped", issues[0].Message)
		}
	})

	t.Run("empty output yields no issues", func(t *testing.T) {
		issues, err := parseBicepOutput(nil)
		if err != nil {
			t.Fatalf("parseBicepOutput: %v", err)
		}
		if len(issues) != 0 {
			t.Errorf("Expected 0 issues, got %d", len(issues))
		}
	})
}

// =============================================================================
// PARSER REGISTRY TESTS
// =============================================================================

func TestGetParser(t *testing.T) {
	tests := []struct {
		dialect string
		wantNil bool
	}{
		{DialectTerraform, false},
		{DialectBicep, false},
		{"unknown", true},
	}

	for _, tt := range tests {
		parser := GetParser(tt.dialect)
		isNil := parser == nil
		if isNil != tt.wantNil {
			t.Errorf("GetParser(%q) nil = %v, want %v", tt.dialect, isNil, tt.wantNil)
		}
	}
}

func TestRegisterParser(t *testing.T) {
	customParser := func(data []byte) ([]ValidationIssue, error) {
		return []ValidationIssue{{RuleOrType: "custom"}}, nil
	}

	RegisterParser("customdialect", customParser)

	parser := GetParser("customdialect")
	if parser == nil {
		t.Fatal("Expected custom parser to be registered")
	}

	issues, err := parser([]byte{})
	if err != nil {
		t.Fatalf("Parser error: %v", err)
	}

	if len(issues) != 1 || issues[0].RuleOrType != "custom" {
		t.Error("Custom parser not working as expected")
	}

	// Clean up
	delete(parserRegistry, "customdialect")
}
