// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collab

import (
	"fmt"
	"strings"
	"testing"

	"github.com/modulift/modulift/services/pipeline/validate"
)

func linePtr(v int) *int {
	return &v
}

func TestBuildGeneratePrompt(t *testing.T) {
	t.Parallel()

	spec := ModuleSpec{
		Name:         "vnet",
		Dialect:      validate.DialectTerraform,
		Description:  "Provision the hub virtual network",
		Dependencies: []string{"resource_group", "shared_tags"},
		Patterns:     []string{"tagging", "naming"},
		Variables: map[string]string{
			"location":      "eastus2",
			"address_space": "10.0.0.0/16",
		},
		Context: "Use three subnets.",
	}

	prompt := buildGeneratePrompt(spec)

	for _, want := range []string{
		`Generate a terraform module named "vnet".`,
		"Purpose: Provision the hub virtual network",
		"Depends on modules: resource_group, shared_tags",
		"Apply shared patterns: tagging, naming",
		"Variables:\n  address_space = 10.0.0.0/16\n  location = eastus2",
		"Context:\nUse three subnets.",
		`{"files":[{"path":"main.tf","content":"..."}]}`,
		"- no prose, no markdown fences, JSON only",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q, got:\n%s", want, prompt)
		}
	}
}

func TestBuildGeneratePrompt_Minimal(t *testing.T) {
	t.Parallel()

	prompt := buildGeneratePrompt(ModuleSpec{Name: "kv", Dialect: validate.DialectBicep})

	if !strings.Contains(prompt, `Generate a bicep module named "kv".`) {
		t.Errorf("Expected header line, got:\n%s", prompt)
	}
	for _, absent := range []string{"Purpose:", "Depends on modules:", "Apply shared patterns:", "Variables:", "Context:"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("Expected minimal prompt to omit %q, got:\n%s", absent, prompt)
		}
	}
}

func TestBuildFixPrompt(t *testing.T) {
	t.Parallel()

	result := &validate.ValidationResult{
		OverallStatus: validate.StatusFail,
		Dialect:       validate.DialectTerraform,
		Tool:          "terraform",
		Issues: []validate.ValidationIssue{
			{
				File:        "main.tf",
				Line:        linePtr(5),
				Column:      linePtr(3),
				Severity:    validate.SeverityError,
				RuleOrType:  "Unsupported argument",
				Message:     `An argument named "nmae" is not expected here.`,
				CurrentCode: `  nmae = "demo"`,
			},
			{
				Severity:   validate.SeverityWarning,
				RuleOrType: "Deprecated attribute",
				Message:    "This attribute is deprecated.",
			},
		},
	}
	files := []SourceFile{
		{Path: "main.tf", Content: "resource \"azurerm_virtual_network\" \"this\" {\n  nmae = \"demo\"\n}\n"},
		{Path: "variables.tf", Content: "variable \"name\" {}\n"},
	}

	prompt := buildFixPrompt(result, files)

	for _, want := range []string{
		"The following terraform module failed validation.",
		`- main.tf:5:3 [error] Unsupported argument: An argument named "nmae" is not expected here.`,
		`  offending code: nmae = "demo"`,
		"[warning] Deprecated attribute: This attribute is deprecated.",
		"--- main.tf ---",
		"--- variables.tf ---",
		`resource "azurerm_virtual_network"`,
		"- an empty fixes list is a valid answer",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Expected prompt to contain %q, got:\n%s", want, prompt)
		}
	}

	findings := strings.Index(prompt, "Findings:")
	fileSection := strings.Index(prompt, "Files:")
	if findings == -1 || fileSection == -1 || findings > fileSection {
		t.Errorf("Expected findings before files, got findings=%d files=%d", findings, fileSection)
	}
}

func TestBuildFixPrompt_LongFileExcerpted(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for i := 1; i <= 3000; i++ {
		fmt.Fprintf(&sb, "line %04d\n", i)
	}

	result := &validate.ValidationResult{
		OverallStatus: validate.StatusFail,
		Dialect:       validate.DialectTerraform,
		Issues: []validate.ValidationIssue{
			{File: "big.tf", Line: linePtr(100), Severity: validate.SeverityError, RuleOrType: "x", Message: "y"},
		},
	}

	prompt := buildFixPrompt(result, []SourceFile{{Path: "big.tf", Content: sb.String()}})

	if !strings.Contains(prompt, "line 0100") {
		t.Error("Expected excerpt to keep the issue line")
	}
	if strings.Contains(prompt, "line 2000") {
		t.Error("Expected lines far from the issue to be elided")
	}
	if !strings.Contains(prompt, "...") {
		t.Error("Expected elision markers in excerpt")
	}
}

func TestChunkContext(t *testing.T) {
	t.Parallel()

	if got := chunkContext("short note", validate.DialectTerraform, 100); got != "short note" {
		t.Errorf("Expected passthrough under budget, got %q", got)
	}

	var sb strings.Builder
	sb.WriteString("Supporting notes about networking.")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&sb, "\n\nresource \"azurerm_subnet\" \"s%d\" {\n  name = \"subnet-%d\"\n}", i, i)
	}
	text := sb.String()

	got := chunkContext(text, validate.DialectTerraform, 500)
	if len(got) == 0 {
		t.Fatal("Expected non-empty chunked context")
	}
	if len(got) > 500 {
		t.Errorf("Expected context within budget, got %d chars", len(got))
	}
	if !strings.Contains(got, "Supporting") {
		t.Errorf("Expected leading text to survive chunking, got %q", got)
	}
}

func TestIssueLinesByFile(t *testing.T) {
	t.Parallel()

	issues := []validate.ValidationIssue{
		{File: "main.tf", Line: linePtr(5)},
		{File: "main.tf", Line: linePtr(9)},
		{File: "main.tf"},
		{Line: linePtr(3)},
	}

	targets := issueLinesByFile(issues)
	if len(targets) != 1 {
		t.Fatalf("Expected 1 file entry, got %d", len(targets))
	}
	got := targets["main.tf"]
	if len(got) != 2 || got[0] != 5 || got[1] != 9 {
		t.Errorf("Expected [5 9], got %v", got)
	}
}

func TestFileExcerpt(t *testing.T) {
	t.Parallel()

	numbered := func(n int) string {
		lines := make([]string, n)
		for i := range lines {
			lines[i] = fmt.Sprintf("l%d", i+1)
		}
		return strings.Join(lines, "\n")
	}

	t.Run("no targets short file", func(t *testing.T) {
		content := numbered(3)
		if got := fileExcerpt(content, nil, 2); got != content {
			t.Errorf("Expected identity, got %q", got)
		}
	})

	t.Run("no targets long file keeps head", func(t *testing.T) {
		got := fileExcerpt(numbered(10), nil, 2)
		want := "l1\nl2\nl3\nl4\n..."
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("window around target", func(t *testing.T) {
		got := fileExcerpt(numbered(12), []int{6}, 1)
		want := "...\nl5\nl6\nl7\n..."
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("two windows with gap", func(t *testing.T) {
		got := fileExcerpt(numbered(20), []int{3, 15}, 1)
		want := "...\nl2\nl3\nl4\n...\nl14\nl15\nl16\n..."
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("target at start has no leading marker", func(t *testing.T) {
		got := fileExcerpt(numbered(5), []int{1}, 1)
		want := "l1\nl2\n..."
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})
}
