// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/modulift/modulift/services/pipeline/validate"
)

const (
	// maxContextChars bounds how much supporting context one prompt carries.
	maxContextChars = 6000

	// maxFileChars bounds how much of one source file the fix prompt
	// carries before it is cut down to excerpts around the issues.
	maxFileChars = 12000

	// excerptRadius is how many lines around each issue survive the cut.
	excerptRadius = 25

	contextChunkSize    = 1500
	contextChunkOverlap = 100
)

// Dialect-aware separators keep context chunks on block boundaries instead
// of mid-resource.
var (
	terraformSeparators = []string{"\n\nresource ", "\n\nmodule ", "\n\nvariable ", "\n\noutput ", "\n\n", "\n", " "}
	bicepSeparators     = []string{"\n\nresource ", "\n\nmodule ", "\n\nparam ", "\n\noutput ", "\n\n", "\n", " "}
	defaultSeparators   = []string{"\n\n", "\n", " "}
)

const generateSystemPrompt = `You are an infrastructure-as-code generator. You produce complete,
deployable modules. You reply with a single JSON object and nothing else.`

const fixSystemPrompt = `You are an infrastructure-as-code reviewer. You propose minimal,
targeted fixes for validation findings. You reply with a single JSON object and nothing else.`

// splitterForDialect returns a chunker tuned to the dialect's block syntax.
func splitterForDialect(dialect string) textsplitter.TextSplitter {
	switch dialect {
	case validate.DialectTerraform:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(contextChunkSize),
			textsplitter.WithChunkOverlap(contextChunkOverlap),
			textsplitter.WithSeparators(terraformSeparators),
		)
	case validate.DialectBicep:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(contextChunkSize),
			textsplitter.WithChunkOverlap(contextChunkOverlap),
			textsplitter.WithSeparators(bicepSeparators),
		)
	default:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(contextChunkSize),
			textsplitter.WithChunkOverlap(contextChunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		)
	}
}

// chunkContext fits supporting context into the prompt budget. Text under
// budget passes through untouched; oversized text is chunked on block
// boundaries and leading chunks are kept up to the budget.
func chunkContext(text, dialect string, budget int) string {
	if len(text) <= budget {
		return text
	}

	chunks, err := splitterForDialect(dialect).SplitText(text)
	if err != nil || len(chunks) == 0 {
		return text[:budget]
	}

	var b strings.Builder
	for _, chunk := range chunks {
		if b.Len()+len(chunk)+1 > budget {
			break
		}
		b.WriteString(chunk)
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return text[:budget]
	}
	return strings.TrimRight(b.String(), "\n")
}

// buildGeneratePrompt renders the user prompt for module generation.
func buildGeneratePrompt(spec ModuleSpec) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a %s module named %q.\n", spec.Dialect, spec.Name)
	if spec.Description != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", spec.Description)
	}
	if len(spec.Dependencies) > 0 {
		fmt.Fprintf(&b, "Depends on modules: %s\n", strings.Join(spec.Dependencies, ", "))
	}
	if len(spec.Patterns) > 0 {
		fmt.Fprintf(&b, "Apply shared patterns: %s\n", strings.Join(spec.Patterns, ", "))
	}
	if len(spec.Variables) > 0 {
		keys := make([]string, 0, len(spec.Variables))
		for k := range spec.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Variables:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s = %s\n", k, spec.Variables[k])
		}
	}
	if spec.Context != "" {
		b.WriteString("\nContext:\n")
		b.WriteString(chunkContext(spec.Context, spec.Dialect, maxContextChars))
		b.WriteByte('\n')
	}

	b.WriteString("\nRespond with a single JSON object of this exact shape:\n")
	b.WriteString(`{"files":[{"path":"main.tf","content":"..."}]}` + "\n")
	b.WriteString("Rules:\n")
	b.WriteString("- path is relative to the module directory\n")
	b.WriteString("- every file must be complete and self-contained\n")
	b.WriteString("- no prose, no markdown fences, JSON only\n")

	return b.String()
}

// buildFixPrompt renders the user prompt for a fix-suggestion round.
func buildFixPrompt(result *validate.ValidationResult, files []SourceFile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The following %s module failed validation.\n\nFindings:\n", result.Dialect)
	for _, issue := range result.Issues {
		fmt.Fprintf(&b, "- %s [%s] %s: %s\n", issue.Location(), issue.Severity, issue.RuleOrType, issue.Message)
		if issue.CurrentCode != "" {
			fmt.Fprintf(&b, "  offending code: %s\n", strings.TrimSpace(issue.CurrentCode))
		}
	}

	targets := issueLinesByFile(result.Issues)

	b.WriteString("\nFiles:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "--- %s ---\n", f.Path)
		content := f.Content
		if len(content) > maxFileChars {
			content = fileExcerpt(content, targets[f.Path], excerptRadius)
		}
		b.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	b.WriteString("Respond with a single JSON object of this exact shape:\n")
	b.WriteString(`{"fixes":[{"file":"main.tf","line":15,"currentCode":"...","suggestedCode":"...","confidence":"high","alternatives":[{"code":"...","explanation":"..."}],"references":[]}]}` + "\n")
	b.WriteString("Rules:\n")
	b.WriteString("- confidence is one of high, medium, low; use high only when certain\n")
	b.WriteString("- currentCode must be copied exactly from the file, including indentation\n")
	b.WriteString("- propose the minimal change that resolves the finding\n")
	b.WriteString("- an empty fixes list is a valid answer\n")

	return b.String()
}

// issueLinesByFile collects the 1-based issue lines per file path.
func issueLinesByFile(issues []validate.ValidationIssue) map[string][]int {
	targets := make(map[string][]int)
	for _, issue := range issues {
		if issue.File == "" || issue.Line == nil {
			continue
		}
		targets[issue.File] = append(targets[issue.File], *issue.Line)
	}
	return targets
}

// fileExcerpt cuts a file down to windows around the target lines. Elided
// runs are marked with "...". With no targets the head of the file is kept.
func fileExcerpt(content string, targets []int, radius int) string {
	lines := strings.Split(content, "\n")

	if len(targets) == 0 {
		head := 2 * radius
		if len(lines) <= head {
			return content
		}
		return strings.Join(lines[:head], "\n") + "\n..."
	}

	keep := make([]bool, len(lines))
	for _, t := range targets {
		for i := t - 1 - radius; i <= t-1+radius; i++ {
			if i >= 0 && i < len(lines) {
				keep[i] = true
			}
		}
	}

	var b strings.Builder
	skipped := false
	for i := range lines {
		if !keep[i] {
			skipped = true
			continue
		}
		if skipped {
			b.WriteString("...\n")
			skipped = false
		}
		b.WriteString(lines[i])
		b.WriteByte('\n')
	}
	if skipped {
		b.WriteString("...\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
