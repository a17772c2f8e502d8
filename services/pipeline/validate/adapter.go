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
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// VALIDATOR INTERFACE
// =============================================================================

// Validator checks one module directory with a dialect's external tool.
//
// Description:
//
//	One implementation exists per IaC dialect, chosen once at startup
//	via ForDialect. Implementations never inspect file contents
//	themselves; they shell out to the dialect's own checker and
//	normalize its diagnostics.
//
// Thread Safety: Implementations are safe for concurrent use.
type Validator interface {
	// Dialect returns the IaC dialect this validator handles.
	Dialect() string

	// Tool returns the external binary this validator invokes.
	Tool() string

	// Validate runs the tool against a module directory and returns the
	// normalized result. A returned error wrapping ErrToolUnavailable or
	// ErrToolTimeout means the pass produced no trustworthy result; an
	// invalid module is not an error, it is OverallStatus fail.
	Validate(ctx context.Context, moduleDir string) (*ValidationResult, error)
}

// ForDialect returns the validator implementation for a dialect.
//
// Description:
//
//	Selects the adapter once at startup by configuration. Passing a nil
//	runner creates one with default configs and policies; passing a
//	shared runner lets all adapters reuse a single detection cache.
//
// Inputs:
//
//	dialect - The dialect identifier ("terraform", "bicep")
//	runner - Shared subprocess runner, or nil for a default one
//
// Outputs:
//
//	Validator - The dialect's adapter
//	error - ErrUnsupportedDialect for unknown dialects
func ForDialect(dialect string, runner *Runner) (Validator, error) {
	if runner == nil {
		runner = NewRunner()
	}

	switch dialect {
	case DialectTerraform:
		return NewTerraformValidator(runner), nil
	case DialectBicep:
		return NewBicepValidator(runner), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDialect, dialect)
	}
}

// =============================================================================
// MODULE FILE DISCOVERY
// =============================================================================

// collectFiles returns the module's source files matching the dialect's
// suffixes, sorted for deterministic per-file tool runs.
//
// Hidden directories and terraform's own .terraform cache are skipped.
func collectFiles(moduleDir string, extensions []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(moduleDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			name := d.Name()
			if path != moduleDir && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}

		lower := strings.ToLower(d.Name())
		for _, ext := range extensions {
			if strings.HasSuffix(lower, ext) {
				files = append(files, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking module dir: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// relativize rewrites issue file paths to be relative to the module
// directory when they point inside it. Best effort; paths outside the
// module or already relative are left alone.
func relativize(issues []ValidationIssue, moduleDir string) {
	for i := range issues {
		if issues[i].File == "" || !filepath.IsAbs(issues[i].File) {
			continue
		}
		rel, err := filepath.Rel(moduleDir, issues[i].File)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		issues[i].File = rel
	}
}
