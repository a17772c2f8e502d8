// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate runs external infrastructure-as-code validators and
// normalizes their diagnostics.
//
// The package executes the established CLI checker for each IaC dialect
// (terraform validate, bicep build) as a subprocess and turns its output
// into a uniform issue list. This provides:
//
//   - Real syntax and schema checking from the vendors' own tools
//   - One Validator implementation per dialect behind a single interface
//   - Lossless diagnostics: output lines that cannot be parsed are kept
//     as info-severity issues instead of being dropped
//   - A hard distinction between "the module is invalid" and "the tool
//     itself is unusable"
//
// # Supported Dialects
//
//	| Dialect   | Tool      | Invocation               | Diagnostics |
//	|-----------|-----------|--------------------------|-------------|
//	| terraform | terraform | terraform validate -json | stdout JSON |
//	| bicep     | bicep     | bicep build --stdout     | stderr text |
//
// # Status Derivation
//
// Every validation pass produces exactly one ValidationResult:
//
//	| Condition                        | OverallStatus |
//	|----------------------------------|---------------|
//	| zero issues                      | pass          |
//	| issues, none with error severity | warning       |
//	| at least one error severity      | fail          |
//	| validation skipped by config     | not_validated |
//
// A missing tool, or a non-zero exit that produced no diagnostics, is not
// a fail: it surfaces as ErrToolUnavailable so callers can abort the whole
// run instead of trusting an unchecked module.
//
// # Usage
//
//	runner := validate.NewRunner()
//	v, err := validate.ForDialect(validate.DialectTerraform, runner)
//	if err != nil {
//	    // Unknown dialect
//	}
//	result, err := v.Validate(ctx, "/path/to/module")
//	if errors.Is(err, validate.ErrToolUnavailable) {
//	    // Abort the run; no module can be trusted
//	}
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package validate
