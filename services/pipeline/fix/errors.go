// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fix

import "errors"

// Sentinel errors for the fix package.
var (
	// ErrMaxIterationsExceeded indicates the loop used its full iteration
	// budget without reaching a clean validation. The module fails with its
	// iteration history intact.
	ErrMaxIterationsExceeded = errors.New("fix loop exceeded max iterations")

	// ErrNoProgress indicates the convergence guard fired: an iteration's
	// error count was no better than the previous one's.
	ErrNoProgress = errors.New("fix loop made no progress")

	// ErrFixDrift indicates a fix no longer matches the file it targets.
	// The file changed since the collaborator saw it, usually because an
	// earlier fix rewrote the same region. Drifted fixes are skipped, never
	// force-applied.
	ErrFixDrift = errors.New("fix does not match current file content")

	// ErrPatchInvalid indicates a patch could not be applied for structural
	// reasons: it does not parse, is oversized, deletes a file, or names a
	// path outside the module directory.
	ErrPatchInvalid = errors.New("invalid patch")

	// ErrInvalidInput indicates invalid input to a fix function.
	ErrInvalidInput = errors.New("invalid input")
)
