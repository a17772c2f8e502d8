// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import "errors"

var (
	// ErrRunNotFound indicates the run id is neither active nor stored.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotFinished indicates the run has no report yet.
	ErrRunNotFinished = errors.New("run not finished")

	// ErrRunFinished indicates a cancel arrived after the run completed.
	ErrRunFinished = errors.New("run already finished")

	// ErrInvalidInput indicates nil or unusable arguments.
	ErrInvalidInput = errors.New("invalid input")
)
