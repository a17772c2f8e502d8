// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import "errors"

// Sentinel errors for the graph package.
var (
	// ErrEmptyID is returned when a service node has an empty id.
	ErrEmptyID = errors.New("service id must not be empty")

	// ErrDuplicateID is returned when two nodes in a batch share an id.
	ErrDuplicateID = errors.New("duplicate service id in batch")
)
