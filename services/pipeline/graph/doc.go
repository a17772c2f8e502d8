// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph turns a batch of declared services into a deterministic,
// cycle-safe deployment order.
//
// The builder consumes ServiceNode records (id, dependency ids, pattern
// flags), derives precedence edges from the declared dependencies, and
// produces:
//   - A total deployment order (Kahn's algorithm, lexicographic tie-break)
//   - A priority tier per service (dependencies always on a lower tier)
//   - A CycleReport for every dependency cycle that had to be broken
//
// Cycles are never fatal and never silently dropped: each one is broken by
// removing a single precedence edge, chosen deterministically, and reported
// to the caller as a warning.
//
// # Thread Safety
//
// Build is a pure function of its input; the returned BuildOrder is
// read-only and safe to share across goroutines.
//
// # Example
//
//	nodes := []graph.ServiceNode{
//	    {ID: "sql_db"},
//	    {ID: "web_app", DependsOn: []string{"sql_db"}},
//	}
//	order, err := graph.Build(ctx, nodes)
//	// order.OrderIDs() == ["sql_db", "web_app"]
//	// order.Tiers == {"sql_db": 1, "web_app": 2}
package graph
