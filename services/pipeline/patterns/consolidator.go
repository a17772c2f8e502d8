// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns decides which cross-cutting capabilities become shared
// modules instead of per-service duplicates.
package patterns

import (
	"sort"

	"github.com/modulift/modulift/services/pipeline/graph"
)

// DefaultThreshold is the minimum number of services that must require a
// pattern before it is promoted to a shared module.
const DefaultThreshold = 2

// PatternCandidate is the promote/don't-promote decision for one pattern key.
//
// # Description
//
// A candidate is produced per distinct pattern key observed in a batch.
// Promotion is purely statistical: a pattern required by fewer services
// than the threshold stays in each service's own module, avoiding one-off
// "shared" modules with a single consumer. Rationale text and citations are
// an external collaborator's job, never computed here.
type PatternCandidate struct {
	// Key is the pattern identifier (e.g. "private_endpoint").
	Key string `json:"key"`

	// RequiredCount is the number of services requiring this pattern.
	RequiredCount int `json:"required_count"`

	// Threshold is the promotion cutoff the decision was made with.
	Threshold int `json:"threshold"`

	// Promoted is true when RequiredCount >= Threshold.
	Promoted bool `json:"promoted"`
}

// Consolidator computes shared-module decisions for a batch.
//
// # Thread Safety
//
// Consolidator is immutable after construction and safe for concurrent use.
type Consolidator struct {
	threshold int
}

// NewConsolidator creates a Consolidator with the given promotion threshold.
//
// # Inputs
//
//   - threshold: Minimum RequiredCount for promotion. Values < 1 fall back
//     to DefaultThreshold.
//
// # Example
//
//	c := patterns.NewConsolidator(patterns.DefaultThreshold)
//	candidates := c.Consolidate(nodes)
func NewConsolidator(threshold int) *Consolidator {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Consolidator{threshold: threshold}
}

// Threshold returns the promotion threshold in effect.
func (c *Consolidator) Threshold() int {
	return c.threshold
}

// Consolidate computes one PatternCandidate per distinct pattern key.
//
// # Description
//
// Every key observed in any node's pattern map yields a candidate, even
// when no service actually requires it (RequiredCount 0). Output is sorted
// by key so downstream consumers see a stable order across runs.
//
// # Inputs
//
//   - nodes: The service batch. Read-only; nil pattern maps are fine.
//
// # Outputs
//
//   - []PatternCandidate: Sorted by Key ascending. Empty for empty input.
func (c *Consolidator) Consolidate(nodes []graph.ServiceNode) []PatternCandidate {
	counts := make(map[string]int)
	for _, n := range nodes {
		for key, required := range n.Patterns {
			if _, seen := counts[key]; !seen {
				counts[key] = 0
			}
			if required {
				counts[key]++
			}
		}
	}

	candidates := make([]PatternCandidate, 0, len(counts))
	for key, count := range counts {
		candidates = append(candidates, PatternCandidate{
			Key:           key,
			RequiredCount: count,
			Threshold:     c.threshold,
			Promoted:      count >= c.threshold,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Key < candidates[j].Key
	})
	return candidates
}

// PromotedKeys returns the keys of promoted candidates, preserving order.
func PromotedKeys(candidates []PatternCandidate) []string {
	var keys []string
	for _, c := range candidates {
		if c.Promoted {
			keys = append(keys, c.Key)
		}
	}
	return keys
}
