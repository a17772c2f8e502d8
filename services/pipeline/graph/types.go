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

import "fmt"

// ServiceNode is one infrastructure unit to be built.
//
// Description:
//
//	A ServiceNode declares the unit's identity, the ids of services it
//	depends on, and the cross-cutting patterns it requires. Nodes are
//	created once per batch by an upstream analysis step and are immutable
//	afterwards; ids must be unique within a batch.
type ServiceNode struct {
	// ID uniquely identifies the service within a batch.
	ID string `json:"id" yaml:"id"`

	// DependsOn lists ids of services this service depends on. Ids not
	// present in the batch are treated as externally satisfied (e.g. a
	// network not managed by this system).
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`

	// Patterns maps pattern key to whether this service needs it
	// (e.g. "private_endpoint": true).
	Patterns map[string]bool `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}

// Edge is a precedence relationship between two services.
type Edge struct {
	// From is the dependency service id (deploys first).
	From string `json:"from"`

	// To is the dependent service id (waits for From).
	To string `json:"to"`
}

// CycleReport describes one dependency cycle broken during ordering.
type CycleReport struct {
	// NodesInvolved lists the ids on the cycle, sorted ascending.
	NodesInvolved []string `json:"nodes_involved"`

	// EdgeDropped is the precedence edge removed to break the cycle.
	EdgeDropped Edge `json:"edge_dropped"`
}

// String returns a human-readable warning line for run reports.
func (r CycleReport) String() string {
	return fmt.Sprintf("dependency cycle %v broken: dropped edge %s -> %s",
		r.NodesInvolved, r.EdgeDropped.From, r.EdgeDropped.To)
}

// BuildOrder is the deterministic deployment plan for a batch.
//
// Thread Safety:
//
//	BuildOrder is read-only after Build returns and safe to share across
//	goroutines.
type BuildOrder struct {
	// Order lists the services in deployment order.
	Order []ServiceNode `json:"order"`

	// Tiers maps service id to its priority tier (>= 1). Every kept
	// in-batch dependency of a service sits on a strictly lower tier.
	Tiers map[string]int `json:"tiers"`

	// CyclesBroken reports each cycle that had to be broken.
	// Empty for acyclic batches.
	CyclesBroken []CycleReport `json:"cycles_broken,omitempty"`
}

// OrderIDs returns the service ids in deployment order.
func (b *BuildOrder) OrderIDs() []string {
	ids := make([]string, len(b.Order))
	for i, n := range b.Order {
		ids[i] = n.ID
	}
	return ids
}

// HasCycles reports whether any cycle was broken during ordering.
func (b *BuildOrder) HasCycles() bool {
	return len(b.CyclesBroken) > 0
}

// Warnings returns one warning line per broken cycle for reporting.
func (b *BuildOrder) Warnings() []string {
	if len(b.CyclesBroken) == 0 {
		return nil
	}
	warnings := make([]string, len(b.CyclesBroken))
	for i, r := range b.CyclesBroken {
		warnings[i] = r.String()
	}
	return warnings
}
