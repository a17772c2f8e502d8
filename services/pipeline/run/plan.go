// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package run orchestrates whole pipeline runs: it assembles the build plan
// from ordering and pattern consolidation, drives per-module generation and
// fix loops under a bounded worker pool, and folds the outcomes into a run
// report.
package run

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/modulift/modulift/services/pipeline/collab"
	"github.com/modulift/modulift/services/pipeline/graph"
	"github.com/modulift/modulift/services/pipeline/patterns"
)

// SharedModulePrefix names the shared modules built for promoted patterns.
const SharedModulePrefix = "shared_"

// ModuleKind distinguishes shared pattern modules from service modules.
type ModuleKind string

const (
	// KindShared is a shared module extracted from a promoted pattern.
	KindShared ModuleKind = "shared"

	// KindService is a service's own module.
	KindService ModuleKind = "service"
)

// Module is one buildable unit of the plan, in build order.
type Module struct {
	// Name is the module identifier; for shared modules this is
	// "shared_<pattern key>".
	Name string `json:"name"`

	// Kind says whether this is a shared or a service module.
	Kind ModuleKind `json:"kind"`

	// Tier is the deployment tier. Shared modules carry tier 0 so they
	// sort ahead of every tier-1 service that may consume them.
	Tier int `json:"tier"`

	// Spec is the generation request handed to the collaborator.
	Spec collab.ModuleSpec `json:"spec"`
}

// Plan is the complete, read-only build plan for a batch.
//
// Description:
//
//	A Plan is assembled once, synchronously, before any module-level
//	parallelism begins: ordering, tiering, cycle breaking, and pattern
//	promotion are all settled here, so the parallel phase reads the plan
//	without locks and its determinism does not depend on scheduling.
//
// Thread Safety: Immutable after Assemble returns.
type Plan struct {
	// Order lists the services in deployment order.
	Order []graph.ServiceNode `json:"order"`

	// Tiers maps service id to deployment tier.
	Tiers map[string]int `json:"tiers"`

	// Cycles reports each dependency cycle broken during ordering.
	Cycles []graph.CycleReport `json:"cycles,omitempty"`

	// Candidates holds every pattern decision, promoted or not.
	Candidates []patterns.PatternCandidate `json:"candidates"`

	// Modules is the deduplicated build list: shared modules for promoted
	// patterns first, then one module per service in deployment order.
	Modules []Module `json:"modules"`

	// Dialect is the target IaC dialect for every module in the plan.
	Dialect string `json:"dialect"`
}

// OrderIDs returns the service ids in deployment order.
func (p *Plan) OrderIDs() []string {
	ids := make([]string, len(p.Order))
	for i, node := range p.Order {
		ids[i] = node.ID
	}
	return ids
}

// Warnings returns the ordering phase's warnings for reports.
func (p *Plan) Warnings() []string {
	warnings := make([]string, 0, len(p.Cycles))
	for _, c := range p.Cycles {
		warnings = append(warnings, c.String())
	}
	return warnings
}

// ModuleNames returns the module names in build order.
func (p *Plan) ModuleNames() []string {
	names := make([]string, len(p.Modules))
	for i, m := range p.Modules {
		names[i] = m.Name
	}
	return names
}

// Assemble builds the run plan for a batch.
//
// Description:
//
//	Orders the services with the dependency graph builder, consolidates
//	pattern usage into shared-module decisions, and derives the module
//	build list. Shared modules are sorted by pattern key ahead of tier-1
//	services; services that require a promoted pattern get the shared
//	module added to their dependency list so the generation collaborator
//	can reference its outputs.
//
// Inputs:
//
//	ctx - Context for tracing
//	nodes - The service batch; ids must be unique
//	threshold - Pattern promotion threshold; < 1 uses the default
//	dialect - Target IaC dialect stamped on every module spec
//
// Outputs:
//
//	*Plan - The assembled plan
//	error - Duplicate or empty service ids, or a service id that collides
//	        with a promoted pattern's shared module name
func Assemble(ctx context.Context, nodes []graph.ServiceNode, threshold int, dialect string) (*Plan, error) {
	order, err := graph.Build(ctx, nodes)
	if err != nil {
		return nil, fmt.Errorf("ordering services: %w", err)
	}

	candidates := patterns.NewConsolidator(threshold).Consolidate(nodes)
	promoted := make(map[string]bool)
	for _, key := range patterns.PromotedKeys(candidates) {
		promoted[key] = true
	}

	// A service id that matches a promoted pattern's shared module name
	// would collapse two modules into one report entry.
	for _, node := range nodes {
		key := strings.TrimPrefix(node.ID, SharedModulePrefix)
		if key != node.ID && promoted[key] {
			return nil, fmt.Errorf("%w: service id %q collides with the shared module for pattern %q",
				ErrInvalidInput, node.ID, key)
		}
	}

	plan := &Plan{
		Order:      order.Order,
		Tiers:      order.Tiers,
		Cycles:     order.CyclesBroken,
		Candidates: candidates,
		Dialect:    dialect,
	}

	// Shared modules first; PromotedKeys preserves the candidates' key
	// order, so this block is deterministic.
	for _, key := range patterns.PromotedKeys(candidates) {
		name := SharedModulePrefix + key
		plan.Modules = append(plan.Modules, Module{
			Name: name,
			Kind: KindShared,
			Tier: 0,
			Spec: collab.ModuleSpec{
				Name:        name,
				Dialect:     dialect,
				Description: fmt.Sprintf("Shared %s module consumed by multiple services", key),
				Patterns:    []string{key},
			},
		})
	}

	for _, node := range order.Order {
		spec := collab.ModuleSpec{
			Name:         node.ID,
			Dialect:      dialect,
			Dependencies: inBatchDeps(node, order.Tiers),
		}
		for _, c := range candidates {
			if !node.Patterns[c.Key] {
				continue
			}
			if promoted[c.Key] {
				spec.Dependencies = append(spec.Dependencies, SharedModulePrefix+c.Key)
			} else {
				// Not promoted: the service implements the pattern itself.
				spec.Patterns = append(spec.Patterns, c.Key)
			}
		}

		plan.Modules = append(plan.Modules, Module{
			Name: node.ID,
			Kind: KindService,
			Tier: order.Tiers[node.ID],
			Spec: spec,
		})
	}

	return plan, nil
}

// inBatchDeps filters a node's declared dependencies down to ids present in
// the batch; everything else is externally satisfied and not buildable here.
func inBatchDeps(node graph.ServiceNode, tiers map[string]int) []string {
	var deps []string
	for _, dep := range node.DependsOn {
		if _, ok := tiers[dep]; ok {
			deps = append(deps, dep)
		}
	}
	return deps
}

// NewRunID returns a short unique id for one pipeline run.
func NewRunID() string {
	return uuid.NewString()[:12] // 48 bits of entropy
}
