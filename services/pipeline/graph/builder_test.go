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

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// Helper to create a test node.
func node(id string, deps ...string) ServiceNode {
	return ServiceNode{ID: id, DependsOn: deps}
}

func TestBuild_EmptyBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("nil slice", func(t *testing.T) {
		order, err := Build(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order.Order) != 0 {
			t.Errorf("expected empty order, got %v", order.OrderIDs())
		}
		if order.HasCycles() {
			t.Error("expected no cycles for empty batch")
		}
	})

	t.Run("empty slice", func(t *testing.T) {
		order, err := Build(ctx, []ServiceNode{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order.Order) != 0 {
			t.Errorf("expected empty order, got %v", order.OrderIDs())
		}
	})
}

func TestBuild_SingleNode(t *testing.T) {
	order, err := Build(context.Background(), []ServiceNode{node("web_app")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order.OrderIDs(), []string{"web_app"}) {
		t.Errorf("expected [web_app], got %v", order.OrderIDs())
	}
	if order.Tiers["web_app"] != 1 {
		t.Errorf("expected tier 1, got %d", order.Tiers["web_app"])
	}
}

func TestBuild_LinearChain(t *testing.T) {
	// A <- B <- C: A deploys first, C last.
	nodes := []ServiceNode{
		node("A"),
		node("B", "A"),
		node("C", "B"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(order.OrderIDs(), []string{"A", "B", "C"}) {
		t.Errorf("expected [A B C], got %v", order.OrderIDs())
	}

	wantTiers := map[string]int{"A": 1, "B": 2, "C": 3}
	if !reflect.DeepEqual(order.Tiers, wantTiers) {
		t.Errorf("expected tiers %v, got %v", wantTiers, order.Tiers)
	}

	if len(order.CyclesBroken) != 0 {
		t.Errorf("expected no cycles, got %v", order.CyclesBroken)
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	ctx := context.Background()

	t.Run("empty id", func(t *testing.T) {
		_, err := Build(ctx, []ServiceNode{node("a"), node("")})
		if !errors.Is(err, ErrEmptyID) {
			t.Errorf("expected ErrEmptyID, got %v", err)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := Build(ctx, []ServiceNode{node("a"), node("b"), node("a")})
		if !errors.Is(err, ErrDuplicateID) {
			t.Errorf("expected ErrDuplicateID, got %v", err)
		}
		if err == nil || !strings.Contains(err.Error(), `"a"`) {
			t.Errorf("expected offending id in error, got %v", err)
		}
	})
}

func TestBuild_ExternalDependencyIgnored(t *testing.T) {
	// "vnet" is not in the batch: treated as externally satisfied.
	nodes := []ServiceNode{
		node("web_app", "vnet", "sql_db"),
		node("sql_db", "vnet"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(order.OrderIDs(), []string{"sql_db", "web_app"}) {
		t.Errorf("expected [sql_db web_app], got %v", order.OrderIDs())
	}
	if order.Tiers["sql_db"] != 1 {
		t.Errorf("expected sql_db tier 1, got %d", order.Tiers["sql_db"])
	}
	if order.Tiers["web_app"] != 2 {
		t.Errorf("expected web_app tier 2, got %d", order.Tiers["web_app"])
	}
}

func TestBuild_LexicographicTieBreak(t *testing.T) {
	// No dependencies: order is purely lexicographic regardless of input order.
	nodes := []ServiceNode{node("c"), node("a"), node("b")}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order.OrderIDs(), []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", order.OrderIDs())
	}
}

func TestBuild_DeterministicAcrossInputPermutations(t *testing.T) {
	permutations := [][]ServiceNode{
		{node("base"), node("left", "base"), node("right", "base"), node("top", "left", "right")},
		{node("top", "left", "right"), node("right", "base"), node("left", "base"), node("base")},
		{node("right", "base"), node("top", "left", "right"), node("base"), node("left", "base")},
	}

	wantOrder := []string{"base", "left", "right", "top"}
	wantTiers := map[string]int{"base": 1, "left": 2, "right": 2, "top": 3}

	for i, nodes := range permutations {
		order, err := Build(context.Background(), nodes)
		if err != nil {
			t.Fatalf("permutation %d: unexpected error: %v", i, err)
		}
		if !reflect.DeepEqual(order.OrderIDs(), wantOrder) {
			t.Errorf("permutation %d: expected %v, got %v", i, wantOrder, order.OrderIDs())
		}
		if !reflect.DeepEqual(order.Tiers, wantTiers) {
			t.Errorf("permutation %d: expected tiers %v, got %v", i, wantTiers, order.Tiers)
		}
	}
}

func TestBuild_DuplicateDependencyDeclaration(t *testing.T) {
	// The same dependency declared twice contributes a single edge.
	nodes := []ServiceNode{
		node("db"),
		node("api", "db", "db"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(order.OrderIDs(), []string{"db", "api"}) {
		t.Errorf("expected [db api], got %v", order.OrderIDs())
	}
	if order.Tiers["api"] != 2 {
		t.Errorf("expected api tier 2, got %d", order.Tiers["api"])
	}
}

func TestBuild_TwoNodeCycle(t *testing.T) {
	// X and Y depend on each other. The in-cycle edge with the greatest
	// source id (Y -> X) is dropped, leaving X -> Y.
	nodes := []ServiceNode{
		node("X", "Y"),
		node("Y", "X"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.CyclesBroken) != 1 {
		t.Fatalf("expected 1 cycle broken, got %d", len(order.CyclesBroken))
	}

	report := order.CyclesBroken[0]
	if !reflect.DeepEqual(report.NodesInvolved, []string{"X", "Y"}) {
		t.Errorf("expected nodes [X Y], got %v", report.NodesInvolved)
	}
	if report.EdgeDropped.From != "Y" || report.EdgeDropped.To != "X" {
		t.Errorf("expected edge Y->X dropped, got %s->%s",
			report.EdgeDropped.From, report.EdgeDropped.To)
	}

	if !reflect.DeepEqual(order.OrderIDs(), []string{"X", "Y"}) {
		t.Errorf("expected [X Y], got %v", order.OrderIDs())
	}
	if order.Tiers["X"] != 1 || order.Tiers["Y"] != 2 {
		t.Errorf("expected tiers X:1 Y:2, got %v", order.Tiers)
	}
}

func TestBuild_ThreeNodeCycle(t *testing.T) {
	// a -> b -> c -> a as precedence edges; the edge sourced at c is dropped.
	nodes := []ServiceNode{
		node("a", "c"),
		node("b", "a"),
		node("c", "b"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.CyclesBroken) != 1 {
		t.Fatalf("expected 1 cycle broken, got %d", len(order.CyclesBroken))
	}
	report := order.CyclesBroken[0]
	if !reflect.DeepEqual(report.NodesInvolved, []string{"a", "b", "c"}) {
		t.Errorf("expected nodes [a b c], got %v", report.NodesInvolved)
	}
	if report.EdgeDropped.From != "c" || report.EdgeDropped.To != "a" {
		t.Errorf("expected edge c->a dropped, got %s->%s",
			report.EdgeDropped.From, report.EdgeDropped.To)
	}

	if !reflect.DeepEqual(order.OrderIDs(), []string{"a", "b", "c"}) {
		t.Errorf("expected [a b c], got %v", order.OrderIDs())
	}
	wantTiers := map[string]int{"a": 1, "b": 2, "c": 3}
	if !reflect.DeepEqual(order.Tiers, wantTiers) {
		t.Errorf("expected tiers %v, got %v", wantTiers, order.Tiers)
	}
}

func TestBuild_SelfDependency(t *testing.T) {
	order, err := Build(context.Background(), []ServiceNode{node("solo", "solo")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.CyclesBroken) != 1 {
		t.Fatalf("expected 1 cycle broken, got %d", len(order.CyclesBroken))
	}
	report := order.CyclesBroken[0]
	if !reflect.DeepEqual(report.NodesInvolved, []string{"solo"}) {
		t.Errorf("expected nodes [solo], got %v", report.NodesInvolved)
	}
	if report.EdgeDropped.From != "solo" || report.EdgeDropped.To != "solo" {
		t.Errorf("expected self-edge dropped, got %s->%s",
			report.EdgeDropped.From, report.EdgeDropped.To)
	}
	if order.Tiers["solo"] != 1 {
		t.Errorf("expected tier 1, got %d", order.Tiers["solo"])
	}
}

func TestBuild_TwoIndependentCycles(t *testing.T) {
	nodes := []ServiceNode{
		node("a", "b"), node("b", "a"),
		node("c", "d"), node("d", "c"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.CyclesBroken) != 2 {
		t.Fatalf("expected 2 cycles broken, got %d", len(order.CyclesBroken))
	}
	if !reflect.DeepEqual(order.OrderIDs(), []string{"a", "b", "c", "d"}) {
		t.Errorf("expected [a b c d], got %v", order.OrderIDs())
	}

	first, second := order.CyclesBroken[0], order.CyclesBroken[1]
	if !reflect.DeepEqual(first.NodesInvolved, []string{"a", "b"}) {
		t.Errorf("expected first cycle [a b], got %v", first.NodesInvolved)
	}
	if first.EdgeDropped.From != "b" || first.EdgeDropped.To != "a" {
		t.Errorf("expected edge b->a dropped, got %s->%s",
			first.EdgeDropped.From, first.EdgeDropped.To)
	}
	if !reflect.DeepEqual(second.NodesInvolved, []string{"c", "d"}) {
		t.Errorf("expected second cycle [c d], got %v", second.NodesInvolved)
	}
	if second.EdgeDropped.From != "d" || second.EdgeDropped.To != "c" {
		t.Errorf("expected edge d->c dropped, got %s->%s",
			second.EdgeDropped.From, second.EdgeDropped.To)
	}
}

func TestBuild_CycleWithDownstreamService(t *testing.T) {
	// core and worker form a cycle; app waits behind worker. Breaking the
	// cycle must not disturb app's position after its dependency.
	nodes := []ServiceNode{
		node("core", "worker"),
		node("worker", "core"),
		node("app", "worker"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.CyclesBroken) != 1 {
		t.Fatalf("expected 1 cycle broken, got %d", len(order.CyclesBroken))
	}
	report := order.CyclesBroken[0]
	if !reflect.DeepEqual(report.NodesInvolved, []string{"core", "worker"}) {
		t.Errorf("expected nodes [core worker], got %v", report.NodesInvolved)
	}
	if report.EdgeDropped.From != "worker" || report.EdgeDropped.To != "core" {
		t.Errorf("expected edge worker->core dropped, got %s->%s",
			report.EdgeDropped.From, report.EdgeDropped.To)
	}

	if !reflect.DeepEqual(order.OrderIDs(), []string{"core", "worker", "app"}) {
		t.Errorf("expected [core worker app], got %v", order.OrderIDs())
	}
	wantTiers := map[string]int{"core": 1, "worker": 2, "app": 3}
	if !reflect.DeepEqual(order.Tiers, wantTiers) {
		t.Errorf("expected tiers %v, got %v", wantTiers, order.Tiers)
	}
}

func TestBuild_TopologicalProperty(t *testing.T) {
	// Every in-batch dependency must appear earlier in the order and sit on
	// a strictly lower tier than its dependent.
	nodes := []ServiceNode{
		node("frontend", "api", "cdn"),
		node("api", "db", "cache"),
		node("worker", "db", "queue"),
		node("db"),
		node("cache"),
		node("queue"),
		node("cdn"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order.CyclesBroken) != 0 {
		t.Fatalf("expected acyclic batch, got cycles %v", order.CyclesBroken)
	}

	position := make(map[string]int)
	for i, id := range order.OrderIDs() {
		position[id] = i
	}

	inBatch := make(map[string]bool)
	for _, n := range nodes {
		inBatch[n.ID] = true
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if !inBatch[dep] {
				continue
			}
			if position[dep] >= position[n.ID] {
				t.Errorf("dependency %s must precede %s in order %v",
					dep, n.ID, order.OrderIDs())
			}
			if order.Tiers[dep] >= order.Tiers[n.ID] {
				t.Errorf("dependency %s tier %d must be lower than %s tier %d",
					dep, order.Tiers[dep], n.ID, order.Tiers[n.ID])
			}
		}
	}
}

func TestBuild_CyclicBatchStillTotalOrder(t *testing.T) {
	// Even with cycles, every service appears exactly once in the order.
	nodes := []ServiceNode{
		node("a", "b"),
		node("b", "c"),
		node("c", "a"),
		node("d", "a"),
		node("e"),
	}

	order, err := Build(context.Background(), nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order.CyclesBroken) == 0 {
		t.Fatal("expected at least one cycle broken")
	}

	seen := make(map[string]bool)
	for _, id := range order.OrderIDs() {
		if seen[id] {
			t.Errorf("service %s appears twice in order %v", id, order.OrderIDs())
		}
		seen[id] = true
	}
	if len(seen) != len(nodes) {
		t.Errorf("expected %d services in order, got %d", len(nodes), len(seen))
	}
	for id, tier := range order.Tiers {
		if tier < 1 {
			t.Errorf("service %s has tier %d, want >= 1", id, tier)
		}
	}
}

func TestBuildOrder_Helpers(t *testing.T) {
	order := &BuildOrder{
		Order: []ServiceNode{node("a"), node("b")},
		Tiers: map[string]int{"a": 1, "b": 2},
	}

	if !reflect.DeepEqual(order.OrderIDs(), []string{"a", "b"}) {
		t.Errorf("OrderIDs() = %v, want [a b]", order.OrderIDs())
	}
	if order.HasCycles() {
		t.Error("HasCycles() = true, want false")
	}
	if order.Warnings() != nil {
		t.Errorf("Warnings() = %v, want nil", order.Warnings())
	}

	order.CyclesBroken = []CycleReport{{
		NodesInvolved: []string{"a", "b"},
		EdgeDropped:   Edge{From: "b", To: "a"},
	}}
	if !order.HasCycles() {
		t.Error("HasCycles() = false, want true")
	}
	warnings := order.Warnings()
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if !strings.Contains(warnings[0], "b -> a") {
		t.Errorf("warning should name the dropped edge: %q", warnings[0])
	}
}

func TestCycleReport_String(t *testing.T) {
	report := CycleReport{
		NodesInvolved: []string{"X", "Y"},
		EdgeDropped:   Edge{From: "Y", To: "X"},
	}

	got := report.String()
	if !strings.Contains(got, "X") || !strings.Contains(got, "Y -> X") {
		t.Errorf("unexpected report string: %q", got)
	}
}
