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
	"fmt"
	"sort"
	"time"
)

// Build computes the deployment order for a batch of services.
//
// Description:
//
//	Derives precedence edges from each node's declared dependencies
//	(dependency deploys before dependent), then runs Kahn's algorithm.
//	Among services ready at the same step, the lexicographically smallest
//	id is placed first, so identical input always yields identical output
//	regardless of map iteration order. Dependencies referencing ids not in
//	the batch are ignored as externally satisfied.
//
//	Cycles are not fatal. When no service is ready but services remain, a
//	cycle is located deterministically and broken by dropping the in-cycle
//	precedence edge whose source id is lexicographically greatest; the
//	break is recorded as a CycleReport and ordering continues. Tiers are
//	computed over the kept edges: tier = 1 + max tier of remaining
//	in-batch dependencies, 1 when there are none.
//
// Inputs:
//
//	ctx - Context used for tracing only; Build does not block.
//	nodes - The service batch. Ids must be unique and non-empty.
//
// Outputs:
//
//	*BuildOrder - Deployment order, tiers, and any cycles broken.
//	error - Non-nil only for invalid input (empty or duplicate ids).
func Build(ctx context.Context, nodes []ServiceNode) (*BuildOrder, error) {
	ctx, span := startBuildSpan(ctx, len(nodes))
	defer span.End()
	start := time.Now()

	st, err := newBuildState(nodes)
	if err != nil {
		recordBuildMetrics(ctx, time.Since(start), len(nodes), 0, false)
		return nil, err
	}

	st.sortReadySet()
	for len(st.order) < len(st.ids) {
		if len(st.ready) == 0 {
			st.breakCycle()
			continue
		}
		st.place(st.popReady())
	}

	out := st.finish()

	setBuildSpanResult(span, len(out.Order), st.edgeCount, len(out.CyclesBroken))
	recordBuildMetrics(ctx, time.Since(start), len(nodes), len(out.CyclesBroken), true)
	return out, nil
}

// buildState holds the working graph for a single Build call.
type buildState struct {
	byID  map[string]ServiceNode
	ids   []string // sorted ascending
	succ  map[string]map[string]bool // From -> set of To
	preds map[string]map[string]bool // To -> set of From

	indeg  map[string]int // unplaced, undropped predecessors per id
	ready  []string       // zero in-degree ids, kept sorted ascending
	order  []string
	placed map[string]bool
	cycles []CycleReport

	edgeCount int
}

// newBuildState validates the batch and derives the precedence edges.
func newBuildState(nodes []ServiceNode) (*buildState, error) {
	st := &buildState{
		byID:   make(map[string]ServiceNode, len(nodes)),
		ids:    make([]string, 0, len(nodes)),
		succ:   make(map[string]map[string]bool, len(nodes)),
		preds:  make(map[string]map[string]bool, len(nodes)),
		indeg:  make(map[string]int, len(nodes)),
		placed: make(map[string]bool, len(nodes)),
		order:  make([]string, 0, len(nodes)),
	}

	for i, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node[%d]: %w", i, ErrEmptyID)
		}
		if _, exists := st.byID[n.ID]; exists {
			return nil, fmt.Errorf("node %q: %w", n.ID, ErrDuplicateID)
		}
		st.byID[n.ID] = n
		st.ids = append(st.ids, n.ID)
		st.succ[n.ID] = make(map[string]bool)
		st.preds[n.ID] = make(map[string]bool)
	}
	sort.Strings(st.ids)

	// Precedence edge dep -> dependent for every in-batch dependency.
	// The set maps dedupe repeated declarations of the same dependency.
	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, inBatch := st.byID[dep]; !inBatch {
				continue // externally satisfied
			}
			if st.succ[dep][n.ID] {
				continue
			}
			st.succ[dep][n.ID] = true
			st.preds[n.ID][dep] = true
			st.edgeCount++
		}
	}

	for _, id := range st.ids {
		st.indeg[id] = len(st.preds[id])
	}
	return st, nil
}

// sortReadySet seeds the ready set with all zero in-degree ids, ascending.
func (st *buildState) sortReadySet() {
	for _, id := range st.ids {
		if st.indeg[id] == 0 {
			st.ready = append(st.ready, id)
		}
	}
	// st.ids is sorted, so st.ready already is too.
}

// popReady removes and returns the smallest ready id.
func (st *buildState) popReady() string {
	id := st.ready[0]
	st.ready = st.ready[1:]
	return id
}

// insertReady adds id to the ready set, keeping it sorted ascending.
func (st *buildState) insertReady(id string) {
	i := sort.SearchStrings(st.ready, id)
	st.ready = append(st.ready, "")
	copy(st.ready[i+1:], st.ready[i:])
	st.ready[i] = id
}

// place appends id to the order and releases its dependents.
func (st *buildState) place(id string) {
	st.order = append(st.order, id)
	st.placed[id] = true
	for to := range st.succ[id] {
		st.indeg[to]--
		if st.indeg[to] == 0 {
			st.insertReady(to)
		}
	}
}

// breakCycle locates one cycle among the unplaced services and drops a
// single precedence edge to break it.
//
// Every unplaced service still has at least one unplaced predecessor
// (otherwise it would be ready), so walking predecessors from any unplaced
// service must revisit a node; the revisited segment is a simple cycle.
// The walk starts at the smallest unplaced id and always follows the
// smallest unplaced predecessor, making the located cycle, and therefore
// the dropped edge, deterministic. The dropped edge is the one whose
// source id is greatest among the cycle's edges.
func (st *buildState) breakCycle() {
	start := st.smallestUnplaced()

	path := []string{start}
	seen := map[string]int{start: 0}
	cycle := []string(nil)
	for {
		pred := st.smallestUnplacedPred(path[len(path)-1])
		if at, ok := seen[pred]; ok {
			cycle = path[at:]
			break
		}
		seen[pred] = len(path)
		path = append(path, pred)
	}

	// path[i+1] is a predecessor of path[i], so the cycle's edges run
	// against the walk: (cycle[t+1] -> cycle[t]) plus the closing edge
	// (cycle[0] -> cycle[last]).
	dropped := Edge{From: cycle[0], To: cycle[len(cycle)-1]}
	for t := 0; t+1 < len(cycle); t++ {
		if cycle[t+1] > dropped.From {
			dropped = Edge{From: cycle[t+1], To: cycle[t]}
		}
	}

	delete(st.succ[dropped.From], dropped.To)
	delete(st.preds[dropped.To], dropped.From)
	st.edgeCount--
	st.indeg[dropped.To]--
	if st.indeg[dropped.To] == 0 {
		st.insertReady(dropped.To)
	}

	involved := make([]string, len(cycle))
	copy(involved, cycle)
	sort.Strings(involved)
	st.cycles = append(st.cycles, CycleReport{
		NodesInvolved: involved,
		EdgeDropped:   dropped,
	})
}

// smallestUnplaced returns the lexicographically smallest unplaced id.
func (st *buildState) smallestUnplaced() string {
	for _, id := range st.ids {
		if !st.placed[id] {
			return id
		}
	}
	return "" // unreachable: only called while services remain
}

// smallestUnplacedPred returns the smallest unplaced predecessor of id.
func (st *buildState) smallestUnplacedPred(id string) string {
	best := ""
	for p := range st.preds[id] {
		if st.placed[p] {
			continue
		}
		if best == "" || p < best {
			best = p
		}
	}
	return best
}

// finish computes tiers over the kept edges and assembles the BuildOrder.
func (st *buildState) finish() *BuildOrder {
	out := &BuildOrder{
		Order:        make([]ServiceNode, len(st.order)),
		Tiers:        make(map[string]int, len(st.order)),
		CyclesBroken: st.cycles,
	}

	// The order is topological with respect to the kept edges, so every
	// remaining predecessor's tier is already known.
	for i, id := range st.order {
		out.Order[i] = st.byID[id]
		tier := 1
		for p := range st.preds[id] {
			if out.Tiers[p]+1 > tier {
				tier = out.Tiers[p] + 1
			}
		}
		out.Tiers[id] = tier
	}
	return out
}
