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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for ordering operations.
var (
	tracer = otel.Tracer("modulift.graph")
	meter  = otel.Meter("modulift.graph")
)

// Metrics for deployment-order builds.
var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter
	cyclesBroken metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"pipeline_graph_build_duration_seconds",
			metric.WithDescription("Duration of deployment-order builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"pipeline_graph_build_total",
			metric.WithDescription("Total number of deployment-order builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cyclesBroken, err = meter.Int64Histogram(
			"pipeline_graph_cycles_broken",
			metric.WithDescription("Number of dependency cycles broken per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for one build call.
func recordBuildMetrics(ctx context.Context, duration time.Duration, nodeCount, cycleCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))

	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		cyclesBroken.Record(ctx, int64(cycleCount))
	}
}

// startBuildSpan creates a span for a build call.
func startBuildSpan(ctx context.Context, nodeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.Build",
		trace.WithAttributes(
			attribute.Int("graph.node_count", nodeCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, orderedCount, edgeCount, cycleCount int) {
	span.SetAttributes(
		attribute.Int("graph.ordered_count", orderedCount),
		attribute.Int("graph.edge_count", edgeCount),
		attribute.Int("graph.cycles_broken", cycleCount),
	)
}
