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

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for fix loop operations.
var (
	tracer = otel.Tracer("modulift.fix")
	meter  = otel.Meter("modulift.fix")
)

// Metrics for fix loop operations.
var (
	loopLatency   metric.Float64Histogram
	loopTotal     metric.Int64Counter
	iterationsRun metric.Int64Histogram
	fixesApplied  metric.Int64Counter
	fixesSkipped  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		loopLatency, err = meter.Float64Histogram(
			"pipeline_fix_loop_duration_seconds",
			metric.WithDescription("Duration of fix loop runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		loopTotal, err = meter.Int64Counter(
			"pipeline_fix_loops_total",
			metric.WithDescription("Total number of fix loop runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		iterationsRun, err = meter.Int64Histogram(
			"pipeline_fix_iterations",
			metric.WithDescription("Number of iterations per fix loop run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fixesApplied, err = meter.Int64Counter(
			"pipeline_fixes_applied_total",
			metric.WithDescription("Total number of fixes applied"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fixesSkipped, err = meter.Int64Counter(
			"pipeline_fixes_skipped_total",
			metric.WithDescription("Total number of high-confidence fixes skipped"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startLoopSpan creates a span for a fix loop run.
func startLoopSpan(ctx context.Context, moduleDir string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Controller.Run",
		trace.WithAttributes(
			attribute.String("fix.module_dir", moduleDir),
		),
	)
}

// setLoopSpanResult sets the result attributes on a fix loop span.
func setLoopSpanResult(span trace.Span, termination Termination, iterations int) {
	span.SetAttributes(
		attribute.String("fix.termination", termination.String()),
		attribute.Int("fix.iterations", iterations),
	)
}

// recordLoopMetrics records metrics for a finished fix loop run.
func recordLoopMetrics(ctx context.Context, outcome *Outcome, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("termination", outcome.Termination.String()),
	)

	loopLatency.Record(ctx, duration.Seconds(), attrs)
	loopTotal.Add(ctx, 1, attrs)
	iterationsRun.Record(ctx, int64(len(outcome.Iterations)), attrs)

	var applied, skipped int64
	for i := range outcome.Iterations {
		applied += int64(len(outcome.Iterations[i].FixesApplied))
		skipped += int64(len(outcome.Iterations[i].FixesSkipped))
	}
	if applied > 0 {
		fixesApplied.Add(ctx, applied)
	}
	if skipped > 0 {
		fixesSkipped.Add(ctx, skipped)
	}
}
