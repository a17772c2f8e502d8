// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package run

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for run orchestration.
var (
	tracer = otel.Tracer("modulift.run")
	meter  = otel.Meter("modulift.run")
)

// Metrics for pipeline runs.
var (
	runLatency    metric.Float64Histogram
	runTotal      metric.Int64Counter
	modulesStatus metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"pipeline_run_duration_seconds",
			metric.WithDescription("Duration of whole pipeline runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"pipeline_run_total",
			metric.WithDescription("Total number of pipeline runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		modulesStatus, err = meter.Int64Counter(
			"pipeline_run_modules_total",
			metric.WithDescription("Modules processed, by final status"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRunMetrics records metrics for one finished run.
func recordRunMetrics(ctx context.Context, duration time.Duration, fatal bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("fatal", fatal))
	runLatency.Record(ctx, duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
}

// recordModuleStatus counts one module's final status.
func recordModuleStatus(ctx context.Context, status string) {
	if err := initMetrics(); err != nil {
		return
	}
	modulesStatus.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// startRunSpan creates a span for one pipeline run.
func startRunSpan(ctx context.Context, runID string, moduleCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "run.Execute",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.module_count", moduleCount),
		),
	)
}
