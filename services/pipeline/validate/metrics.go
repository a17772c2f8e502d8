// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for validation operations.
var (
	tracer = otel.Tracer("modulift.validate")
	meter  = otel.Meter("modulift.validate")
)

// Metrics for validation operations.
var (
	validateLatency metric.Float64Histogram
	validateTotal   metric.Int64Counter
	issuesFound     metric.Int64Histogram
	errorsFound     metric.Int64Counter
	warningsFound   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		validateLatency, err = meter.Float64Histogram(
			"pipeline_validate_duration_seconds",
			metric.WithDescription("Duration of validation passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		validateTotal, err = meter.Int64Counter(
			"pipeline_validate_total",
			metric.WithDescription("Total number of validation passes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		issuesFound, err = meter.Int64Histogram(
			"pipeline_validate_issues_found",
			metric.WithDescription("Number of issues found per validation pass"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		errorsFound, err = meter.Int64Counter(
			"pipeline_validate_errors_found_total",
			metric.WithDescription("Total number of error-severity issues found"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		warningsFound, err = meter.Int64Counter(
			"pipeline_validate_warnings_found_total",
			metric.WithDescription("Total number of warning-severity issues found"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startValidateSpan creates a span for a validation pass.
func startValidateSpan(ctx context.Context, dialect, moduleDir string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Validator.Validate",
		trace.WithAttributes(
			attribute.String("validate.dialect", dialect),
			attribute.String("validate.module_dir", moduleDir),
		),
	)
}

// setValidateSpanResult sets the result attributes on a validation span.
func setValidateSpanResult(span trace.Span, status string, errorCount, warningCount int) {
	span.SetAttributes(
		attribute.String("validate.overall_status", status),
		attribute.Int("validate.error_count", errorCount),
		attribute.Int("validate.warning_count", warningCount),
	)
}

// recordValidateMetrics records metrics for a validation pass.
func recordValidateMetrics(ctx context.Context, dialect string, duration time.Duration, errorCount, warningCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("dialect", dialect),
		attribute.Bool("success", success),
	)

	validateLatency.Record(ctx, duration.Seconds(), attrs)
	validateTotal.Add(ctx, 1, attrs)

	if success {
		issuesFound.Record(ctx, int64(errorCount+warningCount), metric.WithAttributes(
			attribute.String("dialect", dialect),
		))
		errorsFound.Add(ctx, int64(errorCount), metric.WithAttributes(
			attribute.String("dialect", dialect),
		))
		warningsFound.Add(ctx, int64(warningCount), metric.WithAttributes(
			attribute.String("dialect", dialect),
		))
	}
}
