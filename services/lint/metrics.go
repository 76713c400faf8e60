// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

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
	tracer = otel.Tracer("tsqllint.lint")
	meter  = otel.Meter("tsqllint.lint")
)

// Metrics for validation operations.
var (
	validateLatency metric.Float64Histogram
	validateTotal   metric.Int64Counter
	findingsFound   metric.Int64Histogram
	downloadTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		validateLatency, err = meter.Float64Histogram(
			"tsqllint_validate_duration_seconds",
			metric.WithDescription("Duration of validation operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		validateTotal, err = meter.Int64Counter(
			"tsqllint_validate_total",
			metric.WithDescription("Total number of validation operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		findingsFound, err = meter.Int64Histogram(
			"tsqllint_findings_found",
			metric.WithDescription("Number of findings per validation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		downloadTotal, err = meter.Int64Counter(
			"tsqllint_runtime_downloads_total",
			metric.WithDescription("Total number of runtime archive downloads"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startValidateSpan creates a span for a validation operation.
func startValidateSpan(ctx context.Context, fileID string, fix bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Pipeline.Validate",
		trace.WithAttributes(
			attribute.String("lint.file_id", fileID),
			attribute.Bool("lint.fix", fix),
		),
	)
}

// setValidateSpanResult sets the result attributes on a validation span.
func setValidateSpanResult(span trace.Span, findingCount int) {
	span.SetAttributes(
		attribute.Int("lint.finding_count", findingCount),
	)
}

// recordValidateMetrics records metrics for a validation operation.
func recordValidateMetrics(ctx context.Context, duration time.Duration, findingCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
	)

	validateLatency.Record(ctx, duration.Seconds(), attrs)
	validateTotal.Add(ctx, 1, attrs)

	if success {
		findingsFound.Record(ctx, int64(findingCount))
	}
}

// recordDownload records one runtime archive download attempt.
func recordDownload(ctx context.Context, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	downloadTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}
