// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cacheevent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsBus records events as OpenTelemetry instruments:
//
//	buildcache.decompression.started        counter
//	buildcache.decompression.finished       counter, outcome=ok|error
//	buildcache.decompression.compressed     histogram of bytes
//	buildcache.decompression.uncompressed   histogram of bytes
//	buildcache.decompression.duration_ms    histogram
type MetricsBus struct {
	started      metric.Int64Counter
	finished     metric.Int64Counter
	compressed   metric.Int64Histogram
	uncompressed metric.Int64Histogram
	duration     metric.Float64Histogram
}

// NewMetricsBus creates the instruments on meter.
func NewMetricsBus(meter metric.Meter) (*MetricsBus, error) {
	started, err := meter.Int64Counter(
		"buildcache.decompression.started",
		metric.WithDescription("Artifact extractions begun"),
		metric.WithUnit("{extraction}"),
	)
	if err != nil {
		return nil, err
	}
	finished, err := meter.Int64Counter(
		"buildcache.decompression.finished",
		metric.WithDescription("Artifact extractions ended, by outcome"),
		metric.WithUnit("{extraction}"),
	)
	if err != nil {
		return nil, err
	}
	compressed, err := meter.Int64Histogram(
		"buildcache.decompression.compressed",
		metric.WithDescription("Size of fetched archives"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	uncompressed, err := meter.Int64Histogram(
		"buildcache.decompression.uncompressed",
		metric.WithDescription("Size of the outputs restored from archives"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"buildcache.decompression.duration_ms",
		metric.WithDescription("Time from extraction start to finish"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsBus{
		started:      started,
		finished:     finished,
		compressed:   compressed,
		uncompressed: uncompressed,
		duration:     duration,
	}, nil
}

func (b *MetricsBus) Post(ctx context.Context, event Event) {
	switch event := event.(type) {
	case DecompressionStarted:
		b.started.Add(ctx, 1)
	case DecompressionFinished:
		outcome := "ok"
		if event.Err != "" {
			outcome = "error"
		}
		b.finished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		b.duration.Record(ctx, float64(event.Duration.Microseconds())/1000)
		if event.Err == "" {
			b.compressed.Record(ctx, event.CompressedSize)
			b.uncompressed.Record(ctx, event.UncompressedSize)
		}
	}
}
