// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cacheevent

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bureau-foundation/buildcache/lib/clock"
)

func TestFinishedPairsWithStarted(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	started := Started("//app", nil, fake.Now())
	finished := started.Finished(fake.Advance(1500*time.Millisecond), 100, 40, nil)

	if finished.EventID() != started.EventID() {
		t.Error("Finished has a different ID than Started")
	}
	if finished.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", finished.Duration)
	}
	if finished.Err != "" {
		t.Errorf("Err = %q on success", finished.Err)
	}
	failed := started.Finished(fake.Now(), 0, 40, errors.New("disk full"))
	if failed.Err != "disk full" {
		t.Errorf("Err = %q, want disk full", failed.Err)
	}

	other := Started("//app", nil, fake.Now())
	if other.ID == started.ID {
		t.Error("two Started events share an ID")
	}
}

func TestFanoutAndRecorder(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	bus := Fanout{first, Discard{}, second}

	started := Started("//x", nil, time.Unix(0, 0))
	bus.Post(context.Background(), started)
	bus.Post(context.Background(), started.Finished(time.Unix(1, 0), 1, 1, nil))

	for name, recorder := range map[string]*Recorder{"first": first, "second": second} {
		events := recorder.Events()
		if len(events) != 2 || events[0].Name() != "decompression_started" || events[1].Name() != "decompression_finished" {
			t.Errorf("%s recorder has %v", name, events)
		}
	}
}

func TestLogBusLevels(t *testing.T) {
	var buffer bytes.Buffer
	bus := NewLogBus(slog.New(slog.NewTextHandler(&buffer, &slog.HandlerOptions{Level: slog.LevelDebug})))

	started := Started("//app", nil, time.Unix(0, 0))
	bus.Post(context.Background(), started)
	bus.Post(context.Background(), started.Finished(time.Unix(2, 0), 10, 5, errors.New("boom")))

	output := buffer.String()
	for _, want := range []string{
		`level=DEBUG msg="decompression started"`,
		`level=WARN msg="decompression failed"`,
		"error=boom",
		"target=//app",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q:\n%s", want, output)
		}
	}
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func TestMetricsBus(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	bus, err := NewMetricsBus(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsBus: %v", err)
	}

	ctx := context.Background()
	ok := Started("//ok", nil, time.Unix(0, 0))
	bus.Post(ctx, ok)
	bus.Post(ctx, ok.Finished(time.Unix(0, int64(20*time.Millisecond)), 2048, 512, nil))
	failed := Started("//bad", nil, time.Unix(0, 0))
	bus.Post(ctx, failed)
	bus.Post(ctx, failed.Finished(time.Unix(0, 0), 0, 0, errors.New("corrupt")))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	started := findMetric(rm, "buildcache.decompression.started")
	if started == nil {
		t.Fatal("started counter missing")
	}
	if sum := started.Data.(metricdata.Sum[int64]); sum.DataPoints[0].Value != 2 {
		t.Errorf("started = %d, want 2", sum.DataPoints[0].Value)
	}

	finished := findMetric(rm, "buildcache.decompression.finished")
	if finished == nil {
		t.Fatal("finished counter missing")
	}
	byOutcome := make(map[string]int64)
	for _, point := range finished.Data.(metricdata.Sum[int64]).DataPoints {
		outcome, _ := point.Attributes.Value(attribute.Key("outcome"))
		byOutcome[outcome.AsString()] = point.Value
	}
	if byOutcome["ok"] != 1 || byOutcome["error"] != 1 {
		t.Errorf("finished by outcome = %v, want ok=1 error=1", byOutcome)
	}

	compressed := findMetric(rm, "buildcache.decompression.compressed")
	if compressed == nil {
		t.Fatal("compressed histogram missing")
	}
	histogram := compressed.Data.(metricdata.Histogram[int64])
	if point := histogram.DataPoints[0]; point.Count != 1 || point.Sum != 512 {
		t.Errorf("compressed histogram count=%d sum=%d, want one 512-byte sample", point.Count, point.Sum)
	}
}
