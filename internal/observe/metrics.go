// SPDX-License-Identifier: MIT

// Package observe holds the sensor's OpenTelemetry metrics. Instruments are
// created from a metric.MeterProvider so tests can read them back through a
// ManualReader; production wires the provider to a Prometheus exporter with
// InitProvider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "bivo"

// Metrics holds every instrument the pipeline records into. All fields are
// safe for concurrent use.
type Metrics struct {
	// Attempts counts analysed segments, attribute result=pass|fail.
	Attempts metric.Int64Counter
	// Forwarded counts segments sent to the host.
	Forwarded metric.Int64Counter
	// Faults counts pipeline faults, attribute kind.
	Faults metric.Int64Counter

	CaptureDuration  metric.Float64Histogram
	AnalysisDuration metric.Float64Histogram
	ForwardDuration  metric.Float64Histogram

	// AttemptsPerSegment records how many captures each forwarded segment
	// took.
	AttemptsPerSegment metric.Int64Histogram
}

// Capture durations sit around the segment length (seconds); analysis and
// forwarding are shorter.
var (
	captureBuckets  = []float64{0.5, 1, 2, 3, 4, 5, 8, 15, 30}
	analysisBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}
	forwardBuckets  = []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30}
	attemptBuckets  = []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000}
)

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Attempts, err = m.Int64Counter("bivo.capture.attempts",
		metric.WithDescription("Captured segments analysed, by result."),
	); err != nil {
		return nil, err
	}
	if met.Forwarded, err = m.Int64Counter("bivo.segments.forwarded",
		metric.WithDescription("Segments forwarded to the host."),
	); err != nil {
		return nil, err
	}
	if met.Faults, err = m.Int64Counter("bivo.faults",
		metric.WithDescription("Pipeline faults by kind."),
	); err != nil {
		return nil, err
	}

	if met.CaptureDuration, err = m.Float64Histogram("bivo.capture.duration",
		metric.WithDescription("Time from arming a capture to its completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(captureBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("bivo.analysis.duration",
		metric.WithDescription("Time spent in spectral analysis per segment."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(analysisBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ForwardDuration, err = m.Float64Histogram("bivo.forward.duration",
		metric.WithDescription("Time spent sending a segment and its end marker."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(forwardBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AttemptsPerSegment, err = m.Int64Histogram("bivo.segment.attempts",
		metric.WithDescription("Captures needed per forwarded segment."),
		metric.WithExplicitBucketBoundaries(attemptBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		// The noop provider never fails.
		panic("observe: " + err.Error())
	}
	return m
}

// RecordAttempt records one analysed segment.
func (m *Metrics) RecordAttempt(ctx context.Context, passed bool, capture, analysis time.Duration) {
	result := "fail"
	if passed {
		result = "pass"
	}
	m.Attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.CaptureDuration.Record(ctx, capture.Seconds())
	m.AnalysisDuration.Record(ctx, analysis.Seconds())
}

// RecordForward records one segment sent to the host.
func (m *Metrics) RecordForward(ctx context.Context, attempts int, took time.Duration) {
	m.Forwarded.Add(ctx, 1)
	m.ForwardDuration.Record(ctx, took.Seconds())
	m.AttemptsPerSegment.Record(ctx, int64(attempts))
}

// RecordFault counts a fault of the given kind.
func (m *Metrics) RecordFault(ctx context.Context, kind string) {
	m.Faults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
