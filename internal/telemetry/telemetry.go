// Package telemetry holds the OpenTelemetry tracer and instruments shared by
// bimgraph packages. Instruments bind to the global providers, so nothing is
// exported unless the embedding application installs an SDK.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/reoring/bimgraph"

var (
	tracer = otel.Tracer(scope)
	meter  = otel.Meter(scope)
)

var (
	loadLatency    metric.Float64Histogram
	entitiesLoaded metric.Int64Counter
	encodeLatency  metric.Float64Histogram
	decodeLatency  metric.Float64Histogram
	storeOps       metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		loadLatency, err = meter.Float64Histogram(
			"bimgraph_load_duration_seconds",
			metric.WithDescription("Duration of graph loads from record streams"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		entitiesLoaded, err = meter.Int64Counter(
			"bimgraph_entities_loaded_total",
			metric.WithDescription("Records materialized into graphs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		encodeLatency, err = meter.Float64Histogram(
			"bimgraph_encode_duration_seconds",
			metric.WithDescription("Duration of tree/JSON document encoding"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		decodeLatency, err = meter.Float64Histogram(
			"bimgraph_decode_duration_seconds",
			metric.WithDescription("Duration of tree/JSON document decoding"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		storeOps, err = meter.Int64Counter(
			"bimgraph_store_operations_total",
			metric.WithDescription("Snapshot store operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// Tracer returns the package tracer.
func Tracer() trace.Tracer { return tracer }

// RecordLoad records one graph load.
func RecordLoad(ctx context.Context, d time.Duration, records int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	loadLatency.Record(ctx, d.Seconds(), attrs)
	if success {
		entitiesLoaded.Add(ctx, int64(records))
	}
}

// RecordEncode records one document encoding; format is "tree", "json", ...
func RecordEncode(ctx context.Context, format string, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	encodeLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("format", format)))
}

// RecordDecode records one document decoding.
func RecordDecode(ctx context.Context, format string, d time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	decodeLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("format", format),
		attribute.Bool("success", success),
	))
}

// RecordStoreOp counts one snapshot store operation.
func RecordStoreOp(ctx context.Context, op string, success bool) {
	if err := initMetrics(); err != nil {
		return
	}
	storeOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Bool("success", success),
	))
}

// EndSpan marks span as failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
