package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const storeInstrumentationName = "github.com/fyrsmithlabs/knowledged/internal/vectorstore"

// Metrics records per-operation store metrics. Attribute values carry only
// engine names, operation labels and collection names, never content or
// vector values.
type Metrics struct {
	engine   string
	duration metric.Float64Histogram
	records  metric.Int64Histogram
	errors   metric.Int64Counter
}

// NewMetrics creates store metrics for the named engine (chromem, qdrant).
func NewMetrics(engine string) *Metrics {
	meter := otel.Meter(storeInstrumentationName)
	m := &Metrics{engine: engine}

	m.duration, _ = meter.Float64Histogram(
		"knowledged.store.operation_duration_seconds",
		metric.WithDescription("Duration of vector store operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	m.records, _ = meter.Int64Histogram(
		"knowledged.store.operation_records",
		metric.WithDescription("Records written or returned per store operation"),
		metric.WithUnit("{record}"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	m.errors, _ = meter.Int64Counter(
		"knowledged.store.errors_total",
		metric.WithDescription("Total vector store operation errors"),
		metric.WithUnit("{error}"),
	)
	return m
}

// start begins timing an operation; the returned func records duration,
// record count and outcome.
func (m *Metrics) start(ctx context.Context, operation, collection string) func(err error, records int) {
	began := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("engine", m.engine),
		attribute.String("operation", operation),
		attribute.String("collection", collection),
	}
	return func(err error, records int) {
		if m.duration != nil {
			m.duration.Record(ctx, time.Since(began).Seconds(), metric.WithAttributes(attrs...))
		}
		if records > 0 && m.records != nil {
			m.records.Record(ctx, int64(records), metric.WithAttributes(attrs...))
		}
		if err != nil && m.errors != nil {
			m.errors.Add(ctx, 1, metric.WithAttributes(attrs...))
		}
	}
}
