package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	SearchDuration      metric.Float64Histogram
	RecordsIngested     metric.Int64Counter
	RecordsSkipped      metric.Int64Counter
	RecordsFailed       metric.Int64Counter
	SourceDuration      metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("museum-discovery")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"search.duration",
		metric.WithDescription("Index query duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	recordsIngested, err := meter.Int64Counter(
		"ingest.records.upserted",
		metric.WithDescription("Records written to the index"),
	)
	if err != nil {
		return nil, err
	}

	recordsSkipped, err := meter.Int64Counter(
		"ingest.records.skipped",
		metric.WithDescription("Malformed records skipped during ingestion"),
	)
	if err != nil {
		return nil, err
	}

	recordsFailed, err := meter.Int64Counter(
		"ingest.records.failed",
		metric.WithDescription("Bulk operations rejected by the index"),
	)
	if err != nil {
		return nil, err
	}

	sourceDuration, err := meter.Float64Histogram(
		"ingest.source.duration",
		metric.WithDescription("Per-source ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		SearchDuration:      searchDuration,
		RecordsIngested:     recordsIngested,
		RecordsSkipped:      recordsSkipped,
		RecordsFailed:       recordsFailed,
		SourceDuration:      sourceDuration,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordSearch records the latency of one read operation
func (m *Metrics) RecordSearch(ctx context.Context, operation, index string, duration float64, success bool) {
	if m == nil {
		return
	}
	m.SearchDuration.Record(ctx, duration, metric.WithAttributes(
		attribute.String("search.operation", operation),
		attribute.String("search.index", index),
		attribute.Bool("search.success", success),
	))
}

// RecordIngestion records the outcome of one source run
func (m *Metrics) RecordIngestion(ctx context.Context, source, status string, upserted, skipped, failed int, duration float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("ingest.source", source),
		attribute.String("ingest.status", status),
	)
	m.RecordsIngested.Add(ctx, int64(upserted), attrs)
	m.RecordsSkipped.Add(ctx, int64(skipped), attrs)
	m.RecordsFailed.Add(ctx, int64(failed), attrs)
	m.SourceDuration.Record(ctx, duration, attrs)
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
