package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records gateway request metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly; recording is best-effort.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records a completed request with duration and error status.
	RecordRequest(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordDenied records a request denied at admission.
	RecordDenied(ctx context.Context, meta OpMeta)

	// RecordRetry records retry attempts for one call. recovered is true when
	// the call eventually succeeded after at least one failed attempt.
	RecordRetry(ctx context.Context, meta OpMeta, attempts int, recovered bool)

	// RecordBreakerTransition records a circuit state change for an identifier.
	RecordBreakerTransition(ctx context.Context, identifier, from, to string)

	// RecordFallback records a degraded (mock) response being served.
	RecordFallback(ctx context.Context, meta OpMeta)
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter        metric.Meter
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	deniedCount  metric.Int64Counter
	retryCount   metric.Int64Counter
	recovered    metric.Int64Counter
	transitions  metric.Int64Counter
	fallbacks    metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"gateway.requests.total",
		metric.WithDescription("Total number of gateway requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"gateway.requests.errors",
		metric.WithDescription("Total number of failed gateway requests"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	deniedCount, err := meter.Int64Counter(
		"gateway.requests.denied",
		metric.WithDescription("Requests denied at admission for insufficient credits"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		"gateway.retry.attempts",
		metric.WithDescription("Downstream call attempts beyond the first"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	recovered, err := meter.Int64Counter(
		"gateway.retry.recovered",
		metric.WithDescription("Calls that succeeded after at least one failed attempt"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"gateway.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter(
		"gateway.fallback.served",
		metric.WithDescription("Degraded mock responses served"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"gateway.request.duration_ms",
		metric.WithDescription("Gateway request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		meter:        meter,
		totalCount:   totalCount,
		errorCount:   errorCount,
		deniedCount:  deniedCount,
		retryCount:   retryCount,
		recovered:    recovered,
		transitions:  transitions,
		fallbacks:    fallbacks,
		durationHist: durationHist,
	}, nil
}

func opAttrs(meta OpMeta) metric.MeasurementOption {
	attrs := []attribute.KeyValue{
		attribute.String("op.class", meta.Class),
	}
	if meta.Service != "" {
		attrs = append(attrs, attribute.String("op.service", meta.Service))
	}
	return metric.WithAttributes(attrs...)
}

// RecordRequest records metrics for a completed request.
func (m *metricsImpl) RecordRequest(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := opAttrs(meta)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// RecordDenied records an admission denial.
func (m *metricsImpl) RecordDenied(ctx context.Context, meta OpMeta) {
	m.deniedCount.Add(ctx, 1, opAttrs(meta))
}

// RecordRetry records retry activity for one call.
func (m *metricsImpl) RecordRetry(ctx context.Context, meta OpMeta, attempts int, recovered bool) {
	opt := opAttrs(meta)

	if attempts > 1 {
		m.retryCount.Add(ctx, int64(attempts-1), opt)
	}
	if recovered {
		m.recovered.Add(ctx, 1, opt)
	}
}

// RecordBreakerTransition records a circuit state change.
func (m *metricsImpl) RecordBreakerTransition(ctx context.Context, identifier, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.id", identifier),
		attribute.String("breaker.from", from),
		attribute.String("breaker.to", to),
	))
}

// RecordFallback records a degraded response being served.
func (m *metricsImpl) RecordFallback(ctx context.Context, meta OpMeta) {
	m.fallbacks.Add(ctx, 1, opAttrs(meta))
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NopMetrics returns a Metrics that discards everything.
func NopMetrics() Metrics {
	return &noopMetrics{}
}

func (m *noopMetrics) RecordRequest(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
}
func (m *noopMetrics) RecordDenied(ctx context.Context, meta OpMeta)                    {}
func (m *noopMetrics) RecordRetry(ctx context.Context, meta OpMeta, n int, r bool)      {}
func (m *noopMetrics) RecordBreakerTransition(ctx context.Context, id, from, to string) {}
func (m *noopMetrics) RecordFallback(ctx context.Context, meta OpMeta)                  {}
