package observability

import (
	"context"
	"time"

	"partner-workspace/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observability owns the OpenTelemetry meter used for refresh and job timings,
// and hands out the tracer façade spans are started from.
type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	tracer          trace.Tracer
	jobCounter      otelmetric.Int64Counter
	jobDuration     otelmetric.Float64Histogram
	refreshDuration otelmetric.Float64Histogram
}

// New registers a Prometheus-backed meter provider. On exporter failure it
// returns an instance whose recorders are no-ops.
func New(serviceName string, log logger.Logger) *Observability {
	tracer := otel.Tracer(serviceName)

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("Prometheus exporter unavailable, metrics disabled", map[string]interface{}{"error": err.Error()})
		return NewNoop(serviceName)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o := newWithMeter(provider.Meter(serviceName), tracer)
	o.meterProvider = provider
	return o
}

// NewNoop returns an Observability that records nothing.
func NewNoop(serviceName string) *Observability {
	return newWithMeter(noop.NewMeterProvider().Meter(serviceName), otel.Tracer(serviceName))
}

func newWithMeter(meter otelmetric.Meter, tracer trace.Tracer) *Observability {
	jobCounter, _ := meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	refreshDuration, _ := meter.Float64Histogram(
		"store.refresh.duration",
		otelmetric.WithDescription("Domain Store full refresh duration"),
		otelmetric.WithUnit("ms"),
	)
	return &Observability{
		meter:           meter,
		tracer:          tracer,
		jobCounter:      jobCounter,
		jobDuration:     jobDuration,
		refreshDuration: refreshDuration,
	}
}

// Tracer returns the tracer for façade spans.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

// RecordRefresh records one Domain Store refresh and how many collections degraded.
func (o *Observability) RecordRefresh(ctx context.Context, duration time.Duration, failed int) {
	if o.refreshDuration != nil {
		o.refreshDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.Int("failed_collections", failed),
		))
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
