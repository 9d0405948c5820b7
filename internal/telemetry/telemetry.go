// Package telemetry wires OpenTelemetry metrics and tracing for the pipeline.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/flightstudio/podscribe/pkg/types"
)

const scopeName = "github.com/flightstudio/podscribe"

// Provider owns the configured meter and tracer providers.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// Setup configures OTLP export when an endpoint is set; with no endpoint the
// global no-op providers stay in place and recording is free.
func Setup(ctx context.Context, cfg types.TelemetryConfig) (*Provider, error) {
	if cfg.Endpoint == "" {
		return &Provider{}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("podscribe"),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating metric exporter: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(15*time.Second))),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return &Provider{meterProvider: mp, tracerProvider: tp}, nil
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracerProvider != nil {
		errs = append(errs, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		errs = append(errs, p.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Tracer returns the pipeline tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(scopeName)
}

// Metrics holds the pipeline counters. A nil *Metrics is safe to record on.
type Metrics struct {
	episodesDiscovered metric.Int64Counter
	episodesSkipped    metric.Int64Counter
	jobsSubmitted      metric.Int64Counter
	jobsSucceeded      metric.Int64Counter
	jobsFailed         metric.Int64Counter
	rowsLoaded         metric.Int64Counter
	rowsFailed         metric.Int64Counter
	runsFinished       metric.Int64Counter
}

// NewMetrics registers the pipeline counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(scopeName)
	m := &Metrics{}

	for _, c := range []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.episodesDiscovered, "podscribe.episodes.discovered", "Episodes newly discovered from channel feeds"},
		{&m.episodesSkipped, "podscribe.episodes.skipped", "Episode records skipped as already seen or malformed"},
		{&m.jobsSubmitted, "podscribe.jobs.submitted", "Transcription jobs submitted"},
		{&m.jobsSucceeded, "podscribe.jobs.succeeded", "Transcription jobs that produced a transcript"},
		{&m.jobsFailed, "podscribe.jobs.failed", "Transcription jobs that exhausted their retry budget"},
		{&m.rowsLoaded, "podscribe.warehouse.rows_loaded", "Warehouse rows committed"},
		{&m.rowsFailed, "podscribe.warehouse.rows_failed", "Warehouse rows that failed to commit"},
		{&m.runsFinished, "podscribe.runs.finished", "Pipeline runs reaching a terminal status"},
	} {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("telemetry: registering %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// EpisodesDiscovered records newly discovered episodes for a channel.
func (m *Metrics) EpisodesDiscovered(ctx context.Context, channelID string, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.episodesDiscovered, int64(n), attribute.String("channel.id", channelID))
}

// EpisodesSkipped records skipped episode records for a channel.
func (m *Metrics) EpisodesSkipped(ctx context.Context, channelID string, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.episodesSkipped, int64(n), attribute.String("channel.id", channelID))
}

// JobsSubmitted records job submissions.
func (m *Metrics) JobsSubmitted(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.jobsSubmitted, int64(n))
}

// JobsSucceeded records transcription successes.
func (m *Metrics) JobsSucceeded(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.jobsSucceeded, int64(n))
}

// JobsFailed records terminal transcription failures by category.
func (m *Metrics) JobsFailed(ctx context.Context, category types.FailureCategory, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.jobsFailed, int64(n), attribute.String("failure.category", string(category)))
}

// RowsLoaded records committed warehouse rows.
func (m *Metrics) RowsLoaded(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.rowsLoaded, int64(n))
}

// RowsFailed records failed warehouse rows.
func (m *Metrics) RowsFailed(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.add(ctx, m.rowsFailed, int64(n))
}

// RunFinished records a run reaching a terminal status.
func (m *Metrics) RunFinished(ctx context.Context, status types.RunStatus) {
	if m == nil {
		return
	}
	m.add(ctx, m.runsFinished, 1, attribute.String("run.status", string(status)))
}
