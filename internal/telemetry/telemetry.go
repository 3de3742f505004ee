// Package telemetry wires the OpenTelemetry meter provider to a Prometheus
// exporter and exposes the instruments used by the HTTP layer.
package telemetry

import (
	"context"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/zhouzirui/visivo/backend"

// Options configures Setup.
type Options struct {
	ServiceName string
	// Registry defaults to the Prometheus default registerer.
	Registry *promclient.Registry
}

// Provider owns the meter provider and the /metrics handler.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	handler       http.Handler
	Metrics       *Metrics
}

// Setup builds a meter provider backed by the Prometheus exporter.
// When the exporter cannot be created the provider still records, but
// Handler returns nil.
func Setup(ctx context.Context, opts Options) (*Provider, error) {
	if opts.ServiceName == "" {
		opts.ServiceName = "visivo-backend"
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return nil, err
	}

	var (
		exporterOpts []prometheus.Option
		handler      http.Handler
	)
	if opts.Registry != nil {
		exporterOpts = append(exporterOpts, prometheus.WithRegisterer(opts.Registry))
		handler = promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})
	} else {
		handler = promhttp.Handler()
	}

	var mp *sdkmetric.MeterProvider
	exporter, err := prometheus.New(exporterOpts...)
	if err != nil {
		log.Printf("[telemetry] failed to initialize prometheus exporter: %v", err)
		mp = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		handler = nil
	} else {
		mp = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
	}
	otel.SetMeterProvider(mp)

	metrics, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	return &Provider{meterProvider: mp, handler: handler, Metrics: metrics}, nil
}

// Handler returns the /metrics handler.
func (p *Provider) Handler() http.Handler {
	if p == nil {
		return nil
	}
	return p.handler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

// Metrics groups the relay and upstream instruments. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	fragments metric.Int64Counter
	relays    metric.Int64Counter
	upstream  metric.Float64Histogram
}

// NewMetrics registers the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	fragments, err := meter.Int64Counter("visivo.relay.fragments",
		metric.WithDescription("Text fragments written to streaming responses"))
	if err != nil {
		return nil, err
	}

	relays, err := meter.Int64Counter("visivo.relay.completed",
		metric.WithDescription("Streaming relays by terminal outcome"))
	if err != nil {
		return nil, err
	}

	upstream, err := meter.Float64Histogram("visivo.upstream.duration",
		metric.WithDescription("Latency of calls to the generation and speech upstreams"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{fragments: fragments, relays: relays, upstream: upstream}, nil
}

// FragmentRelayed counts one flushed fragment.
func (m *Metrics) FragmentRelayed(ctx context.Context) {
	if m == nil {
		return
	}
	m.fragments.Add(ctx, 1)
}

// RelayFinished counts a relay reaching a terminal state.
func (m *Metrics) RelayFinished(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.relays.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveUpstream records the duration of one upstream call.
func (m *Metrics) ObserveUpstream(ctx context.Context, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.upstream.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("error", err != nil),
	))
}
