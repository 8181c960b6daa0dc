// Package otel exposes the station's OpenTelemetry meters through a Prometheus /metrics
// endpoint. Instruments are no-ops until Setup has run.
package otel

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/buppyai/puppy-station"

// Exporter owns the meter provider installed by Setup.
type Exporter struct {
	// Handler serves the registry in OpenMetrics format.
	Handler  http.Handler
	provider *sdkmetric.MeterProvider
}

// Setup installs a global MeterProvider backed by a private Prometheus registry that also
// carries the Go runtime and process collectors.
func Setup(ctx context.Context, serviceName, version string) (*Exporter, error) {
	if serviceName == "" {
		serviceName = "puppy-station"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
	otelglobal.SetMeterProvider(provider)
	return &Exporter{
		Handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true, Registry: reg}),
		provider: provider,
	}, nil
}

// Shutdown flushes and stops the provider. Safe on a nil Exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil || e.provider == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}

// Meter returns the station's meter from the global provider.
func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// Attribute keys shared by the instruments.
var (
	AttrKind      = attribute.Key("kind")
	AttrType      = attribute.Key("type")
	AttrStatus    = attribute.Key("status")
	AttrEvent     = attribute.Key("event")
	AttrTransport = attribute.Key("transport")
)
