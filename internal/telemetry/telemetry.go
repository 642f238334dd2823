// Package telemetry wires the spans and counters C1 (internal/store) and
// C3 (internal/transport) already record against the global otel API to a
// real SDK provider. Left unconfigured, otel.Tracer/otel.Meter already
// default to no-op implementations, so Setup only does work when asked.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Shutdown flushes and stops whatever provider Setup installed.
type Shutdown func(context.Context) error

// Setup reads TRACECLI_OTEL to decide how (or whether) to export telemetry:
//
//	unset or "off": no-op, the default global providers already installed.
//	"stdout":       trace and metric exporters that write line-delimited
//	                JSON to stderr, for local inspection.
//	"otlp":         metrics pushed via OTLP/HTTP to TRACECLI_OTEL_ENDPOINT
//	                (traces stay on the stdout exporter; this build carries
//	                no OTLP trace exporter, only otlpmetrichttp).
//
// Callers must invoke the returned Shutdown before the process exits so
// batched/periodic exporters flush their last reading.
func Setup(ctx context.Context, serviceName string) (Shutdown, error) {
	mode := os.Getenv("TRACECLI_OTEL")
	if mode == "" || mode == "off" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := sdkresource.Merge(sdkresource.Default(),
		sdkresource.NewSchemaless(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	var mp *sdkmetric.MeterProvider
	switch mode {
	case "otlp":
		endpoint := os.Getenv("TRACECLI_OTEL_ENDPOINT")
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
		if os.Getenv("TRACECLI_OTEL_INSECURE") == "1" {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		metricExp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp metric exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		)
	default: // "stdout" and any other value
		metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		)
	}
	otel.SetMeterProvider(mp)

	return func(shutdownCtx context.Context) error {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return mp.Shutdown(shutdownCtx)
	}, nil
}
