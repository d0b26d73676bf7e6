package observability

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlpmetricgrpc "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otlpmetrichttp "go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otlptracegrpc "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

const defaultShutdownTimeout = 5 * time.Second

// ShutdownFunc represents a graceful shutdown handler that waits for exporters to flush.
type ShutdownFunc func(context.Context) error

// Init initializes OpenTelemetry tracing and metrics based on the root configuration.
func Init(rootCfg *types.Config) (ShutdownFunc, error) {
	defaultShutdown := func(context.Context) error { return nil }

	otelCfg, err := LoadConfig(rootCfg)
	if err != nil {
		return defaultShutdown, err
	}

	ctx := context.Background()

	tracerProvider, err := InitTracer(ctx, otelCfg)
	if err != nil {
		return defaultShutdown, err
	}

	meterProvider, err := InitMeter(ctx, otelCfg)
	if err != nil {
		shutdown := NewShutdownFunc(tracerProvider, nil)
		_ = shutdown(ctx) // Best-effort cleanup before returning error.
		return defaultShutdown, err
	}

	return NewShutdownFunc(tracerProvider, meterProvider), nil
}

// InitTracer builds a tracer provider ready for application instrumentation.
func InitTracer(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: tracer initialization requires a config")
	}

	if !cfg.Enabled {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.NeverSample()),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(defaultPropagator())
		return tp, nil
	}

	exporter, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to create OTLP trace exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource information: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(samplerFromRate(cfg.SamplingRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(defaultPropagator())

	return tp, nil
}

// InitMeter builds a meter provider for exporting application metrics.
func InitMeter(ctx context.Context, cfg *Config) (*sdkmetric.MeterProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("observability: meter initialization requires a config")
	}

	if !cfg.Enabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, nil
	}

	exporter, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to create OTLP metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("observability: failed to build resource information: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricExportInterval))

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

func newTraceExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterProtocol {
	case protocolHTTPProtobuf:
		endpoint, err := normalizeOTLPHTTPPath(cfg.ExporterEndpoint, "/v1/traces")
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP HTTP endpoint: %w", err)
		}

		options := []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(endpoint),
		}
		if cfg.Insecure || strings.HasPrefix(endpoint, "http://") {
			options = append(options, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, options...)
	case protocolGRPC:
		endpoint, insecure, err := parseGRPCEndpoint(cfg.ExporterEndpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP gRPC endpoint: %w", err)
		}

		options := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
		}
		if cfg.Insecure || insecure {
			options = append(options, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, options...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter protocol %q", cfg.ExporterProtocol)
	}
}

func newMetricExporter(ctx context.Context, cfg *Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterProtocol {
	case protocolHTTPProtobuf:
		endpoint, err := normalizeOTLPHTTPPath(cfg.ExporterEndpoint, "/v1/metrics")
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP HTTP endpoint: %w", err)
		}

		options := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpointURL(endpoint),
		}
		if cfg.Insecure || strings.HasPrefix(endpoint, "http://") {
			options = append(options, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, options...)
	case protocolGRPC:
		endpoint, insecure, err := parseGRPCEndpoint(cfg.ExporterEndpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid OTLP gRPC endpoint: %w", err)
		}

		options := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(endpoint),
		}
		if cfg.Insecure || insecure {
			options = append(options, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, options...)
	default:
		return nil, fmt.Errorf("unsupported metric exporter protocol %q", cfg.ExporterProtocol)
	}
}

// samplerFromRate maps the configured sampling rate onto an SDK
// sampler: 1 samples everything, 0 nothing, anything between is a
// parent-based ratio.
func samplerFromRate(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	attributes := []attribute.KeyValue{
		attribute.String(resourceServiceNameKey, cfg.ServiceName),
	}
	if cfg.Environment != "" {
		attributes = append(attributes, attribute.String(resourceEnvironmentKey, cfg.Environment))
	}

	return resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attributes...),
	)
}

func defaultPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// NewShutdownFunc coordinates tracer and meter shutdown logic.
func NewShutdownFunc(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) ShutdownFunc {
	return func(ctx context.Context) error {
		shutdownCtx, cancel := ensureShutdownContext(ctx)
		defer cancel()

		var errs []error

		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Printf("observability: failed to shutdown tracer provider: %v", err)
				errs = append(errs, fmt.Errorf("tracer provider: %w", err))
			}
		}

		if mp != nil {
			if err := mp.Shutdown(shutdownCtx); err != nil {
				log.Printf("observability: failed to shutdown meter provider: %v", err)
				errs = append(errs, fmt.Errorf("meter provider: %w", err))
			}
		}

		if len(errs) == 0 {
			return nil
		}

		return errors.Join(errs...)
	}
}

func ensureShutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultShutdownTimeout)
	}

	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, defaultShutdownTimeout)
}
