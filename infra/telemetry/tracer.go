// Package telemetry configures OpenTelemetry tracing for routine runs.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kilianp07/gridopt/config"
)

// Tracer owns the trace provider handed to the routines.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   config.TelemetryConfig
}

// Option customises NewTracer.
type Option func(*options)

type options struct {
	writer  io.Writer
	version string
}

// WithWriter sends stdout exporter output to w.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithVersion sets the service.version resource attribute.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// NewTracer creates a tracer from cfg. A disabled configuration yields a
// no-op tracer and leaves the global provider untouched.
func NewTracer(cfg config.TelemetryConfig, opts ...Option) (*Tracer, error) {
	cfg.SetDefaults()
	if !cfg.Enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName), config: cfg}, nil
	}
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", o.version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "stdout":
		exporter, err = createStdoutExporter(o.writer)
	case "none":
		// spans are sampled but not exported
		exporter = nil
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	popts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	}
	if exporter != nil {
		popts = append(popts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(popts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		config:   cfg,
	}, nil
}

func createStdoutExporter(w io.Writer) (sdktrace.SpanExporter, error) {
	opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	if w != nil {
		opts = append(opts, stdouttrace.WithWriter(w))
	}
	return stdouttrace.New(opts...)
}

// Tracer returns the trace.Tracer routines start their spans from.
func (t *Tracer) Tracer() trace.Tracer { return t.tracer }

// Enabled reports whether spans are recorded.
func (t *Tracer) Enabled() bool { return t.provider != nil }

// Start begins a new span with the given name.
func (t *Tracer) Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans and stops the provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as successful.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
