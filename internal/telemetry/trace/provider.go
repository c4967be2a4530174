package trace

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"voice_verification/config"
	"voice_verification/internal/telemetry/trace/exporter"
)

type CloseFunc func(ctx context.Context) error

type TraceProviderBuilder struct {
	name     string
	version  string
	exporter sdktrace.SpanExporter
	sampler  sdktrace.Sampler
}

func NewTraceProviderBuilder(name string) *TraceProviderBuilder {
	return &TraceProviderBuilder{name: name, sampler: sdktrace.ParentBased(sdktrace.AlwaysSample())}
}

func (b *TraceProviderBuilder) SetExporter(exp sdktrace.SpanExporter) *TraceProviderBuilder {
	b.exporter = exp
	return b
}

func (b *TraceProviderBuilder) SetVersion(version string) *TraceProviderBuilder {
	b.version = version
	return b
}

func (b *TraceProviderBuilder) SetSampler(s sdktrace.Sampler) *TraceProviderBuilder {
	b.sampler = s
	return b
}

func (b *TraceProviderBuilder) Build() (*sdktrace.TracerProvider, CloseFunc, error) {
	if b.name == "" {
		return nil, nil, errors.New("trace provider needs a service name")
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", b.name)}
	if b.version != "" {
		attrs = append(attrs, attribute.String("service.version", b.version))
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(b.sampler),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	}
	if b.exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(b.exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	return tp, tp.Shutdown, nil
}

// InitGlobalProvider installs the tracer provider selected by cfg. With the
// "none" exporter the global no-op provider stays in place.
func InitGlobalProvider(name, version string, cfg config.OTEL) (CloseFunc, error) {
	// set global propagator to tracecontext (the default is no-op).
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	spanExporter, err := exporter.New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed initializing the tracer exporter")
	}
	if spanExporter == nil {
		return func(context.Context) error { return nil }, nil
	}

	tracerProvider, closeFn, err := NewTraceProviderBuilder(name).
		SetVersion(version).
		SetExporter(spanExporter).
		Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed initializing the tracer provider")
	}
	otel.SetTracerProvider(tracerProvider)
	return closeFn, nil
}
