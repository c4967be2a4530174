package exporter

import (
	"strings"

	"github.com/pkg/errors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"voice_verification/config"
)

// New builds the span exporter named by cfg.Exporter. It returns nil, nil
// when tracing is disabled.
func New(cfg config.OTEL) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "none":
		return nil, nil
	case "jaeger":
		if cfg.JaegerEndpoint == "" {
			return nil, errors.New("jaeger exporter needs an endpoint")
		}
		exp, err := NewJaeger(cfg.JaegerEndpoint)
		if err != nil {
			return nil, err
		}
		return exp, nil
	case "otlp":
		if cfg.OTLPEndpoint == "" {
			return nil, errors.New("otlp exporter needs an endpoint")
		}
		exp, err := NewOTLP(cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		return exp, nil
	default:
		return nil, errors.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}
