// Package apm wires OpenTelemetry tracing for simulation runs.
package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Provider selects the span exporter.
type Provider string

const (
	ConsoleProvider Provider = "console"
	EmptyProvider   Provider = "empty"
)

const tracerName = "etf-stress-sim"

// TraceProvider owns the tracer lifecycle for a run.
type TraceProvider interface {
	Tracer() trace.Tracer
	Stop(ctx context.Context) error
}

type sdkProvider struct {
	tp *sdktrace.TracerProvider
}

func (p *sdkProvider) Tracer() trace.Tracer          { return p.tp.Tracer(tracerName) }
func (p *sdkProvider) Stop(ctx context.Context) error { return p.tp.Shutdown(ctx) }

type emptyProvider struct{}

func (emptyProvider) Tracer() trace.Tracer           { return noop.NewTracerProvider().Tracer(tracerName) }
func (emptyProvider) Stop(context.Context) error     { return nil }

// New builds a TraceProvider. The console provider pretty-prints spans to
// stdout; anything else is a no-op.
func New(provider Provider, serviceName string, log *zap.Logger) (TraceProvider, error) {
	if provider != ConsoleProvider {
		if provider != EmptyProvider && provider != "" {
			log.Warn("unknown trace provider, tracing disabled", zap.String("provider", string(provider)))
		}
		return emptyProvider{}, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			semconv.ServiceNameKey.String(serviceName),
		)),
	)
	otel.SetTracerProvider(tp)

	return &sdkProvider{tp: tp}, nil
}

// StartTick opens a span for one simulation tick.
func StartTick(ctx context.Context, tracer trace.Tracer, tick int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "simulation.tick",
		trace.WithAttributes(attribute.Int("tick", tick)))
}
