// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

// Package gridotel provides OpenTelemetry instrumentation for gridrpc
// workers. It implements the [gridrpc.CallHook] interface to add
// distributed tracing and metrics to remote invocations.
//
// Usage:
//
//	worker := gridrpc.NewWorker("trainer0")
//	// ... register callables ...
//	gridotel.InstrumentWorker(worker, gridotel.DefaultConfig())
package gridotel

import (
	"context"
	"time"

	"github.com/gridmesh/grid-rpc/gridrpc"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "grid_rpc"

// OtelConfig configures OpenTelemetry instrumentation for a gridrpc worker.
type OtelConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// EnableTracing enables span creation. Default true.
	EnableTracing bool
	// EnableMetrics enables counter and histogram recording. Default true.
	EnableMetrics bool
	// RecordExceptions records failed invocations as span events. Default true.
	RecordExceptions bool
	// ServiceName is the rpc.service attribute value. Defaults to the
	// worker's name.
	ServiceName string
	// CustomAttributes are added to every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig returns an OtelConfig with sensible defaults.
// TracerProvider and MeterProvider are resolved from the global OTel SDK
// at instrumentation time.
func DefaultConfig() OtelConfig {
	return OtelConfig{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentWorker attaches OpenTelemetry instrumentation to a gridrpc
// worker. The hook is installed via [gridrpc.Worker.SetCallHook].
func InstrumentWorker(worker *gridrpc.Worker, cfg OtelConfig) {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = worker.Name()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.requestCounter, _ = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of remote invocations"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of remote invocations"),
		)
	}

	worker.SetCallHook(hook)
}

// otelHook implements gridrpc.CallHook with OpenTelemetry tracing and metrics.
type otelHook struct {
	cfg               OtelConfig
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

// spanToken is the HookToken returned by OnCallStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

// OnCallStart starts a server span named by the call's span key.
func (h *otelHook) OnCallStart(ctx context.Context, info gridrpc.CallInfo) (context.Context, gridrpc.HookToken) {
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "grid_rpc"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Func),
		attribute.String("rpc.grid_rpc.exec_mode", string(info.Mode)),
		attribute.String("rpc.grid_rpc.source_worker", info.SourceWorker),
		attribute.String("rpc.grid_rpc.dest_worker", info.DestWorker),
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, info.SpanKey(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)

	return ctx, &spanToken{span: span, startTime: time.Now()}
}

// OnCallEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnCallEnd(ctx context.Context, token gridrpc.HookToken, info gridrpc.CallInfo, stats *gridrpc.CallStatistics, failure *gridrpc.Failure) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if failure != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("rpc.system", "grid_rpc"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Func),
			attribute.String("rpc.grid_rpc.exec_mode", string(info.Mode)),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("rpc.grid_rpc.input_buffers", stats.InputBuffers),
				attribute.Int64("rpc.grid_rpc.output_buffers", stats.OutputBuffers),
				attribute.Int64("rpc.grid_rpc.input_bytes", stats.InputBytes),
				attribute.Int64("rpc.grid_rpc.output_bytes", stats.OutputBytes),
			)
		}

		if failure != nil {
			st.span.SetStatus(codes.Error, failure.Kind)
			st.span.SetAttributes(attribute.String("rpc.grid_rpc.error_type", failure.Kind))
			if h.cfg.RecordExceptions {
				st.span.AddEvent("exception", trace.WithAttributes(
					attribute.String("exception.type", failure.Kind),
					attribute.String("exception.message", failure.Description),
				))
			}
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}
