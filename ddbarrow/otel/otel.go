// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package ddbotel provides OpenTelemetry instrumentation for ddbarrow
// sessions. It implements the [ddbarrow.CallHook] interface to add
// distributed tracing and metrics to every session call.
//
// Usage:
//
//	session := ddbarrow.NewSession(conn)
//	ddbotel.InstrumentSession(session, ddbotel.DefaultConfig())
package ddbotel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Query-farm/ddb-arrow/ddbarrow"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "ddb_arrow"

// maxTargetLen bounds the script text recorded on spans.
const maxTargetLen = 256

// Config configures OpenTelemetry instrumentation for a session.
type Config struct {
	// Providers fall back to the global ones when nil.
	TracerProvider   trace.TracerProvider
	MeterProvider    metric.MeterProvider
	// Propagator injects trace context for Conn implementations, see
	// [TraceHeaders]. Defaults to otel.GetTextMapPropagator().
	Propagator       propagation.TextMapPropagator
	EnableTracing    bool
	EnableMetrics    bool
	RecordExceptions bool // RecordError on failed calls
	RecordTarget     bool // truncated script or function name as db.statement
	// Extra attributes for every span.
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig turns everything on and leaves the providers and
// propagator to the globals.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
		RecordTarget:     true,
	}
}

// InstrumentSession attaches OpenTelemetry instrumentation to a session.
// The hook is installed via [ddbarrow.Session.SetCallHook].
func InstrumentSession(session *ddbarrow.Session, cfg Config) {
	session.SetCallHook(NewHook(cfg))
}

// NewHook returns the instrumentation hook without installing it.
func NewHook(cfg Config) ddbarrow.CallHook {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}

	hook := &otelHook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}

	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		hook.requestCounter, _ = meter.Int64Counter("db.client.calls",
			metric.WithUnit("{call}"),
			metric.WithDescription("Number of session calls"),
		)
		hook.durationHistogram, _ = meter.Float64Histogram("db.client.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of session calls"),
		)
		hook.rowsCounter, _ = meter.Int64Counter("db.client.rows",
			metric.WithUnit("{row}"),
			metric.WithDescription("Rows sent and received by session calls"),
		)
	}
	return hook
}

type headersKey struct{}

// TraceHeaders returns the trace context of ctx as a header map. Inside an
// instrumented call it holds what the hook's [Config.Propagator] injected;
// elsewhere the global propagator is used.
func TraceHeaders(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	if injected, ok := ctx.Value(headersKey{}).(propagation.MapCarrier); ok {
		for k, v := range injected {
			carrier[k] = v
		}
		return carrier
	}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

func (h *otelHook) inject(ctx context.Context) context.Context {
	carrier := propagation.MapCarrier{}
	h.cfg.Propagator.Inject(ctx, carrier)
	return context.WithValue(ctx, headersKey{}, carrier)
}

// otelHook implements ddbarrow.CallHook with OpenTelemetry tracing and metrics.
type otelHook struct {
	cfg               Config
	tracer            trace.Tracer
	requestCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
	rowsCounter       metric.Int64Counter
}

// spanToken is the HookToken returned by OnCallStart.
type spanToken struct {
	span      trace.Span
	startTime time.Time
}

func truncate(s string) string {
	if len(s) <= maxTargetLen {
		return s
	}
	return s[:maxTargetLen] + "..."
}

// OnCallStart starts a client span.
func (h *otelHook) OnCallStart(ctx context.Context, info ddbarrow.CallInfo) (context.Context, ddbarrow.HookToken) {
	if !h.cfg.EnableTracing {
		return h.inject(ctx), &spanToken{startTime: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("db.system", "dolphindb"),
		attribute.String("db.operation", info.Op),
	}
	if info.Host != "" {
		attrs = append(attrs,
			attribute.String("server.address", info.Host),
			attribute.Int("server.port", info.Port),
		)
	}
	if h.cfg.RecordTarget && info.Target != "" && info.Op != ddbarrow.OpLogin {
		attrs = append(attrs, attribute.String("db.statement", truncate(info.Target)))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)

	ctx, span := h.tracer.Start(ctx, fmt.Sprintf("ddb/%s", info.Op),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return h.inject(ctx), &spanToken{span: span, startTime: time.Now()}
}

// OnCallEnd records span attributes, metrics, and ends the span.
func (h *otelHook) OnCallEnd(ctx context.Context, token ddbarrow.HookToken, info ddbarrow.CallInfo, stats *ddbarrow.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	duration := time.Since(st.startTime)

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		metricAttrs := metric.WithAttributes(
			attribute.String("db.operation", info.Op),
			attribute.String("status", status),
		)
		if h.requestCounter != nil {
			h.requestCounter.Add(ctx, 1, metricAttrs)
		}
		if h.durationHistogram != nil {
			h.durationHistogram.Record(ctx, duration.Seconds(), metricAttrs)
		}
		if h.rowsCounter != nil && stats != nil {
			h.rowsCounter.Add(ctx, stats.InputRows, metric.WithAttributes(
				attribute.String("db.operation", info.Op), attribute.String("direction", "input")))
			h.rowsCounter.Add(ctx, stats.OutputRows, metric.WithAttributes(
				attribute.String("db.operation", info.Op), attribute.String("direction", "output")))
		}
	}

	if st.span != nil && st.span.IsRecording() {
		if stats != nil {
			st.span.SetAttributes(
				attribute.Int64("ddb.input_values", stats.InputValues),
				attribute.Int64("ddb.input_rows", stats.InputRows),
				attribute.Int64("ddb.output_values", stats.OutputValues),
				attribute.Int64("ddb.output_rows", stats.OutputRows),
				attribute.Int64("ddb.output_bytes", stats.OutputBytes),
			)
		}

		if err != nil {
			st.span.SetStatus(codes.Error, err.Error())
			if h.cfg.RecordExceptions {
				st.span.RecordError(err)
			}
			st.span.SetAttributes(attribute.String("error.type", errorType(err)))
		} else {
			st.span.SetStatus(codes.Ok, "")
		}

		st.span.End()
	}
}

func errorType(err error) string {
	var srv *ddbarrow.ServerError
	var conv *ddbarrow.ConversionError
	switch {
	case errors.As(err, &srv):
		return "server:" + srv.Op
	case errors.As(err, &conv):
		return "conversion:" + conv.Op
	}
	return strconv.Quote(fmt.Sprintf("%T", err))
}
