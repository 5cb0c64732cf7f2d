// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbotel

import (
	"context"
	"errors"
	"testing"

	"github.com/Query-farm/ddb-arrow/ddbarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

type stubConn struct {
	runErr error
}

func (c *stubConn) Connect(context.Context, string, int, string, string) (bool, error) {
	return true, nil
}
func (c *stubConn) Login(context.Context, string, string, bool) error { return nil }
func (c *stubConn) Close() error                                      { return nil }
func (c *stubConn) Run(context.Context, string) (ddbarrow.Value, error) {
	if c.runErr != nil {
		return nil, c.runErr
	}
	v, err := ddbarrow.NewVector(ddbarrow.TypeInt, 0, 3)
	if err != nil {
		return nil, err
	}
	for _, x := range []int32{1, 2, 3} {
		if err := v.Append(ddbarrow.NewInt(x)); err != nil {
			return nil, err
		}
	}
	return v, nil
}
func (c *stubConn) Call(_ context.Context, _ string, args ...ddbarrow.Value) (ddbarrow.Value, error) {
	return args[0], nil
}
func (c *stubConn) Upload(context.Context, []string, []ddbarrow.Value) error { return nil }

func setup(t *testing.T, conn ddbarrow.Conn) (*ddbarrow.Session, *tracetest.SpanRecorder, *sdkmetric.ManualReader) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	session := ddbarrow.NewSession(conn)
	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	InstrumentSession(session, cfg)
	return session, recorder, reader
}

func attrMap(kvs []attribute.KeyValue) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestRunSpan(t *testing.T) {
	session, recorder, _ := setup(t, &stubConn{})
	ctx := context.Background()

	_, err := session.Connect(ctx, "db.local", 8848, "admin", "secret")
	require.NoError(t, err)
	_, err = session.Run(ctx, "1 2 3")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	run := spans[1]
	assert.Equal(t, "ddb/run", run.Name())
	assert.Equal(t, trace.SpanKindClient, run.SpanKind())
	assert.Equal(t, codes.Ok, run.Status().Code)

	attrs := attrMap(run.Attributes())
	assert.Equal(t, "run", attrs["db.operation"].AsString())
	assert.Equal(t, "db.local", attrs["server.address"].AsString())
	assert.Equal(t, int64(8848), attrs["server.port"].AsInt64())
	assert.Equal(t, "1 2 3", attrs["db.statement"].AsString())
	assert.Equal(t, int64(1), attrs["ddb.output_values"].AsInt64())
	assert.Equal(t, int64(3), attrs["ddb.output_rows"].AsInt64())
	assert.Positive(t, attrs["ddb.output_bytes"].AsInt64())
}

func TestErrorSpan(t *testing.T) {
	session, recorder, _ := setup(t, &stubConn{runErr: errors.New("Syntax Error")})

	_, err := session.Run(context.Background(), "1 +")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	attrs := attrMap(spans[0].Attributes())
	assert.Equal(t, "server:run", attrs["error.type"].AsString())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func TestLoginOmitsStatement(t *testing.T) {
	session, recorder, _ := setup(t, &stubConn{})

	require.NoError(t, session.Login(context.Background(), "admin", "secret", true))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	_, ok := attrMap(spans[0].Attributes())["db.statement"]
	assert.False(t, ok)
}

func TestCallMetrics(t *testing.T) {
	session, _, reader := setup(t, &stubConn{})
	ctx := context.Background()

	_, err := session.Call(ctx, "echo", ddbarrow.Int(7))
	require.NoError(t, err)
	_, err = session.Call(ctx, "echo", ddbarrow.Str("x"))
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	calls, ok := byName["db.client.calls"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, calls.DataPoints, 1)
	assert.Equal(t, int64(2), calls.DataPoints[0].Value)

	duration, ok := byName["db.client.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(2), duration.DataPoints[0].Count)
}

func TestTracingDisabled(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableTracing = false
	cfg.EnableMetrics = false
	session := ddbarrow.NewSession(&stubConn{}, ddbarrow.WithCallHook(NewHook(cfg)))

	_, err := session.Run(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, recorder.Ended())
}

func TestTruncate(t *testing.T) {
	long := make([]byte, maxTargetLen+10)
	for i := range long {
		long[i] = 'a'
	}
	got := truncate(string(long))
	assert.Len(t, got, maxTargetLen+3)
	assert.Equal(t, "short", truncate("short"))
}

type headerConn struct {
	stubConn
	headers map[string]string
}

func (c *headerConn) Run(ctx context.Context, script string) (ddbarrow.Value, error) {
	c.headers = TraceHeaders(ctx)
	return c.stubConn.Run(ctx, script)
}

func TestTraceHeadersUseConfiguredPropagator(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableMetrics = false
	cfg.Propagator = propagation.TraceContext{}
	conn := &headerConn{}
	session := ddbarrow.NewSession(conn, ddbarrow.WithCallHook(NewHook(cfg)))

	_, err := session.Run(context.Background(), "1")
	require.NoError(t, err)
	require.Contains(t, conn.headers, "traceparent")
	assert.Len(t, conn.headers["traceparent"], 55)

	// the global propagator is a no-op outside an instrumented call
	assert.Empty(t, TraceHeaders(context.Background()))
}
