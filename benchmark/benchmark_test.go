// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package benchmark

import (
	"bytes"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Query-farm/ddb-arrow/conformance"
	"github.com/Query-farm/ddb-arrow/ddbarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTrades(t *testing.T) {
	tbl, err := GenerateTrades(100, 10, 42)
	require.NoError(t, err)
	assert.Equal(t, 100, tbl.NumRows())
	assert.Equal(t, len(TradesColumns), tbl.NumColumns())

	qty := tbl.Column(2)
	assert.True(t, qty.IsNullAt(9))
	assert.False(t, qty.IsNullAt(10))

	host, err := ddbarrow.NewCodec().Decode(tbl)
	require.NoError(t, err)
	ht := host.(*ddbarrow.HostTable)
	price, ok := ht.Column("price")
	require.True(t, ok)
	assert.Equal(t, ddbarrow.DTypeFloat64, price.DType())
	ts, ok := ht.Column("ts")
	require.True(t, ok)
	assert.Equal(t, ddbarrow.DTypeDateTime(ddbarrow.UnitEpochMillisecond), ts.DType())
}

func TestGenerateVectorRejectsLiteral(t *testing.T) {
	_, err := GenerateVector(ddbarrow.TypeString, 4, 0)
	assert.Error(t, err)
}

func TestTickState(t *testing.T) {
	s := &TickState{Count: 3, NullEvery: 3}
	var got [][]ddbarrow.Value
	n := s.Publish(func(fields ...ddbarrow.Value) int {
		got = append(got, fields)
		return 1
	})
	assert.Equal(t, 3, n)
	require.Len(t, got, 3)
	assert.True(t, got[2][2].IsNull())
	_, ok := s.Next()
	assert.False(t, ok)
}

func BenchmarkDecodeTrades(b *testing.B) {
	tbl, err := GenerateTrades(100_000, 0, 1)
	require.NoError(b, err)
	codec := ddbarrow.NewCodec()
	b.ResetTimer()
	for b.Loop() {
		h, err := codec.Decode(tbl)
		if err != nil {
			b.Fatal(err)
		}
		h.(*ddbarrow.HostTable).Release()
	}
}

func BenchmarkDecodeIntWithNulls(b *testing.B) {
	v, err := GenerateVector(ddbarrow.TypeInt, 1_000_000, 7)
	require.NoError(b, err)
	codec := ddbarrow.NewCodec()
	b.ResetTimer()
	for b.Loop() {
		h, err := codec.Decode(v)
		if err != nil {
			b.Fatal(err)
		}
		h.(*ddbarrow.Array).Release()
	}
}

func BenchmarkDecodeDouble(b *testing.B) {
	v, err := GenerateVector(ddbarrow.TypeDouble, 1_000_000, 0)
	require.NoError(b, err)
	codec := ddbarrow.NewCodec()
	b.ResetTimer()
	for b.Loop() {
		h, err := codec.Decode(v)
		if err != nil {
			b.Fatal(err)
		}
		h.(*ddbarrow.Array).Release()
	}
}

func BenchmarkEncodeHostTable(b *testing.B) {
	ht, err := GenerateHostTable(100_000)
	require.NoError(b, err)
	codec := ddbarrow.NewCodec()
	b.ResetTimer()
	for b.Loop() {
		if _, err := codec.Encode(ht); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWriteTableIPC(b *testing.B) {
	ht, err := GenerateHostTable(100_000)
	require.NoError(b, err)
	var buf bytes.Buffer
	b.ResetTimer()
	for b.Loop() {
		buf.Reset()
		if err := ddbarrow.WriteTableIPC(&buf, ht, ddbarrow.WithIPCCompression()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStreamingCollect(b *testing.B) {
	const ticks = 10_000
	for b.Loop() {
		pub := conformance.NewPublisher()
		streaming := ddbarrow.NewStreaming(ddbarrow.NewCodec(), pub.TransportFactory())
		if err := streaming.Listen(20100); err != nil {
			b.Fatal(err)
		}

		var rows atomic.Int64
		done := make(chan struct{})
		collector := ddbarrow.NewRowCollector(TickColumns, 1024, func(t *ddbarrow.HostTable) error {
			if rows.Add(int64(t.NumRows())) == ticks {
				close(done)
			}
			t.Release()
			return nil
		})
		if err := streaming.Subscribe("localhost", 8848, collector.Handle, "ticks", "bench", -1, false, nil); err != nil {
			b.Fatal(err)
		}

		state := &TickState{Count: ticks, NullEvery: 50}
		state.Publish(func(fields ...ddbarrow.Value) int { return pub.Publish("ticks", fields...) })
		streaming.Close()
		if err := collector.Flush(); err != nil {
			b.Fatal(err)
		}
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			b.Fatal("timed out collecting ticks")
		}
		if err := collector.Err(); err != nil {
			b.Fatal(err)
		}
	}
}
