// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package benchmark

import (
	"github.com/Query-farm/ddb-arrow/ddbarrow"
)

// TickColumns is the field layout of TickState messages.
var TickColumns = []string{"seq", "sym", "price", "ts"}

// TickState produces Count tick messages {seq, sym, price, ts}, one per
// Next call. Every NullEvery-th price is null.
type TickState struct {
	Count     int
	NullEvery int
	Current   int
}

// Next returns the next message, or false once Count messages were produced.
func (s *TickState) Next() ([]ddbarrow.Value, bool) {
	if s.Current >= s.Count {
		return nil, false
	}
	i := s.Current
	s.Current++

	price := ddbarrow.NewDouble(100 + float64(i%200)/8)
	if s.NullEvery > 0 && i%s.NullEvery == s.NullEvery-1 {
		price = ddbarrow.NullScalar(ddbarrow.TypeDouble)
	}
	ts, _ := ddbarrow.NewTemporal(ddbarrow.TypeTimestamp, 1704187800000+int64(i))
	return []ddbarrow.Value{
		ddbarrow.NewLong(int64(i)),
		ddbarrow.NewSymbol(symbols[i%len(symbols)]),
		price,
		ts,
	}, true
}

// Publish sends every remaining message to publish.
func (s *TickState) Publish(publish func(fields ...ddbarrow.Value) int) int {
	n := 0
	for {
		msg, ok := s.Next()
		if !ok {
			return n
		}
		publish(msg...)
		n++
	}
}
