// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package benchmark holds fixture generators for codec benchmarks.
package benchmark

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/Query-farm/ddb-arrow/ddbarrow"
	"golang.org/x/sync/errgroup"
)

// TradesColumns is the column layout of GenerateTrades.
var TradesColumns = []string{"id", "sym", "qty", "price", "ts"}

var symbols = []string{"AAPL", "AMZN", "GOOG", "IBM", "MSFT", "NVDA", "ORCL"}

// GenerateTrades builds a remote trades table with rows rows. Every
// nullEvery-th qty and price is null; zero disables nulls. Columns are
// filled concurrently.
func GenerateTrades(rows, nullEvery int, seed uint64) (*ddbarrow.Table, error) {
	id, _ := ddbarrow.NewVector(ddbarrow.TypeLong, rows, rows)
	sym, _ := ddbarrow.NewVector(ddbarrow.TypeSymbol, rows, rows)
	qty, _ := ddbarrow.NewVector(ddbarrow.TypeInt, rows, rows)
	price, _ := ddbarrow.NewVector(ddbarrow.TypeDouble, rows, rows)
	ts, _ := ddbarrow.NewVector(ddbarrow.TypeTimestamp, rows, rows)

	isNull := func(i int) bool { return nullEvery > 0 && i%nullEvery == nullEvery-1 }

	var g errgroup.Group
	g.Go(func() error {
		for i, ids := 0, id.Int64s(); i < rows; i++ {
			ids[i] = int64(i)
		}
		return nil
	})
	g.Go(func() error {
		r := rand.New(rand.NewPCG(seed, 1))
		for i, s := 0, sym.Strings(); i < rows; i++ {
			s[i] = symbols[r.IntN(len(symbols))]
		}
		return nil
	})
	g.Go(func() error {
		r := rand.New(rand.NewPCG(seed, 2))
		for i, q := 0, qty.Int32s(); i < rows; i++ {
			q[i] = int32(r.IntN(10_000)) + 1
		}
		for i := range rows {
			if isNull(i) {
				qty.SetNull(i)
			}
		}
		return nil
	})
	g.Go(func() error {
		r := rand.New(rand.NewPCG(seed, 3))
		for i, p := 0, price.Float64s(); i < rows; i++ {
			p[i] = math.Round(r.Float64()*50_000) / 100
		}
		for i := range rows {
			if isNull(i) {
				price.SetNull(i)
			}
		}
		return nil
	})
	g.Go(func() error {
		// 2024-01-02 09:30:00 UTC in milliseconds
		const start = 1704187800000
		for i, t := 0, ts.Int64s(); i < rows; i++ {
			t[i] = start + int64(i)*10
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ddbarrow.NewTable(TradesColumns, []*ddbarrow.Vector{id, sym, qty, price, ts})
}

// GenerateVector builds a remote vector of typ with n elements, where every
// nullEvery-th element is null. Only integral and floating types are
// supported.
func GenerateVector(typ ddbarrow.DataType, n, nullEvery int) (*ddbarrow.Vector, error) {
	v, err := ddbarrow.NewVector(typ, n, n)
	if err != nil {
		return nil, err
	}
	switch typ {
	case ddbarrow.TypeChar:
		for i, s := 0, v.Int8s(); i < n; i++ {
			s[i] = int8(i % 100)
		}
	case ddbarrow.TypeShort:
		for i, s := 0, v.Int16s(); i < n; i++ {
			s[i] = int16(i % 10_000)
		}
	case ddbarrow.TypeInt:
		for i, s := 0, v.Int32s(); i < n; i++ {
			s[i] = int32(i)
		}
	case ddbarrow.TypeLong:
		for i, s := 0, v.Int64s(); i < n; i++ {
			s[i] = int64(i)
		}
	case ddbarrow.TypeFloat:
		for i, s := 0, v.Float32s(); i < n; i++ {
			s[i] = float32(i) / 2
		}
	case ddbarrow.TypeDouble:
		for i, s := 0, v.Float64s(); i < n; i++ {
			s[i] = float64(i) / 2
		}
	default:
		return nil, fmt.Errorf("benchmark: unsupported vector type %s", typ)
	}
	if nullEvery > 0 {
		for i := nullEvery - 1; i < n; i += nullEvery {
			v.SetNull(i)
		}
	}
	return v, nil
}

// GenerateHostTable builds the host form of a trades table directly.
func GenerateHostTable(rows int) (*ddbarrow.HostTable, error) {
	ids := make([]int64, rows)
	qty := make([]int32, rows)
	price := make([]float64, rows)
	syms := make([]string, rows)
	for i := range rows {
		ids[i] = int64(i)
		qty[i] = int32(i%500) + 1
		price[i] = float64(i%1000) / 4
		syms[i] = symbols[i%len(symbols)]
	}
	t := ddbarrow.NewHostTable()
	for _, col := range []struct {
		name string
		arr  *ddbarrow.Array
	}{
		{"id", ddbarrow.Int64Array(ids...)},
		{"sym", ddbarrow.StrArray(syms...)},
		{"qty", ddbarrow.Int32Array(qty...)},
		{"price", ddbarrow.Float64Array(price...)},
	} {
		if err := t.AddColumn(col.name, col.arr); err != nil {
			return nil, err
		}
	}
	return t.WithColumnType("sym", ddbarrow.TypeSymbol), nil
}
