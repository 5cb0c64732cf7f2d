// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/Query-farm/ddb-arrow/ddbarrow"
)

// Case is one round-trip check: Value must encode to Form/Type and come
// back from an echo call equal to Want (or to Value when Want is nil).
type Case struct {
	Name  string
	Value ddbarrow.HostValue
	Form  ddbarrow.DataForm
	Type  ddbarrow.DataType
	Want  ddbarrow.HostValue
}

// Result is the outcome of one case. Err is nil when the case passed.
type Result struct {
	Name string
	Err  error
}

func mustSet(items ...ddbarrow.HostValue) *ddbarrow.HostSet {
	s, err := ddbarrow.NewHostSet(items...)
	if err != nil {
		panic(err)
	}
	return s
}

func mustDict(kv ...ddbarrow.HostValue) *ddbarrow.Dict {
	d := ddbarrow.NewDict()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := d.Set(kv[i], kv[i+1]); err != nil {
			panic(err)
		}
	}
	return d
}

func mustTable() *ddbarrow.HostTable {
	t := ddbarrow.NewHostTable()
	if err := t.AddColumn("id", ddbarrow.Int32Array(1, 2, 3)); err != nil {
		panic(err)
	}
	if err := t.AddColumn("sym", ddbarrow.StrArray("AAPL", "IBM", "MSFT")); err != nil {
		panic(err)
	}
	if err := t.AddColumn("price", ddbarrow.Float64Array(189.5, math.NaN(), 411.25)); err != nil {
		panic(err)
	}
	return t
}

func grid(rows, cols int) *ddbarrow.Array {
	vals := make([]int64, rows*cols)
	for i := range vals {
		vals[i] = int64(i)
	}
	g, err := ddbarrow.Int64Array(vals...).Reshape(rows, cols)
	if err != nil {
		panic(err)
	}
	return g
}

// Cases returns the round-trip case table.
func Cases() []Case {
	stamp := time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)
	m := grid(3, 4)
	return []Case{
		{Name: "bool", Value: ddbarrow.Bool(true), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeBool},
		{Name: "long_max", Value: ddbarrow.Int(math.MaxInt64), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeLong},
		{Name: "long_min", Value: ddbarrow.Int(math.MinInt64 + 1), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeLong},
		{Name: "double", Value: ddbarrow.Float(3.25), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeDouble},
		{Name: "string", Value: ddbarrow.Str("hello"), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeString},
		{Name: "none", Value: ddbarrow.None{}, Form: ddbarrow.FormScalar, Type: ddbarrow.TypeDouble},
		{Name: "nan", Value: ddbarrow.Float(math.NaN()), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeDouble, Want: ddbarrow.None{}},
		{Name: "month", Value: ddbarrow.Month(2021, time.July), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeMonth},
		{Name: "date", Value: ddbarrow.DateTimeOf(stamp, ddbarrow.UnitDay), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeDate},
		{Name: "timestamp", Value: ddbarrow.DateTimeOf(stamp, ddbarrow.UnitEpochMillisecond), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeTimestamp},
		{Name: "nanotime", Value: ddbarrow.DateTimeOf(stamp, ddbarrow.UnitNanosecond), Form: ddbarrow.FormScalar, Type: ddbarrow.TypeNanoTime},
		{
			Name:  "int_list",
			Value: ddbarrow.List{ddbarrow.Int(1), ddbarrow.Int(2), ddbarrow.Int(3)},
			Form:  ddbarrow.FormVector, Type: ddbarrow.TypeLong,
			Want: ddbarrow.Int64Array(1, 2, 3),
		},
		{
			Name:  "mixed_list",
			Value: ddbarrow.List{ddbarrow.Int(1), ddbarrow.Str("a"), ddbarrow.Float(2.5)},
			Form:  ddbarrow.FormVector, Type: ddbarrow.TypeAny,
			Want: ddbarrow.ObjectArray(ddbarrow.Int(1), ddbarrow.Str("a"), ddbarrow.Float(2.5)),
		},
		{
			Name:  "nested_list",
			Value: ddbarrow.List{ddbarrow.List{ddbarrow.Int(1), ddbarrow.Int(2)}, ddbarrow.List{ddbarrow.Int(3)}},
			Form:  ddbarrow.FormVector, Type: ddbarrow.TypeAny,
			Want: ddbarrow.ObjectArray(ddbarrow.Int64Array(1, 2), ddbarrow.Int64Array(3)),
		},
		{Name: "bool_array", Value: ddbarrow.BoolArray(true, false, true), Form: ddbarrow.FormVector, Type: ddbarrow.TypeBool},
		{Name: "char_array", Value: ddbarrow.Int8Array(1, -2, 127), Form: ddbarrow.FormVector, Type: ddbarrow.TypeChar},
		{Name: "int_array", Value: ddbarrow.Int32Array(math.MaxInt32, -7), Form: ddbarrow.FormVector, Type: ddbarrow.TypeInt},
		{Name: "float_array", Value: ddbarrow.Float32Array(1.5, float32(math.NaN())), Form: ddbarrow.FormVector, Type: ddbarrow.TypeFloat},
		{Name: "double_nan_array", Value: ddbarrow.Float64Array(0, 1, math.NaN(), 3, 4, math.NaN()), Form: ddbarrow.FormVector, Type: ddbarrow.TypeDouble},
		{Name: "empty_array", Value: ddbarrow.Float64Array(), Form: ddbarrow.FormVector, Type: ddbarrow.TypeDouble},
		{Name: "string_array", Value: ddbarrow.StrArray("x", "", "z"), Form: ddbarrow.FormVector, Type: ddbarrow.TypeString},
		{
			Name:  "date_array",
			Value: ddbarrow.DateTimeArray(ddbarrow.UnitDay, 0, 19000, ddbarrow.NaT),
			Form:  ddbarrow.FormVector, Type: ddbarrow.TypeDate,
		},
		{
			Name:  "set",
			Value: mustSet(ddbarrow.Int(1), ddbarrow.Int(2), ddbarrow.Int(3)),
			Form:  ddbarrow.FormSet, Type: ddbarrow.TypeLong,
		},
		{
			Name:  "dict",
			Value: mustDict(ddbarrow.Str("a"), ddbarrow.Int(1), ddbarrow.Str("b"), ddbarrow.Float(2.5)),
			Form:  ddbarrow.FormDictionary, Type: ddbarrow.TypeAny,
		},
		{
			Name:  "matrix",
			Value: m,
			Form:  ddbarrow.FormMatrix, Type: ddbarrow.TypeLong,
			Want: ddbarrow.Tuple{m, ddbarrow.None{}, ddbarrow.None{}},
		},
		{Name: "table", Value: mustTable(), Form: ddbarrow.FormTable, Type: ddbarrow.TypeDictionary},
	}
}

// Check runs one case through session.
func Check(ctx context.Context, session *ddbarrow.Session, c Case) error {
	remote, err := session.Codec().Encode(c.Value)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if remote.Form() != c.Form || remote.Type() != c.Type {
		return fmt.Errorf("encoded as %s %s, want %s %s", remote.Form(), remote.Type(), c.Form, c.Type)
	}
	got, err := session.Call(ctx, "echo", c.Value)
	if err != nil {
		return err
	}
	want := c.Want
	if want == nil {
		want = c.Value
	}
	if !Equal(got, want) {
		return fmt.Errorf("round trip returned %s, want %s", got.Kind(), want.Kind())
	}
	return nil
}

// RunCases checks every case of Cases in order.
func RunCases(ctx context.Context, session *ddbarrow.Session) []Result {
	cases := Cases()
	results := make([]Result, len(cases))
	for i, c := range cases {
		results[i] = Result{Name: c.Name, Err: Check(ctx, session, c)}
	}
	return results
}

// Equal compares host values structurally. NaN equals NaN.
func Equal(a, b ddbarrow.HostValue) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case ddbarrow.None:
		return true
	case ddbarrow.Float:
		y := b.(ddbarrow.Float)
		if math.IsNaN(float64(x)) {
			return math.IsNaN(float64(y))
		}
		return x == y
	case ddbarrow.Bool, ddbarrow.Int, ddbarrow.Str, ddbarrow.DateTime:
		return a == b
	case ddbarrow.Bytes:
		return string(x) == string(b.(ddbarrow.Bytes))
	case ddbarrow.List:
		return equalSlices(x, b.(ddbarrow.List))
	case ddbarrow.Tuple:
		return equalSlices(x, b.(ddbarrow.Tuple))
	case *ddbarrow.Array:
		y := b.(*ddbarrow.Array)
		if x.DType() != y.DType() || !slices.Equal(x.Shape(), y.Shape()) {
			return false
		}
		for i := range x.Len() {
			if !Equal(x.At(i), y.At(i)) {
				return false
			}
		}
		return true
	case *ddbarrow.HostTable:
		y := b.(*ddbarrow.HostTable)
		if !slices.Equal(x.ColumnNames(), y.ColumnNames()) {
			return false
		}
		for i := range x.NumColumns() {
			if !Equal(x.ColumnAt(i), y.ColumnAt(i)) {
				return false
			}
		}
		return true
	case *ddbarrow.HostSet:
		y := b.(*ddbarrow.HostSet)
		if x.Len() != y.Len() {
			return false
		}
		for _, it := range x.Items() {
			if !y.Contains(it) {
				return false
			}
		}
		return true
	case *ddbarrow.Dict:
		y := b.(*ddbarrow.Dict)
		if x.Len() != y.Len() {
			return false
		}
		for i, k := range x.Keys() {
			v, ok := y.Get(k)
			if !ok || !Equal(x.Values()[i], v) {
				return false
			}
		}
		return true
	}
	return false
}

func equalSlices[S ~[]ddbarrow.HostValue](a, b S) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
