// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// decoder carries the policy read once at the start of a top-level decode.
type decoder struct {
	policy NullPolicy
	mem    memory.Allocator
}

func decodeErr(subject, format string, args ...any) error {
	return &ConversionError{Op: "decode", Subject: subject, Message: fmt.Sprintf(format, args...)}
}

func (d *decoder) value(v Value) (HostValue, error) {
	if v == nil {
		return None{}, nil
	}
	switch x := v.(type) {
	case *Scalar:
		return d.scalar(x)
	case *Vector:
		if x.form == FormPair {
			return d.pair(x)
		}
		return d.vector(x)
	case *Matrix:
		return d.matrix(x)
	case *Set:
		return d.set(x)
	case *Dictionary:
		return d.dictionary(x)
	case *Table:
		return d.table(x)
	}
	return nil, decodeErr(v.Form().String(), "unsupported form %s", v.Form())
}

func (d *decoder) scalar(s *Scalar) (HostValue, error) {
	if !s.typ.supported() || s.typ == TypeAny {
		return nil, decodeErr(s.typ.String(), "unsupported scalar type %s", s.typ)
	}
	if s.IsNull() {
		return None{}, nil
	}
	switch s.typ.Category() {
	case CategoryLogical:
		return Bool(s.i != 0), nil
	case CategoryIntegral:
		return Int(s.i), nil
	case CategoryFloating:
		return Float(s.f), nil
	case CategoryLiteral:
		return Str(s.s), nil
	case CategoryTemporal:
		unit, _ := UnitOf(s.typ)
		return DateTime{Unit: unit, Count: toHostCount(unit, s.i)}, nil
	}
	return None{}, nil
}

func (d *decoder) pair(v *Vector) (HostValue, error) {
	out := make(List, v.Len())
	for i := range out {
		hv, err := d.value(v.Get(i))
		if err != nil {
			return nil, err
		}
		out[i] = hv
	}
	return out, nil
}

// vector runs the null policy, bulk copies the buffer into Arrow memory and
// then rewrites sentinels.
func (d *decoder) vector(v *Vector) (*Array, error) {
	if !v.typ.supported() {
		return nil, decodeErr(v.typ.String(), "unsupported vector type %s", v.typ)
	}
	d.policy.Apply(v)

	n := v.Len()
	switch v.typ {
	case TypeVoid:
		objs := make([]HostValue, n)
		for i := range objs {
			objs[i] = None{}
		}
		return ObjectArray(objs...), nil
	case TypeAny:
		objs := make([]HostValue, n)
		for i := range objs {
			hv, err := d.value(v.any[i])
			if err != nil {
				return nil, err
			}
			objs[i] = hv
		}
		return ObjectArray(objs...), nil
	case TypeString, TypeSymbol:
		objs := make([]HostValue, n)
		for i, s := range v.str {
			objs[i] = Str(s)
		}
		return ObjectArray(objs...), nil
	case TypeFloat:
		arr := float32Array(d.mem, v.f32)
		vals := arr.(*array.Float32).Float32Values()
		for i, x := range vals {
			if isNullFloat32(x) {
				vals[i] = float32(hostNaN())
			}
		}
		return wrap(DTypeFloat32, nil, arr), nil
	case TypeDouble:
		arr := float64Array(d.mem, v.f64)
		vals := arr.(*array.Float64).Float64Values()
		for i, x := range vals {
			if isNullFloat64(x) {
				vals[i] = hostNaN()
			}
		}
		return wrap(DTypeFloat64, nil, arr), nil
	}

	if v.typ.IsTemporal() {
		unit, _ := UnitOf(v.typ)
		arr := int64Array(d.mem, v.i64)
		vals := arr.(*array.Int64).Int64Values()
		for i, x := range vals {
			vals[i] = toHostCount(unit, x)
		}
		return wrap(DTypeDateTime(unit), nil, arr), nil
	}

	if v.HasNull() {
		return d.widen(v), nil
	}
	switch v.typ {
	case TypeBool:
		return wrap(DTypeBool, nil, boolArray(d.mem, v.i8)), nil
	case TypeChar:
		return wrap(DTypeInt8, nil, int8Array(d.mem, v.i8)), nil
	case TypeShort:
		return wrap(DTypeInt16, nil, int16Array(d.mem, v.i16)), nil
	case TypeInt:
		return wrap(DTypeInt32, nil, int32Array(d.mem, v.i32)), nil
	default:
		return wrap(DTypeInt64, nil, int64Array(d.mem, v.i64)), nil
	}
}

// widen converts an integral or bool vector with nulls to float64, writing
// NaN at null positions.
func (d *decoder) widen(v *Vector) *Array {
	out := make([]float64, v.Len())
	for i := range out {
		if v.IsNullAt(i) {
			out[i] = hostNaN()
			continue
		}
		switch v.typ {
		case TypeBool, TypeChar:
			out[i] = float64(v.i8[i])
		case TypeShort:
			out[i] = float64(v.i16[i])
		case TypeInt:
			out[i] = float64(v.i32[i])
		default:
			out[i] = float64(v.i64[i])
		}
	}
	return wrap(DTypeFloat64, nil, float64Array(d.mem, out))
}

func (d *decoder) table(t *Table) (*HostTable, error) {
	out := NewHostTable()
	for i, col := range t.cols {
		arr, err := d.vector(col)
		if err != nil {
			out.Release()
			return nil, err
		}
		if err := out.AddColumn(t.names[i], arr); err != nil {
			out.Release()
			return nil, decodeErr("TABLE", "%v", err)
		}
	}
	return out, nil
}

func (d *decoder) set(s *Set) (*HostSet, error) {
	keys, err := d.vector(s.keys)
	if err != nil {
		return nil, err
	}
	defer keys.Release()
	out, _ := NewHostSet()
	for i := range keys.Len() {
		if err := out.Add(restoreInt(s.keys.typ, keys.At(i))); err != nil {
			return nil, decodeErr("SET", "%v", err)
		}
	}
	return out, nil
}

// restoreInt turns an integral member widened to Float by a null back into
// an Int. The null itself stays NaN.
func restoreInt(typ DataType, k HostValue) HostValue {
	if typ.Category() != CategoryIntegral {
		return k
	}
	if f, ok := k.(Float); ok && !math.IsNaN(float64(f)) {
		return Int(f)
	}
	return k
}

func (d *decoder) dictionary(dict *Dictionary) (*Dict, error) {
	if err := checkKeyType(dict.keys.typ); err != nil {
		return nil, decodeErr("DICTIONARY", "unsupported key type %s", dict.keys.typ)
	}
	keys, err := d.vector(dict.keys)
	if err != nil {
		return nil, err
	}
	defer keys.Release()
	values, err := d.vector(dict.values)
	if err != nil {
		return nil, err
	}
	defer values.Release()

	out := NewDict()
	for i := range keys.Len() {
		if err := out.Set(restoreInt(dict.keys.typ, keys.At(i)), values.At(i)); err != nil {
			return nil, decodeErr("DICTIONARY", "%v", err)
		}
	}
	return out, nil
}

func (d *decoder) matrix(m *Matrix) (HostValue, error) {
	flat, err := d.vector(m.data)
	if err != nil {
		return nil, err
	}
	defer flat.Release()
	grid := flipArray(d.mem, flat, m.cols, m.rows, []int{m.rows, m.cols})

	rowLabels, err := d.label(m.rowLabels)
	if err != nil {
		grid.Release()
		return nil, err
	}
	colLabels, err := d.label(m.colLabels)
	if err != nil {
		grid.Release()
		return nil, err
	}
	return Tuple{grid, rowLabels, colLabels}, nil
}

func (d *decoder) label(v Value) (HostValue, error) {
	if v == nil {
		return None{}, nil
	}
	return d.value(v)
}

// flipMajor reads src as an outer x inner row-major grid and returns the
// inner x outer row-major grid of the same cells.
func flipMajor[T any](src []T, outer, inner int) []T {
	out := make([]T, len(src))
	for i := range outer {
		for j := range inner {
			out[j*outer+i] = src[i*inner+j]
		}
	}
	return out
}

// flipArray applies flipMajor to a's storage and returns the result with
// the given shape.
func flipArray(mem memory.Allocator, a *Array, outer, inner int, shape []int) *Array {
	var data arrow.Array
	switch arr := a.data.(type) {
	case *array.Boolean:
		src := make([]int8, arr.Len())
		for i := range src {
			if arr.Value(i) {
				src[i] = 1
			}
		}
		data = boolArray(mem, flipMajor(src, outer, inner))
	case *array.Int8:
		data = int8Array(mem, flipMajor(arr.Int8Values(), outer, inner))
	case *array.Int16:
		data = int16Array(mem, flipMajor(arr.Int16Values(), outer, inner))
	case *array.Int32:
		data = int32Array(mem, flipMajor(arr.Int32Values(), outer, inner))
	case *array.Int64:
		data = int64Array(mem, flipMajor(arr.Int64Values(), outer, inner))
	case *array.Float32:
		data = float32Array(mem, flipMajor(arr.Float32Values(), outer, inner))
	case *array.Float64:
		data = float64Array(mem, flipMajor(arr.Float64Values(), outer, inner))
	default:
		return &Array{dtype: a.dtype, shape: shape, objs: flipMajor(a.objs, outer, inner)}
	}
	return &Array{dtype: a.dtype, shape: shape, data: data}
}
