// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow/array"
)

func encodeErr(subject, format string, args ...any) error {
	return &ConversionError{Op: "encode", Subject: subject, Message: fmt.Sprintf(format, args...)}
}

func encodeValue(h HostValue) (Value, error) {
	if isNone(h) {
		return NullScalar(TypeDouble), nil
	}
	switch x := h.(type) {
	case Bool:
		return NewBool(bool(x)), nil
	case Int:
		return NewLong(int64(x)), nil
	case Float:
		if isHostNaN(float64(x)) {
			return NullScalar(TypeDouble), nil
		}
		return NewDouble(float64(x)), nil
	case Str:
		return NewString(string(x)), nil
	case Bytes:
		return NewString(string(x)), nil
	case DateTime:
		return encodeDateTime(x)
	case *Array:
		switch x.NDim() {
		case 1:
			return encodeArray(x)
		case 2:
			return encodeMatrix(x)
		}
		return nil, encodeErr("Array", "array with %d dimensions is not supported", x.NDim())
	case *HostTable:
		return encodeTable(x)
	case List:
		return encodeSequence([]HostValue(x))
	case Tuple:
		return encodeSequence([]HostValue(x))
	case *HostSet:
		c, err := classify(x.items)
		if err != nil {
			return nil, err
		}
		keys, err := c.vector()
		if err != nil {
			return nil, err
		}
		return NewSet(keys), nil
	case *Dict:
		return encodeDict(x)
	}
	return nil, encodeErr(fmt.Sprintf("%T", h), "unsupported host type")
}

func encodeDateTime(d DateTime) (*Scalar, error) {
	t, ok := d.Unit.RemoteType()
	if !ok {
		return nil, encodeErr("DateTime", "unsupported time unit %s", d.Unit)
	}
	return NewTemporal(t, toRemoteCount(d.Unit, d.Count))
}

func encodeSequence(items []HostValue) (*Vector, error) {
	c, err := classify(items)
	if err != nil {
		return nil, err
	}
	return c.vector()
}

// classified is the outcome of encoding and classifying a collection. typ
// is TypeAny when element types or forms are mixed.
type classified struct {
	vals []Value
	typ  DataType
}

// classify encodes every element and infers the collection's element type.
// Null scalars do not take part in the inference.
func classify(items []HostValue) (classified, error) {
	c := classified{vals: make([]Value, len(items)), typ: TypeAny}
	if len(items) == 0 {
		return c, nil
	}
	types := make(map[DataType]struct{})
	forms := make(map[DataForm]struct{})
	for i, it := range items {
		ev, err := encodeValue(it)
		if err != nil {
			return classified{}, err
		}
		c.vals[i] = ev
		if ev.Form() == FormScalar && ev.IsNull() {
			continue
		}
		types[ev.Type()] = struct{}{}
		forms[ev.Form()] = struct{}{}
	}
	if len(types) == 0 {
		return classified{}, encodeErr("collection", "cannot infer a type from an all-null collection")
	}
	if len(types) > 1 || len(forms) > 1 {
		return c, nil
	}
	if _, scalar := forms[FormScalar]; !scalar {
		return c, nil
	}
	for t := range types {
		c.typ = t
	}
	return c, nil
}

// vector builds the classified elements into a vector, appending nulls as
// the element type's sentinel.
func (c classified) vector() (*Vector, error) {
	v, err := NewVector(c.typ, 0, len(c.vals))
	if err != nil {
		return nil, err
	}
	for _, ev := range c.vals {
		if c.typ != TypeAny && ev.IsNull() {
			v.AppendNull()
			continue
		}
		if err := v.Append(ev); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func encodeDict(d *Dict) (*Dictionary, error) {
	if d.Len() == 0 {
		keys, _ := NewVector(TypeString, 0, 0)
		values, _ := NewVector(TypeAny, 0, 0)
		return NewDictionary(keys, values)
	}
	kc, err := classify(d.keys)
	if err != nil {
		return nil, err
	}
	if err := checkKeyType(kc.typ); err != nil {
		return nil, encodeErr("Dict", "unsupported key type %s", kc.typ)
	}
	vc, err := classify(d.values)
	if err != nil {
		return nil, err
	}
	keys, err := kc.vector()
	if err != nil {
		return nil, err
	}
	values, err := vc.vector()
	if err != nil {
		return nil, err
	}
	return NewDictionary(keys, values)
}

// encodeArray encodes a 1-D host array. Fixed-width buffers are appended in
// bulk and then scanned for NaN, NaT and Arrow nulls.
func encodeArray(a *Array) (*Vector, error) {
	n := a.Len()
	var v *Vector
	switch a.dtype.Kind {
	case ElemObject:
		return encodeObjects(a.objs)
	case ElemBool:
		v = &Vector{form: FormVector, typ: TypeBool, i8: make([]int8, n)}
		src := a.data.(*array.Boolean)
		for i := range n {
			if src.Value(i) {
				v.i8[i] = 1
			}
		}
	case ElemInt8:
		v = &Vector{form: FormVector, typ: TypeChar, i8: append(make([]int8, 0, n), a.data.(*array.Int8).Int8Values()...)}
	case ElemInt16:
		v = &Vector{form: FormVector, typ: TypeShort, i16: append(make([]int16, 0, n), a.data.(*array.Int16).Int16Values()...)}
	case ElemInt32:
		v = &Vector{form: FormVector, typ: TypeInt, i32: append(make([]int32, 0, n), a.data.(*array.Int32).Int32Values()...)}
	case ElemInt64:
		v = &Vector{form: FormVector, typ: TypeLong, i64: append(make([]int64, 0, n), a.data.(*array.Int64).Int64Values()...)}
	case ElemFloat32:
		v = &Vector{form: FormVector, typ: TypeFloat, f32: append(make([]float32, 0, n), a.data.(*array.Float32).Float32Values()...)}
		for i, x := range v.f32 {
			if isHostNaN32(x) {
				v.f32[i] = NullFloat32
			}
		}
	case ElemFloat64:
		v = &Vector{form: FormVector, typ: TypeDouble, f64: append(make([]float64, 0, n), a.data.(*array.Float64).Float64Values()...)}
		for i, x := range v.f64 {
			if isHostNaN(x) {
				v.f64[i] = NullFloat64
			}
		}
	case ElemDateTime:
		t, ok := a.dtype.Unit.RemoteType()
		if !ok {
			return nil, encodeErr(a.dtype.String(), "unsupported time unit %s", a.dtype.Unit)
		}
		v = &Vector{form: FormVector, typ: t, i64: append(make([]int64, 0, n), a.data.(*array.Int64).Int64Values()...)}
		for i, x := range v.i64 {
			v.i64[i] = toRemoteCount(a.dtype.Unit, x)
		}
	default:
		return nil, encodeErr(a.dtype.String(), "unsupported array dtype")
	}
	if a.data != nil && a.data.NullN() > 0 {
		for i := range n {
			if a.data.IsNull(i) {
				v.SetNull(i)
			}
		}
	}
	return v, nil
}

// encodeObjects produces a STRING vector when every element is a Str and an
// ANY vector of encoded elements otherwise.
func encodeObjects(objs []HostValue) (*Vector, error) {
	allStr := true
	for _, o := range objs {
		if _, ok := o.(Str); !ok {
			allStr = false
			break
		}
	}
	if allStr {
		v := &Vector{form: FormVector, typ: TypeString, str: make([]string, len(objs))}
		for i, o := range objs {
			v.str[i] = string(o.(Str))
		}
		return v, nil
	}
	v := &Vector{form: FormVector, typ: TypeAny, any: make([]Value, len(objs))}
	for i, o := range objs {
		ev, err := encodeValue(o)
		if err != nil {
			return nil, err
		}
		v.any[i] = ev
	}
	return v, nil
}

// encodeMatrix flattens a row-major 2-D array column by column, encodes the
// flat vector and copies it cell by cell into a matrix.
func encodeMatrix(a *Array) (*Matrix, error) {
	rows, cols := a.shape[0], a.shape[1]
	flat := flipArray(defaultMem, a, rows, cols, []int{rows * cols})
	defer flat.Release()
	vec, err := encodeArray(flat)
	if err != nil {
		return nil, err
	}
	if vec.typ == TypeAny {
		return nil, encodeErr("Array", "mixed-type matrix is not supported")
	}
	m, err := NewMatrix(vec.typ, rows, cols)
	if err != nil {
		return nil, err
	}
	// flipArray drops the validity bitmap; nulls are read from the source.
	masked := a.data != nil && a.data.NullN() > 0
	for c := range cols {
		for r := range rows {
			m.setCell(r, c, vec, c*rows+r)
			if masked && a.data.IsNull(r*cols+c) {
				m.data.SetNull(c*rows + r)
			}
		}
	}
	return m, nil
}

func encodeTable(t *HostTable) (*Table, error) {
	cols := make([]*Vector, len(t.cols))
	for i, col := range t.cols {
		if col.NDim() != 1 {
			return nil, encodeErr("Table", "column %q must be 1-D", t.names[i])
		}
		v, err := encodeArray(col)
		if err != nil {
			return nil, err
		}
		if typ, ok := t.types[t.names[i]]; ok {
			if v, err = castVector(v, typ); err != nil {
				return nil, fmt.Errorf("column %q: %w", t.names[i], err)
			}
		}
		cols[i] = v
	}
	names := make([]string, len(t.names))
	copy(names, t.names)
	return NewTable(names, cols)
}

func (v *Vector) intAt(i int) int64 {
	switch v.typ {
	case TypeBool, TypeChar:
		return int64(v.i8[i])
	case TypeShort:
		return int64(v.i16[i])
	case TypeInt:
		return int64(v.i32[i])
	default:
		return v.i64[i]
	}
}

func (v *Vector) setInt(i int, x int64) {
	switch v.typ {
	case TypeBool, TypeChar:
		v.i8[i] = int8(x)
	case TypeShort:
		v.i16[i] = int16(x)
	case TypeInt:
		v.i32[i] = int32(x)
	default:
		v.i64[i] = x
	}
}

// castVector converts v to type to. Numeric and temporal conversions are
// checked element by element; lossy or out-of-range values fail.
func castVector(v *Vector, to DataType) (*Vector, error) {
	if v.typ == to {
		return v, nil
	}
	from := v.typ
	bad := func() error {
		return encodeErr(from.String(), "cannot cast %s to %s", from, to)
	}
	out, err := NewVector(to, v.Len(), v.Len())
	if err != nil {
		return nil, err
	}
	if to.IsLiteral() {
		if !from.IsLiteral() {
			return nil, bad()
		}
		copy(out.str, v.str)
		return out, nil
	}
	numeric := func(t DataType) bool {
		c := t.Category()
		return c == CategoryLogical || c == CategoryIntegral || c == CategoryFloating
	}
	switch {
	case to.IsTemporal():
		if !from.IsTemporal() && from.Category() != CategoryIntegral {
			return nil, bad()
		}
	case numeric(to):
		if !numeric(from) && !from.IsTemporal() {
			return nil, bad()
		}
	default:
		return nil, bad()
	}

	for i := range v.Len() {
		if v.IsNullAt(i) {
			out.SetNull(i)
			continue
		}
		switch {
		case to.IsTemporal() && from.IsTemporal():
			src, _ := UnitOf(from)
			dst, _ := UnitOf(to)
			t, _ := DateTime{Unit: src, Count: toHostCount(src, v.i64[i])}.Time()
			out.i64[i] = toRemoteCount(dst, DateTimeOf(t, dst).Count)
		case to.Category() == CategoryFloating:
			f := float64(v.intAt(i))
			if from.Category() == CategoryFloating {
				f = v.floatAt(i)
			}
			if to == TypeFloat {
				if math.Abs(f) > math.MaxFloat32 {
					return nil, encodeErr(from.String(), "value %v at row %d overflows %s", f, i, to)
				}
				out.f32[i] = float32(f)
			} else {
				out.f64[i] = f
			}
		default:
			x := v.intAt(i)
			if from.Category() == CategoryFloating {
				f := v.floatAt(i)
				if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
					return nil, encodeErr(from.String(), "value %v at row %d is not representable as %s", f, i, to)
				}
				x = int64(f)
			}
			if to == TypeBool {
				if x != 0 {
					x = 1
				}
			} else if !fitsInt(to, x) {
				return nil, encodeErr(from.String(), "value %d at row %d overflows %s", x, i, to)
			}
			out.setInt(i, x)
		}
	}
	return out, nil
}

func (v *Vector) floatAt(i int) float64 {
	if v.typ == TypeFloat {
		return float64(v.f32[i])
	}
	return v.f64[i]
}
