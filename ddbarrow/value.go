// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"math"
	"slices"
)

// Value is a remote (server-side) value. Concrete values are *Scalar,
// *Vector, *Matrix, *Set, *Dictionary and *Table.
type Value interface {
	Form() DataForm
	Type() DataType
	// IsNull reports whether the whole value is null.
	IsNull() bool
}

// Scalar is a single typed remote value.
type Scalar struct {
	typ DataType
	i   int64
	f   float64
	s   string
}

// Nothing returns the VOID scalar.
func Nothing() *Scalar { return &Scalar{typ: TypeVoid} }

func NewBool(v bool) *Scalar {
	if v {
		return &Scalar{typ: TypeBool, i: 1}
	}
	return &Scalar{typ: TypeBool}
}

func NewChar(v int8) *Scalar     { return &Scalar{typ: TypeChar, i: int64(v)} }
func NewShort(v int16) *Scalar   { return &Scalar{typ: TypeShort, i: int64(v)} }
func NewInt(v int32) *Scalar     { return &Scalar{typ: TypeInt, i: int64(v)} }
func NewLong(v int64) *Scalar    { return &Scalar{typ: TypeLong, i: v} }
func NewFloat(v float32) *Scalar { return &Scalar{typ: TypeFloat, f: float64(v)} }
func NewDouble(v float64) *Scalar {
	return &Scalar{typ: TypeDouble, f: v}
}
func NewString(v string) *Scalar { return &Scalar{typ: TypeString, s: v} }
func NewSymbol(v string) *Scalar { return &Scalar{typ: TypeSymbol, s: v} }

// NewTemporal builds a temporal scalar holding v ticks of t's unit since t's
// epoch, as stored by the server.
func NewTemporal(t DataType, v int64) (*Scalar, error) {
	if !t.IsTemporal() {
		return nil, &ConversionError{Op: "encode", Subject: t.String(), Message: "not a temporal type"}
	}
	return &Scalar{typ: t, i: v}, nil
}

// NullScalar returns the null scalar of type t.
func NullScalar(t DataType) *Scalar {
	s := &Scalar{typ: t}
	switch t {
	case TypeBool, TypeChar:
		s.i = nullInt8
	case TypeShort:
		s.i = nullInt16
	case TypeInt:
		s.i = nullInt32
	case TypeFloat:
		s.f = float64(NullFloat32)
	case TypeDouble:
		s.f = NullFloat64
	default:
		s.i = nullInt64
	}
	return s
}

func (s *Scalar) Form() DataForm { return FormScalar }
func (s *Scalar) Type() DataType { return s.typ }

func (s *Scalar) IsNull() bool {
	switch s.typ {
	case TypeVoid:
		return true
	case TypeBool, TypeChar:
		return s.i == nullInt8
	case TypeShort:
		return s.i == nullInt16
	case TypeInt:
		return s.i == nullInt32
	case TypeFloat:
		return isNullFloat32(float32(s.f))
	case TypeDouble:
		return isNullFloat64(s.f)
	case TypeString, TypeSymbol:
		return s.s == ""
	default:
		return s.i == nullInt64
	}
}

// Bool returns the value of a BOOL scalar.
func (s *Scalar) Bool() bool { return s.i != 0 }

// Int returns the raw integral storage (integral, bool and temporal types).
func (s *Scalar) Int() int64 { return s.i }

// Float returns the raw floating storage.
func (s *Scalar) Float() float64 { return s.f }

// Str returns the value of a STRING or SYMBOL scalar.
func (s *Scalar) Str() string { return s.s }

func (s *Scalar) String() string {
	if s.IsNull() {
		return fmt.Sprintf("%s(null)", s.typ)
	}
	switch s.typ.Category() {
	case CategoryFloating:
		return fmt.Sprintf("%s(%v)", s.typ, s.f)
	case CategoryLiteral:
		return fmt.Sprintf("%s(%q)", s.typ, s.s)
	default:
		return fmt.Sprintf("%s(%d)", s.typ, s.i)
	}
}

// Vector is a homogeneous remote vector. A Vector of form PAIR always holds
// exactly two elements.
type Vector struct {
	form DataForm
	typ  DataType
	i8   []int8
	i16  []int16
	i32  []int32
	i64  []int64
	f32  []float32
	f64  []float64
	str  []string
	any  []Value
}

// NewVector creates a vector of type t with length zero-valued elements.
func NewVector(t DataType, length, capacity int) (*Vector, error) {
	if !t.supported() {
		return nil, &ConversionError{Op: "encode", Subject: t.String(), Message: "unsupported vector type"}
	}
	if capacity < length {
		capacity = length
	}
	v := &Vector{form: FormVector, typ: t}
	switch t {
	case TypeVoid, TypeAny:
		v.any = make([]Value, length, capacity)
		if t == TypeVoid {
			for i := range v.any {
				v.any[i] = Nothing()
			}
		}
	case TypeBool, TypeChar:
		v.i8 = make([]int8, length, capacity)
	case TypeShort:
		v.i16 = make([]int16, length, capacity)
	case TypeInt:
		v.i32 = make([]int32, length, capacity)
	case TypeFloat:
		v.f32 = make([]float32, length, capacity)
	case TypeDouble:
		v.f64 = make([]float64, length, capacity)
	case TypeString, TypeSymbol:
		v.str = make([]string, length, capacity)
	default:
		v.i64 = make([]int64, length, capacity)
	}
	return v, nil
}

// NewPair builds a PAIR from two scalars of the same type.
func NewPair(first, second *Scalar) (*Vector, error) {
	if first.Type() != second.Type() {
		return nil, &ConversionError{Op: "encode", Subject: "PAIR",
			Message: fmt.Sprintf("mixed element types %s and %s", first.Type(), second.Type())}
	}
	v, err := NewVector(first.Type(), 0, 2)
	if err != nil {
		return nil, err
	}
	if err := v.Append(first); err != nil {
		return nil, err
	}
	if err := v.Append(second); err != nil {
		return nil, err
	}
	v.form = FormPair
	return v, nil
}

func (v *Vector) Form() DataForm { return v.form }
func (v *Vector) Type() DataType { return v.typ }
func (v *Vector) IsNull() bool   { return false }

// Len returns the number of elements.
func (v *Vector) Len() int {
	switch v.typ {
	case TypeVoid, TypeAny:
		return len(v.any)
	case TypeBool, TypeChar:
		return len(v.i8)
	case TypeShort:
		return len(v.i16)
	case TypeInt:
		return len(v.i32)
	case TypeFloat:
		return len(v.f32)
	case TypeDouble:
		return len(v.f64)
	case TypeString, TypeSymbol:
		return len(v.str)
	default:
		return len(v.i64)
	}
}

// IsNullAt reports whether element i holds its type's null sentinel.
func (v *Vector) IsNullAt(i int) bool {
	switch v.typ {
	case TypeVoid:
		return true
	case TypeAny:
		return v.any[i] == nil || v.any[i].IsNull()
	case TypeBool, TypeChar:
		return v.i8[i] == nullInt8
	case TypeShort:
		return v.i16[i] == nullInt16
	case TypeInt:
		return v.i32[i] == nullInt32
	case TypeFloat:
		return isNullFloat32(v.f32[i])
	case TypeDouble:
		return isNullFloat64(v.f64[i])
	case TypeString, TypeSymbol:
		return v.str[i] == ""
	default:
		return v.i64[i] == nullInt64
	}
}

// HasNull reports whether any element is null.
func (v *Vector) HasNull() bool {
	for i := range v.Len() {
		if v.IsNullAt(i) {
			return true
		}
	}
	return false
}

// SetNull stores the null sentinel at position i.
func (v *Vector) SetNull(i int) {
	switch v.typ {
	case TypeVoid, TypeAny:
		v.any[i] = Nothing()
	case TypeBool, TypeChar:
		v.i8[i] = nullInt8
	case TypeShort:
		v.i16[i] = nullInt16
	case TypeInt:
		v.i32[i] = nullInt32
	case TypeFloat:
		v.f32[i] = NullFloat32
	case TypeDouble:
		v.f64[i] = NullFloat64
	case TypeString, TypeSymbol:
		v.str[i] = ""
	default:
		v.i64[i] = nullInt64
	}
}

// AppendNull appends one null element.
func (v *Vector) AppendNull() {
	v.grow(1)
	v.SetNull(v.Len() - 1)
}

// grow extends the vector by n zero-valued elements.
func (v *Vector) grow(n int) {
	switch v.typ {
	case TypeVoid, TypeAny:
		v.any = append(v.any, make([]Value, n)...)
	case TypeBool, TypeChar:
		v.i8 = append(v.i8, make([]int8, n)...)
	case TypeShort:
		v.i16 = append(v.i16, make([]int16, n)...)
	case TypeInt:
		v.i32 = append(v.i32, make([]int32, n)...)
	case TypeFloat:
		v.f32 = append(v.f32, make([]float32, n)...)
	case TypeDouble:
		v.f64 = append(v.f64, make([]float64, n)...)
	case TypeString, TypeSymbol:
		v.str = append(v.str, make([]string, n)...)
	default:
		v.i64 = append(v.i64, make([]int64, n)...)
	}
}

// Append appends a scalar of the vector's type (or any value, for ANY
// vectors). A null scalar appends this vector's null.
func (v *Vector) Append(val Value) error {
	if v.typ == TypeAny {
		v.any = append(v.any, val)
		return nil
	}
	s, ok := val.(*Scalar)
	if !ok {
		return &ConversionError{Op: "encode", Subject: val.Form().String(),
			Message: fmt.Sprintf("cannot append %s to %s vector", val.Form(), v.typ)}
	}
	if s.IsNull() && !s.typ.IsLiteral() {
		v.AppendNull()
		return nil
	}
	if s.typ != v.typ && !(s.typ.IsLiteral() && v.typ.IsLiteral()) {
		return &ConversionError{Op: "encode", Subject: s.typ.String(),
			Message: fmt.Sprintf("cannot append %s scalar to %s vector", s.typ, v.typ)}
	}
	v.grow(1)
	v.setFromScalar(v.Len()-1, s)
	return nil
}

func (v *Vector) setFromScalar(i int, s *Scalar) {
	switch v.typ {
	case TypeVoid:
		v.any[i] = Nothing()
	case TypeBool, TypeChar:
		v.i8[i] = int8(s.i)
	case TypeShort:
		v.i16[i] = int16(s.i)
	case TypeInt:
		v.i32[i] = int32(s.i)
	case TypeFloat:
		v.f32[i] = float32(s.f)
	case TypeDouble:
		v.f64[i] = s.f
	case TypeString, TypeSymbol:
		v.str[i] = s.s
	default:
		v.i64[i] = s.i
	}
}

// Get returns element i. Typed vectors return a *Scalar; ANY vectors return
// the stored value.
func (v *Vector) Get(i int) Value {
	switch v.typ {
	case TypeVoid:
		return Nothing()
	case TypeAny:
		if v.any[i] == nil {
			return Nothing()
		}
		return v.any[i]
	case TypeBool, TypeChar:
		return &Scalar{typ: v.typ, i: int64(v.i8[i])}
	case TypeShort:
		return &Scalar{typ: v.typ, i: int64(v.i16[i])}
	case TypeInt:
		return &Scalar{typ: v.typ, i: int64(v.i32[i])}
	case TypeFloat:
		return &Scalar{typ: v.typ, f: float64(v.f32[i])}
	case TypeDouble:
		return &Scalar{typ: v.typ, f: v.f64[i]}
	case TypeString, TypeSymbol:
		return &Scalar{typ: v.typ, s: v.str[i]}
	default:
		return &Scalar{typ: v.typ, i: v.i64[i]}
	}
}

// copyCell copies element si of src into position di of v. Both vectors
// must share a type.
func (v *Vector) copyCell(di int, src *Vector, si int) {
	switch v.typ {
	case TypeVoid, TypeAny:
		v.any[di] = src.any[si]
	case TypeBool, TypeChar:
		v.i8[di] = src.i8[si]
	case TypeShort:
		v.i16[di] = src.i16[si]
	case TypeInt:
		v.i32[di] = src.i32[si]
	case TypeFloat:
		v.f32[di] = src.f32[si]
	case TypeDouble:
		v.f64[di] = src.f64[si]
	case TypeString, TypeSymbol:
		v.str[di] = src.str[si]
	default:
		v.i64[di] = src.i64[si]
	}
}

// Raw buffer accessors. Each returns the live backing slice for the matching
// types and nil otherwise.

func (v *Vector) Int8s() []int8       { return v.i8 }
func (v *Vector) Int16s() []int16     { return v.i16 }
func (v *Vector) Int32s() []int32     { return v.i32 }
func (v *Vector) Int64s() []int64     { return v.i64 }
func (v *Vector) Float32s() []float32 { return v.f32 }
func (v *Vector) Float64s() []float64 { return v.f64 }
func (v *Vector) Strings() []string   { return v.str }
func (v *Vector) Values() []Value     { return v.any }

// NullFill replaces every null element with fill, converted to the vector's
// storage type. Temporal and literal vectors are left untouched.
func (v *Vector) NullFill(fill float64) {
	if v.typ.IsTemporal() || v.typ.IsLiteral() || v.typ == TypeAny || v.typ == TypeVoid {
		return
	}
	for i := range v.Len() {
		if !v.IsNullAt(i) {
			continue
		}
		switch v.typ {
		case TypeBool:
			if fill != 0 {
				v.i8[i] = 1
			} else {
				v.i8[i] = 0
			}
		case TypeChar:
			v.i8[i] = int8(fill)
		case TypeShort:
			v.i16[i] = int16(fill)
		case TypeInt:
			v.i32[i] = int32(fill)
		case TypeLong:
			v.i64[i] = int64(fill)
		case TypeFloat:
			v.f32[i] = float32(fill)
		case TypeDouble:
			v.f64[i] = fill
		}
	}
}

// Matrix is a column-major remote matrix with optional labels.
type Matrix struct {
	data      *Vector
	rows      int
	cols      int
	rowLabels Value
	colLabels Value
}

// NewMatrix creates a rows x cols matrix of type t with zero-valued cells.
func NewMatrix(t DataType, rows, cols int) (*Matrix, error) {
	if t == TypeAny {
		return nil, &ConversionError{Op: "encode", Subject: "MATRIX", Message: "mixed-type matrix is not supported"}
	}
	data, err := NewVector(t, rows*cols, rows*cols)
	if err != nil {
		return nil, err
	}
	return &Matrix{data: data, rows: rows, cols: cols}, nil
}

func (m *Matrix) Form() DataForm { return FormMatrix }
func (m *Matrix) Type() DataType { return m.data.typ }
func (m *Matrix) IsNull() bool   { return false }

func (m *Matrix) Rows() int { return m.rows }
func (m *Matrix) Cols() int { return m.cols }

// Data returns the column-major cell vector.
func (m *Matrix) Data() *Vector { return m.data }

// At returns the cell at (row, col).
func (m *Matrix) At(row, col int) Value { return m.data.Get(col*m.rows + row) }

// setCell copies src[si] into (row, col).
func (m *Matrix) setCell(row, col int, src *Vector, si int) {
	m.data.copyCell(col*m.rows+row, src, si)
}

func (m *Matrix) RowLabels() Value        { return m.rowLabels }
func (m *Matrix) ColumnLabels() Value     { return m.colLabels }
func (m *Matrix) SetRowLabels(v Value)    { m.rowLabels = v }
func (m *Matrix) SetColumnLabels(v Value) { m.colLabels = v }

// Set is a remote set backed by a key vector.
type Set struct {
	keys *Vector
}

// NewSet wraps keys as a SET.
func NewSet(keys *Vector) *Set { return &Set{keys: keys} }

func (s *Set) Form() DataForm { return FormSet }
func (s *Set) Type() DataType { return s.keys.typ }
func (s *Set) IsNull() bool   { return false }
func (s *Set) Keys() *Vector  { return s.keys }
func (s *Set) Len() int       { return s.keys.Len() }

// Dictionary is a remote dictionary of parallel key and value vectors.
type Dictionary struct {
	keys   *Vector
	values *Vector
}

// NewDictionary pairs keys with values. Keys must be literal or integral.
func NewDictionary(keys, values *Vector) (*Dictionary, error) {
	if err := checkKeyType(keys.typ); err != nil {
		return nil, err
	}
	if keys.Len() != values.Len() {
		return nil, &ConversionError{Op: "encode", Subject: "DICTIONARY",
			Message: fmt.Sprintf("key count %d does not match value count %d", keys.Len(), values.Len())}
	}
	return &Dictionary{keys: keys, values: values}, nil
}

func (d *Dictionary) Form() DataForm    { return FormDictionary }
func (d *Dictionary) Type() DataType    { return d.values.typ }
func (d *Dictionary) KeyType() DataType { return d.keys.typ }
func (d *Dictionary) IsNull() bool      { return false }
func (d *Dictionary) Keys() *Vector     { return d.keys }
func (d *Dictionary) Values() *Vector   { return d.values }
func (d *Dictionary) Len() int          { return d.keys.Len() }

func checkKeyType(t DataType) error {
	if t.IsLiteral() || t.Category() == CategoryIntegral {
		return nil
	}
	return &ConversionError{Op: "encode", Subject: t.String(),
		Message: "dictionary keys must be STRING, SYMBOL or an integral type"}
}

// Table is an ordered sequence of named, equally long columns.
type Table struct {
	names []string
	cols  []*Vector
}

// NewTable assembles a table. Column lengths must agree.
func NewTable(names []string, cols []*Vector) (*Table, error) {
	if len(names) != len(cols) {
		return nil, &ConversionError{Op: "encode", Subject: "TABLE",
			Message: fmt.Sprintf("%d names for %d columns", len(names), len(cols))}
	}
	for i, c := range cols {
		if c.Len() != cols[0].Len() {
			return nil, &ConversionError{Op: "encode", Subject: "TABLE",
				Message: fmt.Sprintf("column %q has %d rows, expected %d", names[i], c.Len(), cols[0].Len())}
		}
	}
	return &Table{names: names, cols: cols}, nil
}

func (t *Table) Form() DataForm { return FormTable }
func (t *Table) Type() DataType { return TypeDictionary }
func (t *Table) IsNull() bool   { return false }

func (t *Table) NumColumns() int         { return len(t.cols) }
func (t *Table) ColumnName(i int) string { return t.names[i] }
func (t *Table) Column(i int) *Vector    { return t.cols[i] }

// NumRows returns the shared column length.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// Clone returns a deep copy of v. Null policies fill vectors in place, so a
// value that is decoded more than once must be cloned first.
func (v *Vector) Clone() *Vector {
	c := &Vector{
		form: v.form,
		typ:  v.typ,
		i8:   slices.Clone(v.i8),
		i16:  slices.Clone(v.i16),
		i32:  slices.Clone(v.i32),
		i64:  slices.Clone(v.i64),
		f32:  slices.Clone(v.f32),
		f64:  slices.Clone(v.f64),
		str:  slices.Clone(v.str),
	}
	if v.any != nil {
		c.any = make([]Value, len(v.any))
		for i, e := range v.any {
			c.any[i] = CloneValue(e)
		}
	}
	return c
}

// CloneValue returns a deep copy of any remote value. Nil stays nil.
func CloneValue(v Value) Value {
	switch x := v.(type) {
	case nil:
		return nil
	case *Scalar:
		c := *x
		return &c
	case *Vector:
		return x.Clone()
	case *Matrix:
		return &Matrix{
			data:      x.data.Clone(),
			rows:      x.rows,
			cols:      x.cols,
			rowLabels: CloneValue(x.rowLabels),
			colLabels: CloneValue(x.colLabels),
		}
	case *Set:
		return &Set{keys: x.keys.Clone()}
	case *Dictionary:
		return &Dictionary{keys: x.keys.Clone(), values: x.values.Clone()}
	case *Table:
		cols := make([]*Vector, len(x.cols))
		for i, col := range x.cols {
			cols[i] = col.Clone()
		}
		return &Table{names: slices.Clone(x.names), cols: cols}
	}
	return v
}

// fitsInt reports whether v fits in the storage of integral type t without
// colliding with its null sentinel.
func fitsInt(t DataType, v int64) bool {
	switch t {
	case TypeChar:
		return v > math.MinInt8 && v <= math.MaxInt8
	case TypeShort:
		return v > math.MinInt16 && v <= math.MaxInt16
	case TypeInt:
		return v > math.MinInt32 && v <= math.MaxInt32
	default:
		return v != math.MinInt64
	}
}
