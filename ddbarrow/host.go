// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// HostKind identifies the variant of a HostValue.
type HostKind int8

const (
	KindNone HostKind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindArray
	KindTable
	KindList
	KindTuple
	KindSet
	KindDict
	KindDateTime
)

var hostKindNames = [...]string{
	KindNone:     "None",
	KindBool:     "Bool",
	KindInt:      "Int",
	KindFloat:    "Float",
	KindStr:      "Str",
	KindBytes:    "Bytes",
	KindArray:    "Array",
	KindTable:    "Table",
	KindList:     "List",
	KindTuple:    "Tuple",
	KindSet:      "Set",
	KindDict:     "Dict",
	KindDateTime: "DateTime",
}

func (k HostKind) String() string {
	if int(k) >= 0 && int(k) < len(hostKindNames) {
		return hostKindNames[k]
	}
	return "HostKind(" + strconv.Itoa(int(k)) + ")"
}

// HostValue is a client-side dynamic value. The set of implementations is
// closed: None, Bool, Int, Float, Str, Bytes, *Array, *HostTable, List,
// Tuple, *HostSet, *Dict and DateTime.
type HostValue interface {
	Kind() HostKind
	hostValue()
}

type (
	None  struct{}
	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte
	List  []HostValue
	Tuple []HostValue
)

func (None) Kind() HostKind  { return KindNone }
func (Bool) Kind() HostKind  { return KindBool }
func (Int) Kind() HostKind   { return KindInt }
func (Float) Kind() HostKind { return KindFloat }
func (Str) Kind() HostKind   { return KindStr }
func (Bytes) Kind() HostKind { return KindBytes }
func (List) Kind() HostKind  { return KindList }
func (Tuple) Kind() HostKind { return KindTuple }

func (None) hostValue()  {}
func (Bool) hostValue()  {}
func (Int) hostValue()   {}
func (Float) hostValue() {}
func (Str) hostValue()   {}
func (Bytes) hostValue() {}
func (List) hostValue()  {}
func (Tuple) hostValue() {}

// isNone reports whether v is nil or None.
func isNone(v HostValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(None)
	return ok
}

// ElemKind is the element kind of a typed host array.
type ElemKind int8

const (
	ElemBool ElemKind = iota
	ElemInt8
	ElemInt16
	ElemInt32
	ElemInt64
	ElemFloat32
	ElemFloat64
	ElemDateTime
	ElemObject
)

func (k ElemKind) String() string {
	switch k {
	case ElemBool:
		return "bool"
	case ElemInt8:
		return "int8"
	case ElemInt16:
		return "int16"
	case ElemInt32:
		return "int32"
	case ElemInt64:
		return "int64"
	case ElemFloat32:
		return "float32"
	case ElemFloat64:
		return "float64"
	case ElemDateTime:
		return "datetime"
	case ElemObject:
		return "object"
	default:
		return "elem(" + strconv.Itoa(int(k)) + ")"
	}
}

// DType is the element type tag of a host array. Unit is set only for
// ElemDateTime.
type DType struct {
	Kind ElemKind
	Unit TimeUnit
}

func (d DType) String() string {
	if d.Kind == ElemDateTime {
		return "datetime[" + d.Unit.String() + "]"
	}
	return d.Kind.String()
}

// Commonly used dtypes.
var (
	DTypeBool    = DType{Kind: ElemBool}
	DTypeInt8    = DType{Kind: ElemInt8}
	DTypeInt16   = DType{Kind: ElemInt16}
	DTypeInt32   = DType{Kind: ElemInt32}
	DTypeInt64   = DType{Kind: ElemInt64}
	DTypeFloat32 = DType{Kind: ElemFloat32}
	DTypeFloat64 = DType{Kind: ElemFloat64}
	DTypeObject  = DType{Kind: ElemObject}
)

// DTypeDateTime returns the datetime dtype with the given unit.
func DTypeDateTime(unit TimeUnit) DType { return DType{Kind: ElemDateTime, Unit: unit} }

// arrowType returns the Arrow storage type for fixed-width dtypes.
func (d DType) arrowType() arrow.DataType {
	switch d.Kind {
	case ElemBool:
		return arrow.FixedWidthTypes.Boolean
	case ElemInt8:
		return arrow.PrimitiveTypes.Int8
	case ElemInt16:
		return arrow.PrimitiveTypes.Int16
	case ElemInt32:
		return arrow.PrimitiveTypes.Int32
	case ElemInt64, ElemDateTime:
		return arrow.PrimitiveTypes.Int64
	case ElemFloat32:
		return arrow.PrimitiveTypes.Float32
	case ElemFloat64:
		return arrow.PrimitiveTypes.Float64
	default:
		return nil
	}
}

// Array is a homogeneous typed host array of one or two dimensions, stored
// row-major. Fixed-width dtypes live in an Arrow array; object dtype holds
// host values directly.
type Array struct {
	dtype DType
	shape []int
	data  arrow.Array
	objs  []HostValue
}

func (*Array) Kind() HostKind { return KindArray }
func (*Array) hostValue()     {}

func shapeLen(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// NewArray wraps a fixed-width Arrow array. The array is retained; shape
// defaults to one dimension when nil.
func NewArray(dtype DType, shape []int, data arrow.Array) (*Array, error) {
	if dtype.Kind == ElemObject {
		return nil, fmt.Errorf("ddbarrow: object arrays are built with NewObjectArray")
	}
	if shape == nil {
		shape = []int{data.Len()}
	}
	if shapeLen(shape) != data.Len() {
		return nil, fmt.Errorf("ddbarrow: shape %v does not match %d elements", shape, data.Len())
	}
	if !arrow.TypeEqual(data.DataType(), dtype.arrowType()) {
		return nil, fmt.Errorf("ddbarrow: arrow type %s does not store dtype %s", data.DataType(), dtype)
	}
	data.Retain()
	return &Array{dtype: dtype, shape: shape, data: data}, nil
}

// NewObjectArray builds an object-dtype array.
func NewObjectArray(shape []int, objs []HostValue) (*Array, error) {
	if shape == nil {
		shape = []int{len(objs)}
	}
	if shapeLen(shape) != len(objs) {
		return nil, fmt.Errorf("ddbarrow: shape %v does not match %d elements", shape, len(objs))
	}
	return &Array{dtype: DTypeObject, shape: shape, objs: objs}, nil
}

func (a *Array) DType() DType { return a.dtype }
func (a *Array) Shape() []int { return a.shape }
func (a *Array) NDim() int    { return len(a.shape) }

// Len returns the total number of elements.
func (a *Array) Len() int { return shapeLen(a.shape) }

// Arrow returns the backing Arrow array, or nil for object arrays.
func (a *Array) Arrow() arrow.Array { return a.data }

// Objects returns the elements of an object array.
func (a *Array) Objects() []HostValue { return a.objs }

// Release drops the reference held on the backing Arrow array.
func (a *Array) Release() {
	if a.data != nil {
		a.data.Release()
		a.data = nil
	}
}

// At returns the flat element i as a host scalar.
func (a *Array) At(i int) HostValue {
	switch arr := a.data.(type) {
	case *array.Boolean:
		return Bool(arr.Value(i))
	case *array.Int8:
		return Int(arr.Value(i))
	case *array.Int16:
		return Int(arr.Value(i))
	case *array.Int32:
		return Int(arr.Value(i))
	case *array.Int64:
		if a.dtype.Kind == ElemDateTime {
			return DateTime{Unit: a.dtype.Unit, Count: arr.Value(i)}
		}
		return Int(arr.Value(i))
	case *array.Float32:
		return Float(arr.Value(i))
	case *array.Float64:
		return Float(arr.Value(i))
	}
	if a.objs != nil {
		if a.objs[i] == nil {
			return None{}
		}
		return a.objs[i]
	}
	return None{}
}

// Float64s returns the values of a float64 array.
func (a *Array) Float64s() []float64 {
	if f, ok := a.data.(*array.Float64); ok {
		return f.Float64Values()
	}
	return nil
}

// Int64s returns the values of an int64 or datetime array.
func (a *Array) Int64s() []int64 {
	if f, ok := a.data.(*array.Int64); ok {
		return f.Int64Values()
	}
	return nil
}

// HostTable is an ordered mapping of column name to 1-D array, with optional
// explicit remote types per column used when encoding.
type HostTable struct {
	names []string
	cols  []*Array
	types map[string]DataType
}

func (*HostTable) Kind() HostKind { return KindTable }
func (*HostTable) hostValue()     {}

// NewHostTable returns an empty table.
func NewHostTable() *HostTable {
	return &HostTable{types: make(map[string]DataType)}
}

// AddColumn appends a named column. Columns must be 1-D, share a length and
// have unique names.
func (t *HostTable) AddColumn(name string, col *Array) error {
	if col.NDim() != 1 {
		return fmt.Errorf("ddbarrow: column %q must be 1-D, got shape %v", name, col.Shape())
	}
	if _, ok := t.index(name); ok {
		return fmt.Errorf("ddbarrow: duplicate column %q", name)
	}
	if len(t.cols) > 0 && col.Len() != t.NumRows() {
		return fmt.Errorf("ddbarrow: column %q has %d rows, table has %d", name, col.Len(), t.NumRows())
	}
	t.names = append(t.names, name)
	t.cols = append(t.cols, col)
	return nil
}

// WithColumnType records an explicit remote type for a column.
func (t *HostTable) WithColumnType(name string, typ DataType) *HostTable {
	if t.types == nil {
		t.types = make(map[string]DataType)
	}
	t.types[name] = typ
	return t
}

// ColumnType returns the explicit remote type for name, if one was set.
func (t *HostTable) ColumnType(name string) (DataType, bool) {
	typ, ok := t.types[name]
	return typ, ok
}

func (t *HostTable) index(name string) (int, bool) {
	for i, n := range t.names {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

func (t *HostTable) NumColumns() int       { return len(t.cols) }
func (t *HostTable) ColumnNames() []string { return t.names }
func (t *HostTable) ColumnAt(i int) *Array { return t.cols[i] }

// Column looks up a column by name.
func (t *HostTable) Column(name string) (*Array, bool) {
	i, ok := t.index(name)
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// NumRows returns the shared column length.
func (t *HostTable) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// Release releases every column.
func (t *HostTable) Release() {
	for _, c := range t.cols {
		c.Release()
	}
}

// hashKey is the identity used for set membership and dict keys.
type hashKey struct {
	kind HostKind
	repr string
}

// keyOf returns the hash key of v. Containers other than tuples of hashable
// values are not hashable.
func keyOf(v HostValue) (hashKey, error) {
	if v == nil {
		v = None{}
	}
	switch x := v.(type) {
	case None:
		return hashKey{kind: KindNone}, nil
	case Bool:
		return hashKey{kind: KindBool, repr: strconv.FormatBool(bool(x))}, nil
	case Int:
		return hashKey{kind: KindInt, repr: strconv.FormatInt(int64(x), 10)}, nil
	case Float:
		return hashKey{kind: KindFloat, repr: strconv.FormatUint(math.Float64bits(float64(x)), 16)}, nil
	case Str:
		return hashKey{kind: KindStr, repr: string(x)}, nil
	case Bytes:
		return hashKey{kind: KindBytes, repr: string(x)}, nil
	case DateTime:
		return hashKey{kind: KindDateTime, repr: x.Unit.String() + ":" + strconv.FormatInt(x.Count, 10)}, nil
	case Tuple:
		var sb strings.Builder
		for _, e := range x {
			k, err := keyOf(e)
			if err != nil {
				return hashKey{}, err
			}
			sb.WriteString(strconv.Itoa(int(k.kind)))
			sb.WriteByte(':')
			sb.WriteString(strconv.Quote(k.repr))
			sb.WriteByte(',')
		}
		return hashKey{kind: KindTuple, repr: sb.String()}, nil
	}
	return hashKey{}, fmt.Errorf("ddbarrow: unhashable host value %s", v.Kind())
}

// HostSet is an unordered collection of unique hashable host values.
// Iteration follows insertion order. The zero value is an empty set.
type HostSet struct {
	items []HostValue
	index map[hashKey]struct{}
}

func (*HostSet) Kind() HostKind { return KindSet }
func (*HostSet) hostValue()     {}

// NewHostSet builds a set from items, dropping duplicates.
func NewHostSet(items ...HostValue) (*HostSet, error) {
	s := &HostSet{index: make(map[hashKey]struct{}, len(items))}
	for _, it := range items {
		if err := s.Add(it); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts v if it is not already present.
func (s *HostSet) Add(v HostValue) error {
	k, err := keyOf(v)
	if err != nil {
		return err
	}
	if _, ok := s.index[k]; ok {
		return nil
	}
	if s.index == nil {
		s.index = make(map[hashKey]struct{})
	}
	s.index[k] = struct{}{}
	s.items = append(s.items, v)
	return nil
}

// Contains reports whether v is a member.
func (s *HostSet) Contains(v HostValue) bool {
	k, err := keyOf(v)
	if err != nil {
		return false
	}
	_, ok := s.index[k]
	return ok
}

func (s *HostSet) Len() int           { return len(s.items) }
func (s *HostSet) Items() []HostValue { return s.items }

// Dict is an insertion-ordered mapping from hashable host values. The zero
// value is an empty mapping.
type Dict struct {
	keys   []HostValue
	values []HostValue
	index  map[hashKey]int
}

func (*Dict) Kind() HostKind { return KindDict }
func (*Dict) hostValue()     {}

// NewDict returns an empty mapping.
func NewDict() *Dict {
	return &Dict{index: make(map[hashKey]int)}
}

// Set stores value under key, replacing any previous value in place.
func (d *Dict) Set(key, value HostValue) error {
	k, err := keyOf(key)
	if err != nil {
		return err
	}
	if i, ok := d.index[k]; ok {
		d.values[i] = value
		return nil
	}
	if d.index == nil {
		d.index = make(map[hashKey]int)
	}
	d.index[k] = len(d.keys)
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
	return nil
}

// Get returns the value stored under key.
func (d *Dict) Get(key HostValue) (HostValue, bool) {
	k, err := keyOf(key)
	if err != nil {
		return nil, false
	}
	i, ok := d.index[k]
	if !ok {
		return nil, false
	}
	return d.values[i], true
}

func (d *Dict) Len() int            { return len(d.keys) }
func (d *Dict) Keys() []HostValue   { return d.keys }
func (d *Dict) Values() []HostValue { return d.values }
