// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"math"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// fixedWidthArray copies raw into a freshly allocated buffer and wraps it as
// an n-element array of dt. There is no validity bitmap.
func fixedWidthArray(mem memory.Allocator, dt arrow.DataType, n int, raw []byte) arrow.Array {
	buf := memory.NewResizableBuffer(mem)
	buf.Resize(len(raw))
	copy(buf.Bytes(), raw)
	data := array.NewData(dt, n, []*memory.Buffer{nil, buf}, nil, 0, 0)
	arr := array.MakeFromData(data)
	data.Release()
	buf.Release()
	return arr
}

func int8Array(mem memory.Allocator, v []int8) arrow.Array {
	return fixedWidthArray(mem, arrow.PrimitiveTypes.Int8, len(v), arrow.Int8Traits.CastToBytes(v))
}

func int16Array(mem memory.Allocator, v []int16) arrow.Array {
	return fixedWidthArray(mem, arrow.PrimitiveTypes.Int16, len(v), arrow.Int16Traits.CastToBytes(v))
}

func int32Array(mem memory.Allocator, v []int32) arrow.Array {
	return fixedWidthArray(mem, arrow.PrimitiveTypes.Int32, len(v), arrow.Int32Traits.CastToBytes(v))
}

func int64Array(mem memory.Allocator, v []int64) arrow.Array {
	return fixedWidthArray(mem, arrow.PrimitiveTypes.Int64, len(v), arrow.Int64Traits.CastToBytes(v))
}

func float32Array(mem memory.Allocator, v []float32) arrow.Array {
	return fixedWidthArray(mem, arrow.PrimitiveTypes.Float32, len(v), arrow.Float32Traits.CastToBytes(v))
}

func float64Array(mem memory.Allocator, v []float64) arrow.Array {
	return fixedWidthArray(mem, arrow.PrimitiveTypes.Float64, len(v), arrow.Float64Traits.CastToBytes(v))
}

// boolArray builds a Boolean array. Booleans are bit-packed in Arrow, so
// there is no byte-for-byte path.
func boolArray(mem memory.Allocator, v []int8) arrow.Array {
	b := array.NewBooleanBuilder(mem)
	defer b.Release()
	b.Reserve(len(v))
	for _, x := range v {
		b.UnsafeAppend(x != 0)
	}
	return b.NewArray()
}

// wrap builds an Array around a freshly created arrow array, taking over its
// reference.
func wrap(dtype DType, shape []int, data arrow.Array) *Array {
	if shape == nil {
		shape = []int{data.Len()}
	}
	return &Array{dtype: dtype, shape: shape, data: data}
}

var defaultMem = memory.DefaultAllocator

// Int8Array returns a 1-D int8 array holding vals.
func Int8Array(vals ...int8) *Array {
	return wrap(DTypeInt8, nil, int8Array(defaultMem, vals))
}

// Int16Array returns a 1-D int16 array holding vals.
func Int16Array(vals ...int16) *Array {
	return wrap(DTypeInt16, nil, int16Array(defaultMem, vals))
}

// Int32Array returns a 1-D int32 array holding vals.
func Int32Array(vals ...int32) *Array {
	return wrap(DTypeInt32, nil, int32Array(defaultMem, vals))
}

// Int64Array returns a 1-D int64 array holding vals.
func Int64Array(vals ...int64) *Array {
	return wrap(DTypeInt64, nil, int64Array(defaultMem, vals))
}

// Float32Array returns a 1-D float32 array holding vals.
func Float32Array(vals ...float32) *Array {
	return wrap(DTypeFloat32, nil, float32Array(defaultMem, vals))
}

// Float64Array returns a 1-D float64 array holding vals.
func Float64Array(vals ...float64) *Array {
	return wrap(DTypeFloat64, nil, float64Array(defaultMem, vals))
}

// BoolArray returns a 1-D bool array holding vals.
func BoolArray(vals ...bool) *Array {
	b := array.NewBooleanBuilder(defaultMem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return wrap(DTypeBool, nil, b.NewArray())
}

// DateTimeArray returns a 1-D datetime array of unit. Use NaT for missing
// values.
func DateTimeArray(unit TimeUnit, counts ...int64) *Array {
	return wrap(DTypeDateTime(unit), nil, int64Array(defaultMem, counts))
}

// StrArray returns a 1-D object array of strings.
func StrArray(vals ...string) *Array {
	objs := make([]HostValue, len(vals))
	for i, v := range vals {
		objs[i] = Str(v)
	}
	return &Array{dtype: DTypeObject, shape: []int{len(objs)}, objs: objs}
}

// ObjectArray returns a 1-D object array of vals.
func ObjectArray(vals ...HostValue) *Array {
	return &Array{dtype: DTypeObject, shape: []int{len(vals)}, objs: vals}
}

// Reshape returns a view of a with a new shape sharing the same storage.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	if shapeLen(shape) != a.Len() {
		return nil, fmt.Errorf("ddbarrow: cannot reshape %d elements to %v", a.Len(), shape)
	}
	out := &Array{dtype: a.dtype, shape: shape, objs: a.objs}
	if a.data != nil {
		a.data.Retain()
		out.data = a.data
	}
	return out, nil
}

var (
	temporalTypesOnce sync.Once
	unitArrowTypes    map[TimeUnit]arrow.DataType
	dtypeByName       map[string]DType
)

// initTemporalTypes builds the package-level Arrow type tables.
func initTemporalTypes() {
	temporalTypesOnce.Do(func() {
		unitArrowTypes = map[TimeUnit]arrow.DataType{
			UnitMonth:            arrow.PrimitiveTypes.Int64,
			UnitDay:              arrow.FixedWidthTypes.Date32,
			UnitMinute:           arrow.PrimitiveTypes.Int64,
			UnitSecond:           arrow.FixedWidthTypes.Time32s,
			UnitMillisecond:      arrow.FixedWidthTypes.Time32ms,
			UnitNanosecond:       arrow.FixedWidthTypes.Time64ns,
			UnitEpochSecond:      &arrow.TimestampType{Unit: arrow.Second},
			UnitEpochMillisecond: &arrow.TimestampType{Unit: arrow.Millisecond},
			UnitEpochNanosecond:  &arrow.TimestampType{Unit: arrow.Nanosecond},
		}
		dtypeByName = map[string]DType{}
		for _, d := range []DType{DTypeBool, DTypeInt8, DTypeInt16, DTypeInt32, DTypeInt64,
			DTypeFloat32, DTypeFloat64, DTypeObject} {
			dtypeByName[d.String()] = d
		}
		for u := range unitArrowTypes {
			d := DTypeDateTime(u)
			dtypeByName[d.String()] = d
		}
	})
}

func parseDType(s string) (DType, bool) {
	initTemporalTypes()
	d, ok := dtypeByName[s]
	return d, ok
}

// exportType returns the Arrow type a column of dtype d is exported as.
func (d DType) exportType() arrow.DataType {
	if d.Kind == ElemDateTime {
		initTemporalTypes()
		return unitArrowTypes[d.Unit]
	}
	if d.Kind == ElemObject {
		return arrow.BinaryTypes.String
	}
	return d.arrowType()
}

// exportColumn converts a 1-D column to its exported Arrow array.
func exportColumn(mem memory.Allocator, name string, col *Array) (arrow.Array, error) {
	dt := col.dtype.exportType()
	switch col.dtype.Kind {
	case ElemObject:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for i, o := range col.objs {
			switch v := o.(type) {
			case Str:
				b.Append(string(v))
			case nil, None:
				b.AppendNull()
			default:
				return nil, fmt.Errorf("ddbarrow: column %q element %d: cannot export %s to arrow", name, i, o.Kind())
			}
		}
		return b.NewArray(), nil
	case ElemDateTime:
		counts := col.Int64s()
		if arrow.TypeEqual(dt, arrow.PrimitiveTypes.Int64) {
			b := array.NewInt64Builder(mem)
			defer b.Release()
			for _, c := range counts {
				if c == NaT {
					b.AppendNull()
				} else {
					b.Append(c)
				}
			}
			return b.NewArray(), nil
		}
		b := array.NewBuilder(mem, dt)
		defer b.Release()
		for _, c := range counts {
			if c == NaT {
				b.AppendNull()
				continue
			}
			switch tb := b.(type) {
			case *array.Date32Builder:
				tb.Append(arrow.Date32(c))
			case *array.Time32Builder:
				tb.Append(arrow.Time32(c))
			case *array.Time64Builder:
				tb.Append(arrow.Time64(c))
			case *array.TimestampBuilder:
				tb.Append(arrow.Timestamp(c))
			}
		}
		return b.NewArray(), nil
	default:
		col.data.Retain()
		return col.data, nil
	}
}

// Record exports t as an Arrow record batch. Every field carries the
// column's host dtype under MetaDType.
func (t *HostTable) Record(mem memory.Allocator) (arrow.RecordBatch, error) {
	fields := make([]arrow.Field, len(t.cols))
	cols := make([]arrow.Array, 0, len(t.cols))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	for i, col := range t.cols {
		arr, err := exportColumn(mem, t.names[i], col)
		if err != nil {
			return nil, err
		}
		cols = append(cols, arr)
		fields[i] = arrow.Field{
			Name:     t.names[i],
			Type:     arr.DataType(),
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{MetaDType}, []string{col.dtype.String()}),
		}
	}
	meta := arrow.NewMetadata([]string{MetaVersion}, []string{FormatVersion})
	schema := arrow.NewSchema(fields, &meta)
	return array.NewRecordBatch(schema, cols, int64(t.NumRows())), nil
}

// TableFromRecord imports a record batch. Fields carrying MetaDType restore
// that dtype; other fields are mapped by Arrow type as in NewArrayFromArrow.
func TableFromRecord(rec arrow.RecordBatch) (*HostTable, error) {
	md := rec.Schema().Metadata()
	if v, ok := md.GetValue(MetaVersion); ok && v != FormatVersion {
		return nil, fmt.Errorf("ddbarrow: unsupported table format version %q, expected %q", v, FormatVersion)
	}
	t := NewHostTable()
	for i, f := range rec.Schema().Fields() {
		col, err := importColumn(rec.Column(i), f)
		if err != nil {
			t.Release()
			return nil, fmt.Errorf("ddbarrow: column %q: %w", f.Name, err)
		}
		if err := t.AddColumn(f.Name, col); err != nil {
			col.Release()
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

func importColumn(arr arrow.Array, f arrow.Field) (*Array, error) {
	name, ok := f.Metadata.GetValue(MetaDType)
	if !ok {
		return NewArrayFromArrow(arr)
	}
	dtype, ok := parseDType(name)
	if !ok {
		return nil, fmt.Errorf("unknown dtype %q", name)
	}
	if dtype.Kind == ElemDateTime {
		return temporalFromArrow(arr, dtype.Unit)
	}
	return NewArrayFromArrow(arr)
}

// NewArrayFromArrow wraps a 1-D Arrow array. Integral and boolean arrays with
// nulls widen to float64 with NaN at null positions; floating nulls become
// NaN; strings become an object array of Str with None at nulls.
func NewArrayFromArrow(arr arrow.Array) (*Array, error) {
	switch a := arr.(type) {
	case *array.String:
		objs := make([]HostValue, a.Len())
		for i := range objs {
			if a.IsNull(i) {
				objs[i] = None{}
			} else {
				objs[i] = Str(a.Value(i))
			}
		}
		return ObjectArray(objs...), nil
	case *array.Timestamp:
		tt := a.DataType().(*arrow.TimestampType)
		switch tt.Unit {
		case arrow.Second:
			return temporalFromArrow(arr, UnitEpochSecond)
		case arrow.Millisecond:
			return temporalFromArrow(arr, UnitEpochMillisecond)
		case arrow.Nanosecond:
			return temporalFromArrow(arr, UnitEpochNanosecond)
		}
		return nil, fmt.Errorf("unsupported timestamp unit %s", tt.Unit)
	case *array.Date32:
		return temporalFromArrow(arr, UnitDay)
	case *array.Time32:
		if a.DataType().(*arrow.Time32Type).Unit == arrow.Second {
			return temporalFromArrow(arr, UnitSecond)
		}
		return temporalFromArrow(arr, UnitMillisecond)
	case *array.Time64:
		if a.DataType().(*arrow.Time64Type).Unit == arrow.Nanosecond {
			return temporalFromArrow(arr, UnitNanosecond)
		}
		return nil, fmt.Errorf("unsupported time64 unit %s", a.DataType())
	}

	var dtype DType
	switch arr.DataType().ID() {
	case arrow.BOOL:
		dtype = DTypeBool
	case arrow.INT8:
		dtype = DTypeInt8
	case arrow.INT16:
		dtype = DTypeInt16
	case arrow.INT32:
		dtype = DTypeInt32
	case arrow.INT64:
		dtype = DTypeInt64
	case arrow.FLOAT32:
		dtype = DTypeFloat32
	case arrow.FLOAT64:
		dtype = DTypeFloat64
	default:
		return nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
	if arr.NullN() == 0 {
		arr.Retain()
		return wrap(dtype, nil, arr), nil
	}
	if dtype == DTypeFloat32 {
		out := make([]float32, arr.Len())
		src := arr.(*array.Float32)
		for i := range out {
			if src.IsNull(i) {
				out[i] = float32(math.NaN())
			} else {
				out[i] = src.Value(i)
			}
		}
		return wrap(DTypeFloat32, nil, float32Array(defaultMem, out)), nil
	}
	out := make([]float64, arr.Len())
	for i := range out {
		if arr.IsNull(i) {
			out[i] = hostNaN()
			continue
		}
		switch a := arr.(type) {
		case *array.Boolean:
			if a.Value(i) {
				out[i] = 1
			}
		case *array.Int8:
			out[i] = float64(a.Value(i))
		case *array.Int16:
			out[i] = float64(a.Value(i))
		case *array.Int32:
			out[i] = float64(a.Value(i))
		case *array.Int64:
			out[i] = float64(a.Value(i))
		case *array.Float64:
			out[i] = a.Value(i)
		}
	}
	return wrap(DTypeFloat64, nil, float64Array(defaultMem, out)), nil
}

// temporalFromArrow reads an Arrow temporal (or Int64) array as counts of
// unit, with NaT at nulls.
func temporalFromArrow(arr arrow.Array, unit TimeUnit) (*Array, error) {
	counts := make([]int64, arr.Len())
	for i := range counts {
		if arr.IsNull(i) {
			counts[i] = NaT
			continue
		}
		switch a := arr.(type) {
		case *array.Int64:
			counts[i] = a.Value(i)
		case *array.Date32:
			counts[i] = int64(a.Value(i))
		case *array.Time32:
			counts[i] = int64(a.Value(i))
		case *array.Time64:
			counts[i] = int64(a.Value(i))
		case *array.Timestamp:
			counts[i] = int64(a.Value(i))
		default:
			return nil, fmt.Errorf("cannot read %s as datetime[%s]", arr.DataType(), unit)
		}
	}
	return DateTimeArray(unit, counts...), nil
}

// makeEmptyArray creates a zero-length array of the given type.
func makeEmptyArray(mem memory.Allocator, dt arrow.DataType) arrow.Array {
	builder := array.NewBuilder(mem, dt)
	defer builder.Release()
	return builder.NewArray()
}

// concatArrays joins two 1-D arrays of the same dtype.
func concatArrays(a, b *Array) (*Array, error) {
	if a.dtype != b.dtype {
		return nil, fmt.Errorf("dtype %s does not match %s", b.dtype, a.dtype)
	}
	if a.dtype.Kind == ElemObject {
		objs := make([]HostValue, 0, len(a.objs)+len(b.objs))
		objs = append(append(objs, a.objs...), b.objs...)
		return ObjectArray(objs...), nil
	}
	data, err := array.Concatenate([]arrow.Array{a.data, b.data}, defaultMem)
	if err != nil {
		return nil, err
	}
	return wrap(a.dtype, nil, data), nil
}
