// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"math"
	"strconv"
)

// DataForm is the container shape of a remote value.
type DataForm int8

const (
	FormScalar DataForm = iota
	FormVector
	FormPair
	FormMatrix
	FormSet
	FormDictionary
	FormTable
	FormChart
	FormChunk
)

func (f DataForm) String() string {
	switch f {
	case FormScalar:
		return "SCALAR"
	case FormVector:
		return "VECTOR"
	case FormPair:
		return "PAIR"
	case FormMatrix:
		return "MATRIX"
	case FormSet:
		return "SET"
	case FormDictionary:
		return "DICTIONARY"
	case FormTable:
		return "TABLE"
	case FormChart:
		return "CHART"
	case FormChunk:
		return "CHUNK"
	default:
		return "UNRECOGNIZED FORM " + strconv.Itoa(int(f))
	}
}

// DataType is the element type tag of a remote value. The numbering matches
// the server's and must not change.
type DataType int8

const (
	TypeVoid DataType = iota
	TypeBool
	TypeChar
	TypeShort
	TypeInt
	TypeLong
	TypeDate
	TypeMonth
	TypeTime
	TypeMinute
	TypeSecond
	TypeDateTime
	TypeTimestamp
	TypeNanoTime
	TypeNanoTimestamp
	TypeFloat
	TypeDouble
	TypeSymbol
	TypeString
	TypeUUID
	TypeFunctionDef
	TypeHandle
	TypeCode
	TypeDataSource
	TypeResource
	TypeAny
	TypeCompress
	TypeDictionary
	TypeObject
)

var dataTypeNames = map[DataType]string{
	TypeVoid:          "VOID",
	TypeBool:          "BOOL",
	TypeChar:          "CHAR",
	TypeShort:         "SHORT",
	TypeInt:           "INT",
	TypeLong:          "LONG",
	TypeDate:          "DATE",
	TypeMonth:         "MONTH",
	TypeTime:          "TIME",
	TypeMinute:        "MINUTE",
	TypeSecond:        "SECOND",
	TypeDateTime:      "DATETIME",
	TypeTimestamp:     "TIMESTAMP",
	TypeNanoTime:      "NANOTIME",
	TypeNanoTimestamp: "NANOTIMESTAMP",
	TypeFloat:         "FLOAT",
	TypeDouble:        "DOUBLE",
	TypeSymbol:        "SYMBOL",
	TypeString:        "STRING",
	TypeUUID:          "UUID",
	TypeFunctionDef:   "FUNCTIONDEF",
	TypeHandle:        "HANDLE",
	TypeCode:          "CODE",
	TypeDataSource:    "DATASOURCE",
	TypeResource:      "RESOURCE",
	TypeAny:           "ANY",
	TypeCompress:      "COMPRESS",
	TypeDictionary:    "DICTIONARY",
	TypeObject:        "OBJECT",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return "UNRECOGNIZED TYPE " + strconv.Itoa(int(t))
}

// DataCategory groups data types by how their values behave.
type DataCategory int8

const (
	CategoryNothing DataCategory = iota
	CategoryLogical
	CategoryIntegral
	CategoryFloating
	CategoryTemporal
	CategoryLiteral
	CategorySystem
	CategoryMixed
)

func (c DataCategory) String() string {
	switch c {
	case CategoryNothing:
		return "NOTHING"
	case CategoryLogical:
		return "LOGICAL"
	case CategoryIntegral:
		return "INTEGRAL"
	case CategoryFloating:
		return "FLOATING"
	case CategoryTemporal:
		return "TEMPORAL"
	case CategoryLiteral:
		return "LITERAL"
	case CategorySystem:
		return "SYSTEM"
	case CategoryMixed:
		return "MIXED"
	default:
		return "UNRECOGNIZED CATEGORY " + strconv.Itoa(int(c))
	}
}

// Category returns the category of t.
func (t DataType) Category() DataCategory {
	switch t {
	case TypeVoid:
		return CategoryNothing
	case TypeBool:
		return CategoryLogical
	case TypeChar, TypeShort, TypeInt, TypeLong:
		return CategoryIntegral
	case TypeFloat, TypeDouble:
		return CategoryFloating
	case TypeDate, TypeMonth, TypeTime, TypeMinute, TypeSecond, TypeDateTime,
		TypeTimestamp, TypeNanoTime, TypeNanoTimestamp:
		return CategoryTemporal
	case TypeSymbol, TypeString:
		return CategoryLiteral
	case TypeAny:
		return CategoryMixed
	default:
		return CategorySystem
	}
}

// IsTemporal reports whether t is one of the temporal subtypes.
func (t DataType) IsTemporal() bool { return t.Category() == CategoryTemporal }

// IsLiteral reports whether t is STRING or SYMBOL.
func (t DataType) IsLiteral() bool { return t == TypeString || t == TypeSymbol }

// supported reports whether the codec can store values of type t.
func (t DataType) supported() bool {
	return t <= TypeString || t == TypeAny
}

// Null sentinels. A stored value equal to its type's sentinel is null.
const (
	nullInt8  = math.MinInt8
	nullInt16 = math.MinInt16
	nullInt32 = math.MinInt32
	nullInt64 = math.MinInt64
)

// NullFloat32 and NullFloat64 are the remote FLOAT and DOUBLE null values.
var (
	NullFloat32 float32 = -math.MaxFloat32
	NullFloat64 float64 = -math.MaxFloat64

	nullFloat32Bits = math.Float32bits(NullFloat32)
	nullFloat64Bits = math.Float64bits(NullFloat64)
)

// hostNaNBits is the canonical quiet NaN written at null positions.
const hostNaNBits uint64 = 0x7FF8000000000000

// isNullFloat64 compares bits; ordinary float equality is not used for nulls.
func isNullFloat64(v float64) bool { return math.Float64bits(v) == nullFloat64Bits }

func isNullFloat32(v float32) bool { return math.Float32bits(v) == nullFloat32Bits }

// isHostNaN reports whether v carries any NaN bit pattern.
func isHostNaN(v float64) bool {
	bits := math.Float64bits(v)
	return bits&0x7FF0000000000000 == 0x7FF0000000000000 && bits&0x000FFFFFFFFFFFFF != 0
}

func isHostNaN32(v float32) bool {
	bits := math.Float32bits(v)
	return bits&0x7F800000 == 0x7F800000 && bits&0x007FFFFF != 0
}

func hostNaN() float64 { return math.Float64frombits(hostNaNBits) }
