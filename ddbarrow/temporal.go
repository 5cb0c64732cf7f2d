// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimeUnit is the tick unit of a host datetime. There is exactly one unit
// per remote temporal type.
type TimeUnit int8

const (
	UnitNone             TimeUnit = iota
	UnitMonth                     // months since 1970-01 (MONTH)
	UnitDay                       // days since 1970-01-01 (DATE)
	UnitMinute                    // minutes since midnight (MINUTE)
	UnitSecond                    // seconds since midnight (SECOND)
	UnitMillisecond               // milliseconds since midnight (TIME)
	UnitNanosecond                // nanoseconds since midnight (NANOTIME)
	UnitEpochSecond               // seconds since the Unix epoch (DATETIME)
	UnitEpochMillisecond          // milliseconds since the Unix epoch (TIMESTAMP)
	UnitEpochNanosecond           // nanoseconds since the Unix epoch (NANOTIMESTAMP)
)

func (u TimeUnit) String() string {
	switch u {
	case UnitMonth:
		return "M"
	case UnitDay:
		return "D"
	case UnitMinute:
		return "m"
	case UnitSecond:
		return "s"
	case UnitMillisecond:
		return "ms"
	case UnitNanosecond:
		return "ns"
	case UnitEpochSecond:
		return "epoch-s"
	case UnitEpochMillisecond:
		return "epoch-ms"
	case UnitEpochNanosecond:
		return "epoch-ns"
	case UnitNone:
		return "none"
	default:
		return "unit(" + strconv.Itoa(int(u)) + ")"
	}
}

// monthEpochOffset converts between remote MONTH storage (months since year
// 0) and host months since 1970-01.
const monthEpochOffset = 1970 * 12

// NaT is the host "not a time" count.
const NaT int64 = math.MinInt64

var unitToType = map[TimeUnit]DataType{
	UnitMonth:            TypeMonth,
	UnitDay:              TypeDate,
	UnitMinute:           TypeMinute,
	UnitSecond:           TypeSecond,
	UnitMillisecond:      TypeTime,
	UnitNanosecond:       TypeNanoTime,
	UnitEpochSecond:      TypeDateTime,
	UnitEpochMillisecond: TypeTimestamp,
	UnitEpochNanosecond:  TypeNanoTimestamp,
}

var typeToUnit = map[DataType]TimeUnit{
	TypeMonth:         UnitMonth,
	TypeDate:          UnitDay,
	TypeMinute:        UnitMinute,
	TypeSecond:        UnitSecond,
	TypeTime:          UnitMillisecond,
	TypeNanoTime:      UnitNanosecond,
	TypeDateTime:      UnitEpochSecond,
	TypeTimestamp:     UnitEpochMillisecond,
	TypeNanoTimestamp: UnitEpochNanosecond,
}

// RemoteType returns the remote temporal type stored with unit u.
func (u TimeUnit) RemoteType() (DataType, bool) {
	t, ok := unitToType[u]
	return t, ok
}

// UnitOf returns the host unit for a remote temporal type.
func UnitOf(t DataType) (TimeUnit, bool) {
	u, ok := typeToUnit[t]
	return u, ok
}

// toRemoteCount converts a host count to remote storage. NaT maps to null.
func toRemoteCount(u TimeUnit, count int64) int64 {
	if count == NaT {
		return nullInt64
	}
	if u == UnitMonth {
		return count + monthEpochOffset
	}
	return count
}

// toHostCount converts remote storage to a host count. Null maps to NaT.
func toHostCount(u TimeUnit, stored int64) int64 {
	if stored == nullInt64 {
		return NaT
	}
	if u == UnitMonth {
		return stored - monthEpochOffset
	}
	return stored
}

// DateTime is a host datetime: Count ticks of Unit since that unit's epoch.
type DateTime struct {
	Unit  TimeUnit
	Count int64
}

func (DateTime) Kind() HostKind { return KindDateTime }
func (DateTime) hostValue()     {}

// IsNaT reports whether d is "not a time".
func (d DateTime) IsNaT() bool { return d.Count == NaT }

// Time converts d to a UTC time. Time-of-day units are placed on
// 1970-01-01. It reports false for NaT.
func (d DateTime) Time() (time.Time, bool) {
	if d.IsNaT() {
		return time.Time{}, false
	}
	epoch := time.Unix(0, 0).UTC()
	switch d.Unit {
	case UnitMonth:
		y, m := d.Count/12, d.Count%12
		if m < 0 {
			y--
			m += 12
		}
		return time.Date(1970+int(y), time.Month(m+1), 1, 0, 0, 0, 0, time.UTC), true
	case UnitDay:
		return epoch.AddDate(0, 0, int(d.Count)), true
	case UnitMinute:
		return epoch.Add(time.Duration(d.Count) * time.Minute), true
	case UnitSecond, UnitEpochSecond:
		return time.Unix(d.Count, 0).UTC(), true
	case UnitMillisecond, UnitEpochMillisecond:
		return time.UnixMilli(d.Count).UTC(), true
	case UnitNanosecond, UnitEpochNanosecond:
		return time.Unix(0, d.Count).UTC(), true
	}
	return time.Time{}, false
}

// DateTimeOf truncates t to unit. Time-of-day units keep only the clock
// part of t in UTC.
func DateTimeOf(t time.Time, unit TimeUnit) DateTime {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	sinceMidnight := t.Sub(midnight)
	var n int64
	switch unit {
	case UnitMonth:
		n = int64(t.Year()-1970)*12 + int64(t.Month()-1)
	case UnitDay:
		n = midnight.Unix() / 86400
	case UnitMinute:
		n = int64(sinceMidnight / time.Minute)
	case UnitSecond:
		n = int64(sinceMidnight / time.Second)
	case UnitMillisecond:
		n = int64(sinceMidnight / time.Millisecond)
	case UnitNanosecond:
		n = int64(sinceMidnight)
	case UnitEpochSecond:
		n = t.Unix()
	case UnitEpochMillisecond:
		n = t.UnixMilli()
	case UnitEpochNanosecond:
		n = t.UnixNano()
	}
	return DateTime{Unit: unit, Count: n}
}

// Month returns the MONTH datetime for year and month.
func Month(year int, month time.Month) DateTime {
	return DateTime{Unit: UnitMonth, Count: int64(year-1970)*12 + int64(month-1)}
}

func (d DateTime) String() string {
	if d.IsNaT() {
		return "NaT"
	}
	t, ok := d.Time()
	if !ok {
		return fmt.Sprintf("datetime(%d %s)", d.Count, d.Unit)
	}
	switch d.Unit {
	case UnitMonth:
		return t.Format("2006.01M")
	case UnitDay:
		return t.Format("2006.01.02")
	case UnitMinute:
		return t.Format("15:04m")
	case UnitSecond:
		return t.Format("15:04:05")
	case UnitMillisecond:
		return t.Format("15:04:05.000")
	case UnitNanosecond:
		return t.Format("15:04:05.000000000")
	case UnitEpochSecond:
		return t.Format("2006.01.02T15:04:05")
	case UnitEpochMillisecond:
		return t.Format("2006.01.02T15:04:05.000")
	default:
		return t.Format("2006.01.02T15:04:05.000000000")
	}
}
