// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitTypeBijection(t *testing.T) {
	units := []TimeUnit{
		UnitMonth, UnitDay, UnitMinute, UnitSecond, UnitMillisecond,
		UnitNanosecond, UnitEpochSecond, UnitEpochMillisecond, UnitEpochNanosecond,
	}
	seen := map[DataType]bool{}
	for _, u := range units {
		typ, ok := u.RemoteType()
		require.True(t, ok, u.String())
		assert.False(t, seen[typ], "%s mapped twice", typ)
		seen[typ] = true

		back, ok := UnitOf(typ)
		require.True(t, ok)
		assert.Equal(t, u, back)
	}
	_, ok := UnitNone.RemoteType()
	assert.False(t, ok)
	_, ok = UnitOf(TypeInt)
	assert.False(t, ok)
}

func TestDateTimeOf(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 13, 45, 30, 123456789, time.UTC)
	tests := []struct {
		unit TimeUnit
		want int64
	}{
		{UnitMonth, (2024-1970)*12 + 2},
		{UnitDay, 19787},
		{UnitMinute, 13*60 + 45},
		{UnitSecond, 13*3600 + 45*60 + 30},
		{UnitMillisecond, (13*3600+45*60+30)*1000 + 123},
		{UnitNanosecond, (13*3600+45*60+30)*1_000_000_000 + 123456789},
		{UnitEpochSecond, ts.Unix()},
		{UnitEpochMillisecond, ts.UnixMilli()},
		{UnitEpochNanosecond, ts.UnixNano()},
	}
	for _, tt := range tests {
		t.Run(tt.unit.String(), func(t *testing.T) {
			d := DateTimeOf(ts, tt.unit)
			assert.Equal(t, tt.unit, d.Unit)
			assert.Equal(t, tt.want, d.Count)
		})
	}
}

func TestDateTimeOfBeforeEpoch(t *testing.T) {
	d := DateTimeOf(time.Date(1969, time.December, 31, 23, 0, 0, 0, time.UTC), UnitDay)
	assert.Equal(t, int64(-1), d.Count)

	m := DateTimeOf(time.Date(1969, time.November, 2, 0, 0, 0, 0, time.UTC), UnitMonth)
	assert.Equal(t, int64(-2), m.Count)
	got, ok := m.Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(1969, time.November, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestDateTimeTime(t *testing.T) {
	got, ok := DateTime{Unit: UnitEpochMillisecond, Count: 1704187800000}.Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, time.January, 2, 9, 30, 0, 0, time.UTC), got)

	got, ok = DateTime{Unit: UnitMinute, Count: 90}.Time()
	require.True(t, ok)
	assert.Equal(t, time.Date(1970, time.January, 1, 1, 30, 0, 0, time.UTC), got)

	_, ok = DateTime{Unit: UnitDay, Count: NaT}.Time()
	assert.False(t, ok)
}

func TestDateTimeString(t *testing.T) {
	assert.Equal(t, "NaT", DateTime{Unit: UnitSecond, Count: NaT}.String())
	assert.Equal(t, "2021.07M", Month(2021, time.July).String())
	assert.Equal(t, "2024.03.05", DateTimeOf(time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC), UnitDay).String())
}

func TestMonthStorageOffset(t *testing.T) {
	m := Month(1970, time.January)
	assert.Equal(t, int64(0), m.Count)
	assert.Equal(t, int64(1970*12), toRemoteCount(UnitMonth, m.Count))
	assert.Equal(t, int64(0), toHostCount(UnitMonth, 1970*12))
	assert.Equal(t, int64(nullInt64), toRemoteCount(UnitMonth, NaT))
	assert.Equal(t, NaT, toHostCount(UnitDay, nullInt64))
}
