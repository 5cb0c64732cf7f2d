// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"context"
)

// Operation names reported in CallInfo.Op.
const (
	OpConnect = "connect"
	OpLogin   = "login"
	OpRun     = "run"
	OpCall    = "call"
	OpUpload  = "upload"
)

// CallHook provides observability callpoints around session calls.
// Implementations must be safe for concurrent use.
type CallHook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnCallStart and passed back to
// OnCallEnd. Only meaningful to the CallHook that created it.
type HookToken interface{}

// CallInfo describes one session call.
type CallInfo struct {
	Op     string // OpConnect, OpLogin, OpRun, OpCall or OpUpload
	Target string // script, function name or uploaded variable names
	Host   string
	Port   int
}

// CallStatistics holds per-call value counters.
type CallStatistics struct {
	InputValues  int64
	InputRows    int64
	OutputValues int64
	OutputRows   int64
	OutputBytes  int64
}

// RecordInput records one value sent to the server.
func (s *CallStatistics) RecordInput(v Value) {
	s.InputValues++
	s.InputRows += valueRows(v)
}

// RecordOutput records one value received from the server and its decoded
// host form.
func (s *CallStatistics) RecordOutput(v Value, h HostValue) {
	s.OutputValues++
	s.OutputRows += valueRows(v)
	s.OutputBytes += hostBufferSize(h)
}

// valueRows counts rows: table rows, vector and set length, matrix rows,
// dictionary entries, and one for a non-null scalar.
func valueRows(v Value) int64 {
	switch x := v.(type) {
	case *Table:
		return int64(x.NumRows())
	case *Vector:
		return int64(x.Len())
	case *Matrix:
		return int64(x.Rows())
	case *Set:
		return int64(x.Len())
	case *Dictionary:
		return int64(x.Len())
	case *Scalar:
		if x.IsNull() {
			return 0
		}
		return 1
	}
	return 0
}

// hostBufferSize returns the total Arrow buffer size in bytes backing h.
func hostBufferSize(h HostValue) int64 {
	var total int64
	switch x := h.(type) {
	case *Array:
		if x.data == nil {
			return 0
		}
		for _, buf := range x.data.Data().Buffers() {
			if buf != nil {
				total += int64(buf.Len())
			}
		}
	case *HostTable:
		for _, c := range x.cols {
			total += hostBufferSize(c)
		}
	case Tuple:
		for _, e := range x {
			total += hostBufferSize(e)
		}
	}
	return total
}
