// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ContentTypeArrowStream is the media type of Arrow IPC stream bodies.
const ContentTypeArrowStream = "application/vnd.apache.arrow.stream"

type ipcConfig struct {
	mem      memory.Allocator
	compress bool
}

// IPCOption configures WriteTableIPC.
type IPCOption func(*ipcConfig)

// WithIPCCompression compresses record batch bodies with zstd.
func WithIPCCompression() IPCOption {
	return func(c *ipcConfig) { c.compress = true }
}

// WithIPCAllocator sets the allocator used while writing.
func WithIPCAllocator(mem memory.Allocator) IPCOption {
	return func(c *ipcConfig) { c.mem = mem }
}

// WriteTableIPC writes t as a single-batch Arrow IPC stream.
func WriteTableIPC(w io.Writer, t *HostTable, opts ...IPCOption) error {
	cfg := ipcConfig{mem: memory.DefaultAllocator}
	for _, o := range opts {
		o(&cfg)
	}
	batch, err := t.Record(cfg.mem)
	if err != nil {
		return err
	}
	defer batch.Release()

	writerOpts := []ipc.Option{ipc.WithSchema(batch.Schema()), ipc.WithAllocator(cfg.mem)}
	if cfg.compress {
		writerOpts = append(writerOpts, ipc.WithZstd())
	}
	writer := ipc.NewWriter(w, writerOpts...)
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return fmt.Errorf("writing table batch: %w", err)
	}
	return writer.Close()
}

// ReadTableIPC reads an Arrow IPC stream into one table, concatenating
// batches in order.
func ReadTableIPC(r io.Reader) (*HostTable, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading table IPC stream: %w", err)
	}
	defer reader.Release()

	var out *HostTable
	for reader.Next() {
		part, err := TableFromRecord(reader.RecordBatch())
		if err != nil {
			if out != nil {
				out.Release()
			}
			return nil, err
		}
		if out == nil {
			out = part
			continue
		}
		merged, err := appendTables(out, part)
		out.Release()
		part.Release()
		if err != nil {
			return nil, err
		}
		out = merged
	}
	if err := reader.Err(); err != nil {
		if out != nil {
			out.Release()
		}
		return nil, fmt.Errorf("reading table batch: %w", err)
	}
	if out == nil {
		out = NewHostTable()
		for _, f := range reader.Schema().Fields() {
			col, err := importColumn(makeEmptyArray(memory.DefaultAllocator, f.Type), f)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", f.Name, err)
			}
			if err := out.AddColumn(f.Name, col); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// appendTables concatenates two tables with the same columns.
func appendTables(a, b *HostTable) (*HostTable, error) {
	if a.NumColumns() != b.NumColumns() {
		return nil, fmt.Errorf("ddbarrow: cannot append %d columns to %d", b.NumColumns(), a.NumColumns())
	}
	out := NewHostTable()
	for i, name := range a.names {
		merged, err := concatArrays(a.cols[i], b.cols[i])
		if err != nil {
			out.Release()
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		if err := out.AddColumn(name, merged); err != nil {
			out.Release()
			return nil, err
		}
	}
	return out, nil
}

// AsTable presents a decoded result as a table. Tables are returned as is;
// a 1-D array or a scalar becomes a one-column table named "result".
func AsTable(h HostValue) (*HostTable, error) {
	var col *Array
	switch x := h.(type) {
	case *HostTable:
		return x, nil
	case *Array:
		if x.NDim() != 1 {
			return nil, fmt.Errorf("ddbarrow: cannot present a %d-D array as a table", x.NDim())
		}
		col = x
	case Bool:
		col = BoolArray(bool(x))
	case Int:
		col = Int64Array(int64(x))
	case Float:
		col = Float64Array(float64(x))
	case Str:
		col = StrArray(string(x))
	case Bytes:
		col = StrArray(string(x))
	case DateTime:
		col = DateTimeArray(x.Unit, x.Count)
	case nil, None:
		col = ObjectArray(None{})
	default:
		return nil, fmt.Errorf("ddbarrow: cannot present %s as a table", h.Kind())
	}
	t := NewHostTable()
	if err := t.AddColumn("result", col); err != nil {
		return nil, err
	}
	return t, nil
}
