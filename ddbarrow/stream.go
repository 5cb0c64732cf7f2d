// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// RowCollector accumulates streamed messages into column buffers and emits
// them as tables of at most batchSize rows. Every message must carry the
// same number of fields.
type RowCollector struct {
	names     []string
	batchSize int
	emit      func(*HostTable) error

	mu      sync.Mutex
	columns [][]HostValue
	rows    int
	err     error
}

// NewRowCollector creates a collector. names may be nil, in which case
// columns are named c0, c1, ... from the first message. A batchSize of zero
// emits only on Flush.
func NewRowCollector(names []string, batchSize int, emit func(*HostTable) error) *RowCollector {
	return &RowCollector{names: names, batchSize: batchSize, emit: emit}
}

// Handle adds msg and records any failure for Err. It satisfies Handler.
func (c *RowCollector) Handle(msg List) {
	if err := c.Add(msg); err != nil {
		c.mu.Lock()
		if c.err == nil {
			c.err = err
		}
		c.mu.Unlock()
	}
}

// Add appends one message as a row, emitting when the batch is full.
func (c *RowCollector) Add(msg List) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.columns == nil {
		if c.names == nil {
			c.names = make([]string, len(msg))
			for i := range c.names {
				c.names[i] = "c" + strconv.Itoa(i)
			}
		}
		if len(c.names) != len(msg) {
			return fmt.Errorf("RowCollector: message has %d fields, expected %d", len(msg), len(c.names))
		}
		c.columns = make([][]HostValue, len(msg))
	}
	if len(msg) != len(c.columns) {
		return fmt.Errorf("RowCollector: message has %d fields, expected %d", len(msg), len(c.columns))
	}
	for i, f := range msg {
		c.columns[i] = append(c.columns[i], f)
	}
	c.rows++
	if c.batchSize > 0 && c.rows >= c.batchSize {
		return c.flushLocked()
	}
	return nil
}

// Flush emits any buffered rows.
func (c *RowCollector) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// Err returns the first failure recorded by Handle.
func (c *RowCollector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Buffered returns the number of rows not yet emitted.
func (c *RowCollector) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *RowCollector) flushLocked() error {
	if c.rows == 0 {
		return nil
	}
	t := NewHostTable()
	for i, vals := range c.columns {
		col, err := columnArray(vals)
		if err != nil {
			t.Release()
			return fmt.Errorf("RowCollector: column %q: %w", c.names[i], err)
		}
		if err := t.AddColumn(c.names[i], col); err != nil {
			t.Release()
			return err
		}
	}
	for i := range c.columns {
		c.columns[i] = c.columns[i][:0]
	}
	c.rows = 0
	return c.emit(t)
}

// columnArray types a column of scalars by encoding it as a collection and
// decoding the resulting vector.
func columnArray(vals []HostValue) (*Array, error) {
	allNone := true
	for _, v := range vals {
		if !isNone(v) {
			allNone = false
			break
		}
	}
	if allNone {
		objs := make([]HostValue, len(vals))
		for i := range objs {
			objs[i] = None{}
		}
		return ObjectArray(objs...), nil
	}
	vec, err := encodeSequence(append([]HostValue(nil), vals...))
	if err != nil {
		return nil, err
	}
	d := &decoder{policy: PassThrough(), mem: memory.DefaultAllocator}
	return d.vector(vec)
}
