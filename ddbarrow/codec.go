// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ddbarrow

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Codec converts between host and remote values. It is safe for concurrent
// use; the only shared state is the active null policy.
type Codec struct {
	policy atomic.Pointer[policyHolder]
	mem    memory.Allocator
}

type policyHolder struct {
	p NullPolicy
}

// NewCodec returns a codec using PassThrough and the default allocator.
func NewCodec() *Codec {
	c := &Codec{mem: memory.DefaultAllocator}
	c.SetNullPolicy(PassThrough())
	return c
}

// SetNullPolicy replaces the active policy. Decodes already in flight keep
// the policy they started with. A nil policy restores PassThrough.
func (c *Codec) SetNullPolicy(p NullPolicy) {
	if p == nil {
		p = PassThrough()
	}
	c.policy.Store(&policyHolder{p: p})
}

// NullPolicy returns the active policy.
func (c *Codec) NullPolicy() NullPolicy {
	return c.policy.Load().p
}

// SetAllocator sets the allocator used for decoded Arrow buffers.
func (c *Codec) SetAllocator(mem memory.Allocator) {
	c.mem = mem
}

// Decode converts a remote value to a host value. A nil value decodes to
// None.
func (c *Codec) Decode(v Value) (HostValue, error) {
	d := &decoder{policy: c.NullPolicy(), mem: c.mem}
	return d.value(v)
}

// Encode converts a host value to a remote value.
func (c *Codec) Encode(h HostValue) (Value, error) {
	return encodeValue(h)
}

// DecodeFields decodes each field of a streamed message into a List.
func (c *Codec) DecodeFields(fields []Value) (List, error) {
	d := &decoder{policy: c.NullPolicy(), mem: c.mem}
	out := make(List, len(fields))
	for i, f := range fields {
		hv, err := d.value(f)
		if err != nil {
			return nil, err
		}
		out[i] = hv
	}
	return out, nil
}
