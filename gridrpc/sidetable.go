// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import "fmt"

// EncodeContext is the send-side half of the buffer side table. Buffers
// encountered during one encode traversal are appended in encounter order
// and referenced from the byte stream by their dense zero-based index.
//
// A context belongs exclusively to the encode call that created it. Nested
// encodes — a special-type handler that performs its own full encode while
// the outer traversal is in flight — each construct a fresh context, so the
// outer table is never disturbed; there is no ambient per-goroutine state
// to save or restore.
type EncodeContext struct {
	buffers []*Buffer
}

// NewEncodeContext returns an empty send-side buffer table.
func NewEncodeContext() *EncodeContext {
	return &EncodeContext{}
}

// Record appends buf to the table and returns its index.
func (c *EncodeContext) Record(buf *Buffer) int {
	c.buffers = append(c.buffers, buf)
	return len(c.buffers) - 1
}

// Buffers returns the recorded buffers in append order. The returned slice
// is the context's backing storage; callers hand it to the transport and
// must not mutate it while the encode that produced it is still running.
func (c *EncodeContext) Buffers() []*Buffer {
	return c.buffers
}

// DecodeContext is the receive-side half of the side table. The caller
// supplies the buffer table received alongside the byte stream and retains
// ownership of it; the codec only reads entries by index. Index order must
// match the append order of the encode that produced the stream — a
// mismatch is a contract breach between the two sides, surfaced as an
// out-of-range error here and a ProtocolError failure by the codec.
type DecodeContext struct {
	buffers []*Buffer
}

// NewDecodeContext wraps a received buffer table for decoding.
func NewDecodeContext(buffers []*Buffer) *DecodeContext {
	return &DecodeContext{buffers: buffers}
}

// Fetch returns the buffer at index i.
func (c *DecodeContext) Fetch(i int) (*Buffer, error) {
	if i < 0 || i >= len(c.buffers) {
		return nil, fmt.Errorf("gridrpc: buffer index %d out of range, table holds %d", i, len(c.buffers))
	}
	return c.buffers[i], nil
}

// Len returns the number of buffers in the supplied table.
func (c *DecodeContext) Len() int {
	return len(c.buffers)
}
