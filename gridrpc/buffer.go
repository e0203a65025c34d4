// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Buffer is the opaque large-payload handle carried in the side table. It
// wraps an Arrow memory buffer so tables can reference Arrow-allocated
// memory (record batch buffers, mmapped regions) without copying; the byte
// stream only ever carries the buffer's table index.
type Buffer struct {
	buf *memory.Buffer
}

// NewBuffer wraps data without copying. The caller must keep data alive and
// unmodified for as long as the buffer is referenced by a payload.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{buf: memory.NewBufferBytes(data)}
}

// NewBufferCopy allocates from mem and copies data into the new buffer.
// A nil allocator uses the default Go allocator.
func NewBufferCopy(alloc memory.Allocator, data []byte) *Buffer {
	if alloc == nil {
		alloc = memory.NewGoAllocator()
	}
	b := memory.NewResizableBuffer(alloc)
	b.Resize(len(data))
	copy(b.Bytes(), data)
	return &Buffer{buf: b}
}

// WrapArrowBuffer adopts an existing Arrow buffer without retaining it.
func WrapArrowBuffer(buf *memory.Buffer) *Buffer {
	return &Buffer{buf: buf}
}

// Bytes returns the buffer's contents. The slice aliases the underlying
// storage.
func (b *Buffer) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the buffer length in bytes.
func (b *Buffer) Len() int {
	return b.buf.Len()
}

// Retain increments the underlying Arrow buffer's reference count.
func (b *Buffer) Retain() {
	b.buf.Retain()
}

// Release decrements the underlying Arrow buffer's reference count.
func (b *Buffer) Release() {
	b.buf.Release()
}

// tableBytes returns the total byte size of a buffer table, for call
// statistics.
func tableBytes(buffers []*Buffer) int64 {
	var total int64
	for _, b := range buffers {
		total += int64(b.Len())
	}
	return total
}
