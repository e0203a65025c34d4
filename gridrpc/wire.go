// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Payload is one encoded wire unit: the structural byte stream plus the
// ordered buffer table it references by index. The two parts travel
// together but stay separate, so transports can hand buffer payloads to
// zero-copy paths.
type Payload struct {
	Bytes   []byte
	Buffers []*Buffer
}

// Framing: 3-byte magic, 1-byte version, u32 byte-stream length, u32
// buffer count, then per buffer a u64 length followed by the raw bytes.
// All integers big-endian.
var payloadMagic = [3]byte{'g', 'r', 'c'}

const payloadVersion byte = 1

const (
	maxFrameBytes   = 1 << 30
	maxFrameBuffers = 1 << 20
)

// WritePayload frames p onto w. Payloads the frame format cannot represent
// fail here rather than producing a stream the reader will reject.
func WritePayload(w io.Writer, p *Payload) error {
	if len(p.Bytes) > maxFrameBytes {
		return fmt.Errorf("gridrpc: byte stream length %d exceeds frame limit", len(p.Bytes))
	}
	if len(p.Buffers) > maxFrameBuffers {
		return fmt.Errorf("gridrpc: buffer count %d exceeds frame limit", len(p.Buffers))
	}
	for i, buf := range p.Buffers {
		if buf.Len() > maxFrameBytes {
			return fmt.Errorf("gridrpc: buffer %d length %d exceeds frame limit", i, buf.Len())
		}
	}
	var hdr [12]byte
	copy(hdr[:3], payloadMagic[:])
	hdr[3] = payloadVersion
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(p.Bytes)))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(p.Buffers)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("gridrpc: writing payload header: %w", err)
	}
	if _, err := w.Write(p.Bytes); err != nil {
		return fmt.Errorf("gridrpc: writing byte stream: %w", err)
	}
	var blen [8]byte
	for i, buf := range p.Buffers {
		binary.BigEndian.PutUint64(blen[:], uint64(buf.Len()))
		if _, err := w.Write(blen[:]); err != nil {
			return fmt.Errorf("gridrpc: writing buffer %d length: %w", i, err)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("gridrpc: writing buffer %d: %w", i, err)
		}
	}
	return nil
}

// ReadPayload reads one framed payload from r. It returns io.EOF untouched
// when the stream ends cleanly before the first header byte, so serve
// loops can distinguish shutdown from truncation.
func ReadPayload(r io.Reader) (*Payload, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("gridrpc: reading payload header: %w", err)
	}
	if [3]byte(hdr[:3]) != payloadMagic {
		return nil, fmt.Errorf("gridrpc: bad payload magic %q", hdr[:3])
	}
	if hdr[3] != payloadVersion {
		return nil, fmt.Errorf("gridrpc: unsupported payload version %d", hdr[3])
	}
	streamLen := binary.BigEndian.Uint32(hdr[4:8])
	bufCount := binary.BigEndian.Uint32(hdr[8:12])
	if streamLen > maxFrameBytes {
		return nil, fmt.Errorf("gridrpc: byte stream length %d exceeds frame limit", streamLen)
	}
	if bufCount > maxFrameBuffers {
		return nil, fmt.Errorf("gridrpc: buffer count %d exceeds frame limit", bufCount)
	}

	raw := make([]byte, streamLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("gridrpc: reading byte stream: %w", err)
	}

	buffers := make([]*Buffer, bufCount)
	var blen [8]byte
	for i := range buffers {
		if _, err := io.ReadFull(r, blen[:]); err != nil {
			return nil, fmt.Errorf("gridrpc: reading buffer %d length: %w", i, err)
		}
		n := binary.BigEndian.Uint64(blen[:])
		if n > maxFrameBytes {
			return nil, fmt.Errorf("gridrpc: buffer %d length %d exceeds frame limit", i, n)
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("gridrpc: reading buffer %d: %w", i, err)
		}
		buffers[i] = NewBuffer(data)
	}
	return &Payload{Bytes: raw, Buffers: buffers}, nil
}
