// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestPayloadFramingRoundTrip(t *testing.T) {
	in := &Payload{
		Bytes: []byte{0xa1, 0x61, 0x6b, 0x01},
		Buffers: []*Buffer{
			NewBuffer([]byte("first buffer")),
			NewBuffer(nil),
			NewBuffer([]byte("third")),
		},
	}
	var wire bytes.Buffer
	if err := WritePayload(&wire, in); err != nil {
		t.Fatalf("WritePayload failed: %v", err)
	}

	out, err := ReadPayload(&wire)
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	if !bytes.Equal(out.Bytes, in.Bytes) {
		t.Error("byte stream did not survive framing")
	}
	if len(out.Buffers) != 3 {
		t.Fatalf("got %d buffers, want 3", len(out.Buffers))
	}
	for i := range in.Buffers {
		if !bytes.Equal(out.Buffers[i].Bytes(), in.Buffers[i].Bytes()) {
			t.Errorf("buffer %d mismatch", i)
		}
	}
}

func TestReadPayloadCleanEOF(t *testing.T) {
	if _, err := ReadPayload(bytes.NewReader(nil)); err != io.EOF {
		t.Errorf("empty stream: got %v, want io.EOF", err)
	}
}

func TestReadPayloadBadMagic(t *testing.T) {
	_, err := ReadPayload(bytes.NewReader([]byte("xxx\x01\x00\x00\x00\x00\x00\x00\x00\x00")))
	if err == nil || !strings.Contains(err.Error(), "magic") {
		t.Errorf("got %v, want a bad-magic error", err)
	}
}

func TestWritePayloadRejectsOversizeTable(t *testing.T) {
	p := &Payload{Buffers: make([]*Buffer, maxFrameBuffers+1)}
	var wire bytes.Buffer
	err := WritePayload(&wire, p)
	if err == nil || !strings.Contains(err.Error(), "buffer count") {
		t.Errorf("got %v, want a buffer-count error", err)
	}
	if wire.Len() != 0 {
		t.Errorf("wrote %d bytes of an unrepresentable frame", wire.Len())
	}
}

func TestReadPayloadRejectsHostileBufferCount(t *testing.T) {
	// A 12-byte header claiming 2^32-1 buffers must fail before allocating
	// the table.
	hdr := append([]byte("grc\x01"), 0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff)
	_, err := ReadPayload(bytes.NewReader(hdr))
	if err == nil || !strings.Contains(err.Error(), "buffer count") {
		t.Errorf("got %v, want a buffer-count error", err)
	}
}

func TestReadPayloadTruncated(t *testing.T) {
	in := &Payload{Bytes: []byte("stream"), Buffers: []*Buffer{NewBuffer([]byte("buf"))}}
	var wire bytes.Buffer
	if err := WritePayload(&wire, in); err != nil {
		t.Fatalf("WritePayload failed: %v", err)
	}
	truncated := wire.Bytes()[:wire.Len()-2]
	if _, err := ReadPayload(bytes.NewReader(truncated)); err == nil || err == io.EOF {
		t.Errorf("truncated stream: got %v, want a framing error", err)
	}
}
