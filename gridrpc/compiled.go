// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ZstdCompiledCodec is a [CompiledCodec] that marshals compiled units with
// the wire's CBOR mode and compresses the result with zstd. Compiled
// programs are large and highly compressible; the rest of the payload is
// not worth compressing.
//
// The zero value is not usable; construct with NewZstdCompiledCodec.
type ZstdCompiledCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompiledCodec creates the codec. The encoder and decoder are
// concurrency-safe and reused across calls.
func NewZstdCompiledCodec() (*ZstdCompiledCodec, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: creating zstd decoder: %w", err)
	}
	return &ZstdCompiledCodec{enc: enc, dec: dec}, nil
}

// Flatten implements [CompiledCodec].
func (c *ZstdCompiledCodec) Flatten(unit *CompiledUnit) ([]byte, error) {
	raw, err := encMode.Marshal(compiledWire{Name: unit.Name, Program: unit.Program})
	if err != nil {
		return nil, fmt.Errorf("gridrpc: marshaling compiled unit %q: %w", unit.Name, err)
	}
	return c.enc.EncodeAll(raw, nil), nil
}

// Load implements [CompiledCodec].
func (c *ZstdCompiledCodec) Load(blob []byte) (*CompiledUnit, error) {
	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: decompressing compiled unit: %w", err)
	}
	var w compiledWire
	if err := decMode.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("gridrpc: unmarshaling compiled unit: %w", err)
	}
	return &CompiledUnit{Name: w.Name, Program: w.Program}, nil
}

type compiledWire struct {
	_       struct{} `cbor:",toarray"`
	Name    string
	Program []byte
}
