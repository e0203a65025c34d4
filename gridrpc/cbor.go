// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Wire tag numbers for the token envelopes, from the CBOR first-come
// first-served range. Both sides must agree on these, the same way they
// agree on callable symbol names.
const (
	tagRawBuffer uint64 = 52601
	tagRemoteRef uint64 = 52602
	tagProxy     uint64 = 52603
	tagCompiled  uint64 = 52604
	tagCall      uint64 = 52605
	tagRecord    uint64 = 52606
	tagFailure   uint64 = 52607
)

// bufferToken is the in-stream placeholder for a raw buffer: only the
// side-table index crosses in the byte stream.
type bufferToken struct {
	_     struct{} `cbor:",toarray"`
	Index uint64
}

// refToken carries the opaque fork token produced by RefHooks.Fork.
type refToken struct {
	_    struct{} `cbor:",toarray"`
	Fork []byte
}

// proxyToken carries a module proxy: its allow-listed attributes (already
// flattened), generated method names, and the fork token for its backing
// reference.
type proxyToken struct {
	_       struct{} `cbor:",toarray"`
	Worker  string
	Attrs   map[string]any
	Methods []string
	Fork    []byte
}

// compiledToken carries the opaque blob produced by CompiledCodec.Flatten.
type compiledToken struct {
	_    struct{} `cbor:",toarray"`
	Blob []byte
}

// callToken carries a call descriptor with flattened arguments.
type callToken struct {
	_      struct{} `cbor:",toarray"`
	Sym    string
	Args   []any
	Kwargs map[string]any
	Mode   string
	Source string
}

// recordToken carries a registered record struct by symbol name with
// flattened field values.
type recordToken struct {
	_      struct{} `cbor:",toarray"`
	Name   string
	Fields map[string]any
}

// failureToken carries a Failure travelling as an ordinary result value.
type failureToken struct {
	_    struct{} `cbor:",toarray"`
	Desc string
	Kind string
}

// encMode is the CBOR encoder configured with Core Deterministic Encoding
// (RFC 8949 §4.2) plus the token tag set: same logical payload always
// produces identical bytes.
var encMode cbor.EncMode

// decMode is the matching decoder: string-keyed maps and signed integers
// when decoding into any, and token tags decoded to their Go types.
var decMode cbor.DecMode

func init() {
	tags := cbor.NewTagSet()
	opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}
	for _, t := range []struct {
		typ reflect.Type
		num uint64
	}{
		{reflect.TypeOf(bufferToken{}), tagRawBuffer},
		{reflect.TypeOf(refToken{}), tagRemoteRef},
		{reflect.TypeOf(proxyToken{}), tagProxy},
		{reflect.TypeOf(compiledToken{}), tagCompiled},
		{reflect.TypeOf(callToken{}), tagCall},
		{reflect.TypeOf(recordToken{}), tagRecord},
		{reflect.TypeOf(failureToken{}), tagFailure},
	} {
		if err := tags.Add(opts, t.typ, t.num); err != nil {
			panic("gridrpc: tag set initialization failed: " + err.Error())
		}
	}

	var err error
	encMode, err = cbor.CoreDetEncOptions().EncModeWithTags(tags)
	if err != nil {
		panic("gridrpc: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Map values decoded into any must be map[string]any, not the CBOR
		// default map[any]any; the codec only produces string keys.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Non-negative integers decode to int64 rather than uint64 so
		// encode→decode round trips land on one canonical integer type.
		IntDec: cbor.IntDecConvertSigned,
	}.DecModeWithTags(tags)
	if err != nil {
		panic("gridrpc: CBOR decoder initialization failed: " + err.Error())
	}
}
