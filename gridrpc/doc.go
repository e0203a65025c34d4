// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

// Package gridrpc implements the argument/result codec for the grid-rpc
// distributed call layer. It converts call payloads — a callable symbol,
// positional and keyword arguments, and handles to remote-owned objects —
// into a transport-ready form of (byte stream, ordered buffer table), and
// back. Large opaque buffers never travel inside the byte stream: they are
// recorded in a side table during encoding and supplied back, in the same
// order, during decoding. This keeps bulk data out of the structural
// serializer so a transport can move it over a separate, cheaper channel.
//
// # Wire unit
//
// One payload is a [Payload]: CBOR bytes (Core Deterministic Encoding) plus
// an ordered slice of [Buffer] handles backed by Arrow memory. Within the
// byte stream, the four special reference categories — raw buffers, remote
// reference handles, module proxies, and compiled units — appear as tagged
// placeholder tokens; everything else uses plain structural encoding.
// [WritePayload] and [ReadPayload] provide a minimal length-prefixed frame
// for transports that want one, but the codec itself only defines the pair.
//
// # Value model
//
// Encode accepts plain scalars, byte slices, sequences, string-keyed
// mappings, registered record structs (see [RegisterRecord]), the special
// reference types, [CallDescriptor], and [Failure]. Decoding into dynamic
// values yields the canonical forms nil, bool, int64, float64, string,
// []byte, []any, and map[string]any; registered records decode back to
// their concrete struct pointers. Typed slices and maps on the encode side
// therefore canonicalize on decode — register a record type when a typed
// round trip is required.
//
// # Failure propagation
//
// A failure never crosses the process boundary as a raised error. The
// executor ([Worker.Execute]) intercepts every fault, logs it locally with
// the worker identity and a full stack trace, and returns it as a [Failure]
// value inside an [Outcome]. A decode that cannot resolve a callable or
// record symbol likewise produces a Failure instead of failing. [Resolve]
// is the single point, on the call's originating side, where a Failure
// becomes an error again.
//
// # Concurrency
//
// Encode and decode state is call-scoped: each Encode or Decode builds its
// own side-table context, so calls may nest freely on one goroutine (a
// special-type handler may trigger a full inner encode without disturbing
// the outer buffer table) and run concurrently across goroutines. The
// special-type registry is read-only after construction and safe for
// concurrent use without locking. Nothing in this package blocks, performs
// I/O beyond the explicit serve loop, or is cancelable; timeouts and
// retries belong to the transport layer.
package gridrpc
