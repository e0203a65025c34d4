// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"

	"github.com/fxamacker/cbor/v2"
)

// Codec is the object-graph serializer. It performs a structural traversal
// of a value, deferring to the registry for the special reference types and
// to default structural encoding for everything else, and produces one
// Payload per call. A Codec is immutable and safe for concurrent use.
type Codec struct {
	reg *Registry
}

// NewCodec returns a codec backed by reg.
func NewCodec(reg *Registry) *Codec {
	return &Codec{reg: reg}
}

// Encode serializes v into a byte stream plus an ordered buffer table. A
// fresh send-side table is opened for the traversal and closed on every
// exit path; nested Encode calls from inside special-type handlers get
// their own tables and never disturb this one.
//
// A value containing a type with neither structural encoding nor a
// special-type match fails here, synchronously.
func (c *Codec) Encode(v any) (*Payload, error) {
	ectx := NewEncodeContext()
	node, err := c.flatten(v, ectx)
	if err != nil {
		return nil, err
	}
	raw, err := encMode.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: marshaling byte stream: %w", err)
	}
	return &Payload{Bytes: raw, Buffers: ectx.Buffers()}, nil
}

// Decode deserializes a payload. The caller supplies the buffer table and
// retains ownership of it.
//
// Decode never fails with an error: a byte stream referencing a callable
// or record symbol this side cannot resolve yields a *Failure tagged
// SymbolResolutionError, and a malformed stream yields a *Failure tagged
// ProtocolError. Failures flow onward like any decoded value, to be raised
// only by [Resolve] on the originating side.
func (c *Codec) Decode(p *Payload) any {
	var root any
	if err := decMode.Unmarshal(p.Bytes, &root); err != nil {
		return NewFailure(KindProtocol, fmt.Sprintf("unreadable byte stream: %v", err))
	}
	v, err := c.rebuild(root, NewDecodeContext(p.Buffers))
	if err != nil {
		if se, ok := err.(*symbolError); ok {
			return se.failure()
		}
		return NewFailure(KindProtocol, err.Error())
	}
	return v
}

// flatten converts a value graph into its wire tree: special types become
// tokens, containers are walked recursively in deterministic order, and
// scalars pass through (integers canonicalized to int64, floats to
// float64).
func (c *Codec) flatten(v any, ectx *EncodeContext) (any, error) {
	if v == nil {
		return nil, nil
	}
	// A typed nil pointer (a record's unset *Buffer field, say) encodes as
	// nil rather than reaching its category handler.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil, nil
	}

	if cat, ok := c.reg.categoryOf(v); ok {
		return c.reg.handlers[cat].encode(c, v, ectx)
	}

	switch val := v.(type) {
	case *Failure:
		return failureToken{Desc: val.Description, Kind: val.Kind}, nil
	case *CallDescriptor:
		return c.flattenCall(val, ectx)
	case bool, string, int64, float64:
		return val, nil
	case []byte:
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			fv, err := c.flatten(el, ectx)
			if err != nil {
				return nil, err
			}
			out[i] = fv
		}
		return out, nil
	case map[string]any:
		return c.flattenStringMap(val, ectx)
	}

	rv := reflect.ValueOf(v)
	if name, st, ok := recordOf(rv); ok {
		return c.flattenRecord(name, st, ectx)
	}

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("gridrpc: unsigned value %d overflows the wire integer range", u)
		}
		return int64(u), nil
	case reflect.Float32:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			fv, err := c.flatten(rv.Index(i).Interface(), ectx)
			if err != nil {
				return nil, err
			}
			out[i] = fv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("gridrpc: map key type %s has no structural encoding; only string keys are supported", rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		for _, k := range keys {
			fv, err := c.flatten(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface(), ectx)
			if err != nil {
				return nil, err
			}
			out[k] = fv
		}
		return out, nil
	}

	return nil, fmt.Errorf("gridrpc: type %T has no structural encoding and no special-type match", v)
}

// flattenStringMap walks map values in sorted key order so buffer indices
// are assigned by a canonical pre-order traversal.
func (c *Codec) flattenStringMap(m map[string]any, ectx *EncodeContext) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for _, k := range sortedKeys(m) {
		fv, err := c.flatten(m[k], ectx)
		if err != nil {
			return nil, err
		}
		out[k] = fv
	}
	return out, nil
}

func (c *Codec) flattenCall(cd *CallDescriptor, ectx *EncodeContext) (any, error) {
	args := make([]any, len(cd.Args))
	for i, a := range cd.Args {
		fv, err := c.flatten(a, ectx)
		if err != nil {
			return nil, fmt.Errorf("gridrpc: call argument %d: %w", i, err)
		}
		args[i] = fv
	}
	kwargs, err := c.flattenStringMap(cd.Kwargs, ectx)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: call keyword arguments: %w", err)
	}
	return callToken{
		Sym:    cd.Func,
		Args:   args,
		Kwargs: kwargs,
		Mode:   string(cd.Mode),
		Source: cd.Source,
	}, nil
}

// rebuild converts a decoded wire tree back into a value graph, reversing
// flatten. Token types dispatch to their category handlers; anything
// carrying an unknown tag is a protocol violation.
func (c *Codec) rebuild(node any, dctx *DecodeContext) (any, error) {
	switch n := node.(type) {
	case bufferToken:
		return c.reg.handlers[CategoryRawBuffer].decode(c, n, dctx)
	case refToken:
		return c.reg.handlers[CategoryRemoteRef].decode(c, n, dctx)
	case proxyToken:
		return c.reg.handlers[CategoryRemoteProxy].decode(c, n, dctx)
	case compiledToken:
		return c.reg.handlers[CategoryCompiledBlob].decode(c, n, dctx)
	case callToken:
		return c.rebuildCall(n, dctx)
	case recordToken:
		return c.buildRecord(n, dctx)
	case failureToken:
		return &Failure{Description: n.Desc, Kind: n.Kind}, nil
	case []any:
		out := make([]any, len(n))
		for i, el := range n {
			rv, err := c.rebuild(el, dctx)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, el := range n {
			rv, err := c.rebuild(el, dctx)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case cbor.Tag:
		return nil, fmt.Errorf("gridrpc: unknown wire tag %d", n.Number)
	default:
		return n, nil
	}
}

func (c *Codec) rebuildCall(tok callToken, dctx *DecodeContext) (any, error) {
	var fn Callable
	if c.reg.cfg.Resolver != nil {
		fn, _ = c.reg.cfg.Resolver.ResolveCallable(tok.Sym)
	}
	if fn == nil {
		return nil, &symbolError{what: "callable", symbol: tok.Sym}
	}

	args := make([]any, len(tok.Args))
	for i, a := range tok.Args {
		rv, err := c.rebuild(a, dctx)
		if err != nil {
			return nil, fmt.Errorf("gridrpc: call argument %d: %w", i, err)
		}
		args[i] = rv
	}
	var kwargs map[string]any
	if len(tok.Kwargs) > 0 {
		kwargs = make(map[string]any, len(tok.Kwargs))
		for k, a := range tok.Kwargs {
			rv, err := c.rebuild(a, dctx)
			if err != nil {
				return nil, fmt.Errorf("gridrpc: call keyword argument %q: %w", k, err)
			}
			kwargs[k] = rv
		}
	}
	return &CallDescriptor{
		Func:   tok.Sym,
		Args:   args,
		Kwargs: kwargs,
		Mode:   ExecMode(tok.Mode),
		Source: tok.Source,
		fn:     fn,
	}, nil
}

// symbolError marks a decode that referenced a symbol this side cannot
// resolve. It is converted to a SymbolResolutionError failure value, never
// raised, because the descriptor must still make the round trip back to
// the caller.
type symbolError struct {
	what   string // "callable" or "record type"
	symbol string
}

func (e *symbolError) Error() string {
	return fmt.Sprintf("cannot resolve %s %q", e.what, e.symbol)
}

func (e *symbolError) failure() *Failure {
	desc := fmt.Sprintf(
		"cannot resolve %s %q on this worker; the codec does not transfer code, so ensure the referenced callable is defined identically on both sides",
		e.what, e.symbol)
	return NewFailure(KindSymbolResolution, desc)
}

// sortedKeys returns m's keys in ascending order, for deterministic
// traversal.
func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
