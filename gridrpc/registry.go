// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// Category identifies one of the special reference types that override
// default structural encoding. The set is closed: handlers are bound at
// registry construction and resolved by a single type-identity lookup.
type Category int

const (
	CategoryRawBuffer Category = iota
	CategoryRemoteRef
	CategoryRemoteProxy
	CategoryCompiledBlob
)

func (c Category) String() string {
	switch c {
	case CategoryRawBuffer:
		return "raw_buffer"
	case CategoryRemoteRef:
		return "remote_ref"
	case CategoryRemoteProxy:
		return "remote_proxy"
	case CategoryCompiledBlob:
		return "compiled_blob"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// RefHooks is the boundary to the distributed reference-count protocol.
// Fork produces a transferable token for a remote reference (incrementing
// the remote count); Reconstruct consumes such a token into a local handle.
// Implementations must be safe for concurrent use.
type RefHooks interface {
	Fork(ref *RemoteRef) ([]byte, error)
	Reconstruct(token []byte) (*RemoteRef, error)
}

// CompiledCodec is the boundary to the external compiled-object codec. The
// payload codec treats the flattened form as an atomic blob.
type CompiledCodec interface {
	Flatten(unit *CompiledUnit) ([]byte, error)
	Load(blob []byte) (*CompiledUnit, error)
}

// MethodBinder re-attaches a proxy's generated methods after decoding.
// Bind is called once per name in the proxy's GeneratedMethods list.
type MethodBinder interface {
	Bind(p *ModuleProxy, method string) (ProxyMethod, error)
}

// CallableResolver resolves callable symbols while decoding call
// descriptors. [Worker] implements it.
type CallableResolver interface {
	ResolveCallable(symbol string) (Callable, bool)
}

// Default proxy attribute lists. An attribute present on a proxy instance
// but absent from both lists is dropped with a diagnostic.
var (
	defaultProxyAllowedAttrs = []string{"device", "layout", "scriptable"}
	defaultProxyIgnoredAttrs = []string{"cache", "stats"}
)

// Config assembles the external collaborators for a Registry. Zero values
// get defaults where a default exists; hook-less categories fail at the
// first value that needs them, not at construction.
type Config struct {
	// Refs backs the RemoteRef and RemoteProxy categories.
	Refs RefHooks
	// Compiled backs the CompiledBlob category.
	Compiled CompiledCodec
	// Resolver resolves callable symbols during decode. Decoding a call
	// descriptor without one yields a symbol-resolution failure.
	Resolver CallableResolver
	// Diagnostics receives non-fatal encode warnings. Defaults to a
	// slog-backed sink.
	Diagnostics DiagnosticSink
	// Binder re-attaches generated proxy methods on decode. Optional;
	// without one, decoded proxies carry unbound method names only.
	Binder MethodBinder
	// ProxyAllowedAttrs and ProxyIgnoredAttrs override the default proxy
	// attribute lists.
	ProxyAllowedAttrs []string
	ProxyIgnoredAttrs []string
}

// handler is one statically bound encode/decode pair. encode turns a value
// into its wire token, recording buffers into ectx as needed; decode turns
// the token back into a value, reading from dctx.
type handler struct {
	encode func(c *Codec, v any, ectx *EncodeContext) (any, error)
	decode func(c *Codec, tok any, dctx *DecodeContext) (any, error)
}

// Registry maps the closed special-type set to its handlers. Read-only
// after construction; safe to share across goroutines without locking.
type Registry struct {
	cfg      Config
	allowed  map[string]struct{}
	ignored  map[string]struct{}
	types    map[reflect.Type]Category
	handlers map[Category]handler
}

// NewRegistry builds the special-type registry from cfg.
func NewRegistry(cfg Config) *Registry {
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = NewSlogSink(nil)
	}
	if cfg.ProxyAllowedAttrs == nil {
		cfg.ProxyAllowedAttrs = defaultProxyAllowedAttrs
	}
	if cfg.ProxyIgnoredAttrs == nil {
		cfg.ProxyIgnoredAttrs = defaultProxyIgnoredAttrs
	}

	r := &Registry{
		cfg:     cfg,
		allowed: make(map[string]struct{}, len(cfg.ProxyAllowedAttrs)),
		ignored: make(map[string]struct{}, len(cfg.ProxyIgnoredAttrs)),
		types: map[reflect.Type]Category{
			reflect.TypeOf((*Buffer)(nil)):       CategoryRawBuffer,
			reflect.TypeOf((*RemoteRef)(nil)):    CategoryRemoteRef,
			reflect.TypeOf((*ModuleProxy)(nil)):  CategoryRemoteProxy,
			reflect.TypeOf((*CompiledUnit)(nil)): CategoryCompiledBlob,
		},
	}
	for _, a := range cfg.ProxyAllowedAttrs {
		r.allowed[a] = struct{}{}
	}
	for _, a := range cfg.ProxyIgnoredAttrs {
		r.ignored[a] = struct{}{}
	}
	r.handlers = map[Category]handler{
		CategoryRawBuffer:    {encode: encodeRawBuffer, decode: decodeRawBuffer},
		CategoryRemoteRef:    {encode: encodeRemoteRef, decode: decodeRemoteRef},
		CategoryRemoteProxy:  {encode: encodeRemoteProxy, decode: decodeRemoteProxy},
		CategoryCompiledBlob: {encode: encodeCompiledBlob, decode: decodeCompiledBlob},
	}
	return r
}

// categoryOf resolves a value's special category, if it has one.
func (r *Registry) categoryOf(v any) (Category, bool) {
	cat, ok := r.types[reflect.TypeOf(v)]
	return cat, ok
}

// RawBuffer: record the buffer, emit only its index.

func encodeRawBuffer(_ *Codec, v any, ectx *EncodeContext) (any, error) {
	idx := ectx.Record(v.(*Buffer))
	return bufferToken{Index: uint64(idx)}, nil
}

func decodeRawBuffer(_ *Codec, tok any, dctx *DecodeContext) (any, error) {
	return dctx.Fetch(int(tok.(bufferToken).Index))
}

// RemoteRef: fork on the way out, reconstruct on the way in.

func encodeRemoteRef(c *Codec, v any, _ *EncodeContext) (any, error) {
	if c.reg.cfg.Refs == nil {
		return nil, errors.New("gridrpc: encoding a remote reference requires RefHooks")
	}
	fork, err := c.reg.cfg.Refs.Fork(v.(*RemoteRef))
	if err != nil {
		return nil, fmt.Errorf("gridrpc: forking remote reference: %w", err)
	}
	return refToken{Fork: fork}, nil
}

func decodeRemoteRef(c *Codec, tok any, _ *DecodeContext) (any, error) {
	if c.reg.cfg.Refs == nil {
		return nil, errors.New("gridrpc: decoding a remote reference requires RefHooks")
	}
	ref, err := c.reg.cfg.Refs.Reconstruct(tok.(refToken).Fork)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: reconstructing remote reference: %w", err)
	}
	return ref, nil
}

// RemoteProxy: allow-listed attributes plus the forked backing reference.
// Attributes outside both lists produce one diagnostic each and are
// dropped; the encode still completes.

func encodeRemoteProxy(c *Codec, v any, ectx *EncodeContext) (any, error) {
	p := v.(*ModuleProxy)
	if p.Module == nil {
		return nil, errors.New("gridrpc: module proxy has no backing reference")
	}
	if c.reg.cfg.Refs == nil {
		return nil, errors.New("gridrpc: encoding a module proxy requires RefHooks")
	}

	attrs := make(map[string]any, len(p.Attrs))
	for _, name := range sortedKeys(p.Attrs) {
		if _, ok := c.reg.allowed[name]; ok {
			fv, err := c.flatten(p.Attrs[name], ectx)
			if err != nil {
				return nil, fmt.Errorf("gridrpc: proxy attribute %q: %w", name, err)
			}
			attrs[name] = fv
			continue
		}
		if _, ok := c.reg.ignored[name]; ok {
			continue
		}
		c.reg.cfg.Diagnostics.Warn(
			"proxy attribute is neither allow-listed nor ignored; dropped from encoding",
			KV{Key: "attribute", Value: name},
			KV{Key: "worker", Value: p.Worker},
		)
	}

	fork, err := c.reg.cfg.Refs.Fork(p.Module)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: forking proxy backing reference: %w", err)
	}
	return proxyToken{
		Worker:  p.Worker,
		Attrs:   attrs,
		Methods: slices.Clone(p.GeneratedMethods),
		Fork:    fork,
	}, nil
}

func decodeRemoteProxy(c *Codec, tok any, dctx *DecodeContext) (any, error) {
	t := tok.(proxyToken)
	if c.reg.cfg.Refs == nil {
		return nil, errors.New("gridrpc: decoding a module proxy requires RefHooks")
	}
	ref, err := c.reg.cfg.Refs.Reconstruct(t.Fork)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: reconstructing proxy backing reference: %w", err)
	}

	attrs := make(map[string]any, len(t.Attrs))
	for name, fv := range t.Attrs {
		rv, err := c.rebuild(fv, dctx)
		if err != nil {
			return nil, fmt.Errorf("gridrpc: proxy attribute %q: %w", name, err)
		}
		attrs[name] = rv
	}

	p := &ModuleProxy{
		Worker:           t.Worker,
		Attrs:            attrs,
		GeneratedMethods: t.Methods,
		Module:           ref,
	}
	if c.reg.cfg.Binder != nil && len(t.Methods) > 0 {
		p.methods = make(map[string]ProxyMethod, len(t.Methods))
		for _, name := range t.Methods {
			m, err := c.reg.cfg.Binder.Bind(p, name)
			if err != nil {
				return nil, fmt.Errorf("gridrpc: binding proxy method %q: %w", name, err)
			}
			p.methods[name] = m
		}
	}
	return p, nil
}

// CompiledBlob: delegate entirely to the external compiled-object codec.

func encodeCompiledBlob(c *Codec, v any, _ *EncodeContext) (any, error) {
	if c.reg.cfg.Compiled == nil {
		return nil, errors.New("gridrpc: encoding a compiled unit requires a CompiledCodec")
	}
	blob, err := c.reg.cfg.Compiled.Flatten(v.(*CompiledUnit))
	if err != nil {
		return nil, fmt.Errorf("gridrpc: flattening compiled unit: %w", err)
	}
	return compiledToken{Blob: blob}, nil
}

func decodeCompiledBlob(c *Codec, tok any, _ *DecodeContext) (any, error) {
	if c.reg.cfg.Compiled == nil {
		return nil, errors.New("gridrpc: decoding a compiled unit requires a CompiledCodec")
	}
	unit, err := c.reg.cfg.Compiled.Load(tok.(compiledToken).Blob)
	if err != nil {
		return nil, fmt.Errorf("gridrpc: loading compiled unit: %w", err)
	}
	return unit, nil
}
