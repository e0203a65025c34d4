// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import "github.com/google/uuid"

// CallDescriptor is a deferred invocation: a callable symbol registered on
// the receiving worker, positional arguments, and uniquely-keyed keyword
// arguments. It is created by the caller before encoding and consumed
// exactly once by [Worker.Execute] on the receiving side.
type CallDescriptor struct {
	// Func is the callable symbol. Both sides must agree on symbol names
	// out of band; there is no code transfer.
	Func   string
	Args   []any
	Kwargs map[string]any

	// Mode and Source identify the invocation for tracing. Mode defaults
	// to ExecSync when left empty.
	Mode   ExecMode
	Source string

	// fn is filled in during decode when the codec has a resolver, so the
	// executor does not look the symbol up twice.
	fn Callable
}

// Failure is a fault crossing the process boundary as ordinary data. It is
// produced by [Worker.Execute] when an invocation faults, or by
// [Codec.Decode] when the byte stream cannot be honored, and it is turned
// back into an error only by [Resolve], on the call's originating side.
type Failure struct {
	// Description is the transport-safe (escaped) textual description:
	// worker identity, fault string, and stack trace.
	Description string
	// Kind is the original fault's kind tag.
	Kind string
}

// NewFailure builds a Failure, applying the transport escape to desc.
func NewFailure(kind, desc string) *Failure {
	return &Failure{Description: escapeText(desc), Kind: kind}
}

// Outcome is the result of executing a decoded payload: either a value or
// a Failure, never both.
type Outcome struct {
	Value   any
	Failure *Failure
}

// Ok wraps a successful result value.
func Ok(v any) Outcome {
	return Outcome{Value: v}
}

// Fail wraps a failure.
func Fail(f *Failure) Outcome {
	return Outcome{Failure: f}
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool {
	return o.Failure != nil
}

// OutcomeOf classifies a decoded response value: a *Failure becomes a
// failed outcome, anything else a successful one. Callers feed the result
// to [Resolve].
func OutcomeOf(v any) Outcome {
	if f, ok := v.(*Failure); ok {
		return Fail(f)
	}
	return Ok(v)
}

// RemoteRef is a handle to an object whose true state lives on some worker,
// tracked by a distributed reference-count protocol outside this package.
// Crossing a worker boundary goes through the [RefHooks] fork/reconstruct
// pair, which is assumed to mutate that external refcount state.
type RemoteRef struct {
	ID    uuid.UUID
	Owner string
}

// ProxyMethod is a generated proxy method bound at decode time.
type ProxyMethod func(args ...any) (any, error)

// ModuleProxy stands in for a computation unit living on a remote worker,
// reached through its backing RemoteRef. Only allow-listed attributes cross
// the wire; generated methods are re-bound on the receiving side through
// the registry's [MethodBinder].
type ModuleProxy struct {
	// Worker names the worker that owns the real module.
	Worker string
	// Attrs holds the proxy's explicit attributes. Attributes outside both
	// the registry's allow-list and ignore-list are dropped with a
	// diagnostic during encoding.
	Attrs map[string]any
	// GeneratedMethods lists method names to re-bind after decoding.
	GeneratedMethods []string
	// Module is the backing reference to the remote computation unit.
	Module *RemoteRef

	methods map[string]ProxyMethod
}

// Method returns the bound generated method with the given name, if the
// proxy was decoded with a method binder configured.
func (p *ModuleProxy) Method(name string) (ProxyMethod, bool) {
	m, ok := p.methods[name]
	return m, ok
}

// CompiledUnit is an ahead-of-time compiled computation unit. The codec
// treats it as an atomic payload: flattening and loading are delegated
// entirely to the registry's [CompiledCodec].
type CompiledUnit struct {
	Name    string
	Program []byte
}
