// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import "sync"

// FaultCtor builds a concrete error from a reconstructed fault message.
type FaultCtor func(msg string) error

var (
	faultCtorsMu sync.RWMutex
	faultCtors   = make(map[string]FaultCtor)
)

// RegisterFaultKind installs a constructor for a fault kind, so [Resolve]
// can raise a failure of that kind as a distinct error type rather than a
// generic *Fault. Registering nil removes a constructor.
func RegisterFaultKind(kind string, ctor FaultCtor) {
	faultCtorsMu.Lock()
	defer faultCtorsMu.Unlock()
	if ctor == nil {
		delete(faultCtors, kind)
		return
	}
	faultCtors[kind] = ctor
}

func faultCtorFor(kind string) (FaultCtor, bool) {
	faultCtorsMu.RLock()
	ctor, ok := faultCtors[kind]
	faultCtorsMu.RUnlock()
	return ctor, ok
}

// Resolve is the single point where a remote failure becomes a local
// error, on the call's originating side. A successful outcome returns its
// value untouched. A failed outcome has its description unescaped and is
// raised as the registered error type for its kind, falling back to a
// generic *Fault carrying the kind tag, so the kind survives even without
// a registered constructor.
func Resolve(outcome Outcome) (any, error) {
	if !outcome.Failed() {
		return outcome.Value, nil
	}
	f := outcome.Failure
	msg := unescapeText(f.Description)
	if ctor, ok := faultCtorFor(f.Kind); ok {
		return nil, ctor(msg)
	}
	return nil, &Fault{Type: f.Kind, Message: msg}
}
