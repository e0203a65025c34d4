// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// Callable is a function registered on a worker under a symbol name.
// Positional arguments and keyword arguments arrive already rebuilt into
// canonical decoded forms.
type Callable func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Worker executes decoded call descriptors under a stable worker name. It
// implements [CallableResolver], so a codec configured with the worker
// resolves symbols against its registration table.
//
// Register all callables before the worker starts serving; the table is
// read without locking on the hot path.
type Worker struct {
	name      string
	callables map[string]Callable
	hook      CallHook
	logger    *slog.Logger
}

// NewWorker creates a worker with the given name.
func NewWorker(name string) *Worker {
	return &Worker{
		name:      name,
		callables: make(map[string]Callable),
		logger:    slog.Default(),
	}
}

// Name returns the worker's name.
func (w *Worker) Name() string {
	return w.name
}

// Register binds a callable to a symbol name, replacing any previous
// binding.
func (w *Worker) Register(symbol string, fn Callable) {
	w.callables[symbol] = fn
}

// Callables returns the registered symbol names in sorted order.
func (w *Worker) Callables() []string {
	names := make([]string, 0, len(w.callables))
	for name := range w.callables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveCallable implements [CallableResolver].
func (w *Worker) ResolveCallable(symbol string) (Callable, bool) {
	fn, ok := w.callables[symbol]
	return fn, ok
}

// SetCallHook installs an observability hook around the serve loop.
func (w *Worker) SetCallHook(h CallHook) {
	w.hook = h
}

// SetLogger replaces the worker's logger.
func (w *Worker) SetLogger(l *slog.Logger) {
	w.logger = l
}

// Execute runs a decoded payload and captures the result as an Outcome.
// It never returns an error and never panics: a fault inside the callable
// becomes a Failure describing the worker, the fault, and the stack, ready
// to be encoded as the response value.
//
// A *Failure arriving as the decoded value passes through unchanged; the
// codec already diagnosed it during decode and it must reach the caller
// as-is.
func (w *Worker) Execute(ctx context.Context, decoded any) Outcome {
	if f, ok := decoded.(*Failure); ok {
		return Fail(f)
	}
	cd, ok := decoded.(*CallDescriptor)
	if !ok {
		return Fail(NewFailure(KindInvalidValue,
			composeFaultDescription(w.name, fmt.Errorf("expected a call descriptor, got %T", decoded))))
	}

	fn := cd.fn
	if fn == nil {
		fn, _ = w.ResolveCallable(cd.Func)
	}
	if fn == nil {
		err := fmt.Errorf("unknown callable %q. Available callables: %s",
			cd.Func, strings.Join(w.Callables(), ", "))
		return Fail(NewFailure(KindSymbolResolution, composeFaultDescription(w.name, err)))
	}

	var result any
	var err error
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				err = &Fault{Type: KindRuntime, Message: fmt.Sprintf("%v", rv)}
			}
		}()
		result, err = fn(ctx, cd.Args, cd.Kwargs)
	}()
	if err != nil {
		desc := composeFaultDescription(w.name, err)
		w.logger.Error("invocation faulted",
			"worker", w.name, "func", cd.Func,
			"fault", firstLine(fmt.Sprintf("%v", err)), "trace", desc)
		return Fail(NewFailure(faultKind(err), desc))
	}
	return Ok(result)
}

// Serve runs the worker's request loop on a reader/writer pair: one framed
// request payload in, one framed response payload out, in lockstep, until
// the reader reports EOF.
func (w *Worker) Serve(codec *Codec, r io.Reader, wr io.Writer) {
	w.ServeWithContext(context.Background(), codec, r, wr)
}

// ServeWithContext runs the request loop with a context.
func (w *Worker) ServeWithContext(ctx context.Context, codec *Codec, r io.Reader, wr io.Writer) {
	for {
		if err := w.serveOne(ctx, codec, r, wr); err != nil {
			if err == io.EOF {
				return
			}
			if !isTransportClosed(err) {
				w.logger.Error("serve loop error", "worker", w.name, "err", err)
			}
			return
		}
	}
}

// serveOne handles one complete request-response cycle.
func (w *Worker) serveOne(ctx context.Context, codec *Codec, r io.Reader, wr io.Writer) error {
	req, err := ReadPayload(r)
	if err != nil {
		return err
	}

	decoded := codec.Decode(req)

	stats := &CallStatistics{}
	stats.RecordInput(int64(len(req.Buffers)), tableBytes(req.Buffers))

	info := CallInfo{Mode: ExecSync, DestWorker: w.name}
	if cd, ok := decoded.(*CallDescriptor); ok {
		info.Func = cd.Func
		info.SourceWorker = cd.Source
		if cd.Mode != "" {
			info.Mode = cd.Mode
		}
	}

	var hookToken HookToken
	var hookActive bool
	if w.hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					w.logger.Error("call hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, hookToken = w.hook.OnCallStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	outcome := w.Execute(ctx, decoded)
	var respValue any = outcome.Value
	if outcome.Failed() {
		respValue = outcome.Failure
	}
	resp, err := codec.Encode(respValue)
	if err != nil {
		// The result could not be encoded; the caller still gets a
		// response, carrying the encode fault instead of the value.
		f := NewFailure(faultKind(err), composeFaultDescription(w.name, err))
		outcome = Fail(f)
		resp, err = codec.Encode(f)
		if err != nil {
			return fmt.Errorf("gridrpc: encoding failure response: %w", err)
		}
	}
	stats.RecordOutput(int64(len(resp.Buffers)), tableBytes(resp.Buffers))

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					w.logger.Error("call hook end panic", "err", rv)
				}
			}()
			w.hook.OnCallEnd(ctx, hookToken, info, stats, outcome.Failure)
		}()
	}

	return WritePayload(wr, resp)
}

// isTransportClosed returns true for errors that indicate the transport
// was closed normally.
func isTransportClosed(err error) bool {
	if err == io.EOF {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}
