// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestExecuteSuccess(t *testing.T) {
	w := NewWorker("executor0")
	w.Register("math.add", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return args[0].(int64) + args[1].(int64), nil
	})

	outcome := w.Execute(t.Context(), &CallDescriptor{Func: "math.add", Args: []any{int64(2), int64(3)}})
	if outcome.Failed() {
		t.Fatalf("Execute failed: %+v", outcome.Failure)
	}
	if outcome.Value != int64(5) {
		t.Errorf("got %v, want 5", outcome.Value)
	}
}

func TestExecuteFaultBecomesFailureAndResolves(t *testing.T) {
	w := NewWorker("executor0")
	w.Register("explode", func(_ context.Context, _ []any, _ map[string]any) (any, error) {
		return nil, &Fault{Type: KindInvalidValue, Message: "boom"}
	})
	var logBuf bytes.Buffer
	w.SetLogger(slog.New(slog.NewTextHandler(&logBuf, nil)))

	outcome := w.Execute(t.Context(), &CallDescriptor{Func: "explode"})
	if !outcome.Failed() {
		t.Fatal("Execute did not fail")
	}
	f := outcome.Failure
	if f.Kind != KindInvalidValue {
		t.Errorf("failure kind = %q, want %q", f.Kind, KindInvalidValue)
	}

	// The full composed description, stack trace included, must reach the
	// local log, not just the wire.
	logged := logBuf.String()
	if !strings.Contains(logged, "On executor0:") || !strings.Contains(logged, "boom") {
		t.Errorf("local log is missing the fault description: %q", logged)
	}
	if !strings.Contains(logged, "goroutine") {
		t.Errorf("local log is missing the execution trace: %q", logged)
	}

	// Round-trip the failure as a response value before resolving, the way
	// a real caller receives it.
	c := newTestCodec(Config{})
	p, err := c.Encode(f)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	_, err = Resolve(OutcomeOf(c.Decode(p)))
	if err == nil {
		t.Fatal("Resolve did not raise")
	}
	if !errors.Is(err, ErrFault) {
		t.Errorf("resolved error is not a *Fault: %T", err)
	}
	var fault *Fault
	if !errors.As(err, &fault) || fault.Type != KindInvalidValue {
		t.Errorf("resolved fault = %+v", err)
	}
	if !strings.Contains(fault.Message, "On executor0:") || !strings.Contains(fault.Message, "boom") {
		t.Errorf("fault message lost the worker context: %q", fault.Message)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	w := NewWorker("executor0")
	w.Register("panics", func(_ context.Context, _ []any, _ map[string]any) (any, error) {
		panic("wild pointer")
	})

	outcome := w.Execute(t.Context(), &CallDescriptor{Func: "panics"})
	if !outcome.Failed() {
		t.Fatal("Execute did not fail")
	}
	if outcome.Failure.Kind != KindRuntime {
		t.Errorf("failure kind = %q, want %q", outcome.Failure.Kind, KindRuntime)
	}
	if !strings.Contains(unescapeText(outcome.Failure.Description), "wild pointer") {
		t.Errorf("panic value missing from description: %q", outcome.Failure.Description)
	}
}

func TestExecuteUnknownCallable(t *testing.T) {
	w := NewWorker("executor0")
	w.Register("known", func(_ context.Context, _ []any, _ map[string]any) (any, error) { return nil, nil })

	outcome := w.Execute(t.Context(), &CallDescriptor{Func: "unknown"})
	if !outcome.Failed() {
		t.Fatal("Execute did not fail")
	}
	if outcome.Failure.Kind != KindSymbolResolution {
		t.Errorf("failure kind = %q, want %q", outcome.Failure.Kind, KindSymbolResolution)
	}
	desc := unescapeText(outcome.Failure.Description)
	if !strings.Contains(desc, "Available callables: known") {
		t.Errorf("description does not list registered callables: %q", desc)
	}
}

func TestExecuteRejectsNonDescriptor(t *testing.T) {
	w := NewWorker("executor0")
	outcome := w.Execute(t.Context(), "just a string")
	if !outcome.Failed() || outcome.Failure.Kind != KindInvalidValue {
		t.Errorf("got %+v, want an InvalidValue failure", outcome)
	}
}

// recordingHook captures hook invocations for assertions.
type recordingHook struct {
	mu       sync.Mutex
	infos    []CallInfo
	stats    []*CallStatistics
	failures []*Failure
}

func (h *recordingHook) OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken) {
	return ctx, "token"
}

func (h *recordingHook) OnCallEnd(_ context.Context, token HookToken, info CallInfo, stats *CallStatistics, failure *Failure) {
	if token != "token" {
		panic("hook token not round-tripped")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.infos = append(h.infos, info)
	h.stats = append(h.stats, stats)
	h.failures = append(h.failures, failure)
}

func TestServeLoop(t *testing.T) {
	executor := NewWorker("executor0")
	executor.Register("bytes.len", func(_ context.Context, args []any, _ map[string]any) (any, error) {
		return int64(args[0].(*Buffer).Len()), nil
	})
	hook := &recordingHook{}
	executor.SetCallHook(hook)

	codec := newTestCodec(Config{Resolver: executor})

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	done := make(chan struct{})
	go func() {
		executor.Serve(codec, reqR, respW)
		respW.Close()
		close(done)
	}()

	p, err := codec.Encode(&CallDescriptor{
		Func:   "bytes.len",
		Args:   []any{NewBuffer([]byte("abcdef"))},
		Mode:   ExecAsync,
		Source: "caller0",
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := WritePayload(reqW, p); err != nil {
		t.Fatalf("WritePayload failed: %v", err)
	}

	resp, err := ReadPayload(respR)
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	result, err := Resolve(OutcomeOf(codec.Decode(resp)))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result != int64(6) {
		t.Errorf("got %v, want 6", result)
	}

	reqW.Close()
	<-done

	if len(hook.infos) != 1 {
		t.Fatalf("hook fired %d times, want 1", len(hook.infos))
	}
	info := hook.infos[0]
	if got, want := info.SpanKey(), "rpc_async#bytes.len(caller0 -> executor0)"; got != want {
		t.Errorf("span key = %q, want %q", got, want)
	}
	stats := hook.stats[0]
	if stats.InputBuffers != 1 || stats.InputBytes != 6 {
		t.Errorf("input stats = %+v", stats)
	}
	if hook.failures[0] != nil {
		t.Errorf("hook reported a failure: %+v", hook.failures[0])
	}
}

func TestServeReportsFailureToHook(t *testing.T) {
	executor := NewWorker("executor0")
	hook := &recordingHook{}
	executor.SetCallHook(hook)
	codec := newTestCodec(Config{Resolver: executor})

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	go func() {
		executor.Serve(codec, reqR, respW)
		respW.Close()
	}()

	p, err := codec.Encode(&CallDescriptor{Func: "nope", Source: "caller0"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := WritePayload(reqW, p); err != nil {
		t.Fatalf("WritePayload failed: %v", err)
	}
	resp, err := ReadPayload(respR)
	if err != nil {
		t.Fatalf("ReadPayload failed: %v", err)
	}
	reqW.Close()

	_, err = Resolve(OutcomeOf(codec.Decode(resp)))
	if err == nil {
		t.Fatal("Resolve did not raise for an unresolvable call")
	}
	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.failures) != 1 || hook.failures[0] == nil {
		t.Fatalf("hook did not observe the failure: %+v", hook.failures)
	}
	if hook.failures[0].Kind != KindSymbolResolution {
		t.Errorf("hook failure kind = %q", hook.failures[0].Kind)
	}
}

func TestRegisterFaultKind(t *testing.T) {
	RegisterFaultKind("QuotaExceeded", func(msg string) error {
		return errors.New("quota: " + msg)
	})
	defer RegisterFaultKind("QuotaExceeded", nil)

	_, err := Resolve(Fail(NewFailure("QuotaExceeded", "limit hit")))
	if err == nil || !strings.HasPrefix(err.Error(), "quota: ") {
		t.Errorf("registered constructor not used: %v", err)
	}

	// Unregistered kinds fall back to a generic fault carrying the tag.
	_, err = Resolve(Fail(NewFailure("SomethingElse", "oops")))
	var fault *Fault
	if !errors.As(err, &fault) || fault.Type != "SomethingElse" {
		t.Errorf("fallback fault = %v", err)
	}
}

func TestResolveUnescapesDescription(t *testing.T) {
	raw := "On executor0:\nbad value é\nstack"
	_, err := Resolve(Fail(NewFailure(KindRuntime, raw)))
	if err == nil {
		t.Fatal("Resolve did not raise")
	}
	var fault *Fault
	if !errors.As(err, &fault) {
		t.Fatalf("resolved error is %T", err)
	}
	if fault.Message != raw {
		t.Errorf("description did not unescape to the original:\n got %q\nwant %q", fault.Message, raw)
	}
}

func TestResolveSuccessPassthrough(t *testing.T) {
	v, err := Resolve(Ok(int64(11)))
	if err != nil || v != int64(11) {
		t.Errorf("got (%v, %v), want (11, nil)", v, err)
	}
}
