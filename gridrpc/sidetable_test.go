// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestEncodeContextRecordsInOrder(t *testing.T) {
	ectx := NewEncodeContext()
	a := NewBuffer([]byte("a"))
	b := NewBuffer([]byte("b"))
	if idx := ectx.Record(a); idx != 0 {
		t.Errorf("first buffer got index %d", idx)
	}
	if idx := ectx.Record(b); idx != 1 {
		t.Errorf("second buffer got index %d", idx)
	}
	// The same buffer recorded again is a new entry; the table keeps
	// positional identity, not value identity.
	if idx := ectx.Record(a); idx != 2 {
		t.Errorf("repeated buffer got index %d", idx)
	}
	bufs := ectx.Buffers()
	if len(bufs) != 3 || bufs[0] != a || bufs[1] != b || bufs[2] != a {
		t.Errorf("table order wrong: %v", bufs)
	}
}

func TestDecodeContextFetch(t *testing.T) {
	a := NewBuffer([]byte("a"))
	dctx := NewDecodeContext([]*Buffer{a})
	got, err := dctx.Fetch(0)
	if err != nil || got != a {
		t.Fatalf("Fetch(0) = (%v, %v)", got, err)
	}
	if _, err := dctx.Fetch(1); err == nil {
		t.Fatal("Fetch past the table did not fail")
	} else if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := dctx.Fetch(-1); err == nil {
		t.Fatal("Fetch(-1) did not fail")
	}
}

func TestConcurrentEncodesHaveIsolatedTables(t *testing.T) {
	c := newTestCodec(Config{})
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := fmt.Sprintf("payload-%d", i)
			p, err := c.Encode([]any{NewBuffer([]byte(content))})
			if err != nil {
				t.Errorf("Encode failed: %v", err)
				return
			}
			if len(p.Buffers) != 1 {
				t.Errorf("goroutine %d: table holds %d buffers", i, len(p.Buffers))
				return
			}
			if got := string(p.Buffers[0].Bytes()); got != content {
				t.Errorf("goroutine %d: got buffer %q", i, got)
			}
		}()
	}
	wg.Wait()
}
