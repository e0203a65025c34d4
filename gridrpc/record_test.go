// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

type shardSpec struct {
	Rank    int              `gridrpc:"rank"`
	Hosts   []string         `gridrpc:"hosts"`
	Weights *Buffer          `gridrpc:"weights"`
	Labels  map[string]int64 `gridrpc:"labels"`
	scratch string
	Skipped string `gridrpc:"-"`
}

func init() {
	RegisterRecord[shardSpec]("test.shardSpec")
}

func TestRecordRoundTrip(t *testing.T) {
	c := newTestCodec(Config{})
	in := &shardSpec{
		Rank:    3,
		Hosts:   []string{"h0", "h1"},
		Weights: NewBuffer([]byte{1, 2, 3, 4}),
		Labels:  map[string]int64{"epoch": 12},
		scratch: "local only",
		Skipped: "never sent",
	}
	p, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(p.Buffers) != 1 {
		t.Fatalf("buffer field not routed to the side table: %d buffers", len(p.Buffers))
	}

	out, ok := c.Decode(p).(*shardSpec)
	if !ok {
		t.Fatalf("decoded value is %T, want *shardSpec", c.Decode(p))
	}
	if out.Rank != 3 || !reflect.DeepEqual(out.Hosts, []string{"h0", "h1"}) {
		t.Errorf("fields mismatch: %+v", out)
	}
	if out.Labels["epoch"] != 12 {
		t.Errorf("map field mismatch: %+v", out.Labels)
	}
	if out.Weights == nil || string(out.Weights.Bytes()) != "\x01\x02\x03\x04" {
		t.Error("buffer field did not survive")
	}
	if out.scratch != "" || out.Skipped != "" {
		t.Errorf("non-wire fields crossed: %+v", out)
	}
}

func TestRecordValueAndPointerEncodeSame(t *testing.T) {
	c := newTestCodec(Config{})
	v := shardSpec{Rank: 1, Hosts: []string{"h"}}
	byValue, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode by value failed: %v", err)
	}
	byPointer, err := c.Encode(&v)
	if err != nil {
		t.Fatalf("Encode by pointer failed: %v", err)
	}
	if string(byValue.Bytes) != string(byPointer.Bytes) {
		t.Error("value and pointer forms encode differently")
	}
}

func TestRecordUnknownNameYieldsFailure(t *testing.T) {
	c := newTestCodec(Config{})
	p, err := encMode.Marshal(recordToken{Name: "test.unregistered", Fields: map[string]any{}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	out := c.Decode(&Payload{Bytes: p})
	f, ok := out.(*Failure)
	if !ok {
		t.Fatalf("Decode returned %T, want *Failure", out)
	}
	if f.Kind != KindSymbolResolution {
		t.Errorf("failure kind = %q", f.Kind)
	}
	if !strings.Contains(f.Description, "test.unregistered") {
		t.Errorf("description does not name the record: %q", f.Description)
	}
}

type annotatedValue struct {
	Value any          `gridrpc:"value"`
	Label fmt.Stringer `gridrpc:"label"`
}

func init() {
	RegisterRecord[annotatedValue]("test.annotatedValue")
}

func TestRecordInterfaceFields(t *testing.T) {
	c := newTestCodec(Config{})

	// An empty-interface field accepts any canonical wire value.
	raw, err := encMode.Marshal(recordToken{
		Name:   "test.annotatedValue",
		Fields: map[string]any{"value": "ok"},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	out, ok := c.Decode(&Payload{Bytes: raw}).(*annotatedValue)
	if !ok || out.Value != "ok" {
		t.Fatalf("empty-interface field did not decode: %#v", out)
	}

	// A non-empty interface field cannot be satisfied from wire data; the
	// mismatch must surface as a protocol failure, not a panic.
	raw, err = encMode.Marshal(recordToken{
		Name:   "test.annotatedValue",
		Fields: map[string]any{"label": int64(1)},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	f, ok := c.Decode(&Payload{Bytes: raw}).(*Failure)
	if !ok {
		t.Fatal("interface mismatch did not yield a *Failure")
	}
	if f.Kind != KindProtocol {
		t.Errorf("failure kind = %q, want %q", f.Kind, KindProtocol)
	}
}

func TestRegisterRecordConflictPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("conflicting registration did not panic")
		}
	}()
	type other struct{}
	RegisterRecord[other]("test.shardSpec")
}
