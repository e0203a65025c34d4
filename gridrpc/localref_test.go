// Copyright 2025-2026, GridMesh Labs
// SPDX-License-Identifier: Apache-2.0

package gridrpc

import "testing"

func TestLocalRefLifecycle(t *testing.T) {
	refs := NewLocalRefRegistry("owner0")
	ref := refs.NewRef("state")
	if refs.RefCount(ref) != 1 {
		t.Fatalf("fresh ref count = %d", refs.RefCount(ref))
	}

	tok, err := refs.Fork(ref)
	if err != nil {
		t.Fatalf("Fork failed: %v", err)
	}
	if refs.RefCount(ref) != 2 {
		t.Errorf("count after fork = %d, want 2", refs.RefCount(ref))
	}

	got, err := refs.Reconstruct(tok)
	if err != nil {
		t.Fatalf("Reconstruct failed: %v", err)
	}
	if got.ID != ref.ID || got.Owner != "owner0" {
		t.Errorf("reconstructed %+v, want %+v", got, ref)
	}

	v, ok := refs.Deref(got)
	if !ok || v != "state" {
		t.Errorf("Deref = (%v, %v)", v, ok)
	}

	refs.Release(ref)
	if refs.RefCount(ref) != 1 {
		t.Errorf("count after release = %d, want 1", refs.RefCount(ref))
	}
	refs.Release(ref)
	if _, ok := refs.Deref(ref); ok {
		t.Error("value still pinned after count reached zero")
	}
}

func TestLocalRefForkUnknown(t *testing.T) {
	refs := NewLocalRefRegistry("owner0")
	other := NewLocalRefRegistry("owner1")
	ref := other.NewRef(1)
	if _, err := refs.Fork(ref); err == nil {
		t.Error("forking a foreign reference did not fail")
	}
}

func TestLocalRefBadToken(t *testing.T) {
	refs := NewLocalRefRegistry("owner0")
	if _, err := refs.Reconstruct([]byte("short")); err == nil {
		t.Error("short token did not fail")
	}
}
