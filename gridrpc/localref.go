package gridrpc

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// LocalRefRegistry is a single-process [RefHooks] implementation: values
// are pinned in an in-memory table keyed by UUID, each fork bumps the
// reference count, and Release drops it. It gives tests and single-host
// pipelines real fork/reconstruct semantics without a distributed
// reference-count service.
type LocalRefRegistry struct {
	owner string

	mu      sync.Mutex
	entries map[uuid.UUID]*localEntry
}

type localEntry struct {
	value any
	refs  int
}

// NewLocalRefRegistry creates a registry whose references are owned by the
// named worker.
func NewLocalRefRegistry(owner string) *LocalRefRegistry {
	return &LocalRefRegistry{
		owner:   owner,
		entries: make(map[uuid.UUID]*localEntry),
	}
}

// NewRef pins a value and returns a reference to it, with one count held.
func (r *LocalRefRegistry) NewRef(value any) *RemoteRef {
	id := uuid.New()
	r.mu.Lock()
	r.entries[id] = &localEntry{value: value, refs: 1}
	r.mu.Unlock()
	return &RemoteRef{ID: id, Owner: r.owner}
}

// Deref returns the pinned value behind a reference.
func (r *LocalRefRegistry) Deref(ref *RemoteRef) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ref.ID]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Fork implements [RefHooks]: it increments the reference count and emits
// a token of the 16 raw UUID bytes followed by the owner name.
func (r *LocalRefRegistry) Fork(ref *RemoteRef) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ref.ID]
	if !ok {
		return nil, fmt.Errorf("gridrpc: forking unknown reference %s", ref.ID)
	}
	e.refs++
	tok := make([]byte, 0, 16+len(ref.Owner))
	tok = append(tok, ref.ID[:]...)
	tok = append(tok, ref.Owner...)
	return tok, nil
}

// Reconstruct implements [RefHooks].
func (r *LocalRefRegistry) Reconstruct(token []byte) (*RemoteRef, error) {
	if len(token) < 16 {
		return nil, fmt.Errorf("gridrpc: reference token too short (%d bytes)", len(token))
	}
	id, err := uuid.FromBytes(token[:16])
	if err != nil {
		return nil, fmt.Errorf("gridrpc: parsing reference token: %w", err)
	}
	return &RemoteRef{ID: id, Owner: string(token[16:])}, nil
}

// Release drops one count; the value is unpinned when the count reaches
// zero.
func (r *LocalRefRegistry) Release(ref *RemoteRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ref.ID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(r.entries, ref.ID)
	}
}

// RefCount returns the current count for a reference, for tests and
// debugging.
func (r *LocalRefRegistry) RefCount(ref *RemoteRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ref.ID]
	if !ok {
		return 0
	}
	return e.refs
}
