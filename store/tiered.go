package store

import (
	"context"
	"sync"
)

// Tiered puts an L1 in front of a backing KV. Reads check L1 first, then the
// backing store. Writes go to the backing store, then L1. A read-write lock
// keeps readers of the same Tiered from observing a write halfway through.
type Tiered struct {
	l1      *L1
	backing KV

	mu sync.RWMutex
}

// NewTiered creates a two-level store.
func NewTiered(l1 *L1, backing KV) *Tiered {
	return &Tiered{l1: l1, backing: backing}
}

// Get checks L1, then the backing store. Backing hits are promoted into L1.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if v, ok, _ := t.l1.Get(ctx, key); ok {
		return v, true, nil
	}
	v, ok, err := t.backing.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	// A dropped promotion only costs the next read another round trip.
	_ = t.l1.SetMany(ctx, map[string][]byte{key: v})
	return v, true, nil
}

// SetMany writes all entries to the backing store and then to L1. When L1
// rejects the write the affected keys are left out of L1, so later reads fall
// through to the backing store.
func (t *Tiered) SetMany(ctx context.Context, entries map[string][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.backing.SetMany(ctx, entries); err != nil {
		return err
	}
	_ = t.l1.SetMany(ctx, entries)
	return nil
}
