// Package store provides the key-value storage port used by the refresh
// scheduler, with an in-memory implementation, an in-process L1 layer backed
// by ristretto, a Redis implementation, and a tiered combination of the two.
package store

import (
	"context"
	"errors"
)

// ErrDropped is returned by L1 when ristretto refuses a write.
var ErrDropped = errors.New("store: write dropped by L1 cache")

// KV is the storage contract. Implementations must apply SetMany atomically:
// either every entry becomes visible or none does.
type KV interface {
	// Get retrieves a value by key. The boolean indicates the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// SetMany stores all entries as one unit.
	SetMany(ctx context.Context, entries map[string][]byte) error
}
