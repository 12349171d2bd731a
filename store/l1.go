package store

import (
	"bytes"
	"context"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process layer backed by ristretto. Entries never expire; they
// are replaced by the next write. On its own an L1 is not atomic across keys,
// so it is meant to sit in front of a backing store inside a Tiered.
type L1 struct {
	rc *ristretto.Cache[string, []byte]
}

// DefaultL1MaxCost holds the dataset and timestamp slots with room to spare.
const DefaultL1MaxCost = 64

// NewL1 creates a new L1 cache. maxCost is the number of entries the cache
// can hold; every entry costs 1 and ristretto's internal cost is ignored.
func NewL1(maxCost int64) (*L1, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxCost * 10,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc}, nil
}

// Get retrieves a value by key.
func (l *L1) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := l.rc.Get(key)
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

// SetMany stores every entry and waits for ristretto to apply them. If any
// write is dropped, either from a full buffer or by the admission policy, the
// keys of this call are evicted and ErrDropped is returned so no partial set
// stays visible.
func (l *L1) SetMany(_ context.Context, entries map[string][]byte) error {
	for k, v := range entries {
		if !l.rc.Set(k, bytes.Clone(v), 1) {
			l.rc.Wait()
			l.evict(entries)
			return ErrDropped
		}
	}
	l.rc.Wait()
	for k := range entries {
		if _, ok := l.rc.Get(k); !ok {
			l.evict(entries)
			return ErrDropped
		}
	}
	return nil
}

func (l *L1) evict(entries map[string][]byte) {
	for k := range entries {
		l.rc.Del(k)
	}
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() {
	l.rc.Close()
}
