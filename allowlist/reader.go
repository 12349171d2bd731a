package allowlist

import (
	"context"

	"github.com/Keksclan/goRawrSheets/store"
)

// Reader gives consumers read access to the cached dataset. It never fails on
// a missing dataset: before the first successful refresh it reports an empty
// dataset with ok set to false.
type Reader struct {
	kv store.KV
}

// NewReader returns a Reader over kv.
func NewReader(kv store.KV) *Reader {
	return &Reader{kv: kv}
}

// Dataset returns the current snapshot. ok is false when no refresh has
// succeeded yet.
func (r *Reader) Dataset(ctx context.Context) (d Dataset, ok bool, err error) {
	raw, ok, err := r.kv.Get(ctx, KeyDataset)
	if err != nil {
		return Dataset{}, false, err
	}
	if !ok {
		return Dataset{}, false, nil
	}
	d, err = Decode(raw)
	if err != nil {
		return Dataset{}, false, err
	}
	return d, true, nil
}

// Lookup returns the record for handle from the current snapshot.
func (r *Reader) Lookup(ctx context.Context, handle string) (Record, bool, error) {
	d, _, err := r.Dataset(ctx)
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := d.Lookup(handle)
	return rec, ok, nil
}
