// Package allowlist defines the cached dataset: a case-insensitive mapping
// from a user handle to the landing page and disclaimer shown for that user,
// together with the storage layout shared by the writer and its readers.
package allowlist

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Storage keys. The dataset and the timestamp are always written together.
const (
	KeyDataset     = "twitter_users"
	KeyLastRefresh = "last_twitter_sheet_read_time"
)

// Record is the data kept for one allowlisted handle.
type Record struct {
	URL        string `json:"url"`
	Disclaimer string `json:"disclaimer"`
}

// Dataset maps normalized handles to records.
type Dataset map[string]Record

// Normalize returns the canonical form of a handle used as a Dataset key.
func Normalize(handle string) string {
	return strings.ToLower(handle)
}

// Lookup finds the record for handle, ignoring case.
func (d Dataset) Lookup(handle string) (Record, bool) {
	r, ok := d[Normalize(handle)]
	return r, ok
}

// Encode serializes the dataset for storage.
func (d Dataset) Encode() ([]byte, error) {
	if d == nil {
		d = Dataset{}
	}
	return json.Marshal(d)
}

// Decode parses a stored dataset.
func Decode(data []byte) (Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	if d == nil {
		d = Dataset{}
	}
	return d, nil
}

// EncodeTimestamp stores t as milliseconds since the Unix epoch.
func EncodeTimestamp(t time.Time) []byte {
	return strconv.AppendInt(nil, t.UnixMilli(), 10)
}

// DecodeTimestamp parses a stored timestamp. An empty value is the epoch.
func DecodeTimestamp(data []byte) (time.Time, error) {
	if len(data) == 0 {
		return time.UnixMilli(0), nil
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
	}
	return time.UnixMilli(ms), nil
}
