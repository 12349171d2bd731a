// Package gsheets fetches allowlist subsets (spreadsheet tabs) through the
// Google Sheets v4 API. A [Fetcher] satisfies refresh.Fetcher.
package gsheets

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/Keksclan/goRawrSheets/ratelimit"
)

// Default request pacing. The Sheets read quota is 60 requests per minute.
const (
	DefaultRequestsPerSecond = 1.0
	DefaultBurst             = 5
)

type config struct {
	clientOpts []option.ClientOption
	rps        float64
	burst      int
}

// Option configures a Fetcher.
type Option func(*config)

// WithAPIKey authenticates with a Google API key. Public sheets need nothing
// more.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.clientOpts = append(c.clientOpts, option.WithAPIKey(key))
	}
}

// WithClientOptions passes options straight to the Sheets client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *config) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// WithRequestRate paces requests to rps per second with the given burst.
// A non-positive rps disables pacing.
func WithRequestRate(rps float64, burst int) Option {
	return func(c *config) {
		c.rps = rps
		c.burst = burst
	}
}

// Fetcher reads spreadsheet ranges.
type Fetcher struct {
	values *sheetsapi.SpreadsheetsValuesService
	lim    *ratelimit.Limiter
}

// New creates a Fetcher. The client is built once here; nothing is loaded
// lazily when a refresh runs.
func New(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := config{rps: DefaultRequestsPerSecond, burst: DefaultBurst}
	for _, o := range opts {
		o(&cfg)
	}
	svc, err := sheetsapi.NewService(ctx, cfg.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gsheets: new service: %w", err)
	}
	f := &Fetcher{values: sheetsapi.NewSpreadsheetsValuesService(svc)}
	if cfg.rps > 0 {
		f.lim = ratelimit.NewLimiter(cfg.rps, max(cfg.burst, 1))
	}
	return f, nil
}

// FetchSubset returns every row of the named tab, header first. Cells are
// returned as their formatted strings.
func (f *Fetcher) FetchSubset(ctx context.Context, spreadsheetID, tab string) ([][]string, error) {
	if f.lim != nil {
		if err := f.lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	vr, err := f.values.Get(spreadsheetID, tab).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gsheets: get %q: %w", tab, err)
	}
	rows := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cellString(v)
		}
		rows[i] = cells
	}
	return rows, nil
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
