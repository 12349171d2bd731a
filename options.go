package gorawrsheets

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/goRawrSheets/internal/core"
	"github.com/Keksclan/goRawrSheets/refresh"
	"github.com/Keksclan/goRawrSheets/sheet"
	"github.com/Keksclan/goRawrSheets/store"
	"github.com/Keksclan/goRawrSheets/tracing"
)

// Option configures a Service.
type Option func(*config)

// WithSource sets the spreadsheet ID.
func WithSource(id string) Option {
	return func(c *config) {
		c.refresh.SourceID = id
	}
}

// WithSubsets sets the tabs to fetch. Order matters: a handle present in
// several tabs keeps the record from the last one.
func WithSubsets(names ...string) Option {
	return func(c *config) {
		c.refresh.Subsets = append([]string(nil), names...)
	}
}

// WithColumns sets the header names of the handle, URL and disclaimer columns.
func WithColumns(cols sheet.Columns) Option {
	return func(c *config) {
		c.refresh.Columns = cols
	}
}

// WithInterval sets the minimum time between two real fetches.
func WithInterval(d time.Duration) Option {
	return func(c *config) {
		c.refresh.Interval = d
	}
}

// WithPollPeriod sets how often Run checks whether a refresh is due.
func WithPollPeriod(d time.Duration) Option {
	return func(c *config) {
		c.refresh.PollPeriod = d
	}
}

// WithFetchTimeout bounds a whole refresh cycle. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.refresh.FetchTimeout = d
	}
}

// WithStore sets where the dataset and its timestamp are kept. Without it an
// in-memory store is used.
func WithStore(kv store.KV) Option {
	return func(c *config) {
		c.kv = kv
	}
}

// WithFetcher sets the client that reads tabs from the remote source.
func WithFetcher(f refresh.Fetcher) Option {
	return func(c *config) {
		c.fetcher = f
	}
}

// WithLogger sets the logger used by the scheduler and the status server.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithMetrics registers the refresh collectors with reg and serves reg from
// MetricsHandler.
func WithMetrics(reg *prometheus.Registry) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// WithOpenTelemetry enables spans for refresh cycles and status RPCs.
func WithOpenTelemetry(cfg tracing.Config) Option {
	return func(c *config) {
		c.tracing = &cfg
		c.middlewares.Add(core.OrderTracing, tracing.UnaryServerInterceptor(&cfg))
	}
}

// WithRecovery turns panics in status RPC handlers into codes.Internal.
func WithRecovery() Option {
	return func(c *config) {
		c.recovery = true
	}
}

// WithClock overrides time.Now for the scheduler.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.clock = now
	}
}
