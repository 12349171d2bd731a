// Package refresh keeps the cached allowlist up to date. A [Scheduler] decides
// whether a refresh is due from the timestamp of the last successful one,
// fetches every subset concurrently when it is, and commits the merged
// dataset together with a new timestamp. A failed cycle writes nothing.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Keksclan/goRawrSheets/allowlist"
	"github.com/Keksclan/goRawrSheets/internal/logging"
	"github.com/Keksclan/goRawrSheets/metrics"
	"github.com/Keksclan/goRawrSheets/sheet"
	"github.com/Keksclan/goRawrSheets/store"
	"github.com/Keksclan/goRawrSheets/tracing"
)

// Fetcher returns the raw rows of one subset, header row first.
type Fetcher interface {
	FetchSubset(ctx context.Context, sourceID, subset string) ([][]string, error)
}

// FetcherFunc adapts a function to [Fetcher].
type FetcherFunc func(ctx context.Context, sourceID, subset string) ([][]string, error)

// FetchSubset calls f.
func (f FetcherFunc) FetchSubset(ctx context.Context, sourceID, subset string) ([][]string, error) {
	return f(ctx, sourceID, subset)
}

// Scheduler gates and runs refresh cycles. MaybeRefresh must not be called
// concurrently with itself; [Scheduler.Run] serializes calls.
type Scheduler struct {
	cfg     Config
	kv      store.KV
	fetcher Fetcher

	log     *slog.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
	nowFunc func() time.Time
}

// New creates a Scheduler. It returns an error wrapping [ErrInvalidConfig]
// when cfg cannot be used.
func New(cfg Config, kv store.KV, f Fetcher, opts ...Option) (*Scheduler, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if kv == nil || f == nil {
		return nil, fmt.Errorf("%w: store and fetcher are required", ErrInvalidConfig)
	}
	s := &Scheduler{
		cfg:     cfg,
		kv:      kv,
		fetcher: f,
		log:     logging.New("refresh"),
		tracer:  (*tracing.Config)(nil).Tracer(),
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	c := s.cfg
	c.Subsets = append([]string(nil), c.Subsets...)
	return c
}

// LastRefresh returns the time of the last successful refresh, or the Unix
// epoch if there has been none. A stored value that does not decode also
// counts as none, so the next cycle overwrites it.
func (s *Scheduler) LastRefresh(ctx context.Context) (time.Time, error) {
	raw, _, err := s.kv.Get(ctx, allowlist.KeyLastRefresh)
	if err != nil {
		return time.Time{}, fmt.Errorf("read last refresh: %w", err)
	}
	t, err := allowlist.DecodeTimestamp(raw)
	if err != nil {
		s.log.Warn("ignoring stored refresh time", slog.Any("error", err))
		return time.UnixMilli(0), nil
	}
	return t, nil
}

// Due reports whether at least one Interval has passed since the last
// successful refresh.
func (s *Scheduler) Due(ctx context.Context) (bool, error) {
	last, err := s.LastRefresh(ctx)
	if err != nil {
		return false, err
	}
	return s.now().Sub(last) >= s.cfg.Interval, nil
}

// MaybeRefresh runs a refresh cycle if one is due. Errors never reach the
// caller; they are logged and leave the stored snapshot as it was.
func (s *Scheduler) MaybeRefresh(ctx context.Context) {
	last, err := s.LastRefresh(ctx)
	if err != nil {
		s.log.Warn("due-check failed", slog.Any("error", err))
		return
	}

	start := s.now()
	elapsed := start.Sub(last)
	if elapsed < s.cfg.Interval {
		s.log.Debug("cache is fresh", slog.Duration("since_last_refresh", elapsed))
		s.metrics.Skipped()
		return
	}

	s.log.Info("refresh due", slog.Duration("since_last_refresh", elapsed), slog.Int("subsets", len(s.cfg.Subsets)))
	at, entries, err := s.cycle(ctx)
	took := s.now().Sub(start)
	if err != nil {
		s.log.Warn("refresh cycle failed", slog.Any("error", err), slog.Duration("took", took))
		s.metrics.Failed(took)
		return
	}
	s.log.Info("saved users", slog.Int("entries", entries), slog.Duration("took", took))
	s.metrics.Succeeded(took, at, entries)
}

// Run calls MaybeRefresh once immediately and then every PollPeriod until ctx
// is done. Calls never overlap: a slow cycle delays the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.MaybeRefresh(ctx)

	ticker := time.NewTicker(s.cfg.PollPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.MaybeRefresh(ctx)
		}
	}
}

// cycle fetches, merges and commits. It returns the committed timestamp and
// the number of entries written.
func (s *Scheduler) cycle(ctx context.Context) (at time.Time, entries int, err error) {
	ctx, span := s.tracer.Start(ctx, "refresh.cycle", trace.WithAttributes(
		attribute.String("sheet.id", s.cfg.SourceID),
		attribute.Int("sheet.subsets", len(s.cfg.Subsets)),
	))
	defer func() { tracing.End(span, err) }()

	if s.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		defer cancel()
	}

	results := make([][]sheet.Entry, len(s.cfg.Subsets))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range s.cfg.Subsets {
		g.Go(func() error {
			es, err := s.fetchSubset(gctx, name)
			if err != nil {
				return fmt.Errorf("subset %q: %w", name, err)
			}
			results[i] = es
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return time.Time{}, 0, err
	}

	// Merge in configuration order: later subsets win on collisions.
	ds := make(allowlist.Dataset)
	for _, es := range results {
		for _, e := range es {
			ds[e.Handle] = e.Record
		}
	}
	raw, err := ds.Encode()
	if err != nil {
		return time.Time{}, 0, err
	}

	at = s.now()
	if err := s.kv.SetMany(ctx, map[string][]byte{
		allowlist.KeyDataset:     raw,
		allowlist.KeyLastRefresh: allowlist.EncodeTimestamp(at),
	}); err != nil {
		return time.Time{}, 0, fmt.Errorf("commit: %w", err)
	}
	span.SetAttributes(attribute.Int("allowlist.entries", len(ds)))
	return at, len(ds), nil
}

func (s *Scheduler) fetchSubset(ctx context.Context, name string) (es []sheet.Entry, err error) {
	ctx, span := s.tracer.Start(ctx, "refresh.fetch", trace.WithAttributes(
		attribute.String("sheet.subset", name),
	))
	defer func() { tracing.End(span, err) }()

	rows, err := s.fetcher.FetchSubset(ctx, s.cfg.SourceID, name)
	if err != nil {
		return nil, err
	}
	es = s.cfg.Columns.Entries(rows)
	span.SetAttributes(attribute.Int("sheet.rows", len(rows)))
	return es, nil
}

func (s *Scheduler) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now()
}
