package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Keksclan/goRawrSheets/allowlist"
	"github.com/Keksclan/goRawrSheets/metrics"
	"github.com/Keksclan/goRawrSheets/store"
	"github.com/Keksclan/goRawrSheets/tracing"
)

var header = []string{"Twitter Handle", "Landing Page URL", "Final Blurb"}

// fakeFetcher serves canned rows per subset and counts calls.
type fakeFetcher struct {
	mu    sync.Mutex
	rows  map[string][][]string
	errs  map[string]error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchSubset(_ context.Context, _, subset string) ([][]string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[subset]; err != nil {
		return nil, err
	}
	return f.rows[subset], nil
}

func (f *fakeFetcher) fail(subset string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[subset] = err
}

func threeSubsets() *fakeFetcher {
	return &fakeFetcher{rows: map[string][][]string{
		"one":   {header, {"Alice", "https://a.example", "note A"}},
		"two":   {header, {"Bob", "https://b.example", "note B"}},
		"three": {header, {"Alice", "https://c.example", "note C"}},
	}}
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	return Config{
		SourceID:   "sheet-id",
		Subsets:    []string{"one", "two", "three"},
		Interval:   24 * time.Hour,
		PollPeriod: time.Hour,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, cfg Config, kv store.KV, f Fetcher, opts ...Option) (*Scheduler, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now), WithLogger(quietLogger())}, opts...)
	s, err := New(cfg, kv, f, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clock
}

func storedDataset(t *testing.T, kv store.KV) (allowlist.Dataset, bool) {
	t.Helper()
	d, ok, err := allowlist.NewReader(kv).Dataset(t.Context())
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	return d, ok
}

func storedTimestamp(t *testing.T, kv store.KV) ([]byte, bool) {
	t.Helper()
	raw, ok, err := kv.Get(t.Context(), allowlist.KeyLastRefresh)
	if err != nil {
		t.Fatalf("read timestamp: %v", err)
	}
	return raw, ok
}

func seed(t *testing.T, kv store.KV, d allowlist.Dataset, at time.Time) {
	t.Helper()
	raw, err := d.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := kv.SetMany(t.Context(), map[string][]byte{
		allowlist.KeyDataset:     raw,
		allowlist.KeyLastRefresh: allowlist.EncodeTimestamp(at),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestMaybeRefresh_FirstRunMergesSubsetsInOrder(t *testing.T) {
	kv := store.NewMemory()
	f := threeSubsets()
	s, clock := newTestScheduler(t, testConfig(), kv, f)

	s.MaybeRefresh(t.Context())

	got, ok := storedDataset(t, kv)
	if !ok {
		t.Fatal("expected a stored dataset")
	}
	want := allowlist.Dataset{
		"alice": {URL: "https://c.example", Disclaimer: "note C"},
		"bob":   {URL: "https://b.example", Disclaimer: "note B"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dataset mismatch (-want +got):\n%s", diff)
	}

	last, err := s.LastRefresh(t.Context())
	if err != nil {
		t.Fatalf("LastRefresh: %v", err)
	}
	if !last.Equal(clock.Now()) {
		t.Fatalf("last refresh = %v, want %v", last, clock.Now())
	}
	if n := f.calls.Load(); n != 3 {
		t.Fatalf("fetch calls = %d, want 3", n)
	}
}

func TestMaybeRefresh_CaseInsensitiveKeys(t *testing.T) {
	kv := store.NewMemory()
	f := &fakeFetcher{rows: map[string][][]string{
		"only": {header, {"ExampleUser", "https://x.example", "blurb"}},
	}}
	cfg := testConfig()
	cfg.Subsets = []string{"only"}
	s, _ := newTestScheduler(t, cfg, kv, f)

	s.MaybeRefresh(t.Context())

	rec, ok, err := allowlist.NewReader(kv).Lookup(t.Context(), "exampleuser")
	if err != nil || !ok {
		t.Fatalf("Lookup = (%v, %v), want hit", ok, err)
	}
	if rec.URL != "https://x.example" {
		t.Fatalf("got %q, want %q", rec.URL, "https://x.example")
	}
	d, _ := storedDataset(t, kv)
	if _, ok := d["ExampleUser"]; ok {
		t.Fatal("stored key was not normalized")
	}
}

func TestMaybeRefresh_SubsetFailureWritesNothing(t *testing.T) {
	kv := store.NewMemory()
	f := threeSubsets()
	f.fail("two", errors.New("quota exceeded"))
	s, _ := newTestScheduler(t, testConfig(), kv, f)

	s.MaybeRefresh(t.Context())

	if _, ok := storedDataset(t, kv); ok {
		t.Fatal("dataset written despite a failed subset")
	}
	if _, ok := storedTimestamp(t, kv); ok {
		t.Fatal("timestamp written despite a failed subset")
	}
}

func TestMaybeRefresh_FailureKeepsPreviousSnapshot(t *testing.T) {
	kv := store.NewMemory()
	f := threeSubsets()
	f.fail("three", errors.New("network down"))
	s, clock := newTestScheduler(t, testConfig(), kv, f)

	prev := allowlist.Dataset{"carol": {URL: "https://old.example"}}
	prevAt := clock.Now().Add(-25 * time.Hour)
	seed(t, kv, prev, prevAt)
	prevTS, _ := storedTimestamp(t, kv)

	s.MaybeRefresh(t.Context())

	got, _ := storedDataset(t, kv)
	if diff := cmp.Diff(prev, got); diff != "" {
		t.Fatalf("dataset changed (-want +got):\n%s", diff)
	}
	ts, _ := storedTimestamp(t, kv)
	if string(ts) != string(prevTS) {
		t.Fatalf("timestamp changed from %s to %s", prevTS, ts)
	}
}

func TestMaybeRefresh_RetriesAfterFailure(t *testing.T) {
	kv := store.NewMemory()
	f := threeSubsets()
	f.fail("one", errors.New("flaky"))
	s, _ := newTestScheduler(t, testConfig(), kv, f)

	s.MaybeRefresh(t.Context())
	f.fail("one", nil)
	s.MaybeRefresh(t.Context())

	if _, ok := storedDataset(t, kv); !ok {
		t.Fatal("second attempt did not commit")
	}
}

func TestMaybeRefresh_Gating(t *testing.T) {
	tests := []struct {
		name      string
		age       time.Duration
		wantFetch bool
	}{
		{"23h old", 23 * time.Hour, false},
		{"exactly 24h old", 24 * time.Hour, true},
		{"25h old", 25 * time.Hour, true},
		{"in the future", -time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := store.NewMemory()
			f := threeSubsets()
			s, clock := newTestScheduler(t, testConfig(), kv, f)
			seed(t, kv, allowlist.Dataset{}, clock.Now().Add(-tt.age))

			due, err := s.Due(t.Context())
			if err != nil {
				t.Fatalf("Due: %v", err)
			}
			if due != tt.wantFetch {
				t.Fatalf("Due = %v, want %v", due, tt.wantFetch)
			}

			s.MaybeRefresh(t.Context())
			if fetched := f.calls.Load() > 0; fetched != tt.wantFetch {
				t.Fatalf("fetched = %v, want %v", fetched, tt.wantFetch)
			}
		})
	}
}

func TestMaybeRefresh_AtMostOneCyclePerInterval(t *testing.T) {
	kv := store.NewMemory()
	f := threeSubsets()
	s, clock := newTestScheduler(t, testConfig(), kv, f)

	s.MaybeRefresh(t.Context())
	first, _ := storedDataset(t, kv)

	// Upstream changes, but the window has not elapsed.
	f.mu.Lock()
	f.rows["two"] = [][]string{header, {"Zed", "https://z.example", "note Z"}}
	f.mu.Unlock()
	clock.Advance(23 * time.Hour)
	s.MaybeRefresh(t.Context())

	if n := f.calls.Load(); n != 3 {
		t.Fatalf("fetch calls = %d, want 3 (one cycle)", n)
	}
	second, _ := storedDataset(t, kv)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("dataset changed inside the interval (-first +second):\n%s", diff)
	}

	clock.Advance(time.Hour)
	s.MaybeRefresh(t.Context())
	if n := f.calls.Load(); n != 6 {
		t.Fatalf("fetch calls = %d, want 6 (two cycles)", n)
	}
	third, _ := storedDataset(t, kv)
	if _, ok := third["zed"]; !ok {
		t.Fatal("expected the second cycle to pick up the new row")
	}
}

func TestMaybeRefresh_FetchesConcurrently(t *testing.T) {
	kv := store.NewMemory()
	cfg := testConfig()

	var started sync.WaitGroup
	started.Add(len(cfg.Subsets))
	all := make(chan struct{})
	go func() {
		started.Wait()
		close(all)
	}()

	f := FetcherFunc(func(ctx context.Context, _, subset string) ([][]string, error) {
		started.Done()
		// Each fetch only returns once every fetch is in flight.
		select {
		case <-all:
		case <-time.After(2 * time.Second):
			return nil, errors.New("fetches were not concurrent")
		}
		return [][]string{header, {subset, "https://" + subset + ".example", ""}}, nil
	})
	s, _ := newTestScheduler(t, cfg, kv, f)

	s.MaybeRefresh(t.Context())

	d, ok := storedDataset(t, kv)
	if !ok || len(d) != 3 {
		t.Fatalf("got %d entries (ok=%v), want 3", len(d), ok)
	}
}

func TestMaybeRefresh_TimeoutLeavesStateUntouched(t *testing.T) {
	kv := store.NewMemory()
	cfg := testConfig()
	cfg.FetchTimeout = 20 * time.Millisecond

	f := FetcherFunc(func(ctx context.Context, _, subset string) ([][]string, error) {
		if subset == "two" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return [][]string{header}, nil
	})
	s, _ := newTestScheduler(t, cfg, kv, f)

	done := make(chan struct{})
	go func() {
		s.MaybeRefresh(t.Context())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("MaybeRefresh did not return after the fetch timeout")
	}

	if _, ok := storedTimestamp(t, kv); ok {
		t.Fatal("timestamp written after a timed out cycle")
	}
}

// failingKV fails selected operations.
type failingKV struct {
	*store.Memory
	getErr error
	setErr error
}

func (k *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if k.getErr != nil {
		return nil, false, k.getErr
	}
	return k.Memory.Get(ctx, key)
}

func (k *failingKV) SetMany(ctx context.Context, entries map[string][]byte) error {
	if k.setErr != nil {
		return k.setErr
	}
	return k.Memory.SetMany(ctx, entries)
}

func TestMaybeRefresh_StoreReadFailureSkipsFetch(t *testing.T) {
	kv := &failingKV{Memory: store.NewMemory(), getErr: errors.New("redis down")}
	f := threeSubsets()
	s, _ := newTestScheduler(t, testConfig(), kv, f)

	s.MaybeRefresh(t.Context())

	if n := f.calls.Load(); n != 0 {
		t.Fatalf("fetch calls = %d, want 0", n)
	}
}

func TestMaybeRefresh_UndecodableTimestampCountsAsNever(t *testing.T) {
	kv := store.NewMemory()
	if err := kv.SetMany(t.Context(), map[string][]byte{allowlist.KeyLastRefresh: []byte("not-a-number")}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}
	f := threeSubsets()
	s, clock := newTestScheduler(t, testConfig(), kv, f)

	s.MaybeRefresh(t.Context())

	if n := f.calls.Load(); n != 3 {
		t.Fatalf("fetch calls = %d, want 3", n)
	}
	raw, _ := storedTimestamp(t, kv)
	got, err := allowlist.DecodeTimestamp(raw)
	if err != nil {
		t.Fatalf("stored timestamp still undecodable: %q", raw)
	}
	if !got.Equal(clock.Now().Truncate(time.Millisecond)) {
		t.Fatalf("timestamp = %v, want %v", got, clock.Now())
	}
}

func TestMaybeRefresh_CommitFailureIsCounted(t *testing.T) {
	kv := &failingKV{Memory: store.NewMemory(), setErr: errors.New("read-only replica")}
	reg := prometheus.NewRegistry()
	s, _ := newTestScheduler(t, testConfig(), kv, threeSubsets(), WithMetrics(metrics.NewRecorder(reg)))

	s.MaybeRefresh(t.Context())

	if _, ok := storedTimestamp(t, kv); ok {
		t.Fatal("timestamp present after failed commit")
	}
	n, err := testutil.GatherAndCount(reg, "rawrsheets_refresh_cycles_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("cycle series = %d, want 1", n)
	}
}

func TestMaybeRefresh_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := threeSubsets()
	f.fail("one", errors.New("boom"))
	s, _ := newTestScheduler(t, testConfig(), store.NewMemory(), f,
		WithTracing(&tracing.Config{TracerProvider: tp}))

	s.MaybeRefresh(t.Context())

	var cycles, fetches int
	for _, sp := range rec.Ended() {
		switch sp.Name() {
		case "refresh.cycle":
			cycles++
			if sp.Status().Description == "" {
				t.Fatal("expected the cycle span to carry the error")
			}
		case "refresh.fetch":
			fetches++
		}
	}
	if cycles != 1 {
		t.Fatalf("cycle spans = %d, want 1", cycles)
	}
	if fetches != 3 {
		t.Fatalf("fetch spans = %d, want 3", fetches)
	}
}

func TestRun_RefreshesImmediatelyThenPolls(t *testing.T) {
	kv := store.NewMemory()
	cfg := testConfig()
	cfg.Interval = time.Hour
	cfg.PollPeriod = 5 * time.Millisecond

	cycles := make(chan struct{}, 16)
	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Every reading moves the clock an hour, so each tick finds the cache stale.
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Hour)
		return clock
	}
	f := FetcherFunc(func(_ context.Context, _, subset string) ([][]string, error) {
		if subset == "one" {
			select {
			case cycles <- struct{}{}:
			default:
			}
		}
		return [][]string{header}, nil
	})
	s, err := New(cfg, kv, f, WithClock(now), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	for i := range 2 {
		select {
		case <-cycles:
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d did not run", i+1)
		}
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	kv := store.NewMemory()
	f := threeSubsets()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no source", func(c *Config) { c.SourceID = "" }},
		{"no subsets", func(c *Config) { c.Subsets = nil }},
		{"empty subset", func(c *Config) { c.Subsets = []string{"one", ""} }},
		{"zero interval", func(c *Config) { c.Interval = 0 }},
		{"poll longer than interval", func(c *Config) { c.PollPeriod = 48 * time.Hour }},
		{"negative timeout", func(c *Config) { c.FetchTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg, kv, f); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("got %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := New(testConfig(), nil, f); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("nil store: got %v, want ErrInvalidConfig", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig()
	cfg.PollPeriod = 0
	s, err := New(cfg, store.NewMemory(), threeSubsets())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := s.Config()
	if got.PollPeriod != cfg.Interval {
		t.Fatalf("poll period = %v, want %v", got.PollPeriod, cfg.Interval)
	}
	if got.Columns.Handle != "Twitter Handle" {
		t.Fatalf("handle column = %q, want default", got.Columns.Handle)
	}
}
