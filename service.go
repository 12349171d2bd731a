package gorawrsheets

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/Keksclan/goRawrSheets/allowlist"
	"github.com/Keksclan/goRawrSheets/interceptors"
	"github.com/Keksclan/goRawrSheets/internal/core"
	"github.com/Keksclan/goRawrSheets/internal/logging"
	"github.com/Keksclan/goRawrSheets/metrics"
	"github.com/Keksclan/goRawrSheets/refresh"
	"github.com/Keksclan/goRawrSheets/status"
	"github.com/Keksclan/goRawrSheets/store"
)

// Service ties the refresh scheduler to its store and exposes the cached
// dataset to consumers, a Status RPC and Prometheus metrics.
//
// After construction the status gRPC server is available through
// [Service.GRPC] so the host can serve it on a listener of its choice.
type Service struct {
	sched      *refresh.Scheduler
	reader     *allowlist.Reader
	grpcServer *grpc.Server
	registry   *prometheus.Registry
}

// NewService creates a [Service] from the supplied functional [Option]
// values. A fetcher is required; the store defaults to an in-memory one and
// the refresh interval to [DefaultInterval].
// Interceptor order is fixed by priority, not by the order options are passed.
func NewService(opts ...Option) (*Service, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.kv == nil {
		cfg.kv = store.NewMemory()
	}
	if cfg.refresh.Interval == 0 {
		cfg.refresh.Interval = DefaultInterval
	}

	ropts := []refresh.Option{
		refresh.WithTracing(cfg.tracing),
		refresh.WithClock(cfg.clock),
	}
	if cfg.logger != nil {
		ropts = append(ropts, refresh.WithLogger(cfg.logger.With("component", "refresh")))
	} else {
		cfg.logger = logging.New("status")
	}
	if cfg.registry != nil {
		ropts = append(ropts, refresh.WithMetrics(metrics.NewRecorder(cfg.registry)))
	}
	sched, err := refresh.New(cfg.refresh, cfg.kv, cfg.fetcher, ropts...)
	if err != nil {
		return nil, err
	}

	if cfg.recovery {
		cfg.middlewares.Add(core.OrderRecovery, interceptors.RecoveryUnary(cfg.logger))
	}
	serverOpts := core.BuildServerOptions(cfg.middlewares.Build(), interceptors.ChainUnary)

	s := &Service{
		sched:      sched,
		reader:     allowlist.NewReader(cfg.kv),
		grpcServer: grpc.NewServer(serverOpts...),
		registry:   cfg.registry,
	}
	status.Register(s.grpcServer, status.NewHandler(s))
	return s, nil
}

// Run performs a due-check now and then every poll period until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	return s.sched.Run(ctx)
}

// MaybeRefresh performs a single due-check and, if due, a refresh cycle.
func (s *Service) MaybeRefresh(ctx context.Context) {
	s.sched.MaybeRefresh(ctx)
}

// Lookup returns the cached record for handle, ignoring case.
func (s *Service) Lookup(ctx context.Context, handle string) (allowlist.Record, bool, error) {
	return s.reader.Lookup(ctx, handle)
}

// Dataset returns the current snapshot; ok is false before the first
// successful refresh.
func (s *Service) Dataset(ctx context.Context) (allowlist.Dataset, bool, error) {
	return s.reader.Dataset(ctx)
}

// Config returns the effective refresh configuration.
func (s *Service) Config() refresh.Config {
	return s.sched.Config()
}

// LastRefresh returns the time of the last successful refresh.
func (s *Service) LastRefresh(ctx context.Context) (time.Time, error) {
	return s.sched.LastRefresh(ctx)
}

// Due reports whether the next due-check would fetch.
func (s *Service) Due(ctx context.Context) (bool, error) {
	return s.sched.Due(ctx)
}

// Entries returns the size of the current snapshot.
func (s *Service) Entries(ctx context.Context) (int, error) {
	d, _, err := s.reader.Dataset(ctx)
	return len(d), err
}

// GRPC returns the status *grpc.Server so the host can serve it.
func (s *Service) GRPC() *grpc.Server {
	return s.grpcServer
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics. It
// serves the registry given to WithMetrics, or the default registry.
func (s *Service) MetricsHandler() http.Handler {
	if s.registry != nil {
		return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
