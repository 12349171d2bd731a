package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	gorawrsheets "github.com/Keksclan/goRawrSheets"
	"github.com/Keksclan/goRawrSheets/gsheets"
	"github.com/Keksclan/goRawrSheets/internal/config"
	"github.com/Keksclan/goRawrSheets/internal/logging"
	"github.com/Keksclan/goRawrSheets/sheet"
	"github.com/Keksclan/goRawrSheets/store"
	"github.com/Keksclan/goRawrSheets/tracing"
)

func run(cmd *cobra.Command, fc *config.File, once bool) error {
	level, err := logging.ParseLevel(fc.Log.Level)
	if err != nil {
		return err
	}
	logging.Init(level, fc.Log.Format, cmd.ErrOrStderr())
	log := logging.New("rawrsheets")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := gsheets.New(ctx, fetcherOptions(fc)...)
	if err != nil {
		return err
	}

	kv, closeStore, err := openStore(ctx, fc, log)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := append(serviceOptions(fc),
		gorawrsheets.WithStore(kv),
		gorawrsheets.WithFetcher(fetcher),
		gorawrsheets.WithLogger(log),
		gorawrsheets.WithMetrics(reg),
	)
	if fc.Tracing.Stdout {
		tp, err := stdoutTracerProvider(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts = append(opts, gorawrsheets.WithOpenTelemetry(tracing.Config{TracerProvider: tp}))
	}

	svc, err := gorawrsheets.NewService(opts...)
	if err != nil {
		return err
	}

	if once {
		svc.MaybeRefresh(ctx)
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if addr := fc.Server.GRPCAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
		log.Info("serving status rpc", slog.String("addr", lis.Addr().String()))
		g.Go(func() error { return svc.GRPC().Serve(lis) })
		g.Go(func() error {
			<-ctx.Done()
			svc.GRPC().GracefulStop()
			return nil
		})
	}

	if addr := fc.Server.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", svc.MetricsHandler())
		hs := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		log.Info("serving metrics", slog.String("addr", addr))
		g.Go(func() error {
			if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// serviceOptions starts from the defaults and applies whatever the config
// file sets.
func serviceOptions(fc *config.File) []gorawrsheets.Option {
	opts := gorawrsheets.DefaultOptions()
	if id := fc.Source.SpreadsheetID; id != "" {
		opts = append(opts, gorawrsheets.WithSource(id))
	}
	if len(fc.Source.Subsets) > 0 {
		opts = append(opts, gorawrsheets.WithSubsets(fc.Source.Subsets...))
	}
	if c := fc.Source.Columns; c != (config.Columns{}) {
		cols := sheet.DefaultColumns()
		if c.Handle != "" {
			cols.Handle = c.Handle
		}
		if c.URL != "" {
			cols.URL = c.URL
		}
		if c.Disclaimer != "" {
			cols.Disclaimer = c.Disclaimer
		}
		opts = append(opts, gorawrsheets.WithColumns(cols))
	}
	if d := fc.Refresh.Interval; d > 0 {
		opts = append(opts, gorawrsheets.WithInterval(d))
	}
	if d := fc.Refresh.PollPeriod; d > 0 {
		opts = append(opts, gorawrsheets.WithPollPeriod(d))
	}
	if d := fc.Refresh.FetchTimeout; d != nil {
		opts = append(opts, gorawrsheets.WithFetchTimeout(*d))
	}
	return opts
}

func fetcherOptions(fc *config.File) []gsheets.Option {
	var opts []gsheets.Option
	if fc.Source.APIKey != "" {
		opts = append(opts, gsheets.WithAPIKey(fc.Source.APIKey))
	}
	rps, burst := pacing(fc)
	return append(opts, gsheets.WithRequestRate(rps, burst))
}

// pacing lets one cycle fetch every tab at once and paces the rest.
func pacing(fc *config.File) (rps float64, burst int) {
	rps = fc.Source.RequestsPerSecond
	if rps <= 0 {
		rps = gsheets.DefaultRequestsPerSecond
	}
	burst = len(fc.Source.Subsets)
	if burst == 0 {
		burst = len(gorawrsheets.DefaultSubsets)
	}
	return rps, burst
}

// openStore returns Redis behind an L1 when a Redis address is configured
// and an in-memory store otherwise.
func openStore(ctx context.Context, fc *config.File, log *slog.Logger) (store.KV, func(), error) {
	if fc.Redis.Addr == "" {
		log.Warn("no redis configured, the cache will not survive a restart")
		return store.NewMemory(), func() {}, nil
	}
	rdb := store.NewRedis(fc.Redis.Addr, fc.Redis.Password, fc.Redis.DB, fc.Redis.Prefix)
	if err := rdb.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", fc.Redis.Addr, err)
	}
	maxCost := fc.Cache.MaxCost
	if maxCost <= 0 {
		maxCost = store.DefaultL1MaxCost
	}
	l1, err := store.NewL1(maxCost)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("l1 cache: %w", err)
	}
	closeAll := func() {
		l1.Close()
		_ = rdb.Close()
	}
	return store.NewTiered(l1, rdb), closeAll, nil
}

func stdoutTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("stdout exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter)), nil
}
