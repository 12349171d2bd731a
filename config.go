// Package gorawrsheets keeps a local, always-readable copy of an allowlist
// that is maintained in a Google spreadsheet.
//
// A [Service] refreshes the copy at most once per refresh interval, merges the
// configured tabs into one case-insensitive dataset and commits it together
// with a timestamp. Failed refreshes leave the previous snapshot in place.
//
//	svc, err := gs.NewService(append(gs.DefaultOptions(),
//		gs.WithFetcher(fetcher),
//		gs.WithStore(store.NewMemory()),
//	)...)
//	go svc.Run(ctx)
//	rec, ok, err := svc.Lookup(ctx, "SomeHandle")
package gorawrsheets

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Keksclan/goRawrSheets/internal/core"
	"github.com/Keksclan/goRawrSheets/refresh"
	"github.com/Keksclan/goRawrSheets/store"
	"github.com/Keksclan/goRawrSheets/tracing"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	refresh refresh.Config

	kv      store.KV
	fetcher refresh.Fetcher

	logger   *slog.Logger
	tracing  *tracing.Config
	registry *prometheus.Registry
	clock    func() time.Time

	recovery    bool
	middlewares core.MiddlewareBuilder
}
