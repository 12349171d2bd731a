package refresh

import (
	"log/slog"
	"time"

	"github.com/Keksclan/goRawrSheets/metrics"
	"github.com/Keksclan/goRawrSheets/tracing"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records cycle outcomes on r.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Scheduler) {
		s.metrics = r
	}
}

// WithTracing creates spans for cycles and subset fetches.
func WithTracing(cfg *tracing.Config) Option {
	return func(s *Scheduler) {
		s.tracer = cfg.Tracer()
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.nowFunc = now
		}
	}
}
