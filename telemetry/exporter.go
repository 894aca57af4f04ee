package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mcp-obs/mcp-server-go/breaker"
)

// ExporterOption configures a ResilientExporter.
type ExporterOption func(*ResilientExporter)

// WithBreaker replaces the default breaker (5 failures, 60s reset).
func WithBreaker(b *breaker.Breaker) ExporterOption {
	return func(e *ResilientExporter) {
		if b != nil {
			e.breaker = b
		}
	}
}

// WithExportTimeout bounds each export attempt. Default is 10s.
func WithExportTimeout(d time.Duration) ExporterOption {
	return func(e *ResilientExporter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithExporterLogger sets the logger. Logs are discarded by default.
func WithExporterLogger(l *slog.Logger) ExporterOption {
	return func(e *ResilientExporter) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics records export outcomes and breaker state on m.
func WithMetrics(m *Metrics) ExporterOption {
	return func(e *ResilientExporter) { e.metrics = m }
}

// ExporterStats is a snapshot of a ResilientExporter.
type ExporterStats struct {
	Breaker  breaker.Stats
	Shutdown bool
	Exported uint64 // records delivered
	Failed   uint64 // batches that did not reach the sink
}

// ResilientExporter guards a Sink with a circuit breaker. Export makes one
// bounded attempt per batch and swallows every failure.
type ResilientExporter struct {
	sink    Sink
	breaker *breaker.Breaker
	timeout time.Duration
	log     *slog.Logger
	metrics *Metrics

	shutdown atomic.Bool
	exported atomic.Uint64
	failed   atomic.Uint64
}

// NewResilientExporter wraps sink.
func NewResilientExporter(sink Sink, opts ...ExporterOption) *ResilientExporter {
	e := &ResilientExporter{
		sink:    sink,
		timeout: DefaultExportTimeout,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breaker == nil {
		e.breaker = breaker.New(breaker.WithName("telemetry"))
	}
	e.metrics.setBreakerState(e.breaker.Name(), e.breaker.State())
	return e
}

// errSinkPanic wraps a value recovered from a panicking sink.
type errSinkPanic struct{ v any }

func (e errSinkPanic) Error() string { return fmt.Sprintf("sink panicked: %v", e.v) }

// Export delivers batch through the breaker. It never returns an error and
// never panics; failures are logged at warn level and counted. An empty
// batch, or a call after Shutdown, does nothing.
func (e *ResilientExporter) Export(ctx context.Context, batch []Record) {
	if len(batch) == 0 || e.shutdown.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.failed.Add(1)
			e.log.WarnContext(ctx, "telemetry.export.fail", slog.Any("panic", r))
		}
	}()

	start := time.Now()
	admitted := false
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		admitted = true
		return e.attempt(ctx, batch)
	})
	elapsed := -1.0
	if admitted {
		elapsed = time.Since(start).Seconds()
	}
	e.metrics.setBreakerState(e.breaker.Name(), e.breaker.State())

	if err == nil {
		e.exported.Add(uint64(len(batch)))
		e.metrics.recordExport(outcomeOK, len(batch), elapsed)
		return
	}
	e.failed.Add(1)
	outcome := classify(err)
	e.metrics.recordExport(outcome, len(batch), elapsed)
	e.log.WarnContext(ctx, "telemetry.export.fail",
		slog.String("outcome", outcome),
		slog.Int("records", len(batch)),
		slog.String("breaker", e.breaker.State().String()),
		slog.String("err", err.Error()),
	)
}

// attempt runs the sink on its own goroutine so a sink that ignores its
// context still cannot hold the caller past the timeout.
func (e *ResilientExporter) attempt(ctx context.Context, batch []Record) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- errSinkPanic{v: r}
			}
		}()
		done <- e.sink.Export(ctx, batch)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classify(err error) string {
	var p errSinkPanic
	switch {
	case errors.Is(err, breaker.ErrOpen):
		return outcomeCircuitOpen
	case errors.As(err, &p):
		return outcomePanic
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case errors.Is(err, context.Canceled):
		return outcomeCancelled
	default:
		return outcomeError
	}
}

// Shutdown stops further exports and releases the sink's resources, if it
// holds any.
func (e *ResilientExporter) Shutdown(ctx context.Context) error {
	if !e.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	if s, ok := e.sink.(shutdowner); ok {
		return s.Shutdown(ctx)
	}
	return nil
}

// Stats returns a snapshot of the exporter and its breaker.
func (e *ResilientExporter) Stats() ExporterStats {
	return ExporterStats{
		Breaker:  e.breaker.Stats(),
		Shutdown: e.shutdown.Load(),
		Exported: e.exported.Load(),
		Failed:   e.failed.Load(),
	}
}
