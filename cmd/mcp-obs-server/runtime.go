package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/breaker"
	"github.com/mcp-obs/mcp-server-go/internal/config"
	"github.com/mcp-obs/mcp-server-go/mcpservice"
	"github.com/mcp-obs/mcp-server-go/telemetry"
)

// runtime holds the components shared by both transports.
type runtime struct {
	cfg        *config.Config
	log        *slog.Logger
	registry   *prometheus.Registry
	middleware *auth.Middleware
	server     *mcpservice.Server
	instrument auth.HandlerMiddleware

	batcher  *telemetry.Batcher
	exporter *telemetry.ResilientExporter
}

func newRuntime(ctx context.Context, log *slog.Logger) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	validator, err := newValidator(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	mw, err := auth.NewMiddleware(cfg.Auth(), validator,
		auth.WithLogger(log.With(slog.String("component", "auth"))),
		auth.WithRegisterer(reg),
	)
	if err != nil {
		return nil, err
	}

	srv, err := mcpservice.NewServer(
		mcpservice.ServerInfo{Name: cfg.ServerSlug, Version: version},
		mcpservice.WithTools(demoTools()...),
		mcpservice.WithInstructions("Demo tools guarded by mcp-obs OAuth."),
		mcpservice.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:        cfg,
		log:        log,
		registry:   reg,
		middleware: mw,
		server:     srv,
	}
	if err := rt.startTelemetry(ctx); err != nil {
		return nil, err
	}
	return rt, nil
}

func newValidator(ctx context.Context, cfg *config.Config, log *slog.Logger) (auth.Validator, error) {
	switch cfg.Validator {
	case config.ValidatorJWT:
		var opts []auth.JWTOption
		if cfg.JWKSURI != "" {
			opts = append(opts, auth.WithJWKSURI(cfg.JWKSURI))
		}
		opts = append(opts, auth.WithJWTLogger(log))
		return auth.NewJWTValidator(ctx, cfg.AuthorityURL, cfg.JWTAudience, opts...)
	default:
		return auth.NewIntrospectionValidator(cfg.Auth(), auth.WithIntrospectionLogger(log))
	}
}

func (rt *runtime) startTelemetry(ctx context.Context) error {
	tc := rt.cfg.Telemetry()

	var sink telemetry.Sink
	switch rt.cfg.TelemetrySink {
	case config.SinkNone:
		rt.log.InfoContext(ctx, "telemetry.disabled")
		return nil
	case config.SinkRedis:
		s, err := telemetry.NewRedisSink(ctx, rt.cfg.Redis, tc.Resource())
		if err != nil {
			return fmt.Errorf("redis sink: %w", err)
		}
		sink = s
	default:
		s, err := telemetry.NewHTTPSink(tc)
		if err != nil {
			return fmt.Errorf("http sink: %w", err)
		}
		sink = s
	}

	metrics := telemetry.NewMetrics(rt.registry)
	br := breaker.New(
		breaker.WithName("telemetry"),
		breaker.WithFailureThreshold(rt.cfg.BreakerThreshold),
		breaker.WithResetTimeout(rt.cfg.BreakerReset),
	)
	rt.exporter = telemetry.NewResilientExporter(sink,
		telemetry.WithBreaker(br),
		telemetry.WithExportTimeout(rt.cfg.TelemetryTimeout),
		telemetry.WithExporterLogger(rt.log.With(slog.String("component", "telemetry"))),
		telemetry.WithMetrics(metrics),
	)
	rt.batcher = telemetry.NewBatcher(rt.exporter, telemetry.WithBatcherMetrics(metrics))
	rt.instrument = telemetry.Instrument(rt.batcher, tc.InstrumentConfig())
	return nil
}

// middlewares returns the handler middleware run inside authentication.
func (rt *runtime) middlewares() []auth.HandlerMiddleware {
	if rt.instrument == nil {
		return nil
	}
	return []auth.HandlerMiddleware{rt.instrument}
}

// shutdown flushes queued telemetry and releases the sink.
func (rt *runtime) shutdown(ctx context.Context) error {
	if rt.batcher == nil {
		return nil
	}
	return errors.Join(rt.batcher.Close(ctx), rt.exporter.Shutdown(ctx))
}
