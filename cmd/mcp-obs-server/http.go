package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/internal/config"
	"github.com/mcp-obs/mcp-server-go/streaminghttp"
	"github.com/mcp-obs/mcp-server-go/streaminghttp/redissessions"
)

var httpPlain bool

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve MCP over streamable HTTP",
	Long: `Serve MCP over streamable HTTP on MCP_OBS_LISTEN_ADDR. The MCP endpoint is
the path of MCP_OBS_PUBLIC_URL; /metrics and /health are served alongside it.`,
	RunE: runHTTP,
}

func init() {
	httpCmd.Flags().BoolVar(&httpPlain, "plain", false, "treat requests as plain HTTP and ignore Mcp-Session-Id")
	rootCmd.AddCommand(httpCmd)
}

func runHTTP(cmd *cobra.Command, _ []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, log)
	if err != nil {
		return err
	}

	transport := auth.TransportStreamableHTTP
	if httpPlain {
		transport = auth.TransportHTTP
	}
	opts := []streaminghttp.Option{
		streaminghttp.WithLogger(log.With(slog.String("component", "http"))),
		streaminghttp.WithServerName(rt.cfg.ServerSlug),
		streaminghttp.WithMiddleware(rt.middlewares()...),
		streaminghttp.WithTransport(transport),
		streaminghttp.WithOAuthProxy(rt.cfg.OAuthProxy),
		streaminghttp.WithAuthorizationServerMirror(rt.cfg.MirrorAuthorityMetadata),
	}
	switch rt.cfg.Sessions {
	case config.SessionsMemory:
		opts = append(opts, streaminghttp.WithSessions(streaminghttp.NewMemorySessions()))
	case config.SessionsRedis:
		store, err := redissessions.New(ctx, rt.cfg.RedisSessions)
		if err != nil {
			return errors.Join(err, rt.shutdown(context.Background()))
		}
		defer store.Shutdown()
		opts = append(opts, streaminghttp.WithSessions(store))
	}
	mcpHandler, err := streaminghttp.New(ctx, rt.cfg.PublicURL, rt.server, rt.middleware, opts...)
	if err != nil {
		return errors.Join(err, rt.shutdown(context.Background()))
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{Registry: rt.registry}))
	r.NotFound(mcpHandler.ServeHTTP)
	r.MethodNotAllowed(mcpHandler.ServeHTTP)

	srv := &http.Server{
		Addr:              rt.cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "http.listen", slog.String("addr", srv.Addr), slog.String("endpoint", publicPath(rt.cfg.PublicURL)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	serveErr := err
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	return errors.Join(serveErr, srv.Shutdown(shutdownCtx), rt.shutdown(shutdownCtx))
}

func publicPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
