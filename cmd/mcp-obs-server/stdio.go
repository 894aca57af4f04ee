package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcp-obs/mcp-server-go/auth"
	"github.com/mcp-obs/mcp-server-go/stdio"
)

var stdioNoAuth bool

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve MCP over stdin and stdout",
	Long: `Serve newline-delimited JSON-RPC on stdin and stdout. Bearer tokens are read
from params._meta.authorization (or _meta.auth, or a top-level authorization
member). With --no-auth every request runs as the local OS user.`,
	RunE: runStdio,
}

func init() {
	stdioCmd.Flags().BoolVar(&stdioNoAuth, "no-auth", false, "skip token validation and run as the local OS user")
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, _ []string) error {
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

	var mw *auth.Middleware
	if !stdioNoAuth {
		mw = rt.middleware
	}
	h := stdio.NewHandler(rt.server, mw,
		stdio.WithIO(os.Stdin, os.Stdout),
		stdio.WithLogger(log),
		stdio.WithMiddleware(rt.middlewares()...),
	)
	serveErr := h.Serve(ctx)
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return errors.Join(serveErr, rt.shutdown(shutdownCtx))
}
