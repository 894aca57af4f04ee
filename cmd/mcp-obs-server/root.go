package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "mcp-obs-server",
	Short: "Serve MCP tools behind mcp-obs OAuth and telemetry",
	Long: `mcp-obs-server exposes a small set of MCP tools over streamable HTTP or
stdio. Bearer tokens are validated against the configured mcp-obs authority
and every operation is recorded to the telemetry collector.

Configuration is read from MCP_OBS_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "mcp-obs-server version %s\n" .Version}}`)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger logs JSON to stderr. Stdout is reserved for the stdio transport.
func newLogger() (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}
