// The mcp binary serves the tender_search tool over stdio for MCP clients.
// It wires the same retrieval stack as the API; all logging goes to stderr
// because stdout carries the JSON-RPC stream.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vergabe-labs/tenderbot/internal/bootstrap"
	"github.com/vergabe-labs/tenderbot/internal/config"
	"github.com/vergabe-labs/tenderbot/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewStderrJSONLogger("mcp", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := app.MCP.ServeStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
