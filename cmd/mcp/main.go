package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/docuquery/retrieval-engine/internal/adapters/mcp"
	"github.com/docuquery/retrieval-engine/internal/bootstrap"
	"github.com/docuquery/retrieval-engine/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := bootstrap.New(cfg, "retrieval-mcp")
	srv := mcpadapter.NewServer(app.Router, app.Router, app.Defaults, app.Logger)

	app.Logger.Info("mcp_serving_stdio")
	if err := srv.ServeStdio(ctx); err != nil {
		app.Logger.Error("mcp_server_error", "error", err)
		os.Exit(1)
	}
}
