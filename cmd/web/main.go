package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/email-analyzer/internal/adapters/http"
	"github.com/kirillkom/email-analyzer/internal/bootstrap"
	"github.com/kirillkom/email-analyzer/internal/config"
	"github.com/kirillkom/email-analyzer/internal/observability/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "error", err)
	}

	cfg, err := config.LoadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("web", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	router, err := httpadapter.NewRouter(cfg, app.Sessions,
		httpadapter.WithBaseContext(ctx),
		httpadapter.WithMetrics(app.Metrics),
		httpadapter.WithBreakerReporter(app.Analysis),
		httpadapter.WithLogger(logger),
	)
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	go app.Sessions.Run(ctx, app.SweepInterval())

	listener, err := net.Listen("tcp", ":"+cfg.HTTPPort)
	if err != nil {
		slog.Error("listen_failed", "port", cfg.HTTPPort, "error", err)
		os.Exit(1)
	}
	if cfg.HTTPMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.HTTPMaxConnections)
	}

	// No write timeout: synchronous submits wait on the backend.
	server := &http.Server{
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("web_listening",
			"port", cfg.HTTPPort,
			"analysis_api_url", cfg.AnalysisAPIURL,
			"max_connections", cfg.HTTPMaxConnections,
		)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("web_shutdown_failed", "error", err)
	}
	app.Close(shutdownCtx)
	slog.Info("web_stopped")
}
