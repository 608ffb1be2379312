package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/autofund-client/internal/adapters/http"
	"github.com/kirillkom/autofund-client/internal/bootstrap"
	"github.com/kirillkom/autofund-client/internal/config"
	"github.com/kirillkom/autofund-client/internal/observability/logging"
)

const serviceName = "autofund-bridge"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := httpadapter.Options{
		Connectivity:   app.Client,
		Metrics:        app.Metrics,
		MaxUploadBytes: int64(cfg.MaxUploadMB) << 20,
		RateLimitRPS:   cfg.BridgeRateLimitRPS,
		RateLimitBurst: cfg.BridgeRateLimitBurst,
		MaxInFlight:    cfg.BridgeMaxInFlight,
		QueueTimeout:   cfg.BridgeQueueTimeout,
	}
	if app.Verifier != nil {
		opts.Verifier = app.Verifier
	}

	server := &http.Server{
		Addr:              ":" + cfg.BridgePort,
		Handler:           httpadapter.NewRouter(app.Client, opts).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.UploadTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("bridge_listening", "addr", server.Addr, "backend", cfg.BaseURL, "auth", app.Verifier != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("bridge_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("bridge_shutdown_error", "error", err)
	}
}
