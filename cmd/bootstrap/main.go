package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	adapterlogger "pipeline-orchestrator/internal/adapters/logger"
	"pipeline-orchestrator/internal/infrastructure"
	"pipeline-orchestrator/internal/platform"
)

func main() {
	logger := adapterlogger.New()

	cfg, err := infrastructure.LoadConfig()
	if err != nil {
		logger.Error(context.Background(), "configuration error", "error", err)
		os.Exit(1)
	}
	logger = adapterlogger.NewWithLevel(cfg.LogLevel)
	xray.Configure(xray.Config{LogLevel: "error"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := platform.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "failed to initialize application", "error", err)
		os.Exit(1)
	}
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	if err := app.Start(runCtx); err != nil {
		logger.Error(ctx, "failed to start notification router", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info(ctx, "starting http server", "port", cfg.Port, "store", cfg.StoreBackend, "auth_mode", cfg.AuthMode)
		if err := app.Echo.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "http server shutdown", "error", err)
	}
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "notification shutdown", "error", err)
	}
	logger.Info(shutdownCtx, "server stopped")
}
