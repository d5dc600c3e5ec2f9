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

	"github.com/antoniostano/callrelay/internal/app"
	"github.com/antoniostano/callrelay/internal/config"
)

const registrySweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	built, err := app.Build(runCtx, cfg, logger, nil)
	if err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = built.Cleanup() }()

	built.Registry.StartJanitor(runCtx, registrySweepInterval)

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           built.API.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "err", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
