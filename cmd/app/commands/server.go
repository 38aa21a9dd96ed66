package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/fieldcrypt/internal/app"
	"github.com/allisson/fieldcrypt/internal/config"
)

const shutdownTimeout = 15 * time.Second

// RunServer runs the engine as a long-lived process: the operational HTTP server
// exposing /metrics, /health and /ready, and the DEK cache janitor. Blocks until
// SIGINT/SIGTERM or a server failure. On shutdown the cache is wiped with the rest
// of the container.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	// Fail fast on a broken key service or store configuration.
	if _, err := container.EncryptionUseCase(); err != nil {
		return fmt.Errorf("failed to initialize encryption engine: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		container.DekCache().RunJanitor(ctx, cfg.DEKCacheSweepInterval)
	}()

	serverErr := make(chan error, 1)
	go func() {
		if err := metricsServer.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", runErr))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownErrors := []error{runErr}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
	}
	<-janitorDone

	return errors.Join(shutdownErrors...)
}
