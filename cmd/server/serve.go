package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/api"
	"github.com/Freeeeeet/mentor_scheduler/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the notification scheduler",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	logger := d.logger
	if d.cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required to serve the API")
	}

	logger.Info("Starting mentor scheduler",
		zap.String("environment", d.cfg.Environment),
		zap.String("http_addr", d.cfg.HTTPAddr),
	)

	var scheduler *app.Scheduler
	if d.cfg.Scheduler.Enabled {
		scheduler = app.NewScheduler(d.notifications, d.cfg.Scheduler.Interval, logger)
		scheduler.Start(ctx)
	}

	handler := api.NewHandler(d.requests, d.lessons, d.users)
	server := api.NewApp(handler, d.cfg.Tracing.ServiceName, d.cfg.Auth.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(d.cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errCh:
		logger.Error("HTTP server stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := server.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
		logger.Warn("Failed to shut down HTTP server", zap.Error(shutdownErr))
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	logger.Info("Mentor scheduler stopped")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
