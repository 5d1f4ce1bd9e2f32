package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/equicurve/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the equicurve API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfgFile == "" {
		log.Warn("no config file specified, using defaults")
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = a.Prepare(ctx)
	cancel()
	if err != nil {
		return err
	}

	server, err := a.Server()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	log.Info("starting equicurve server",
		zap.String("addr", server.Addr()),
		zap.String("storage", cfg.Storage.Type),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Info("shutting down equicurve server")

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return err
	}
	if err := a.Close(ctx); err != nil {
		log.Warn("pending notifications dropped", zap.Error(err))
	}
	return nil
}
