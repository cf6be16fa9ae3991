package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"calltrack/internal/api"
	"calltrack/internal/config"
)

func serveCmd() *cobra.Command {
	var envFiles []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server on $PORT.

Configuration comes from the environment, then from the YAML file named by
CONFIG_FILE. Env files are loaded first and never override variables that
are already set.

Examples:
  calltrack serve
  calltrack serve --env-file .env.local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFiles)
		},
	}
	cmd.Flags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files to load before reading configuration")
	return cmd
}

func runServe(envFiles []string) error {
	config.LoadEnvFiles(envFiles...)
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := api.NewServer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Error("close backends", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "payments", cfg.PaymentsEnabled(), "counter", cfg.CounterBackend())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}
