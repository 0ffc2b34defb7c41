package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-ethauth/logging"
	"github.com/goliatone/go-ethauth/telemetry"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the auth HTTP server.

No email delivery is wired into the binary: outbound emails are only logged
(recipient and subject, never the body), which is meant for development.
Embed the ethauth package with an EmailSender to deliver reset codes and
confirmation links.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.Setup(logging.Options{
		Service: "ethauth",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Service:  "ethauth",
		Version:  version,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error("tracing shutdown failed", "error", err)
		}
	}()

	svc, err := newService(ctx, cfg, logger, deps{})
	if err != nil {
		return err
	}
	defer svc.Close()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ethauth listening", "addr", cfg.Server.Addr)
		errCh <- svc.app.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("ethauth shutting down")
	return svc.app.ShutdownWithTimeout(shutdownTimeout)
}
