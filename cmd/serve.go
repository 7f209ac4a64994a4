package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/engine-proxy/internal/api"
	"github.com/JakeFAU/engine-proxy/internal/auth"
	"github.com/JakeFAU/engine-proxy/internal/catalog"
	"github.com/JakeFAU/engine-proxy/internal/hash/sha256"
	"github.com/JakeFAU/engine-proxy/internal/id/uuid"
	"github.com/JakeFAU/engine-proxy/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Starts the search redirector and admin API. With seed.on_start the
built-in engines are upserted before the listener opens.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := a.logger

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Tracing.ServiceName,
		SampleRatio: a.cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	if a.cfg.Seed.OnStart {
		n, err := a.catalog.Seed(ctx, catalog.DefaultEngines())
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		logger.Info("seeded built-in engines", zap.Int("count", n))
	}
	// A default may be missing after manual edits to the database.
	if _, err := a.catalog.Repair(ctx); err != nil {
		logger.Warn("startup default repair failed", zap.Error(err))
	}

	gate := auth.NewGate(auth.Config{
		Username:      a.cfg.Auth.Username,
		Password:      a.cfg.Auth.Password,
		CookieSecure:  auth.SecureMode(a.cfg.Auth.CookieSecure),
		SessionMaxAge: a.cfg.Auth.SessionMaxAge,
	}, sha256.New(), logger.Named("auth"))

	apiServer := api.NewServer(a.catalog, gate, uuid.New(), a.cfg, logger)

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
