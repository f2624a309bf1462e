package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	httpadapter "github.com/randomtoy/tarot-reading/internal/adapters/http"
	"github.com/randomtoy/tarot-reading/internal/config"
)

const shutdownTimeout = 15 * time.Second

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	rt, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("narrative backends", "order", rt.chain.Names(), "env", cfg.Env)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	if rt.worker != nil {
		go func() {
			defer close(workerDone)
			rt.worker.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(httpadapter.RequestIDMiddleware())
	e.Use(httpadapter.LoggingMiddleware(logger))

	handler := httpadapter.NewHandler(rt.svc, logger)
	handler.Register(e)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		logger.Error("server error", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if rt.drain != nil {
		if err := rt.drain(shutdownCtx); err != nil {
			logger.Warn("deep evaluations still running at shutdown", "error", err)
		}
	}
	stopWorker()
	<-workerDone
	rt.close(shutdownCtx, logger)
	return err
}
