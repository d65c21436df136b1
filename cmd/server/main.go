package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"github.com/demoapps/otelhello/internal/api"
	"github.com/demoapps/otelhello/internal/config"
	"github.com/demoapps/otelhello/internal/logger"
	"github.com/demoapps/otelhello/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry has to be up before anything else creates tracers or meters.
	bootLogger := logger.New(cfg.Env, nil)
	h, err := telemetry.Bootstrap(ctx, cfg.Telemetry(), telemetry.WithLogger(bootLogger))
	if err != nil {
		bootLogger.Error("Failed to init telemetry", "error", err)
		os.Exit(1)
	}

	// Initialize logger with OTel support
	appLogger := logger.New(cfg.Env, h.LoggerProvider())
	slog.SetDefault(appLogger)

	router, err := api.NewRouter(h, appLogger)
	if err != nil {
		appLogger.Error("Failed to build router", "error", err)
		_ = h.Shutdown(context.Background())
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting server", "port", cfg.Port, "service", cfg.ServiceName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if runErr != nil {
		slog.Error("Server failed", "error", runErr)
	}

	// Flush whatever the last requests produced.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		bootLogger.Warn("Telemetry shutdown incomplete", "error", err)
	}

	if runErr != nil {
		os.Exit(1)
	}
}
