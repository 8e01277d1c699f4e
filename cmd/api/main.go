package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upb/smart-retail-assistant/app"
	"github.com/upb/smart-retail-assistant/config"
	"github.com/upb/smart-retail-assistant/internal/observability"
	"github.com/upb/smart-retail-assistant/routes"
	"github.com/upb/smart-retail-assistant/services/ingestion"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer logger.Sync()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", zap.Error(err))
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Error("failed to close dependencies", zap.Error(err))
		}
	}()

	if cfg.Index.Backend == config.IndexBackendMemory {
		if err := preloadCatalog(ctx, deps); err != nil {
			logger.Error("failed to load catalog into memory", zap.Error(err))
			return err
		}
	}

	srv := newServer(cfg.Server, routes.SetupRoutes(deps))
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}

	logger.Info("smart retail assistant listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("environment", cfg.Environment),
		zap.String("index_backend", cfg.Index.Backend))

	return serve(ctx, srv, ln, cfg.Server.ShutdownTimeout, logger)
}

// preloadCatalog fills an in-process index from the ingestion CSV. No other
// process can write to it.
func preloadCatalog(ctx context.Context, deps *app.Dependencies) error {
	in := deps.Config.Ingestion
	if err := deps.Store.EnsureSchema(ctx, deps.Config.Embedding.Dimensions); err != nil {
		return err
	}

	records, err := ingestion.ReadCSVFile(in.CSVPath, in.Limit)
	if err != nil {
		return err
	}

	report := deps.Pipeline.Ingest(ctx, records)
	if report.Inserted == 0 && report.Total > 0 {
		return fmt.Errorf("none of the %d catalog records could be loaded", report.Total)
	}

	deps.Logger.Info("catalog loaded into memory",
		zap.String("path", in.CSVPath),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped))
	return nil
}

func newServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
}

// serve blocks until ctx is done, then drains in-flight requests
func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
