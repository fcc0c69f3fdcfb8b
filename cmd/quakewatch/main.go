package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quakewatch/quakewatch/internal/api"
	"github.com/quakewatch/quakewatch/internal/cache"
	"github.com/quakewatch/quakewatch/internal/config"
	"github.com/quakewatch/quakewatch/internal/metrics"
	"github.com/quakewatch/quakewatch/internal/repo"
	"github.com/quakewatch/quakewatch/internal/services"
	"github.com/quakewatch/quakewatch/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting quakewatch", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider(cache.MemoryConfig{
			TTL:           cfg.Cache.TTL,
			MaxBytes:      cfg.Cache.MaxBytes,
			SweepInterval: cfg.Cache.SweepInterval,
		}, logger)
	}
	defer cacheProvider.Close()

	catalog := repo.NewUSGSClient(cfg.Catalog.BaseURL, cfg.Catalog.QueryPath, cfg.Catalog.Timeout)

	service := services.NewQuakeService(logger, catalog, cacheProvider, services.Config{
		RequestTimeout:   cfg.Catalog.Timeout,
		BatchThreshold:   cfg.Fetch.BatchThreshold,
		PreviewSize:      cfg.Fetch.PreviewSize,
		ChunkSize:        cfg.Fetch.ChunkSize,
		ProgressInterval: cfg.Fetch.ProgressInterval,
	})

	server := api.NewServer(cfg.Server, service, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	service.Cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("quakewatch stopped")
}
