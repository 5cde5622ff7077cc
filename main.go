package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stock-forecast/config"
	"stock-forecast/forecast"
	"stock-forecast/internal/api"
	"stock-forecast/internal/app"
	"stock-forecast/marketdata"
	"stock-forecast/observability"
	"stock-forecast/repository"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		observability.Info("no .env file found, using environment variables")
	}

	observability.InitLogger(os.Getenv("ENV") == "production")
	observability.InitMetrics()

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}

	ctx := context.Background()

	// Database is optional: without it runs simply aren't persisted
	var recorder forecast.RunRecorder
	var appRepo app.RepositoryInterface
	if cfg.HasDatabase() {
		repo, err := repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			observability.Warn("failed to initialize database, running without persistence", "error", err)
		} else {
			recorder = repo
			appRepo = repo
		}
	} else {
		observability.Info("no DATABASE_URL configured, running without persistence")
	}

	// Prefer a local CSV dataset; fall back to the HTTP provider
	var provider marketdata.Provider
	switch {
	case cfg.HasDataset():
		provider = marketdata.NewDatasetLoader(cfg.MarketData.DatasetDir)
		observability.Info("using CSV dataset provider", "dir", cfg.MarketData.DatasetDir)
	case cfg.HasMarketDataAPI():
		provider = marketdata.NewClient(cfg.MarketData)
		observability.Info("using HTTP market data provider", "base_url", cfg.MarketData.BaseURL)
	default:
		observability.Fatal("no market data source configured: set MARKET_DATA_API_KEY or MARKET_DATA_DATASET_DIR")
	}

	registry := forecast.NewRegistry(recorder, cfg)
	application := app.New(cfg, appRepo, registry, provider)
	handler := api.NewHandler(application, cfg)
	router := api.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		observability.Info("server listening", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			observability.Fatal("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	observability.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Error("graceful shutdown failed", "error", err)
	}
	application.Shutdown(shutdownCtx)
}
