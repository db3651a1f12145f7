package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/lead-finder/internal/api"
	"github.com/david/lead-finder/internal/config"
	"github.com/david/lead-finder/internal/geocode"
	"github.com/david/lead-finder/internal/ingest"
	"github.com/david/lead-finder/internal/logger"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	path := os.Getenv("LEADS_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer zl.Sync()

	pipeline, err := ingest.Build(cfg, prometheus.DefaultRegisterer, zl)
	if err != nil {
		zl.Fatal("failed to build pipeline", zap.Error(err))
	}
	geocoder := geocode.NewNominatimClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Email)

	srv := api.NewServer(pipeline, pipeline.Vetter, geocoder, prometheus.DefaultGatherer, zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		zl.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("fetch_backend", cfg.Fetch.Backend),
			zap.Bool("places_fallback", pipeline.Places.Enabled()),
			zap.Bool("relay_key_configured", cfg.Relay.APIKey != ""))
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown failed", zap.Error(err))
	}
}
