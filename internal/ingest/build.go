package ingest

import (
	"fmt"

	"github.com/david/lead-finder/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewFetcher returns the listing fetcher selected by cfg.Fetch.Backend.
func NewFetcher(cfg config.Config, metrics *Metrics, logger *zap.Logger) (Fetcher, error) {
	switch cfg.Fetch.Backend {
	case "", "http":
		f := NewHTTPFetcher(cfg.Fetch, cfg.UserAgent)
		f.Metrics, f.Logger = metrics, logger
		return f, nil
	case "colly":
		f := NewCollyFetcher(cfg.Fetch, cfg.UserAgent)
		f.Metrics, f.Logger = metrics, logger
		return f, nil
	default:
		return nil, fmt.Errorf("unknown fetch backend %q", cfg.Fetch.Backend)
	}
}

// Build assembles a pipeline and its vetting engine from configuration.
// Metrics are registered on reg when it is non-nil.
func Build(cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var metrics *Metrics
	if reg != nil {
		metrics = NewMetrics(reg)
	}

	markers, err := LoadMarkers(cfg.MarkersFile)
	if err != nil {
		return nil, err
	}

	fetcher, err := NewFetcher(cfg, metrics, logger)
	if err != nil {
		return nil, err
	}

	vf := NewVettingFetcher(cfg.Fetch, cfg.UserAgent)
	vf.Metrics, vf.Logger = metrics, logger
	vetter := NewVettingEngine(vf, markers)
	vetter.Metrics, vetter.Logger = metrics, logger

	p := NewPipeline(cfg, fetcher, vetter, logger)
	p.Metrics = metrics
	return p, nil
}
