package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/david/lead-finder/internal/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRequest is returned by Run for requests it cannot execute.
var ErrInvalidRequest = errors.New("invalid search request")

// Pipeline turns a search request into an ordered list of leads.
type Pipeline struct {
	Fetcher Fetcher // search and detail pages
	Parser  *ListingParser
	Vetter  *VettingEngine
	Places  *PlacesClient

	MapsBaseURL  string
	RelayBaseURL string
	RelayKey     string
	RelayRender  bool

	Concurrency int
	RunTimeout  time.Duration

	Metrics *Metrics
	Logger  *zap.Logger
}

// NewPipeline wires a pipeline from configuration. vetter scores websites
// and is expected to use a fetcher built by NewVettingFetcher.
func NewPipeline(cfg config.Config, fetcher Fetcher, vetter *VettingEngine, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(cfg.Fetch, cfg.UserAgent)
	}
	if vetter == nil {
		vetter = NewVettingEngine(NewVettingFetcher(cfg.Fetch, cfg.UserAgent), nil)
	}

	var places *PlacesClient
	if cfg.Places.APIKey != "" {
		places = NewPlacesClient(cfg.Places.BaseURL, cfg.Places.APIKey, cfg.Places.RadiusMeters,
			time.Duration(cfg.Places.TimeoutSeconds)*time.Second)
		places.Logger = logger
	}

	return &Pipeline{
		Fetcher:      fetcher,
		Parser:       NewListingParser(ParserOptions{DisableInlineScript: cfg.Pipeline.DisableInlineScript}, logger),
		Vetter:       vetter,
		Places:       places,
		MapsBaseURL:  cfg.Pipeline.MapsBaseURL,
		RelayBaseURL: cfg.Relay.BaseURL,
		RelayKey:     cfg.Relay.APIKey,
		RelayRender:  cfg.Relay.Render,
		Concurrency:  cfg.Pipeline.Concurrency,
		RunTimeout:   cfg.Pipeline.RunTimeout(),
		Logger:       logger,
	}
}

// Validate checks the fields Run depends on.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Keyword) == "" {
		return fmt.Errorf("%w: keyword is required", ErrInvalidRequest)
	}
	if r.MaxResults <= 0 {
		return fmt.Errorf("%w: max_results must be > 0", ErrInvalidRequest)
	}
	return nil
}

// Run executes one batch. Fetch and per-listing failures degrade the result
// instead of failing it; only an invalid request returns an error.
func (p *Pipeline) Run(ctx context.Context, req SearchRequest, progress ProgressReporter) ([]Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = NopProgress{}
	}

	runID := uuid.NewString()
	log := p.logger().With(zap.String("run_id", runID), zap.String("keyword", req.Keyword))

	if p.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.RunTimeout)
		defer cancel()
	}

	start := time.Now()
	source := SourceNone
	defer func() {
		p.Metrics.runFinished(source, time.Since(start).Seconds())
	}()

	fetcher := p.runFetcher(req)
	progress.ReportStatus(fmt.Sprintf("Searching for: %s near (%s, %s)",
		SearchQuery(req), formatCoord(req.Latitude), formatCoord(req.Longitude)))

	parser := p.Parser
	if parser == nil {
		parser = NewListingParser(ParserOptions{}, log)
	}
	maps := &MapsSource{Fetcher: fetcher, Parser: parser, BaseURL: p.MapsBaseURL}
	listings, fetchErr := maps.Listings(ctx, req)
	if fetchErr != nil {
		log.Warn("search page unavailable", zap.Error(fetchErr))
	}
	enrich := true

	if len(listings) > 0 {
		source = SourceMaps
	} else if p.Places.Enabled() {
		progress.ReportStatus("No listings parsed from the search page, querying the places service...")
		places := &PlacesSource{Client: p.Places}
		found, _ := places.Listings(ctx, req)
		listings = dedupeListings(found, req.MaxResults)
		enrich = false
		if len(listings) > 0 {
			source = SourcePlaces
		}
	}

	if len(listings) == 0 {
		if fetchErr != nil {
			progress.ReportStatus("Failed to fetch the search page. The site may be blocking requests.")
		} else {
			progress.ReportStatus("No listings found. The page renders results with JavaScript; a relay key or places key gives better coverage.")
		}
		log.Info("run finished without listings", zap.Duration("elapsed", time.Since(start)))
		return []Lead{}, nil
	}

	log.Info("listings found", zap.String("source", source), zap.Int("count", len(listings)))
	leads := p.process(ctx, fetcher, listings, enrich, req, progress, log)

	log.Info("run complete",
		zap.Int("leads", len(leads)),
		zap.Duration("elapsed", time.Since(start)))
	return leads, nil
}

// process enriches, vets and assembles listings, bounded by Concurrency.
// Leads are written by index so discovery order survives the fan-out.
func (p *Pipeline) process(ctx context.Context, fetcher Fetcher, listings []Listing, enrich bool,
	req SearchRequest, progress ProgressReporter, log *zap.Logger) []Lead {

	th := Thresholds{Reviews: req.ReviewsThreshold, Vetting: req.VettingThreshold}
	enricher := &DetailEnricher{Fetcher: fetcher, BaseURL: p.MapsBaseURL, Logger: log}

	limit := p.Concurrency
	if limit < 1 {
		limit = 1
	}

	leads := make([]Lead, len(listings))
	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, l := range listings {
		g.Go(func() error {
			if enrich {
				l = enricher.Enrich(ctx, l)
			}

			var vetting *VettingResult
			if l.HasWebsite() && p.Vetter != nil {
				res := p.Vetter.AnalyzeSite(ctx, l.Website)
				vetting = &res
			}

			lead := Assemble(l, vetting, th)
			leads[i] = lead
			p.Metrics.leadEmitted(lead)

			mu.Lock()
			done++
			progress.ReportFraction(float64(done) / float64(len(listings)))
			progress.ReportStatus("Processed: " + lead.Name)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return leads
}

func (p *Pipeline) runFetcher(req SearchRequest) Fetcher {
	if !req.UseRelay {
		return p.Fetcher
	}
	key := ResolveRelayKey(req.RelayKey, p.RelayKey)
	if key == "" {
		p.logger().Warn("relay requested but no relay key is configured, fetching directly")
		return p.Fetcher
	}
	return &RelayFetcher{Next: p.Fetcher, BaseURL: p.RelayBaseURL, APIKey: key, Render: p.RelayRender}
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
