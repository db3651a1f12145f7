package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/david/lead-finder/internal/config"
	"github.com/david/lead-finder/internal/geocode"
	"github.com/david/lead-finder/internal/ingest"
	"github.com/david/lead-finder/internal/logger"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
)

// stderrProgress prints run progress on stderr so stdout stays clean for the report.
type stderrProgress struct{}

func (stderrProgress) ReportFraction(x float64) {
	fmt.Fprintf(os.Stderr, "[%3.0f%%]\n", x*100)
}

func (stderrProgress) ReportStatus(text string) {
	fmt.Fprintf(os.Stderr, "  %s\n", text)
}

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "Path to config file")
	keyword := flag.String("keyword", "", "Business keyword (e.g. bakery)")
	location := flag.String("location", "", "Free-text location (e.g. \"Trenton, NJ\")")
	lat := flag.Float64("lat", 0, "Latitude; geocoded from -location when both coordinates are 0")
	lon := flag.Float64("lon", 0, "Longitude")
	zoom := flag.Int("zoom", 13, "Map zoom level")
	radiusKm := flag.Int("radius-km", 0, "Approximate search radius in km; overrides -zoom when > 0")
	maxResults := flag.Int("max", 5, "Maximum leads to return")
	reviews := flag.Int("reviews", 15, "Review count below which a lead is high priority")
	vetting := flag.Int("vetting", 50, "Vetting threshold used for budget estimation")
	relay := flag.Bool("relay", false, "Route search and detail fetches through the rendering relay")
	noWebsite := flag.Bool("no-website", false, "Only show leads without a website")
	format := flag.String("format", "table", "Output format: table, csv or json")
	flag.Parse()

	if strings.TrimSpace(*keyword) == "" {
		log.Fatal("Please provide a keyword using -keyword flag")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	zl := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer zl.Sync()

	ctx := context.Background()

	req := ingest.DefaultSearchRequest(*keyword, *location)
	req.Latitude, req.Longitude = *lat, *lon
	req.ZoomLevel = *zoom
	if *radiusKm > 0 {
		req.ZoomLevel = ingest.ZoomForRadiusKm(*radiusKm)
	}
	req.MaxResults = *maxResults
	req.ReviewsThreshold = *reviews
	req.VettingThreshold = *vetting
	req.UseRelay = *relay

	if req.Latitude == 0 && req.Longitude == 0 && req.Location != "" {
		g := geocode.NewNominatimClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, cfg.Geocoder.Email)
		loc, err := g.Geocode(ctx, req.Location)
		if errors.Is(err, geocode.ErrNotFound) {
			log.Fatalf("Location not found: %s", req.Location)
		}
		if err != nil {
			log.Fatalf("Geocoding failed: %v", err)
		}
		req.Latitude, req.Longitude = loc.Latitude, loc.Longitude
		log.Printf("Resolved %q to %.5f,%.5f (%s)", req.Location, loc.Latitude, loc.Longitude, loc.DisplayAddress)
	}

	pipeline, err := ingest.Build(cfg, nil, zl)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	leads, err := pipeline.Run(ctx, req, stderrProgress{})
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	if *noWebsite {
		leads = ingest.WithoutWebsite(leads)
		log.Printf("Filtered to %d leads without websites", len(leads))
	}

	if err := render(leads, *format); err != nil {
		log.Fatal(err)
	}
}

func render(leads []ingest.Lead, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(leads)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Phone", "Website", "Rating", "Reviews", "Status", "Lead Type", "Score", "Markers", "Budget"})
	for _, l := range leads {
		t.AppendRow(table.Row{l.Name, l.Phone, l.Website, l.Rating, l.ReviewCount, l.ClaimedStatus, l.LeadType, l.VettingScore, l.Markers, l.EstimatedBudget})
	}

	switch format {
	case "table":
		sum := ingest.Summarize(leads)
		t.AppendFooter(table.Row{"Total", sum.Total, "", "", "", "High Priority", sum.HighPriority, "", "Vetted", sum.Vetted})
		t.Render()
	case "csv":
		t.RenderCSV()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}
