package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/david/lead-finder/internal/config"
	"github.com/david/lead-finder/internal/ingest"
	"github.com/jedib0t/go-pretty/v6/table"
)

type vetResponse struct {
	Success bool   `json:"success"`
	Score   int    `json:"score"`
	Details string `json:"details"`
	Budget  string `json:"budget"`
	Error   string `json:"error"`
}

type siteMetric struct {
	URL        string
	HTTPStatus int
	Duration   time.Duration
	Score      int
	Budget     string
	Details    string
	Error      string
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8081", "API base URL")
	local := flag.Bool("local", false, "Vet in-process instead of calling the API")
	configPath := flag.String("config", "config.yaml", "Config file used with -local")
	urlsCSV := flag.String("urls", "", "Comma-separated list of site URLs")
	urlsFile := flag.String("urls-file", "", "Path to file with one URL per line")
	rateLimitMs := flag.Int("rate-limit-ms", 1000, "Delay between site checks in milliseconds")
	timeoutSec := flag.Int("timeout-sec", 30, "HTTP timeout in seconds")
	dryRun := flag.Bool("dry-run", false, "Print planned checks only; do not execute")
	flag.Parse()

	urls, err := loadURLs(*urlsCSV, *urlsFile)
	if err != nil {
		exitErr(err)
	}
	if len(urls) == 0 {
		exitErr(errors.New("no urls provided: use -urls or -urls-file"))
	}
	if *timeoutSec <= 0 {
		exitErr(errors.New("timeout-sec must be > 0"))
	}

	var check func(ctx context.Context, site string) siteMetric
	if *local {
		cfg, err := config.Load(*configPath)
		if err != nil {
			exitErr(err)
		}
		markers, err := ingest.LoadMarkers(cfg.MarkersFile)
		if err != nil {
			exitErr(err)
		}
		engine := ingest.NewVettingEngine(ingest.NewVettingFetcher(cfg.Fetch, cfg.UserAgent), markers)
		check = func(ctx context.Context, site string) siteMetric {
			res := engine.AnalyzeSite(ctx, site)
			return siteMetric{URL: site, Score: res.Score, Budget: string(res.Tier), Details: res.MarkerSummary()}
		}
	} else {
		client := &http.Client{Timeout: time.Duration(*timeoutSec) * time.Second}
		endpoint := strings.TrimRight(*baseURL, "/") + "/api/vet"
		check = func(ctx context.Context, site string) siteMetric {
			return callVet(ctx, client, endpoint, site)
		}
	}

	ctx := context.Background()
	metrics := make([]siteMetric, 0, len(urls))
	for idx, site := range urls {
		start := time.Now()
		var m siteMetric
		if *dryRun {
			fmt.Printf("[DRY-RUN] %s\n", site)
			m = siteMetric{URL: site}
		} else {
			m = check(ctx, site)
		}
		m.Duration = time.Since(start)
		metrics = append(metrics, m)

		if idx < len(urls)-1 && *rateLimitMs > 0 && !*dryRun {
			time.Sleep(time.Duration(*rateLimitMs) * time.Millisecond)
		}
	}

	printReport(metrics)
}

func loadURLs(csv, filePath string) ([]string, error) {
	set := map[string]struct{}{}
	add := func(raw string) {
		u := strings.TrimSpace(raw)
		if u == "" || strings.HasPrefix(u, "#") {
			return
		}
		if !strings.Contains(u, "://") {
			u = "https://" + u
		}
		set[u] = struct{}{}
	}

	for _, part := range strings.Split(csv, ",") {
		add(part)
	}

	if strings.TrimSpace(filePath) != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read urls-file: %w", err)
		}
		for _, line := range strings.Split(string(content), "\n") {
			add(line)
		}
	}

	urls := make([]string, 0, len(set))
	for u := range set {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls, nil
}

func callVet(ctx context.Context, client *http.Client, endpoint, site string) siteMetric {
	m := siteMetric{URL: site}

	body, _ := json.Marshal(map[string]string{"url": site})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		m.Error = err.Error()
		return m
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		m.Error = err.Error()
		return m
	}
	defer resp.Body.Close()
	m.HTTPStatus = resp.StatusCode

	var payload vetResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		m.Error = fmt.Sprintf("decode failed: %v", err)
		return m
	}
	if !payload.Success {
		m.Error = fmt.Sprintf("http %d: %s", resp.StatusCode, payload.Error)
		return m
	}

	m.Score, m.Budget, m.Details = payload.Score, payload.Budget, payload.Details
	return m
}

func printReport(metrics []siteMetric) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Vetting Batch Report")
	t.AppendHeader(table.Row{"URL", "HTTP", "Score", "Budget", "Markers", "Sec", "Error"})

	tiers := map[string]int{}
	errs := 0
	for _, m := range metrics {
		if m.Error != "" {
			errs++
		} else if m.Budget != "" {
			tiers[m.Budget]++
		}
		t.AppendRow(table.Row{m.URL, m.HTTPStatus, m.Score, m.Budget, m.Details, fmt.Sprintf("%.2f", m.Duration.Seconds()), m.Error})
	}
	t.AppendFooter(table.Row{"Totals", "", "", "", fmt.Sprintf("high=%d medium=%d low=%d unreachable=%d",
		tiers[string(ingest.TierHigh)], tiers[string(ingest.TierMedium)], tiers[string(ingest.TierLow)], tiers[string(ingest.TierUnreachable)]),
		"", fmt.Sprintf("errors=%d", errs)})
	t.Render()
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
