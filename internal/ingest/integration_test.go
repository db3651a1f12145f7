package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/david/lead-finder/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockFetcher struct {
	Data map[string][]byte
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*FetchedDocument, error) {
	content, ok := m.Data[url]
	if !ok {
		return nil, &FetchError{URL: url, StatusCode: http.StatusNotFound, Attempts: 1, Err: fmt.Errorf("mock 404: %s", url)}
	}
	return &FetchedDocument{
		URL:        url,
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader(content)),
		Headers:    make(http.Header),
		FetchedAt:  parseTimeOrNow("2025-01-01T12:00:00Z"),
	}, nil
}

func parseTimeOrNow(s string) (t time.Time) {
	t, _ = time.Parse(time.RFC3339, s)
	if t.IsZero() {
		t = time.Now()
	}
	return
}

type recordingProgress struct {
	mu        sync.Mutex
	fractions []float64
	statuses  []string
}

func (r *recordingProgress) ReportFraction(x float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fractions = append(r.fractions, x)
}

func (r *recordingProgress) ReportStatus(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

const testMapsBase = "https://maps.test"

func testPipeline(t *testing.T, pages, sites map[string][]byte) *Pipeline {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.MapsBaseURL = testMapsBase
	cfg.Relay.APIKey = ""
	cfg.Places.APIKey = ""

	logger := zaptest.NewLogger(t)
	vetter := NewVettingEngine(&MockFetcher{Data: sites}, nil)
	p := NewPipeline(cfg, &MockFetcher{Data: pages}, vetter, logger)
	p.Metrics = NewMetrics(prometheus.NewRegistry())
	vetter.Metrics = p.Metrics
	return p
}

func bakeryRequest() SearchRequest {
	req := DefaultSearchRequest("bakery", "Trenton, NJ")
	req.Latitude = 40.0
	req.Longitude = -74.0
	req.MaxResults = 2
	return req
}

const bakerySearchHTML = `<html><head>
<script type="application/ld+json">{"@type":"LocalBusiness","name":"Example Shop Bakery","url":"http://example-shop.com","telephone":"+1 609-555-0100","aggregateRating":{"ratingValue":4.8,"reviewCount":40}}</script>
<script type="application/ld+json">{"@type":"LocalBusiness","name":"Corner Bakery"}</script>
<script type="application/ld+json">{"@type":"LocalBusiness","name":"Third Bakery"}</script>
</head><body></body></html>`

func TestPipeline_BakeryEndToEnd(t *testing.T) {
	req := bakeryRequest()
	searchURL := SearchURL(testMapsBase, req)
	assert.Equal(t, "https://maps.test/maps/search/bakery%20in%20Trenton%2C%20NJ/@40,-74,13z", searchURL)

	p := testPipeline(t,
		map[string][]byte{searchURL: []byte(bakerySearchHTML)},
		map[string][]byte{"http://example-shop.com": []byte(`<script src="https://www.googletagmanager.com/gtm.js"></script> shopify`)},
	)
	progress := &recordingProgress{}

	leads, err := p.Run(context.Background(), req, progress)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	first, second := leads[0], leads[1]
	assert.Equal(t, "Example Shop Bakery", first.Name)
	assert.Equal(t, 70, first.VettingScore)
	assert.Equal(t, TierHigh, first.EstimatedBudget)
	assert.Equal(t, Claimed, first.ClaimedStatus)
	assert.Equal(t, LeadStandard, first.LeadType)
	assert.Equal(t, "Ads Detected (1), Premium Tech (1)", first.Markers)

	assert.Equal(t, "Corner Bakery", second.Name)
	assert.Equal(t, NA, second.Website)
	assert.Equal(t, TierNA, second.EstimatedBudget)
	assert.Equal(t, 0, second.VettingScore)
	assert.Equal(t, Unclaimed, second.ClaimedStatus)
	assert.Equal(t, LeadHighPriority, second.LeadType)

	assert.Equal(t, []float64{0.5, 1.0}, progress.fractions)
	assert.Contains(t, progress.statuses, "Processed: Example Shop Bakery")
	assert.Equal(t, "Processed: Corner Bakery", progress.statuses[len(progress.statuses)-1])

	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.runs.WithLabelValues(SourceMaps)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.leads.WithLabelValues(string(LeadStandard), string(TierHigh))))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.leads.WithLabelValues(string(LeadHighPriority), string(TierNA))))
}

func TestPipeline_EnrichesAnchorListings(t *testing.T) {
	req := bakeryRequest()
	search := `<a href="/maps/place/Sunrise+Bakery/data=!4m7">Sunrise Bakery</a>`
	pages := map[string][]byte{SearchURL(testMapsBase, req): []byte(search)}
	pages[testMapsBase+"/maps/place/Sunrise+Bakery/data=!4m7"] = []byte(detailPageHTML)
	p := testPipeline(t,
		pages,
		map[string][]byte{"https://sunrise-bakery.example/": []byte("Luxury wedding cakes for corporate events")},
	)

	leads, err := p.Run(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, leads, 1)

	assert.Equal(t, "+1 555-0142", leads[0].Phone)
	assert.Equal(t, 1234, leads[0].ReviewCount)
	assert.Equal(t, 20, leads[0].VettingScore)
	assert.Equal(t, TierLow, leads[0].EstimatedBudget)
	assert.Equal(t, "High-Ticket Keywords (2)", leads[0].Markers)
}

func TestPipeline_FetchFailureYieldsEmptyResult(t *testing.T) {
	p := testPipeline(t, map[string][]byte{}, nil)
	progress := &recordingProgress{}

	leads, err := p.Run(context.Background(), bakeryRequest(), progress)
	require.NoError(t, err)
	assert.NotNil(t, leads)
	assert.Empty(t, leads)
	assert.Contains(t, progress.statuses[len(progress.statuses)-1], "Failed to fetch")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.runs.WithLabelValues(SourceNone)))
}

func TestPipeline_PlacesFallback(t *testing.T) {
	srv := newPlacesServer(t, "OK", map[string]map[string]any{
		"p1": {"formatted_phone_number": "(555) 010-0001", "website": "https://sunrise.example"},
	})

	req := bakeryRequest()
	req.Location = ""
	p := testPipeline(t,
		map[string][]byte{SearchURL(testMapsBase, req): []byte(`<html><body>nothing here</body></html>`)},
		map[string][]byte{"https://sunrise.example": []byte("magento storefront, wholesale pricing")},
	)
	p.Places = NewPlacesClient(srv.URL, "test-key", 5000, 5*time.Second)

	leads, err := p.Run(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	assert.Equal(t, "Sunrise Bakery", leads[0].Name)
	assert.Equal(t, 50, leads[0].VettingScore)
	assert.Equal(t, TierHigh, leads[0].EstimatedBudget)
	assert.Equal(t, "Corner Bakery", leads[1].Name)
	assert.Equal(t, Unclaimed, leads[1].ClaimedStatus)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.Metrics.runs.WithLabelValues(SourcePlaces)))
}

func TestPipeline_RelayRoutesSearchFetch(t *testing.T) {
	req := bakeryRequest()
	req.UseRelay = true
	req.RelayKey = "relay-key"

	relay := &RelayFetcher{BaseURL: config.DefaultRelayBaseURL, APIKey: "relay-key", Render: true}
	p := testPipeline(t,
		map[string][]byte{relay.RelayURL(SearchURL(testMapsBase, req)): []byte(bakerySearchHTML)},
		nil,
	)

	leads, err := p.Run(context.Background(), req, nil)
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, TierLow, leads[0].EstimatedBudget, "vetting is never relayed and the site is unknown")
}

func TestPipeline_ConcurrentRunKeepsDiscoveryOrder(t *testing.T) {
	var b strings.Builder
	sites := map[string][]byte{}
	for i := 0; i < 6; i++ {
		site := fmt.Sprintf("http://shop%d.example", i)
		fmt.Fprintf(&b, `<script type="application/ld+json">{"@type":"LocalBusiness","name":"Shop Number %d","url":%q}</script>`, i, site)
		sites[site] = []byte("hubspot")
	}

	req := bakeryRequest()
	req.MaxResults = 6
	p := testPipeline(t, map[string][]byte{SearchURL(testMapsBase, req): []byte(b.String())}, nil)
	p.Vetter.Fetcher = &slowFetcher{next: &MockFetcher{Data: sites}}
	p.Concurrency = 3
	progress := &recordingProgress{}

	leads, err := p.Run(context.Background(), req, progress)
	require.NoError(t, err)
	require.Len(t, leads, 6)
	for i, l := range leads {
		assert.Equal(t, fmt.Sprintf("Shop Number %d", i), l.Name)
		assert.Equal(t, 30, l.VettingScore)
	}
	assert.Len(t, progress.fractions, 6)
	assert.Equal(t, 1.0, progress.fractions[5])
}

// slowFetcher delays earlier sites longer so completion order is reversed.
type slowFetcher struct {
	next Fetcher
}

func (s *slowFetcher) Fetch(ctx context.Context, url string) (*FetchedDocument, error) {
	var n int
	fmt.Sscanf(url, "http://shop%d.example", &n)
	time.Sleep(time.Duration(6-n) * 10 * time.Millisecond)
	return s.next.Fetch(ctx, url)
}

func TestPipeline_InvalidRequest(t *testing.T) {
	p := testPipeline(t, nil, nil)

	_, err := p.Run(context.Background(), DefaultSearchRequest("  ", "Trenton"), nil)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	req := bakeryRequest()
	req.MaxResults = 0
	_, err = p.Run(context.Background(), req, nil)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
