package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/david/lead-finder/internal/geocode"
	"github.com/david/lead-finder/internal/ingest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRunner struct {
	got   ingest.SearchRequest
	calls int
	leads []ingest.Lead
	err   error
}

func (f *fakeRunner) Run(_ context.Context, req ingest.SearchRequest, _ ingest.ProgressReporter) ([]ingest.Lead, error) {
	f.calls++
	f.got = req
	return f.leads, f.err
}

type fakeVetter struct {
	result ingest.VettingResult
	gotURL string
}

func (f *fakeVetter) AnalyzeSite(_ context.Context, url string) ingest.VettingResult {
	f.gotURL = url
	return f.result
}

type fakeGeocoder struct {
	loc   geocode.Location
	err   error
	calls int
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ string) (geocode.Location, error) {
	f.calls++
	return f.loc, f.err
}

func newTestServer(t *testing.T, r *fakeRunner, v *fakeVetter, g *fakeGeocoder) *Server {
	t.Helper()
	return NewServer(r, v, g, prometheus.NewRegistry(), zaptest.NewLogger(t))
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestScrape_AppliesDefaultsAndWrapsLeads(t *testing.T) {
	runner := &fakeRunner{leads: []ingest.Lead{{Name: "Corner Bakery", Website: ingest.NA, EstimatedBudget: ingest.TierNA}}}
	geo := &fakeGeocoder{}
	s := newTestServer(t, runner, &fakeVetter{}, geo)

	rec, out := do(t, s, http.MethodPost, "/api/scrape",
		`{"keyword":"bakery","location":"Trenton, NJ","latitude":40.2,"longitude":-74.7}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, true, out["success"])
	data, ok := out["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "Corner Bakery", data[0].(map[string]any)["name"])

	assert.Equal(t, 0, geo.calls, "explicit coordinates skip geocoding")
	assert.Equal(t, "bakery", runner.got.Keyword)
	assert.Equal(t, 13, runner.got.ZoomLevel)
	assert.Equal(t, 5, runner.got.MaxResults)
	assert.Equal(t, 15, runner.got.ReviewsThreshold)
	assert.Equal(t, 50, runner.got.VettingThreshold)
	assert.False(t, runner.got.UseRelay)
}

func TestScrape_ExplicitValuesOverrideDefaults(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(t, runner, &fakeVetter{}, &fakeGeocoder{})

	rec, out := do(t, s, http.MethodPost, "/api/scrape",
		`{"keyword":"florist","latitude":1,"longitude":2,"zoom_level":15,"max_results":0,"reviews_threshold":3,"vetting_threshold":80,"use_scraper_api":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, out["data"])
	assert.Equal(t, 15, runner.got.ZoomLevel)
	assert.Equal(t, 0, runner.got.MaxResults)
	assert.Equal(t, 3, runner.got.ReviewsThreshold)
	assert.Equal(t, 80, runner.got.VettingThreshold)
	assert.True(t, runner.got.UseRelay)
}

func TestScrape_DecodesJSONWhateverTheContentType(t *testing.T) {
	body := `{"keyword":"bakery","latitude":40,"longitude":-74}`
	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded"} {
		t.Run("content-type="+ct, func(t *testing.T) {
			runner := &fakeRunner{}
			s := newTestServer(t, runner, &fakeVetter{}, &fakeGeocoder{})

			req := httptest.NewRequest(http.MethodPost, "/api/scrape", strings.NewReader(body))
			if ct != "" {
				req.Header.Set("Content-Type", ct)
			}
			rec := httptest.NewRecorder()
			s.Echo.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, 1, runner.calls)
			assert.Equal(t, "bakery", runner.got.Keyword)
			assert.InDelta(t, 40.0, runner.got.Latitude, 1e-9)
			assert.InDelta(t, -74.0, runner.got.Longitude, 1e-9)
		})
	}
}

func TestVet_DecodesJSONWithoutContentType(t *testing.T) {
	vetter := &fakeVetter{result: ingest.VettingResult{Details: []string{}, Tier: ingest.TierLow}}
	s := newTestServer(t, &fakeRunner{}, vetter, &fakeGeocoder{})

	req := httptest.NewRequest(http.MethodPost, "/api/vet", strings.NewReader(`{"url":"https://example-shop.com"}`))
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example-shop.com", vetter.gotURL)
}

func TestScrape_RadiusSetsZoomUnlessZoomGiven(t *testing.T) {
	tests := []struct {
		name string
		body string
		zoom int
	}{
		{"radius only", `{"keyword":"bakery","latitude":1,"longitude":1,"radius_km":40}`, 12},
		{"small radius", `{"keyword":"bakery","latitude":1,"longitude":1,"radius_km":2}`, 15},
		{"zoom wins", `{"keyword":"bakery","latitude":1,"longitude":1,"radius_km":40,"zoom_level":16}`, 16},
		{"neither", `{"keyword":"bakery","latitude":1,"longitude":1}`, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			s := newTestServer(t, runner, &fakeVetter{}, &fakeGeocoder{})

			rec, _ := do(t, s, http.MethodPost, "/api/scrape", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.zoom, runner.got.ZoomLevel)
		})
	}
}

func TestScrape_GeocodesMissingCoordinates(t *testing.T) {
	runner := &fakeRunner{}
	geo := &fakeGeocoder{loc: geocode.Location{Latitude: 40.22, Longitude: -74.76}}
	s := newTestServer(t, runner, &fakeVetter{}, geo)

	rec, _ := do(t, s, http.MethodPost, "/api/scrape", `{"keyword":"bakery","location":"Trenton, NJ"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, geo.calls)
	assert.InDelta(t, 40.22, runner.got.Latitude, 1e-9)
	assert.InDelta(t, -74.76, runner.got.Longitude, 1e-9)
}

func TestScrape_UnknownLocation(t *testing.T) {
	runner := &fakeRunner{}
	geo := &fakeGeocoder{err: geocode.ErrNotFound}
	s := newTestServer(t, runner, &fakeVetter{}, geo)

	rec, out := do(t, s, http.MethodPost, "/api/scrape", `{"keyword":"bakery","location":"Atlantis"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "Atlantis")
	assert.Equal(t, 0, runner.calls)
}

func TestScrape_ErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"invalid request", ingest.ErrInvalidRequest, `{"keyword":"","latitude":1,"longitude":1}`, http.StatusBadRequest},
		{"pipeline failure", errors.New("boom"), `{"keyword":"bakery","latitude":1,"longitude":1}`, http.StatusInternalServerError},
		{"malformed json", nil, `{"keyword":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeRunner{err: tt.err}, &fakeVetter{}, &fakeGeocoder{})
			rec, out := do(t, s, http.MethodPost, "/api/scrape", tt.body)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, out["success"])
			assert.NotEmpty(t, out["error"])
			assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestVet(t *testing.T) {
	vetter := &fakeVetter{result: ingest.VettingResult{
		Score:   70,
		Details: []string{"Ads Detected (1)", "Premium Tech (1)"},
		Tier:    ingest.TierHigh,
	}}
	s := newTestServer(t, &fakeRunner{}, vetter, &fakeGeocoder{})

	rec, out := do(t, s, http.MethodPost, "/api/vet", `{"url":"https://example-shop.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example-shop.com", vetter.gotURL)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(70), out["score"])
	assert.Equal(t, "Ads Detected (1), Premium Tech (1)", out["details"])
	assert.Equal(t, "High", out["budget"])
}

func TestVet_MissingURL(t *testing.T) {
	vetter := &fakeVetter{}
	s := newTestServer(t, &fakeRunner{}, vetter, &fakeGeocoder{})

	rec, out := do(t, s, http.MethodPost, "/api/vet", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "URL is required", out["error"])
	assert.Empty(t, vetter.gotURL)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &fakeRunner{}, &fakeVetter{}, &fakeGeocoder{})

	rec, out := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	s.Echo.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t, &fakeRunner{}, &fakeVetter{}, &fakeGeocoder{})

	rec, out := do(t, s, http.MethodGet, "/api/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, out["success"])
}
