// Package geocode resolves free-text locations into coordinates.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the geocoder has no match for the query.
var ErrNotFound = errors.New("location not found")

type Location struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DisplayAddress string  `json:"display_address"`
}

type Geocoder interface {
	Geocode(ctx context.Context, text string) (Location, error)
}

// NominatimClient queries an OpenStreetMap Nominatim search endpoint.
// The public instance allows one request per second and requires a
// descriptive User-Agent.
type NominatimClient struct {
	Client    *http.Client
	BaseURL   string
	UserAgent string
	Email     string
	limiter   *rate.Limiter
}

func NewNominatimClient(baseURL, userAgent, email string) *NominatimClient {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org/search"
	}
	if userAgent == "" {
		userAgent = "lead-finder/1.0"
	}
	return &NominatimClient{
		Client:    &http.Client{Timeout: 10 * time.Second},
		BaseURL:   strings.TrimRight(baseURL, "?&"),
		UserAgent: userAgent,
		Email:     email,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (c *NominatimClient) Geocode(ctx context.Context, text string) (Location, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Location{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Location{}, err
		}
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", text)
	endpoint := fmt.Sprintf("%s?%s", c.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Language", "en")
	if c.Email != "" {
		req.Header.Set("From", c.Email)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geocoder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geocoder responded with status %d", resp.StatusCode)
	}

	var payload []struct {
		Lat         string `json:"lat"`
		Lon         string `json:"lon"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("decoding geocoder response: %w", err)
	}
	if len(payload) == 0 {
		return Location{}, fmt.Errorf("%w: %s", ErrNotFound, text)
	}

	lat, err := strconv.ParseFloat(payload[0].Lat, 64)
	if err != nil {
		return Location{}, fmt.Errorf("invalid latitude %q: %w", payload[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(payload[0].Lon, 64)
	if err != nil {
		return Location{}, fmt.Errorf("invalid longitude %q: %w", payload[0].Lon, err)
	}
	return Location{Latitude: lat, Longitude: lon, DisplayAddress: payload[0].DisplayName}, nil
}
