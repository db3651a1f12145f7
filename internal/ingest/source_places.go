package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// PlacesClient queries the structured places directory API.
type PlacesClient struct {
	Client       *http.Client
	BaseURL      string
	APIKey       string
	RadiusMeters int
	Logger       *zap.Logger
}

func NewPlacesClient(baseURL, apiKey string, radiusMeters int, timeout time.Duration) *PlacesClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if radiusMeters <= 0 {
		radiusMeters = 5000
	}
	return &PlacesClient{
		Client:       &http.Client{Timeout: timeout},
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		RadiusMeters: radiusMeters,
	}
}

// Enabled reports whether an API key is configured.
func (c *PlacesClient) Enabled() bool {
	return c != nil && c.APIKey != ""
}

// placesTextSearchResponse is the textsearch/json payload.
type placesTextSearchResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name             string  `json:"name"`
		PlaceID          string  `json:"place_id"`
		Rating           float64 `json:"rating"`
		UserRatingsTotal int     `json:"user_ratings_total"`
	} `json:"results"`
}

type placesDetailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		FormattedPhoneNumber string `json:"formatted_phone_number"`
		Website              string `json:"website"`
	} `json:"result"`
}

// TextSearch returns up to max listings around (lat, lon). Phone and website
// stay "N/A"; Details fills them.
func (c *PlacesClient) TextSearch(ctx context.Context, query string, lat, lon float64, max int) ([]Listing, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("location", formatCoord(lat)+","+formatCoord(lon))
	params.Set("radius", strconv.Itoa(c.RadiusMeters))
	params.Set("key", c.APIKey)

	var resp placesTextSearchResponse
	if err := c.getJSON(ctx, "textsearch", params, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, &UpstreamAPIError{Endpoint: "textsearch", Status: resp.Status, Message: resp.ErrorMessage}
	}

	results := resp.Results
	if max >= 0 && len(results) > max {
		results = results[:max]
	}

	listings := make([]Listing, 0, len(results))
	for _, r := range results {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = "Unknown"
		}
		l := NewListing(name)
		l.PlaceID = r.PlaceID
		l.Rating = strconv.FormatFloat(r.Rating, 'f', -1, 64)
		if r.UserRatingsTotal > 0 {
			l.ReviewCount = r.UserRatingsTotal
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// Details looks up phone and website for one place.
func (c *PlacesClient) Details(ctx context.Context, placeID string) (phone, website string, err error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", "formatted_phone_number,website")
	params.Set("key", c.APIKey)

	var resp placesDetailsResponse
	if err := c.getJSON(ctx, "details", params, &resp); err != nil {
		return NA, NA, err
	}
	if resp.Status != "OK" {
		return NA, NA, &UpstreamAPIError{Endpoint: "details", Status: resp.Status, Message: resp.ErrorMessage}
	}

	phone, website = NA, NA
	if v := strings.TrimSpace(resp.Result.FormattedPhoneNumber); v != "" {
		phone = v
	}
	if v := strings.TrimSpace(resp.Result.Website); v != "" {
		website = v
	}
	return phone, website, nil
}

// Search runs a text search and a details lookup per result. Failures are
// logged and degrade to fewer results or "N/A" fields, never an error.
func (c *PlacesClient) Search(ctx context.Context, query string, lat, lon float64, max int) []Listing {
	log := c.Logger
	if log == nil {
		log = zap.NewNop()
	}

	listings, err := c.TextSearch(ctx, query, lat, lon, max)
	if err != nil {
		log.Warn("places text search failed", zap.String("query", query), zap.Error(err))
		return []Listing{}
	}

	for i := range listings {
		if listings[i].PlaceID == "" {
			continue
		}
		phone, website, err := c.Details(ctx, listings[i].PlaceID)
		if err != nil {
			log.Debug("places details failed", zap.String("place_id", listings[i].PlaceID), zap.Error(err))
			continue
		}
		listings[i].Phone = phone
		listings[i].Website = website
	}
	return listings
}

func (c *PlacesClient) getJSON(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/%s/json?%s", c.BaseURL, endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("places %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &UpstreamAPIError{Endpoint: endpoint, Status: strconv.Itoa(resp.StatusCode), Message: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
