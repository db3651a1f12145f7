package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	SourceMaps   = "maps"
	SourcePlaces = "places"
	SourceNone   = "none"
)

// ListingSource produces the candidate listings of one run.
type ListingSource interface {
	Name() string
	Listings(ctx context.Context, req SearchRequest) ([]Listing, error)
}

// SearchQuery is the free-text query sent to the maps page.
func SearchQuery(req SearchRequest) string {
	if strings.TrimSpace(req.Location) == "" {
		return req.Keyword
	}
	return req.Keyword + " in " + req.Location
}

// SearchURL builds the maps search page URL centred on the request coordinates.
func SearchURL(baseURL string, req SearchRequest) string {
	if baseURL == "" {
		baseURL = "https://www.google.com"
	}
	return fmt.Sprintf("%s/maps/search/%s/@%s,%s,%sz",
		strings.TrimRight(baseURL, "/"),
		url.PathEscape(SearchQuery(req)),
		formatCoord(req.Latitude),
		formatCoord(req.Longitude),
		strconv.Itoa(req.ZoomLevel))
}

// MapsSource fetches the maps search page and runs the listing parser on it.
type MapsSource struct {
	Fetcher Fetcher
	Parser  *ListingParser
	BaseURL string
}

func (s *MapsSource) Name() string { return SourceMaps }

// Listings returns a *FetchError when the search page cannot be fetched.
func (s *MapsSource) Listings(ctx context.Context, req SearchRequest) ([]Listing, error) {
	doc, err := s.Fetcher.Fetch(ctx, SearchURL(s.BaseURL, req))
	if err != nil {
		return nil, err
	}
	defer doc.Body.Close()

	return s.Parser.Parse(doc.Body, req.MaxResults)
}

// PlacesSource adapts PlacesClient to ListingSource. Its listings already
// carry phone and website and skip detail enrichment.
type PlacesSource struct {
	Client *PlacesClient
}

func (s *PlacesSource) Name() string { return SourcePlaces }

func (s *PlacesSource) Listings(ctx context.Context, req SearchRequest) ([]Listing, error) {
	if !s.Client.Enabled() {
		return []Listing{}, nil
	}
	return s.Client.Search(ctx, req.Keyword, req.Latitude, req.Longitude, req.MaxResults), nil
}
