package ingest

import (
	"context"
	"io"
	"time"
)

// NA marks a string field the source did not provide.
const NA = "N/A"

// Listing is a candidate business extracted from a search page or the places API.
type Listing struct {
	Name        string
	PlaceID     string
	DetailURL   string
	Phone       string
	Website     string
	Rating      string
	ReviewCount int
}

// NewListing returns a listing with the documented field defaults.
func NewListing(name string) Listing {
	return Listing{
		Name:    name,
		Phone:   NA,
		Website: NA,
		Rating:  "0",
	}
}

// withDefaults fills empty optional fields so downstream checks can compare against NA.
func (l Listing) withDefaults() Listing {
	if l.Phone == "" {
		l.Phone = NA
	}
	if l.Website == "" {
		l.Website = NA
	}
	if l.Rating == "" {
		l.Rating = "0"
	}
	if l.ReviewCount < 0 {
		l.ReviewCount = 0
	}
	return l
}

func (l Listing) HasWebsite() bool {
	return l.Website != "" && l.Website != NA
}

type BudgetTier string

const (
	TierUnreachable BudgetTier = "Unreachable"
	TierLow         BudgetTier = "Low"
	TierMedium      BudgetTier = "Medium"
	TierHigh        BudgetTier = "High"
	TierNA          BudgetTier = NA
)

type ClaimedStatus string

const (
	Claimed   ClaimedStatus = "Claimed"
	Unclaimed ClaimedStatus = "Unclaimed"
)

type LeadType string

const (
	LeadStandard     LeadType = "Standard"
	LeadHighPriority LeadType = "High Priority New Lead"
)

// Lead is the final, immutable record emitted for one processed listing.
type Lead struct {
	Name            string        `json:"name"`
	PlaceID         string        `json:"place_id,omitempty"`
	DetailURL       string        `json:"detail_url,omitempty"`
	Phone           string        `json:"phone"`
	Website         string        `json:"website"`
	Rating          string        `json:"rating"`
	ReviewCount     int           `json:"review_count"`
	ClaimedStatus   ClaimedStatus `json:"claimed_status"`
	LeadType        LeadType      `json:"lead_type"`
	VettingScore    int           `json:"vetting_score"`
	Markers         string        `json:"markers"`
	EstimatedBudget BudgetTier    `json:"estimated_budget"`
}

// SearchRequest holds the parameters of one pipeline run.
type SearchRequest struct {
	Keyword          string
	Location         string
	Latitude         float64
	Longitude        float64
	ZoomLevel        int
	MaxResults       int
	ReviewsThreshold int
	VettingThreshold int
	UseRelay         bool
	RelayKey         string
}

// DefaultSearchRequest returns a request carrying the documented defaults.
func DefaultSearchRequest(keyword, location string) SearchRequest {
	return SearchRequest{
		Keyword:          keyword,
		Location:         location,
		ZoomLevel:        13,
		MaxResults:       5,
		ReviewsThreshold: 15,
		VettingThreshold: 50,
	}
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// ProgressReporter receives fire-and-forget progress updates from a run.
type ProgressReporter interface {
	ReportFraction(x float64)
	ReportStatus(text string)
}

// NopProgress discards all progress updates.
type NopProgress struct{}

func (NopProgress) ReportFraction(float64) {}
func (NopProgress) ReportStatus(string)    {}
