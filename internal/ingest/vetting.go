package ingest

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const failedToAccess = "Failed to access site"

// VettingResult is the wealth-marker score of one website.
type VettingResult struct {
	Score   int
	Details []string
	Tier    BudgetTier
}

// MarkerSummary joins the fired categories, empty when none fired.
func (r VettingResult) MarkerSummary() string {
	return strings.Join(r.Details, ", ")
}

// VettingEngine fetches websites and scores them against a MarkerTable.
type VettingEngine struct {
	Fetcher Fetcher
	Markers *MarkerTable
	Metrics *Metrics
	Logger  *zap.Logger
}

func NewVettingEngine(fetcher Fetcher, markers *MarkerTable) *VettingEngine {
	if markers == nil {
		markers = DefaultMarkers()
	}
	return &VettingEngine{Fetcher: fetcher, Markers: markers}
}

// TierFor maps a score onto the fixed vetting tiers.
func TierFor(score int) BudgetTier {
	switch {
	case score >= 50:
		return TierHigh
	case score >= 20:
		return TierMedium
	default:
		return TierLow
	}
}

// ScoreHTML scores page content. It is pure and does no I/O.
func (v *VettingEngine) ScoreHTML(html string) VettingResult {
	markers := v.Markers
	if markers == nil {
		markers = DefaultMarkers()
	}
	content := strings.ToLower(html)

	res := VettingResult{Details: []string{}}
	for i := range markers.Categories {
		c := &markers.Categories[i]
		if n := c.matches(content); n > 0 {
			res.Score += c.Delta
			res.Details = append(res.Details, c.detail(n))
		}
	}
	res.Tier = TierFor(res.Score)
	return res
}

// AnalyzeSite fetches url and scores it. An unreachable site yields
// score 0 and TierUnreachable instead of an error.
func (v *VettingEngine) AnalyzeSite(ctx context.Context, url string) VettingResult {
	html, err := FetchText(ctx, v.Fetcher, url)
	if err != nil {
		if v.Logger != nil {
			v.Logger.Debug("vetting fetch failed", zap.String("url", url), zap.Error(err))
		}
		return VettingResult{Score: 0, Details: []string{failedToAccess}, Tier: TierUnreachable}
	}

	res := v.ScoreHTML(html)
	v.Metrics.observeVetting(res.Score)
	return res
}
