package ingest

// Thresholds drive lead classification.
type Thresholds struct {
	Reviews int
	Vetting int
}

// Assemble builds the final Lead for a listing. vetting is ignored when the
// listing has no website. Assemble is pure: equal inputs give equal leads.
func Assemble(l Listing, vetting *VettingResult, th Thresholds) Lead {
	l = l.withDefaults()

	lead := Lead{
		Name:            l.Name,
		PlaceID:         l.PlaceID,
		DetailURL:       l.DetailURL,
		Phone:           l.Phone,
		Website:         l.Website,
		Rating:          l.Rating,
		ReviewCount:     l.ReviewCount,
		ClaimedStatus:   Claimed,
		LeadType:        LeadStandard,
		EstimatedBudget: TierNA,
	}

	// Proxy only: the listing page exposes no real claimed flag.
	if !l.HasWebsite() && l.ReviewCount == 0 {
		lead.ClaimedStatus = Unclaimed
	}
	if l.ReviewCount < th.Reviews || lead.ClaimedStatus == Unclaimed {
		lead.LeadType = LeadHighPriority
	}

	if l.HasWebsite() && vetting != nil {
		lead.VettingScore = vetting.Score
		lead.Markers = vetting.MarkerSummary()
		lead.EstimatedBudget = BudgetFor(vetting.Score, th.Vetting)
	}
	return lead
}

// BudgetFor compares a score against the caller's vetting threshold.
// Medium starts at half the threshold, compared without integer truncation.
func BudgetFor(score, threshold int) BudgetTier {
	switch {
	case score >= threshold:
		return TierHigh
	case score*2 >= threshold:
		return TierMedium
	default:
		return TierLow
	}
}
