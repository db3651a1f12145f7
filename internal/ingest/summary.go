package ingest

// ZoomForRadiusKm maps an approximate search radius onto a map zoom level.
func ZoomForRadiusKm(km int) int {
	switch {
	case km <= 2:
		return 15
	case km <= 5:
		return 14
	case km <= 15:
		return 13
	case km <= 40:
		return 12
	case km <= 100:
		return 10
	default:
		return 8
	}
}

// WithoutWebsite keeps the leads that have no website, in order.
func WithoutWebsite(leads []Lead) []Lead {
	out := make([]Lead, 0, len(leads))
	for _, l := range leads {
		if l.Website == "" || l.Website == NA {
			out = append(out, l)
		}
	}
	return out
}

// Summary holds the headline counts of a result set.
type Summary struct {
	Total        int `json:"total"`
	HighPriority int `json:"high_priority"`
	Vetted       int `json:"vetted"`
}

func Summarize(leads []Lead) Summary {
	s := Summary{Total: len(leads)}
	for _, l := range leads {
		if l.LeadType == LeadHighPriority {
			s.HighPriority++
		}
		if l.Website != "" && l.Website != NA {
			s.Vetted++
		}
	}
	return s
}
