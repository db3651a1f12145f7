package ingest

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StructuredDataStrategy reads LocalBusiness records from JSON-LD blocks.
// These records carry phone, website and rating and skip detail enrichment.
type StructuredDataStrategy struct{}

func (StructuredDataStrategy) Name() string { return StrategyStructuredData }

func (StructuredDataStrategy) TryExtract(doc *goquery.Document) []Listing {
	var out []Listing
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return
		}
		for _, obj := range flattenJSONLD(data) {
			if !isLocalBusiness(obj["@type"]) {
				continue
			}
			name := sanitizeName(jsonString(obj["name"]))
			if name == "" {
				continue
			}
			l := NewListing(name)
			if v := strings.TrimSpace(jsonString(obj["telephone"])); v != "" {
				l.Phone = v
			}
			if v := strings.TrimSpace(jsonString(obj["url"])); v != "" {
				l.Website = v
			}
			if rating, ok := obj["aggregateRating"].(map[string]any); ok {
				if v := jsonString(rating["ratingValue"]); v != "" {
					l.Rating = v
				}
				l.ReviewCount = jsonInt(rating["reviewCount"])
			}
			out = append(out, l)
		}
	})
	return out
}

// flattenJSONLD returns every object in a top-level object, array or @graph container.
func flattenJSONLD(data any) []map[string]any {
	switch v := data.(type) {
	case map[string]any:
		out := []map[string]any{v}
		if graph, ok := v["@graph"]; ok {
			out = append(out, flattenJSONLD(graph)...)
		}
		return out
	case []any:
		var out []map[string]any
		for _, item := range v {
			out = append(out, flattenJSONLD(item)...)
		}
		return out
	}
	return nil
}

func isLocalBusiness(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "LocalBusiness"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "LocalBusiness" {
				return true
			}
		}
	}
	return false
}

func jsonString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	}
	return ""
}

func jsonInt(v any) int {
	var n int
	switch x := v.(type) {
	case float64:
		n = int(x)
	case string:
		n, _ = strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(x), ",", ""))
	}
	if n < 0 {
		return 0
	}
	return n
}
