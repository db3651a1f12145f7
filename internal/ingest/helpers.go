package ingest

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var namePolicy = bluemonday.StrictPolicy()

// placeholderNames are UI strings the maps page renders as link text.
var placeholderNames = map[string]struct{}{
	"unknown":    {},
	"results":    {},
	"directions": {},
}

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeName strips markup from names pulled out of scripts and JSON blobs.
func sanitizeName(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = namePolicy.Sanitize(s)
	s = html.UnescapeString(s)
	return normalizeSpace(s)
}

// isPlausibleName rejects empty, too-short and placeholder names.
func isPlausibleName(name string) bool {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= 2 {
		return false
	}
	_, placeholder := placeholderNames[strings.ToLower(name)]
	return !placeholder
}

// nameKey is the identity used for de-duplication.
func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// dedupeListings keeps the first plausible listing per name key, in order, up to max.
func dedupeListings(candidates []Listing, max int) []Listing {
	if max <= 0 {
		return []Listing{}
	}
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Listing, 0, min(max, len(candidates)))
	for _, l := range candidates {
		if len(out) >= max {
			break
		}
		if !isPlausibleName(l.Name) {
			continue
		}
		k := nameKey(l.Name)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		l.Name = strings.TrimSpace(l.Name)
		out = append(out, l.withDefaults())
	}
	return out
}
