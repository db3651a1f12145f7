package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

var (
	// names sitting next to a [lat,lon] pair in the embedded app state
	coordinateNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\["([^"]+)",null,null,null,\[(-?\d+\.\d+),(-?\d+\.\d+)\]`),
		regexp.MustCompile(`"([^"]+)"\s*,\s*null\s*,\s*null\s*,\s*null\s*,\s*\[(-?\d+\.\d+),(-?\d+\.\d+)\]`),
	}
	shortTokenNamePattern = regexp.MustCompile(`\["([A-Za-z0-9\s&.\-']{3,50})",\d+`)
)

var scriptLiterals = map[string]struct{}{
	"null":      {},
	"undefined": {},
	"true":      {},
	"false":     {},
}

// InlineScriptStrategy scans inline script bodies for string literals shaped
// like business names. It is noisy and can be turned off with
// ParserOptions.DisableInlineScript.
type InlineScriptStrategy struct{}

func (InlineScriptStrategy) Name() string { return StrategyInlineScript }

func (InlineScriptStrategy) TryExtract(doc *goquery.Document) []Listing {
	var out []Listing
	add := func(raw string) {
		name := sanitizeName(raw)
		if n := utf8.RuneCountInString(name); n < 3 || n > 50 {
			return
		}
		if _, literal := scriptLiterals[strings.ToLower(name)]; literal {
			return
		}
		out = append(out, NewListing(name))
	}

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if t, _ := s.Attr("type"); t == "application/ld+json" {
			return
		}
		body := s.Text()
		if body == "" {
			return
		}
		for _, re := range coordinateNamePatterns {
			for _, m := range re.FindAllStringSubmatch(body, -1) {
				add(m[1])
			}
		}
		for _, m := range shortTokenNamePattern.FindAllStringSubmatch(body, -1) {
			add(m[1])
		}
	})
	return out
}
