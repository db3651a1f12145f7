package ingest

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var placeIDPattern = regexp.MustCompile(`/place/([^/?#]+)`)

// AnchorLinkStrategy reads listings from links into place pages.
type AnchorLinkStrategy struct{}

func (AnchorLinkStrategy) Name() string { return StrategyAnchorLink }

func (AnchorLinkStrategy) TryExtract(doc *goquery.Document) []Listing {
	var out []Listing
	doc.Find(`a[href*="/maps/place/"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")

		name := normalizeSpace(a.Text())
		if name == "" {
			name = normalizeSpace(a.AttrOr("aria-label", ""))
		}
		if !isPlausibleName(name) {
			return
		}

		m := placeIDPattern.FindStringSubmatch(href)
		if m == nil || strings.TrimSpace(m[1]) == "" {
			return
		}

		l := NewListing(name)
		l.PlaceID = m[1]
		l.DetailURL = href
		out = append(out, l)
	})
	return out
}
