package ingest

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var digitRun = regexp.MustCompile(`\d+`)

// DetailEnricher fills phone, website, rating and review count from a
// listing's place page. It never fails; anything it cannot read keeps its default.
type DetailEnricher struct {
	Fetcher Fetcher
	// BaseURL resolves site-relative detail links, e.g. https://www.google.com.
	BaseURL string
	Logger  *zap.Logger
}

// Enrich returns a copy of l with whatever the detail page provided.
func (e *DetailEnricher) Enrich(ctx context.Context, l Listing) Listing {
	l = l.withDefaults()
	if l.HasWebsite() || strings.TrimSpace(l.DetailURL) == "" || e.Fetcher == nil {
		return l
	}

	target, err := e.resolve(l.DetailURL)
	if err != nil {
		e.skip(l, err)
		return l
	}

	doc, err := e.Fetcher.Fetch(ctx, target)
	if err != nil {
		e.skip(l, err)
		return l
	}
	defer doc.Body.Close()

	page, err := goquery.NewDocumentFromReader(doc.Body)
	if err != nil {
		e.skip(l, fmt.Errorf("parse detail page: %w", err))
		return l
	}
	return applyDetails(page, l)
}

func applyDetails(page *goquery.Document, l Listing) Listing {
	if l.Phone == NA {
		if label, ok := page.Find(`button[data-item-id*="phone:"]`).First().Attr("aria-label"); ok {
			if phone := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(label), "Phone: ")); phone != "" {
				l.Phone = phone
			}
		}
	}

	if l.Website == NA {
		if href, ok := page.Find(`a[data-item-id="authority"]`).First().Attr("href"); ok && href != "" {
			l.Website = href
		}
	}

	if l.Rating == "0" {
		if label, ok := page.Find(`span[role="img"][aria-label*="stars"]`).First().Attr("aria-label"); ok {
			if fields := strings.Fields(label); len(fields) > 0 {
				l.Rating = fields[0]
			}
		}
	}

	if l.ReviewCount == 0 {
		if label, ok := page.Find(`button[aria-label*="reviews"]`).First().Attr("aria-label"); ok {
			if m := digitRun.FindString(strings.ReplaceAll(label, ",", "")); m != "" {
				if n, err := strconv.Atoi(m); err == nil && n >= 0 {
					l.ReviewCount = n
				}
			}
		}
	}

	return l
}

func (e *DetailEnricher) resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid detail url: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base := e.BaseURL
	if base == "" {
		base = "https://www.google.com"
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	return b.ResolveReference(u).String(), nil
}

func (e *DetailEnricher) skip(l Listing, err error) {
	if e.Logger == nil {
		return
	}
	e.Logger.Debug("detail enrichment skipped",
		zap.String("name", l.Name),
		zap.Error(fmt.Errorf("%w: %w", ErrParseSkip, err)))
}
