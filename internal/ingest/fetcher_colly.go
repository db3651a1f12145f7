package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/david/lead-finder/internal/config"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyFetcher implements Fetcher on top of a colly collector.
// It shares the header profile and retry policy of HTTPFetcher.
type CollyFetcher struct {
	UserAgent      string
	AcceptLanguage string
	MaxRetries     int
	RequestTimeout time.Duration
	RetryMinDelay  time.Duration
	RetryMaxDelay  time.Duration
	MaxBodySize    int // bytes, 0 = unlimited
	DetectCharset  bool
	Transport      http.RoundTripper

	Limiter *HostLimiter
	Metrics *Metrics
	Logger  *zap.Logger
}

// NewCollyFetcher creates a CollyFetcher from the fetch configuration.
func NewCollyFetcher(cfg config.FetchConfig, userAgent string) *CollyFetcher {
	base := newHTTPFetcher(cfg, userAgent, cfg.Timeout())
	f := &CollyFetcher{
		UserAgent:      base.UserAgent,
		AcceptLanguage: base.AcceptLanguage,
		MaxRetries:     base.MaxRetries,
		RequestTimeout: cfg.Timeout(),
		RetryMinDelay:  base.RetryMinDelay,
		RetryMaxDelay:  base.RetryMaxDelay,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		DetectCharset:  true,
		Limiter:        base.Limiter,
	}
	if cfg.BlockPrivateNetworks {
		f.Transport = base.Client.Transport
	}
	return f
}

// buildCollector creates a configured, synchronous colly collector.
func (f *CollyFetcher) buildCollector(ctx context.Context) *colly.Collector {
	opts := []colly.CollectorOption{
		colly.UserAgent(f.UserAgent),
		colly.MaxBodySize(f.MaxBodySize),
		colly.AllowURLRevisit(),
		// every status reaches OnResponse; visit decides what counts as success
		colly.ParseHTTPErrorResponse(),
		colly.StdlibContext(ctx),
	}
	if f.DetectCharset {
		opts = append(opts, colly.DetectCharset())
	}

	c := colly.NewCollector(opts...)
	if f.RequestTimeout > 0 {
		c.SetRequestTimeout(f.RequestTimeout)
	}
	if f.Transport != nil {
		c.WithTransport(f.Transport)
	}

	c.OnRequest(func(r *colly.Request) {
		setBrowserHeaders(*r.Headers, f.UserAgent, f.AcceptLanguage)
	})

	return c
}

// Fetch implements the Fetcher interface, returning a FetchedDocument.
func (f *CollyFetcher) Fetch(ctx context.Context, targetURL string) (*FetchedDocument, error) {
	log := f.Logger
	if log == nil {
		log = zap.NewNop()
	}
	attempts := f.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	pacer := &HTTPFetcher{RetryMinDelay: f.RetryMinDelay, RetryMaxDelay: f.RetryMaxDelay}

	var lastErr *FetchError
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := pacer.pause(ctx); err != nil {
				return nil, &FetchError{URL: targetURL, Attempts: attempt - 1, Err: err}
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: targetURL, Attempts: attempt - 1, Err: err}
		}
		if f.Limiter != nil {
			if err := f.Limiter.WaitURL(ctx, targetURL); err != nil {
				return nil, &FetchError{URL: targetURL, Attempts: attempt - 1, Err: err}
			}
		}

		doc, err := f.visit(ctx, targetURL)
		if err == nil {
			f.Metrics.fetchAttempt("ok")
			return doc, nil
		}

		err.Attempts = attempt
		lastErr = err
		if err.StatusCode != 0 {
			f.Metrics.fetchAttempt("bad_status")
		} else {
			f.Metrics.fetchAttempt("error")
		}
		log.Debug("colly fetch attempt failed",
			zap.String("url", targetURL),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return nil, lastErr
}

func (f *CollyFetcher) visit(ctx context.Context, targetURL string) (*FetchedDocument, *FetchError) {
	c := f.buildCollector(ctx)

	var result *FetchedDocument
	var status int

	c.OnResponse(func(r *colly.Response) {
		result = &FetchedDocument{
			URL:         targetURL,
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        io.NopCloser(bytes.NewReader(r.Body)),
			FetchedAt:   time.Now(),
			Headers:     map[string][]string(r.Headers.Clone()),
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(targetURL); err != nil {
		return nil, &FetchError{URL: targetURL, StatusCode: status, Err: fmt.Errorf("visit failed: %w", err)}
	}
	if result == nil {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("no response received")}
	}
	if result.StatusCode < 200 || result.StatusCode > 299 {
		return nil, &FetchError{URL: targetURL, StatusCode: result.StatusCode, Err: fmt.Errorf("unexpected status code: %d", result.StatusCode)}
	}
	return result, nil
}
