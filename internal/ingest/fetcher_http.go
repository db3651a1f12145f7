package ingest

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/david/lead-finder/internal/config"
	"go.uber.org/zap"
)

var blockedPrefixStrings = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedPrefixes = func() []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(blockedPrefixStrings))
	for _, s := range blockedPrefixStrings {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

// HTTPFetcher issues GET requests with a browser header profile and a
// randomized-pause retry loop.
type HTTPFetcher struct {
	Client         *http.Client
	UserAgent      string
	AcceptLanguage string

	// MaxRetries is the total number of attempts.
	MaxRetries    int
	RetryMinDelay time.Duration
	RetryMaxDelay time.Duration

	// AcceptAnyStatus returns the body for non-2xx responses instead of failing.
	AcceptAnyStatus bool

	Limiter *HostLimiter
	Metrics *Metrics
	Logger  *zap.Logger
}

// NewHTTPFetcher builds a fetcher for listing and detail pages.
func NewHTTPFetcher(cfg config.FetchConfig, userAgent string) *HTTPFetcher {
	return newHTTPFetcher(cfg, userAgent, cfg.Timeout())
}

// NewVettingFetcher builds the single-attempt, short-timeout fetcher used to
// score websites. Like a plain browser visit it follows redirects and keeps
// whatever body the site served.
func NewVettingFetcher(cfg config.FetchConfig, userAgent string) *HTTPFetcher {
	f := newHTTPFetcher(cfg, userAgent, cfg.VetTimeout())
	f.MaxRetries = 1
	f.AcceptAnyStatus = true
	return f
}

func newHTTPFetcher(cfg config.FetchConfig, userAgent string, timeout time.Duration) *HTTPFetcher {
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	acceptLanguage := cfg.AcceptLanguage
	if acceptLanguage == "" {
		acceptLanguage = "en-US,en;q=0.5"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	if cfg.BlockPrivateNetworks {
		transport.DialContext = safeDialContext
		client.CheckRedirect = safeCheckRedirect
	}

	var limiter *HostLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = NewHostLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}

	return &HTTPFetcher{
		Client:         client,
		UserAgent:      userAgent,
		AcceptLanguage: acceptLanguage,
		MaxRetries:     maxRetries,
		RetryMinDelay:  cfg.RetryMinDelay(),
		RetryMaxDelay:  cfg.RetryMaxDelay(),
		Limiter:        limiter,
	}
}

// Fetch implements the Fetcher interface. On exhaustion the last *FetchError is returned.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedDocument, error) {
	log := f.logger()
	attempts := f.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr *FetchError
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := f.pause(ctx); err != nil {
				return nil, &FetchError{URL: rawURL, Attempts: attempt - 1, Err: err}
			}
		}

		if f.Limiter != nil {
			if err := f.Limiter.WaitURL(ctx, rawURL); err != nil {
				return nil, &FetchError{URL: rawURL, Attempts: attempt - 1, Err: err}
			}
		}

		doc, err := f.do(ctx, rawURL)
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
		log.Debug("fetch attempt failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (*FetchedDocument, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	setBrowserHeaders(req.Header, f.UserAgent, f.AcceptLanguage)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: fmt.Errorf("failed to execute request: %w", err)}
	}

	if !f.AcceptAnyStatus && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	return &FetchedDocument{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Body,
		FetchedAt:   time.Now(),
		Headers:     resp.Header,
	}, nil
}

// pause sleeps a random duration in [RetryMinDelay, RetryMaxDelay).
func (f *HTTPFetcher) pause(ctx context.Context) error {
	d := f.RetryMinDelay
	if span := f.RetryMaxDelay - f.RetryMinDelay; span > 0 {
		d += rand.N(span)
	}
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f *HTTPFetcher) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}

func setBrowserHeaders(h http.Header, userAgent, acceptLanguage string) {
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", acceptLanguage)
	h.Set("Connection", "keep-alive")
	h.Set("Cache-Control", "no-cache")
	h.Set("Upgrade-Insecure-Requests", "1")
}

// FetchText fetches url through f and returns the whole body as a string.
func FetchText(ctx context.Context, f Fetcher, url string) (string, error) {
	doc, err := f.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if doc == nil || doc.Body == nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("empty response")}
	}
	defer doc.Body.Close()

	body, err := io.ReadAll(doc.Body)
	if err != nil {
		return "", &FetchError{URL: url, StatusCode: 0, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(body), nil
}

// safeDialContext wraps the default dialer to block private IPs
func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	return d.DialContext(ctx, network, addr)
}

// isPrivateIP checks if an IP is in a private range or loopback/link-local
func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}

	if addr, ok := netip.AddrFromSlice(ip); ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// safeCheckRedirect limits redirects and validates destinations
func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.DefaultResolver.LookupIP(req.Context(), "ip", host)
	if err != nil {
		return err
	}
	if len(ips) == 0 {
		return fmt.Errorf("redirect host resolved to no addresses")
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}

	return nil
}
