package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/david/lead-finder/internal/geocode"
	"github.com/david/lead-finder/internal/ingest"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// LeadRunner executes one lead search.
type LeadRunner interface {
	Run(ctx context.Context, req ingest.SearchRequest, progress ingest.ProgressReporter) ([]ingest.Lead, error)
}

// SiteVetter scores a single website.
type SiteVetter interface {
	AnalyzeSite(ctx context.Context, url string) ingest.VettingResult
}

type Server struct {
	Echo     *echo.Echo
	Runner   LeadRunner
	Vetter   SiteVetter
	Geocoder geocode.Geocoder
	Logger   *zap.Logger
}

// NewServer builds the HTTP API. gatherer backs /metrics; nil means the default registry.
func NewServer(runner LeadRunner, vetter SiteVetter, geocoder geocode.Geocoder, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorEnvelope(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(allowAnyOrigin)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s := &Server{
		Echo:     e,
		Runner:   runner,
		Vetter:   vetter,
		Geocoder: geocoder,
		Logger:   logger,
	}
	s.routes(gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.Echo.Group("/api")
	api.POST("/scrape", s.handleScrape)
	api.POST("/vet", s.handleVet)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

// scrapeRequest mirrors the public JSON body. Pointer fields distinguish
// "absent" from zero so defaults apply only to missing keys.
type scrapeRequest struct {
	Keyword          string   `json:"keyword"`
	Location         string   `json:"location"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	ZoomLevel        *int     `json:"zoom_level"`
	RadiusKm         *int     `json:"radius_km"`
	MaxResults       *int     `json:"max_results"`
	ReviewsThreshold *int     `json:"reviews_threshold"`
	VettingThreshold *int     `json:"vetting_threshold"`
	UseScraperAPI    bool     `json:"use_scraper_api"`
}

func (r scrapeRequest) toSearch() ingest.SearchRequest {
	req := ingest.DefaultSearchRequest(strings.TrimSpace(r.Keyword), strings.TrimSpace(r.Location))
	if r.Latitude != nil {
		req.Latitude = *r.Latitude
	}
	if r.Longitude != nil {
		req.Longitude = *r.Longitude
	}
	// an explicit zoom_level wins over radius_km
	if r.RadiusKm != nil {
		req.ZoomLevel = ingest.ZoomForRadiusKm(*r.RadiusKm)
	}
	if r.ZoomLevel != nil {
		req.ZoomLevel = *r.ZoomLevel
	}
	if r.MaxResults != nil {
		req.MaxResults = *r.MaxResults
	}
	if r.ReviewsThreshold != nil {
		req.ReviewsThreshold = *r.ReviewsThreshold
	}
	if r.VettingThreshold != nil {
		req.VettingThreshold = *r.VettingThreshold
	}
	req.UseRelay = r.UseScraperAPI
	return req
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScrape(c echo.Context) error {
	var body scrapeRequest
	if err := decodeBody(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid JSON body")
	}
	req := body.toSearch()
	ctx := c.Request().Context()

	if req.Latitude == 0 && req.Longitude == 0 && req.Location != "" && s.Geocoder != nil {
		loc, err := s.Geocoder.Geocode(ctx, req.Location)
		if errors.Is(err, geocode.ErrNotFound) {
			return fail(c, http.StatusNotFound, "Location not found: "+req.Location)
		}
		if err != nil {
			return err
		}
		req.Latitude, req.Longitude = loc.Latitude, loc.Longitude
	}

	leads, err := s.Runner.Run(ctx, req, ingest.NopProgress{})
	if errors.Is(err, ingest.ErrInvalidRequest) {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return err
	}
	if leads == nil {
		leads = []ingest.Lead{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"data":    leads,
	})
}

func (s *Server) handleVet(c echo.Context) error {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(c, &body); err != nil {
		return fail(c, http.StatusBadRequest, "invalid JSON body")
	}
	url := strings.TrimSpace(body.URL)
	if url == "" {
		return fail(c, http.StatusBadRequest, "URL is required")
	}

	res := s.Vetter.AnalyzeSite(c.Request().Context(), url)
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"score":   res.Score,
		"details": res.MarkerSummary(),
		"budget":  res.Tier,
	})
}

// decodeBody reads the request body as JSON whatever Content-Type the
// client sent. An empty body decodes to the zero value.
func decodeBody(c echo.Context, v any) error {
	err := json.NewDecoder(c.Request().Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{"success": false, "error": msg})
}

// allowAnyOrigin stamps the permissive CORS header on every response,
// including those to requests without an Origin header.
func allowAnyOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
		return next(c)
	}
}

// errorEnvelope renders handler errors and recovered panics as a JSON envelope.
func errorEnvelope(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request error", zap.String("uri", c.Request().RequestURI), zap.Error(err))
		}

		c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = fail(c, status, msg)
		}
		if writeErr != nil {
			logger.Error("failed to write error response", zap.Error(writeErr))
		}
	}
}
