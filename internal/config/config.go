package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultRelayBaseURL  = "http://api.scraperapi.com"
	DefaultPlacesBaseURL = "https://maps.googleapis.com/maps/api/place"
	DefaultNominatimURL  = "https://nominatim.openstreetmap.org/search"
	DefaultMapsBaseURL   = "https://www.google.com"
)

// Config is the full runtime configuration for the server and the CLI tools.
type Config struct {
	Server      ServerConfig   `yaml:"server"`
	Log         LogConfig      `yaml:"log"`
	Fetch       FetchConfig    `yaml:"fetch"`
	Relay       RelayConfig    `yaml:"relay"`
	Places      PlacesConfig   `yaml:"places"`
	Geocoder    GeocoderConfig `yaml:"geocoder"`
	Pipeline    PipelineConfig `yaml:"pipeline"`
	UserAgent   string         `yaml:"user_agent,omitempty"`
	MarkersFile string         `yaml:"markers_file,omitempty"` // overrides the embedded marker tables
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// FetchConfig defines HTTP fetching behaviour for listing, detail and vetting fetches.
type FetchConfig struct {
	Backend              string  `yaml:"backend"`                // "http" or "colly"
	TimeoutSeconds       int     `yaml:"timeout_seconds"`        // listing/detail fetches, default 30
	VetTimeoutSeconds    int     `yaml:"vet_timeout_seconds"`    // vetting fetches, default 10
	MaxRetries           int     `yaml:"max_retries"`            // total attempts, default 3
	RetryMinDelayMs      int     `yaml:"retry_min_delay_ms"`     // default 2000
	RetryMaxDelayMs      int     `yaml:"retry_max_delay_ms"`     // default 5000
	RateLimitRPS         float64 `yaml:"rate_limit_rps"`         // per host, 0 = unlimited
	RateLimitBurst       int     `yaml:"rate_limit_burst"`       // default 1
	BlockPrivateNetworks bool    `yaml:"block_private_networks"` // reject loopback/private targets
	AcceptLanguage       string  `yaml:"accept_language"`        // e.g. "en-US,en;q=0.5"
}

// RelayConfig configures the third-party rendering relay.
type RelayConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key,omitempty"`
	Render  bool   `yaml:"render"`
}

// PlacesConfig configures the structured places fallback.
type PlacesConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key,omitempty"`
	RadiusMeters   int    `yaml:"radius_meters"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type GeocoderConfig struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	Email     string `yaml:"email,omitempty"`
}

type PipelineConfig struct {
	MapsBaseURL         string `yaml:"maps_base_url"`
	Concurrency         int    `yaml:"concurrency"`
	RunTimeoutSeconds   int    `yaml:"run_timeout_seconds"`
	DisableInlineScript bool   `yaml:"disable_inline_script"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: "8081"},
		Log:    LogConfig{Level: "info", Format: "console"},
		Fetch: FetchConfig{
			Backend:              "http",
			TimeoutSeconds:       30,
			VetTimeoutSeconds:    10,
			MaxRetries:           3,
			RetryMinDelayMs:      2000,
			RetryMaxDelayMs:      5000,
			RateLimitBurst:       1,
			BlockPrivateNetworks: true,
			AcceptLanguage:       "en-US,en;q=0.5",
		},
		Relay: RelayConfig{BaseURL: DefaultRelayBaseURL, Render: true},
		Places: PlacesConfig{
			BaseURL:        DefaultPlacesBaseURL,
			RadiusMeters:   5000,
			TimeoutSeconds: 10,
		},
		Geocoder: GeocoderConfig{
			BaseURL:   DefaultNominatimURL,
			UserAgent: "lead-finder/1.0",
		},
		Pipeline: PipelineConfig{
			MapsBaseURL:       DefaultMapsBaseURL,
			Concurrency:       1,
			RunTimeoutSeconds: 300,
		},
		UserAgent: DefaultUserAgent,
	}
}

// Load reads a YAML config file on top of the defaults, expanding ${VAR}
// references, then applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Server.Port = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_FORMAT")); v != "" {
		cfg.Log.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("SCRAPER_API_KEY")); v != "" {
		cfg.Relay.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_MAPS_API_KEY")); v != "" {
		cfg.Places.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADS_USER_AGENT")); v != "" {
		cfg.UserAgent = v
	}
	if v := strings.TrimSpace(os.Getenv("LEADS_CONCURRENCY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Concurrency = n
		}
	}
}

// Validate rejects values the pipeline cannot work with.
func (c Config) Validate() error {
	if c.Fetch.Backend != "http" && c.Fetch.Backend != "colly" {
		return fmt.Errorf("fetch.backend must be \"http\" or \"colly\", got %q", c.Fetch.Backend)
	}
	if c.Fetch.MaxRetries < 1 {
		return fmt.Errorf("fetch.max_retries must be >= 1")
	}
	if c.Fetch.TimeoutSeconds <= 0 || c.Fetch.VetTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeouts must be > 0")
	}
	if c.Fetch.RetryMinDelayMs < 0 || c.Fetch.RetryMaxDelayMs < c.Fetch.RetryMinDelayMs {
		return fmt.Errorf("fetch retry delay window is invalid (%d..%d ms)", c.Fetch.RetryMinDelayMs, c.Fetch.RetryMaxDelayMs)
	}
	if c.Fetch.RateLimitRPS < 0 {
		return fmt.Errorf("fetch.rate_limit_rps must be >= 0")
	}
	if c.Pipeline.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be >= 1")
	}
	if c.Places.RadiusMeters <= 0 {
		return fmt.Errorf("places.radius_meters must be > 0")
	}
	return nil
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f FetchConfig) VetTimeout() time.Duration {
	return time.Duration(f.VetTimeoutSeconds) * time.Second
}

func (f FetchConfig) RetryMinDelay() time.Duration {
	return time.Duration(f.RetryMinDelayMs) * time.Millisecond
}

func (f FetchConfig) RetryMaxDelay() time.Duration {
	return time.Duration(f.RetryMaxDelayMs) * time.Millisecond
}

func (p PipelineConfig) RunTimeout() time.Duration {
	return time.Duration(p.RunTimeoutSeconds) * time.Second
}
