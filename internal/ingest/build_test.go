package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/david/lead-finder/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SelectsBackend(t *testing.T) {
	cfg := config.Default()

	p, err := Build(cfg, prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPFetcher{}, p.Fetcher)
	assert.NotNil(t, p.Metrics)
	assert.Same(t, p.Metrics, p.Vetter.Metrics)
	assert.Nil(t, p.Places, "places fallback stays off without a key")

	cfg.Fetch.Backend = "colly"
	cfg.Places.APIKey = "k"
	p, err = Build(cfg, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &CollyFetcher{}, p.Fetcher)
	assert.Nil(t, p.Metrics)
	assert.True(t, p.Places.Enabled())

	cfg.Fetch.Backend = "chrome"
	_, err = Build(cfg, nil, nil)
	assert.Error(t, err)
}

func TestBuild_CustomMarkersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.yaml")
	content := `
categories:
  - name: crm
    label: CRM Detected
    delta: 25
    counted: true
    patterns: ["salesforce"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := config.Default()
	cfg.MarkersFile = path
	p, err := Build(cfg, nil, nil)
	require.NoError(t, err)

	res := p.Vetter.ScoreHTML("Powered by Salesforce")
	assert.Equal(t, 25, res.Score)
	assert.Equal(t, []string{"CRM Detected (1)"}, res.Details)

	cfg.MarkersFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Build(cfg, nil, nil)
	assert.Error(t, err)
}
