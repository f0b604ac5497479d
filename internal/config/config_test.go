package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATASET_SOURCE", "DATABASE_URL", "STATION", "STATION_ID", "LISTEN_ADDR", "METRICS_ADDR",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "BOARD_REFRESH_INTERVAL_SEC", "CLOCK_INTERVAL_MS",
		"DATASET_RELOAD_INTERVAL_MIN", "DEPARTURE_LIMIT", "TIME_OFFSET_MINUTES", "TZ",
		"LOG_LEVEL", "LOG_FORMAT", "BOARD_CONFIG", "RATE_LIMIT_RPS", "CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATASET_SOURCE", "data/signage.json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/signage.json", cfg.DatasetSource)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "", cfg.MetricsAddr)
	assert.Equal(t, "", cfg.NATSURL)
	assert.Equal(t, "signage", cfg.NATSSubjectPrefix)
	assert.Equal(t, 30*time.Second, cfg.BoardRefreshInterval)
	assert.Equal(t, time.Second, cfg.ClockInterval)
	assert.Equal(t, time.Duration(0), cfg.DatasetReloadInterval)
	assert.Equal(t, 5, cfg.DepartureLimit)
	assert.Equal(t, time.Duration(0), cfg.TimeOffset)
	assert.Equal(t, time.Local, cfg.Location)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 20, cfg.RateLimitRPS)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Nil(t, cfg.Board)
	assert.NotNil(t, cfg.Logger())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite://signage.db")
	t.Setenv("STATION", "central")
	t.Setenv("BOARD_REFRESH_INTERVAL_SEC", "10")
	t.Setenv("CLOCK_INTERVAL_MS", "500")
	t.Setenv("DATASET_RELOAD_INTERVAL_MIN", "15")
	t.Setenv("DEPARTURE_LIMIT", "4")
	t.Setenv("TIME_OFFSET_MINUTES", "-120")
	t.Setenv("TZ", "UTC")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite://signage.db", cfg.DatasetSource)
	assert.Equal(t, "central", cfg.Station)
	assert.Equal(t, 10*time.Second, cfg.BoardRefreshInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.ClockInterval)
	assert.Equal(t, 15*time.Minute, cfg.DatasetReloadInterval)
	assert.Equal(t, 4, cfg.DepartureLimit)
	assert.Equal(t, -2*time.Hour, cfg.TimeOffset)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 0, cfg.RateLimitRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_LenientTimeOffset(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATASET_SOURCE", "x.json")
	t.Setenv("TIME_OFFSET_MINUTES", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.TimeOffset)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"BOARD_REFRESH_INTERVAL_SEC":  "0",
		"CLOCK_INTERVAL_MS":           "fast",
		"DATASET_RELOAD_INTERVAL_MIN": "-1",
		"DEPARTURE_LIMIT":             "0",
		"RATE_LIMIT_RPS":              "-3",
		"TZ":                          "Mars/Olympus",
		"LOG_LEVEL":                   "loud",
		"LOG_FORMAT":                  "xml",
		"BOARD_CONFIG":                "/nonexistent/board.yml",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("DATASET_SOURCE", "x.json")
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}

	t.Run("missing source", func(t *testing.T) {
		clearEnv(t)
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestLoadBoard(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "board.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
platforms:
  - key: "1"
    label: 1番のりば
    label_en: Platform 1
    limit: 4
  - key: "2"
`), 0o644))
	t.Setenv("DATASET_SOURCE", "x.json")
	t.Setenv("BOARD_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg.Board)
	require.Len(t, cfg.Board.Platforms, 2)
	assert.Equal(t, PlatformConfig{Key: "1", Label: "1番のりば", LabelEn: "Platform 1", Limit: 4}, cfg.Board.Platforms[0])
	assert.Equal(t, "2", cfg.Board.Platforms[1].Key)
	assert.Equal(t, 0, cfg.Board.Platforms[1].Limit)
}

func TestParseBoard_Invalid(t *testing.T) {
	tests := map[string]string{
		"no platforms":  "platforms: []",
		"missing key":   "platforms:\n  - label: A\n",
		"limit too big": "platforms:\n  - key: \"1\"\n    limit: 500\n",
		"duplicate":     "platforms:\n  - key: \"1\"\n  - key: \"1\"\n",
		"not yaml":      "platforms: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBoard([]byte(doc))
			assert.Error(t, err)
		})
	}
}
