package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bus-signage/internal/clock"
)

type Config struct {
	DatasetSource         string
	Station               string
	ListenAddr            string
	MetricsAddr           string
	NATSURL               string
	NATSSubjectPrefix     string
	BoardRefreshInterval  time.Duration
	ClockInterval         time.Duration
	DatasetReloadInterval time.Duration
	DepartureLimit        int
	TimeOffset            time.Duration
	Location              *time.Location
	LogLevel              slog.Level
	LogFormat             string
	RateLimitRPS          int
	CORSOrigins           []string
	Board                 *Board
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.DatasetSource = firstNonEmpty(os.Getenv("DATASET_SOURCE"), os.Getenv("DATABASE_URL"))
	if cfg.DatasetSource == "" {
		return nil, errors.New("DATASET_SOURCE must be set (file path, http(s) URL, postgres:// or sqlite:// DSN)")
	}
	cfg.Station = firstNonEmpty(os.Getenv("STATION"), os.Getenv("STATION_ID"))

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Empty disables board publishing.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "signage")

	var err error
	if cfg.BoardRefreshInterval, err = positiveDuration("BOARD_REFRESH_INTERVAL_SEC", time.Second, 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ClockInterval, err = positiveDuration("CLOCK_INTERVAL_MS", time.Millisecond, time.Second); err != nil {
		return nil, err
	}

	// Dataset reload interval (minutes); 0 disables reloading
	if v := os.Getenv("DATASET_RELOAD_INTERVAL_MIN"); v != "" {
		min, err := strconv.Atoi(v)
		if err != nil || min < 0 {
			return nil, fmt.Errorf("invalid DATASET_RELOAD_INTERVAL_MIN: %q", v)
		}
		cfg.DatasetReloadInterval = time.Duration(min) * time.Minute
	}

	cfg.DepartureLimit = 5
	if v := os.Getenv("DEPARTURE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid DEPARTURE_LIMIT: %q", v)
		}
		cfg.DepartureLimit = n
	}

	// Debug offset applied to the board clock; non-numeric means none
	cfg.TimeOffset = clock.ParseOffsetMinutes(os.Getenv("TIME_OFFSET_MINUTES"))

	cfg.RateLimitRPS = 20
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %q", v)
		}
		cfg.RateLimitRPS = n
	}

	cfg.CORSOrigins = splitList(getenvDefault("CORS_ORIGINS", "*"))

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if cfg.LogLevel, err = parseLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return nil, err
	}
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	if path := os.Getenv("BOARD_CONFIG"); path != "" {
		b, err := LoadBoard(path)
		if err != nil {
			return nil, err
		}
		cfg.Board = b
	}

	return cfg, nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func positiveDuration(key string, unit, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func parseLevel(v string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL: %q", v)
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
