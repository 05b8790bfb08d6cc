// Package config loads daemon settings from the environment. Values come in
// through the process environment (a dotenv file is honored by the daemon
// entrypoint before this runs); everything has a workable default except the
// database URL.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shotlist/shotlist/analysis"
)

// Config is the daemon's runtime configuration.
type Config struct {
	Port        int
	DatabaseURL string
	AppEnv      string

	AnalysisCost      int
	PendingTimeout    time.Duration
	ProcessingTimeout time.Duration
	TestURLKeywords   []string
}

// Production reports whether the daemon runs with production logging.
func (c Config) Production() bool {
	return c.AppEnv == "production"
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:              8000,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AppEnv:            envOr("APP_ENV", "development"),
		AnalysisCost:      analysis.DefaultCost,
		PendingTimeout:    analysis.DefaultPendingTimeout,
		ProcessingTimeout: analysis.DefaultProcessingTimeout,
		TestURLKeywords:   analysis.DefaultTestKeywords,
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}

	var err error
	if cfg.Port, err = envInt("PORT", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.AnalysisCost, err = envInt("ANALYSIS_COST", cfg.AnalysisCost); err != nil {
		return cfg, err
	}
	if cfg.PendingTimeout, err = envDuration("PENDING_TIMEOUT", cfg.PendingTimeout); err != nil {
		return cfg, err
	}
	if cfg.ProcessingTimeout, err = envDuration("PROCESSING_TIMEOUT", cfg.ProcessingTimeout); err != nil {
		return cfg, err
	}

	if raw := os.Getenv("TEST_URL_KEYWORDS"); raw != "" {
		var keywords []string
		for _, keyword := range strings.Split(raw, ",") {
			if keyword = strings.TrimSpace(keyword); keyword != "" {
				keywords = append(keywords, keyword)
			}
		}
		cfg.TestURLKeywords = keywords
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}
