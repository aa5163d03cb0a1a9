package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	GatewayBaseURL string
	GatewayWSURL   string
	GatewayAPIKey  string

	RedisURL    string
	DatabaseURL string

	EgressMode       string // http | ws | auto
	EnforceDeadlines bool
	SoundOverrideDir string

	MaxConcurrentBattles int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		EgressMode:           "auto",
		MaxConcurrentBattles: 500,
	}

	cfg.GatewayBaseURL = strings.TrimSpace(os.Getenv("GATEWAY_BASE_URL"))
	cfg.GatewayWSURL = strings.TrimSpace(os.Getenv("GATEWAY_WS_URL"))
	cfg.GatewayAPIKey = strings.TrimSpace(os.Getenv("GATEWAY_API_KEY"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if v := strings.TrimSpace(os.Getenv("EGRESS_MODE")); v != "" {
		switch strings.ToLower(v) {
		case "http", "ws", "auto":
			cfg.EgressMode = strings.ToLower(v)
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENFORCE_DEADLINES")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.EnforceDeadlines = b
		}
	}
	cfg.SoundOverrideDir = strings.TrimSpace(os.Getenv("SOUND_OVERRIDE_DIR"))
	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_BATTLES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentBattles = n
		}
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.GatewayBaseURL == "" {
		return nil, errors.New("GATEWAY_BASE_URL is required")
	}
	if cfg.GatewayWSURL == "" {
		return nil, errors.New("GATEWAY_WS_URL is required")
	}

	return cfg, nil
}
