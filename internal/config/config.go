package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig is the environment-driven configuration of the relay process.
type AppConfig struct {
	ListenAddr string

	OraclePath    string
	OracleTimeout time.Duration

	Ruleset   string
	LayoutDir string

	// Store selection: DatabaseURL wins over RedisURL; neither set means
	// the in-memory store.
	RedisURL    string
	DatabaseURL string

	ArchiveWebhookURL string

	MaxConcurrentGames int
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8124",
		OracleTimeout:      10 * time.Second,
		Ruleset:            "classic",
		MaxConcurrentGames: 200,
	}

	if v := strings.TrimSpace(os.Getenv("THUD_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.OraclePath = strings.TrimSpace(os.Getenv("ORACLE_PATH"))
	if v := strings.TrimSpace(os.Getenv("ORACLE_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.OracleTimeout = time.Duration(n) * time.Millisecond
		}
	}

	if v := strings.TrimSpace(os.Getenv("THUD_RULESET")); v != "" {
		cfg.Ruleset = v
	}
	cfg.LayoutDir = strings.TrimSpace(os.Getenv("THUD_LAYOUT_DIR"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ArchiveWebhookURL = strings.TrimSpace(os.Getenv("ARCHIVE_WEBHOOK_URL"))

	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}

	if cfg.OraclePath == "" {
		return nil, errors.New("ORACLE_PATH is required")
	}

	return cfg, nil
}
