// Package config assembles the runtime configuration from tier defaults,
// an optional YAML file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/halalscan/internal/domain"
)

// Environment variables read by Load.
const (
	EnvConfigFile = "HALALSCAN_CONFIG"
	EnvTier       = "HALALSCAN_TIER"
	EnvDebug      = "HALALSCAN_DEBUG"
	EnvDBPath     = "HALALSCAN_DB_PATH"
	EnvRedisAddr  = "HALALSCAN_REDIS_ADDR"
	EnvNATSURL    = "HALALSCAN_NATS_URL"
	EnvPort       = "HALALSCAN_PORT"
	EnvSeedFile   = "HALALSCAN_SEED_FILE"
)

// Load builds the configuration. path overrides HALALSCAN_CONFIG; when both
// are empty only tier defaults and environment overrides apply.
func Load(path string) (*domain.Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	tier, err := selectTier(data)
	if err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	if tier == domain.TierPro {
		cfg = domain.ProConfig()
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.Tier = tier

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectTier takes the tier from the environment, then the file.
func selectTier(data []byte) (domain.Tier, error) {
	tier := domain.Tier(os.Getenv(EnvTier))
	if tier == "" && len(data) > 0 {
		var head struct {
			Tier domain.Tier `yaml:"tier"`
		}
		if err := yaml.Unmarshal(data, &head); err != nil {
			return "", fmt.Errorf("failed to parse config file: %w", err)
		}
		tier = head.Tier
	}

	switch tier {
	case "", domain.TierCommunity:
		return domain.TierCommunity, nil
	case domain.TierPro:
		return domain.TierPro, nil
	default:
		return "", fmt.Errorf("unknown tier %q", tier)
	}
}

func applyEnv(cfg *domain.Config) error {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv(EnvSeedFile); v != "" {
		cfg.Rules.SeedFile = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if os.Getenv(EnvDebug) == "true" {
		cfg.Logging.Level = "debug"
	}
	return nil
}

// Validate rejects configurations the services cannot start with.
func Validate(cfg *domain.Config) error {
	var errs []error
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", cfg.Server.Port))
	}
	if cfg.Rules.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("rules cache_ttl must not be negative"))
	}
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", cfg.Logging.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
