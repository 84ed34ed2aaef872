// Package domain defines the core interfaces and types for halalscan.
package domain

import (
	"context"
	"time"
)

// RuleStore persists the ruling table. The ruling engine only reads from it;
// writes come from the admin API and seed imports.
type RuleStore interface {
	// SaveRule inserts or updates a rule keyed by ID.
	SaveRule(ctx context.Context, rule *RulingRule) error
	GetRule(ctx context.Context, ruleID string) (*RulingRule, error)

	// ListRules returns every rule, active or not.
	ListRules(ctx context.Context) ([]*RulingRule, error)

	// ListActiveRules returns active rules ordered by priority desc, id asc.
	ListActiveRules(ctx context.Context) ([]RulingRule, error)

	// SetRuleActive toggles a rule without deleting it.
	SetRuleActive(ctx context.Context, ruleID string, active bool) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for rule store initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// SQLite specific
	SQLitePath string `yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `yaml:"postgres_host"`
	PostgresPort     int    `yaml:"postgres_port"`
	PostgresUser     string `yaml:"postgres_user"`
	PostgresPassword string `yaml:"postgres_password"`
	PostgresDB       string `yaml:"postgres_db"`
	PostgresSSLMode  string `yaml:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}
