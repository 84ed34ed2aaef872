// Package repository provides rule store implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/halalscan/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.RuleStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new rule store based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const ruleColumns = `
	id, compound_pattern, match_type, priority, ruling_default,
	ruling_hanafi, ruling_shafii, ruling_maliki, ruling_hanbali,
	confidence, explanation, overrides_keyword, is_active, created_at, updated_at
`

// SaveRule inserts or updates a rule keyed by ID. The creation time of an
// existing rule is preserved.
func (r *SQLRepository) SaveRule(ctx context.Context, rule *domain.RulingRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO ruling_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			compound_pattern = excluded.compound_pattern,
			match_type = excluded.match_type,
			priority = excluded.priority,
			ruling_default = excluded.ruling_default,
			ruling_hanafi = excluded.ruling_hanafi,
			ruling_shafii = excluded.ruling_shafii,
			ruling_maliki = excluded.ruling_maliki,
			ruling_hanbali = excluded.ruling_hanbali,
			confidence = excluded.confidence,
			explanation = excluded.explanation,
			overrides_keyword = excluded.overrides_keyword,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.CompoundPattern, string(rule.MatchType), rule.Priority, string(rule.RulingDefault),
		nullRuling(rule.RulingHanafi), nullRuling(rule.RulingShafii),
		nullRuling(rule.RulingMaliki), nullRuling(rule.RulingHanbali),
		rule.Confidence, rule.Explanation, nullString(rule.OverridesKeyword),
		boolInt(rule.IsActive), rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", rule.ID, err)
	}
	return nil
}

// GetRule retrieves a rule by ID, active or not.
func (r *SQLRepository) GetRule(ctx context.Context, ruleID string) (*domain.RulingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM ruling_rules WHERE id = ?`

	rule, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// ListRules returns every rule ordered by priority desc, id asc.
func (r *SQLRepository) ListRules(ctx context.Context) ([]*domain.RulingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM ruling_rules ORDER BY priority DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]*domain.RulingRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListActiveRules returns active rules ordered by priority desc, id asc.
func (r *SQLRepository) ListActiveRules(ctx context.Context) ([]domain.RulingRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM ruling_rules WHERE is_active = 1 ORDER BY priority DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.RulingRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// SetRuleActive toggles a rule without deleting it.
func (r *SQLRepository) SetRuleActive(ctx context.Context, ruleID string, active bool) error {
	query := `
		UPDATE ruling_rules
		SET is_active = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), boolInt(active), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*domain.RulingRule, error) {
	var rule domain.RulingRule
	var matchType, rulingDefault string
	var hanafi, shafii, maliki, hanbali, overrides sql.NullString
	var active int

	if err := row.Scan(
		&rule.ID, &rule.CompoundPattern, &matchType, &rule.Priority, &rulingDefault,
		&hanafi, &shafii, &maliki, &hanbali,
		&rule.Confidence, &rule.Explanation, &overrides, &active,
		&rule.CreatedAt, &rule.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.MatchType = domain.MatchType(matchType)
	rule.RulingDefault = domain.Ruling(rulingDefault)
	rule.RulingHanafi = rulingFrom(hanafi)
	rule.RulingShafii = rulingFrom(shafii)
	rule.RulingMaliki = rulingFrom(maliki)
	rule.RulingHanbali = rulingFrom(hanbali)
	rule.OverridesKeyword = overrides.String
	rule.IsActive = active == 1

	return &rule, nil
}

func nullRuling(r *domain.Ruling) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}

func rulingFrom(s sql.NullString) *domain.Ruling {
	if !s.Valid || s.String == "" {
		return nil
	}
	return domain.RulingPtr(domain.Ruling(s.String))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
