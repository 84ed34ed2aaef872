package repository

// Schema definitions for the ruling table.
// Compatible with both SQLite and PostgreSQL.

const schemaRulingRules = `
CREATE TABLE IF NOT EXISTS ruling_rules (
    id TEXT PRIMARY KEY,
    compound_pattern TEXT NOT NULL,
    match_type TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    ruling_default TEXT NOT NULL,
    ruling_hanafi TEXT,
    ruling_shafii TEXT,
    ruling_maliki TEXT,
    ruling_hanbali TEXT,
    confidence REAL NOT NULL DEFAULT 1.0,
    explanation TEXT NOT NULL DEFAULT '',
    overrides_keyword TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ruling_rules_active ON ruling_rules(is_active, priority);
CREATE INDEX IF NOT EXISTS idx_ruling_rules_pattern ON ruling_rules(compound_pattern);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaRulingRules,
	}
}
