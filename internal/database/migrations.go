package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "roster schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS athletes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name TEXT UNIQUE NOT NULL,
    sport TEXT,
    skill_level TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    tags TEXT,
    engagement_rate REAL,
    follower_tier TEXT,
    valuation_tier TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS athlete_social_profiles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    athlete_id INTEGER NOT NULL REFERENCES athletes(id) ON DELETE CASCADE,
    platform TEXT NOT NULL,
    handle TEXT,
    followers INTEGER NOT NULL DEFAULT 0 CHECK(followers >= 0),
    engagement_rate REAL CHECK(engagement_rate IS NULL OR (engagement_rate >= 0 AND engagement_rate <= 100)),
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE(athlete_id, platform)
);

CREATE TABLE IF NOT EXISTS brands (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    category TEXT,
    status TEXT NOT NULL DEFAULT 'new',
    budget_tier TEXT,
    signal_platforms TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS brand_signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    brand_id INTEGER NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
    athlete_id INTEGER REFERENCES athletes(id) ON DELETE SET NULL,
    source TEXT NOT NULL,
    detected_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS brand_watchlist (
    brand_id INTEGER PRIMARY KEY REFERENCES brands(id) ON DELETE CASCADE,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS deals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    athlete_id INTEGER NOT NULL REFERENCES athletes(id) ON DELETE CASCADE,
    brand_id INTEGER NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
    status TEXT NOT NULL DEFAULT 'pending',
    exclusivity INTEGER NOT NULL DEFAULT 0,
    deal_value REAL,
    sport TEXT,
    platform TEXT,
    content_type TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_athletes_status ON athletes(status);
CREATE INDEX IF NOT EXISTS idx_brand_signals_detected ON brand_signals(detected_at);
CREATE INDEX IF NOT EXISTS idx_deals_athlete_status ON deals(athlete_id, status);
CREATE INDEX IF NOT EXISTS idx_deals_created ON deals(created_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "market intelligence tables",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS matches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    athlete_id INTEGER NOT NULL REFERENCES athletes(id) ON DELETE CASCADE,
    brand_id INTEGER NOT NULL REFERENCES brands(id) ON DELETE CASCADE,
    match_score REAL NOT NULL CHECK(match_score >= 0 AND match_score <= 1),
    score_breakdown TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'new',
    expires_at TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE(athlete_id, brand_id)
);

CREATE TABLE IF NOT EXISTS rate_cards (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sport TEXT NOT NULL,
    platform TEXT NOT NULL,
    content_type TEXT NOT NULL,
    follower_tier TEXT NOT NULL,
    engagement_tier TEXT NOT NULL,
    rate_low REAL NOT NULL,
    rate_median REAL NOT NULL,
    rate_high REAL NOT NULL,
    sample_size INTEGER NOT NULL CHECK(sample_size >= 3),
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE(sport, platform, content_type, follower_tier, engagement_tier)
);

CREATE TABLE IF NOT EXISTS deal_intel (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source_type TEXT NOT NULL,
    source_url TEXT UNIQUE NOT NULL,
    source_title TEXT,
    source_snippet TEXT,
    fingerprint TEXT UNIQUE NOT NULL,
    brand_name TEXT,
    athlete_name TEXT,
    amount_low REAL,
    amount_high REAL,
    sport TEXT,
    platform TEXT,
    content_type TEXT,
    extraction_confidence REAL NOT NULL DEFAULT 0,
    reviewed INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS scrape_runs (
    id TEXT PRIMARY KEY,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    completed_at TEXT,
    queries TEXT,
    records_found INTEGER DEFAULT 0,
    records_ingested INTEGER DEFAULT 0,
    duplicates_skipped INTEGER DEFAULT 0,
    errors TEXT
);

CREATE TABLE IF NOT EXISTS athlete_valuations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    athlete_id INTEGER NOT NULL REFERENCES athletes(id) ON DELETE CASCADE,
    as_of TEXT NOT NULL,
    annual_low INTEGER NOT NULL,
    annual_high INTEGER NOT NULL,
    follower_tier TEXT NOT NULL,
    percentile INTEGER NOT NULL CHECK(percentile >= 1 AND percentile <= 99),
    confidence INTEGER NOT NULL CHECK(confidence >= 0 AND confidence <= 100),
    comparable_count INTEGER NOT NULL DEFAULT 0,
    valuation_data TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(athlete_id, as_of)
);

CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
CREATE INDEX IF NOT EXISTS idx_rate_cards_sport ON rate_cards(sport);
CREATE INDEX IF NOT EXISTS idx_deal_intel_created ON deal_intel(created_at);
CREATE INDEX IF NOT EXISTS idx_deal_intel_sport ON deal_intel(sport);
CREATE INDEX IF NOT EXISTS idx_valuations_athlete ON athlete_valuations(athlete_id, as_of);
`)
			return err
		},
	},
	{
		Version:     3,
		Description: "daily digests",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS digests (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    digest_date TEXT UNIQUE NOT NULL,
    tldr TEXT NOT NULL,
    body_markdown TEXT NOT NULL,
    top_matches INTEGER NOT NULL DEFAULT 0,
    deal_intel INTEGER NOT NULL DEFAULT 0,
    recent_deals INTEGER NOT NULL DEFAULT 0,
    generated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
			return err
		},
	},
	{
		Version:     4,
		Description: "brand signal ingestion",
		Up: func(tx *sql.Tx) error {
			for _, col := range []struct{ name, def string }{
				{"source_url", "TEXT"},
				{"raw_data", "TEXT"},
				{"signal_fingerprint", "TEXT"},
			} {
				if err := addColumn(tx, "brand_signals", col.name, col.def); err != nil {
					return err
				}
			}
			_, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_brand_signals_fingerprint ON brand_signals(signal_fingerprint);
CREATE INDEX IF NOT EXISTS idx_brand_signals_detected ON brand_signals(detected_at);
`)
			return err
		},
	},
}

// addColumn adds a column unless the table already has it, so the step can
// re-run after a crash before user_version was bumped.
func addColumn(tx *sql.Tx, table, column, def string) error {
	var n int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	_, err := tx.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + def)
	return err
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
