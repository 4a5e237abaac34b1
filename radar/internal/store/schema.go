package store

import "database/sql"

// Schema is the complete degenradar item database schema.
//
// items.natural_id is the platform-native unique identifier; the PRIMARY KEY
// constraint is the concurrency-safety mechanism for idempotent upserts:
// duplicate inserts from retrying adapters are rejected by the database, no
// application-level locking needed.
const Schema = `
-- Harvested content items
CREATE TABLE IF NOT EXISTS items (
    natural_id       TEXT PRIMARY KEY,
    body             TEXT NOT NULL,
    author_handle    TEXT NOT NULL DEFAULT '',
    author_followers INTEGER NOT NULL DEFAULT 0,
    author_verified  INTEGER NOT NULL DEFAULT 0,
    likes            INTEGER NOT NULL DEFAULT 0,
    shares           INTEGER NOT NULL DEFAULT 0,
    replies          INTEGER NOT NULL DEFAULT 0,
    views            INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    source_name      TEXT NOT NULL,
    collected_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source_name, collected_at DESC);
CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at DESC);

-- Crawl cycle log (observability)
CREATE TABLE IF NOT EXISTS fetch_log (
    id            TEXT PRIMARY KEY,
    source_name   TEXT NOT NULL,
    status        TEXT NOT NULL,
    items         INTEGER NOT NULL DEFAULT 0,
    inserted      INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    fetched_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_log_source ON fetch_log(source_name, fetched_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
