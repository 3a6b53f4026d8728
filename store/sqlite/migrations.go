package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the convene store (SQLite).
var Migrations = migrate.NewGroup("convene")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_convene_sources",
			Version: "20250701000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS convene_sources (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    kind                TEXT NOT NULL DEFAULT 'api',
    provider            TEXT NOT NULL DEFAULT '',
    base_url            TEXT NOT NULL DEFAULT '',
    credential          TEXT NOT NULL DEFAULT '',
    sync_frequency      INTEGER NOT NULL DEFAULT 60,
    rate_limit_per_hour INTEGER NOT NULL DEFAULT 0,
    active              INTEGER NOT NULL DEFAULT 1,
    webhook_secret      TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'active',
    last_sync_at        TEXT,
    error_count         INTEGER NOT NULL DEFAULT 0,
    config              TEXT NOT NULL DEFAULT '{}',
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_convene_sources_provider ON convene_sources (provider, active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS convene_sources`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_convene_locations",
			Version: "20250701000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS convene_locations (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL DEFAULT '',
    address      TEXT NOT NULL DEFAULT '',
    city         TEXT NOT NULL DEFAULT '',
    state        TEXT NOT NULL DEFAULT '',
    country      TEXT NOT NULL DEFAULT '',
    postal_code  TEXT NOT NULL DEFAULT '',
    latitude     REAL,
    longitude    REAL,
    timezone     TEXT NOT NULL DEFAULT '',
    venue_type   TEXT NOT NULL DEFAULT 'venue',
    provider_ids TEXT NOT NULL DEFAULT '{}',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_convene_locations_name ON convene_locations (name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_convene_locations_coords ON convene_locations (latitude, longitude);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS convene_locations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_convene_events",
			Version: "20250701000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS convene_events (
    id            TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL,
    external_id   TEXT NOT NULL,
    title         TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    start_date    TEXT NOT NULL,
    end_date      TEXT,
    venue         TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    location_id   TEXT NOT NULL DEFAULT '',
    latitude      REAL,
    longitude     REAL,
    category      TEXT NOT NULL DEFAULT '',
    confidence    REAL NOT NULL DEFAULT 0,
    duplicate_ids TEXT NOT NULL DEFAULT '',
    features      TEXT NOT NULL DEFAULT '',
    raw_payload   TEXT NOT NULL DEFAULT '',
    content_hash  TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_convene_events_external ON convene_events (source_id, external_id);
CREATE INDEX IF NOT EXISTS idx_convene_events_start ON convene_events (start_date);
CREATE INDEX IF NOT EXISTS idx_convene_events_coords ON convene_events (latitude, longitude);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS convene_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_convene_duplicate_links",
			Version: "20250701000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS convene_duplicate_links (
    id              TEXT PRIMARY KEY,
    event_id        TEXT NOT NULL,
    duplicate_of_id TEXT NOT NULL,
    score           REAL NOT NULL DEFAULT 0,
    breakdown       TEXT NOT NULL DEFAULT '{}',
    method          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'detected',
    resolved_at     TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_convene_links_pair ON convene_duplicate_links (min(event_id, duplicate_of_id), max(event_id, duplicate_of_id));
CREATE INDEX IF NOT EXISTS idx_convene_links_status ON convene_duplicate_links (status, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS convene_duplicate_links`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_convene_sync_jobs",
			Version: "20250701000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS convene_sync_jobs (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL DEFAULT '',
    type         TEXT NOT NULL DEFAULT 'incremental',
    status       TEXT NOT NULL DEFAULT 'running',
    started_at   TEXT NOT NULL DEFAULT (datetime('now')),
    completed_at TEXT,
    processed    INTEGER NOT NULL DEFAULT 0,
    created      INTEGER NOT NULL DEFAULT 0,
    updated      INTEGER NOT NULL DEFAULT 0,
    failed       INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_convene_jobs_source ON convene_sync_jobs (source_id, started_at);
CREATE INDEX IF NOT EXISTS idx_convene_jobs_status ON convene_sync_jobs (status, started_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS convene_sync_jobs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_convene_webhook_records",
			Version: "20250701000006",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS convene_webhook_records (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL,
    event_type   TEXT NOT NULL DEFAULT '',
    payload      BLOB,
    signature    TEXT NOT NULL DEFAULT '',
    processed    INTEGER NOT NULL DEFAULT 0,
    processed_at TEXT,
    error        TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_convene_records_source ON convene_webhook_records (source_id);
CREATE INDEX IF NOT EXISTS idx_convene_records_created ON convene_webhook_records (created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS convene_webhook_records`)
				return err
			},
		},
	)
}
