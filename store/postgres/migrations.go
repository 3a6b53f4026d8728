package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the convene store.
// It can be registered with the grove extension for orchestrated migration
// management (locking, version tracking, rollback support).
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
    sync_frequency      INT NOT NULL DEFAULT 60,
    rate_limit_per_hour INT NOT NULL DEFAULT 0,
    active              BOOLEAN NOT NULL DEFAULT TRUE,
    webhook_secret      TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'active',
    last_sync_at        TIMESTAMPTZ,
    error_count         INT NOT NULL DEFAULT 0,
    config              JSONB NOT NULL DEFAULT '{}',
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convene_sources_provider ON convene_sources (provider) WHERE active;
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
    latitude     DOUBLE PRECISION,
    longitude    DOUBLE PRECISION,
    timezone     TEXT NOT NULL DEFAULT '',
    venue_type   TEXT NOT NULL DEFAULT 'venue',
    provider_ids JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convene_locations_name_address ON convene_locations (LOWER(name), LOWER(address));
CREATE INDEX IF NOT EXISTS idx_convene_locations_name_city ON convene_locations (LOWER(name), LOWER(city));
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
    start_date    TIMESTAMPTZ NOT NULL,
    end_date      TIMESTAMPTZ,
    venue         TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    location_id   TEXT NOT NULL DEFAULT '',
    latitude      DOUBLE PRECISION,
    longitude     DOUBLE PRECISION,
    category      TEXT NOT NULL DEFAULT '',
    confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
    duplicate_ids TEXT[] NOT NULL DEFAULT '{}',
    features      JSONB,
    raw_payload   JSONB,
    content_hash  TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
    score           DOUBLE PRECISION NOT NULL DEFAULT 0,
    breakdown       JSONB NOT NULL DEFAULT '{}',
    method          TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL DEFAULT 'detected',
    resolved_at     TIMESTAMPTZ,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_convene_links_pair ON convene_duplicate_links (LEAST(event_id, duplicate_of_id), GREATEST(event_id, duplicate_of_id));
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
    status       TEXT NOT NULL DEFAULT 'pending',
    started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ,
    processed    INT NOT NULL DEFAULT 0,
    created      INT NOT NULL DEFAULT 0,
    updated      INT NOT NULL DEFAULT 0,
    failed       INT NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    metadata     JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_convene_jobs_source ON convene_sync_jobs (source_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_convene_jobs_running ON convene_sync_jobs (started_at) WHERE status = 'running';
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
    payload      BYTEA,
    signature    TEXT NOT NULL DEFAULT '',
    processed    BOOLEAN NOT NULL DEFAULT FALSE,
    processed_at TIMESTAMPTZ,
    error        TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
