package storage

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS monitors (
	id                         TEXT    PRIMARY KEY,
	name                       TEXT    NOT NULL UNIQUE,
	type                       TEXT    NOT NULL,
	url                        TEXT    NOT NULL,
	method                     TEXT    NOT NULL DEFAULT 'GET',
	headers                    TEXT    NOT NULL DEFAULT '{}',
	expected_status            INTEGER NOT NULL DEFAULT 200,
	body_contains              TEXT    NOT NULL DEFAULT '',
	follow_redirects           INTEGER NOT NULL DEFAULT 1,
	dns_record_type            TEXT    NOT NULL DEFAULT '',
	dns_expected               TEXT    NOT NULL DEFAULT '',
	interval_seconds           INTEGER NOT NULL DEFAULT 600,
	timeout_ms                 INTEGER NOT NULL DEFAULT 10000,
	confirmation_threshold     INTEGER NOT NULL DEFAULT 1,
	response_time_threshold_ms INTEGER NOT NULL DEFAULT 0,
	consensus_threshold        INTEGER NOT NULL DEFAULT 0,
	is_public                  INTEGER NOT NULL DEFAULT 0,
	is_paused                  INTEGER NOT NULL DEFAULT 0,
	tags                       TEXT    NOT NULL DEFAULT '',
	group_name                 TEXT    NOT NULL DEFAULT '',
	sla_target                 REAL    NOT NULL DEFAULT 99.9,
	sla_period_days            INTEGER NOT NULL DEFAULT 30,
	manage_key_hash            TEXT    NOT NULL,
	current_status             TEXT    NOT NULL DEFAULT 'unknown',
	consecutive_failures       INTEGER NOT NULL DEFAULT 0,
	last_checked_at            TEXT,
	created_at                 TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	updated_at                 TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_monitors_due ON monitors(is_paused, last_checked_at);

CREATE TABLE IF NOT EXISTS check_locations (
	id             TEXT    PRIMARY KEY,
	name           TEXT    NOT NULL,
	region         TEXT    NOT NULL DEFAULT '',
	probe_key_hash TEXT    NOT NULL UNIQUE,
	is_active      INTEGER NOT NULL DEFAULT 1,
	last_seen_at   TEXT,
	created_at     TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS heartbeats (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT    NOT NULL UNIQUE,
	monitor_id       TEXT    NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	location_id      TEXT    REFERENCES check_locations(id) ON DELETE SET NULL,
	status           TEXT    NOT NULL,
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	status_code      INTEGER,
	error_message    TEXT    NOT NULL DEFAULT '',
	checked_at       TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_heartbeats_monitor ON heartbeats(monitor_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_heartbeats_location ON heartbeats(monitor_id, location_id, seq DESC);

CREATE TABLE IF NOT EXISTS incidents (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT    NOT NULL UNIQUE,
	monitor_id      TEXT    NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	started_at      TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	resolved_at     TEXT,
	cause           TEXT    NOT NULL DEFAULT '',
	acknowledgement TEXT    NOT NULL DEFAULT '',
	acknowledged_by TEXT    NOT NULL DEFAULT '',
	acknowledged_at TEXT,
	reminders_sent  INTEGER NOT NULL DEFAULT 0,
	escalated       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_incidents_monitor ON incidents(monitor_id, resolved_at);

CREATE TABLE IF NOT EXISTS notification_channels (
	id         TEXT    PRIMARY KEY,
	monitor_id TEXT    NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	name       TEXT    NOT NULL,
	type       TEXT    NOT NULL,
	config     TEXT    NOT NULL DEFAULT '{}',
	is_enabled INTEGER NOT NULL DEFAULT 1,
	created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_channels_monitor ON notification_channels(monitor_id);

CREATE TABLE IF NOT EXISTS maintenance_windows (
	id         TEXT    PRIMARY KEY,
	monitor_id TEXT    NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	title      TEXT    NOT NULL DEFAULT '',
	starts_at  TEXT    NOT NULL,
	ends_at    TEXT    NOT NULL,
	created_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_maintenance_monitor ON maintenance_windows(monitor_id, starts_at, ends_at);

CREATE TABLE IF NOT EXISTS monitor_dependencies (
	monitor_id    TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	depends_on_id TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	PRIMARY KEY (monitor_id, depends_on_id)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_reverse ON monitor_dependencies(depends_on_id);

CREATE TABLE IF NOT EXISTS alert_rules (
	monitor_id               TEXT    PRIMARY KEY REFERENCES monitors(id) ON DELETE CASCADE,
	repeat_interval_minutes  INTEGER NOT NULL DEFAULT 0,
	max_repeats              INTEGER NOT NULL DEFAULT 10,
	escalation_after_minutes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT    NOT NULL UNIQUE,
	delivery_group   TEXT    NOT NULL,
	monitor_id       TEXT    NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	event            TEXT    NOT NULL,
	url              TEXT    NOT NULL,
	attempt          INTEGER NOT NULL,
	status           TEXT    NOT NULL,
	status_code      INTEGER,
	error_message    TEXT    NOT NULL DEFAULT '',
	response_time_ms INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_deliveries_monitor ON webhook_deliveries(monitor_id, seq DESC);
CREATE INDEX IF NOT EXISTS idx_deliveries_group ON webhook_deliveries(delivery_group);

CREATE TABLE IF NOT EXISTS status_pages (
	id               TEXT PRIMARY KEY,
	slug             TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	custom_head_html TEXT NOT NULL DEFAULT '',
	manage_key_hash  TEXT NOT NULL,
	created_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
	updated_at       TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);

CREATE TABLE IF NOT EXISTS status_page_monitors (
	page_id    TEXT    NOT NULL REFERENCES status_pages(id) ON DELETE CASCADE,
	monitor_id TEXT    NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	position   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (page_id, monitor_id)
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
);
`

// migrations are applied in order on top of the base schema. Each entry
// bumps schema_version to its version inside one transaction.
var migrations = []struct {
	version int
	sql     string
}{}
