package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	readDB  *sql.DB
	writeDB *sql.DB

	probeStaleAfter time.Duration
}

// NewSQLiteStore opens the database with separate read and write pools.
// Locations whose last_seen_at is older than probeStaleAfter are excluded
// from consensus counts and flagged on listing.
func NewSQLiteStore(path string, maxReadConns int, probeStaleAfter time.Duration) (*SQLiteStore, error) {
	if maxReadConns <= 0 {
		maxReadConns = runtime.NumCPU()
	}
	if probeStaleAfter <= 0 {
		probeStaleAfter = 30 * time.Minute
	}

	// Write connection: single connection, WAL mode
	writeDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	// Read pool: multiple connections
	readDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	readDB.SetMaxOpenConns(maxReadConns)
	readDB.SetMaxIdleConns(maxReadConns)

	// Run migrations on write connection
	if err := runMigrations(writeDB); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{readDB: readDB, writeDB: writeDB, probeStaleAfter: probeStaleAfter}, nil
}

func runMigrations(db *sql.DB) error {
	var hasSchemaTbl int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&hasSchemaTbl); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if hasSchemaTbl == 0 {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("apply base schema: %w", err)
		}
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
		return nil
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration v%d begin: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d version update: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration v%d commit: %w", m.version, err)
		}
		currentVersion = m.version
	}

	if currentVersion < schemaVersion {
		return fmt.Errorf("database schema v%d is behind v%d and no migration covers the gap", currentVersion, schemaVersion)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	s.readDB.Close()
	s.writeDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.writeDB.Close()
}

// TimeFormat is the format used for storing timestamps in SQLite. It is
// also the wire format, so stored values pass through untouched.
const TimeFormat = "2006-01-02T15:04:05Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(TimeFormat, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// --- Helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStrPtr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}

func nullIntPtr(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// joinTags flattens a tag list to the on-disk comma-joined form.
func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// splitTags expands the on-disk form back to a list. Empty input yields an
// empty, non-nil slice so the wire form is always a JSON array.
func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

type scanner interface {
	Scan(dest ...any) error
}

const monitorColumns = `id, name, type, url, method, headers, expected_status, body_contains,
	follow_redirects, dns_record_type, dns_expected, interval_seconds, timeout_ms,
	confirmation_threshold, response_time_threshold_ms, consensus_threshold,
	is_public, is_paused, tags, group_name, sla_target, sla_period_days,
	manage_key_hash, current_status, consecutive_failures, last_checked_at,
	created_at, updated_at`

func scanMonitor(row scanner) (*Monitor, error) {
	var m Monitor
	var headersStr, tagsStr string
	var createdAt, updatedAt string
	var lastChecked sql.NullString
	err := row.Scan(&m.ID, &m.Name, &m.Type, &m.URL, &m.Method, &headersStr, &m.ExpectedStatus, &m.BodyContains,
		&m.FollowRedirects, &m.DNSRecordType, &m.DNSExpected, &m.IntervalSeconds, &m.TimeoutMs,
		&m.ConfirmationThreshold, &m.ResponseTimeThresholdMs, &m.ConsensusThreshold,
		&m.IsPublic, &m.IsPaused, &tagsStr, &m.GroupName, &m.SLATarget, &m.SLAPeriodDays,
		&m.ManageKeyHash, &m.CurrentStatus, &m.ConsecutiveFailures, &lastChecked,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.Tags = splitTags(tagsStr)
	m.LastCheckedAt = parseTimePtr(lastChecked)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if strings.TrimSpace(headersStr) == "" {
		headersStr = "{}"
	}
	if err := json.Unmarshal([]byte(headersStr), &m.Headers); err != nil {
		return nil, fmt.Errorf("decode headers for monitor %s: %w", m.ID, err)
	}
	return &m, nil
}
