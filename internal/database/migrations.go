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
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS extractions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entry_date TEXT UNIQUE NOT NULL,
    input_hash TEXT NOT NULL,
    body_json TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS weekly_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    week_start TEXT UNIQUE NOT NULL,
    input_hash TEXT NOT NULL,
    body_json TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS monthly_summaries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    month TEXT UNIQUE NOT NULL,
    input_hash TEXT NOT NULL,
    body_json TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS quarterly_notepads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    quarter TEXT UNIQUE NOT NULL,
    input_hash TEXT NOT NULL,
    body_json TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS syntheses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    natural_key TEXT UNIQUE NOT NULL,
    input_hash TEXT NOT NULL,
    body_json TEXT NOT NULL,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_status (
    id TEXT PRIMARY KEY,
    job_type TEXT NOT NULL,
    range_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'succeeded', 'failed', 'dead_lettered')),
    input_hash TEXT DEFAULT '',
    result_key TEXT DEFAULT '',
    last_error TEXT DEFAULT '',
    attempts INTEGER DEFAULT 0,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pipeline_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    phase TEXT NOT NULL,
    current_tier TEXT,
    total_entries INTEGER DEFAULT 0,
    processed_entries INTEGER DEFAULT 0,
    run_id TEXT DEFAULT '',
    started_at TEXT,
    completed_at TEXT,
    warnings TEXT
);

CREATE INDEX IF NOT EXISTS idx_job_status_type_status ON job_status(job_type, status);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
