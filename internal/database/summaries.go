package database

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/LifeLens/internal/insight"
)

// StoreWeeklySummary inserts or replaces the summary for a week-start date.
func (db *DB) StoreWeeklySummary(weekStart string, bodyJSON []byte, inputHash string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO weekly_summaries (week_start, input_hash, body_json)
		VALUES (?, ?, ?)`,
		weekStart, inputHash, string(bodyJSON),
	)
	return err
}

// GetWeeklySummary returns the summary for a week-start date, or nil.
func (db *DB) GetWeeklySummary(weekStart string) (*ArtifactRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, week_start, input_hash, body_json, created_at
		FROM weekly_summaries WHERE week_start = ?`, weekStart,
	)
	return scanArtifact(row)
}

// GetWeeklySummariesForMonth returns weekly summaries whose week_start lies
// inside a YYYY-MM month, ascending. A week straddling the month boundary
// belongs to its week-start's month.
func (db *DB) GetWeeklySummariesForMonth(month string) ([]ArtifactRow, error) {
	start, end, err := insight.MonthDateRange(month)
	if err != nil {
		return nil, err
	}
	rows, err := db.conn.Query(
		`SELECT id, week_start, input_hash, body_json, created_at
		FROM weekly_summaries WHERE week_start >= ? AND week_start < ?
		ORDER BY week_start ASC`, start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// StoreMonthlySummary inserts or replaces the summary for a YYYY-MM month.
func (db *DB) StoreMonthlySummary(month string, bodyJSON []byte, inputHash string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO monthly_summaries (month, input_hash, body_json)
		VALUES (?, ?, ?)`,
		month, inputHash, string(bodyJSON),
	)
	return err
}

// GetMonthlySummary returns the summary for a month, or nil.
func (db *DB) GetMonthlySummary(month string) (*ArtifactRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, month, input_hash, body_json, created_at
		FROM monthly_summaries WHERE month = ?`, month,
	)
	return scanArtifact(row)
}

// GetMonthlySummariesForQuarter returns the monthly summaries of a YYYY-QN
// quarter in calendar order.
func (db *DB) GetMonthlySummariesForQuarter(quarter string) ([]ArtifactRow, error) {
	months, err := insight.MonthsInQuarter(quarter)
	if err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(months)), ", ")
	args := make([]any, len(months))
	for i, m := range months {
		args[i] = m
	}
	rows, err := db.conn.Query(
		`SELECT id, month, input_hash, body_json, created_at
		FROM monthly_summaries WHERE month IN (`+placeholders+`)
		ORDER BY month ASC`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// StoreQuarterlyNotepad inserts or replaces the notepad for a YYYY-QN quarter.
func (db *DB) StoreQuarterlyNotepad(quarter string, bodyJSON []byte, inputHash string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO quarterly_notepads (quarter, input_hash, body_json)
		VALUES (?, ?, ?)`,
		quarter, inputHash, string(bodyJSON),
	)
	return err
}

// GetQuarterlyNotepad returns the notepad for a quarter, or nil.
func (db *DB) GetQuarterlyNotepad(quarter string) (*ArtifactRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, quarter, input_hash, body_json, created_at
		FROM quarterly_notepads WHERE quarter = ?`, quarter,
	)
	return scanArtifact(row)
}

// GetAllQuarterlyNotepads returns every notepad in calendar order.
func (db *DB) GetAllQuarterlyNotepads() ([]ArtifactRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, quarter, input_hash, body_json, created_at
		FROM quarterly_notepads ORDER BY quarter ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

// StoreSynthesis inserts or replaces the singleton synthesis.
func (db *DB) StoreSynthesis(bodyJSON []byte, inputHash string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO syntheses (natural_key, input_hash, body_json)
		VALUES (?, ?, ?)`,
		insight.SynthesisKey, inputHash, string(bodyJSON),
	)
	return err
}

// GetSynthesis returns the singleton synthesis, or nil.
func (db *DB) GetSynthesis() (*ArtifactRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, natural_key, input_hash, body_json, created_at
		FROM syntheses WHERE natural_key = ?`, insight.SynthesisKey,
	)
	return scanArtifact(row)
}

// GetTierArtifact returns the artifact for one (tier, range-id), or nil.
func (db *DB) GetTierArtifact(tier insight.Tier, rangeID string) (*ArtifactRow, error) {
	switch tier {
	case insight.TierWeekly:
		return db.GetWeeklySummary(rangeID)
	case insight.TierMonthly:
		return db.GetMonthlySummary(rangeID)
	case insight.TierQuarterly:
		return db.GetQuarterlyNotepad(rangeID)
	case insight.TierSynthesis:
		return db.GetSynthesis()
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
}

// StoreTierArtifact persists the artifact for one (tier, range-id).
func (db *DB) StoreTierArtifact(tier insight.Tier, rangeID string, bodyJSON []byte, inputHash string) error {
	switch tier {
	case insight.TierWeekly:
		return db.StoreWeeklySummary(rangeID, bodyJSON, inputHash)
	case insight.TierMonthly:
		return db.StoreMonthlySummary(rangeID, bodyJSON, inputHash)
	case insight.TierQuarterly:
		return db.StoreQuarterlyNotepad(rangeID, bodyJSON, inputHash)
	case insight.TierSynthesis:
		return db.StoreSynthesis(bodyJSON, inputHash)
	default:
		return fmt.Errorf("unknown tier %q", tier)
	}
}
