package database

import (
	"database/sql"
)

// StoreExtraction inserts or replaces the extraction for an entry date.
func (db *DB) StoreExtraction(date string, bodyJSON []byte, inputHash string) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO extractions (entry_date, input_hash, body_json)
		VALUES (?, ?, ?)`,
		date, inputHash, string(bodyJSON),
	)
	return err
}

// GetExtraction returns the extraction for a date, or nil if absent.
func (db *DB) GetExtraction(date string) (*ArtifactRow, error) {
	row := db.conn.QueryRow(
		`SELECT id, entry_date, input_hash, body_json, created_at
		FROM extractions WHERE entry_date = ?`, date,
	)
	return scanArtifact(row)
}

// GetExtractionsInRange returns extractions with date in [start, end],
// in ascending date order.
func (db *DB) GetExtractionsInRange(start, end string) ([]ArtifactRow, error) {
	rows, err := db.conn.Query(
		`SELECT id, entry_date, input_hash, body_json, created_at
		FROM extractions WHERE entry_date >= ? AND entry_date <= ?
		ORDER BY entry_date ASC`, start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func scanArtifact(row *sql.Row) (*ArtifactRow, error) {
	var a ArtifactRow
	if err := row.Scan(&a.ID, &a.Key, &a.InputHash, &a.BodyJSON, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func scanArtifacts(rows *sql.Rows) ([]ArtifactRow, error) {
	var artifacts []ArtifactRow
	for rows.Next() {
		var a ArtifactRow
		if err := rows.Scan(&a.ID, &a.Key, &a.InputHash, &a.BodyJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}
