package database

import (
	"database/sql"
	"encoding/json"
)

// PutPipelineState writes the singleton pipeline state row. The coordinator
// is the only caller.
func (db *DB) PutPipelineState(s PipelineState) error {
	var warningsJSON *string
	if len(s.Warnings) > 0 {
		data, err := json.Marshal(s.Warnings)
		if err != nil {
			return err
		}
		j := string(data)
		warningsJSON = &j
	}

	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO pipeline_state
		(id, phase, current_tier, total_entries, processed_entries, run_id, started_at, completed_at, warnings)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Phase, s.CurrentTier, s.TotalEntries, s.ProcessedEntries,
		s.RunID, s.StartedAt, s.CompletedAt, warningsJSON,
	)
	return err
}

// GetPipelineState returns the pipeline state, or nil if none was written.
func (db *DB) GetPipelineState() (*PipelineState, error) {
	row := db.conn.QueryRow(
		`SELECT phase, current_tier, total_entries, processed_entries, run_id, started_at, completed_at, warnings
		FROM pipeline_state WHERE id = 1`,
	)

	var s PipelineState
	var warningsJSON *string
	if err := row.Scan(&s.Phase, &s.CurrentTier, &s.TotalEntries, &s.ProcessedEntries,
		&s.RunID, &s.StartedAt, &s.CompletedAt, &warningsJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if warningsJSON != nil {
		if err := json.Unmarshal([]byte(*warningsJSON), &s.Warnings); err != nil {
			s.Warnings = nil
		}
	}
	return &s, nil
}

// ClearPipelineState deletes the singleton row. Artifacts are preserved.
func (db *DB) ClearPipelineState() error {
	_, err := db.conn.Exec(`DELETE FROM pipeline_state WHERE id = 1`)
	return err
}

// GetStats returns artifact and dead-letter counts for the status surface.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM extractions", &s.Extractions},
		{"SELECT COUNT(*) FROM weekly_summaries", &s.WeeklySummaries},
		{"SELECT COUNT(*) FROM monthly_summaries", &s.MonthlySummaries},
		{"SELECT COUNT(*) FROM quarterly_notepads", &s.QuarterlyNotepads},
		{"SELECT COUNT(*) FROM syntheses", &s.Syntheses},
		{"SELECT COUNT(*) FROM job_status WHERE status = 'dead_lettered'", &s.DeadLetteredJobs},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
