package database

import (
	"database/sql"
)

// UpsertJobStatus creates or updates a job status row. A row already in a
// terminal status with the same input hash keeps its fields; a changed input
// hash (a prompt or content change) makes the row writable again.
func (db *DB) UpsertJobStatus(j JobStatus) error {
	_, err := db.conn.Exec(
		`INSERT INTO job_status (id, job_type, range_id, status, input_hash, result_key, last_error, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = CASE WHEN job_status.status IN ('succeeded', 'dead_lettered')
				AND job_status.input_hash = excluded.input_hash
				THEN job_status.status ELSE excluded.status END,
			input_hash = excluded.input_hash,
			result_key = CASE WHEN job_status.status IN ('succeeded', 'dead_lettered')
				AND job_status.input_hash = excluded.input_hash
				THEN job_status.result_key ELSE excluded.result_key END,
			last_error = CASE WHEN job_status.status IN ('succeeded', 'dead_lettered')
				AND job_status.input_hash = excluded.input_hash
				THEN job_status.last_error ELSE excluded.last_error END,
			attempts = MAX(job_status.attempts, excluded.attempts),
			updated_at = datetime('now')`,
		j.ID, j.JobType, j.RangeID, j.Status, j.InputHash, j.ResultKey, j.LastError, j.Attempts,
	)
	return err
}

// GetJobStatus returns the status row for a job id, or nil.
func (db *DB) GetJobStatus(id string) (*JobStatus, error) {
	row := db.conn.QueryRow(
		`SELECT id, job_type, range_id, status, input_hash, result_key, last_error, attempts, created_at, updated_at
		FROM job_status WHERE id = ?`, id,
	)
	var j JobStatus
	if err := row.Scan(&j.ID, &j.JobType, &j.RangeID, &j.Status, &j.InputHash,
		&j.ResultKey, &j.LastError, &j.Attempts, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &j, nil
}

// CountJobs counts job rows of one type and status.
func (db *DB) CountJobs(jobType, status string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM job_status WHERE job_type = ? AND status = ?`,
		jobType, status,
	).Scan(&count)
	return count, err
}

// GetDeadLetteredJobs returns all dead-lettered jobs, oldest first.
func (db *DB) GetDeadLetteredJobs() ([]JobStatus, error) {
	rows, err := db.conn.Query(
		`SELECT id, job_type, range_id, status, input_hash, result_key, last_error, attempts, created_at, updated_at
		FROM job_status WHERE status = 'dead_lettered' ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []JobStatus
	for rows.Next() {
		var j JobStatus
		if err := rows.Scan(&j.ID, &j.JobType, &j.RangeID, &j.Status, &j.InputHash,
			&j.ResultKey, &j.LastError, &j.Attempts, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
