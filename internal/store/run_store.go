package store

import (
	"database/sql"
	"time"

	"github.com/narrate-go/narrate/internal/models"
)

// RecordRun inserts or updates a run.
func (s *Store) RecordRun(run models.Run) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	query := `
		INSERT INTO job_runs (run_id, job_id, kind, state, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			error = excluded.error,
			finished_at = excluded.finished_at;
	`
	_, err := s.db.Exec(query, run.RunID, run.JobID, string(run.Kind), string(run.State), run.Error, run.StartedAt, finished)
	return err
}

// ListRuns returns the most recent runs of a job, newest first. An empty
// jobID lists runs of every job.
func (s *Store) ListRuns(jobID string, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT run_id, job_id, kind, state, error, started_at, finished_at FROM job_runs"
	args := []any{}
	if jobID != "" {
		query += " WHERE job_id = ?"
		args = append(args, jobID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var (
			run      models.Run
			kind     string
			state    string
			finished sql.NullTime
		)
		if err := rows.Scan(&run.RunID, &run.JobID, &kind, &state, &run.Error, &run.StartedAt, &finished); err != nil {
			return nil, err
		}
		run.Kind = models.RunKind(kind)
		run.State = models.RunState(state)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// FinishStaleRuns marks runs left running by a previous process as failed.
// The channel has no backfill, so their outcome is unknown.
func (s *Store) FinishStaleRuns() (int64, error) {
	res, err := s.db.Exec(
		"UPDATE job_runs SET state = ?, error = ?, finished_at = ? WHERE state = ?",
		string(models.RunFailed), "interrupted by console restart", time.Now().UTC(), string(models.RunRunning),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
