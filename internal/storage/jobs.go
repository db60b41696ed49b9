package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mizuno-h/cardwatch/internal/common"
	"github.com/mizuno-h/cardwatch/internal/model"
)

// CreateJob inserts a new job, enforcing the one-non-terminal-job-per-user
// invariant atomically: the insert only happens when no PENDING, RUNNING, or
// PARTIAL job exists for the user. A conditional insert avoids the
// check-then-act race that a separate existence query would have.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	errsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal job errors: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, status, query, progress, total_emails, processed, cursor, threshold, auto_save, errors, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM jobs WHERE user_id = ? AND status IN ('PENDING', 'RUNNING', 'PARTIAL')
		)`,
		job.ID, job.UserID, string(job.Status), job.Query, job.Progress,
		job.TotalEmails, job.Processed, job.Cursor, job.Threshold, job.AutoSave,
		string(errsJSON), job.CreatedAt, job.UpdatedAt, job.UserID)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check job insert: %w", err)
	}
	if rows == 0 {
		return common.ErrActiveJobExists
	}
	return nil
}

// GetJob loads a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ProcessingJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, query, progress, total_emails, processed, cursor, threshold, auto_save, errors, created_at, updated_at, completed_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ActiveJobForUser returns the user's non-terminal job, or nil when none
// exists.
func (s *SQLiteStore) ActiveJobForUser(ctx context.Context, userID string) (*model.ProcessingJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, query, progress, total_emails, processed, cursor, threshold, auto_save, errors, created_at, updated_at, completed_at
		FROM jobs WHERE user_id = ? AND status IN ('PENDING', 'RUNNING', 'PARTIAL')
		ORDER BY created_at DESC LIMIT 1`, userID)

	job, err := scanJob(row)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

// LatestJobForUser returns the user's most recently created job regardless
// of state, or nil when the user has never scanned.
func (s *SQLiteStore) LatestJobForUser(ctx context.Context, userID string) (*model.ProcessingJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, query, progress, total_emails, processed, cursor, threshold, auto_save, errors, created_at, updated_at, completed_at
		FROM jobs WHERE user_id = ?
		ORDER BY created_at DESC LIMIT 1`, userID)

	job, err := scanJob(row)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return job, err
}

// UpdateJob persists the job's mutable fields.
func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.ProcessingJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	errsJSON, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal job errors: %w", err)
	}

	job.UpdatedAt = time.Now()
	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, progress = ?, total_emails = ?, processed = ?, cursor = ?, errors = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		string(job.Status), job.Progress, job.TotalEmails, job.Processed,
		job.Cursor, string(errsJSON), job.UpdatedAt, job.CompletedAt, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// SaveJobResults upserts per-message results for a job. Re-saving the same
// (job, message) pair replaces the row, so duplicate continuation triggers
// are harmless.
func (s *SQLiteStore) SaveJobResults(ctx context.Context, jobID string, results []model.Result) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i := range results {
		payload, mErr := json.Marshal(&results[i])
		if mErr != nil {
			return fmt.Errorf("failed to marshal result %s: %w", results[i].MessageID, mErr)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO job_results (job_id, message_id, payload, seq)
			VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM job_results WHERE job_id = ?))
			ON CONFLICT (job_id, message_id) DO UPDATE SET payload = excluded.payload`,
			jobID, results[i].MessageID, string(payload), jobID); err != nil {
			return fmt.Errorf("failed to save result %s: %w", results[i].MessageID, err)
		}
	}
	return tx.Commit()
}

// JobResults loads a job's accumulated results in insertion order.
func (s *SQLiteStore) JobResults(ctx context.Context, jobID string) ([]model.Result, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM job_results WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query job results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.Result
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job result: %w", err)
		}
		var r model.Result
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.ProcessingJob, error) {
	var (
		job         model.ProcessingJob
		status      string
		query       sql.NullString
		errsJSON    sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.UserID, &status, &query, &job.Progress,
		&job.TotalEmails, &job.Processed, &job.Cursor, &job.Threshold,
		&job.AutoSave, &errsJSON, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.Status = model.JobStatus(status)
	job.Query = query.String
	if errsJSON.Valid && errsJSON.String != "" {
		if err := json.Unmarshal([]byte(errsJSON.String), &job.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job errors: %w", err)
		}
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return &job, nil
}
