package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/service"
)

// SaveProcessingError persists one classified failure. Saving the same
// error id twice replaces the row.
func (s *SQLiteStore) SaveProcessingError(ctx context.Context, pe *model.ProcessingError) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO processing_errors
			(id, type, message, email_id, subject, sender, severity, retryable, retry_count, max_retries, user_id, job_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pe.ID, string(pe.Type), pe.Message, pe.EmailID, pe.Subject, pe.Sender,
		string(pe.Severity), pe.Retryable, pe.RetryCount, pe.MaxRetries,
		pe.UserID, pe.JobID, pe.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save processing error: %w", err)
	}
	return nil
}

// ProcessingErrors queries the error log, newest first.
func (s *SQLiteStore) ProcessingErrors(ctx context.Context, filter service.ErrorFilter) ([]model.ProcessingError, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.JobID != "" {
		conds = append(conds, "job_id = ?")
		args = append(args, filter.JobID)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since)
	}

	query := `SELECT id, type, message, email_id, subject, sender, severity, retryable, retry_count, max_retries, user_id, job_id, created_at
		FROM processing_errors`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query processing errors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ProcessingError
	for rows.Next() {
		var (
			pe       model.ProcessingError
			errType  string
			severity string
		)
		if err := rows.Scan(&pe.ID, &errType, &pe.Message, &pe.EmailID, &pe.Subject,
			&pe.Sender, &severity, &pe.Retryable, &pe.RetryCount, &pe.MaxRetries,
			&pe.UserID, &pe.JobID, &pe.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processing error: %w", err)
		}
		pe.Type = model.ErrorType(errType)
		pe.Severity = model.Severity(severity)
		out = append(out, pe)
	}
	return out, rows.Err()
}
