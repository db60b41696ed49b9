package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS jobs (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					status TEXT NOT NULL,
					query TEXT,
					progress INTEGER DEFAULT 0,
					total_emails INTEGER DEFAULT 0,
					processed INTEGER DEFAULT 0,
					cursor INTEGER DEFAULT 0,
					threshold REAL DEFAULT 0,
					auto_save INTEGER DEFAULT 0,
					errors TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_jobs_user_status ON jobs(user_id, status)`,

				`CREATE TABLE IF NOT EXISTS job_results (
					job_id TEXT NOT NULL,
					message_id TEXT NOT NULL,
					payload TEXT NOT NULL,
					seq INTEGER NOT NULL,
					PRIMARY KEY (job_id, message_id),
					FOREIGN KEY (job_id) REFERENCES jobs(id)
				)`,

				`CREATE TABLE IF NOT EXISTS email_records (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					account_id TEXT NOT NULL,
					message_id TEXT NOT NULL,
					subject TEXT,
					sender TEXT,
					received_at DATETIME,
					classification TEXT,
					confidence REAL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (account_id, message_id)
				)`,

				`CREATE TABLE IF NOT EXISTS card_transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					email_record_id INTEGER NOT NULL UNIQUE,
					user_id TEXT NOT NULL,
					date DATETIME,
					amount REAL NOT NULL,
					currency TEXT NOT NULL,
					merchant TEXT,
					issuer TEXT,
					category TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (email_record_id) REFERENCES email_records(id)
				)`,
				`CREATE INDEX idx_card_transactions_user ON card_transactions(user_id, date)`,

				`CREATE TABLE IF NOT EXISTS subscriptions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					service TEXT NOT NULL,
					amount REAL NOT NULL,
					currency TEXT NOT NULL,
					cadence TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (user_id, service, amount)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Processing error log",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS processing_errors (
					id TEXT PRIMARY KEY,
					type TEXT NOT NULL,
					message TEXT,
					email_id TEXT,
					subject TEXT,
					sender TEXT,
					severity TEXT,
					retryable INTEGER DEFAULT 0,
					retry_count INTEGER DEFAULT 0,
					max_retries INTEGER DEFAULT 0,
					user_id TEXT,
					job_id TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_processing_errors_created ON processing_errors(created_at)`,
				`CREATE INDEX idx_processing_errors_job ON processing_errors(job_id)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate brings the database schema up to the expected version.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.Version, "description", m.Description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to set schema version %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}
