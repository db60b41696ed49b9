package storage

import (
	"context"
	"fmt"

	"github.com/mizuno-h/cardwatch/internal/model"
)

// UpsertEmailRecord inserts or refreshes the record for one classified
// message, keyed uniquely by (account, message). Returns the record's row
// id, which stays stable across upserts.
func (s *SQLiteStore) UpsertEmailRecord(ctx context.Context, rec *model.EmailRecord) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_records (account_id, message_id, subject, sender, received_at, classification, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, message_id) DO UPDATE SET
			classification = excluded.classification,
			confidence = excluded.confidence`,
		rec.AccountID, rec.MessageID, rec.Subject, rec.Sender,
		rec.ReceivedAt, string(rec.Classification), rec.Confidence)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert email record: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM email_records WHERE account_id = ? AND message_id = ?`,
		rec.AccountID, rec.MessageID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read email record id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// CreateTransaction inserts a card transaction. The source email record id
// is unique, so re-creating from the same message is a no-op.
func (s *SQLiteStore) CreateTransaction(ctx context.Context, txn *model.CardTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO card_transactions (email_record_id, user_id, date, amount, currency, merchant, issuer, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.EmailRecordID, txn.UserID, txn.Date, txn.Amount,
		txn.Currency, txn.Merchant, txn.Issuer, txn.Category)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// CreateSubscription inserts a subscription, deduped by
// (user, service, amount). Duplicates are no-ops, not errors.
func (s *SQLiteStore) CreateSubscription(ctx context.Context, sub *model.Subscription) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO subscriptions (user_id, service, amount, currency, cadence)
		VALUES (?, ?, ?, ?, ?)`,
		sub.UserID, sub.Service, sub.Amount, sub.Currency, sub.Cadence)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// Subscriptions lists a user's saved subscriptions, alphabetical by service.
func (s *SQLiteStore) Subscriptions(ctx context.Context, userID string) ([]model.Subscription, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, service, amount, currency, cadence
		FROM subscriptions WHERE user_id = ?
		ORDER BY service, amount`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.Service, &sub.Amount,
			&sub.Currency, &sub.Cadence); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// CountTransactions returns the number of saved card transactions; used by
// resumption tests to verify dedupe.
func (s *SQLiteStore) CountTransactions(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM card_transactions WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
