package model

import "time"

// EmailRecord is the persisted trace of one classified message, keyed
// uniquely by (AccountID, MessageID) for dedupe.
type EmailRecord struct {
	ReceivedAt     time.Time
	AccountID      string
	MessageID      string
	Subject        string
	Sender         string
	Classification Kind
	ID             int64
	Confidence     float64
}

// CardTransaction is a persisted card-usage transaction. Keyed by its source
// email record so the same message can never create two transactions.
type CardTransaction struct {
	Date          time.Time
	UserID        string
	Currency      string
	Merchant      string
	Issuer        string
	Category      string
	ID            int64
	EmailRecordID int64
	Amount        float64
}

// Subscription is a persisted recurring charge, deduped by
// (UserID, Service, Amount).
type Subscription struct {
	UserID   string
	Service  string
	Currency string
	Cadence  string
	ID       int64
	Amount   float64
}
