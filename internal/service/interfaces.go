// Package service defines the interfaces between the batch controller and
// its external collaborators: the message source, the persistence layer, and
// the continuation scheduler.
package service

import (
	"context"
	"time"

	"github.com/mizuno-h/cardwatch/internal/model"
)

// MessageSource is the mail-provider collaborator. Search must return a
// stable ordering for a given query so cursor-based resumption is correct.
// Fetch failures for individual identifiers are skippable.
type MessageSource interface {
	Search(ctx context.Context, query string, maxResults int) ([]string, error)
	Fetch(ctx context.Context, id string) (*model.InboundMessage, error)
}

// Scheduler triggers continuation of a deadline-boxed job. The trigger is
// at-least-once: duplicate deliveries must not cause reprocessing, which the
// controller guarantees via the persisted cursor and status checks.
type Scheduler interface {
	ScheduleContinuation(ctx context.Context, jobID string, cursor int) error
}

// ErrorFilter narrows processing-error queries.
type ErrorFilter struct {
	Since  time.Time
	UserID string
	JobID  string
	Limit  int
}

// Store is the persistence collaborator. All write operations are idempotent
// under retry given the same inputs.
type Store interface {
	// Job lifecycle. CreateJob enforces the one-non-terminal-job-per-user
	// invariant atomically and returns common.ErrActiveJobExists on violation.
	CreateJob(ctx context.Context, job *model.ProcessingJob) error
	GetJob(ctx context.Context, id string) (*model.ProcessingJob, error)
	UpdateJob(ctx context.Context, job *model.ProcessingJob) error
	ActiveJobForUser(ctx context.Context, userID string) (*model.ProcessingJob, error)
	LatestJobForUser(ctx context.Context, userID string) (*model.ProcessingJob, error)
	SaveJobResults(ctx context.Context, jobID string, results []model.Result) error
	JobResults(ctx context.Context, jobID string) ([]model.Result, error)

	// Classified-record persistence, deduped as described on each model type.
	UpsertEmailRecord(ctx context.Context, rec *model.EmailRecord) (int64, error)
	CreateTransaction(ctx context.Context, txn *model.CardTransaction) error
	CreateSubscription(ctx context.Context, sub *model.Subscription) error

	// Processing-error log.
	SaveProcessingError(ctx context.Context, pe *model.ProcessingError) error
	ProcessingErrors(ctx context.Context, filter ErrorFilter) ([]model.ProcessingError, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// ScanOptions is the flat option set accepted by the job-start surface.
type ScanOptions struct {
	DateStart           time.Time
	DateEnd             time.Time
	Query               string
	MaxEmails           int
	ConfidenceThreshold float64
	AutoSave            bool
}
