package faults

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mizuno-h/cardwatch/internal/common"
	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/service"
)

// ErrorStore is the slice of the persistence layer the manager needs.
type ErrorStore interface {
	SaveProcessingError(ctx context.Context, pe *model.ProcessingError) error
	ProcessingErrors(ctx context.Context, filter service.ErrorFilter) ([]model.ProcessingError, error)
}

// DefaultMaxRetries is the fixed retry ceiling for retryable operations.
const DefaultMaxRetries = 3

// DefaultBackoff is the fixed delay schedule between retry attempts. The
// last entry repeats if attempts outnumber entries.
var DefaultBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second}

// Manager classifies, persists, and retries failures.
type Manager struct {
	store   ErrorStore
	backoff []time.Duration
	max     int
}

// NewManager creates an error manager backed by the given store.
func NewManager(store ErrorStore) *Manager {
	return &Manager{store: store, backoff: DefaultBackoff, max: DefaultMaxRetries}
}

// Log assigns severity and retryability from the fixed per-type mappings
// when not already set, persists the error, and raises a critical-path
// alert for the highest severity tier. It returns the error's identifier.
func (m *Manager) Log(ctx context.Context, pe *model.ProcessingError) string {
	if pe.ID == "" {
		pe.ID = uuid.NewString()
	}
	if pe.CreatedAt.IsZero() {
		pe.CreatedAt = time.Now()
	}
	if pe.Severity == "" {
		pe.Severity = SeverityFor(pe.Type)
	}
	pe.Retryable = RetryableFor(pe.Type)
	if pe.MaxRetries == 0 {
		pe.MaxRetries = m.max
	}

	if err := m.store.SaveProcessingError(ctx, pe); err != nil {
		// The error log must never take down the path it instruments.
		slog.Error("failed to persist processing error",
			"error_id", pe.ID, "type", pe.Type, "error", err)
	}

	if pe.Severity == model.SeverityCritical {
		slog.Error("CRITICAL processing error",
			"error_id", pe.ID,
			"type", pe.Type,
			"message", pe.Message,
			"job_id", pe.JobID)
	} else {
		slog.Debug("logged processing error",
			"error_id", pe.ID, "type", pe.Type, "severity", pe.Severity)
	}
	return pe.ID
}

// WithRetry executes operation, logging each failure under errType. When the
// type is retryable the operation is retried on the fixed backoff schedule
// up to the retry ceiling; otherwise, or on exhaustion, the final failure is
// returned to the caller.
func (m *Manager) WithRetry(ctx context.Context, errType model.ErrorType, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= m.max; attempt++ {
		if attempt > 0 {
			delay := m.backoff[min(attempt-1, len(m.backoff)-1)]
			slog.Warn("operation failed, retrying",
				"attempt", attempt, "max_attempts", m.max, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		m.Log(ctx, &model.ProcessingError{
			Type:       errType,
			Message:    lastErr.Error(),
			RetryCount: attempt,
		})

		// A non-retryable type can still retry when the error itself says
		// so (rate-limit sentinels, wrapped RetryableError).
		if !RetryableFor(errType) && !common.IsRetryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("%w: giving up after %d attempts: %w", common.ErrMaxRetries, m.max+1, lastErr)
}

// SetBackoff overrides the delay schedule and retry ceiling; used by tests.
func (m *Manager) SetBackoff(schedule []time.Duration, maxRetries int) {
	m.backoff = schedule
	m.max = maxRetries
}
