package job

import (
	"context"
	"log/slog"
)

// GoScheduler runs continuations as detached goroutines. It is the in-process
// trigger used by the CLI; a queue-backed deployment substitutes its own
// Scheduler and delivers the (jobID, cursor) pair however it likes.
type GoScheduler struct {
	Controller *Controller
}

// ScheduleContinuation launches the next batch on a fresh background context
// so the continuation survives the caller's deadline.
func (s *GoScheduler) ScheduleContinuation(_ context.Context, jobID string, cursor int) error {
	go func() {
		if err := s.Controller.RunBatch(context.Background(), jobID, cursor); err != nil {
			slog.Error("batch continuation failed", "job_id", jobID, "cursor", cursor, "error", err)
		}
	}()
	return nil
}

// SyncScheduler runs continuations inline on the calling goroutine. Used by
// tests and the CLI's foreground scan mode, where the caller wants the whole
// job driven to a terminal state before returning.
type SyncScheduler struct {
	Controller *Controller
}

// ScheduleContinuation runs the batch immediately and returns its error.
func (s *SyncScheduler) ScheduleContinuation(ctx context.Context, jobID string, cursor int) error {
	return s.Controller.RunBatch(ctx, jobID, cursor)
}
