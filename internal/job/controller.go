// Package job implements the time-boxed, resumable batch scan controller.
//
// A scan runs as a sequence of short-lived invocations coordinated through
// persisted job state: each RunBatch call processes a bounded window of
// messages under a soft wall-clock deadline, checkpoints its cursor, and
// hands off to an idempotent continuation trigger. There is no long-lived
// worker; the mechanism works equally as a queue message, a cron tick, or a
// directly awaited loop.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mizuno-h/cardwatch/internal/aggregate"
	"github.com/mizuno-h/cardwatch/internal/classify"
	"github.com/mizuno-h/cardwatch/internal/common"
	"github.com/mizuno-h/cardwatch/internal/faults"
	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/pattern"
	"github.com/mizuno-h/cardwatch/internal/refine"
	"github.com/mizuno-h/cardwatch/internal/service"
)

// Config holds controller tuning knobs.
type Config struct {
	// BatchSize bounds how many messages one invocation may process.
	BatchSize int
	// SoftDeadline bounds one invocation's wall-clock time. It must leave
	// margin under the hosting invocation's hard limit for I/O teardown.
	SoftDeadline time.Duration
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:    25,
		SoftDeadline: 50 * time.Second,
	}
}

// Controller orchestrates classification over a bounded message list within
// a wall-clock budget, persisting progress and scheduling continuations.
type Controller struct {
	store      service.Store
	source     service.MessageSource
	classifier *classify.Classifier
	faults     *faults.Manager
	sched      service.Scheduler
	keywords   pattern.Keywords
	now        func() time.Time
	cfg        Config
}

// New creates a batch controller. The scheduler may be nil, in which case
// continuations run as detached goroutines (see GoScheduler).
func New(store service.Store, source service.MessageSource, classifier *classify.Classifier, fm *faults.Manager, keywords pattern.Keywords, cfg Config) *Controller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.SoftDeadline <= 0 {
		cfg.SoftDeadline = DefaultConfig().SoftDeadline
	}
	c := &Controller{
		store:      store,
		source:     source,
		classifier: classifier,
		faults:     fm,
		keywords:   keywords,
		now:        time.Now,
		cfg:        cfg,
	}
	c.sched = &GoScheduler{Controller: c}
	return c
}

// SetScheduler replaces the continuation trigger.
func (c *Controller) SetScheduler(s service.Scheduler) { c.sched = s }

// StartScan counts candidate messages, creates a Pending job, and kicks off
// the first batch asynchronously. It returns common.ErrActiveJobExists when
// the user already has a non-terminal job; the existing job is untouched.
func (c *Controller) StartScan(ctx context.Context, userID string, opts service.ScanOptions) (*model.ProcessingJob, error) {
	query := buildQuery(opts)

	ids, err := c.source.Search(ctx, query, opts.MaxEmails)
	if err != nil {
		c.faults.Log(ctx, &model.ProcessingError{
			Type:    model.ErrTypeUpstreamAPI,
			Message: fmt.Sprintf("candidate count failed: %v", err),
			UserID:  userID,
		})
		return nil, fmt.Errorf("failed to count candidate messages: %w", err)
	}

	now := c.now()
	jb := &model.ProcessingJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		Status:      model.JobPending,
		Query:       query,
		TotalEmails: len(ids),
		Threshold:   opts.ConfidenceThreshold,
		AutoSave:    opts.AutoSave,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := c.store.CreateJob(ctx, jb); err != nil {
		return nil, err
	}

	slog.Info("scan started",
		"job_id", jb.ID, "user_id", userID, "total_emails", jb.TotalEmails)

	if err := c.sched.ScheduleContinuation(ctx, jb.ID, 0); err != nil {
		return nil, fmt.Errorf("failed to schedule first batch: %w", err)
	}
	return jb, nil
}

// RunBatch processes one deadline-boxed window of a job starting at cursor.
// It is safe under duplicate continuation triggers: the persisted cursor
// only moves forward and terminal or cancelled jobs are left untouched.
func (c *Controller) RunBatch(ctx context.Context, jobID string, cursor int) error {
	start := c.now()

	jb, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}
	if jb.Status.Terminal() {
		slog.Debug("ignoring continuation for terminal job", "job_id", jobID, "status", jb.Status)
		return nil
	}
	// A stale duplicate trigger may carry an old cursor; never move backwards.
	if cursor < jb.Cursor {
		cursor = jb.Cursor
	}

	jb.Status = model.JobRunning
	if err := c.store.UpdateJob(ctx, jb); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	// The source guarantees stable ordering for a given query, so
	// re-fetching the candidate list keeps cursor positions valid.
	ids, err := c.source.Search(ctx, jb.Query, jb.TotalEmails)
	if err != nil {
		return c.failJob(ctx, jb, fmt.Errorf("%w: %w", common.ErrSourceUnavailable, err))
	}
	if len(ids) > jb.TotalEmails {
		ids = ids[:jb.TotalEmails]
	}

	windowEnd := cursor + c.cfg.BatchSize
	if windowEnd > len(ids) {
		windowEnd = len(ids)
	}

	var results []model.Result
	i := cursor
	for ; i < windowEnd; i++ {
		// Deadline check before each message; always make progress on at
		// least one so continuations cannot spin without advancing.
		if i > cursor && c.now().Sub(start) >= c.cfg.SoftDeadline {
			break
		}

		// Cancellation is cooperative and checked at message boundaries.
		current, gErr := c.store.GetJob(ctx, jobID)
		if gErr == nil && current.Status == model.JobCancelled {
			slog.Info("job cancelled, stopping batch", "job_id", jobID, "cursor", i)
			return nil
		}

		res := c.processMessage(ctx, jb, ids[i])
		results = append(results, res)
		jb.Processed++
		jb.Cursor = i + 1
	}

	if err := c.store.SaveJobResults(ctx, jobID, results); err != nil {
		jb.RecordError(fmt.Sprintf("failed to save results: %v", err))
		c.faults.Log(ctx, &model.ProcessingError{
			Type: model.ErrTypeSaveFailed, Message: err.Error(), JobID: jobID, UserID: jb.UserID,
		})
	}

	jb.UpdateProgress()

	if jb.Cursor < len(ids) {
		// Deadline or window boundary reached with work remaining:
		// checkpoint and hand off.
		jb.Status = model.JobPartial
		if err := c.store.UpdateJob(ctx, jb); err != nil {
			return fmt.Errorf("failed to checkpoint job: %w", err)
		}
		slog.Info("batch checkpointed",
			"job_id", jobID, "cursor", jb.Cursor, "total", len(ids),
			"elapsed", c.now().Sub(start))
		return c.sched.ScheduleContinuation(ctx, jobID, jb.Cursor)
	}

	return c.completeJob(ctx, jb)
}

// Cancel transitions a job to Cancelled. Scheduled continuations observe
// the status before resuming and become no-ops. It needs only the store, so
// a cancel surface can run without the rest of the scan pipeline.
func Cancel(ctx context.Context, store service.Store, jobID string) error {
	jb, err := store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if jb.Status.Terminal() {
		return fmt.Errorf("%w: %s", common.ErrJobTerminal, jb.Status)
	}
	jb.Status = model.JobCancelled
	now := time.Now()
	jb.CompletedAt = &now
	return store.UpdateJob(ctx, jb)
}

// Cancel cancels a job through the controller's store.
func (c *Controller) Cancel(ctx context.Context, jobID string) error {
	return Cancel(ctx, c.store, jobID)
}

// processMessage fetches and classifies one message. Failures never abort
// the batch: they are recorded on the job and in the error log, and the
// returned result carries Success=false.
func (c *Controller) processMessage(ctx context.Context, jb *model.ProcessingJob, id string) model.Result {
	msg, err := c.source.Fetch(ctx, id)
	if err != nil {
		jb.RecordError(fmt.Sprintf("fetch %s: %v", id, err))
		c.faults.Log(ctx, &model.ProcessingError{
			Type:    model.ErrTypeUpstreamAPI,
			Message: fmt.Sprintf("fetch failed: %v", err),
			EmailID: id,
			JobID:   jb.ID,
			UserID:  jb.UserID,
		})
		return model.Result{
			MessageID: id,
			Kind:      model.KindUnknown,
			PatternID: "none",
			Errors:    []string{fmt.Sprintf("fetch failed: %v", err)},
		}
	}

	res := c.classifier.Classify(msg)

	if !res.Success {
		c.faults.Log(ctx, &model.ProcessingError{
			Type:    model.ErrTypeAmountNotFound,
			Message: fmt.Sprintf("no amount extracted from %q", msg.Subject),
			EmailID: id,
			Subject: msg.Subject,
			Sender:  msg.From,
			JobID:   jb.ID,
			UserID:  jb.UserID,
		})
	} else if jb.AutoSave && res.Confidence >= jb.Threshold {
		c.autoSave(ctx, jb, &res)
	}
	return res
}

// autoSave persists one confident result through the persistence
// collaborator. Failures are recorded but never abort the batch.
func (c *Controller) autoSave(ctx context.Context, jb *model.ProcessingJob, res *model.Result) {
	recID, err := c.store.UpsertEmailRecord(ctx, &model.EmailRecord{
		AccountID:      jb.UserID,
		MessageID:      res.MessageID,
		Subject:        res.Subject,
		Sender:         res.From,
		ReceivedAt:     res.Date,
		Classification: res.Kind,
		Confidence:     res.Confidence,
	})
	if err != nil {
		jb.RecordError(fmt.Sprintf("save %s: %v", res.MessageID, err))
		c.faults.Log(ctx, &model.ProcessingError{
			Type: model.ErrTypeSaveFailed, Message: err.Error(),
			EmailID: res.MessageID, JobID: jb.ID, UserID: jb.UserID,
		})
		return
	}

	switch res.Kind {
	case model.KindSubscription:
		err = c.store.CreateSubscription(ctx, &model.Subscription{
			UserID:   jb.UserID,
			Service:  serviceName(res),
			Amount:   res.Payload.Amount,
			Currency: res.Payload.Currency,
			Cadence:  res.Payload.Cadence,
		})
	default:
		err = c.store.CreateTransaction(ctx, &model.CardTransaction{
			EmailRecordID: recID,
			UserID:        jb.UserID,
			Date:          res.Date,
			Amount:        res.Payload.Amount,
			Currency:      res.Payload.Currency,
			Merchant:      res.Payload.Merchant,
			Issuer:        res.Payload.Issuer,
			Category:      string(aggregate.Categorize(res, c.keywords)),
		})
	}
	if err != nil {
		jb.RecordError(fmt.Sprintf("save %s: %v", res.MessageID, err))
		c.faults.Log(ctx, &model.ProcessingError{
			Type: model.ErrTypeSaveFailed, Message: err.Error(),
			EmailID: res.MessageID, JobID: jb.ID, UserID: jb.UserID,
		})
	}
}

// completeJob runs the cross-message refinement pass over the job's full
// result set, persists promotions, and marks the job Completed.
func (c *Controller) completeJob(ctx context.Context, jb *model.ProcessingJob) error {
	results, err := c.store.JobResults(ctx, jb.ID)
	if err != nil {
		jb.RecordError(fmt.Sprintf("refinement load failed: %v", err))
	} else {
		decisions := refine.Refine(results)
		promoted := persistPromotions(ctx, c, jb, results, decisions)
		if promoted > 0 {
			if err := c.store.SaveJobResults(ctx, jb.ID, results); err != nil {
				jb.RecordError(fmt.Sprintf("failed to save refined results: %v", err))
			}
		}
	}

	jb.Status = model.JobCompleted
	jb.Progress = 100
	now := c.now()
	jb.CompletedAt = &now
	if err := c.store.UpdateJob(ctx, jb); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	slog.Info("scan completed",
		"job_id", jb.ID, "processed", jb.Processed, "errors", len(jb.Errors))
	return nil
}

// persistPromotions saves a subscription row for every member of a promoted
// group. Recurrence evidence overrides the per-message confidence threshold:
// the members were too ambiguous to auto-save individually, which is exactly
// why the statistical pass exists. Rows are deduped by (user, service,
// amount), so saving each member is harmless.
func persistPromotions(ctx context.Context, c *Controller, jb *model.ProcessingJob, results []model.Result, decisions []refine.Decision) int {
	promoted := make(map[string]bool)
	for _, d := range decisions {
		if d.Promoted {
			promoted[d.Issuer+"\x00"+d.Merchant] = true
		}
	}
	if len(promoted) == 0 || !jb.AutoSave {
		return len(promoted)
	}

	for i := range results {
		r := &results[i]
		if !r.Success || r.Kind != model.KindSubscription || r.Payload == nil {
			continue
		}
		key := r.Payload.Issuer + "\x00" + r.Payload.MerchantKey
		if !promoted[key] {
			continue
		}
		if err := c.store.CreateSubscription(ctx, &model.Subscription{
			UserID:   jb.UserID,
			Service:  serviceName(r),
			Amount:   r.Payload.Amount,
			Currency: r.Payload.Currency,
			Cadence:  r.Payload.Cadence,
		}); err != nil {
			jb.RecordError(fmt.Sprintf("save subscription %s: %v", r.MessageID, err))
		}
	}
	return len(promoted)
}

func (c *Controller) failJob(ctx context.Context, jb *model.ProcessingJob, cause error) error {
	jb.Status = model.JobFailed
	jb.RecordError(cause.Error())
	now := c.now()
	jb.CompletedAt = &now

	c.faults.Log(ctx, &model.ProcessingError{
		Type:    model.ErrTypeUpstreamAPI,
		Message: cause.Error(),
		JobID:   jb.ID,
		UserID:  jb.UserID,
	})

	if err := c.store.UpdateJob(ctx, jb); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	// The failure surfaces through job status, not as an error to the
	// scheduler: the trigger did its work.
	return nil
}

func serviceName(r *model.Result) string {
	if r.Payload.Service != "" {
		return r.Payload.Service
	}
	return r.Payload.Merchant
}

// buildQuery translates scan options into a source query string.
func buildQuery(opts service.ScanOptions) string {
	if opts.Query != "" {
		return opts.Query
	}
	q := `subject:(ご利用 OR 請求 OR receipt OR payment)`
	if !opts.DateStart.IsZero() {
		q += " after:" + opts.DateStart.Format("2006/01/02")
	}
	if !opts.DateEnd.IsZero() {
		q += " before:" + opts.DateEnd.Format("2006/01/02")
	}
	return q
}
