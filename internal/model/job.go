package model

import "time"

// JobStatus tracks a processing job through its state machine.
type JobStatus string

// Job states. Pending -> Running -> {Completed | Failed | Partial};
// Running -> Cancelled is externally triggered. Partial means the job
// checkpointed under its deadline and a continuation is scheduled.
const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobPartial   JobStatus = "PARTIAL"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether no further processing may mutate a job in this state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ProcessingJob is the unit of resumable work: one scan over a bounded,
// stably ordered list of candidate messages. Mutated only by the batch
// controller. At most one non-terminal job may exist per user.
type ProcessingJob struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	ID          string
	UserID      string
	Status      JobStatus
	Query       string
	Errors      []string
	TotalEmails int
	Processed   int
	Cursor      int
	Progress    int

	// Scan options, persisted so continuations in later invocations see
	// the same behavior the job was started with.
	Threshold float64
	AutoSave  bool
}

// RecordError appends a non-fatal error to the job's error list.
func (j *ProcessingJob) RecordError(msg string) {
	j.Errors = append(j.Errors, msg)
}

// UpdateProgress recomputes the progress percentage from processed count.
func (j *ProcessingJob) UpdateProgress() {
	if j.TotalEmails <= 0 {
		j.Progress = 0
		return
	}
	j.Progress = j.Processed * 100 / j.TotalEmails
}
