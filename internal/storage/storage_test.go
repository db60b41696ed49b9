package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuno-h/cardwatch/internal/common"
	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/service"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newJob(id, userID string, status model.JobStatus) *model.ProcessingJob {
	now := time.Now().UTC()
	return &model.ProcessingJob{
		ID:          id,
		UserID:      userID,
		Status:      status,
		Query:       "subject:receipt",
		TotalEmails: 10,
		Threshold:   0.7,
		AutoSave:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMigrateIdempotent(t *testing.T) {
	store := newTestStore(t)
	// A second run must be a no-op.
	require.NoError(t, store.Migrate(context.Background()))
}

func TestCreateAndGetJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jb := newJob("job-1", "user-1", model.JobPending)
	require.NoError(t, store.CreateJob(ctx, jb))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jb.ID, got.ID)
	assert.Equal(t, jb.UserID, got.UserID)
	assert.Equal(t, model.JobPending, got.Status)
	assert.Equal(t, jb.Query, got.Query)
	assert.Equal(t, 10, got.TotalEmails)
	assert.InDelta(t, 0.7, got.Threshold, 0.0001)
	assert.True(t, got.AutoSave)
	assert.Nil(t, got.CompletedAt)
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateJobEnforcesSingleActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newJob("job-1", "user-1", model.JobRunning)
	require.NoError(t, store.CreateJob(ctx, first))

	// Second active job for the same user is rejected and the first is
	// left untouched.
	err := store.CreateJob(ctx, newJob("job-2", "user-1", model.JobPending))
	assert.ErrorIs(t, err, common.ErrActiveJobExists)

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobRunning, got.Status)

	_, err = store.GetJob(ctx, "job-2")
	assert.ErrorIs(t, err, common.ErrNotFound)

	// A different user is unaffected.
	require.NoError(t, store.CreateJob(ctx, newJob("job-3", "user-2", model.JobPending)))
}

func TestCreateJobAllowedAfterTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	done := newJob("job-1", "user-1", model.JobRunning)
	require.NoError(t, store.CreateJob(ctx, done))

	now := time.Now().UTC()
	done.Status = model.JobCompleted
	done.CompletedAt = &now
	require.NoError(t, store.UpdateJob(ctx, done))

	require.NoError(t, store.CreateJob(ctx, newJob("job-2", "user-1", model.JobPending)))
}

func TestActiveJobForUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active, err := store.ActiveJobForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	jb := newJob("job-1", "user-1", model.JobPartial)
	require.NoError(t, store.CreateJob(ctx, jb))

	active, err = store.ActiveJobForUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "job-1", active.ID)
}

func TestLatestJobForUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestJobForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	old := newJob("job-old", "user-1", model.JobCompleted)
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.CreateJob(ctx, old))

	recent := newJob("job-new", "user-1", model.JobCompleted)
	require.NoError(t, store.CreateJob(ctx, recent))

	latest, err = store.LatestJobForUser(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "job-new", latest.ID)
}

func TestUpdateJobRoundTripsErrors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jb := newJob("job-1", "user-1", model.JobRunning)
	require.NoError(t, store.CreateJob(ctx, jb))

	jb.RecordError("fetch msg-3: boom")
	jb.Cursor = 5
	jb.Processed = 5
	jb.Progress = 50
	require.NoError(t, store.UpdateJob(ctx, jb))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch msg-3: boom"}, got.Errors)
	assert.Equal(t, 5, got.Cursor)
	assert.Equal(t, 50, got.Progress)
}

func TestSaveJobResultsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jb := newJob("job-1", "user-1", model.JobRunning)
	require.NoError(t, store.CreateJob(ctx, jb))

	batch1 := []model.Result{
		{MessageID: "m1", Success: true, Kind: model.KindSubscription, Confidence: 0.95,
			Payload: &model.Payload{Amount: 1490, Currency: "JPY", Merchant: "Netflix"}},
		{MessageID: "m2", Success: false, Kind: model.KindUnknown, Errors: []string{"amount not found"}},
	}
	require.NoError(t, store.SaveJobResults(ctx, "job-1", batch1))

	// Re-saving m2 with a refined kind replaces the row instead of
	// duplicating it.
	batch2 := []model.Result{
		{MessageID: "m2", Success: true, Kind: model.KindSubscription, Confidence: 0.3,
			Payload: &model.Payload{Amount: 980, Currency: "JPY", Merchant: "Spotify"}},
		{MessageID: "m3", Success: true, Kind: model.KindTransaction, Confidence: 0.9,
			Payload: &model.Payload{Amount: 500, Currency: "JPY", Merchant: "店舗A"}},
	}
	require.NoError(t, store.SaveJobResults(ctx, "job-1", batch2))

	results, err := store.JobResults(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Insertion order preserved.
	assert.Equal(t, "m1", results[0].MessageID)
	assert.Equal(t, "m2", results[1].MessageID)
	assert.Equal(t, "m3", results[2].MessageID)

	// m2 carries the replacement payload.
	assert.True(t, results[1].Success)
	require.NotNil(t, results[1].Payload)
	assert.InDelta(t, 980, results[1].Payload.Amount, 0.0001)
}

func TestUpsertEmailRecordStableID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &model.EmailRecord{
		AccountID:      "user-1",
		MessageID:      "m1",
		Subject:        "カードご利用のお知らせ",
		Sender:         "mail@qa.jcb.co.jp",
		Classification: model.KindTransaction,
		Confidence:     0.9,
	}

	id1, err := store.UpsertEmailRecord(ctx, rec)
	require.NoError(t, err)

	rec.Confidence = 0.95
	id2, err := store.UpsertEmailRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestCreateTransactionDedupe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	recID, err := store.UpsertEmailRecord(ctx, &model.EmailRecord{
		AccountID: "user-1", MessageID: "m1", Classification: model.KindTransaction,
	})
	require.NoError(t, err)

	txn := &model.CardTransaction{
		EmailRecordID: recID,
		UserID:        "user-1",
		Amount:        12800,
		Currency:      "JPY",
		Merchant:      "ヨドバシカメラ",
		Issuer:        "JCB",
		Category:      "Other",
	}
	require.NoError(t, store.CreateTransaction(ctx, txn))
	require.NoError(t, store.CreateTransaction(ctx, txn))

	n, err := store.CountTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateSubscriptionDedupe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub := &model.Subscription{
		UserID: "user-1", Service: "Netflix", Amount: 1490, Currency: "JPY", Cadence: "monthly",
	}
	require.NoError(t, store.CreateSubscription(ctx, sub))
	require.NoError(t, store.CreateSubscription(ctx, sub))

	// A different amount for the same service is a distinct row (plan change).
	other := &model.Subscription{
		UserID: "user-1", Service: "Netflix", Amount: 1980, Currency: "JPY", Cadence: "monthly",
	}
	require.NoError(t, store.CreateSubscription(ctx, other))
}

func TestProcessingErrorsFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, pe := range []model.ProcessingError{
		{ID: "e1", Type: model.ErrTypeAmountNotFound, Severity: model.SeverityLow,
			UserID: "user-1", JobID: "job-1", Message: "miss one"},
		{ID: "e2", Type: model.ErrTypeRateLimit, Severity: model.SeverityHigh,
			UserID: "user-1", JobID: "job-2", Message: "throttled"},
		{ID: "e3", Type: model.ErrTypeSaveFailed, Severity: model.SeverityHigh,
			UserID: "user-2", JobID: "job-3", Message: "disk full"},
	} {
		pe.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveProcessingError(ctx, &pe))
	}

	all, err := store.ProcessingErrors(ctx, service.ErrorFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, "e3", all[0].ID)

	byUser, err := store.ProcessingErrors(ctx, service.ErrorFilter{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	byJob, err := store.ProcessingErrors(ctx, service.ErrorFilter{JobID: "job-2"})
	require.NoError(t, err)
	require.Len(t, byJob, 1)
	assert.Equal(t, model.ErrTypeRateLimit, byJob[0].Type)

	limited, err := store.ProcessingErrors(ctx, service.ErrorFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
