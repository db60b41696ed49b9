package job

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mizuno-h/cardwatch/internal/classify"
	"github.com/mizuno-h/cardwatch/internal/common"
	"github.com/mizuno-h/cardwatch/internal/faults"
	"github.com/mizuno-h/cardwatch/internal/model"
	"github.com/mizuno-h/cardwatch/internal/pattern"
	"github.com/mizuno-h/cardwatch/internal/service"
	"github.com/mizuno-h/cardwatch/internal/storage"
)

// fakeSource serves a fixed, stably ordered message list.
type fakeSource struct {
	msgs      map[string]*model.InboundMessage
	failFetch map[string]error
	fetches   map[string]int
	searchErr error
	ids       []string
	searches  int
}

func (f *fakeSource) Search(_ context.Context, _ string, maxResults int) ([]string, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if maxResults > 0 && maxResults < len(f.ids) {
		return f.ids[:maxResults], nil
	}
	return f.ids, nil
}

func (f *fakeSource) Fetch(_ context.Context, id string) (*model.InboundMessage, error) {
	if f.fetches == nil {
		f.fetches = make(map[string]int)
	}
	f.fetches[id]++
	if err := f.failFetch[id]; err != nil {
		return nil, err
	}
	msg, ok := f.msgs[id]
	if !ok {
		return nil, fmt.Errorf("no such message %s", id)
	}
	return msg, nil
}

// recordingScheduler captures continuation triggers without running them, so
// tests drive RunBatch explicitly.
type recordingScheduler struct {
	calls []struct {
		jobID  string
		cursor int
	}
}

func (r *recordingScheduler) ScheduleContinuation(_ context.Context, jobID string, cursor int) error {
	r.calls = append(r.calls, struct {
		jobID  string
		cursor int
	}{jobID, cursor})
	return nil
}

func netflixMsg(id string, date time.Time) *model.InboundMessage {
	return &model.InboundMessage{
		ID:      id,
		From:    "info@account.netflix.com",
		Subject: "Netflixのお支払いが完了しました",
		Body:    "お支払い金額: ¥1,490",
		Date:    date,
	}
}

func jcbMsg(id string, date time.Time) *model.InboundMessage {
	return &model.InboundMessage{
		ID:      id,
		From:    "mail@qa.jcb.co.jp",
		Subject: "カードご利用のお知らせ",
		Body:    "ご利用金額：12,800円\nご利用先: ヨドバシカメラ",
		Date:    date,
	}
}

func newsletterMsg(id string) *model.InboundMessage {
	return &model.InboundMessage{
		ID:      id,
		From:    "news@example.com",
		Subject: "weekly digest",
		Body:    "nothing billable here",
	}
}

func genericMsg(id, domain string, date time.Time) *model.InboundMessage {
	return &model.InboundMessage{
		ID:      id,
		From:    "billing@" + domain,
		Subject: "receipt",
		Body:    "ご請求金額: 1,000円",
		Date:    date,
	}
}

type fixture struct {
	store      *storage.SQLiteStore
	source     *fakeSource
	controller *Controller
}

func newFixture(t *testing.T, source *fakeSource, cfg Config) *fixture {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	patterns, err := pattern.NewStore(pattern.Defaults())
	require.NoError(t, err)

	controller := New(store, source, classify.New(patterns), faults.NewManager(store), pattern.DefaultKeywords(), cfg)
	return &fixture{store: store, source: source, controller: controller}
}

func defaultOpts() service.ScanOptions {
	return service.ScanOptions{ConfidenceThreshold: 0.7, AutoSave: true}
}

func TestScanRunsToCompletion(t *testing.T) {
	july := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		ids: []string{"m1", "m2", "m3"},
		msgs: map[string]*model.InboundMessage{
			"m1": netflixMsg("m1", july),
			"m2": jcbMsg("m2", july),
			"m3": newsletterMsg("m3"),
		},
	}
	f := newFixture(t, source, Config{})
	f.controller.SetScheduler(&SyncScheduler{Controller: f.controller})
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)
	assert.Equal(t, 3, jb.TotalEmails)

	final, err := f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 100, final.Progress)
	assert.Equal(t, 3, final.Processed)
	assert.NotNil(t, final.CompletedAt)

	results, err := f.store.JobResults(ctx, jb.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)

	// The JCB transaction auto-saved; the newsletter produced nothing.
	n, err := f.store.CountTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The Netflix pattern hit auto-saved as a subscription.
	subs, err := f.store.Subscriptions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Netflix", subs[0].Service)
	assert.InDelta(t, 1490, subs[0].Amount, 0.0001)
}

func TestStartScanRejectsSecondActiveJob(t *testing.T) {
	source := &fakeSource{ids: []string{"m1"}, msgs: map[string]*model.InboundMessage{
		"m1": newsletterMsg("m1"),
	}}
	f := newFixture(t, source, Config{})
	sched := &recordingScheduler{}
	f.controller.SetScheduler(sched)
	ctx := context.Background()

	first, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)
	require.Len(t, sched.calls, 1)

	_, err = f.controller.StartScan(ctx, "user-1", defaultOpts())
	assert.ErrorIs(t, err, common.ErrActiveJobExists)

	// The first job is untouched.
	got, err := f.store.GetJob(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, got.Status)

	// A different user can start independently.
	_, err = f.controller.StartScan(ctx, "user-2", defaultOpts())
	assert.NoError(t, err)
}

func TestStartScanSearchFailure(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("gmail down")}
	f := newFixture(t, source, Config{})
	ctx := context.Background()

	_, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.Error(t, err)

	active, err := f.store.ActiveJobForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, active)

	// The failure is in the error log.
	errs, err := f.store.ProcessingErrors(ctx, service.ErrorFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, model.ErrTypeUpstreamAPI, errs[0].Type)
}

func TestBatchCheckpointsAndResumes(t *testing.T) {
	july := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		ids:  []string{"m1", "m2", "m3", "m4", "m5"},
		msgs: map[string]*model.InboundMessage{},
	}
	for _, id := range source.ids {
		source.msgs[id] = jcbMsg(id, july)
	}
	f := newFixture(t, source, Config{BatchSize: 2})
	sched := &recordingScheduler{}
	f.controller.SetScheduler(sched)
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)

	// First window: 2 messages, checkpoint, continuation at cursor 2.
	require.NoError(t, f.controller.RunBatch(ctx, jb.ID, 0))
	mid, err := f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPartial, mid.Status)
	assert.Equal(t, 2, mid.Cursor)
	assert.Equal(t, 2, mid.Processed)
	require.Len(t, sched.calls, 2)
	assert.Equal(t, 2, sched.calls[1].cursor)

	// Remaining windows.
	require.NoError(t, f.controller.RunBatch(ctx, jb.ID, 2))
	require.NoError(t, f.controller.RunBatch(ctx, jb.ID, 4))

	final, err := f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 5, final.Processed)

	results, err := f.store.JobResults(ctx, jb.ID)
	require.NoError(t, err)
	assert.Len(t, results, 5)

	// Every message fetched exactly once across the three invocations.
	for _, id := range source.ids {
		assert.Equal(t, 1, source.fetches[id], "message %s", id)
	}
}

func TestStaleContinuationCursorNeverMovesBack(t *testing.T) {
	july := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		ids:  []string{"m1", "m2", "m3", "m4"},
		msgs: map[string]*model.InboundMessage{},
	}
	for _, id := range source.ids {
		source.msgs[id] = jcbMsg(id, july)
	}
	f := newFixture(t, source, Config{BatchSize: 2})
	f.controller.SetScheduler(&recordingScheduler{})
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)
	require.NoError(t, f.controller.RunBatch(ctx, jb.ID, 0))

	// A duplicate trigger replaying cursor 0 resumes from the persisted
	// cursor instead of reprocessing.
	require.NoError(t, f.controller.RunBatch(ctx, jb.ID, 0))

	final, err := f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.Status)
	for _, id := range source.ids {
		assert.Equal(t, 1, source.fetches[id], "message %s", id)
	}

	// Triggers arriving after completion are ignored outright.
	searchesBefore := source.searches
	require.NoError(t, f.controller.RunBatch(ctx, jb.ID, 0))
	assert.Equal(t, searchesBefore, source.searches)

	n, err := f.store.CountTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDeadlineStillMakesProgress(t *testing.T) {
	july := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		ids:  []string{"m1", "m2", "m3"},
		msgs: map[string]*model.InboundMessage{},
	}
	for _, id := range source.ids {
		source.msgs[id] = jcbMsg(id, july)
	}
	// A deadline that expires immediately: each invocation still processes
	// one message, so the chain of continuations terminates.
	f := newFixture(t, source, Config{BatchSize: 10, SoftDeadline: time.Nanosecond})
	f.controller.SetScheduler(&SyncScheduler{Controller: f.controller})
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)

	final, err := f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 3, final.Processed)
	for _, id := range source.ids {
		assert.Equal(t, 1, source.fetches[id], "message %s", id)
	}
}

func TestCancelStopsContinuations(t *testing.T) {
	source := &fakeSource{ids: []string{"m1", "m2"}, msgs: map[string]*model.InboundMessage{
		"m1": newsletterMsg("m1"),
		"m2": newsletterMsg("m2"),
	}}
	f := newFixture(t, source, Config{})
	f.controller.SetScheduler(&recordingScheduler{})
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)

	require.NoError(t, f.controller.Cancel(ctx, jb.ID))

	got, err := f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// A continuation arriving after cancellation is a no-op.
	require.NoError(t, f.controller.RunBatch(ctx, jb.ID, 0))
	got, err = f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, got.Status)
	assert.Zero(t, got.Processed)

	// Cancelling a terminal job is rejected.
	err = f.controller.Cancel(ctx, jb.ID)
	assert.ErrorIs(t, err, common.ErrJobTerminal)
}

func TestFetchFailureRecordedAndScanContinues(t *testing.T) {
	july := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		ids: []string{"m1", "m2"},
		msgs: map[string]*model.InboundMessage{
			"m2": jcbMsg("m2", july),
		},
		failFetch: map[string]error{"m1": errors.New("404 not found")},
	}
	f := newFixture(t, source, Config{})
	f.controller.SetScheduler(&SyncScheduler{Controller: f.controller})
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)

	final, err := f.store.GetJob(ctx, jb.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.Status)
	assert.Equal(t, 2, final.Processed)
	assert.NotEmpty(t, final.Errors)

	results, err := f.store.JobResults(ctx, jb.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)

	errs, err := f.store.ProcessingErrors(ctx, service.ErrorFilter{JobID: jb.ID})
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, model.ErrTypeUpstreamAPI, errs[len(errs)-1].Type)
}

func TestLowConfidenceResultsNotAutoSaved(t *testing.T) {
	july := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{
		ids: []string{"m1"},
		msgs: map[string]*model.InboundMessage{
			"m1": genericMsg("m1", "acme.example.com", july),
		},
	}
	f := newFixture(t, source, Config{})
	f.controller.SetScheduler(&SyncScheduler{Controller: f.controller})
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)

	results, err := f.store.JobResults(ctx, jb.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, model.KindUnknown, results[0].Kind)

	// Confidence 0.3 sits under the 0.7 threshold: nothing persisted.
	n, err := f.store.CountTransactions(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecurringChargePromotedAndSaved(t *testing.T) {
	source := &fakeSource{
		ids: []string{"m1", "m2", "m3"},
		msgs: map[string]*model.InboundMessage{
			"m1": genericMsg("m1", "acme.example.com", time.Date(2025, 5, 3, 9, 0, 0, 0, time.UTC)),
			"m2": genericMsg("m2", "acme.example.com", time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)),
			"m3": genericMsg("m3", "acme.example.com", time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC)),
		},
	}
	f := newFixture(t, source, Config{})
	f.controller.SetScheduler(&SyncScheduler{Controller: f.controller})
	ctx := context.Background()

	jb, err := f.controller.StartScan(ctx, "user-1", defaultOpts())
	require.NoError(t, err)

	// Identical amounts across three months: the completion pass promotes
	// the group to Subscription and persists it despite the low
	// per-message confidence.
	results, err := f.store.JobResults(ctx, jb.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, model.KindSubscription, r.Kind)
	}

	subs, err := f.store.Subscriptions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.InDelta(t, 1000, subs[0].Amount, 0.0001)
}
