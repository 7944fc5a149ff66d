package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/connector"
	"github.com/meridian-data/etl-runner/pkg/model"
	"github.com/meridian-data/etl-runner/pkg/rules"
	"github.com/meridian-data/etl-runner/pkg/tracker"
)

var (
	testEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	testNow   = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return testNow }

// flakySource fails its first failures Fetch calls, then delegates.
type flakySource struct {
	inner    connector.Source
	failures int
	calls    int
}

func (s *flakySource) Name() string { return "flaky-source" }

func (s *flakySource) Fetch(ctx context.Context, window model.Window) ([]connector.RawRow, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, model.NewConnectorError("flaky-source", "fetch", errors.New("connection reset"))
	}
	return s.inner.Fetch(ctx, window)
}

func (s *flakySource) Close() error { return nil }

// failingDest rejects every batch.
type failingDest struct{}

func (d *failingDest) Name() string { return "failing-dest" }

func (d *failingDest) UpsertBatch(context.Context, *model.Batch) (model.LoadResult, error) {
	return model.LoadResult{}, model.NewConnectorError("failing-dest", "upsert_batch", errors.New("disk full"))
}

func (d *failingDest) Close() error { return nil }

func row(id, email, updatedAt string) connector.RawRow {
	return connector.RawRow{
		Fields: map[string]interface{}{
			"id":         id,
			"email":      email,
			"updated_at": updatedAt,
		},
		Order: []string{"id", "email", "updated_at"},
	}
}

func testValidator(t *testing.T) *rules.Validator {
	t.Helper()
	v, err := rules.NewValidator([]rules.Config{
		{Field: "email", Kind: model.RuleNotNull},
	}, zap.NewNop())
	require.NoError(t, err)
	return v
}

func newTestRunner(
	t *testing.T,
	source connector.Source,
	dest connector.Destination,
	trk *tracker.Tracker,
	policy RetryPolicy,
) *Runner {
	t.Helper()

	logger := zap.NewNop()
	transformer, err := NewTransformer(nil, logger)
	require.NoError(t, err)

	return NewRunner(
		"customers",
		NewExtractor(source, "id", logger),
		transformer,
		testValidator(t),
		NewLoader(dest, logger),
		trk,
		policy,
		time.Minute,
		logger,
	).WithClock(fixedClock)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRunPartialSuccess(t *testing.T) {
	source := connector.NewMemorySource([]connector.RawRow{
		row("1", "a@example.com", "2024-05-01T00:00:00Z"),
		row("2", "", "2024-05-02T00:00:00Z"),
		row("3", "c@example.com", "2024-05-03T00:00:00Z"),
	}, "updated_at")
	dest := connector.NewMemoryDestination()
	trk := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())

	runner := newTestRunner(t, source, dest, trk, fastPolicy())
	report := runner.Run(context.Background())

	require.Equal(t, model.RunStatePartiallySucceeded, report.State)
	require.Equal(t, 3, report.RecordsExtracted)
	require.Equal(t, 2, report.RecordsValid)
	require.Equal(t, 1, report.RecordsInvalid)
	require.Equal(t, 2, report.RecordsLoaded)
	require.Len(t, report.Rejected, 1)
	require.Equal(t, "2", report.Rejected[0].ID())
	require.Equal(t, 2, dest.Len())

	// Partial success still advances the watermark.
	w, err := trk.Window(context.Background(), "customers", testNow.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, w.Start.Equal(testNow))
}

func TestRunCleanSuccess(t *testing.T) {
	source := connector.NewMemorySource([]connector.RawRow{
		row("1", "a@example.com", "2024-05-01T00:00:00Z"),
	}, "updated_at")
	dest := connector.NewMemoryDestination()
	trk := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())

	runner := newTestRunner(t, source, dest, trk, fastPolicy())
	report := runner.Run(context.Background())

	require.Equal(t, model.RunStateSucceeded, report.State)
	require.Equal(t, model.RunStateSucceeded, runner.State())
	require.Empty(t, report.Errors)
	require.True(t, report.Window.Start.Equal(testEpoch))
	require.True(t, report.Window.End.Equal(testNow))
	require.Equal(t, report.Duration, report.EndedAt.Sub(report.StartedAt))
}

func TestRunRetriesExtractThenSucceeds(t *testing.T) {
	inner := connector.NewMemorySource([]connector.RawRow{
		row("1", "a@example.com", "2024-05-01T00:00:00Z"),
	}, "updated_at")
	source := &flakySource{inner: inner, failures: 2}
	dest := connector.NewMemoryDestination()
	trk := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())

	runner := newTestRunner(t, source, dest, trk, fastPolicy())
	report := runner.Run(context.Background())

	require.Equal(t, model.RunStateSucceeded, report.State)
	require.Len(t, report.Errors, 2)
	require.Equal(t, "extract", report.Errors[0].Stage)
	require.Equal(t, 0, report.Errors[0].Attempt)
	require.Equal(t, 1, report.Errors[1].Attempt)
	require.Equal(t, 1, dest.Len())
}

func TestRunFailsAfterExhaustedRetries(t *testing.T) {
	source := connector.NewMemorySource([]connector.RawRow{
		row("1", "a@example.com", "2024-05-01T00:00:00Z"),
	}, "updated_at")
	trk := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())

	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	runner := newTestRunner(t, source, &failingDest{}, trk, policy)
	report := runner.Run(context.Background())

	require.Equal(t, model.RunStateFailed, report.State)
	require.Len(t, report.Errors, 3)
	for i, entry := range report.Errors {
		require.Equal(t, "load", entry.Stage)
		require.Equal(t, i, entry.Attempt)
	}
	require.Equal(t, 0, report.RecordsLoaded)

	// The watermark must not move: the next run re-attempts this window.
	w, err := trk.Window(context.Background(), "customers", testNow.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, w.Start.Equal(testEpoch))
}

func TestRunReloadIsIdempotent(t *testing.T) {
	dest := connector.NewMemoryDestination()

	first := connector.NewMemorySource([]connector.RawRow{
		row("1", "old@example.com", "2024-05-01T00:00:00Z"),
	}, "updated_at")
	trk1 := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())
	report := newTestRunner(t, first, dest, trk1, fastPolicy()).Run(context.Background())
	require.Equal(t, model.RunStateSucceeded, report.State)

	// Re-processing the same window with a newer version of the record
	// must not duplicate it; the later write wins.
	second := connector.NewMemorySource([]connector.RawRow{
		row("1", "new@example.com", "2024-05-01T00:00:00Z"),
	}, "updated_at")
	trk2 := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())
	report = newTestRunner(t, second, dest, trk2, fastPolicy()).Run(context.Background())
	require.Equal(t, model.RunStateSucceeded, report.State)

	require.Equal(t, 1, dest.Len())
	rec, ok := dest.Get("1")
	require.True(t, ok)
	v, _ := rec.Field("email")
	require.Equal(t, "new@example.com", v)
}

func TestRunMalformedIDsRejectedNotFatal(t *testing.T) {
	source := connector.NewMemorySource([]connector.RawRow{
		row("1", "a@example.com", "2024-05-01T00:00:00Z"),
		row("", "b@example.com", "2024-05-02T00:00:00Z"),
		row("1", "c@example.com", "2024-05-03T00:00:00Z"),
	}, "updated_at")
	dest := connector.NewMemoryDestination()
	trk := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())

	runner := newTestRunner(t, source, dest, trk, fastPolicy())
	report := runner.Run(context.Background())

	require.Equal(t, model.RunStatePartiallySucceeded, report.State)
	require.Equal(t, 3, report.RecordsExtracted)
	require.Equal(t, 1, report.RecordsValid)
	require.Equal(t, 2, report.RecordsInvalid)
	require.Equal(t, 1, dest.Len())

	kinds := make([]model.RuleKind, 0, 2)
	for _, rec := range report.Rejected {
		require.Len(t, rec.Issues(), 1)
		kinds = append(kinds, rec.Issues()[0].Rule)
	}
	require.ElementsMatch(t, []model.RuleKind{model.RuleNotNull, model.RuleUniqueKey}, kinds)
}

func TestRunWindowRangeFiltersRows(t *testing.T) {
	source := connector.NewMemorySource([]connector.RawRow{
		row("old", "a@example.com", "2019-01-01T00:00:00Z"),
		row("in", "b@example.com", "2024-05-01T00:00:00Z"),
		row("boundary", "c@example.com", "2024-06-01T00:00:00Z"),
	}, "updated_at")
	dest := connector.NewMemoryDestination()
	trk := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, zap.NewNop())

	runner := newTestRunner(t, source, dest, trk, fastPolicy())
	report := runner.Run(context.Background())

	// "old" predates the epoch start; "boundary" lands exactly on the
	// end bound, which is exclusive, so it belongs to the next window.
	require.Equal(t, model.RunStateSucceeded, report.State)
	require.Equal(t, 1, report.RecordsExtracted)
	_, ok := dest.Get("in")
	require.True(t, ok)
}

func TestOrchestratorRunsAllSources(t *testing.T) {
	logger := zap.NewNop()
	trk := tracker.NewTracker(tracker.NewMemoryStore(), testEpoch, logger)

	newRunnerFor := func(sourceID string) *Runner {
		source := connector.NewMemorySource([]connector.RawRow{
			row(sourceID+"-1", "a@example.com", "2024-05-01T00:00:00Z"),
		}, "updated_at")
		transformer, err := NewTransformer(nil, logger)
		require.NoError(t, err)
		return NewRunner(
			sourceID,
			NewExtractor(source, "id", logger),
			transformer,
			testValidator(t),
			NewLoader(connector.NewMemoryDestination(), logger),
			trk,
			fastPolicy(),
			time.Minute,
			logger,
		).WithClock(fixedClock)
	}

	orch := NewOrchestrator([]*Runner{
		newRunnerFor("orders"),
		newRunnerFor("customers"),
	}, 0, logger)

	reports := orch.RunAll(context.Background())
	require.Len(t, reports, 2)
	require.Equal(t, "customers", reports[0].SourceID)
	require.Equal(t, "orders", reports[1].SourceID)
	for _, rep := range reports {
		require.Equal(t, model.RunStateSucceeded, rep.State)
	}
}
