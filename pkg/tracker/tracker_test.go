package tracker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/model"
	"github.com/meridian-data/etl-runner/pkg/tracker"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newTracker() *tracker.Tracker {
	return tracker.NewTracker(tracker.NewMemoryStore(), epoch, zap.NewNop())
}

func TestWindowFirstRunStartsAtEpoch(t *testing.T) {
	trk := newTracker()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	w, err := trk.Window(context.Background(), "customers", now)
	require.NoError(t, err)
	require.True(t, w.Start.Equal(epoch))
	require.True(t, w.End.Equal(now))
}

func TestWindowAdvancesOnSuccess(t *testing.T) {
	trk := newTracker()
	ctx := context.Background()
	end1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end2 := end1.Add(time.Hour)

	require.NoError(t, trk.Commit(ctx, "customers", end1, model.RunStatusSuccess))

	w, err := trk.Window(ctx, "customers", end2)
	require.NoError(t, err)
	require.True(t, w.Start.Equal(end1))
	require.True(t, w.End.Equal(end2))
}

func TestWindowAdvancesOnPartial(t *testing.T) {
	trk := newTracker()
	ctx := context.Background()
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, trk.Commit(ctx, "customers", end, model.RunStatusPartial))

	w, err := trk.Window(ctx, "customers", end.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, w.Start.Equal(end))
}

func TestFailedRunWindowNeverSkipped(t *testing.T) {
	trk := newTracker()
	ctx := context.Background()
	end1 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, trk.Commit(ctx, "customers", end1, model.RunStatusSuccess))
	// A failed run must not move the watermark past its window.
	require.NoError(t, trk.Commit(ctx, "customers", end1.Add(time.Hour), model.RunStatusFailed))

	w, err := trk.Window(ctx, "customers", end1.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, w.Start.Equal(end1))
}

func TestWatermarksIndependentPerSource(t *testing.T) {
	trk := newTracker()
	ctx := context.Background()
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, trk.Commit(ctx, "customers", end, model.RunStatusSuccess))

	w, err := trk.Window(ctx, "orders", end.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, w.Start.Equal(epoch))
}

func TestAcquireSerializesSameSource(t *testing.T) {
	trk := newTracker()

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := trk.Acquire("customers")
			defer release()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxActive)
}

func TestAcquireIndependentAcrossSources(t *testing.T) {
	trk := newTracker()

	release := trk.Acquire("customers")
	defer release()

	done := make(chan struct{})
	go func() {
		r := trk.Acquire("orders")
		r()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a different source blocked on an unrelated lock")
	}
}
