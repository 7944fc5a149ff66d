// pkg/tracker/tracker.go
package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// Tracker owns watermark state and computes extraction windows. All reads
// and writes of watermarks go through here, and runs for the same source are
// serialized by a per-source advisory lock held for the run's duration.
type Tracker struct {
	store        WatermarkStore
	epochDefault time.Time
	logger       *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a tracker over a watermark store. epochDefault is the
// window start used for sources with no prior committed run.
func NewTracker(store WatermarkStore, epochDefault time.Time, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:        store,
		epochDefault: epochDefault,
		logger:       logger.Named("tracker"),
		locks:        make(map[string]*sync.Mutex),
	}
}

// Acquire takes the per-source advisory lock and returns its release
// function. Concurrent runs for different sources proceed independently;
// runs for the same source block here so they cannot race on the watermark
// read-modify-write or claim the same window.
func (t *Tracker) Acquire(sourceID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[sourceID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[sourceID] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Window computes the next extraction window for a source: start is the
// prior watermark (or the epoch default on first run), end is now,
// end-exclusive.
func (t *Tracker) Window(ctx context.Context, sourceID string, now time.Time) (model.Window, error) {
	wm, err := t.store.Get(ctx, sourceID)
	if err != nil {
		return model.Window{}, err
	}

	start := t.epochDefault
	if wm != nil {
		start = wm.LastProcessedAt
	}

	window := model.Window{Start: start, End: now}
	t.logger.Debug("Computed extraction window",
		zap.String("sourceID", sourceID),
		zap.String("window", window.String()))

	return window, nil
}

// Commit records the run outcome. The watermark advances to end only when
// the status advances (success or partial); a failed run leaves the prior
// watermark untouched so the next run re-attempts the same window. The
// destination's upsert idempotence is what makes that re-attempt safe.
func (t *Tracker) Commit(ctx context.Context, sourceID string, end time.Time, status model.RunStatus) error {
	if !status.Advances() {
		t.logger.Info("Watermark unchanged after failed run",
			zap.String("sourceID", sourceID),
			zap.String("status", string(status)))
		return nil
	}

	wm := model.Watermark{
		SourceID:        sourceID,
		LastProcessedAt: end,
		LastRunStatus:   status,
	}
	if err := t.store.Put(ctx, wm); err != nil {
		return err
	}

	t.logger.Info("Watermark advanced",
		zap.String("sourceID", sourceID),
		zap.Time("lastProcessedAt", end),
		zap.String("status", string(status)))

	return nil
}
