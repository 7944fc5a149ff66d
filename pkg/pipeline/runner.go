// pkg/pipeline/runner.go
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/model"
	"github.com/meridian-data/etl-runner/pkg/rules"
	"github.com/meridian-data/etl-runner/pkg/tracker"
)

// Runner drives one pipeline execution end to end through the fixed stage
// order Extract -> Transform -> Validate -> Load, handling retries on the
// I/O stages and producing a RunReport. A RunReport is produced even when
// the run fails.
type Runner struct {
	sourceID    string
	extractor   *Extractor
	transformer *Transformer
	validator   *rules.Validator
	loader      *Loader
	tracker     *tracker.Tracker
	policy      RetryPolicy
	runTimeout  time.Duration
	logger      *zap.Logger
	now         func() time.Time

	stateMu sync.RWMutex
	state   model.RunState
}

// NewRunner wires the four stages into a runner for one source.
func NewRunner(
	sourceID string,
	extractor *Extractor,
	transformer *Transformer,
	validator *rules.Validator,
	loader *Loader,
	trk *tracker.Tracker,
	policy RetryPolicy,
	runTimeout time.Duration,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		sourceID:    sourceID,
		extractor:   extractor,
		transformer: transformer,
		validator:   validator,
		loader:      loader,
		tracker:     trk,
		policy:      policy,
		runTimeout:  runTimeout,
		logger:      logger.Named("runner").With(zap.String("sourceID", sourceID)),
		now:         time.Now,
		state:       model.RunStateIdle,
	}
}

// WithClock overrides the runner's time source and returns the runner.
// The clock supplies both the extraction window end and the validation
// reference now, keeping runs deterministic under test.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// State returns the runner's current state.
func (r *Runner) State() model.RunState {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runner) setState(state model.RunState) {
	r.stateMu.Lock()
	prev := r.state
	r.state = state
	r.stateMu.Unlock()

	if prev != state {
		r.logger.Info("Run state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(state)))
	}
}

// Run executes one pipeline run for the runner's source. The per-source
// advisory lock is held for the whole run so concurrent runs for the same
// source serialize; runs for different sources proceed independently.
func (r *Runner) Run(ctx context.Context) *model.RunReport {
	report := model.NewRunReport(uuid.New().String(), r.sourceID, r.now())
	r.setState(model.RunStateIdle)

	release := r.tracker.Acquire(r.sourceID)
	defer release()

	now := r.now()
	window, err := r.tracker.Window(ctx, r.sourceID, now)
	if err != nil {
		report.AddError("watermark", 0, r.now(), err)
		return r.fail(report)
	}
	report.Window = window

	// The run-scoped timeout bounds Extract and Load, the only stages
	// that block on external I/O. Transform and Validate are pure
	// in-memory computation with no suspension points.
	runCtx, cancel := context.WithTimeout(ctx, r.runTimeout)
	defer cancel()

	// Extract
	r.setState(model.RunStateExtracting)
	var batch *model.Batch
	var malformed []*model.Record
	err = r.withRetry(runCtx, "extract", report, func(c context.Context) error {
		var exErr error
		batch, malformed, exErr = r.extractor.Extract(c, window)
		return exErr
	})
	if err != nil {
		return r.fail(report)
	}
	report.RecordsExtracted = batch.Len() + len(malformed)

	// Transform
	r.setState(model.RunStateTransforming)
	batch = r.transformer.Apply(batch)

	// Validate: the window end doubles as the run's reference now, so
	// not_future_date never depends on wall-clock drift mid-run.
	r.setState(model.RunStateValidating)
	valid, invalid := r.validator.Validate(batch, window.End)

	report.RecordsValid = valid.Len()
	report.RecordsInvalid = invalid.Len() + len(malformed)
	report.Rejected = append(malformed, invalid.Records...)

	// Load: invalid records never reach the destination.
	r.setState(model.RunStateLoading)
	var result model.LoadResult
	err = r.withRetry(runCtx, "load", report, func(c context.Context) error {
		var ldErr error
		result, ldErr = r.loader.Load(c, valid)
		return ldErr
	})
	if err != nil {
		return r.fail(report)
	}
	report.RecordsLoaded = result.RecordsLoaded

	// Terminal state and watermark commit. A partial run advances the
	// watermark: rejected records are processed, not pending.
	state := model.RunStateSucceeded
	if report.RecordsInvalid > 0 {
		state = model.RunStatePartiallySucceeded
	}

	if err := r.tracker.Commit(ctx, r.sourceID, window.End, state.Status()); err != nil {
		// The load committed; a watermark write failure only means the
		// next run re-attempts this window, which the upsert makes safe.
		report.AddError("watermark", 0, r.now(), err)
		r.logger.Warn("Failed to commit watermark", zap.Error(err))
	}

	r.setState(state)
	report.Complete(state, r.now())

	r.logger.Info("Run completed",
		zap.String("runID", report.RunID),
		zap.String("state", string(state)),
		zap.Int("extracted", report.RecordsExtracted),
		zap.Int("valid", report.RecordsValid),
		zap.Int("invalid", report.RecordsInvalid),
		zap.Int("loaded", report.RecordsLoaded),
		zap.Duration("duration", report.Duration))

	return report
}

// fail finalizes a run in the Failed state, leaving the watermark
// unadvanced so the next run re-attempts the same window.
func (r *Runner) fail(report *model.RunReport) *model.RunReport {
	r.setState(model.RunStateFailed)
	report.Complete(model.RunStateFailed, r.now())

	r.logger.Warn("Run failed",
		zap.String("runID", report.RunID),
		zap.Int("errors", report.ErrorCount()))

	return report
}

// withRetry runs an I/O stage under the retry policy. Every failed attempt
// is recorded as an ErrorEntry. Configuration errors are fatal immediately
// and never retried.
func (r *Runner) withRetry(ctx context.Context, stage string, report *model.RunReport, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		report.AddError(stage, attempt, r.now(), err)

		if model.IsConfigurationError(err) {
			r.logger.Error("Stage configuration error",
				zap.String("stage", stage),
				zap.Error(err))
			return err
		}

		if attempt >= r.policy.MaxRetries {
			r.logger.Error("Stage failed after exhausting retries",
				zap.String("stage", stage),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return err
		}

		backoff := r.policy.Backoff(attempt)
		r.logger.Warn("Stage failed, retrying",
			zap.String("stage", stage),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if sleepErr := sleep(ctx, backoff); sleepErr != nil {
			report.AddError(stage, attempt+1, r.now(), sleepErr)
			return sleepErr
		}
	}
}
