// pkg/model/report.go
package model

import (
	"time"
)

// RunState tracks the runner's state machine for one pipeline execution.
type RunState string

const (
	RunStateIdle               RunState = "idle"
	RunStateExtracting         RunState = "extracting"
	RunStateTransforming       RunState = "transforming"
	RunStateValidating         RunState = "validating"
	RunStateLoading            RunState = "loading"
	RunStateSucceeded          RunState = "succeeded"
	RunStatePartiallySucceeded RunState = "partially_succeeded"
	RunStateFailed             RunState = "failed"
)

// Terminal reports whether the state is one of the three terminal states.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateSucceeded, RunStatePartiallySucceeded, RunStateFailed:
		return true
	default:
		return false
	}
}

// Status maps a terminal run state to the watermark status it commits with.
func (s RunState) Status() RunStatus {
	switch s {
	case RunStateSucceeded:
		return RunStatusSuccess
	case RunStatePartiallySucceeded:
		return RunStatusPartial
	default:
		return RunStatusFailed
	}
}

// ErrorEntry records one surfaced failure or retry during a run.
type ErrorEntry struct {
	Timestamp time.Time
	Stage     string
	Attempt   int
	Message   string
}

// LoadResult is the outcome of one destination write. Committed is false
// and RecordsLoaded zero when the write failed atomically.
type LoadResult struct {
	RecordsLoaded int
	Committed     bool
}

// RunReport is the sole externally consumed artifact of a run. It is created
// fresh per run, owned by the runner, and immutable once the run ends.
type RunReport struct {
	RunID            string
	SourceID         string
	Window           Window
	State            RunState
	StartedAt        time.Time
	EndedAt          time.Time
	Duration         time.Duration
	RecordsExtracted int
	RecordsValid     int
	RecordsInvalid   int
	RecordsLoaded    int
	Rejected         []*Record
	Errors           []ErrorEntry
}

// NewRunReport initializes a report for one run of a source.
func NewRunReport(runID, sourceID string, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		SourceID:  sourceID,
		State:     RunStateIdle,
		StartedAt: startedAt,
		Errors:    make([]ErrorEntry, 0),
	}
}

// AddError appends an error entry in occurrence order.
func (r *RunReport) AddError(stage string, attempt int, ts time.Time, err error) {
	r.Errors = append(r.Errors, ErrorEntry{
		Timestamp: ts,
		Stage:     stage,
		Attempt:   attempt,
		Message:   err.Error(),
	})
}

// Complete marks the run finished in the given terminal state.
func (r *RunReport) Complete(state RunState, endedAt time.Time) {
	r.State = state
	r.EndedAt = endedAt
	r.Duration = endedAt.Sub(r.StartedAt)
}

// ErrorCount returns the number of recorded error entries.
func (r *RunReport) ErrorCount() int {
	return len(r.Errors)
}
