// pkg/model/watermark.go
package model

import "time"

// RunStatus is the outcome of a run as seen by the watermark tracker.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// Advances reports whether a run ending with this status moves the watermark
// forward. Rejected records in a partial run count as processed, so both
// success and partial advance; a failed run leaves the window pending.
func (s RunStatus) Advances() bool {
	return s == RunStatusSuccess || s == RunStatusPartial
}

// Watermark is the high-water mark for one source: everything strictly
// before LastProcessedAt has been processed. One row per source, owned
// exclusively by the tracker and updated only after a committed load.
type Watermark struct {
	SourceID        string    `db:"source_id"`
	LastProcessedAt time.Time `db:"last_processed_at"`
	LastRunStatus   RunStatus `db:"last_run_status"`
}
