// pkg/connector/memory.go
package connector

import (
	"context"
	"sync"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// MemorySource serves a fixed set of rows filtered by the extraction window
// on a timestamp field. Used for dry runs and tests; Fetch is trivially
// deterministic for a fixed window.
type MemorySource struct {
	rows           []RawRow
	timestampField string
}

// NewMemorySource creates a source over a fixed row set.
func NewMemorySource(rows []RawRow, timestampField string) *MemorySource {
	return &MemorySource{rows: rows, timestampField: timestampField}
}

// Name identifies the connector.
func (s *MemorySource) Name() string {
	return "memory-source"
}

// Fetch returns rows whose timestamp falls in the window. Rows without a
// parsable timestamp pass through, mirroring the file-based sources.
func (s *MemorySource) Fetch(_ context.Context, window model.Window) ([]RawRow, error) {
	result := make([]RawRow, 0, len(s.rows))
	for _, row := range s.rows {
		raw, ok := row.Fields[s.timestampField]
		if ok {
			if ts, parsed := model.AsTime(raw); parsed && !window.Contains(ts) {
				continue
			}
		}
		result = append(result, row)
	}
	return result, nil
}

// Close is a no-op.
func (s *MemorySource) Close() error {
	return nil
}

// MemoryDestination stores upserted records keyed by record ID. Used for dry
// runs and tests. Writes are all-or-nothing per batch under a lock.
type MemoryDestination struct {
	mu      sync.Mutex
	records map[string]*model.Record
	order   []string
}

// NewMemoryDestination creates an empty in-memory destination.
func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{records: make(map[string]*model.Record)}
}

// Name identifies the connector.
func (d *MemoryDestination) Name() string {
	return "memory-destination"
}

// UpsertBatch inserts or replaces every record in the batch atomically.
func (d *MemoryDestination) UpsertBatch(_ context.Context, batch *model.Batch) (model.LoadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, rec := range batch.Records {
		if _, exists := d.records[rec.ID()]; !exists {
			d.order = append(d.order, rec.ID())
		}
		d.records[rec.ID()] = rec
	}

	return model.LoadResult{RecordsLoaded: batch.Len(), Committed: true}, nil
}

// Get returns the stored record for an ID, if any.
func (d *MemoryDestination) Get(id string) (*model.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	return rec, ok
}

// Len returns the number of distinct records stored.
func (d *MemoryDestination) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

// Close is a no-op.
func (d *MemoryDestination) Close() error {
	return nil
}
