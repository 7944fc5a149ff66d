// pkg/tracker/store.go
package tracker

import (
	"context"
	"sync"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// WatermarkStore persists one watermark row per source. Implementations are
// keyed stores injected into the tracker; nothing else reads or writes
// watermarks.
type WatermarkStore interface {
	// Get returns the watermark for a source, or nil when the source has
	// never committed a run.
	Get(ctx context.Context, sourceID string) (*model.Watermark, error)

	// Put inserts or replaces the watermark for its source.
	Put(ctx context.Context, wm model.Watermark) error
}

// MemoryStore is an in-memory watermark store for tests and single-process
// dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	marks map[string]model.Watermark
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{marks: make(map[string]model.Watermark)}
}

// Get returns the watermark for a source, or nil when absent.
func (s *MemoryStore) Get(_ context.Context, sourceID string) (*model.Watermark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wm, ok := s.marks[sourceID]
	if !ok {
		return nil, nil
	}
	return &wm, nil
}

// Put inserts or replaces the watermark for its source.
func (s *MemoryStore) Put(_ context.Context, wm model.Watermark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.marks[wm.SourceID] = wm
	return nil
}
