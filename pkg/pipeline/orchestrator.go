// pkg/pipeline/orchestrator.go
package pipeline

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// Orchestrator runs a set of runners concurrently, one goroutine per
// source. Per-source serialization is the tracker's job; the orchestrator
// only fans out and collects reports.
type Orchestrator struct {
	runners []*Runner
	limit   int
	logger  *zap.Logger
}

// NewOrchestrator groups runners for concurrent execution. limit caps the
// number of sources running at once; zero or negative means no cap.
func NewOrchestrator(runners []*Runner, limit int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		runners: runners,
		limit:   limit,
		logger:  logger.Named("orchestrator"),
	}
}

// RunAll executes every runner and returns all reports sorted by source ID.
// A failed run does not cancel the others; failures surface through each
// report's terminal state.
func (o *Orchestrator) RunAll(ctx context.Context) []*model.RunReport {
	o.logger.Info("Starting runs", zap.Int("sources", len(o.runners)))

	reports := make([]*model.RunReport, 0, len(o.runners))
	var mu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}

	for _, r := range o.runners {
		r := r
		g.Go(func() error {
			report := r.Run(gCtx)
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}

	// Runners never return errors through the group, so Wait only blocks.
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].SourceID < reports[j].SourceID
	})

	failed := 0
	for _, rep := range reports {
		if rep.State == model.RunStateFailed {
			failed++
		}
	}
	o.logger.Info("All runs finished",
		zap.Int("total", len(reports)),
		zap.Int("failed", failed))

	return reports
}
