// pkg/pipeline/stage.go
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/connector"
	"github.com/meridian-data/etl-runner/pkg/model"
)

// Extractor turns a source's raw rows into a batch of records with stable
// IDs. Rows with a missing or duplicate record ID never fail the run: they
// are given generated IDs, annotated with an issue on the ID field, and
// routed straight to the rejected output.
type Extractor struct {
	source  connector.Source
	idField string
	logger  *zap.Logger
}

// NewExtractor creates the extract stage over a source connector.
func NewExtractor(source connector.Source, idField string, logger *zap.Logger) *Extractor {
	return &Extractor{
		source:  source,
		idField: idField,
		logger:  logger.Named("extract"),
	}
}

// Extract fetches the window's rows and assembles the batch. The returned
// rejected records carry their malformed-ID issues and bypass the rest of
// the pipeline.
func (e *Extractor) Extract(ctx context.Context, window model.Window) (*model.Batch, []*model.Record, error) {
	rows, err := e.source.Fetch(ctx, window)
	if err != nil {
		return nil, nil, err
	}

	records := make([]*model.Record, 0, len(rows))
	rejected := make([]*model.Record, 0)
	seen := make(map[string]struct{}, len(rows))

	for i, row := range rows {
		id, issue := e.recordID(row, seen)

		rec, err := model.NewRecord(id, row.Fields, row.Order)
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}

		if issue != nil {
			rec.AddIssue(*issue)
			rejected = append(rejected, rec)
			continue
		}

		seen[id] = struct{}{}
		records = append(records, rec)
	}

	batch, err := model.NewBatch(window, records)
	if err != nil {
		return nil, nil, err
	}

	e.logger.Info("Extracted batch",
		zap.String("source", e.source.Name()),
		zap.String("window", window.String()),
		zap.Int("records", batch.Len()),
		zap.Int("malformed", len(rejected)))

	return batch, rejected, nil
}

// recordID resolves the stable ID for a raw row. A missing ID is a not_null
// failure on the ID field; a duplicate is a unique_key failure. Either way
// the record gets a generated ID so it can exist and be reported.
func (e *Extractor) recordID(row connector.RawRow, seen map[string]struct{}) (string, *model.ValidationIssue) {
	raw, present := row.Fields[e.idField]
	if !present || model.IsNull(raw) {
		if e.idField == "" {
			// No natural key configured; every record gets a generated ID.
			return uuid.New().String(), nil
		}
		return uuid.New().String(), &model.ValidationIssue{
			Field:   e.idField,
			Rule:    model.RuleNotNull,
			Message: "record ID field is missing or null",
		}
	}

	id := model.FormatValue(raw)
	if _, dup := seen[id]; dup {
		return uuid.New().String(), &model.ValidationIssue{
			Field:   e.idField,
			Rule:    model.RuleUniqueKey,
			Message: fmt.Sprintf("duplicate record ID %q within batch", id),
		}
	}

	return id, nil
}

// Loader is the load stage over a destination connector.
type Loader struct {
	dest   connector.Destination
	logger *zap.Logger
}

// NewLoader creates the load stage.
func NewLoader(dest connector.Destination, logger *zap.Logger) *Loader {
	return &Loader{
		dest:   dest,
		logger: logger.Named("load"),
	}
}

// Load upserts the valid batch. A write that does not commit is an error:
// partial writes are not permitted, so an uncommitted result means the
// destination rejected the whole batch.
func (l *Loader) Load(ctx context.Context, batch *model.Batch) (model.LoadResult, error) {
	result, err := l.dest.UpsertBatch(ctx, batch)
	if err != nil {
		return model.LoadResult{}, err
	}
	if !result.Committed {
		return model.LoadResult{}, model.NewConnectorError(l.dest.Name(), "upsert_batch",
			fmt.Errorf("destination did not commit batch of %d records", batch.Len()))
	}

	l.logger.Info("Loaded batch",
		zap.String("destination", l.dest.Name()),
		zap.Int("records", result.RecordsLoaded))

	return result, nil
}
