package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/connector"
	"github.com/meridian-data/etl-runner/pkg/model"
)

func TestExtractorAssignsGeneratedIDsWithoutIDField(t *testing.T) {
	source := connector.NewMemorySource([]connector.RawRow{
		{Fields: map[string]interface{}{"name": "a"}, Order: []string{"name"}},
		{Fields: map[string]interface{}{"name": "b"}, Order: []string{"name"}},
	}, "updated_at")

	ex := NewExtractor(source, "", zap.NewNop())
	batch, rejected, err := ex.Extract(context.Background(), model.Window{End: testNow})
	require.NoError(t, err)

	require.Empty(t, rejected)
	require.Equal(t, 2, batch.Len())
	require.NotEqual(t, batch.Records[0].ID(), batch.Records[1].ID())
	require.NotEmpty(t, batch.Records[0].ID())
}

func TestExtractorRoutesMalformedIDsToRejected(t *testing.T) {
	source := connector.NewMemorySource([]connector.RawRow{
		{Fields: map[string]interface{}{"id": "1"}, Order: []string{"id"}},
		{Fields: map[string]interface{}{"id": nil}, Order: []string{"id"}},
		{Fields: map[string]interface{}{"id": "1"}, Order: []string{"id"}},
	}, "updated_at")

	ex := NewExtractor(source, "id", zap.NewNop())
	batch, rejected, err := ex.Extract(context.Background(), model.Window{End: testNow})
	require.NoError(t, err)

	require.Equal(t, 1, batch.Len())
	require.Equal(t, "1", batch.Records[0].ID())

	require.Len(t, rejected, 2)
	require.Equal(t, model.RuleNotNull, rejected[0].Issues()[0].Rule)
	require.Equal(t, model.RuleUniqueKey, rejected[1].Issues()[0].Rule)
	// Rejected records get generated IDs so they stay addressable in
	// the report.
	require.NotEmpty(t, rejected[0].ID())
	require.NotEqual(t, "1", rejected[1].ID())
}

func TestLoaderRejectsUncommittedResult(t *testing.T) {
	loader := NewLoader(&uncommittedDest{}, zap.NewNop())

	rec, err := model.NewRecord("1", nil, nil)
	require.NoError(t, err)
	batch, err := model.NewBatch(model.Window{}, []*model.Record{rec})
	require.NoError(t, err)

	_, err = loader.Load(context.Background(), batch)
	require.Error(t, err)
	require.True(t, model.IsConnectorError(err))
}

type uncommittedDest struct{}

func (d *uncommittedDest) Name() string { return "uncommitted-dest" }

func (d *uncommittedDest) UpsertBatch(context.Context, *model.Batch) (model.LoadResult, error) {
	return model.LoadResult{Committed: false}, nil
}

func (d *uncommittedDest) Close() error { return nil }
