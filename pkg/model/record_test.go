package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-data/etl-runner/pkg/model"
)

func TestNewRecordRejectsEmptyID(t *testing.T) {
	_, err := model.NewRecord("", map[string]interface{}{"a": 1}, nil)
	require.Error(t, err)
	require.True(t, model.IsMalformedRecord(err))
}

func TestRecordFieldOrderPreserved(t *testing.T) {
	rec, err := model.NewRecord("r1",
		map[string]interface{}{"b": 2, "a": 1, "c": 3},
		[]string{"b", "a", "c"})
	require.NoError(t, err)

	require.Equal(t, []string{"b", "a", "c"}, rec.FieldNames())

	rec.SetField("d", 4)
	require.Equal(t, []string{"b", "a", "c", "d"}, rec.FieldNames())

	rec.DropField("a")
	require.Equal(t, []string{"b", "c", "d"}, rec.FieldNames())
	_, present := rec.Field("a")
	require.False(t, present)
}

func TestRecordIdentityIsIDOnly(t *testing.T) {
	r1, err := model.NewRecord("same", map[string]interface{}{"v": 1}, nil)
	require.NoError(t, err)
	r2, err := model.NewRecord("same", map[string]interface{}{"v": 2}, nil)
	require.NoError(t, err)

	require.True(t, r1.Equal(r2))
	require.False(t, r1.Equal(nil))
}

func TestRecordIssuesAccumulate(t *testing.T) {
	rec, err := model.NewRecord("r1", nil, nil)
	require.NoError(t, err)
	require.True(t, rec.IsValid())

	rec.AddIssue(model.ValidationIssue{Field: "email", Rule: model.RuleNotNull, Message: "missing"})
	rec.AddIssue(model.ValidationIssue{Field: "age", Rule: model.RuleNumericRange, Message: "too big"})

	require.False(t, rec.IsValid())
	require.Len(t, rec.Issues(), 2)
	require.Equal(t, model.RuleNotNull, rec.Issues()[0].Rule)
}

func TestNewBatchRejectsDuplicateIDs(t *testing.T) {
	r1, _ := model.NewRecord("dup", nil, nil)
	r2, _ := model.NewRecord("dup", nil, nil)

	_, err := model.NewBatch(model.Window{}, []*model.Record{r1, r2})
	require.Error(t, err)
	require.True(t, model.IsMalformedRecord(err))
}

func TestWindowEndExclusive(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	w := model.Window{Start: start, End: end}

	require.True(t, w.Contains(start))
	require.True(t, w.Contains(start.Add(time.Hour)))
	require.False(t, w.Contains(end))
	require.False(t, w.Contains(end.Add(time.Second)))
	require.False(t, w.Contains(start.Add(-time.Second)))
}

func TestBatchIDsInOrder(t *testing.T) {
	r1, _ := model.NewRecord("a", nil, nil)
	r2, _ := model.NewRecord("b", nil, nil)
	r3, _ := model.NewRecord("c", nil, nil)

	batch, err := model.NewBatch(model.Window{}, []*model.Record{r1, r2, r3})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, batch.IDs())
	require.Equal(t, 3, batch.Len())
}

func TestRunStatusAdvances(t *testing.T) {
	require.True(t, model.RunStatusSuccess.Advances())
	require.True(t, model.RunStatusPartial.Advances())
	require.False(t, model.RunStatusFailed.Advances())
}

func TestRunStateTerminal(t *testing.T) {
	require.True(t, model.RunStateSucceeded.Terminal())
	require.True(t, model.RunStatePartiallySucceeded.Terminal())
	require.True(t, model.RunStateFailed.Terminal())
	require.False(t, model.RunStateLoading.Terminal())
	require.False(t, model.RunStateIdle.Terminal())
}
