package connector

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/config"
	"github.com/meridian-data/etl-runner/pkg/model"
)

const csvFixture = `id,email,updated_at
1,a@example.com,2024-05-01T00:00:00Z
2,b@example.com,2024-06-15T00:00:00Z
3,,2024-05-20T00:00:00Z
4,d@example.com,not-a-date
`

var csvWindow = model.Window{
	Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVSourceFetchFiltersWindow(t *testing.T) {
	path := writeCSV(t, "data.csv", csvFixture)
	src := NewCSVSource(&config.CSVSourceConfig{Path: path}, "updated_at", zap.NewNop())
	defer src.Close()

	rows, err := src.Fetch(context.Background(), csvWindow)
	require.NoError(t, err)

	// Row 2 is outside the window; row 4 has an unparsable timestamp and
	// passes through for the validator to flag.
	require.Len(t, rows, 3)
	require.Equal(t, "1", rows[0].Fields["id"])
	require.Equal(t, "3", rows[1].Fields["id"])
	require.Equal(t, "4", rows[2].Fields["id"])
	require.Equal(t, []string{"id", "email", "updated_at"}, rows[0].Order)
}

func TestCSVSourceFetchGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(csvFixture))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	src := NewCSVSource(&config.CSVSourceConfig{Path: path}, "updated_at", zap.NewNop())
	rows, err := src.Fetch(context.Background(), csvWindow)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource(&config.CSVSourceConfig{Path: "/nonexistent/data.csv"}, "updated_at", zap.NewNop())
	_, err := src.Fetch(context.Background(), csvWindow)
	require.Error(t, err)
	require.True(t, model.IsConnectorError(err))
}

func TestCSVSourceShortRowPadsNil(t *testing.T) {
	// The csv package rejects ragged rows by default; a trailing empty
	// column is the realistic short-value case.
	path := writeCSV(t, "data.csv", "id,email,updated_at\n1,,\n")
	src := NewCSVSource(&config.CSVSourceConfig{Path: path}, "updated_at", zap.NewNop())

	rows, err := src.Fetch(context.Background(), csvWindow)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "", rows[0].Fields["email"])
}

func TestCSVSourceHonorsCancellation(t *testing.T) {
	path := writeCSV(t, "data.csv", csvFixture)
	src := NewCSVSource(&config.CSVSourceConfig{Path: path}, "updated_at", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx, csvWindow)
	require.Error(t, err)
	require.True(t, model.IsConnectorError(err))
}
