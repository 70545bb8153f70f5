package localstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattledb/cattledb/internal/series"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	_, err := New(dir)
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetTimeSeriesEmptyFile(t *testing.T) {
	s := setupTestStore(t)

	ts, err := s.GetTimeSeries("dev1")
	require.NoError(t, err)
	assert.Equal(t, "dev1", ts.Key())
	assert.Equal(t, "multi", ts.Metric())
	assert.Equal(t, 0, ts.Len())

	path, err := s.FileForKey("dev1", false)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestStoreAndReadBack(t *testing.T) {
	s := setupTestStore(t)

	ts := series.NewDict("dev1", "multi")
	for i := 0; i < 10; i++ {
		_, err := ts.Insert(1577836800+int64(i)*600, 0,
			series.Dict(map[string]any{"ph": 6.5 + float64(i)/10, "temperature": 4.0}), false)
		require.NoError(t, err)
	}
	require.NoError(t, s.StoreTimeSeries(ts))

	got, err := s.GetTimeSeries("dev1")
	require.NoError(t, err)
	require.Equal(t, 10, got.Len())
	assert.Equal(t, []string{"ph", "temperature"}, got.Columns())
	assert.Equal(t, 6.5, got.At(0).Value.Dict()["ph"])
	assert.Equal(t, 4.0, got.At(9).Value.Dict()["temperature"])
}

func TestInsertMeasurementMergesColumns(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.InsertMeasurement("dev1", 1577836800,
		map[string]float64{"ph": 6.5}))
	require.NoError(t, s.InsertMeasurement("dev1", 1577837400,
		map[string]float64{"ph": 6.6, "act": 1}))

	got, err := s.GetTimeSeries("dev1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, []string{"act", "ph"}, got.Columns())
	assert.Equal(t, 6.5, got.At(0).Value.Dict()["ph"])
	assert.NotContains(t, got.At(0).Value.Dict(), "act")
	assert.Equal(t, 1.0, got.At(1).Value.Dict()["act"])
}

func TestInsertMeasurementOverwritesSameTimestamp(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.InsertMeasurement("dev1", 1577836800,
		map[string]float64{"ph": 6.5}))
	require.NoError(t, s.InsertMeasurement("dev1", 1577836800,
		map[string]float64{"ph": 7.0}))

	got, err := s.GetTimeSeries("dev1")
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, 7.0, got.At(0).Value.Dict()["ph"])
}

func TestReadRejectsBadHeader(t *testing.T) {
	s := setupTestStore(t)
	file, err := s.FileForKey("dev1", true)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file, []byte("time,ph\n1,6.5\n"), 0o644))

	_, err = s.GetTimeSeries("dev1")
	assert.Error(t, err)
}

func TestReadSkipsEmptyCells(t *testing.T) {
	s := setupTestStore(t)
	file, err := s.FileForKey("dev1", true)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(file,
		[]byte("ts,act,ph\n1577836800,,6.5\n1577837400,1,\n"), 0o644))

	got, err := s.GetTimeSeries("dev1")
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.NotContains(t, got.At(0).Value.Dict(), "act")
	assert.Equal(t, 6.5, got.At(0).Value.Dict()["ph"])
	assert.Equal(t, 1.0, got.At(1).Value.Dict()["act"])
	assert.NotContains(t, got.At(1).Value.Dict(), "ph")
}
