package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattledb/cattledb/internal/series"
)

const jan2020 int64 = 1577836800

// tenMinutePoints builds 1000 points at 10 minute spacing from 2020-01-01
// with value i mod 6.
func tenMinutePoints(t *testing.T, metric string) *series.TimeSeries {
	t.Helper()
	ts := series.NewFloat("dev1", metric)
	for i := 0; i < 1000; i++ {
		_, err := ts.Insert(jan2020+int64(i)*600, 0, series.Float(float32(i%6)), false)
		require.NoError(t, err)
	}
	return ts
}

func TestTimeSeriesRoundTrip(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	n, err := conn.TimeSeries.Insert(ctx, tenMinutePoints(t, "ph"))
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	lastTS := jan2020 + 999*600
	got, err := conn.TimeSeries.GetSingle(ctx, "dev1", "ph", jan2020, lastTS)
	require.NoError(t, err)
	require.Equal(t, 1000, got.Len())
	for i := 0; i < 1000; i++ {
		p := got.At(i)
		assert.Equal(t, jan2020+int64(i)*600, p.TS)
		assert.Equal(t, float32(i%6), p.Value.Float())
	}

	// Daily mean aggregation over the read-back series: six full days of
	// 2.5 and a partial seventh day (136 points starting at value 0).
	agg, err := got.Aggregate(series.SpanDaily, series.AggMean, series.ModeUTC)
	require.NoError(t, err)
	require.Len(t, agg, 7)
	for i := 0; i < 6; i++ {
		assert.Equal(t, jan2020+int64(i)*86400, agg[i].TS)
		assert.Equal(t, float32(2.5), agg[i].Value.Float())
	}
	assert.Equal(t, float32(336.0/136.0), agg[6].Value.Float())
}

func TestTimeSeriesGetSubRange(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.TimeSeries.Insert(ctx, tenMinutePoints(t, "ph"))
	require.NoError(t, err)

	from := jan2020 + 86400
	to := jan2020 + 2*86400 - 1
	got, err := conn.TimeSeries.GetSingle(ctx, "dev1", "ph", from, to)
	require.NoError(t, err)
	assert.Equal(t, 144, got.Len())
	first, _ := got.First()
	last, _ := got.Last()
	assert.Equal(t, from, first.TS)
	assert.LessOrEqual(t, last.TS, to)
}

func TestTimeSeriesGetLastValue(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.TimeSeries.Insert(ctx, tenMinutePoints(t, "ph"))
	require.NoError(t, err)

	last, err := conn.TimeSeries.GetLastValue(ctx, "dev1", "ph")
	require.NoError(t, err)
	require.Equal(t, 1, last.Len())
	p := last.At(0)
	assert.Equal(t, jan2020+999*600, p.TS)
	assert.Equal(t, float32(999%6), p.Value.Float())

	// Bounded to the first day only.
	bounded, err := conn.TimeSeries.GetLastValueInRange(ctx, "dev1", "ph", jan2020, jan2020+86399)
	require.NoError(t, err)
	require.Equal(t, 1, bounded.Len())
	assert.Equal(t, jan2020+143*600, bounded.At(0).TS)

	// No data for this key.
	empty, err := conn.TimeSeries.GetLastValue(ctx, "devx", "ph")
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestTimeSeriesInsertGuards(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.TimeSeries.Insert(ctx, series.NewFloat("dev1", "ph"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	unknown := series.NewFloat("dev1", "nosuchmetric")
	_, err = unknown.Insert(jan2020, 0, series.Float(1), false)
	require.NoError(t, err)
	_, err = conn.TimeSeries.Insert(ctx, unknown)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	short := series.NewFloat("d", "ph")
	_, err = short.Insert(jan2020, 0, series.Float(1), false)
	require.NoError(t, err)
	_, err = conn.TimeSeries.Insert(ctx, short)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTimeSeriesGetGuards(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.TimeSeries.Get(ctx, "dev1", []string{"ph"}, jan2020, jan2020-1)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = conn.TimeSeries.Get(ctx, "dev1", []string{"ph"}, jan2020, jan2020+401*86400)
	assert.ErrorIs(t, err, ErrRangeTooLarge)

	_, err = conn.TimeSeries.Get(ctx, "dev1", nil, jan2020, jan2020+1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTimeSeriesDictMetric(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	ts := series.NewDict("dev1", "state")
	for i := 0; i < 10; i++ {
		_, err := ts.Insert(jan2020+int64(i)*3600, 0,
			series.Dict(map[string]any{"mode": "on"}), false)
		require.NoError(t, err)
	}
	_, err := conn.TimeSeries.Insert(ctx, ts)
	require.NoError(t, err)

	got, err := conn.TimeSeries.GetSingle(ctx, "dev1", "state", jan2020, jan2020+86400)
	require.NoError(t, err)
	require.Equal(t, 10, got.Len())
	assert.Equal(t, map[string]any{"mode": "on"}, got.At(0).Value.Dict())
}

func TestTimeSeriesGetAllMetrics(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.TimeSeries.Insert(ctx, tenMinutePoints(t, "ph"))
	require.NoError(t, err)
	temp := series.NewFloat("dev1", "temperature")
	_, err = temp.Insert(jan2020+60, 0, series.Float(20.5), false)
	require.NoError(t, err)
	_, err = conn.TimeSeries.Insert(ctx, temp)
	require.NoError(t, err)

	all, err := conn.TimeSeries.GetAllMetrics(ctx, "dev1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	byMetric := map[string]int{}
	for _, ts := range all {
		byMetric[ts.Metric()] = ts.Len()
	}
	assert.Equal(t, 1000, byMetric["ph"])
	assert.Equal(t, 1, byMetric["temperature"])

	ranged, err := conn.TimeSeries.GetAllMetricsInRange(ctx, "dev1", jan2020, jan2020+600)
	require.NoError(t, err)
	byMetric = map[string]int{}
	for _, ts := range ranged {
		byMetric[ts.Metric()] = ts.Len()
	}
	assert.Equal(t, 2, byMetric["ph"])
	assert.Equal(t, 1, byMetric["temperature"])
}

func TestTimeSeriesDelete(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.TimeSeries.Insert(ctx, tenMinutePoints(t, "temperature"))
	require.NoError(t, err)

	rows, err := conn.TimeSeries.Delete(ctx, "dev1", []string{"temperature"}, jan2020, jan2020+86400)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	got, err := conn.TimeSeries.GetSingle(ctx, "dev1", "temperature", jan2020, jan2020+999*600)
	require.NoError(t, err)
	// The first two day buckets are gone.
	first, ok := got.First()
	require.True(t, ok)
	assert.GreaterOrEqual(t, first.TS, jan2020+2*86400)
}

func TestTimeSeriesDeleteRefused(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.TimeSeries.Insert(ctx, tenMinutePoints(t, "ph"))
	require.NoError(t, err)

	// "ph" is not flagged deletable; nothing may be touched.
	_, err = conn.TimeSeries.Delete(ctx, "dev1", []string{"ph"}, jan2020, jan2020+999*600)
	assert.ErrorIs(t, err, ErrDeleteNotAllowed)

	got, err := conn.TimeSeries.GetSingle(ctx, "dev1", "ph", jan2020, jan2020+999*600)
	require.NoError(t, err)
	assert.Equal(t, 1000, got.Len())
}

func TestTimeSeriesOverwriteSemantics(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	ts := series.NewFloat("dev1", "temperature")
	_, err := ts.Insert(jan2020, 0, series.Float(1), false)
	require.NoError(t, err)
	_, err = conn.TimeSeries.Insert(ctx, ts)
	require.NoError(t, err)

	// A later write to the same cell wins in storage.
	ts2 := series.NewFloat("dev1", "temperature")
	_, err = ts2.Insert(jan2020, 0, series.Float(2), false)
	require.NoError(t, err)
	_, err = conn.TimeSeries.Insert(ctx, ts2)
	require.NoError(t, err)

	got, err := conn.TimeSeries.GetSingle(ctx, "dev1", "temperature", jan2020, jan2020+1)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, float32(2), got.At(0).Value.Float())
}
