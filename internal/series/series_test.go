package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jan2020 = int64(1577836800) // 2020-01-01 00:00:00 UTC

// tenMinuteSeries builds the canonical fixture: 1000 points at 10 minute
// spacing from 2020-01-01, value i mod 6.
func tenMinuteSeries(t *testing.T) *TimeSeries {
	t.Helper()
	s := NewFloat("sensor1", "temp")
	for i := 0; i < 1000; i++ {
		n, err := s.Insert(jan2020+int64(i)*600, 0, Float(float32(i%6)), false)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}
	require.Equal(t, 1000, s.Len())
	return s
}

func TestInsertKeepsOrder(t *testing.T) {
	s := NewFloat("Sensor1", "Temp")
	assert.Equal(t, "sensor1", s.Key())
	assert.Equal(t, "temp", s.Metric())

	for _, ts := range []int64{50, 10, 30, 20, 40} {
		n, err := s.Insert(ts, 0, Float(float32(ts)), false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}
	require.Equal(t, 5, s.Len())
	for i := 1; i < s.Len(); i++ {
		assert.Less(t, s.At(i-1).TS, s.At(i).TS)
	}
}

func TestInsertDuplicates(t *testing.T) {
	s := NewFloat("sensor1", "temp")
	s.Insert(100, 0, Float(1), false)

	n, err := s.Insert(100, 3600, Float(2), false)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "duplicate without overwrite is dropped")
	p, ok := s.AtTS(100)
	require.True(t, ok)
	assert.Equal(t, float32(1), p.Value.Float())
	assert.Equal(t, int32(0), p.Offset)

	n, err = s.Insert(100, 3600, Float(2), true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	p, _ = s.AtTS(100)
	assert.Equal(t, float32(2), p.Value.Float())
	assert.Equal(t, int32(3600), p.Offset)
	assert.Equal(t, 1, s.Len())
}

func TestInsertKindMismatch(t *testing.T) {
	s := NewFloat("sensor1", "temp")
	_, err := s.Insert(1, 0, Dict(map[string]any{"a": 1}), false)
	assert.Error(t, err)
}

func TestInsertTime(t *testing.T) {
	s := NewFloat("sensor1", "temp")
	loc := time.FixedZone("CET", 3600)
	n, err := s.InsertTime(time.Date(2020, 1, 1, 1, 0, 0, 0, loc), Float(4), false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	p := s.At(0)
	assert.Equal(t, jan2020, p.TS)
	assert.Equal(t, int32(3600), p.Offset)
}

func TestBisectAndLookup(t *testing.T) {
	s := tenMinuteSeries(t)
	assert.Equal(t, 0, s.BisectLeft(jan2020))
	assert.Equal(t, 1, s.BisectRight(jan2020))
	assert.Equal(t, 10, s.BisectLeft(jan2020+10*600))
	assert.Equal(t, 1000, s.BisectLeft(jan2020+1000*600))

	_, ok := s.AtTS(jan2020 + 599)
	assert.False(t, ok)

	idx, ok := s.IndexOfTS(jan2020 + 5*600)
	require.True(t, ok)
	assert.Equal(t, 5, idx)
}

func TestNearestIndexOfTS(t *testing.T) {
	s := NewFloat("sensor1", "temp")
	assert.Equal(t, -1, s.NearestIndexOfTS(100))

	for _, ts := range []int64{100, 200, 300} {
		s.Insert(ts, 0, Float(0), false)
	}
	assert.Equal(t, 0, s.NearestIndexOfTS(50))
	assert.Equal(t, 0, s.NearestIndexOfTS(149))
	assert.Equal(t, 0, s.NearestIndexOfTS(150)) // tie prefers earlier
	assert.Equal(t, 1, s.NearestIndexOfTS(151))
	assert.Equal(t, 2, s.NearestIndexOfTS(1000))
}

func TestRemoveTS(t *testing.T) {
	s := NewFloat("sensor1", "temp")
	for _, ts := range []int64{100, 200, 300} {
		s.Insert(ts, 0, Float(0), false)
	}
	assert.True(t, s.RemoveTS(200))
	assert.False(t, s.RemoveTS(200))
	assert.Equal(t, 2, s.Len())
	_, ok := s.AtTS(200)
	assert.False(t, ok)
}

func TestTrim(t *testing.T) {
	s := tenMinuteSeries(t)
	s.TrimRange(jan2020+600, jan2020+5*600)
	require.Equal(t, 5, s.Len())
	tsMin, _ := s.TSMin()
	tsMax, _ := s.TSMax()
	assert.Equal(t, jan2020+600, tsMin)
	assert.Equal(t, jan2020+5*600, tsMax)

	s.TrimNewest(2)
	require.Equal(t, 2, s.Len())
	tsMin, _ = s.TSMin()
	assert.Equal(t, jan2020+4*600, tsMin)

	s.TrimOldest(1)
	require.Equal(t, 1, s.Len())
	tsMax, _ = s.TSMax()
	assert.Equal(t, jan2020+4*600, tsMax)

	s.TrimOldest(5) // no-op when already smaller
	assert.Equal(t, 1, s.Len())
}

func TestTrimRangeInverted(t *testing.T) {
	s := tenMinuteSeries(t)
	s.TrimRange(jan2020+5*600, jan2020+600)
	assert.Equal(t, 0, s.Len())

	// Range entirely outside the data empties it too.
	s = tenMinuteSeries(t)
	s.TrimRange(jan2020-7200, jan2020-3600)
	assert.Equal(t, 0, s.Len())
}

func TestRangeCopies(t *testing.T) {
	s := tenMinuteSeries(t)
	r := s.Range(jan2020+600, jan2020+3*600)
	require.Len(t, r, 3)
	assert.Equal(t, jan2020+600, r[0].TS)
	assert.Equal(t, jan2020+3*600, r[2].TS)

	all := s.All()
	assert.Len(t, all, 1000)
}

func TestHashEquality(t *testing.T) {
	a := tenMinuteSeries(t)
	b := tenMinuteSeries(t)
	assert.True(t, a.Equal(b))

	b.RemoveTS(jan2020)
	assert.False(t, a.Equal(b))

	empty1 := NewFloat("sensor1", "temp")
	empty2 := NewFloat("sensor1", "temp")
	assert.True(t, empty1.Equal(empty2))
	assert.False(t, empty1.Equal(nil))
}

func TestDailyStorageBucketsRoundTrip(t *testing.T) {
	s := tenMinuteSeries(t)
	buckets, err := s.DailyStorageBuckets()
	require.NoError(t, err)
	require.Len(t, buckets, 7)
	for i, b := range buckets {
		assert.Equal(t, jan2020+int64(i)*86400, b.Left)
	}
	assert.Len(t, buckets[0].Items, 144)
	assert.Len(t, buckets[6].Items, 1000-6*144)

	restored := NewFloat("sensor1", "temp")
	for _, b := range buckets {
		for _, item := range b.Items {
			_, err := restored.InsertStorageItem(item.TS, item.Data)
			require.NoError(t, err)
		}
	}
	require.Equal(t, 1000, restored.Len())
	assert.True(t, s.Equal(restored))
	for i := 0; i < 1000; i++ {
		assert.Equal(t, s.At(i), restored.At(i))
	}
}

func TestMonthlyStorageBuckets(t *testing.T) {
	s := NewDict("sensor1", "events")
	s.Insert(jan2020, 0, Dict(map[string]any{"a": "x"}), false)
	s.Insert(jan2020+40*86400, 0, Dict(map[string]any{"a": "y"}), false)

	buckets, err := s.MonthlyStorageBuckets()
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, jan2020, buckets[0].Left)
	assert.Equal(t, int64(1580515200), buckets[1].Left) // 2020-02-01
}
