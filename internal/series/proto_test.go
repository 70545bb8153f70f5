package series

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattledb/cattledb/internal/cdbpb"
)

func TestFloatProtoRoundTrip(t *testing.T) {
	s := tenMinuteSeries(t)
	p, err := s.ToFloatProto()
	require.NoError(t, err)
	assert.Equal(t, "sensor1", p.Key)
	assert.Equal(t, "temp", p.Metric)
	require.Len(t, p.Timestamps, 1000)

	restored := FromFloatProto(p)
	require.Equal(t, 1000, restored.Len())
	assert.True(t, s.Equal(restored))
	for i := 0; i < 1000; i++ {
		assert.Equal(t, s.At(i), restored.At(i))
	}

	_, err = NewDict("a", "b").ToFloatProto()
	assert.Error(t, err)
}

func TestFloatProtoBytesRoundTrip(t *testing.T) {
	s := NewFloat("sensor1", "temp")
	s.Insert(jan2020, -7200, Float(12.25), false)
	p, err := s.ToFloatProto()
	require.NoError(t, err)

	var out cdbpb.FloatTimeSeries
	require.NoError(t, out.Unmarshal(p.Marshal()))
	restored := FromFloatProto(&out)
	assert.Equal(t, s.At(0), restored.At(0))
}

func TestDictProtoRoundTrip(t *testing.T) {
	s := NewDict("sensor1", "state")
	s.Insert(jan2020, 3600, Dict(map[string]any{"mode": "auto", "level": 3.0}), false)
	s.Insert(jan2020+600, 3600, Dict(map[string]any{"mode": "manual"}), false)

	p, err := s.ToDictProto()
	require.NoError(t, err)
	require.Len(t, p.Values, 2)
	// Keys are sorted within a dictionary.
	assert.Equal(t, "level", p.Values[0].Pairs[0].Key)
	assert.Equal(t, "mode", p.Values[0].Pairs[1].Key)

	restored, err := FromDictProto(p)
	require.NoError(t, err)
	require.Equal(t, 2, restored.Len())
	assert.Equal(t, "auto", restored.At(0).Value.Dict()["mode"])
	assert.Equal(t, 3.0, restored.At(0).Value.Dict()["level"])
	assert.Equal(t, int32(3600), restored.At(0).Offset)

	_, err = NewFloat("a", "bc").ToDictProto()
	assert.Error(t, err)
}

func TestEventListProtoRoundTrip(t *testing.T) {
	e := NewEventList("device-1", "upload")
	assert.Equal(t, "upload", e.Name())
	e.Insert(jan2020, 0, Dict(map[string]any{"size": 1024.0}), false)

	p, err := e.ToProto()
	require.NoError(t, err)
	assert.Equal(t, "upload", p.Name)

	restored, err := EventListFromProto(p)
	require.NoError(t, err)
	require.Equal(t, 1, restored.Len())
	assert.Equal(t, 1024.0, restored.At(0).Value.Dict()["size"])
}

func TestMergeFloatSeries(t *testing.T) {
	temp := NewFloat("sensor1", "temp")
	ph := NewFloat("sensor1", "ph")
	for i := 0; i < 3; i++ {
		temp.Insert(jan2020+int64(i)*600, 0, Float(float32(20+i)), false)
	}
	ph.Insert(jan2020, 0, Float(6.5), false)
	ph.Insert(jan2020+1200, 0, Float(6.6), false)

	merged, err := MergeFloatSeries("", 3600, temp, ph)
	require.NoError(t, err)
	assert.Equal(t, "sensor1", merged.Key())
	assert.Equal(t, "multi", merged.Metric())
	assert.Equal(t, []string{"temp", "ph"}, merged.Columns())
	require.Equal(t, 3, merged.Len())

	first := merged.At(0)
	assert.Equal(t, jan2020, first.TS)
	assert.Equal(t, int32(3600), first.Offset)
	assert.Equal(t, 20.0, first.Value.Dict()["temp"])
	assert.Equal(t, 6.5, first.Value.Dict()["ph"])

	second := merged.At(1)
	_, hasPH := second.Value.Dict()["ph"]
	assert.False(t, hasPH)

	_, err = MergeFloatSeries("x", 0)
	assert.Error(t, err)
	_, err = MergeFloatSeries("x", 0, NewDict("a", "b"))
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	temp := NewFloat("sensor1", "temp")
	temp.Insert(jan2020, 0, Float(20.5), false)

	var sb strings.Builder
	require.NoError(t, temp.WriteCSV(&sb))
	assert.Equal(t, "ts,temp\n1577836800,20.5\n", sb.String())
}

func TestWriteCSVDict(t *testing.T) {
	ph := NewFloat("sensor1", "ph")
	temp := NewFloat("sensor1", "temp")
	temp.Insert(jan2020, 0, Float(20), false)
	temp.Insert(jan2020+600, 0, Float(21), false)
	ph.Insert(jan2020, 0, Float(6.5), false)

	merged, err := MergeFloatSeries("", 0, temp, ph)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, merged.WriteCSV(&sb))
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ts,temp,ph", lines[0])
	assert.Equal(t, "1577836800,20,6.5", lines[1])
	assert.Equal(t, "1577837400,21,", lines[2])
}
