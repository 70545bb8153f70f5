package series

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cattledb/cattledb/internal/cdbpb"
)

// Proto conversion: one message per series shape, parallel arrays for
// timestamps, offsets and values. Dict payloads travel as Dictionary
// messages whose pair values are JSON.

// ToFloatProto converts a float series.
func (s *TimeSeries) ToFloatProto() (*cdbpb.FloatTimeSeries, error) {
	if s.kind != FloatKind {
		return nil, fmt.Errorf("series %s.%s is not a float series", s.key, s.metric)
	}
	p := &cdbpb.FloatTimeSeries{
		Key:              s.key,
		Metric:           s.metric,
		Timestamps:       make([]int64, 0, len(s.points)),
		TimestampOffsets: make([]int32, 0, len(s.points)),
		Values:           make([]float32, 0, len(s.points)),
	}
	for _, pt := range s.points {
		p.Timestamps = append(p.Timestamps, pt.TS)
		p.TimestampOffsets = append(p.TimestampOffsets, pt.Offset)
		p.Values = append(p.Values, pt.Value.Float())
	}
	return p, nil
}

// FromFloatProto builds a float series from its message.
func FromFloatProto(p *cdbpb.FloatTimeSeries) *TimeSeries {
	s := NewFloat(p.Key, p.Metric)
	for i, ts := range p.Timestamps {
		var off int32
		if i < len(p.TimestampOffsets) {
			off = p.TimestampOffsets[i]
		}
		var v float32
		if i < len(p.Values) {
			v = p.Values[i]
		}
		s.Insert(ts, off, Float(v), true)
	}
	return s
}

// ToDictProto converts a dict series.
func (s *TimeSeries) ToDictProto() (*cdbpb.DictTimeSeries, error) {
	if s.kind != DictKind {
		return nil, fmt.Errorf("series %s.%s is not a dict series", s.key, s.metric)
	}
	p := &cdbpb.DictTimeSeries{Key: s.key, Metric: s.metric}
	var err error
	p.Timestamps, p.TimestampOffsets, p.Values, err = s.dictArrays()
	return p, err
}

// FromDictProto builds a dict series from its message.
func FromDictProto(p *cdbpb.DictTimeSeries) (*TimeSeries, error) {
	s := NewDict(p.Key, p.Metric)
	if err := s.insertDictArrays(p.Timestamps, p.TimestampOffsets, p.Values); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TimeSeries) dictArrays() ([]int64, []int32, []*cdbpb.Dictionary, error) {
	ts := make([]int64, 0, len(s.points))
	offs := make([]int32, 0, len(s.points))
	values := make([]*cdbpb.Dictionary, 0, len(s.points))
	for _, pt := range s.points {
		d, err := DictToProto(pt.Value.Dict())
		if err != nil {
			return nil, nil, nil, err
		}
		ts = append(ts, pt.TS)
		offs = append(offs, pt.Offset)
		values = append(values, d)
	}
	return ts, offs, values, nil
}

func (s *TimeSeries) insertDictArrays(ts []int64, offs []int32, values []*cdbpb.Dictionary) error {
	for i, t := range ts {
		var off int32
		if i < len(offs) {
			off = offs[i]
		}
		m := map[string]any{}
		if i < len(values) {
			var err error
			m, err = DictFromProto(values[i])
			if err != nil {
				return err
			}
		}
		if _, err := s.Insert(t, off, Dict(m), true); err != nil {
			return err
		}
	}
	return nil
}

// DictToProto renders a map as a Dictionary message with JSON pair values,
// keys sorted for deterministic output.
func DictToProto(m map[string]any) (*cdbpb.Dictionary, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := &cdbpb.Dictionary{Pairs: make([]cdbpb.Pair, 0, len(keys))}
	for _, k := range keys {
		raw, err := json.Marshal(m[k])
		if err != nil {
			return nil, fmt.Errorf("dict value %q: %w", k, err)
		}
		d.Pairs = append(d.Pairs, cdbpb.Pair{Key: k, Value: string(raw)})
	}
	return d, nil
}

// DictFromProto parses a Dictionary message back into a map.
func DictFromProto(d *cdbpb.Dictionary) (map[string]any, error) {
	m := make(map[string]any, len(d.Pairs))
	for _, p := range d.Pairs {
		var v any
		if err := json.Unmarshal([]byte(p.Value), &v); err != nil {
			return nil, fmt.Errorf("dict value %q: %w", p.Key, err)
		}
		m[p.Key] = v
	}
	return m, nil
}

// EventList is a dict series whose metric slot carries the event name.
type EventList struct {
	*TimeSeries
}

// NewEventList creates an empty event list.
func NewEventList(key, name string) *EventList {
	return &EventList{NewDict(key, name)}
}

// Name returns the event name.
func (e *EventList) Name() string { return e.Metric() }

// ToProto converts the event list to its message.
func (e *EventList) ToProto() (*cdbpb.EventSeries, error) {
	p := &cdbpb.EventSeries{Key: e.key, Name: e.metric}
	var err error
	p.Timestamps, p.TimestampOffsets, p.Values, err = e.dictArrays()
	return p, err
}

// EventListFromProto builds an event list from its message.
func EventListFromProto(p *cdbpb.EventSeries) (*EventList, error) {
	e := NewEventList(p.Key, p.Name)
	if err := e.insertDictArrays(p.Timestamps, p.TimestampOffsets, p.Values); err != nil {
		return nil, err
	}
	return e, nil
}

// MergeFloatSeries joins several float series into one dict series keyed by
// metric name, for row-wise export. The offset applies to all merged points;
// the result's columns follow the input order.
func MergeFloatSeries(key string, offset int32, list ...*TimeSeries) (*TimeSeries, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("merge: no series given")
	}
	metrics := make([]string, 0, len(list))
	merged := map[int64]map[string]any{}
	for _, f := range list {
		if f.Kind() != FloatKind {
			return nil, fmt.Errorf("merge: series %s.%s is not a float series", f.key, f.metric)
		}
		metrics = append(metrics, f.metric)
		for _, p := range f.points {
			row, ok := merged[p.TS]
			if !ok {
				row = map[string]any{}
				merged[p.TS] = row
			}
			row[f.metric] = float64(p.Value.Float())
		}
	}
	if key == "" {
		key = list[0].key
	}
	out := NewDict(key, "multi")
	out.SetColumns(metrics)
	timestamps := make([]int64, 0, len(merged))
	for ts := range merged {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	for _, ts := range timestamps {
		if _, err := out.Insert(ts, offset, Dict(merged[ts]), true); err != nil {
			return nil, err
		}
	}
	return out, nil
}
