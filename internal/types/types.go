// Package types defines the shared value types of cattledb: metric and
// event definitions, metadata items and the activity result shapes.
package types

import (
	"fmt"
	"time"
)

// MetricType selects the cell payload of a metric series.
type MetricType int

const (
	// FloatSeries stores one float32 per point.
	FloatSeries MetricType = 1
	// DictSeries stores one msgpack map per point.
	DictSeries MetricType = 2
)

func (m MetricType) String() string {
	switch m {
	case FloatSeries:
		return "float"
	case DictSeries:
		return "dict"
	}
	return fmt.Sprintf("metrictype(%d)", int(m))
}

// EventSeriesType selects the bucket span of an event stream.
type EventSeriesType int

const (
	// DailyEvents buckets one row per day; fits one event per second.
	DailyEvents EventSeriesType = 1
	// MonthlyEvents buckets one row per month; fits one event per minute.
	MonthlyEvents EventSeriesType = 2
)

func (e EventSeriesType) String() string {
	switch e {
	case DailyEvents:
		return "daily"
	case MonthlyEvents:
		return "monthly"
	}
	return fmt.Sprintf("eventtype(%d)", int(e))
}

// MetricDefinition names a metric and binds it to a column family id.
// The id (2-6 chars) is the physical column family in the timeseries table;
// the name is the user-facing handle.
type MetricDefinition struct {
	Name           string     `json:"name" yaml:"name" mapstructure:"name"`
	ID             string     `json:"id" yaml:"id" mapstructure:"id"`
	Type           MetricType `json:"type" yaml:"type" mapstructure:"type"`
	DeletePossible bool       `json:"delete_possible" yaml:"delete_possible" mapstructure:"delete_possible"`
}

// Validate checks the definition constraints before it is merged.
func (m MetricDefinition) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("metric definition: empty name")
	}
	if len(m.ID) < 2 || len(m.ID) > 6 {
		return fmt.Errorf("metric definition %q: id must be 2-6 chars, got %q", m.Name, m.ID)
	}
	if m.Type != FloatSeries && m.Type != DictSeries {
		return fmt.Errorf("metric definition %q: invalid type %d", m.Name, int(m.Type))
	}
	return nil
}

// EventDefinition binds an event name (or "prefix*" pattern) to a bucket span.
type EventDefinition struct {
	Name string          `json:"name" yaml:"name" mapstructure:"name"`
	Type EventSeriesType `json:"type" yaml:"type" mapstructure:"type"`
}

// Validate checks the definition constraints before it is merged.
func (e EventDefinition) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("event definition: empty name")
	}
	if e.Type != DailyEvents && e.Type != MonthlyEvents {
		return fmt.Errorf("event definition %q: invalid type %d", e.Name, int(e.Type))
	}
	return nil
}

// MergeMetricDefinitions merges b into a, replacing entries with equal id.
// Order of a is preserved; new entries append in order of b.
func MergeMetricDefinitions(a, b []MetricDefinition) []MetricDefinition {
	return mergeOnKey(a, b, func(m MetricDefinition) string { return m.ID })
}

// MergeEventDefinitions merges b into a, replacing entries with equal name.
func MergeEventDefinitions(a, b []EventDefinition) []EventDefinition {
	return mergeOnKey(a, b, func(e EventDefinition) string { return e.Name })
}

func mergeOnKey[T any](a, b []T, key func(T) string) []T {
	merged := make([]T, 0, len(a)+len(b))
	index := make(map[string]int, len(a))
	for _, item := range a {
		index[key(item)] = len(merged)
		merged = append(merged, item)
	}
	for _, item := range b {
		if idx, ok := index[key(item)]; ok {
			merged[idx] = item
			continue
		}
		index[key(item)] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// MetricNameLookup indexes definitions by user-facing name.
func MetricNameLookup(defs []MetricDefinition) map[string]MetricDefinition {
	out := make(map[string]MetricDefinition, len(defs))
	for _, d := range defs {
		out[d.Name] = d
	}
	return out
}

// MetricIDLookup indexes definitions by column family id.
func MetricIDLookup(defs []MetricDefinition) map[string]MetricDefinition {
	out := make(map[string]MetricDefinition, len(defs))
	for _, d := range defs {
		out[d.ID] = d
	}
	return out
}

// MetaDataItem is one namespaced key/value entry attached to an object.
type MetaDataItem struct {
	ObjectName string         `json:"object_name"`
	ObjectID   string         `json:"object_id"`
	Key        string         `json:"key"`
	Data       map[string]any `json:"data"`
}

// ReaderActivityItem reports which devices one reader saw in one day-hour.
// DayHour is "YYYYMMDDHH".
type ReaderActivityItem struct {
	DayHour   string   `json:"day_hour"`
	ReaderID  string   `json:"reader_id"`
	DeviceIDs []string `json:"device_ids"`
}

// DeviceActivityItem reports the summed counter for one device in one
// day-hour. DayHour is "YYYYMMDDHH".
type DeviceActivityItem struct {
	DayHour  string `json:"day_hour"`
	DeviceID string `json:"device_id"`
	Counter  int64  `json:"counter"`
}

// DayHourTime parses a "YYYYMMDDHH" key into a UTC time.
func DayHourTime(dayHour string) (time.Time, error) {
	t, err := time.Parse("2006010215", dayHour)
	if err != nil {
		return time.Time{}, fmt.Errorf("day hour %q: %w", dayHour, err)
	}
	return t.UTC(), nil
}
