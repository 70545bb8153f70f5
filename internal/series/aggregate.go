package series

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/cattledb/cattledb/internal/cdbtime"
)

// Span selects the bucket width for iteration and aggregation.
type Span int

const (
	Span10Min Span = iota
	SpanHourly
	SpanDaily
	SpanMonthly
)

func (s Span) String() string {
	switch s {
	case Span10Min:
		return "10min"
	case SpanHourly:
		return "hourly"
	case SpanDaily:
		return "daily"
	case SpanMonthly:
		return "monthly"
	}
	return fmt.Sprintf("span(%d)", int(s))
}

// TZMode selects how points are assigned to buckets.
type TZMode int

const (
	// ModeUTC buckets by the raw timestamp.
	ModeUTC TZMode = iota
	// ModeLocal buckets by ts + ts_offset, so boundaries follow the device
	// wall clock.
	ModeLocal
)

// Aggregator names a per-bucket reduction.
type Aggregator string

const (
	AggSum    Aggregator = "sum"
	AggCount  Aggregator = "count"
	AggMin    Aggregator = "min"
	AggMax    Aggregator = "max"
	AggAmp    Aggregator = "amp"
	AggMean   Aggregator = "mean"
	AggStDev  Aggregator = "stdev"
	AggMedian Aggregator = "median"
)

func leftEdge(span Span, ts int64) int64 {
	switch span {
	case Span10Min:
		return cdbtime.TenMinLeft(ts)
	case SpanHourly:
		return cdbtime.HourLeft(ts)
	case SpanDaily:
		return cdbtime.DayLeft(ts)
	case SpanMonthly:
		return cdbtime.MonthLeft(ts)
	}
	panic(fmt.Sprintf("unknown span %d", int(span)))
}

func rightEdge(span Span, ts int64) int64 {
	switch span {
	case Span10Min:
		return cdbtime.TenMinRight(ts)
	case SpanHourly:
		return cdbtime.HourRight(ts)
	case SpanDaily:
		return cdbtime.DayRight(ts)
	case SpanMonthly:
		return cdbtime.MonthRight(ts)
	}
	panic(fmt.Sprintf("unknown span %d", int(span)))
}

// buckets groups consecutive points into span-sized buckets. The bucket
// boundary is fixed by its first point; in local mode following points stay
// in the bucket while their local timestamp is below the right edge.
func (s *TimeSeries) buckets(span Span, mode TZMode) [][]Point {
	var out [][]Point
	i := 0
	for i < len(s.points) {
		base := s.points[i].TS
		if mode == ModeLocal {
			base += int64(s.points[i].Offset)
		}
		upper := rightEdge(span, base)
		j := i + 1
		for j < len(s.points) {
			t := s.points[j].TS
			if mode == ModeLocal {
				t += int64(s.points[j].Offset)
			}
			if t > upper {
				break
			}
			j++
		}
		out = append(out, s.points[i:j:j])
		i = j
	}
	return out
}

// ByTenMin groups points into aligned 10 minute buckets.
func (s *TimeSeries) ByTenMin(mode TZMode) [][]Point { return s.buckets(Span10Min, mode) }

// ByHour groups points into hour buckets.
func (s *TimeSeries) ByHour(mode TZMode) [][]Point { return s.buckets(SpanHourly, mode) }

// ByDay groups points into day buckets.
func (s *TimeSeries) ByDay(mode TZMode) [][]Point { return s.buckets(SpanDaily, mode) }

// ByMonth groups points into month buckets.
func (s *TimeSeries) ByMonth(mode TZMode) [][]Point { return s.buckets(SpanMonthly, mode) }

// bucketTS returns the output timestamp of one bucket: the left edge of its
// first point, shifted back into UTC for local mode.
func bucketTS(span Span, mode TZMode, first Point) int64 {
	if mode == ModeLocal {
		return leftEdge(span, first.TS+int64(first.Offset)) - int64(first.Offset)
	}
	return leftEdge(span, first.TS)
}

// Aggregate reduces a float series to one point per bucket. The output
// timestamp is the bucket's left edge; the offset is the offset of the
// bucket's first point.
func (s *TimeSeries) Aggregate(span Span, fn Aggregator, mode TZMode) ([]Point, error) {
	if s.kind != FloatKind {
		return nil, fmt.Errorf("aggregate: %s series %s.%s is not a float series", s.kind, s.key, s.metric)
	}
	reduce, err := aggregatorFunc(fn)
	if err != nil {
		return nil, err
	}
	buckets := s.buckets(span, mode)
	out := make([]Point, 0, len(buckets))
	for _, b := range buckets {
		vals := make([]float64, len(b))
		for i, p := range b {
			vals[i] = float64(p.Value.Float())
		}
		out = append(out, Point{
			TS:     bucketTS(span, mode, b[0]),
			Offset: b[0].Offset,
			Value:  Float(float32(reduce(vals))),
		})
	}
	return out, nil
}

// AggregationValue carries the full reduction of one bucket. A bucket of one
// point reports Count=1 and zeros elsewhere.
type AggregationValue struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StDev  float64 `json:"stdev"`
	Median float64 `json:"median"`
}

// AggregationPoint is one fully aggregated bucket.
type AggregationPoint struct {
	TS     int64
	Offset int32
	Value  AggregationValue
}

// AggregateAll reduces a float series to the full aggregation tuple per
// bucket.
func (s *TimeSeries) AggregateAll(span Span, mode TZMode) ([]AggregationPoint, error) {
	if s.kind != FloatKind {
		return nil, fmt.Errorf("aggregate: %s series %s.%s is not a float series", s.kind, s.key, s.metric)
	}
	buckets := s.buckets(span, mode)
	out := make([]AggregationPoint, 0, len(buckets))
	for _, b := range buckets {
		vals := make([]float64, len(b))
		for i, p := range b {
			vals[i] = float64(p.Value.Float())
		}
		out = append(out, AggregationPoint{
			TS:     bucketTS(span, mode, b[0]),
			Offset: b[0].Offset,
			Value:  fullAggregation(vals),
		})
	}
	return out, nil
}

func fullAggregation(vals []float64) AggregationValue {
	if len(vals) <= 1 {
		return AggregationValue{Count: len(vals)}
	}
	return AggregationValue{
		Count:  len(vals),
		Sum:    sum(vals),
		Min:    minOf(vals),
		Max:    maxOf(vals),
		Mean:   stat.Mean(vals, nil),
		StDev:  stat.StdDev(vals, nil),
		Median: median(vals),
	}
}

func aggregatorFunc(fn Aggregator) (func([]float64) float64, error) {
	switch fn {
	case AggSum:
		return sum, nil
	case AggCount:
		return func(vals []float64) float64 { return float64(len(vals)) }, nil
	case AggMin:
		return minOf, nil
	case AggMax:
		return maxOf, nil
	case AggAmp:
		return func(vals []float64) float64 { return maxOf(vals) - minOf(vals) }, nil
	case AggMean:
		return func(vals []float64) float64 { return stat.Mean(vals, nil) }, nil
	case AggStDev:
		return func(vals []float64) float64 {
			if len(vals) < 2 {
				return 0
			}
			return stat.StdDev(vals, nil)
		}, nil
	case AggMedian:
		return median, nil
	}
	return nil, fmt.Errorf("aggregate: unknown aggregator %q", string(fn))
}

func sum(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
