package series

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"time"
)

// Point is one sample. Offset is the seconds east of UTC at sample time; it
// is carried for presentation and local bucketing but never part of ordering.
type Point struct {
	TS     int64
	Offset int32
	Value  Value
}

// TimeSeries is an ordered, duplicate-free sequence of points for one
// (key, metric) pair. All points share one value kind. The zero value is not
// usable; construct with NewFloat or NewDict.
type TimeSeries struct {
	key     string
	metric  string
	kind    Kind
	points  []Point
	columns []string
}

// NewFloat creates an empty float series. Key and metric are lowercased.
func NewFloat(key, metric string) *TimeSeries {
	return &TimeSeries{key: lower(key), metric: lower(metric), kind: FloatKind}
}

// NewDict creates an empty dict series. Key and metric are lowercased.
func NewDict(key, metric string) *TimeSeries {
	return &TimeSeries{key: lower(key), metric: lower(metric), kind: DictKind}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// Key returns the series key.
func (s *TimeSeries) Key() string { return s.key }

// Metric returns the metric name.
func (s *TimeSeries) Metric() string { return s.metric }

// SetMetric renames the metric (used when translating ids to names).
func (s *TimeSeries) SetMetric(m string) { s.metric = lower(m) }

// Kind reports the value kind of all points.
func (s *TimeSeries) Kind() Kind { return s.kind }

// Len reports the number of points.
func (s *TimeSeries) Len() int { return len(s.points) }

// Empty reports whether the series has no points.
func (s *TimeSeries) Empty() bool { return len(s.points) == 0 }

// TSMin returns the oldest timestamp; undefined (0, false) when empty.
func (s *TimeSeries) TSMin() (int64, bool) {
	if s.Empty() {
		return 0, false
	}
	return s.points[0].TS, true
}

// TSMax returns the newest timestamp; undefined (0, false) when empty.
func (s *TimeSeries) TSMax() (int64, bool) {
	if s.Empty() {
		return 0, false
	}
	return s.points[len(s.points)-1].TS, true
}

// First returns the oldest point.
func (s *TimeSeries) First() (Point, bool) {
	if s.Empty() {
		return Point{}, false
	}
	return s.points[0], true
}

// Last returns the newest point.
func (s *TimeSeries) Last() (Point, bool) {
	if s.Empty() {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// BisectLeft returns the lowest index whose timestamp is >= ts.
func (s *TimeSeries) BisectLeft(ts int64) int {
	return sort.Search(len(s.points), func(i int) bool { return s.points[i].TS >= ts })
}

// BisectRight returns the lowest index whose timestamp is > ts.
func (s *TimeSeries) BisectRight(ts int64) int {
	return sort.Search(len(s.points), func(i int) bool { return s.points[i].TS > ts })
}

// At returns the point at index i; i must be in [0, Len).
func (s *TimeSeries) At(i int) Point { return s.points[i] }

// AtTS returns the point with the exact timestamp.
func (s *TimeSeries) AtTS(ts int64) (Point, bool) {
	idx := s.BisectLeft(ts)
	if idx < len(s.points) && s.points[idx].TS == ts {
		return s.points[idx], true
	}
	return Point{}, false
}

// IndexOfTS returns the index of the exact timestamp.
func (s *TimeSeries) IndexOfTS(ts int64) (int, bool) {
	idx := s.BisectLeft(ts)
	if idx < len(s.points) && s.points[idx].TS == ts {
		return idx, true
	}
	return 0, false
}

// NearestIndexOfTS returns the index of the point closest to ts, preferring
// the earlier point on a tie. Returns -1 for an empty series.
func (s *TimeSeries) NearestIndexOfTS(ts int64) int {
	if s.Empty() {
		return -1
	}
	idx := s.BisectLeft(ts)
	if idx == 0 {
		return 0
	}
	if idx == len(s.points) {
		return idx - 1
	}
	if abs64(ts-s.points[idx-1].TS) <= abs64(ts-s.points[idx].TS) {
		return idx - 1
	}
	return idx
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Insert adds one point. A point with an existing timestamp is dropped
// unless overwrite is set, in which case offset and value are replaced.
// Returns 1 when the series changed, 0 for a dropped duplicate.
func (s *TimeSeries) Insert(ts int64, offset int32, v Value, overwrite bool) (int, error) {
	if v.Kind() != s.kind {
		return 0, fmt.Errorf("series %s.%s: cannot insert %s value into %s series",
			s.key, s.metric, v.Kind(), s.kind)
	}
	idx := s.BisectLeft(ts)
	if idx < len(s.points) && s.points[idx].TS == ts {
		if !overwrite {
			return 0, nil
		}
		s.points[idx] = Point{TS: ts, Offset: offset, Value: v}
		return 1, nil
	}
	s.points = append(s.points, Point{})
	copy(s.points[idx+1:], s.points[idx:])
	s.points[idx] = Point{TS: ts, Offset: offset, Value: v}
	return 1, nil
}

// InsertTime adds one point, deriving timestamp and UTC offset from t.
func (s *TimeSeries) InsertTime(t time.Time, v Value, overwrite bool) (int, error) {
	_, off := t.Zone()
	return s.Insert(t.Unix(), int32(off), v, overwrite)
}

// InsertPoints bulk-inserts, returning the number of points that changed the
// series.
func (s *TimeSeries) InsertPoints(points []Point, overwrite bool) (int, error) {
	count := 0
	for _, p := range points {
		n, err := s.Insert(p.TS, p.Offset, p.Value, overwrite)
		if err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}

// RemoveTS deletes the point with the exact timestamp.
func (s *TimeSeries) RemoveTS(ts int64) bool {
	idx, ok := s.IndexOfTS(ts)
	if !ok {
		return false
	}
	s.points = append(s.points[:idx], s.points[idx+1:]...)
	return true
}

// TrimRange keeps only points with min <= ts <= max. An inverted range
// empties the series.
func (s *TimeSeries) TrimRange(min, max int64) {
	lo := s.BisectLeft(min)
	hi := s.BisectRight(max)
	if hi < lo {
		hi = lo
	}
	s.points = append(s.points[:0], s.points[lo:hi]...)
}

// TrimNewest keeps the n newest points; no-op when Len() <= n.
func (s *TimeSeries) TrimNewest(n int) {
	if n >= len(s.points) {
		return
	}
	s.points = append(s.points[:0], s.points[len(s.points)-n:]...)
}

// TrimOldest keeps the n oldest points; no-op when Len() <= n.
func (s *TimeSeries) TrimOldest(n int) {
	if n >= len(s.points) {
		return
	}
	s.points = s.points[:n]
}

// All returns a copy of all points in timestamp order.
func (s *TimeSeries) All() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Range returns a copy of all points with min <= ts <= max.
func (s *TimeSeries) Range(min, max int64) []Point {
	lo := s.BisectLeft(min)
	hi := s.BisectRight(max)
	out := make([]Point, hi-lo)
	copy(out, s.points[lo:hi])
	return out
}

// Hash identifies the series shape: two series are considered equal iff
// their hashes match.
func (s *TimeSeries) Hash() string {
	min, max := "", ""
	if tsMin, ok := s.TSMin(); ok {
		min = fmt.Sprintf("%d", tsMin)
	}
	if tsMax, ok := s.TSMax(); ok {
		max = fmt.Sprintf("%d", tsMax)
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s.%s.%d.%s.%s", s.key, s.metric, len(s.points), min, max)))
	return fmt.Sprintf("%x", sum)
}

// Equal compares by Hash.
func (s *TimeSeries) Equal(other *TimeSeries) bool {
	if other == nil {
		return false
	}
	return s.Hash() == other.Hash()
}

// SetColumns fixes the column order for CSV rendering of dict series.
func (s *TimeSeries) SetColumns(cols []string) { s.columns = cols }

// Columns returns the configured column order, or nil.
func (s *TimeSeries) Columns() []string { return s.columns }

// StorageItem is one encoded cell ready for a row upsert: the column
// qualifier timestamp and the cell bytes.
type StorageItem struct {
	TS   int64
	Data []byte
}

// StorageBucket groups the encoded cells of one storage row under the
// bucket's left edge.
type StorageBucket struct {
	Left  int64
	Items []StorageItem
}

// DailyStorageBuckets encodes the series into per-day rows.
func (s *TimeSeries) DailyStorageBuckets() ([]StorageBucket, error) {
	return s.storageBuckets(SpanDaily)
}

// MonthlyStorageBuckets encodes the series into per-month rows.
func (s *TimeSeries) MonthlyStorageBuckets() ([]StorageBucket, error) {
	return s.storageBuckets(SpanMonthly)
}

func (s *TimeSeries) storageBuckets(span Span) ([]StorageBucket, error) {
	buckets := s.buckets(span, ModeUTC)
	out := make([]StorageBucket, 0, len(buckets))
	for _, b := range buckets {
		sb := StorageBucket{
			Left:  leftEdge(span, b[0].TS),
			Items: make([]StorageItem, 0, len(b)),
		}
		for _, p := range b {
			data, err := EncodeCell(p.Offset, p.Value)
			if err != nil {
				return nil, err
			}
			sb.Items = append(sb.Items, StorageItem{TS: p.TS, Data: data})
		}
		out = append(out, sb)
	}
	return out, nil
}

// InsertStorageItem decodes one cell and inserts it, replacing any existing
// point at that timestamp.
func (s *TimeSeries) InsertStorageItem(ts int64, data []byte) (int, error) {
	offset, v, err := DecodeCell(s.kind, data)
	if err != nil {
		return 0, err
	}
	return s.Insert(ts, offset, v, true)
}
