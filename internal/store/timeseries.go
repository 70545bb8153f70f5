package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cattledb/cattledb/internal/cdbtime"
	"github.com/cattledb/cattledb/internal/engine"
	"github.com/cattledb/cattledb/internal/series"
	"github.com/cattledb/cattledb/internal/signals"
	"github.com/cattledb/cattledb/internal/types"
)

const (
	timeseriesTable = "timeseries"

	// maxTimeSeriesGet caps one read at 400 days of buckets.
	maxTimeSeriesGet = 400 * 24 * 60 * 60
)

// TimeSeriesStore reads and writes metric series. One row per key and day,
// one column family per metric id, one cell per point with the decimal
// timestamp as qualifier. Day keys are reversed so newer days sort first.
type TimeSeriesStore struct {
	conn *Connection
}

func (s *TimeSeriesStore) rowKey(key string, ts int64) string {
	return fmt.Sprintf("%s#%s", lowerKey(key), cdbtime.ReverseDayKey(ts))
}

func (s *TimeSeriesStore) metricByName(name string) (types.MetricDefinition, error) {
	defs, err := s.conn.MetricDefinitions()
	if err != nil {
		return types.MetricDefinition{}, err
	}
	if def, ok := types.MetricNameLookup(defs)[name]; ok {
		return def, nil
	}
	return types.MetricDefinition{}, fmt.Errorf("%w: unknown metric %q", ErrInvalidArgument, name)
}

func newSeriesFor(key, metric string, t types.MetricType) *series.TimeSeries {
	if t == types.DictSeries {
		return series.NewDict(key, metric)
	}
	return series.NewFloat(key, metric)
}

// Insert writes one series, one row upsert per day bucket. Returns the
// number of points written.
func (s *TimeSeriesStore) Insert(ctx context.Context, ts *series.TimeSeries) (int, error) {
	if err := s.conn.writeGuard("timeseries insert"); err != nil {
		return 0, err
	}
	if ts == nil || ts.Empty() {
		return 0, fmt.Errorf("%w: empty series", ErrInvalidArgument)
	}
	if err := validKey(ts.Key()); err != nil {
		return 0, err
	}
	def, err := s.metricByName(ts.Metric())
	if err != nil {
		return 0, err
	}

	started := time.Now()
	buckets, err := ts.DailyStorageBuckets()
	if err != nil {
		return 0, err
	}
	rowKeys := make([]string, 0, len(buckets))
	upserts := make([]engine.RowUpsert, 0, len(buckets))
	for _, bucket := range buckets {
		rowKey := s.rowKey(ts.Key(), bucket.Left)
		rowKeys = append(rowKeys, rowKey)
		cells := make(map[string][]byte, len(bucket.Items))
		for _, item := range bucket.Items {
			column := engine.Column(def.ID, strconv.FormatInt(item.TS, 10))
			cells[column] = item.Data
		}
		upserts = append(upserts, engine.RowUpsert{RowKey: rowKey, Cells: cells})
	}

	tbl, err := s.conn.table(ctx, timeseriesTable)
	if err != nil {
		return 0, err
	}
	if err := tbl.UpsertRows(ctx, upserts); err != nil {
		return 0, err
	}
	s.conn.emit(ctx, signals.TimeSeriesPut, "PUT", len(rowKeys), rowKeys, started)
	return ts.Len(), nil
}

// InsertMany writes several series and returns the total point count.
func (s *TimeSeriesStore) InsertMany(ctx context.Context, list []*series.TimeSeries) (int, error) {
	total := 0
	for _, ts := range list {
		n, err := s.Insert(ctx, ts)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *TimeSeriesStore) checkRange(fromTS, toTS int64, max int64) error {
	if fromTS > toTS {
		return fmt.Errorf("%w: from %d after to %d", ErrInvalidArgument, fromTS, toTS)
	}
	if toTS-fromTS > max {
		return fmt.Errorf("%w: %d seconds requested, cap is %d", ErrRangeTooLarge, toTS-fromTS, max)
	}
	return nil
}

// Get reads the named metrics of one key in [fromTS, toTS]. The scan runs
// from the newest day to the oldest (the reverse day scheme inverts the
// endpoints); cells inside a row are consumed in reverse qualifier order so
// points arrive mostly sorted for the tail-insert fast path. The result
// holds one series per requested metric, in request order.
func (s *TimeSeriesStore) Get(ctx context.Context, key string, metrics []string, fromTS, toTS int64) ([]*series.TimeSeries, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if err := s.checkRange(fromTS, toTS, maxTimeSeriesGet); err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: no metrics requested", ErrInvalidArgument)
	}
	defs := make([]types.MetricDefinition, len(metrics))
	families := make([]string, len(metrics))
	byID := make(map[string]*series.TimeSeries, len(metrics))
	result := make([]*series.TimeSeries, len(metrics))
	for i, name := range metrics {
		def, err := s.metricByName(name)
		if err != nil {
			return nil, err
		}
		defs[i] = def
		families[i] = def.ID
		result[i] = newSeriesFor(key, name, def.Type)
		byID[def.ID] = result[i]
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, timeseriesTable)
	if err != nil {
		return nil, err
	}
	query := engine.ScanQuery{
		StartKey: s.rowKey(key, toTS),
		EndKey:   s.rowKey(key, fromTS),
		Families: families,
	}
	rowCount := 0
	var cellErr error
	err = tbl.Scan(ctx, query, func(row engine.Row) bool {
		rowCount++
		for i := len(row.Cells) - 1; i >= 0; i-- {
			cell := row.Cells[i]
			target, ok := byID[cell.Family()]
			if !ok {
				continue
			}
			ts, perr := strconv.ParseInt(cell.Qualifier(), 10, 64)
			if perr != nil {
				continue
			}
			if _, ierr := target.InsertStorageItem(ts, cell.Value); ierr != nil {
				cellErr = ierr
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if cellErr != nil {
		return nil, cellErr
	}

	for _, ts := range result {
		ts.TrimRange(fromTS, toTS)
	}
	s.conn.emit(ctx, signals.TimeSeriesGet, "GET", rowCount, nil, started)
	return result, nil
}

// GetSingle reads one metric.
func (s *TimeSeriesStore) GetSingle(ctx context.Context, key, metric string, fromTS, toTS int64) (*series.TimeSeries, error) {
	res, err := s.Get(ctx, key, []string{metric}, fromTS, toTS)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// GetLastValue returns a series holding the newest point of one metric, or
// an empty series when the key holds no data.
func (s *TimeSeriesStore) GetLastValue(ctx context.Context, key, metric string) (*series.TimeSeries, error) {
	return s.lastValue(ctx, key, metric, nil, nil)
}

// GetLastValueInRange is GetLastValue bounded to [minTS, maxTS].
func (s *TimeSeriesStore) GetLastValueInRange(ctx context.Context, key, metric string, minTS, maxTS int64) (*series.TimeSeries, error) {
	return s.lastValue(ctx, key, metric, &minTS, &maxTS)
}

func (s *TimeSeriesStore) lastValue(ctx context.Context, key, metric string, minTS, maxTS *int64) (*series.TimeSeries, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	def, err := s.metricByName(metric)
	if err != nil {
		return nil, err
	}
	startKey := lowerKey(key) + "#"
	if maxTS != nil {
		startKey = s.rowKey(key, *maxTS)
	}
	// '+' sorts right after '#', closing the key's range.
	endKey := lowerKey(key) + "+"
	if minTS != nil {
		endKey = s.rowKey(key, *minTS)
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, timeseriesTable)
	if err != nil {
		return nil, err
	}
	result := newSeriesFor(key, metric, def.Type)
	row, err := tbl.GetFirstRow(ctx, engine.ScanQuery{
		StartKey: startKey,
		EndKey:   endKey,
		Families: []string{def.ID},
	})
	if err != nil {
		if isNotFound(err) {
			s.conn.emit(ctx, signals.TimeSeriesLast, "SCAN", 0, nil, started)
			return result, nil
		}
		return nil, err
	}
	for _, cell := range row.Cells {
		if cell.Family() != def.ID {
			continue
		}
		ts, perr := strconv.ParseInt(cell.Qualifier(), 10, 64)
		if perr != nil {
			continue
		}
		if _, err := result.InsertStorageItem(ts, cell.Value); err != nil {
			return nil, err
		}
	}
	result.TrimNewest(1)
	s.conn.emit(ctx, signals.TimeSeriesLast, "SCAN", 1, []string{row.Key}, started)
	return result, nil
}

// GetLastValues returns one single-point series per metric.
func (s *TimeSeriesStore) GetLastValues(ctx context.Context, key string, metrics []string) ([]*series.TimeSeries, error) {
	out := make([]*series.TimeSeries, 0, len(metrics))
	for _, m := range metrics {
		ts, err := s.GetLastValue(ctx, key, m)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, nil
}

// GetAllMetrics reads every metric stored under a key. Metric ids without a
// definition surface under their raw id.
func (s *TimeSeriesStore) GetAllMetrics(ctx context.Context, key string) ([]*series.TimeSeries, error) {
	return s.allMetrics(ctx, key, nil, nil)
}

// GetAllMetricsInRange is GetAllMetrics bounded to [fromTS, toTS].
func (s *TimeSeriesStore) GetAllMetricsInRange(ctx context.Context, key string, fromTS, toTS int64) ([]*series.TimeSeries, error) {
	if fromTS > toTS {
		return nil, fmt.Errorf("%w: from %d after to %d", ErrInvalidArgument, fromTS, toTS)
	}
	return s.allMetrics(ctx, key, &fromTS, &toTS)
}

func (s *TimeSeriesStore) allMetrics(ctx context.Context, key string, fromTS, toTS *int64) ([]*series.TimeSeries, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	defs, err := s.conn.MetricDefinitions()
	if err != nil {
		return nil, err
	}
	idLookup := types.MetricIDLookup(defs)

	startKey := lowerKey(key) + "#"
	if toTS != nil {
		startKey = s.rowKey(key, *toTS)
	}
	endKey := lowerKey(key) + "+"
	if fromTS != nil {
		endKey = s.rowKey(key, *fromTS)
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, timeseriesTable)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*series.TimeSeries)
	var order []string
	rowCount := 0
	var cellErr error
	err = tbl.Scan(ctx, engine.ScanQuery{StartKey: startKey, EndKey: endKey}, func(row engine.Row) bool {
		rowCount++
		for i := len(row.Cells) - 1; i >= 0; i-- {
			cell := row.Cells[i]
			family := cell.Family()
			if family == "" || family[0] == '_' {
				continue
			}
			ts, perr := strconv.ParseInt(cell.Qualifier(), 10, 64)
			if perr != nil {
				continue
			}
			target, ok := byID[family]
			if !ok {
				name := family
				kind := types.FloatSeries
				if def, known := idLookup[family]; known {
					name = def.Name
					kind = def.Type
				} else if len(cell.Value) > 0 && series.Kind(cell.Value[0]) == series.DictKind {
					kind = types.DictSeries
				}
				target = newSeriesFor(key, name, kind)
				byID[family] = target
				order = append(order, family)
			}
			if _, ierr := target.InsertStorageItem(ts, cell.Value); ierr != nil {
				cellErr = ierr
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if cellErr != nil {
		return nil, cellErr
	}

	out := make([]*series.TimeSeries, 0, len(order))
	for _, id := range order {
		ts := byID[id]
		if ts.Empty() {
			continue
		}
		min, _ := ts.TSMin()
		max, _ := ts.TSMax()
		if fromTS != nil {
			min = *fromTS
		}
		if toTS != nil {
			max = *toTS
		}
		ts.TrimRange(min, max)
		out = append(out, ts)
	}
	s.conn.emit(ctx, signals.TimeSeriesGet, "GET", rowCount, nil, started)
	return out, nil
}

// Delete removes the named metrics of one key in [fromTS, toTS]. Every
// metric must be flagged deletable; otherwise nothing is touched. Returns
// the number of day rows addressed.
func (s *TimeSeriesStore) Delete(ctx context.Context, key string, metrics []string, fromTS, toTS int64) (int, error) {
	if err := s.conn.writeGuard("timeseries delete"); err != nil {
		return 0, err
	}
	if err := validKey(key); err != nil {
		return 0, err
	}
	if fromTS > toTS {
		return 0, fmt.Errorf("%w: from %d after to %d", ErrInvalidArgument, fromTS, toTS)
	}
	if len(metrics) == 0 {
		return 0, fmt.Errorf("%w: no metrics given", ErrInvalidArgument)
	}
	families := make([]string, 0, len(metrics))
	for _, name := range metrics {
		def, err := s.metricByName(name)
		if err != nil {
			return 0, err
		}
		if !def.DeletePossible {
			return 0, fmt.Errorf("%w: %q", ErrDeleteNotAllowed, name)
		}
		families = append(families, def.ID)
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, timeseriesTable)
	if err != nil {
		return 0, err
	}
	var rowKeys []string
	for _, day := range cdbtime.IterDays(fromTS, toTS) {
		rowKeys = append(rowKeys, s.rowKey(key, day))
	}
	for _, rowKey := range rowKeys {
		if err := tbl.DeleteRow(ctx, rowKey, families); err != nil {
			return 0, err
		}
	}
	s.conn.emit(ctx, signals.TimeSeriesDelete, "DELETE", len(rowKeys), rowKeys, started)
	return len(rowKeys), nil
}
