package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cattledb/cattledb/internal/cdbtime"
	"github.com/cattledb/cattledb/internal/engine"
	"github.com/cattledb/cattledb/internal/series"
	"github.com/cattledb/cattledb/internal/signals"
	"github.com/cattledb/cattledb/internal/types"
)

const (
	activityTable  = "activity"
	activityFamily = "c"

	// maxActivityGet caps reader reads at 90 days.
	maxActivityGet = 90 * 24 * 60 * 60

	// Increments are accepted for timestamps between 3 years back and 30
	// days ahead of now.
	activityWindowPast   = 3 * 365 * 24 * 60 * 60
	activityWindowFuture = 30 * 24 * 60 * 60
)

// ActivityStore keeps per-hour device counters. Every increment hits one
// "total" row (t#{reverse_day}#{reader}) and up to three parent rows; the
// column is c:{HH}.{device_id} with a big-endian int64 counter cell.
type ActivityStore struct {
	conn *Connection
}

func validActivityID(id string) error {
	if len(id) < 3 || len(id) > 32 {
		return fmt.Errorf("%w: id %q must be 3-32 chars", ErrInvalidArgument, id)
	}
	if strings.Contains(id, "#") {
		return fmt.Errorf("%w: id %q contains '#'", ErrInvalidArgument, id)
	}
	return nil
}

func (s *ActivityStore) rowKey(baseKey string, dayTS int64, readerID string) string {
	rowKey := fmt.Sprintf("%s#%s", baseKey, cdbtime.ReverseDayKey(dayTS))
	if readerID != "" {
		rowKey = fmt.Sprintf("%s#%s", rowKey, readerID)
	}
	return rowKey
}

func (s *ActivityStore) insertKeys(readerID string, dayTS int64, parentIDs []string) ([]string, error) {
	if err := validActivityID(readerID); err != nil {
		return nil, err
	}
	if len(parentIDs) > 3 {
		return nil, fmt.Errorf("%w: %d parent ids, at most 3 allowed", ErrInvalidArgument, len(parentIDs))
	}
	rowKeys := []string{s.rowKey("t", dayTS, readerID)}
	for _, p := range parentIDs {
		if err := validActivityID(p); err != nil {
			return nil, err
		}
		rowKeys = append(rowKeys, s.rowKey(p, dayTS, readerID))
	}
	return rowKeys, nil
}

// Incr adds value to the hour counter of (reader, device) at ts, on the
// total row and each parent row. Returns the new counter values in row
// order.
func (s *ActivityStore) Incr(ctx context.Context, readerID, deviceID string, ts int64, parentIDs []string, value int64) ([]int64, error) {
	if err := s.conn.writeGuard("activity incr"); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	if ts < now-activityWindowPast || ts > now+activityWindowFuture {
		return nil, fmt.Errorf("%w: timestamp %d outside activity window -3y +30d", ErrInvalidArgument, ts)
	}
	if deviceID == "" || strings.Contains(deviceID, ".") {
		return nil, fmt.Errorf("%w: device id %q", ErrInvalidArgument, deviceID)
	}
	rowKeys, err := s.insertKeys(readerID, ts, parentIDs)
	if err != nil {
		return nil, err
	}
	column := engine.Column(activityFamily, fmt.Sprintf("%s.%s", cdbtime.HourKey(ts), deviceID))

	started := time.Now()
	tbl, err := s.conn.table(ctx, activityTable)
	if err != nil {
		return nil, err
	}
	results := make([]int64, 0, len(rowKeys))
	for _, rowKey := range rowKeys {
		v, err := tbl.IncrementCounter(ctx, rowKey, column, value)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	s.conn.emit(ctx, signals.ActivityIncr, "PUT", len(rowKeys), rowKeys, started)
	return results, nil
}

// activityCell splits a c:{HH}.{device} column into its parts.
func activityCell(cell engine.Cell) (hour, deviceID string, ok bool) {
	if cell.Family() != activityFamily {
		return "", "", false
	}
	parts := strings.SplitN(cell.Qualifier(), ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// rowDay recovers the "YYYYMMDD" day from the reverse key segment of an
// activity row key.
func rowDay(rowKey string) (day, readerID string, err error) {
	parts := strings.Split(rowKey, "#")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("%w: malformed activity row key %q", ErrInvalidArgument, rowKey)
	}
	day, err = cdbtime.DayFromReverseKey(parts[len(parts)-2])
	if err != nil {
		return "", "", err
	}
	return day, parts[len(parts)-1], nil
}

// GetTotalActivityForDay lists which devices every reader saw on one day.
func (s *ActivityStore) GetTotalActivityForDay(ctx context.Context, ts int64) ([]types.ReaderActivityItem, error) {
	return s.GetActivityForDay(ctx, "t", ts)
}

// GetActivityForDay lists the per-reader device sightings of one parent on
// one day, sorted by day-hour then reader id.
func (s *ActivityStore) GetActivityForDay(ctx context.Context, parentID string, ts int64) ([]types.ReaderActivityItem, error) {
	prefix := s.rowKey(parentID, ts, "")

	started := time.Now()
	tbl, err := s.conn.table(ctx, activityTable)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]map[string][]string)
	var rowKeys []string
	var rowErr error
	query := engine.ScanQuery{Prefix: prefix, Families: []string{activityFamily}}
	err = tbl.Scan(ctx, query, func(row engine.Row) bool {
		day, readerID, derr := rowDay(row.Key)
		if derr != nil {
			rowErr = derr
			return false
		}
		rowKeys = append(rowKeys, row.Key)
		for _, cell := range row.Cells {
			hour, deviceID, ok := activityCell(cell)
			if !ok {
				continue
			}
			dayHour := day + hour
			if seen[dayHour] == nil {
				seen[dayHour] = make(map[string][]string)
			}
			seen[dayHour][readerID] = append(seen[dayHour][readerID], deviceID)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if rowErr != nil {
		return nil, rowErr
	}
	s.conn.emit(ctx, signals.ActivityGet, "SCAN", len(rowKeys), rowKeys, started)

	var out []types.ReaderActivityItem
	for _, dayHour := range sortedKeys(seen) {
		readers := seen[dayHour]
		for _, readerID := range sortedKeys(readers) {
			out = append(out, types.ReaderActivityItem{
				DayHour:   dayHour,
				ReaderID:  readerID,
				DeviceIDs: readers[readerID],
			})
		}
	}
	return out, nil
}

// GetActivityForReader sums the counters of one reader over [fromTS, toTS],
// collapsed by day-hour and device, sorted.
func (s *ActivityStore) GetActivityForReader(ctx context.Context, readerID string, fromTS, toTS int64) ([]types.DeviceActivityItem, error) {
	if err := validActivityID(readerID); err != nil {
		return nil, err
	}
	if fromTS > toTS {
		return nil, fmt.Errorf("%w: from %d after to %d", ErrInvalidArgument, fromTS, toTS)
	}
	if toTS-fromTS > maxActivityGet {
		return nil, fmt.Errorf("%w: %d seconds requested, cap is %d", ErrRangeTooLarge, toTS-fromTS, maxActivityGet)
	}
	var rowKeys []string
	for _, day := range cdbtime.IterDays(fromTS, toTS) {
		rowKeys = append(rowKeys, s.rowKey("t", day, readerID))
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, activityTable)
	if err != nil {
		return nil, err
	}
	counters := make(map[string]map[string]int64)
	var rowErr error
	query := engine.ScanQuery{RowKeys: rowKeys, Families: []string{activityFamily}}
	err = tbl.Scan(ctx, query, func(row engine.Row) bool {
		day, _, derr := rowDay(row.Key)
		if derr != nil {
			rowErr = derr
			return false
		}
		for _, cell := range row.Cells {
			hour, deviceID, ok := activityCell(cell)
			if !ok {
				continue
			}
			v, cerr := series.DecodeCounter(cell.Value)
			if cerr != nil {
				rowErr = cerr
				return false
			}
			dayHour := day + hour
			if counters[dayHour] == nil {
				counters[dayHour] = make(map[string]int64)
			}
			counters[dayHour][deviceID] += v
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if rowErr != nil {
		return nil, rowErr
	}
	s.conn.emit(ctx, signals.ActivityGet, "GET", len(rowKeys), rowKeys, started)

	var out []types.DeviceActivityItem
	for _, dayHour := range sortedKeys(counters) {
		devices := counters[dayHour]
		for _, deviceID := range sortedKeys(devices) {
			out = append(out, types.DeviceActivityItem{
				DayHour:  dayHour,
				DeviceID: deviceID,
				Counter:  devices[deviceID],
			})
		}
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
