package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cattledb/cattledb/internal/cdbtime"
	"github.com/cattledb/cattledb/internal/engine"
	"github.com/cattledb/cattledb/internal/series"
	"github.com/cattledb/cattledb/internal/signals"
	"github.com/cattledb/cattledb/internal/types"
)

const (
	eventsTable = "events"
	eventFamily = "e"

	// maxDailyEventGet caps daily event reads at 45 days, monthly reads at
	// 4 years. Daily rows fit one event per second, monthly rows one per
	// minute.
	maxDailyEventGet   = 45 * 24 * 60 * 60
	maxMonthlyEventGet = 4 * 365 * 24 * 60 * 60
)

// EventStore reads and writes named dict-event streams. A name resolves to
// a daily or monthly bucket span via the event definitions; definitions
// ending in '*' match by prefix, the longest pattern wins, undefined names
// default to daily.
type EventStore struct {
	conn *Connection
}

func (s *EventStore) typeForName(name string) (types.EventSeriesType, error) {
	defs, err := s.conn.EventDefinitions()
	if err != nil {
		return 0, err
	}
	best := types.DailyEvents
	bestLen := -1
	for _, def := range defs {
		if def.Name == name {
			return def.Type, nil
		}
		if strings.HasSuffix(def.Name, "*") {
			prefix := strings.TrimSuffix(def.Name, "*")
			if strings.HasPrefix(name, prefix) && len(prefix) > bestLen {
				best = def.Type
				bestLen = len(prefix)
			}
		}
	}
	return best, nil
}

func (s *EventStore) rowKey(key, name string, ts int64, t types.EventSeriesType) string {
	if t == types.MonthlyEvents {
		return fmt.Sprintf("%s#m_%s#%s", lowerKey(key), name, cdbtime.ReverseMonthKey(ts))
	}
	return fmt.Sprintf("%s#%s#%s", lowerKey(key), name, cdbtime.ReverseDayKey(ts))
}

func (s *EventStore) rowKeyBase(key, name string, t types.EventSeriesType) string {
	if t == types.MonthlyEvents {
		return fmt.Sprintf("%s#m_%s#", lowerKey(key), name)
	}
	return fmt.Sprintf("%s#%s#", lowerKey(key), name)
}

func (s *EventStore) maxGetSize(t types.EventSeriesType) int64 {
	if t == types.MonthlyEvents {
		return maxMonthlyEventGet
	}
	return maxDailyEventGet
}

func (s *EventStore) bucketStarts(fromTS, toTS int64, t types.EventSeriesType) []int64 {
	if t == types.MonthlyEvents {
		return cdbtime.IterMonths(fromTS, toTS)
	}
	return cdbtime.IterDays(fromTS, toTS)
}

// InsertEvents writes one event list, one row upsert per bucket. Returns
// the number of events written.
func (s *EventStore) InsertEvents(ctx context.Context, events *series.EventList) (int, error) {
	if err := s.conn.writeGuard("events insert"); err != nil {
		return 0, err
	}
	if events == nil || events.Empty() {
		return 0, fmt.Errorf("%w: empty event list", ErrInvalidArgument)
	}
	if err := validKey(events.Key()); err != nil {
		return 0, err
	}
	name := events.Name()
	t, err := s.typeForName(name)
	if err != nil {
		return 0, err
	}

	started := time.Now()
	var buckets []series.StorageBucket
	if t == types.MonthlyEvents {
		buckets, err = events.MonthlyStorageBuckets()
	} else {
		buckets, err = events.DailyStorageBuckets()
	}
	if err != nil {
		return 0, err
	}
	rowKeys := make([]string, 0, len(buckets))
	upserts := make([]engine.RowUpsert, 0, len(buckets))
	for _, bucket := range buckets {
		rowKey := s.rowKey(events.Key(), name, bucket.Left, t)
		rowKeys = append(rowKeys, rowKey)
		cells := make(map[string][]byte, len(bucket.Items))
		for _, item := range bucket.Items {
			cells[engine.Column(eventFamily, strconv.FormatInt(item.TS, 10))] = item.Data
		}
		upserts = append(upserts, engine.RowUpsert{RowKey: rowKey, Cells: cells})
	}

	tbl, err := s.conn.table(ctx, eventsTable)
	if err != nil {
		return 0, err
	}
	if err := tbl.UpsertRows(ctx, upserts); err != nil {
		return 0, err
	}
	s.conn.emit(ctx, signals.EventsPut, "PUT", len(rowKeys), rowKeys, started)
	return events.Len(), nil
}

// InsertEvent writes a single event.
func (s *EventStore) InsertEvent(ctx context.Context, key, name string, ts int64, data map[string]any) (int, error) {
	events := series.NewEventList(key, name)
	if _, err := events.Insert(ts, 0, series.Dict(data), true); err != nil {
		return 0, err
	}
	return s.InsertEvents(ctx, events)
}

// GetEvents reads the events of one name in [fromTS, toTS] by enumerating
// bucket row keys.
func (s *EventStore) GetEvents(ctx context.Context, key, name string, fromTS, toTS int64) (*series.EventList, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	t, err := s.typeForName(name)
	if err != nil {
		return nil, err
	}
	if fromTS > toTS {
		return nil, fmt.Errorf("%w: from %d after to %d", ErrInvalidArgument, fromTS, toTS)
	}
	if toTS-fromTS > s.maxGetSize(t) {
		return nil, fmt.Errorf("%w: %d seconds requested, cap is %d", ErrRangeTooLarge, toTS-fromTS, s.maxGetSize(t))
	}

	var rowKeys []string
	for _, left := range s.bucketStarts(fromTS, toTS, t) {
		rowKeys = append(rowKeys, s.rowKey(key, name, left, t))
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, eventsTable)
	if err != nil {
		return nil, err
	}
	events := series.NewEventList(key, name)
	var cellErr error
	err = tbl.Scan(ctx, engine.ScanQuery{RowKeys: rowKeys, Families: []string{eventFamily}}, func(row engine.Row) bool {
		if cellErr = insertEventCells(events, row); cellErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if cellErr != nil {
		return nil, cellErr
	}
	events.TrimRange(fromTS, toTS)
	s.conn.emit(ctx, signals.EventsGet, "GET", len(rowKeys), rowKeys, started)
	return events, nil
}

func insertEventCells(events *series.EventList, row engine.Row) error {
	for _, cell := range row.Cells {
		if cell.Family() != eventFamily {
			continue
		}
		ts, err := strconv.ParseInt(cell.Qualifier(), 10, 64)
		if err != nil {
			continue
		}
		if _, err := events.InsertStorageItem(ts, cell.Value); err != nil {
			return err
		}
	}
	return nil
}

// GetLastEvent returns the newest event of one name, or an empty list.
func (s *EventStore) GetLastEvent(ctx context.Context, key, name string) (*series.EventList, error) {
	return s.lastEvents(ctx, key, name, 1, nil, nil)
}

// GetLastEvents returns up to count newest events by scanning buckets from
// the newest downward.
func (s *EventStore) GetLastEvents(ctx context.Context, key, name string, count int) (*series.EventList, error) {
	return s.lastEvents(ctx, key, name, count, nil, nil)
}

// GetLastEventsInRange is GetLastEvents bounded to [minTS, maxTS].
func (s *EventStore) GetLastEventsInRange(ctx context.Context, key, name string, count int, minTS, maxTS int64) (*series.EventList, error) {
	return s.lastEvents(ctx, key, name, count, &minTS, &maxTS)
}

func (s *EventStore) lastEvents(ctx context.Context, key, name string, count int, minTS, maxTS *int64) (*series.EventList, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: count %d", ErrInvalidArgument, count)
	}
	t, err := s.typeForName(name)
	if err != nil {
		return nil, err
	}
	base := s.rowKeyBase(key, name, t)
	startKey := base
	if maxTS != nil {
		startKey = s.rowKey(key, name, *maxTS, t)
	}
	// '+' sorts right after '#', closing the name's range.
	endKey := base[:len(base)-1] + "+"
	if minTS != nil {
		endKey = s.rowKey(key, name, *minTS, t)
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, eventsTable)
	if err != nil {
		return nil, err
	}
	events := series.NewEventList(key, name)
	var rowKeys []string
	var cellErr error
	query := engine.ScanQuery{StartKey: startKey, EndKey: endKey, Families: []string{eventFamily}}
	err = tbl.Scan(ctx, query, func(row engine.Row) bool {
		if !strings.HasPrefix(row.Key, base) {
			return false
		}
		rowKeys = append(rowKeys, row.Key)
		if cellErr = insertEventCells(events, row); cellErr != nil {
			return false
		}
		// Buckets arrive newest first; once enough events are collected the
		// remaining rows can only be older.
		return events.Len() < count
	})
	if err != nil {
		return nil, err
	}
	if cellErr != nil {
		return nil, cellErr
	}
	events.TrimNewest(count)
	s.conn.emit(ctx, signals.EventsLast, "SCAN", len(rowKeys), rowKeys, started)
	return events, nil
}

// DeleteEventDays removes whole event buckets in [fromTS, toTS]. Returns
// the number of rows addressed.
func (s *EventStore) DeleteEventDays(ctx context.Context, key, name string, fromTS, toTS int64) (int, error) {
	if err := s.conn.writeGuard("events delete"); err != nil {
		return 0, err
	}
	if err := validKey(key); err != nil {
		return 0, err
	}
	if fromTS > toTS {
		return 0, fmt.Errorf("%w: from %d after to %d", ErrInvalidArgument, fromTS, toTS)
	}
	t, err := s.typeForName(name)
	if err != nil {
		return 0, err
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, eventsTable)
	if err != nil {
		return 0, err
	}
	var rowKeys []string
	for _, left := range s.bucketStarts(fromTS, toTS, t) {
		rowKeys = append(rowKeys, s.rowKey(key, name, left, t))
	}
	for _, rowKey := range rowKeys {
		if err := tbl.DeleteRow(ctx, rowKey, nil); err != nil {
			return 0, err
		}
	}
	s.conn.emit(ctx, signals.EventsDelete, "DELETE", len(rowKeys), rowKeys, started)
	return len(rowKeys), nil
}
