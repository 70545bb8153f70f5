package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattledb/cattledb/internal/series"
	"github.com/cattledb/cattledb/internal/types"
)

// Timestamps on 2020-02-05 and 2020-02-06 (UTC).
const (
	feb5noon = 1580904000 // 2020-02-05T12:00
	feb5one  = 1580907600 // 2020-02-05T13:00
	feb5six  = 1580925600 // 2020-02-05T18:00
	feb6noon = 1580990400 // 2020-02-06T12:00
)

func insertUploadEvents(t *testing.T, conn *Connection) {
	t.Helper()
	ctx := context.Background()
	for _, ts := range []int64{feb5one, feb6noon, feb5noon, feb5six} {
		_, err := conn.Events.InsertEvent(ctx, "dev1", "upload", ts,
			map[string]any{"file": "f"})
		require.NoError(t, err)
	}
}

func TestEventsGetRange(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()
	insertUploadEvents(t, conn)

	got, err := conn.Events.GetEvents(ctx, "dev1", "upload", feb5noon, feb5noon+5*3600)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, int64(feb5noon), got.At(0).TS)
	assert.Equal(t, int64(feb5one), got.At(1).TS)
	assert.Equal(t, map[string]any{"file": "f"}, got.At(0).Value.Dict())
}

func TestEventsGetLast(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()
	insertUploadEvents(t, conn)

	last, err := conn.Events.GetLastEvent(ctx, "dev1", "upload")
	require.NoError(t, err)
	require.Equal(t, 1, last.Len())
	assert.Equal(t, int64(feb6noon), last.At(0).TS)

	three, err := conn.Events.GetLastEvents(ctx, "dev1", "upload", 3)
	require.NoError(t, err)
	require.Equal(t, 3, three.Len())
	assert.Equal(t, int64(feb5one), three.At(0).TS)
	assert.Equal(t, int64(feb5six), three.At(1).TS)
	assert.Equal(t, int64(feb6noon), three.At(2).TS)

	bounded, err := conn.Events.GetLastEventsInRange(ctx, "dev1", "upload", 1, feb5noon, feb5six)
	require.NoError(t, err)
	require.Equal(t, 1, bounded.Len())
	assert.Equal(t, int64(feb5six), bounded.At(0).TS)

	empty, err := conn.Events.GetLastEvent(ctx, "devx", "upload")
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestEventsNamePrefixIsolation(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()
	insertUploadEvents(t, conn)

	// A name sharing the prefix must not leak into the last-event scan.
	_, err := conn.Events.InsertEvent(ctx, "dev1", "uploadfail", feb6noon+3600,
		map[string]any{"err": "x"})
	require.NoError(t, err)

	last, err := conn.Events.GetLastEvent(ctx, "dev1", "upload")
	require.NoError(t, err)
	require.Equal(t, 1, last.Len())
	assert.Equal(t, int64(feb6noon), last.At(0).TS)
}

func TestEventsMonthlyResolution(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	// "stats_*" is defined monthly; three events across two months.
	for _, ts := range []int64{feb5noon, feb5noon - 40*86400, feb6noon} {
		_, err := conn.Events.InsertEvent(ctx, "dev1", "stats_daily", ts,
			map[string]any{"n": "1"})
		require.NoError(t, err)
	}

	got, err := conn.Events.GetEvents(ctx, "dev1", "stats_daily",
		feb5noon-60*86400, feb6noon)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())

	// A daily-range cap of 45 days would refuse this; the monthly cap
	// admits it.
	_, err = conn.Events.GetEvents(ctx, "dev1", "stats_daily",
		feb5noon-300*86400, feb6noon)
	require.NoError(t, err)

	_, err = conn.Events.GetEvents(ctx, "dev1", "upload", feb5noon-50*86400, feb6noon)
	assert.ErrorIs(t, err, ErrRangeTooLarge)
}

func TestEventsTypeForName(t *testing.T) {
	conn := setupTestConnection(t)
	require.NoError(t, conn.AddEventDefinitions(types.EventDefinition{
		Name: "stats_special_*", Type: types.DailyEvents,
	}))

	cases := map[string]types.EventSeriesType{
		"upload":            types.DailyEvents,
		"stats_daily":       types.MonthlyEvents,
		"stats_special_one": types.DailyEvents, // longest pattern wins
		"unknownname":       types.DailyEvents,
	}
	for name, want := range cases {
		got, err := conn.Events.typeForName(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestEventsDeleteDays(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()
	insertUploadEvents(t, conn)

	rows, err := conn.Events.DeleteEventDays(ctx, "dev1", "upload", feb5noon, feb5six)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	got, err := conn.Events.GetEvents(ctx, "dev1", "upload", feb5noon, feb6noon)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, int64(feb6noon), got.At(0).TS)
}

func TestEventsInsertGuards(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.Events.InsertEvents(ctx, series.NewEventList("dev1", "upload"))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = conn.Events.GetLastEvents(ctx, "dev1", "upload", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
