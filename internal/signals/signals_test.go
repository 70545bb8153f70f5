package signals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitDispatchesToMatchingHandlers(t *testing.T) {
	hub := NewHub()

	var mu sync.Mutex
	var got []Event
	hub.Register(HandlerFunc{
		Name:  "collector",
		Types: []Type{TimeSeriesPut, TimeSeriesGet},
		Fn: func(ctx context.Context, ev Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
			return nil
		},
	})
	hub.Register(HandlerFunc{
		Name:  "other",
		Types: []Type{EventsPut},
		Fn: func(ctx context.Context, ev Event) error {
			t.Error("should not be called")
			return nil
		},
	})

	hub.Emit(context.Background(), Event{
		Type:    TimeSeriesPut,
		Method:  "insert",
		Count:   42,
		RowKeys: []string{"dev1#29804949"},
		Elapsed: 5 * time.Millisecond,
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, TimeSeriesPut, got[0].Type)
	assert.Equal(t, 42, got[0].Count)
	assert.Equal(t, []string{"dev1#29804949"}, got[0].RowKeys)
	assert.False(t, got[0].When.IsZero())
}

func TestEmitSurvivesHandlerError(t *testing.T) {
	hub := NewHub()
	called := 0
	hub.Register(HandlerFunc{
		Name:  "failing",
		Types: []Type{ConfigPut},
		Fn: func(ctx context.Context, ev Event) error {
			return errors.New("boom")
		},
	})
	hub.Register(HandlerFunc{
		Name:  "after",
		Types: []Type{ConfigPut},
		Fn: func(ctx context.Context, ev Event) error {
			called++
			return nil
		},
	})

	hub.Emit(context.Background(), Event{Type: ConfigPut})
	assert.Equal(t, 1, called)
}

func TestNilHubEmitIsNoop(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() {
		hub.Emit(context.Background(), Event{Type: ActivityIncr})
	})
}

func TestHandlersIntrospection(t *testing.T) {
	hub := NewHub()
	assert.Empty(t, hub.Handlers())
	hub.Register(HandlerFunc{Name: "h", Types: []Type{EventsGet}})
	require.Len(t, hub.Handlers(), 1)
	assert.Equal(t, "h", hub.Handlers()[0].ID())
}
