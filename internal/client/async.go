package client

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cattledb/cattledb/internal/series"
	"github.com/cattledb/cattledb/internal/store"
	"github.com/cattledb/cattledb/internal/types"
)

// DefaultPoolSize is the worker count of an async client when none is given.
const DefaultPoolSize = 8

// Result is the pending outcome of an async call.
type Result[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the call finished and returns its outcome.
func (r *Result[T]) Wait() (T, error) {
	<-r.done
	return r.value, r.err
}

// AsyncClient runs store calls on a fixed worker pool. Every worker carries
// a stable worker name, so threading-capable backends hand each one a
// dedicated engine handle.
type AsyncClient struct {
	client *Client
	jobs   chan func(worker string)
	group  *errgroup.Group
}

// NewAsyncClient starts poolSize workers over an existing connection.
func NewAsyncClient(conn *store.Connection, poolSize int) *AsyncClient {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	a := &AsyncClient{
		client: NewClient(conn),
		jobs:   make(chan func(worker string)),
		group:  &errgroup.Group{},
	}
	for i := 0; i < poolSize; i++ {
		worker := fmt.Sprintf("asyncdb-%d", i)
		a.group.Go(func() error {
			for fn := range a.jobs {
				fn(worker)
			}
			return nil
		})
	}
	return a
}

// Close drains the pool; pending calls finish first. The connection stays
// open.
func (a *AsyncClient) Close() error {
	close(a.jobs)
	return a.group.Wait()
}

// Client returns the wrapped blocking client.
func (a *AsyncClient) Client() *Client { return a.client }

// submit queues fn on the pool and tags the context with the executing
// worker's name.
func submit[T any](a *AsyncClient, ctx context.Context, fn func(ctx context.Context) (T, error)) *Result[T] {
	r := &Result[T]{done: make(chan struct{})}
	job := func(worker string) {
		defer close(r.done)
		r.value, r.err = fn(store.WithWorker(ctx, worker))
	}
	select {
	case a.jobs <- job:
	case <-ctx.Done():
		r.err = ctx.Err()
		close(r.done)
	}
	return r
}

// PutTimeSeries writes one series on the pool.
func (a *AsyncClient) PutTimeSeries(ctx context.Context, ts *series.TimeSeries) *Result[int] {
	return submit(a, ctx, func(ctx context.Context) (int, error) {
		return a.client.PutTimeSeries(ctx, ts)
	})
}

// GetTimeSeries reads the named metrics of a key on the pool.
func (a *AsyncClient) GetTimeSeries(ctx context.Context, key string, metrics []string, from, to time.Time) *Result[[]*series.TimeSeries] {
	return submit(a, ctx, func(ctx context.Context) ([]*series.TimeSeries, error) {
		return a.client.GetTimeSeries(ctx, key, metrics, from, to)
	})
}

// DeleteTimeSeries removes the named metrics of a key on the pool.
func (a *AsyncClient) DeleteTimeSeries(ctx context.Context, key string, metrics []string, from, to time.Time) *Result[int] {
	return submit(a, ctx, func(ctx context.Context) (int, error) {
		return a.client.DeleteTimeSeries(ctx, key, metrics, from, to)
	})
}

// GetLastValues reads the newest point of each metric on the pool.
func (a *AsyncClient) GetLastValues(ctx context.Context, key string, metrics []string) *Result[[]*series.TimeSeries] {
	return submit(a, ctx, func(ctx context.Context) ([]*series.TimeSeries, error) {
		return a.client.GetLastValues(ctx, key, metrics)
	})
}

// PutEvents writes an event list on the pool.
func (a *AsyncClient) PutEvents(ctx context.Context, events *series.EventList) *Result[int] {
	return submit(a, ctx, func(ctx context.Context) (int, error) {
		return a.client.PutEvents(ctx, events)
	})
}

// GetEvents reads the events of one name on the pool.
func (a *AsyncClient) GetEvents(ctx context.Context, key, name string, from, to time.Time) *Result[*series.EventList] {
	return submit(a, ctx, func(ctx context.Context) (*series.EventList, error) {
		return a.client.GetEvents(ctx, key, name, from, to)
	})
}

// GetLastEvents reads up to count newest events on the pool.
func (a *AsyncClient) GetLastEvents(ctx context.Context, key, name string, count int) *Result[*series.EventList] {
	return submit(a, ctx, func(ctx context.Context) (*series.EventList, error) {
		return a.client.GetLastEvents(ctx, key, name, count)
	})
}

// DeleteEvents removes whole event buckets on the pool.
func (a *AsyncClient) DeleteEvents(ctx context.Context, key, name string, from, to time.Time) *Result[int] {
	return submit(a, ctx, func(ctx context.Context) (int, error) {
		return a.client.DeleteEvents(ctx, key, name, from, to)
	})
}

// IncrementActivity bumps an activity counter on the pool.
func (a *AsyncClient) IncrementActivity(ctx context.Context, readerID, deviceID string, at time.Time, parentIDs []string, value int64) *Result[[]int64] {
	return submit(a, ctx, func(ctx context.Context) ([]int64, error) {
		return a.client.IncrementActivity(ctx, readerID, deviceID, at, parentIDs, value)
	})
}

// GetReaderActivity sums one reader's counters on the pool.
func (a *AsyncClient) GetReaderActivity(ctx context.Context, readerID string, from, to time.Time) *Result[[]types.DeviceActivityItem] {
	return submit(a, ctx, func(ctx context.Context) ([]types.DeviceActivityItem, error) {
		return a.client.GetReaderActivity(ctx, readerID, from, to)
	})
}

// GetTotalActivity lists all reader sightings of one day on the pool.
func (a *AsyncClient) GetTotalActivity(ctx context.Context, day time.Time) *Result[[]types.ReaderActivityItem] {
	return submit(a, ctx, func(ctx context.Context) ([]types.ReaderActivityItem, error) {
		return a.client.GetTotalActivity(ctx, day)
	})
}

// PutMetadata writes one metadata entry on the pool.
func (a *AsyncClient) PutMetadata(ctx context.Context, objectName, objectID, key string, data map[string]any, internal bool) *Result[int] {
	return submit(a, ctx, func(ctx context.Context) (int, error) {
		return a.client.PutMetadata(ctx, objectName, objectID, key, data, internal)
	})
}

// GetMetadata reads the entries of one object on the pool.
func (a *AsyncClient) GetMetadata(ctx context.Context, objectName, objectID string, keys []string, internal bool) *Result[[]types.MetaDataItem] {
	return submit(a, ctx, func(ctx context.Context) ([]types.MetaDataItem, error) {
		return a.client.GetMetadata(ctx, objectName, objectID, keys, internal)
	})
}
