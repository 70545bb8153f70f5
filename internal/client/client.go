// Package client provides the user-facing façades over a store connection:
// a direct blocking client with time.Time range arguments and an async
// client that runs store calls on a fixed worker pool.
package client

import (
	"context"
	"time"

	"github.com/cattledb/cattledb/internal/series"
	"github.com/cattledb/cattledb/internal/store"
	"github.com/cattledb/cattledb/internal/types"
)

// Client is a thin blocking façade over a Connection. Range arguments are
// time.Time and convert to unix seconds at the store boundary.
type Client struct {
	conn *store.Connection
}

// NewClient wraps an existing connection.
func NewClient(conn *store.Connection) *Client {
	return &Client{conn: conn}
}

// Connect builds a connection from options and wraps it.
func Connect(ctx context.Context, opts store.Options) (*Client, error) {
	conn, err := store.NewConnection(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Connection exposes the underlying connection.
func (c *Client) Connection() *store.Connection { return c.conn }

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// ServiceInit restores the persisted definitions.
func (c *Client) ServiceInit(ctx context.Context) error { return c.conn.ServiceInit(ctx) }

// Info reports connection diagnostics.
func (c *Client) Info() store.Info { return c.conn.Info() }

// DatabaseStructure lists the store tables and their families.
func (c *Client) DatabaseStructure(ctx context.Context) ([]store.TableStructure, error) {
	return c.conn.DatabaseStructure(ctx)
}

// PutTimeSeries writes one series.
func (c *Client) PutTimeSeries(ctx context.Context, ts *series.TimeSeries) (int, error) {
	return c.conn.TimeSeries.Insert(ctx, ts)
}

// GetTimeSeries reads the named metrics of a key in [from, to].
func (c *Client) GetTimeSeries(ctx context.Context, key string, metrics []string, from, to time.Time) ([]*series.TimeSeries, error) {
	return c.conn.TimeSeries.Get(ctx, key, metrics, from.Unix(), to.Unix())
}

// DeleteTimeSeries removes the named metrics of a key in [from, to].
func (c *Client) DeleteTimeSeries(ctx context.Context, key string, metrics []string, from, to time.Time) (int, error) {
	return c.conn.TimeSeries.Delete(ctx, key, metrics, from.Unix(), to.Unix())
}

// GetLastValues reads the newest point of each metric.
func (c *Client) GetLastValues(ctx context.Context, key string, metrics []string) ([]*series.TimeSeries, error) {
	return c.conn.TimeSeries.GetLastValues(ctx, key, metrics)
}

// GetAllMetrics reads every metric stored under a key.
func (c *Client) GetAllMetrics(ctx context.Context, key string) ([]*series.TimeSeries, error) {
	return c.conn.TimeSeries.GetAllMetrics(ctx, key)
}

// PutEvents writes an event list.
func (c *Client) PutEvents(ctx context.Context, events *series.EventList) (int, error) {
	return c.conn.Events.InsertEvents(ctx, events)
}

// PutEvent writes a single event.
func (c *Client) PutEvent(ctx context.Context, key, name string, at time.Time, data map[string]any) (int, error) {
	return c.conn.Events.InsertEvent(ctx, key, name, at.Unix(), data)
}

// GetEvents reads the events of one name in [from, to].
func (c *Client) GetEvents(ctx context.Context, key, name string, from, to time.Time) (*series.EventList, error) {
	return c.conn.Events.GetEvents(ctx, key, name, from.Unix(), to.Unix())
}

// GetLastEvents reads up to count newest events.
func (c *Client) GetLastEvents(ctx context.Context, key, name string, count int) (*series.EventList, error) {
	return c.conn.Events.GetLastEvents(ctx, key, name, count)
}

// DeleteEvents removes whole event buckets in [from, to].
func (c *Client) DeleteEvents(ctx context.Context, key, name string, from, to time.Time) (int, error) {
	return c.conn.Events.DeleteEventDays(ctx, key, name, from.Unix(), to.Unix())
}

// IncrementActivity adds value to the hour counter of (reader, device).
func (c *Client) IncrementActivity(ctx context.Context, readerID, deviceID string, at time.Time, parentIDs []string, value int64) ([]int64, error) {
	return c.conn.Activity.Incr(ctx, readerID, deviceID, at.Unix(), parentIDs, value)
}

// GetReaderActivity sums one reader's counters over [from, to].
func (c *Client) GetReaderActivity(ctx context.Context, readerID string, from, to time.Time) ([]types.DeviceActivityItem, error) {
	return c.conn.Activity.GetActivityForReader(ctx, readerID, from.Unix(), to.Unix())
}

// GetTotalActivity lists all reader sightings of one day.
func (c *Client) GetTotalActivity(ctx context.Context, day time.Time) ([]types.ReaderActivityItem, error) {
	return c.conn.Activity.GetTotalActivityForDay(ctx, day.Unix())
}

// GetDayActivity lists one parent's reader sightings of one day.
func (c *Client) GetDayActivity(ctx context.Context, parentID string, day time.Time) ([]types.ReaderActivityItem, error) {
	return c.conn.Activity.GetActivityForDay(ctx, parentID, day.Unix())
}

// PutMetadata writes one metadata entry.
func (c *Client) PutMetadata(ctx context.Context, objectName, objectID, key string, data map[string]any, internal bool) (int, error) {
	return c.conn.Metadata.Put(ctx, objectName, objectID, key, data, internal)
}

// GetMetadata reads the entries of one object.
func (c *Client) GetMetadata(ctx context.Context, objectName, objectID string, keys []string, internal bool) ([]types.MetaDataItem, error) {
	return c.conn.Metadata.GetMetadata(ctx, objectName, objectID, keys, internal)
}
