// Package cattledb provides a minimal public API for embedding cattledb.
//
// Most programs should use the cattledb CLI or talk to the store through
// internal/client. This package exports only the types and constructors an
// embedding application needs: a connection with its stores, the two client
// façades and the definition types.
package cattledb

import (
	"context"

	"github.com/cattledb/cattledb/internal/client"
	"github.com/cattledb/cattledb/internal/config"
	"github.com/cattledb/cattledb/internal/engine"
	_ "github.com/cattledb/cattledb/internal/engine/bigtable"
	_ "github.com/cattledb/cattledb/internal/engine/sqlite"
	"github.com/cattledb/cattledb/internal/series"
	"github.com/cattledb/cattledb/internal/store"
	"github.com/cattledb/cattledb/internal/types"
)

// Definition types.
type (
	MetricDefinition = types.MetricDefinition
	EventDefinition  = types.EventDefinition
	MetricType       = types.MetricType
	EventSeriesType  = types.EventSeriesType
	MetaDataItem     = types.MetaDataItem
)

// Metric and event type constants.
const (
	FloatSeries   = types.FloatSeries
	DictSeries    = types.DictSeries
	DailyEvents   = types.DailyEvents
	MonthlyEvents = types.MonthlyEvents
)

// Core types.
type (
	Connection   = store.Connection
	Options      = store.Options
	EngineConfig = engine.Config
	AppConfig    = config.AppConfig
	TimeSeries   = series.TimeSeries
	EventList    = series.EventList
	Client       = client.Client
	AsyncClient  = client.AsyncClient
)

// NewConnection opens a connection with the given options.
func NewConnection(ctx context.Context, opts Options) (*Connection, error) {
	return store.NewConnection(ctx, opts)
}

// Connect opens a connection and wraps it in a blocking client.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	return client.Connect(ctx, opts)
}

// NewAsyncClient starts a worker pool over an existing connection.
func NewAsyncClient(conn *Connection, poolSize int) *AsyncClient {
	return client.NewAsyncClient(conn, poolSize)
}

// LoadConfig reads the application config from path, the working directory
// or /etc/cattledb.
func LoadConfig(path string) (AppConfig, error) {
	return config.Load(path)
}
