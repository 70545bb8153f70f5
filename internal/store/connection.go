// Package store implements the data stores of cattledb on top of a storage
// engine: time series, events, activity counters, metadata and persistent
// configuration. A Connection owns the engine pool, the metric and event
// definition lists and one instance of every store; all public store
// operations are blocking, take a context and emit a typed signal.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cattledb/cattledb/internal/engine"
	"github.com/cattledb/cattledb/internal/signals"
	"github.com/cattledb/cattledb/internal/types"
)

// MaxWorkers caps the engine pool. Creating an engine for a worker beyond
// this limit fails with ErrTooManyWorkers.
const MaxWorkers = 1000

type workerKey struct{}

// WithWorker tags a context with a worker name. On threading-capable
// backends every worker name gets a dedicated engine handle from the pool;
// contexts without a worker name share the "main" slot.
func WithWorker(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerKey{}, name)
}

func workerName(ctx context.Context) string {
	if name, ok := ctx.Value(workerKey{}).(string); ok && name != "" {
		return name
	}
	return "main"
}

// Options configures a Connection.
type Options struct {
	Engine            engine.Config
	MetricDefinitions []types.MetricDefinition
	EventDefinitions  []types.EventDefinition

	// Hub receives one signal per store operation. Nil disables emission.
	Hub *signals.Hub
}

// Connection is the shared entry point to all stores. It is safe for
// concurrent use; engine handles are pooled per worker when the backend
// supports it.
type Connection struct {
	cfg  engine.Config
	caps engine.Capabilities
	hub  *signals.Hub

	poolMu  sync.Mutex
	engines map[string]engine.Engine

	defMu       sync.RWMutex
	initialised bool
	metricDefs  []types.MetricDefinition
	eventDefs   []types.EventDefinition

	TimeSeries *TimeSeriesStore
	Events     *EventStore
	Activity   *ActivityStore
	Metadata   *MetaDataStore
	Config     *ConfigStore
}

// NewConnection connects the main engine and registers the stores. The
// connection is not initialised yet; call DatabaseInit or ServiceInit.
func NewConnection(ctx context.Context, opts Options) (*Connection, error) {
	main, err := engine.New(ctx, opts.Engine)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		cfg:     opts.Engine,
		caps:    main.Capabilities(),
		hub:     opts.Hub,
		engines: map[string]engine.Engine{"main": main},
	}
	if err := c.AddMetricDefinitions(opts.MetricDefinitions...); err != nil {
		main.Close()
		return nil, err
	}
	if err := c.AddEventDefinitions(opts.EventDefinitions...); err != nil {
		main.Close()
		return nil, err
	}
	c.Config = &ConfigStore{conn: c}
	c.TimeSeries = &TimeSeriesStore{conn: c}
	c.Events = &EventStore{conn: c}
	c.Activity = &ActivityStore{conn: c}
	c.Metadata = &MetaDataStore{conn: c}
	return c, nil
}

// ReadOnly reports whether mutating operations are refused.
func (c *Connection) ReadOnly() bool { return c.cfg.ReadOnly }

// Close releases every pooled engine.
func (c *Connection) Close() error {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	var firstErr error
	for name, eng := range c.engines {
		if err := eng.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.engines, name)
	}
	return firstErr
}

// getEngine returns the engine for the context's worker. Backends without
// threading support always share the main handle.
func (c *Connection) getEngine(ctx context.Context) (engine.Engine, error) {
	worker := "main"
	if c.caps.Threading {
		worker = workerName(ctx)
	}
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	if eng, ok := c.engines[worker]; ok {
		return eng, nil
	}
	if len(c.engines) >= MaxWorkers {
		return nil, fmt.Errorf("%w: engine pool at %d", ErrTooManyWorkers, len(c.engines))
	}
	eng, err := engine.New(ctx, c.cfg)
	if err != nil {
		return nil, err
	}
	c.engines[worker] = eng
	log.Printf("store: new database engine for worker %q (pool size %d)", worker, len(c.engines))
	return eng, nil
}

func (c *Connection) table(ctx context.Context, name string) (engine.Table, error) {
	eng, err := c.getEngine(ctx)
	if err != nil {
		return nil, err
	}
	return eng.GetTable(name)
}

func (c *Connection) writeGuard(op string) error {
	if c.cfg.ReadOnly {
		return fmt.Errorf("%s: %w", op, ErrReadOnly)
	}
	return nil
}

func (c *Connection) checkInit() error {
	c.defMu.RLock()
	defer c.defMu.RUnlock()
	if !c.initialised {
		return ErrNotInitialised
	}
	return nil
}

func (c *Connection) emit(ctx context.Context, typ signals.Type, method string, count int, rowKeys []string, started time.Time) {
	c.hub.Emit(ctx, signals.Event{
		Type:    typ,
		Method:  method,
		Count:   count,
		RowKeys: rowKeys,
		Elapsed: time.Since(started),
	})
}

type tableDefinition struct {
	name     string
	families []string
}

// tableDefinitions lists every store table with its base column families.
// Metric families are added on top of the timeseries table.
func (c *Connection) tableDefinitions() []tableDefinition {
	return []tableDefinition{
		{configTable, []string{configFamily}},
		{timeseriesTable, []string{"_meta", "_v"}},
		{activityTable, []string{activityFamily}},
		{eventsTable, []string{eventFamily}},
		{metadataTable, []string{publicFamily, internalFamily}},
	}
}

// CreateTables creates every store table and its base families.
func (c *Connection) CreateTables(ctx context.Context, silent bool) error {
	eng, err := c.getEngine(ctx)
	if err != nil {
		return err
	}
	for _, def := range c.tableDefinitions() {
		if err := eng.SetupTable(ctx, def.name, silent); err != nil {
			return err
		}
		for _, family := range def.families {
			if err := eng.SetupColumnFamily(ctx, def.name, family, silent); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateAllMetrics adds one column family per metric definition to the
// timeseries table.
func (c *Connection) CreateAllMetrics(ctx context.Context, silent bool) error {
	eng, err := c.getEngine(ctx)
	if err != nil {
		return err
	}
	c.defMu.RLock()
	defs := append([]types.MetricDefinition(nil), c.metricDefs...)
	c.defMu.RUnlock()
	for _, m := range defs {
		if err := eng.SetupColumnFamily(ctx, timeseriesTable, m.ID, silent); err != nil {
			return err
		}
	}
	return nil
}

// CreateMetric adds the column family of one metric, addressed by name or id.
func (c *Connection) CreateMetric(ctx context.Context, metric string, silent bool) error {
	eng, err := c.getEngine(ctx)
	if err != nil {
		return err
	}
	c.defMu.RLock()
	defer c.defMu.RUnlock()
	for _, m := range c.metricDefs {
		if m.Name == metric || m.ID == metric {
			return eng.SetupColumnFamily(ctx, timeseriesTable, m.ID, silent)
		}
	}
	return fmt.Errorf("%w: metric %q not known (add its definition first)", ErrInvalidArgument, metric)
}

// DatabaseInit creates all tables and families, persists the definition
// lists and writes the init marker. Without force it refuses on a database
// that already carries the marker.
func (c *Connection) DatabaseInit(ctx context.Context, force bool) error {
	if err := c.writeGuard("database init"); err != nil {
		return err
	}
	if !force {
		var marker map[string]int64
		if err := c.Config.Get(ctx, "database_init", &marker); err == nil {
			return ErrAlreadyInitialised
		}
		// Any read failure means the marker is absent or the tables do not
		// exist yet; both are fine to initialise over.
	}
	if err := c.CreateTables(ctx, force); err != nil {
		return err
	}
	if err := c.loadEventDefinitions(ctx); err != nil {
		return err
	}
	if err := c.loadMetricDefinitions(ctx); err != nil {
		return err
	}
	if err := c.storeEventDefinitions(ctx); err != nil {
		return err
	}
	if err := c.storeMetricDefinitions(ctx); err != nil {
		return err
	}
	if err := c.Config.Put(ctx, "database_init", map[string]int64{"ts": time.Now().Unix()}); err != nil {
		return err
	}
	c.defMu.Lock()
	c.initialised = true
	c.defMu.Unlock()
	return c.CreateAllMetrics(ctx, force)
}

// ServiceInit restores the persisted definitions and marks the connection
// initialised. It performs no writes, so read-only workers use it too.
func (c *Connection) ServiceInit(ctx context.Context) error {
	var marker map[string]int64
	if err := c.Config.Get(ctx, "database_init", &marker); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return fmt.Errorf("%w: database carries no init marker", ErrNotInitialised)
		}
		return err
	}
	if err := c.loadEventDefinitions(ctx); err != nil {
		return err
	}
	if err := c.loadMetricDefinitions(ctx); err != nil {
		return err
	}
	c.defMu.Lock()
	c.initialised = true
	c.defMu.Unlock()
	return nil
}

// MetricDefinitions returns the merged metric definition list.
func (c *Connection) MetricDefinitions() ([]types.MetricDefinition, error) {
	if err := c.checkInit(); err != nil {
		return nil, err
	}
	c.defMu.RLock()
	defer c.defMu.RUnlock()
	return append([]types.MetricDefinition(nil), c.metricDefs...), nil
}

// EventDefinitions returns the merged event definition list.
func (c *Connection) EventDefinitions() ([]types.EventDefinition, error) {
	if err := c.checkInit(); err != nil {
		return nil, err
	}
	c.defMu.RLock()
	defer c.defMu.RUnlock()
	return append([]types.EventDefinition(nil), c.eventDefs...), nil
}

// AddMetricDefinitions merges definitions into the in-memory list,
// replacing entries with equal id. Nothing is persisted.
func (c *Connection) AddMetricDefinitions(defs ...types.MetricDefinition) error {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	c.defMu.Lock()
	defer c.defMu.Unlock()
	c.metricDefs = types.MergeMetricDefinitions(c.metricDefs, defs)
	return nil
}

// AddEventDefinitions merges definitions into the in-memory list,
// replacing entries with equal name. Nothing is persisted.
func (c *Connection) AddEventDefinitions(defs ...types.EventDefinition) error {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}
	c.defMu.Lock()
	defer c.defMu.Unlock()
	c.eventDefs = types.MergeEventDefinitions(c.eventDefs, defs)
	return nil
}

// NewMetricDefinition registers a metric at runtime: reload the persisted
// list, merge, store and create the column family.
func (c *Connection) NewMetricDefinition(ctx context.Context, def types.MetricDefinition) error {
	if err := c.checkInit(); err != nil {
		return err
	}
	if err := c.writeGuard("new metric definition"); err != nil {
		return err
	}
	if err := c.loadMetricDefinitions(ctx); err != nil {
		return err
	}
	if err := c.AddMetricDefinitions(def); err != nil {
		return err
	}
	if err := c.storeMetricDefinitions(ctx); err != nil {
		return err
	}
	return c.CreateMetric(ctx, def.Name, true)
}

// NewEventDefinition registers an event at runtime.
func (c *Connection) NewEventDefinition(ctx context.Context, def types.EventDefinition) error {
	if err := c.checkInit(); err != nil {
		return err
	}
	if err := c.writeGuard("new event definition"); err != nil {
		return err
	}
	if err := c.loadEventDefinitions(ctx); err != nil {
		return err
	}
	if err := c.AddEventDefinitions(def); err != nil {
		return err
	}
	return c.storeEventDefinitions(ctx)
}

func (c *Connection) storeMetricDefinitions(ctx context.Context) error {
	c.defMu.RLock()
	defs := append([]types.MetricDefinition(nil), c.metricDefs...)
	c.defMu.RUnlock()
	if err := c.Config.Put(ctx, "metrics", defs); err != nil {
		return err
	}
	return c.Config.Put(ctx, "last_change", map[string]int64{"ts": time.Now().Unix()})
}

func (c *Connection) loadMetricDefinitions(ctx context.Context) error {
	var stored []types.MetricDefinition
	if err := c.Config.Get(ctx, "metrics", &stored); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil
		}
		return err
	}
	c.defMu.Lock()
	defer c.defMu.Unlock()
	c.metricDefs = types.MergeMetricDefinitions(c.metricDefs, stored)
	return nil
}

func (c *Connection) storeEventDefinitions(ctx context.Context) error {
	c.defMu.RLock()
	defs := append([]types.EventDefinition(nil), c.eventDefs...)
	c.defMu.RUnlock()
	if err := c.Config.Put(ctx, "events", defs); err != nil {
		return err
	}
	return c.Config.Put(ctx, "last_change", map[string]int64{"ts": time.Now().Unix()})
}

func (c *Connection) loadEventDefinitions(ctx context.Context) error {
	var stored []types.EventDefinition
	if err := c.Config.Get(ctx, "events", &stored); err != nil {
		if errors.Is(err, engine.ErrNotFound) {
			return nil
		}
		return err
	}
	c.defMu.Lock()
	defer c.defMu.Unlock()
	c.eventDefs = types.MergeEventDefinitions(c.eventDefs, stored)
	return nil
}

// TableStructure describes one store table for diagnostics.
type TableStructure struct {
	Name           string   `json:"name"`
	FullName       string   `json:"full_name"`
	ColumnFamilies []string `json:"column_families"`
}

// DatabaseStructure lists every store table with its full name and current
// column families. Needs an admin engine.
func (c *Connection) DatabaseStructure(ctx context.Context) ([]TableStructure, error) {
	eng, err := c.getEngine(ctx)
	if err != nil {
		return nil, err
	}
	var out []TableStructure
	for _, def := range c.tableDefinitions() {
		tbl, err := eng.GetAdminTable(def.name)
		if err != nil {
			return nil, err
		}
		families, err := tbl.ColumnFamilies(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, TableStructure{
			Name:           def.name,
			FullName:       c.cfg.FullTableName(def.name),
			ColumnFamilies: families,
		})
	}
	return out, nil
}

// Info summarises the connection for diagnostics.
type Info struct {
	Name     string   `json:"name"`
	ReadOnly bool     `json:"read_only"`
	Admin    bool     `json:"admin"`
	Engine   string   `json:"engine"`
	Stores   []string `json:"stores"`
	PoolSize int      `json:"pool_size"`
}

// Info reports the connection state.
func (c *Connection) Info() Info {
	c.poolMu.Lock()
	size := len(c.engines)
	c.poolMu.Unlock()
	return Info{
		Name:     "cattledb",
		ReadOnly: c.cfg.ReadOnly,
		Admin:    c.cfg.Admin,
		Engine:   c.cfg.Backend,
		Stores:   []string{"config", "timeseries", "activity", "events", "metadata"},
		PoolSize: size,
	}
}

func isNotFound(err error) bool { return errors.Is(err, engine.ErrNotFound) }

func lowerKey(key string) string { return strings.ToLower(key) }

func validKey(key string) error {
	if len(key) < 3 {
		return fmt.Errorf("%w: key %q too short", ErrInvalidArgument, key)
	}
	return nil
}
