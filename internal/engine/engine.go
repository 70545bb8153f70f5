// Package engine defines the pluggable storage backend interface: a handful
// of wide-column primitives (tables, column families, ordered cells, row
// range scans, atomic counters) that the stores are written against. Concrete
// backends register themselves in an init function and are constructed
// through New.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound marks an absent row or cell.
	ErrNotFound = errors.New("not found")
	// ErrBackend wraps a backend failure.
	ErrBackend = errors.New("backend error")
	// ErrBackendTimeout wraps a backend deadline.
	ErrBackendTimeout = errors.New("backend timeout")
)

// Config carries the connection settings of all backends; each backend reads
// the fields it needs.
type Config struct {
	// Backend selects the registered engine ("bigtable", "sqlite").
	Backend string `yaml:"backend" mapstructure:"backend"`
	// TablePrefix namespaces all tables of one deployment.
	TablePrefix string `yaml:"table_prefix" mapstructure:"table_prefix"`
	// ReadOnly refuses mutating calls at the engine level.
	ReadOnly bool `yaml:"read_only" mapstructure:"read_only"`
	// Admin enables table and family creation.
	Admin bool `yaml:"admin" mapstructure:"admin"`

	// Bigtable settings.
	ProjectID       string `yaml:"project_id" mapstructure:"project_id"`
	InstanceID      string `yaml:"instance_id" mapstructure:"instance_id"`
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`

	// SQLite settings.
	DataDir  string `yaml:"data_dir" mapstructure:"data_dir"`
	InMemory bool   `yaml:"in_memory" mapstructure:"in_memory"`
}

// FullTableName returns the physical table name for a logical one.
func (c Config) FullTableName(table string) string {
	return c.TablePrefix + "_" + table
}

// Capabilities reports what a backend supports.
type Capabilities struct {
	// Threading is true when one engine handle may be shared across
	// parallel workers. When false the connection pool hands every worker
	// the same single handle and the backend serialises writes itself.
	Threading bool
}

// Engine is one backend connection.
type Engine interface {
	// Capabilities reports the backend traits.
	Capabilities() Capabilities
	// SetupTable creates a table; with silent set an existing table is not
	// an error. Requires admin mode.
	SetupTable(ctx context.Context, table string, silent bool) error
	// SetupColumnFamily creates a column family on a table; with silent set
	// an existing family is not an error. Requires admin mode.
	SetupColumnFamily(ctx context.Context, table, family string, silent bool) error
	// GetTable returns a handle for data operations.
	GetTable(table string) (Table, error)
	// GetAdminTable returns a handle that may also inspect families;
	// only usable in admin mode.
	GetAdminTable(table string) (Table, error)
	// Close releases the connection.
	Close() error
}

// Cell is one (column, value) under a row. Column is "family:qualifier".
type Cell struct {
	Column string
	Value  []byte
}

// Family returns the column family part.
func (c Cell) Family() string {
	fam, _ := SplitColumn(c.Column)
	return fam
}

// Qualifier returns the column qualifier part.
func (c Cell) Qualifier() string {
	_, qual := SplitColumn(c.Column)
	return qual
}

// SplitColumn splits "family:qualifier"; a column without ':' is all family.
func SplitColumn(column string) (family, qualifier string) {
	if i := strings.IndexByte(column, ':'); i >= 0 {
		return column[:i], column[i+1:]
	}
	return column, ""
}

// Column joins a family and qualifier.
func Column(family, qualifier string) string {
	return family + ":" + qualifier
}

// Row is one scanned row: the key plus its cells in ascending column order.
type Row struct {
	Key   string
	Cells []Cell
}

// SortCells orders cells by column; backends call it before handing rows
// out so that store code can rely on qualifier order.
func SortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool { return cells[i].Column < cells[j].Column })
}

// RowUpsert is one row write of a batch.
type RowUpsert struct {
	RowKey string
	Cells  map[string][]byte
}

// ScanQuery bounds a row scan. Exactly one of RowKeys, StartKey or Prefix
// drives the scan; EndKey is inclusive and Prefix stops the scan at the
// first key that does not match.
type ScanQuery struct {
	RowKeys  []string
	StartKey string
	EndKey   string
	Prefix   string
	Families []string
}

// WantsFamily reports whether the query includes a family; an empty filter
// includes everything.
func (q ScanQuery) WantsFamily(family string) bool {
	if len(q.Families) == 0 {
		return true
	}
	for _, f := range q.Families {
		if f == family {
			return true
		}
	}
	return false
}

// Table is a handle on one backend table.
type Table interface {
	// WriteCell upserts one column value.
	WriteCell(ctx context.Context, rowKey, column string, value []byte) error
	// ReadRow returns the cells of one row, restricted to the given
	// families; ErrNotFound when the row is absent.
	ReadRow(ctx context.Context, rowKey string, families []string) (Row, error)
	// DeleteRow removes a row, or only the named families of it.
	DeleteRow(ctx context.Context, rowKey string, families []string) error
	// UpsertRow writes one row's cells.
	UpsertRow(ctx context.Context, rowKey string, cells map[string][]byte) error
	// UpsertRows writes a batch; the first failing row's error surfaces and
	// rows written before it stay written.
	UpsertRows(ctx context.Context, upserts []RowUpsert) error
	// Scan iterates rows in key order, calling fn for each; iteration stops
	// when fn returns false.
	Scan(ctx context.Context, query ScanQuery, fn func(Row) bool) error
	// GetFirstRow returns the first row a scan would emit, or ErrNotFound.
	GetFirstRow(ctx context.Context, query ScanQuery) (Row, error)
	// IncrementCounter atomically adds to a big-endian int64 cell,
	// initialising it to zero when missing, and returns the new value.
	IncrementCounter(ctx context.Context, rowKey, column string, delta int64) (int64, error)
	// ColumnFamilies lists the table's families; admin handles only.
	ColumnFamilies(ctx context.Context) ([]string, error)
}

// Factory builds one backend connection.
type Factory func(ctx context.Context, cfg Config) (Engine, error)

var registry = make(map[string]Factory)

// Register adds a backend factory under its name. Backends call this from
// an init function.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New connects the configured backend.
func New(ctx context.Context, cfg Config) (Engine, error) {
	if cfg.TablePrefix == "" {
		return nil, fmt.Errorf("engine: table prefix is required")
	}
	factory, ok := registry[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("engine: unknown backend %q (registered: %s)", cfg.Backend, strings.Join(Backends(), ", "))
	}
	return factory(ctx, cfg)
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
