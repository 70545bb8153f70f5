// Package bigtable implements the storage engine over Google Cloud Bigtable,
// the wide-column reference backend. Rows, column families and range scans
// map directly onto Bigtable primitives; every cell keeps a single version
// (GC rule MaxVersions=1). The client honours BIGTABLE_EMULATOR_HOST for
// local testing.
package bigtable

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigtable"
	"google.golang.org/api/option"

	"github.com/cattledb/cattledb/internal/engine"
)

func init() {
	engine.Register("bigtable", New)
}

// Engine is one Bigtable instance connection.
type Engine struct {
	cfg    engine.Config
	client *bigtable.Client
	admin  *bigtable.AdminClient
}

// New connects the data client and, in admin mode, the admin client.
func New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	if cfg.ProjectID == "" || cfg.InstanceID == "" {
		return nil, fmt.Errorf("bigtable: project_id and instance_id are required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigtable.NewClient(ctx, cfg.ProjectID, cfg.InstanceID, opts...)
	if err != nil {
		return nil, wrapErr(err)
	}
	e := &Engine{cfg: cfg, client: client}
	if cfg.Admin && !cfg.ReadOnly {
		admin, err := bigtable.NewAdminClient(ctx, cfg.ProjectID, cfg.InstanceID, opts...)
		if err != nil {
			client.Close()
			return nil, wrapErr(err)
		}
		e.admin = admin
	}
	return e, nil
}

// Capabilities reports that handles are safe to share across workers.
func (e *Engine) Capabilities() engine.Capabilities {
	return engine.Capabilities{Threading: true}
}

// Close releases both clients.
func (e *Engine) Close() error {
	var firstErr error
	if e.admin != nil {
		firstErr = e.admin.Close()
	}
	if err := e.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (e *Engine) adminCheck() error {
	if e.admin == nil {
		return fmt.Errorf("bigtable: admin operations not allowed")
	}
	return nil
}

// SetupTable creates one table.
func (e *Engine) SetupTable(ctx context.Context, table string, silent bool) error {
	if err := e.adminCheck(); err != nil {
		return err
	}
	full := e.cfg.FullTableName(table)
	if silent {
		existing, err := e.admin.Tables(ctx)
		if err != nil {
			return wrapErr(err)
		}
		for _, t := range existing {
			if t == full {
				return nil
			}
		}
	}
	if err := e.admin.CreateTable(ctx, full); err != nil {
		return wrapErr(err)
	}
	return nil
}

// SetupColumnFamily creates one family with a single-version GC rule.
func (e *Engine) SetupColumnFamily(ctx context.Context, table, family string, silent bool) error {
	if err := e.adminCheck(); err != nil {
		return err
	}
	full := e.cfg.FullTableName(table)
	if silent {
		info, err := e.admin.TableInfo(ctx, full)
		if err != nil {
			return wrapErr(err)
		}
		for _, f := range info.Families {
			if f == family {
				return nil
			}
		}
	}
	if err := e.admin.CreateColumnFamily(ctx, full, family); err != nil {
		return wrapErr(err)
	}
	if err := e.admin.SetGCPolicy(ctx, full, family, bigtable.MaxVersionsPolicy(1)); err != nil {
		return wrapErr(err)
	}
	return nil
}

// GetTable returns a data handle.
func (e *Engine) GetTable(table string) (engine.Table, error) {
	full := e.cfg.FullTableName(table)
	return &Table{eng: e, tbl: e.client.Open(full), name: full}, nil
}

// GetAdminTable returns a handle that may also inspect families.
func (e *Engine) GetAdminTable(table string) (engine.Table, error) {
	if err := e.adminCheck(); err != nil {
		return nil, err
	}
	t, err := e.GetTable(table)
	if err != nil {
		return nil, err
	}
	t.(*Table).admin = true
	return t, nil
}

// Table is a handle on one Bigtable table.
type Table struct {
	eng   *Engine
	tbl   *bigtable.Table
	name  string
	admin bool
}

func wrapErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", engine.ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %v", engine.ErrBackend, err)
}

func (t *Table) writeGuard() error {
	if t.eng.cfg.ReadOnly {
		return fmt.Errorf("bigtable: table %s is read only", t.name)
	}
	return nil
}

// readFilter keeps the latest cell version and restricts to the requested
// families.
func readFilter(families []string) bigtable.Filter {
	latest := bigtable.LatestNFilter(1)
	if len(families) == 0 {
		return latest
	}
	escaped := make([]string, len(families))
	for i, f := range families {
		escaped[i] = "^" + f + "$"
	}
	return bigtable.ChainFilters(latest, bigtable.FamilyFilter(strings.Join(escaped, "|")))
}

func convertRow(r bigtable.Row) engine.Row {
	row := engine.Row{Key: r.Key()}
	for _, items := range r {
		for _, item := range items {
			// item.Column is already "family:qualifier".
			row.Cells = append(row.Cells, engine.Cell{Column: item.Column, Value: item.Value})
		}
	}
	engine.SortCells(row.Cells)
	return row
}

// WriteCell upserts one column value.
func (t *Table) WriteCell(ctx context.Context, rowKey, column string, value []byte) error {
	if err := t.writeGuard(); err != nil {
		return err
	}
	fam, qual := engine.SplitColumn(column)
	mut := bigtable.NewMutation()
	mut.Set(fam, qual, bigtable.ServerTime, value)
	if err := t.tbl.Apply(ctx, rowKey, mut); err != nil {
		return wrapErr(err)
	}
	return nil
}

// ReadRow returns the cells of one row in ascending column order.
func (t *Table) ReadRow(ctx context.Context, rowKey string, families []string) (engine.Row, error) {
	r, err := t.tbl.ReadRow(ctx, rowKey, bigtable.RowFilter(readFilter(families)))
	if err != nil {
		return engine.Row{}, wrapErr(err)
	}
	if len(r) == 0 {
		return engine.Row{}, fmt.Errorf("row %q: %w", rowKey, engine.ErrNotFound)
	}
	return convertRow(r), nil
}

// DeleteRow removes a row or only the named families.
func (t *Table) DeleteRow(ctx context.Context, rowKey string, families []string) error {
	if err := t.writeGuard(); err != nil {
		return err
	}
	mut := bigtable.NewMutation()
	if len(families) == 0 {
		mut.DeleteRow()
	} else {
		for _, f := range families {
			mut.DeleteCellsInFamily(f)
		}
	}
	if err := t.tbl.Apply(ctx, rowKey, mut); err != nil {
		return wrapErr(err)
	}
	return nil
}

func upsertMutation(cells map[string][]byte) *bigtable.Mutation {
	mut := bigtable.NewMutation()
	for column, value := range cells {
		fam, qual := engine.SplitColumn(column)
		mut.Set(fam, qual, bigtable.ServerTime, value)
	}
	return mut
}

// UpsertRow writes one row's cells as a single mutation.
func (t *Table) UpsertRow(ctx context.Context, rowKey string, cells map[string][]byte) error {
	if err := t.writeGuard(); err != nil {
		return err
	}
	if err := t.tbl.Apply(ctx, rowKey, upsertMutation(cells)); err != nil {
		return wrapErr(err)
	}
	return nil
}

// UpsertRows writes a batch with ApplyBulk; the first failing row's error
// surfaces, earlier rows stay written.
func (t *Table) UpsertRows(ctx context.Context, upserts []engine.RowUpsert) error {
	if err := t.writeGuard(); err != nil {
		return err
	}
	keys := make([]string, len(upserts))
	muts := make([]*bigtable.Mutation, len(upserts))
	for i, u := range upserts {
		keys[i] = u.RowKey
		muts[i] = upsertMutation(u.Cells)
	}
	rowErrs, err := t.tbl.ApplyBulk(ctx, keys, muts)
	if err != nil {
		return wrapErr(err)
	}
	for i, rowErr := range rowErrs {
		if rowErr != nil {
			return fmt.Errorf("row %q: %w", keys[i], wrapErr(rowErr))
		}
	}
	return nil
}

func scanRowSet(query engine.ScanQuery) (bigtable.RowSet, error) {
	switch {
	case len(query.RowKeys) > 0:
		return bigtable.RowList(query.RowKeys), nil
	case query.Prefix != "" && query.StartKey == "":
		return bigtable.PrefixRange(query.Prefix), nil
	case query.StartKey != "" && query.EndKey != "":
		return bigtable.NewClosedRange(query.StartKey, query.EndKey), nil
	case query.StartKey != "":
		return bigtable.InfiniteRange(query.StartKey), nil
	}
	return nil, fmt.Errorf("bigtable: scan needs row keys, a start key or a prefix")
}

// Scan iterates matching rows in key order.
func (t *Table) Scan(ctx context.Context, query engine.ScanQuery, fn func(engine.Row) bool) error {
	rs, err := scanRowSet(query)
	if err != nil {
		return err
	}
	err = t.tbl.ReadRows(ctx, rs, func(r bigtable.Row) bool {
		if query.Prefix != "" && !strings.HasPrefix(r.Key(), query.Prefix) {
			return false
		}
		row := convertRow(r)
		if len(row.Cells) == 0 {
			return true
		}
		return fn(row)
	}, bigtable.RowFilter(readFilter(query.Families)))
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

// GetFirstRow returns the first row the query would emit.
func (t *Table) GetFirstRow(ctx context.Context, query engine.ScanQuery) (engine.Row, error) {
	rs, err := scanRowSet(query)
	if err != nil {
		return engine.Row{}, err
	}
	var found *engine.Row
	err = t.tbl.ReadRows(ctx, rs, func(r bigtable.Row) bool {
		if query.Prefix != "" && !strings.HasPrefix(r.Key(), query.Prefix) {
			return false
		}
		row := convertRow(r)
		if len(row.Cells) == 0 {
			return true
		}
		found = &row
		return false
	}, bigtable.RowFilter(readFilter(query.Families)))
	if err != nil {
		return engine.Row{}, wrapErr(err)
	}
	if found == nil {
		return engine.Row{}, engine.ErrNotFound
	}
	return *found, nil
}

// IncrementCounter uses the native read-modify-write increment.
func (t *Table) IncrementCounter(ctx context.Context, rowKey, column string, delta int64) (int64, error) {
	if err := t.writeGuard(); err != nil {
		return 0, err
	}
	fam, qual := engine.SplitColumn(column)
	rmw := bigtable.NewReadModifyWrite()
	rmw.Increment(fam, qual, delta)
	r, err := t.tbl.ApplyReadModifyWrite(ctx, rowKey, rmw)
	if err != nil {
		return 0, wrapErr(err)
	}
	for _, items := range r {
		for _, item := range items {
			if item.Column == column && len(item.Value) == 8 {
				return int64(binary.BigEndian.Uint64(item.Value)), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: increment on %q %q returned no cell", engine.ErrBackend, rowKey, column)
}

// ColumnFamilies lists the table's families.
func (t *Table) ColumnFamilies(ctx context.Context) ([]string, error) {
	if !t.admin {
		return nil, fmt.Errorf("bigtable: column family listing needs an admin table")
	}
	info, err := t.eng.admin.TableInfo(ctx, t.name)
	if err != nil {
		return nil, wrapErr(err)
	}
	return info.Families, nil
}
