// Package sqlite implements the storage engine over an embedded SQLite
// database. Rows live in tables `{prefix}_{table}` with the key in `_k`, the
// column qualifier in `_c` and one BLOB-typed column per column family
// holding base64 text of the raw cell bytes. The backend is single-writer:
// Capabilities reports Threading=false and the connection pool hands every
// worker the same handle.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/cattledb/cattledb/internal/engine"
)

func init() {
	engine.Register("sqlite", New)
}

// identRe guards table and family names before they are interpolated into
// SQL text.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// memCounter distinguishes shared-cache in-memory databases so independent
// engines never see each other's data.
var memCounter atomic.Int64

// Engine is one SQLite connection.
type Engine struct {
	cfg engine.Config
	db  *sql.DB

	// mu serialises writers; SQLite allows one writer at a time.
	mu sync.Mutex
}

// New opens the database under cfg.DataDir (or a private in-memory one) and
// returns the engine.
func New(ctx context.Context, cfg engine.Config) (engine.Engine, error) {
	var connStr string
	if cfg.InMemory {
		// Shared cache keeps the data visible across pooled connections;
		// WAL does not work in memory, so journal mode stays DELETE.
		connStr = fmt.Sprintf("file:cattledb%d?mode=memory&cache=shared&_pragma=busy_timeout(10000)",
			memCounter.Add(1))
	} else {
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite: data_dir is required")
		}
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: create data dir: %w", err)
		}
		path := filepath.Join(cfg.DataDir, "cattle.db")
		connStr = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One connection: writes are serialised and in-memory databases keep
	// their single shared state.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrapErr(err)
	}
	return &Engine{cfg: cfg, db: db}, nil
}

// Capabilities reports that handles must not be shared across workers.
func (e *Engine) Capabilities() engine.Capabilities {
	return engine.Capabilities{Threading: false}
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) adminCheck() error {
	if !e.cfg.Admin || e.cfg.ReadOnly {
		return fmt.Errorf("sqlite: admin operations not allowed")
	}
	return nil
}

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("sqlite: invalid identifier %q", name)
	}
	return nil
}

// SetupTable creates the key/qualifier skeleton of one table.
func (e *Engine) SetupTable(ctx context.Context, table string, silent bool) error {
	if err := e.adminCheck(); err != nil {
		return err
	}
	full := e.cfg.FullTableName(table)
	if err := checkIdent(full); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`CREATE TABLE %s (
		_k TEXT NOT NULL,
		_c TEXT NOT NULL,
		_row_meta TEXT,
		CONSTRAINT pk PRIMARY KEY(_k, _c)
	)`, full)
	if silent {
		stmt = strings.Replace(stmt, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return wrapErr(err)
	}
	return nil
}

// SetupColumnFamily adds the family's BLOB column.
func (e *Engine) SetupColumnFamily(ctx context.Context, table, family string, silent bool) error {
	if err := e.adminCheck(); err != nil {
		return err
	}
	full := e.cfg.FullTableName(table)
	if err := checkIdent(full); err != nil {
		return err
	}
	if err := checkIdent(family); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s BLOB", full, family))
	if err != nil {
		if silent && strings.Contains(err.Error(), "duplicate column name") {
			return nil
		}
		return wrapErr(err)
	}
	return nil
}

// GetTable returns a data handle.
func (e *Engine) GetTable(table string) (engine.Table, error) {
	full := e.cfg.FullTableName(table)
	if err := checkIdent(full); err != nil {
		return nil, err
	}
	return &Table{eng: e, name: full}, nil
}

// GetAdminTable returns a handle that may inspect families.
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

// Table is a handle on one SQLite-backed table.
type Table struct {
	eng   *Engine
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
		return fmt.Errorf("sqlite: table %s is read only", t.name)
	}
	return nil
}

// WriteCell upserts one column value.
func (t *Table) WriteCell(ctx context.Context, rowKey, column string, value []byte) error {
	return t.UpsertRow(ctx, rowKey, map[string][]byte{column: value})
}

// ReadRow returns the cells of one row in ascending column order.
func (t *Table) ReadRow(ctx context.Context, rowKey string, families []string) (engine.Row, error) {
	sel, err := t.selectColumns(families)
	if err != nil {
		return engine.Row{}, err
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE _k = ? ORDER BY _c", sel, t.name)
	rows, err := t.eng.db.QueryContext(ctx, stmt, rowKey)
	if err != nil {
		return engine.Row{}, wrapErr(err)
	}
	defer rows.Close()

	cells, err := decodeRows(rows)
	if err != nil {
		return engine.Row{}, err
	}
	if len(cells) == 0 {
		return engine.Row{}, fmt.Errorf("row %q: %w", rowKey, engine.ErrNotFound)
	}
	row := engine.Row{Key: rowKey, Cells: cells}
	engine.SortCells(row.Cells)
	return row, nil
}

func (t *Table) selectColumns(families []string) (string, error) {
	if len(families) == 0 {
		return "*", nil
	}
	cols := []string{"_k", "_c"}
	for _, f := range families {
		if err := checkIdent(f); err != nil {
			return "", err
		}
		cols = append(cols, f)
	}
	return strings.Join(cols, ", "), nil
}

// decodeRows turns (_k, _c, family...) result rows into cells, skipping the
// bookkeeping columns and null families.
func decodeRows(rows *sql.Rows) ([]engine.Cell, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, wrapErr(err)
	}
	var cells []engine.Cell
	for rows.Next() {
		vals := make([]any, len(cols))
		for i := range vals {
			vals[i] = new(sql.NullString)
		}
		if err := rows.Scan(vals...); err != nil {
			return nil, wrapErr(err)
		}
		var qualifier string
		for i, col := range cols {
			if col == "_c" {
				qualifier = vals[i].(*sql.NullString).String
			}
		}
		for i, col := range cols {
			if col == "_k" || col == "_c" || col == "_row_meta" {
				continue
			}
			v := vals[i].(*sql.NullString)
			if !v.Valid {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(v.String)
			if err != nil {
				return nil, fmt.Errorf("%w: bad cell encoding: %v", engine.ErrBackend, err)
			}
			cells = append(cells, engine.Cell{Column: engine.Column(col, qualifier), Value: raw})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return cells, nil
}

// DeleteRow removes a row or blanks the named families.
func (t *Table) DeleteRow(ctx context.Context, rowKey string, families []string) error {
	if err := t.writeGuard(); err != nil {
		return err
	}
	t.eng.mu.Lock()
	defer t.eng.mu.Unlock()
	if len(families) == 0 {
		_, err := t.eng.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE _k = ?", t.name), rowKey)
		if err != nil {
			return wrapErr(err)
		}
		return nil
	}
	sets := make([]string, 0, len(families))
	for _, f := range families {
		if err := checkIdent(f); err != nil {
			return err
		}
		sets = append(sets, f+" = NULL")
	}
	_, err := t.eng.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE _k = ?", t.name, strings.Join(sets, ", ")), rowKey)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

// UpsertRow writes one row's cells in a single transaction; a failure
// leaves the row untouched.
func (t *Table) UpsertRow(ctx context.Context, rowKey string, cells map[string][]byte) error {
	if err := t.writeGuard(); err != nil {
		return err
	}
	perFamily := map[string][]engine.Cell{}
	for column, value := range cells {
		fam, qual := engine.SplitColumn(column)
		if err := checkIdent(fam); err != nil {
			return err
		}
		perFamily[fam] = append(perFamily[fam], engine.Cell{Column: qual, Value: value})
	}

	t.eng.mu.Lock()
	defer t.eng.mu.Unlock()
	tx, err := t.eng.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err)
	}
	for fam, group := range perFamily {
		stmt := fmt.Sprintf(
			"INSERT INTO %s (_k, _c, %s) VALUES (?, ?, ?) ON CONFLICT(_k, _c) DO UPDATE SET %s = excluded.%s",
			t.name, fam, fam, fam)
		for _, c := range group {
			encoded := base64.StdEncoding.EncodeToString(c.Value)
			if _, err := tx.ExecContext(ctx, stmt, rowKey, c.Column, encoded); err != nil {
				_ = tx.Rollback()
				return wrapErr(err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(err)
	}
	return nil
}

// UpsertRows writes a batch; rows written before the first failure stay
// written.
func (t *Table) UpsertRows(ctx context.Context, upserts []engine.RowUpsert) error {
	for _, u := range upserts {
		if err := t.UpsertRow(ctx, u.RowKey, u.Cells); err != nil {
			return fmt.Errorf("row %q: %w", u.RowKey, err)
		}
	}
	return nil
}

// Scan iterates matching rows in key order.
func (t *Table) Scan(ctx context.Context, query engine.ScanQuery, fn func(engine.Row) bool) error {
	sel, err := t.selectColumns(query.Families)
	if err != nil {
		return err
	}

	var filter string
	var params []any
	switch {
	case len(query.RowKeys) > 0:
		marks := make([]string, len(query.RowKeys))
		for i, k := range query.RowKeys {
			marks[i] = "?"
			params = append(params, k)
		}
		filter = "_k IN (" + strings.Join(marks, ", ") + ")"
	case query.StartKey != "" || query.Prefix != "":
		start := query.StartKey
		if start == "" {
			start = query.Prefix
		}
		filter = "_k >= ?"
		params = append(params, start)
		if query.EndKey != "" {
			filter += " AND _k <= ?"
			params = append(params, query.EndKey)
		}
	default:
		return fmt.Errorf("sqlite: scan needs row keys, a start key or a prefix")
	}

	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY _k, _c", sel, t.name, filter)
	rows, err := t.eng.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return wrapErr(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return wrapErr(err)
	}
	keyIdx, qualIdx := -1, -1
	for i, c := range cols {
		switch c {
		case "_k":
			keyIdx = i
		case "_c":
			qualIdx = i
		}
	}
	if keyIdx < 0 || qualIdx < 0 {
		return fmt.Errorf("%w: table %s misses key columns", engine.ErrBackend, t.name)
	}

	current := engine.Row{}
	emit := func() bool {
		if current.Key == "" || len(current.Cells) == 0 {
			return true
		}
		engine.SortCells(current.Cells)
		ok := fn(current)
		current = engine.Row{}
		return ok
	}

	for rows.Next() {
		vals := make([]any, len(cols))
		for i := range vals {
			vals[i] = new(sql.NullString)
		}
		if err := rows.Scan(vals...); err != nil {
			return wrapErr(err)
		}
		key := vals[keyIdx].(*sql.NullString).String
		qualifier := vals[qualIdx].(*sql.NullString).String

		if query.Prefix != "" && !strings.HasPrefix(key, query.Prefix) {
			break
		}
		if key != current.Key {
			if !emit() {
				return rows.Err()
			}
			current.Key = key
		}
		for i, col := range cols {
			if col == "_k" || col == "_c" || col == "_row_meta" {
				continue
			}
			v := vals[i].(*sql.NullString)
			if !v.Valid {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(v.String)
			if err != nil {
				return fmt.Errorf("%w: bad cell encoding: %v", engine.ErrBackend, err)
			}
			current.Cells = append(current.Cells, engine.Cell{Column: engine.Column(col, qualifier), Value: raw})
		}
	}
	if err := rows.Err(); err != nil {
		return wrapErr(err)
	}
	emit()
	return nil
}

// GetFirstRow returns the first row the query would emit.
func (t *Table) GetFirstRow(ctx context.Context, query engine.ScanQuery) (engine.Row, error) {
	var found *engine.Row
	err := t.Scan(ctx, query, func(r engine.Row) bool {
		found = &r
		return false
	})
	if err != nil {
		return engine.Row{}, err
	}
	if found == nil {
		return engine.Row{}, engine.ErrNotFound
	}
	return *found, nil
}

// IncrementCounter adds to a big-endian int64 cell under the writer lock.
func (t *Table) IncrementCounter(ctx context.Context, rowKey, column string, delta int64) (int64, error) {
	if err := t.writeGuard(); err != nil {
		return 0, err
	}
	fam, qual := engine.SplitColumn(column)
	if err := checkIdent(fam); err != nil {
		return 0, err
	}

	t.eng.mu.Lock()
	defer t.eng.mu.Unlock()

	var old int64
	var encoded sql.NullString
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE _k = ? AND _c = ?", fam, t.name)
	err := t.eng.db.QueryRowContext(ctx, stmt, rowKey, qual).Scan(&encoded)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		old = 0
	case err != nil:
		return 0, wrapErr(err)
	case encoded.Valid:
		raw, decErr := base64.StdEncoding.DecodeString(encoded.String)
		if decErr != nil || len(raw) != 8 {
			return 0, fmt.Errorf("%w: bad counter cell on %q %q", engine.ErrBackend, rowKey, column)
		}
		old = int64(binary.BigEndian.Uint64(raw))
	}

	next := old + delta
	raw := make([]byte, 8)
	binary.BigEndian.PutUint64(raw, uint64(next))
	upsert := fmt.Sprintf(
		"INSERT INTO %s (_k, _c, %s) VALUES (?, ?, ?) ON CONFLICT(_k, _c) DO UPDATE SET %s = excluded.%s",
		t.name, fam, fam, fam)
	if _, err := t.eng.db.ExecContext(ctx, upsert, rowKey, qual,
		base64.StdEncoding.EncodeToString(raw)); err != nil {
		return 0, wrapErr(err)
	}
	return next, nil
}

// ColumnFamilies lists the family columns of the table.
func (t *Table) ColumnFamilies(ctx context.Context) ([]string, error) {
	if !t.admin {
		return nil, fmt.Errorf("sqlite: column family listing needs an admin table")
	}
	rows, err := t.eng.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%s)", t.name))
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var families []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, wrapErr(err)
		}
		if name == "_k" || name == "_c" || name == "_row_meta" {
			continue
		}
		families = append(families, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return families, nil
}
