package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cattledb/cattledb/internal/engine"
	"github.com/cattledb/cattledb/internal/signals"
)

const (
	configTable  = "config"
	configFamily = "c"
)

// ConfigStore persists small JSON values under string keys. It carries the
// definition lists and the init marker; concurrent writers to the same key
// are last-writer-wins.
type ConfigStore struct {
	conn *Connection
}

// Put stores value as JSON under key. Keys must be longer than 2 chars so
// they cannot collide with column family names.
func (s *ConfigStore) Put(ctx context.Context, key string, value any) error {
	if err := s.conn.writeGuard("config put"); err != nil {
		return err
	}
	if len(key) <= 2 {
		return fmt.Errorf("%w: config key %q too short", ErrInvalidArgument, key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("config %q: %w", key, err)
	}
	started := time.Now()
	tbl, err := s.conn.table(ctx, configTable)
	if err != nil {
		return err
	}
	column := engine.Column(configFamily, "value")
	if err := tbl.UpsertRow(ctx, key, map[string][]byte{column: raw}); err != nil {
		return err
	}
	s.conn.emit(ctx, signals.ConfigPut, "PUT", 1, []string{key}, started)
	return nil
}

// Get reads the JSON value under key into out. Missing keys surface
// engine.ErrNotFound.
func (s *ConfigStore) Get(ctx context.Context, key string, out any) error {
	started := time.Now()
	tbl, err := s.conn.table(ctx, configTable)
	if err != nil {
		return err
	}
	row, err := tbl.ReadRow(ctx, key, []string{configFamily})
	if err != nil {
		return err
	}
	column := engine.Column(configFamily, "value")
	for _, cell := range row.Cells {
		if cell.Column != column {
			continue
		}
		if err := json.Unmarshal(cell.Value, out); err != nil {
			return fmt.Errorf("config %q: %w", key, err)
		}
		s.conn.emit(ctx, signals.ConfigGet, "GET", 1, []string{key}, started)
		return nil
	}
	return fmt.Errorf("config %q: %w", key, engine.ErrNotFound)
}
