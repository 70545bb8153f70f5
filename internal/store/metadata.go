package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cattledb/cattledb/internal/engine"
	"github.com/cattledb/cattledb/internal/signals"
	"github.com/cattledb/cattledb/internal/types"
)

const (
	metadataTable  = "metadata"
	publicFamily   = "p"
	internalFamily = "i"
)

// MetaDataStore attaches namespaced key/value documents to objects. One row
// per (object_name, object_id); public entries live in family "p", internal
// ones in "i"; values are msgpack maps.
type MetaDataStore struct {
	conn *Connection
}

func metadataFamily(internal bool) string {
	if internal {
		return internalFamily
	}
	return publicFamily
}

func (s *MetaDataStore) rowKey(objectName, objectID string) (string, error) {
	if objectName == "" || objectID == "" ||
		strings.Contains(objectName, "#") || strings.Contains(objectID, "#") {
		return "", fmt.Errorf("%w: object %q/%q", ErrInvalidArgument, objectName, objectID)
	}
	return fmt.Sprintf("%s#%s", objectName, objectID), nil
}

// PutItems writes a batch of metadata entries. Every item's data must be a
// map. Returns the number of items written.
func (s *MetaDataStore) PutItems(ctx context.Context, items []types.MetaDataItem, internal bool) (int, error) {
	if err := s.conn.writeGuard("metadata put"); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: no items", ErrInvalidArgument)
	}
	family := metadataFamily(internal)

	started := time.Now()
	rowKeys := make([]string, 0, len(items))
	upserts := make([]engine.RowUpsert, 0, len(items))
	for _, item := range items {
		if item.Data == nil {
			return 0, fmt.Errorf("%w: item %s.%s.%s carries no data map",
				ErrInvalidArgument, item.ObjectName, item.ObjectID, item.Key)
		}
		rowKey, err := s.rowKey(item.ObjectName, item.ObjectID)
		if err != nil {
			return 0, err
		}
		raw, err := msgpack.Marshal(item.Data)
		if err != nil {
			return 0, fmt.Errorf("metadata %s.%s.%s: %w", item.ObjectName, item.ObjectID, item.Key, err)
		}
		rowKeys = append(rowKeys, rowKey)
		upserts = append(upserts, engine.RowUpsert{
			RowKey: rowKey,
			Cells:  map[string][]byte{engine.Column(family, item.Key): raw},
		})
	}

	tbl, err := s.conn.table(ctx, metadataTable)
	if err != nil {
		return 0, err
	}
	if err := tbl.UpsertRows(ctx, upserts); err != nil {
		return 0, err
	}
	s.conn.emit(ctx, signals.MetadataPut, "PUT", len(items), rowKeys, started)
	return len(items), nil
}

// Put writes one metadata entry.
func (s *MetaDataStore) Put(ctx context.Context, objectName, objectID, key string, data map[string]any, internal bool) (int, error) {
	return s.PutItems(ctx, []types.MetaDataItem{{
		ObjectName: objectName,
		ObjectID:   objectID,
		Key:        key,
		Data:       data,
	}}, internal)
}

// GetMetadata reads the entries of one object, optionally restricted to the
// given keys. An object without entries yields an empty result.
func (s *MetaDataStore) GetMetadata(ctx context.Context, objectName, objectID string, keys []string, internal bool) ([]types.MetaDataItem, error) {
	return s.GetMetadataBulk(ctx, objectName, []string{objectID}, keys, internal)
}

// GetMetadataBulk reads the entries of several objects in one batched scan.
func (s *MetaDataStore) GetMetadataBulk(ctx context.Context, objectName string, objectIDs []string, keys []string, internal bool) ([]types.MetaDataItem, error) {
	rowKeys := make([]string, 0, len(objectIDs))
	for _, id := range objectIDs {
		rowKey, err := s.rowKey(objectName, id)
		if err != nil {
			return nil, err
		}
		rowKeys = append(rowKeys, rowKey)
	}
	family := metadataFamily(internal)
	var wanted map[string]bool
	if keys != nil {
		wanted = make(map[string]bool, len(keys))
		for _, k := range keys {
			wanted[k] = true
		}
	}

	started := time.Now()
	tbl, err := s.conn.table(ctx, metadataTable)
	if err != nil {
		return nil, err
	}
	var items []types.MetaDataItem
	var cellErr error
	query := engine.ScanQuery{RowKeys: rowKeys, Families: []string{family}}
	err = tbl.Scan(ctx, query, func(row engine.Row) bool {
		name, id, ok := strings.Cut(row.Key, "#")
		if !ok {
			return true
		}
		for _, cell := range row.Cells {
			if cell.Family() != family {
				continue
			}
			key := cell.Qualifier()
			if wanted != nil && !wanted[key] {
				continue
			}
			var data map[string]any
			if cellErr = msgpack.Unmarshal(cell.Value, &data); cellErr != nil {
				cellErr = fmt.Errorf("metadata %s.%s.%s: %w", name, id, key, cellErr)
				return false
			}
			items = append(items, types.MetaDataItem{
				ObjectName: name,
				ObjectID:   id,
				Key:        key,
				Data:       data,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if cellErr != nil {
		return nil, cellErr
	}
	s.conn.emit(ctx, signals.MetadataGet, "GET", len(rowKeys), rowKeys, started)
	return items, nil
}
