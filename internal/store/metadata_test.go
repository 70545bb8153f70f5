package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattledb/cattledb/internal/types"
)

func TestMetadataPutGet(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	n, err := conn.Metadata.Put(ctx, "device", "dev1", "location",
		map[string]any{"lat": "47.1", "lon": "9.5"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = conn.Metadata.Put(ctx, "device", "dev1", "owner",
		map[string]any{"name": "alice"}, false)
	require.NoError(t, err)

	items, err := conn.Metadata.GetMetadata(ctx, "device", "dev1", nil, false)
	require.NoError(t, err)
	require.Len(t, items, 2)
	byKey := map[string]types.MetaDataItem{}
	for _, item := range items {
		byKey[item.Key] = item
	}
	assert.Equal(t, "device", byKey["location"].ObjectName)
	assert.Equal(t, "dev1", byKey["location"].ObjectID)
	assert.Equal(t, map[string]any{"lat": "47.1", "lon": "9.5"}, byKey["location"].Data)
	assert.Equal(t, map[string]any{"name": "alice"}, byKey["owner"].Data)
}

func TestMetadataKeyFilter(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	for _, key := range []string{"one", "two", "three"} {
		_, err := conn.Metadata.Put(ctx, "device", "dev1", key,
			map[string]any{"k": key}, false)
		require.NoError(t, err)
	}

	items, err := conn.Metadata.GetMetadata(ctx, "device", "dev1", []string{"two"}, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "two", items[0].Key)
}

func TestMetadataInternalFamilySeparation(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.Metadata.Put(ctx, "device", "dev1", "secret",
		map[string]any{"token": "x"}, true)
	require.NoError(t, err)
	_, err = conn.Metadata.Put(ctx, "device", "dev1", "public",
		map[string]any{"label": "y"}, false)
	require.NoError(t, err)

	public, err := conn.Metadata.GetMetadata(ctx, "device", "dev1", nil, false)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "public", public[0].Key)

	internal, err := conn.Metadata.GetMetadata(ctx, "device", "dev1", nil, true)
	require.NoError(t, err)
	require.Len(t, internal, 1)
	assert.Equal(t, "secret", internal[0].Key)
}

func TestMetadataBulk(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	items := []types.MetaDataItem{
		{ObjectName: "device", ObjectID: "dev1", Key: "loc", Data: map[string]any{"c": "ch"}},
		{ObjectName: "device", ObjectID: "dev2", Key: "loc", Data: map[string]any{"c": "de"}},
		{ObjectName: "device", ObjectID: "dev3", Key: "loc", Data: map[string]any{"c": "at"}},
	}
	n, err := conn.Metadata.PutItems(ctx, items, false)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := conn.Metadata.GetMetadataBulk(ctx, "device",
		[]string{"dev1", "dev3"}, nil, false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	ids := []string{got[0].ObjectID, got[1].ObjectID}
	assert.ElementsMatch(t, []string{"dev1", "dev3"}, ids)
}

func TestMetadataGuards(t *testing.T) {
	conn := setupTestConnection(t)
	ctx := context.Background()

	_, err := conn.Metadata.PutItems(ctx, nil, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = conn.Metadata.Put(ctx, "device", "dev1", "bad", nil, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = conn.Metadata.Put(ctx, "dev#ice", "dev1", "bad", map[string]any{}, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	missing, err := conn.Metadata.GetMetadata(ctx, "device", "nothere", nil, false)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
