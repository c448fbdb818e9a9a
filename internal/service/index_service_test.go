package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmem/fastmem/internal/errors"
)

func TestIndex_FieldIndexOverHashes(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.HSet(ctx, "users:1", "name", []byte("John"))
	require.NoError(t, err)
	_, err = store.HSet(ctx, "users:2", "name", []byte("John"))
	require.NoError(t, err)
	_, err = store.HSet(ctx, "users:3", "name", []byte("Alice"))
	require.NoError(t, err)

	// Existing entries are scanned in at creation.
	require.NoError(t, store.CreateIndex(ctx, "by_name", "users:*", "name"))

	keys, err := store.SearchByIndex("by_name", "John")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:1", "users:2"}, keys)

	// A later write updates the index before it returns.
	_, err = store.HSet(ctx, "users:1", "name", []byte("Jane"))
	require.NoError(t, err)

	keys, err = store.SearchByIndex("by_name", "John")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:2"}, keys)

	keys, err = store.SearchByIndex("by_name", "Jane")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:1"}, keys)
}

func TestIndex_ScalarIndex(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "by_region", "session:*", ""))

	_, err := store.Set(ctx, "session:1", []byte("eu"), 0)
	require.NoError(t, err)
	_, err = store.Set(ctx, "session:2", []byte("us"), 0)
	require.NoError(t, err)
	_, err = store.Set(ctx, "session:3", []byte("eu"), 0)
	require.NoError(t, err)

	keys, err := store.SearchByIndex("by_region", "eu")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:1", "session:3"}, keys)

	// Overwriting moves the key between buckets.
	_, err = store.Set(ctx, "session:1", []byte("us"), 0)
	require.NoError(t, err)

	keys, err = store.SearchByIndex("by_region", "eu")
	require.NoError(t, err)
	assert.Equal(t, []string{"session:3"}, keys)
}

func TestIndex_PatternFilters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "by_name", "users:*", "name"))

	_, err := store.HSet(ctx, "users:1", "name", []byte("John"))
	require.NoError(t, err)
	_, err = store.HSet(ctx, "admin:1", "name", []byte("John"))
	require.NoError(t, err)

	keys, err := store.SearchByIndex("by_name", "John")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:1"}, keys)
}

func TestIndex_RemovalDropsKeys(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "by_name", "users:*", "name"))

	_, err := store.HSet(ctx, "users:1", "name", []byte("John"))
	require.NoError(t, err)

	_, err = store.Delete(ctx, "users:1")
	require.NoError(t, err)

	keys, err := store.SearchByIndex("by_name", "John")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIndex_FieldDeleteDropsKey(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "by_name", "users:*", "name"))

	_, err := store.HSet(ctx, "users:1", "name", []byte("John"))
	require.NoError(t, err)
	_, err = store.HSet(ctx, "users:1", "email", []byte("john@example.com"))
	require.NoError(t, err)

	_, err = store.HDel(ctx, "users:1", "name")
	require.NoError(t, err)

	keys, err := store.SearchByIndex("by_name", "John")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIndex_CreateDuplicateFails(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "idx", "k:*", ""))

	err := store.CreateIndex(ctx, "idx", "k:*", "")
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
}

func TestIndex_LookupUnknownIndex(t *testing.T) {
	store := setupStore(t)

	_, err := store.SearchByIndex("nope", "v")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestIndex_Drop(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateIndex(ctx, "idx", "k:*", ""))
	assert.True(t, store.DropIndex("idx"))
	assert.False(t, store.DropIndex("idx"))

	_, err := store.SearchByIndex("idx", "v")
	require.Error(t, err)
}
