package persist_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/model"
	"github.com/fastmem/fastmem/internal/persist"
)

func testRecords() []model.SnapshotRecord {
	list := model.NewList()
	list.PushBack([]byte("a"), []byte("b"))

	set := model.NewSet()
	set.Add("x")
	set.Add("y")

	hash := model.NewHash()
	hash.SetField("name", []byte("John"))

	zset := model.NewSortedSet()
	zset.Add("alice", 1.5)
	zset.Add("bob", -3)

	return []model.SnapshotRecord{
		{Key: "scalar", Value: model.NewScalar([]byte("value"))},
		{Key: "list", Value: list},
		{Key: "set", Value: set},
		{Key: "hash", Value: hash},
		{Key: "zset", Value: zset, ExpireAt: time.Unix(0, time.Now().Add(time.Hour).UnixNano())},
	}
}

func TestSnapshot_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.snap")
	snap := persist.NewSnapshot(path, nil)

	originals := testRecords()
	require.NoError(t, snap.Write(originals))
	require.True(t, snap.Exists())

	loaded, err := snap.Read()
	require.NoError(t, err)
	require.Len(t, loaded, len(originals))

	byKey := make(map[string]model.SnapshotRecord)
	for _, rec := range loaded {
		byKey[rec.Key] = rec
	}

	assert.Equal(t, []byte("value"), byKey["scalar"].Value.(*model.Scalar).Data)

	list := byKey["list"].Value.(*model.List)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, list.Elems)

	set := byKey["set"].Value.(*model.Set)
	assert.True(t, set.Contains("x"))
	assert.True(t, set.Contains("y"))

	hash := byKey["hash"].Value.(*model.Hash)
	name, ok := hash.GetField("name")
	require.True(t, ok)
	assert.Equal(t, []byte("John"), name)

	zset := byKey["zset"].Value.(*model.SortedSet)
	score, ok := zset.Score("alice")
	require.True(t, ok)
	assert.Equal(t, 1.5, score)
	score, ok = zset.Score("bob")
	require.True(t, ok)
	assert.Equal(t, float64(-3), score)

	assert.True(t, byKey["scalar"].ExpireAt.IsZero())
	assert.True(t, byKey["zset"].ExpireAt.Equal(originals[4].ExpireAt))
}

func TestSnapshot_EmptyRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.snap")
	snap := persist.NewSnapshot(path, nil)

	require.NoError(t, snap.Write(nil))

	loaded, err := snap.Read()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSnapshot_ReadMissingFile(t *testing.T) {
	snap := persist.NewSnapshot(filepath.Join(t.TempDir(), "absent.snap"), nil)

	assert.False(t, snap.Exists())
	_, err := snap.Read()
	require.Error(t, err)
}

func TestSnapshot_CorruptedPayloadRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.snap")
	snap := persist.NewSnapshot(path, nil)
	require.NoError(t, snap.Write(testRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip one byte in the record region, past the header.
	data[len(data)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = snap.Read()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCorruptedData, errors.GetCode(err))
}

func TestSnapshot_BadMagicRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.snap")
	require.NoError(t, os.WriteFile(path, []byte("NOTASNAP\x00\x00\x00\x00"), 0o644))

	snap := persist.NewSnapshot(path, nil)
	_, err := snap.Read()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeCorruptedData, errors.GetCode(err))
}

func TestSnapshot_OverwriteReplacesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.snap")
	snap := persist.NewSnapshot(path, nil)

	require.NoError(t, snap.Write(testRecords()))
	require.NoError(t, snap.Write([]model.SnapshotRecord{
		{Key: "only", Value: model.NewScalar([]byte("v"))},
	}))

	loaded, err := snap.Read()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "only", loaded[0].Key)
}
