package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmem/fastmem/internal/model"
)

func TestScalarClone(t *testing.T) {
	original := model.NewScalar([]byte("hello"))
	clone := original.Clone().(*model.Scalar)

	clone.Data[0] = 'X'
	assert.Equal(t, []byte("hello"), original.Data)
}

func TestListPushPop(t *testing.T) {
	list := model.NewList()

	list.PushBack([]byte("b"))
	list.PushFront([]byte("a"))
	list.PushBack([]byte("c"))
	require.Equal(t, 3, list.Len())

	front, ok := list.PopFront()
	require.True(t, ok)
	assert.Equal(t, []byte("a"), front)

	back, ok := list.PopBack()
	require.True(t, ok)
	assert.Equal(t, []byte("c"), back)

	assert.Equal(t, 1, list.Len())
}

func TestListPopEmpty(t *testing.T) {
	list := model.NewList()
	_, ok := list.PopFront()
	assert.False(t, ok)
	_, ok = list.PopBack()
	assert.False(t, ok)
}

func TestSetAddRemove(t *testing.T) {
	set := model.NewSet()

	assert.True(t, set.Add("a"))
	assert.False(t, set.Add("a"))
	assert.True(t, set.Add("b"))
	assert.Equal(t, 2, set.Len())

	assert.True(t, set.Contains("a"))
	assert.True(t, set.Remove("a"))
	assert.False(t, set.Remove("a"))
	assert.False(t, set.Contains("a"))
}

func TestHashFields(t *testing.T) {
	hash := model.NewHash()

	assert.True(t, hash.SetField("name", []byte("John")))
	assert.False(t, hash.SetField("name", []byte("Jane")))

	data, found := hash.GetField("name")
	require.True(t, found)
	assert.Equal(t, []byte("Jane"), data)

	_, found = hash.GetField("missing")
	assert.False(t, found)

	assert.True(t, hash.DeleteField("name"))
	assert.False(t, hash.DeleteField("name"))
	assert.Equal(t, 0, hash.Len())
}

func TestHashSetFieldCopies(t *testing.T) {
	hash := model.NewHash()
	payload := []byte("value")
	hash.SetField("f", payload)

	payload[0] = 'X'
	data, _ := hash.GetField("f")
	assert.Equal(t, []byte("value"), data)
}

func TestSortedSetAddRescore(t *testing.T) {
	zset := model.NewSortedSet()

	assert.True(t, zset.Add("alice", 10))
	assert.False(t, zset.Add("alice", 5))

	score, found := zset.Score("alice")
	require.True(t, found)
	assert.Equal(t, float64(5), score)
	assert.Equal(t, 1, zset.Len())

	// Rescore must not leave a stale entry behind in the ordered index.
	members := zset.RangeByScore(0, 100)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Member)
	assert.Equal(t, float64(5), members[0].Score)
}

func TestSortedSetRange(t *testing.T) {
	zset := model.NewSortedSet()
	zset.Add("low", 1)
	zset.Add("mid", 5)
	zset.Add("high", 9)

	members := zset.RangeByScore(2, 9)
	require.Len(t, members, 2)
	assert.Equal(t, "mid", members[0].Member)
	assert.Equal(t, "high", members[1].Member)
}

func TestSortedSetClone(t *testing.T) {
	zset := model.NewSortedSet()
	zset.Add("alice", 10)

	clone := zset.Clone().(*model.SortedSet)
	clone.Add("bob", 20)

	assert.Equal(t, 1, zset.Len())
	assert.Equal(t, 2, clone.Len())
}

func TestNewValueOfKind(t *testing.T) {
	kinds := []model.ValueType{
		model.ValueTypeScalar,
		model.ValueTypeList,
		model.ValueTypeSet,
		model.ValueTypeHash,
		model.ValueTypeSortedSet,
	}
	for _, kind := range kinds {
		v := model.NewValueOfKind(kind)
		require.NotNil(t, v)
		assert.Equal(t, kind, v.Kind())
	}
}

func TestEntryExpiry(t *testing.T) {
	now := time.Now()
	entry := &model.Entry{
		Key:      "k",
		Value:    model.NewScalar([]byte("v")),
		ExpireAt: now.Add(50 * time.Millisecond),
	}

	assert.False(t, entry.Expired(now))
	assert.True(t, entry.Expired(now.Add(100*time.Millisecond)))
	assert.Equal(t, 50*time.Millisecond, entry.RemainingTTL(now))
}

func TestEntryNoExpiry(t *testing.T) {
	entry := &model.Entry{Key: "k", Value: model.NewScalar([]byte("v"))}
	assert.False(t, entry.Expired(time.Now()))
	assert.Equal(t, time.Duration(0), entry.RemainingTTL(time.Now()))
}
