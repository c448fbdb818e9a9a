package skiplist_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmem/fastmem/internal/storage/skiplist"
)

func TestSkipList_Insert(t *testing.T) {
	sl := skiplist.New()

	sl.Insert("alice", 10)
	sl.Insert("bob", 5)
	sl.Insert("carol", 20)

	assert.Equal(t, 3, sl.Len())

	elems := sl.RangeByScore(0, 100)
	require.Len(t, elems, 3)
	assert.Equal(t, "bob", elems[0].Member)
	assert.Equal(t, "alice", elems[1].Member)
	assert.Equal(t, "carol", elems[2].Member)
}

func TestSkipList_OrderWithTies(t *testing.T) {
	sl := skiplist.New()

	sl.Insert("zeta", 1)
	sl.Insert("alpha", 1)
	sl.Insert("mid", 1)

	elems := sl.RangeByScore(1, 1)
	require.Len(t, elems, 3)

	// Equal scores order by member.
	assert.Equal(t, "alpha", elems[0].Member)
	assert.Equal(t, "mid", elems[1].Member)
	assert.Equal(t, "zeta", elems[2].Member)
}

func TestSkipList_Delete(t *testing.T) {
	sl := skiplist.New()

	sl.Insert("alice", 10)
	sl.Insert("bob", 5)

	assert.True(t, sl.Delete("alice", 10))
	assert.False(t, sl.Delete("alice", 10))
	assert.False(t, sl.Delete("bob", 99))

	assert.Equal(t, 1, sl.Len())
	elems := sl.RangeByScore(0, 100)
	require.Len(t, elems, 1)
	assert.Equal(t, "bob", elems[0].Member)
}

func TestSkipList_RangeByScore(t *testing.T) {
	sl := skiplist.New()
	for i := 0; i < 100; i++ {
		sl.Insert(fmt.Sprintf("m%03d", i), float64(i))
	}

	elems := sl.RangeByScore(10, 19)
	require.Len(t, elems, 10)
	assert.Equal(t, float64(10), elems[0].Score)
	assert.Equal(t, float64(19), elems[len(elems)-1].Score)

	assert.Empty(t, sl.RangeByScore(200, 300))
	assert.Empty(t, sl.RangeByScore(19, 10))
}

func TestSkipList_Iterator(t *testing.T) {
	sl := skiplist.New()
	sl.Insert("a", 3)
	sl.Insert("b", 1)
	sl.Insert("c", 2)

	var members []string
	it := sl.Iterator()
	for it.Next() {
		members = append(members, it.Element().Member)
	}
	assert.Equal(t, []string{"b", "c", "a"}, members)
}

func BenchmarkSkipListInsert(b *testing.B) {
	sl := skiplist.New()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sl.Insert(fmt.Sprintf("member-%d", i), float64(i%1000))
	}
}
