package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmem/fastmem/internal/service"
)

func TestEvictionService_LRUOrder(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{Policy: service.PolicyLRU}, nil)

	svc.RecordWrite("a", time.Time{})
	svc.RecordWrite("b", time.Time{})
	svc.RecordWrite("c", time.Time{})

	// Least recently used first.
	assert.Equal(t, []string{"a", "b", "c"}, svc.Victims(3))

	svc.RecordAccess("a")
	assert.Equal(t, []string{"b", "c", "a"}, svc.Victims(3))
}

func TestEvictionService_LRUVictimLimit(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{Policy: service.PolicyLRU}, nil)

	svc.RecordWrite("a", time.Time{})
	svc.RecordWrite("b", time.Time{})

	assert.Equal(t, []string{"a"}, svc.Victims(1))
}

func TestEvictionService_LFUPrefersColdKeys(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{Policy: service.PolicyLFU}, nil)

	svc.RecordWrite("hot", time.Time{})
	svc.RecordWrite("cold", time.Time{})
	for i := 0; i < 5; i++ {
		svc.RecordAccess("hot")
	}

	victims := svc.Victims(1)
	require.Len(t, victims, 1)
	assert.Equal(t, "cold", victims[0])
}

func TestEvictionService_LFUTieBreaksOldestFirst(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{Policy: service.PolicyLFU}, nil)

	svc.RecordWrite("first", time.Time{})
	svc.RecordWrite("second", time.Time{})

	// Same frequency: the key inserted earlier goes first.
	assert.Equal(t, []string{"first", "second"}, svc.Victims(2))
}

func TestEvictionService_RecordRemove(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{}, nil)

	svc.RecordWrite("a", time.Time{})
	svc.RecordWrite("b", time.Time{})
	require.Equal(t, 2, svc.Tracked())

	svc.RecordRemove("a")
	assert.Equal(t, 1, svc.Tracked())
	assert.Equal(t, []string{"b"}, svc.Victims(10))
}

func TestEvictionService_DueExpired(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{}, nil)

	now := time.Now()
	svc.RecordWrite("soon", now.Add(10*time.Millisecond))
	svc.RecordWrite("later", now.Add(time.Hour))
	svc.RecordWrite("never", time.Time{})

	due := svc.DueExpired(now.Add(50*time.Millisecond), 10)
	assert.Equal(t, []string{"soon"}, due)

	// Popped keys do not come back without RestoreExpiry.
	assert.Empty(t, svc.DueExpired(now.Add(50*time.Millisecond), 10))

	svc.RestoreExpiry("soon")
	assert.Equal(t, []string{"soon"}, svc.DueExpired(now.Add(50*time.Millisecond), 10))
}

func TestEvictionService_RearmedExpirySkipsStaleHeapItem(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{}, nil)

	now := time.Now()
	svc.RecordWrite("k", now.Add(10*time.Millisecond))
	// Rewrite pushes the deadline out; the old heap item goes stale.
	svc.RecordWrite("k", now.Add(time.Hour))

	assert.Empty(t, svc.DueExpired(now.Add(time.Minute), 10))

	due := svc.DueExpired(now.Add(2*time.Hour), 10)
	assert.Equal(t, []string{"k"}, due)
}

func TestEvictionService_NextExpiry(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{}, nil)

	_, ok := svc.NextExpiry()
	assert.False(t, ok)

	now := time.Now()
	svc.RecordWrite("k", now.Add(time.Hour))
	at, ok := svc.NextExpiry()
	require.True(t, ok)
	assert.Equal(t, now.Add(time.Hour), at)
}

func TestEvictionService_Reset(t *testing.T) {
	svc := service.NewEvictionService(&service.EvictionConfig{}, nil)

	svc.RecordWrite("a", time.Now().Add(time.Hour))
	svc.Reset()

	assert.Equal(t, 0, svc.Tracked())
	assert.Empty(t, svc.Victims(10))
	_, ok := svc.NextExpiry()
	assert.False(t, ok)
}
