package util

import (
	"testing"
)

func TestHashKeyDeterministic(t *testing.T) {
	keys := []string{"", "a", "user:1001", "some:longer:key:with:segments"}
	for _, key := range keys {
		if HashKey(key) != HashKey(key) {
			t.Errorf("HashKey(%q) is not deterministic", key)
		}
	}
}

func TestHashKeyDistinct(t *testing.T) {
	if HashKey("user:1001") == HashKey("user:1002") {
		t.Error("Expected different hashes for different keys")
	}
}

func TestShardIndex(t *testing.T) {
	shards := 16
	for _, key := range []string{"a", "b", "user:1", "user:2", ""} {
		idx := ShardIndex(HashKey(key), shards)
		if idx < 0 || idx >= shards {
			t.Errorf("ShardIndex(%q) = %d, out of range [0,%d)", key, idx, shards)
		}
	}
}

func TestNextPow2(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{16, 16},
		{17, 32},
		{1000, 1024},
	}
	for _, tt := range tests {
		if got := NextPow2(tt.in); got != tt.want {
			t.Errorf("NextPow2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestLockOrderTotal(t *testing.T) {
	keys := []string{"a", "b", "c", "user:1", "user:2"}
	for _, a := range keys {
		for _, b := range keys {
			if a == b {
				if LockOrder(a, b) {
					t.Errorf("LockOrder(%q, %q) should be false for equal keys", a, b)
				}
				continue
			}
			if LockOrder(a, b) == LockOrder(b, a) {
				t.Errorf("LockOrder must be antisymmetric for %q and %q", a, b)
			}
		}
	}
}
