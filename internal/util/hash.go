package util

// Key hashing for shard selection and the global lock-acquisition order.
// 64-bit FNV-1a, inlined to avoid the hash.Hash allocation on the hot path.

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// HashKey hashes a key using 64-bit FNV-1a.
func HashKey(key string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= fnvPrime64
	}
	return h
}

// ShardIndex maps a 64-bit hash to a shard index.
// Shard counts are forced to powers of two, so the mask path always applies.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(hash & uint64(shards-1))
}

// NextPow2 rounds n up to the next power of two (minimum 1).
func NextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// LockOrder reports whether key a must be locked before key b under the
// fixed global acquisition order: ascending hash, ties broken by key bytes.
func LockOrder(a, b string) bool {
	ha, hb := HashKey(a), HashKey(b)
	if ha != hb {
		return ha < hb
	}
	return a < b
}
