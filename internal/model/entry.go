package model

import "time"

// Entry is the per-key record owned by the key directory. Eviction and
// index bookkeeping refer to entries by key only, never by pointer.
type Entry struct {
	Key         string
	Value       Value
	CreatedAt   time.Time
	LastAccess  time.Time
	AccessCount int64
	ExpireAt    time.Time // zero means no expiry
	Version     uint64    // bumped on every successful mutation
}

// Expired reports whether the entry's expiry has passed.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpireAt.IsZero() && !now.Before(e.ExpireAt)
}

// RemainingTTL returns the remaining time to live, or zero when the entry
// has no expiry.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	if e.ExpireAt.IsZero() {
		return 0
	}
	ttl := e.ExpireAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Touch records an access for recency/frequency bookkeeping.
func (e *Entry) Touch(now time.Time) {
	e.LastAccess = now
	e.AccessCount++
}

// SnapshotRecord is one key's worth of a point-in-time export.
type SnapshotRecord struct {
	Key      string
	Value    Value
	ExpireAt time.Time
}
