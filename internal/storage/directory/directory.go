// Package directory implements the key directory: a sharded map of key to
// entry with per-key locks, version counters and expiry bookkeeping. All
// mutations flow through it; eviction, indexing and the change feed observe
// writes via the Observer callbacks, invoked while the key lock is held.
package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/model"
	"github.com/fastmem/fastmem/internal/util"
)

// WriteEvent describes one successful mutation. Value references are only
// valid for the duration of the callback; observers needing to retain data
// must copy it.
type WriteEvent struct {
	Key        string
	Kind       model.OpKind
	OldVersion uint64 // 0 when the entry was created
	NewVersion uint64
	Created    bool
	ExpireAt   time.Time
	OldSize    int64
	NewSize    int64
	At         time.Time

	// OldValue is the replaced value for whole-value writes (OpSet), nil
	// otherwise. NewValue is the post-mutation value.
	OldValue model.Value
	NewValue model.Value

	// Field-level before/after images for hash field mutations, consumed
	// by secondary indexes.
	Field      string
	OldData    []byte
	OldPresent bool
	NewData    []byte
	NewPresent bool
}

// RemoveEvent describes the removal of an entry (delete, expiry, eviction,
// or a container draining to empty).
type RemoveEvent struct {
	Key        string
	Kind       model.OpKind
	OldVersion uint64
	Value      model.Value // the removed value; valid during the callback only
	Size       int64
	At         time.Time
}

// Observer receives synchronous notifications from the directory. Callbacks
// run while the affected key's lock is held and must not acquire key locks.
type Observer interface {
	EntryAccessed(key string, at time.Time)
	EntryWritten(ev WriteEvent)
	EntryRemoved(ev RemoveEvent)
}

// nopObserver is installed until the owning service registers itself.
type nopObserver struct{}

func (nopObserver) EntryAccessed(string, time.Time) {}
func (nopObserver) EntryWritten(WriteEvent)         {}
func (nopObserver) EntryRemoved(RemoveEvent)        {}

// keyLock is a per-key lock with a waiter refcount so idle locks can be
// dropped from the shard's lock table.
type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*model.Entry
	locks   map[string]*keyLock
}

// Config holds directory configuration
type Config struct {
	Shards      int
	LockTimeout time.Duration
}

// Directory is the sharded key -> entry store.
type Directory struct {
	shards      []*shard
	shardCount  int
	lockTimeout time.Duration
	observer    Observer
	now         func() time.Time
	logger      *zap.Logger
}

// New creates a directory. Shard counts are rounded up to a power of two.
func New(cfg *Config, logger *zap.Logger) *Directory {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := util.NextPow2(cfg.Shards)
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{
			entries: make(map[string]*model.Entry),
			locks:   make(map[string]*keyLock),
		}
	}
	return &Directory{
		shards:      shards,
		shardCount:  n,
		lockTimeout: cfg.LockTimeout,
		observer:    nopObserver{},
		now:         time.Now,
		logger:      logger,
	}
}

// SetObserver installs the observer. Must be called before the directory
// receives traffic.
func (d *Directory) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	d.observer = o
}

// SetClock overrides the time source. Test hook.
func (d *Directory) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Directory) shardFor(key string) *shard {
	return d.shards[util.ShardIndex(util.HashKey(key), d.shardCount)]
}

// LockKey acquires the per-key lock with bounded waiting. Returns an unlock
// function, or Busy when the configured timeout elapses first.
func (d *Directory) LockKey(ctx context.Context, key string) (func(), error) {
	sh := d.shardFor(key)

	sh.mu.Lock()
	kl, ok := sh.locks[key]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		sh.locks[key] = kl
	}
	kl.refs++
	sh.mu.Unlock()

	acquireCtx := ctx
	var cancel context.CancelFunc
	if d.lockTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, d.lockTimeout)
	}
	err := kl.sem.Acquire(acquireCtx, 1)
	if cancel != nil {
		cancel()
	}
	if err != nil {
		d.releaseRef(sh, key, kl)
		return nil, errors.Busy(key, err)
	}

	return func() {
		kl.sem.Release(1)
		d.releaseRef(sh, key, kl)
	}, nil
}

func (d *Directory) releaseRef(sh *shard, key string, kl *keyLock) {
	sh.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(sh.locks, key)
	}
	sh.mu.Unlock()
}

// LockKeys acquires several per-key locks in the fixed global order
// (ascending key hash, ties by key bytes). Duplicate keys are collapsed.
// On failure every lock already held is released.
func (d *Directory) LockKeys(ctx context.Context, keys []string) (func(), error) {
	ordered := dedupe(keys)
	sort.Slice(ordered, func(i, j int) bool { return util.LockOrder(ordered[i], ordered[j]) })

	unlocks := make([]func(), 0, len(ordered))
	releaseAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, key := range ordered {
		unlock, err := d.LockKey(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return releaseAll, nil
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// getEntry reads the entry pointer. The entry's fields may only be touched
// while the key lock is held.
func (d *Directory) getEntry(key string) *model.Entry {
	sh := d.shardFor(key)
	sh.mu.RLock()
	e := sh.entries[key]
	sh.mu.RUnlock()
	return e
}

func (d *Directory) setEntry(e *model.Entry) {
	sh := d.shardFor(e.Key)
	sh.mu.Lock()
	sh.entries[e.Key] = e
	sh.mu.Unlock()
}

func (d *Directory) deleteEntry(key string) {
	sh := d.shardFor(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
}

// mutateEntry applies fn to the entry's fields under the shard mutex.
// Version and ExpireAt are read by the lock-free paths (Version, Keys),
// so every write to them must go through here. Caller must hold the key
// lock.
func (d *Directory) mutateEntry(e *model.Entry, fn func()) {
	sh := d.shardFor(e.Key)
	sh.mu.Lock()
	fn()
	sh.mu.Unlock()
}

// liveEntry returns the entry if present and unexpired. An expired entry is
// removed on sight (lazy expiry) and reported as absent. Caller must hold
// the key lock.
func (d *Directory) liveEntry(key string, now time.Time) *model.Entry {
	e := d.getEntry(key)
	if e == nil {
		return nil
	}
	if e.Expired(now) {
		d.removeLocked(e, model.OpExpire, now)
		return nil
	}
	return e
}

// removeLocked drops the entry and notifies the observer. Caller must hold
// the key lock.
func (d *Directory) removeLocked(e *model.Entry, kind model.OpKind, now time.Time) {
	d.deleteEntry(e.Key)
	d.observer.EntryRemoved(RemoveEvent{
		Key:        e.Key,
		Kind:       kind,
		OldVersion: e.Version,
		Value:      e.Value,
		Size:       e.Value.SizeEstimate(),
		At:         now,
	})
}

// Get returns a deep copy of the key's value, deleting it first when the
// expiry has passed.
func (d *Directory) Get(ctx context.Context, key string) (model.Value, error) {
	unlock, err := d.LockKey(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := d.now()
	e := d.liveEntry(key, now)
	if e == nil {
		return nil, errors.NotFound(key)
	}
	e.Touch(now)
	d.observer.EntryAccessed(key, now)
	return e.Value.Clone(), nil
}

// View runs fn against the key's live value under the key lock. The value
// must not be retained or mutated by fn.
func (d *Directory) View(ctx context.Context, key string, fn func(v model.Value) error) error {
	unlock, err := d.LockKey(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	now := d.now()
	e := d.liveEntry(key, now)
	if e == nil {
		return errors.NotFound(key)
	}
	e.Touch(now)
	d.observer.EntryAccessed(key, now)
	return fn(e.Value)
}

// Exists reports whether the key holds a live entry.
func (d *Directory) Exists(ctx context.Context, key string) (bool, error) {
	err := d.View(ctx, key, func(model.Value) error { return nil })
	if err == nil {
		return true, nil
	}
	if errors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// Version returns the key's current version without taking the key lock.
// Expired entries report as absent but are left for lazy removal. Used by
// the transaction coordinator's watch and validate steps.
func (d *Directory) Version(key string) (uint64, bool) {
	sh := d.shardFor(key)
	sh.mu.RLock()
	e := sh.entries[key]
	sh.mu.RUnlock()
	if e == nil || e.Expired(d.now()) {
		return 0, false
	}
	return e.Version, true
}

// RemainingTTL returns the key's remaining time to live. Zero duration
// means the key has no expiry.
func (d *Directory) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	unlock, err := d.LockKey(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := d.now()
	e := d.liveEntry(key, now)
	if e == nil {
		return 0, errors.NotFound(key)
	}
	return e.RemainingTTL(now), nil
}

// Len returns the number of stored entries, including expired entries that
// have not been swept yet (they still occupy memory).
func (d *Directory) Len() int {
	n := 0
	for _, sh := range d.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Keys returns all live keys in unspecified order.
func (d *Directory) Keys() []string {
	now := d.now()
	var out []string
	for _, sh := range d.shards {
		sh.mu.RLock()
		for k, e := range sh.entries {
			if !e.Expired(now) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Range visits every live key one at a time under its key lock. fn must be
// quick and must not call back into the directory. Iteration stops early
// when fn returns false.
func (d *Directory) Range(ctx context.Context, fn func(key string, v model.Value, expireAt time.Time) bool) error {
	for _, key := range d.Keys() {
		unlock, err := d.LockKey(ctx, key)
		if err != nil {
			return err
		}
		e := d.liveEntry(key, d.now())
		if e == nil {
			unlock()
			continue
		}
		ok := fn(key, e.Value, e.ExpireAt)
		unlock()
		if !ok {
			return nil
		}
	}
	return nil
}

// RemoveExpired deletes the key if its expiry has passed. Used by the TTL
// sweep; reports whether a removal happened.
func (d *Directory) RemoveExpired(ctx context.Context, key string) (bool, error) {
	unlock, err := d.LockKey(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	e := d.getEntry(key)
	now := d.now()
	if e == nil || !e.Expired(now) {
		return false, nil
	}
	d.removeLocked(e, model.OpExpire, now)
	return true, nil
}

// Evict removes the key on behalf of the eviction engine. Reports whether
// an entry was removed.
func (d *Directory) Evict(ctx context.Context, key string) (bool, error) {
	unlock, err := d.LockKey(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	e := d.getEntry(key)
	if e == nil {
		return false, nil
	}
	d.removeLocked(e, model.OpEvict, d.now())
	return true, nil
}

// Clear removes every entry, one key lock at a time.
func (d *Directory) Clear(ctx context.Context) error {
	for _, sh := range d.shards {
		sh.mu.RLock()
		keys := make([]string, 0, len(sh.entries))
		for k := range sh.entries {
			keys = append(keys, k)
		}
		sh.mu.RUnlock()

		for _, key := range keys {
			unlock, err := d.LockKey(ctx, key)
			if err != nil {
				return err
			}
			if e := d.getEntry(key); e != nil {
				d.removeLocked(e, model.OpDelete, d.now())
			}
			unlock()
		}
	}
	return nil
}

// Export captures a point-in-time consistent snapshot by holding every
// per-key lock in the fixed global order for the duration of the copy.
func (d *Directory) Export(ctx context.Context) ([]model.SnapshotRecord, error) {
	keys := d.Keys()
	unlock, err := d.LockKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := d.now()
	records := make([]model.SnapshotRecord, 0, len(keys))
	for _, key := range keys {
		e := d.getEntry(key)
		if e == nil || e.Expired(now) {
			continue
		}
		records = append(records, model.SnapshotRecord{
			Key:      key,
			Value:    e.Value.Clone(),
			ExpireAt: e.ExpireAt,
		})
	}
	return records, nil
}
