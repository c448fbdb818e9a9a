package service

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/metrics"
	"github.com/fastmem/fastmem/internal/model"
	"github.com/fastmem/fastmem/internal/storage/directory"
	"github.com/fastmem/fastmem/internal/validation"
)

// StoreConfig holds key directory configuration
type StoreConfig struct {
	Shards      int
	LockTimeout time.Duration
}

// StoreService is the main orchestration layer: it owns the key directory
// and keeps the eviction engine, secondary indexes and the change feed
// consistent with every write before the write returns.
type StoreService struct {
	config    *StoreConfig
	evictCfg  *EvictionConfig
	dir       *directory.Directory
	eviction  *EvictionService
	indexes   *IndexService
	feed      *FeedService
	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	memoryEstimate atomic.Int64
	hits           atomic.Uint64
	misses         atomic.Uint64
	evicted        atomic.Uint64
	expired        atomic.Uint64

	// Transaction counters, maintained by the transaction coordinator.
	txActive    atomic.Int64
	txCommitted atomic.Uint64
	txAborted   atomic.Uint64
}

// NewStoreService creates a new store service
func NewStoreService(cfg *StoreConfig, evictCfg *EvictionConfig, m *metrics.Metrics, logger *zap.Logger) *StoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if evictCfg == nil {
		evictCfg = &EvictionConfig{}
	}

	s := &StoreService{
		config:    cfg,
		evictCfg:  evictCfg,
		eviction:  NewEvictionService(evictCfg, logger),
		indexes:   NewIndexService(logger),
		feed:      NewFeedService(logger),
		validator: validation.NewValidator(),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
	s.dir = directory.New(&directory.Config{
		Shards:      cfg.Shards,
		LockTimeout: cfg.LockTimeout,
	}, logger)
	s.dir.SetObserver(s)
	return s
}

// Directory exposes the underlying key directory to sibling services.
func (s *StoreService) Directory() *directory.Directory { return s.dir }

// SetClock overrides the time source for expiry decisions, here and in
// the key directory. Test hook.
func (s *StoreService) SetClock(now func() time.Time) {
	s.now = now
	s.dir.SetClock(now)
}

// Observer callbacks. All run while the affected key's lock is held.

// EntryAccessed records a read for recency/frequency tracking.
func (s *StoreService) EntryAccessed(key string, _ time.Time) {
	s.eviction.RecordAccess(key)
}

// EntryWritten propagates one write to eviction, indexes and the feed.
func (s *StoreService) EntryWritten(ev directory.WriteEvent) {
	s.eviction.RecordWrite(ev.Key, ev.ExpireAt)
	s.indexes.HandleWrite(ev)
	s.memoryEstimate.Add(ev.NewSize - ev.OldSize)
	s.feed.Publish(ChangeEvent{
		Key:        ev.Key,
		Kind:       ev.Kind,
		OldVersion: ev.OldVersion,
		NewVersion: ev.NewVersion,
		At:         ev.At,
	})
	if s.metrics != nil {
		s.metrics.FeedEventsTotal.Inc()
		s.metrics.UpdateKeyspace(s.dir.Len(), s.memoryEstimate.Load())
	}
}

// EntryRemoved propagates one removal to eviction, indexes and the feed.
func (s *StoreService) EntryRemoved(ev directory.RemoveEvent) {
	s.eviction.RecordRemove(ev.Key)
	s.indexes.HandleRemove(ev)
	s.memoryEstimate.Add(-ev.Size)

	switch ev.Kind {
	case model.OpExpire:
		s.expired.Add(1)
		if s.metrics != nil {
			s.metrics.RecordExpiry()
		}
	case model.OpEvict:
		s.evicted.Add(1)
		if s.metrics != nil {
			s.metrics.RecordEviction(string(s.evictCfg.Policy))
		}
	}

	s.feed.Publish(ChangeEvent{
		Key:        ev.Key,
		Kind:       ev.Kind,
		OldVersion: ev.OldVersion,
		NewVersion: 0,
		At:         ev.At,
	})
	if s.metrics != nil {
		s.metrics.FeedEventsTotal.Inc()
		s.metrics.UpdateKeyspace(s.dir.Len(), s.memoryEstimate.Load())
	}
}

// createCapable reports whether an op kind may insert a new entry and
// therefore needs capacity headroom.
func createCapable(kind model.OpKind) bool {
	switch kind {
	case model.OpSet, model.OpListPush, model.OpSetAdd, model.OpHashSet, model.OpZSetAdd:
		return true
	default:
		return false
	}
}

// ensureCapacity makes room for a write to key, evicting synchronously
// within the configured budget: expired entries first, then the primary
// policy's victims. Returns CapacityExceeded when the budget runs out with
// the store still over its ceiling.
func (s *StoreService) ensureCapacity(ctx context.Context, key string) error {
	maxEntries := s.evictCfg.MaxEntries
	maxMemory := s.evictCfg.MaxMemoryBytes
	if maxEntries <= 0 && maxMemory <= 0 {
		return nil
	}

	over := func() bool {
		projected := s.dir.Len()
		if _, exists := s.dir.Version(key); !exists {
			projected++
		}
		if maxEntries > 0 && projected > maxEntries {
			return true
		}
		return maxMemory > 0 && s.memoryEstimate.Load() > maxMemory
	}
	if !over() {
		return nil
	}

	budget := s.evictCfg.EvictionBudget
	now := s.now()

	// Expired entries are reclaimed before any live entry is sacrificed.
	for _, dueKey := range s.eviction.DueExpired(now, budget) {
		if budget <= 0 || !over() {
			break
		}
		removed, err := s.dir.RemoveExpired(ctx, dueKey)
		if err != nil {
			s.eviction.RestoreExpiry(dueKey)
			continue
		}
		if removed {
			budget--
		}
	}

	for budget > 0 && over() {
		victims := s.eviction.Victims(budget)
		progress := false
		for _, victim := range victims {
			if victim == key {
				continue
			}
			if budget <= 0 || !over() {
				return nil
			}
			removed, err := s.dir.Evict(ctx, victim)
			if err != nil {
				// Victim contended; the budget charge keeps the pass bounded.
				budget--
				continue
			}
			if removed {
				budget--
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	if over() {
		if s.metrics != nil {
			s.metrics.CapacityRefused.Inc()
		}
		return errors.CapacityExceeded(s.dir.Len(), maxEntries)
	}
	return nil
}

// instrument wraps an operation with duration and error metrics.
func (s *StoreService) instrument(kind string, fn func() error) error {
	start := time.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.RecordOp(kind, time.Since(start).Seconds())
		if err != nil {
			s.metrics.RecordOpError(fmt.Sprintf("%d", errors.GetCode(err)))
		}
	}
	return err
}

// Set stores a scalar value. A positive ttl arms an absolute expiry.
func (s *StoreService) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (uint64, error) {
	var version uint64
	err := s.instrument("set", func() error {
		if err := s.validator.ValidateKey(key); err != nil {
			return err
		}
		if err := s.validator.ValidatePayload(value); err != nil {
			return err
		}
		if err := s.validator.ValidateTTL(ttl); err != nil {
			return err
		}
		if err := s.ensureCapacity(ctx, key); err != nil {
			return err
		}
		var err error
		version, err = s.dir.Put(ctx, key, model.NewScalar(value), ttl)
		return err
	})
	return version, err
}

// Get returns the scalar value stored at key.
func (s *StoreService) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.instrument("get", func() error {
		return s.viewTracked(ctx, key, func(v model.Value) error {
			scalar, ok := v.(*model.Scalar)
			if !ok {
				return errors.TypeMismatch(key, model.ValueTypeScalar.String(), v.Kind().String())
			}
			out = make([]byte, len(scalar.Data))
			copy(out, scalar.Data)
			return nil
		})
	})
	return out, err
}

// GetValue returns a deep copy of whatever value kind key holds.
func (s *StoreService) GetValue(ctx context.Context, key string) (model.Value, error) {
	var out model.Value
	err := s.instrument("get", func() error {
		v, err := s.dir.Get(ctx, key)
		s.trackHit(err)
		out = v
		return err
	})
	return out, err
}

// viewTracked wraps directory.View with hit/miss accounting.
func (s *StoreService) viewTracked(ctx context.Context, key string, fn func(model.Value) error) error {
	err := s.dir.View(ctx, key, fn)
	s.trackHit(err)
	return err
}

func (s *StoreService) trackHit(err error) {
	if err == nil {
		s.hits.Add(1)
		if s.metrics != nil {
			s.metrics.RecordHit()
		}
		return
	}
	if errors.IsNotFound(err) {
		s.misses.Add(1)
		if s.metrics != nil {
			s.metrics.RecordMiss()
		}
	}
}

// Delete removes key, reporting whether an entry existed.
func (s *StoreService) Delete(ctx context.Context, key string) (bool, error) {
	var removed bool
	err := s.instrument("delete", func() error {
		var err error
		removed, err = s.dir.Delete(ctx, key)
		return err
	})
	return removed, err
}

// Exists reports whether key holds a live entry.
func (s *StoreService) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.instrument("exists", func() error {
		var err error
		found, err = s.dir.Exists(ctx, key)
		return err
	})
	return found, err
}

// TTL returns the remaining time to live for key; zero means no expiry.
func (s *StoreService) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.dir.RemainingTTL(ctx, key)
}

// Keys returns all live keys, sorted for deterministic output.
func (s *StoreService) Keys() []string {
	keys := s.dir.Keys()
	sort.Strings(keys)
	return keys
}

// Clear removes every entry and resets eviction bookkeeping. Index
// definitions survive with their contents emptied by the removal events.
func (s *StoreService) Clear(ctx context.Context) error {
	return s.instrument("clear", func() error {
		if err := s.dir.Clear(ctx); err != nil {
			return err
		}
		s.eviction.Reset()
		return nil
	})
}

// Apply executes one mutation, enforcing capacity for ops that may insert.
// Transaction commit replays its buffered log through here.
func (s *StoreService) Apply(ctx context.Context, op model.Op) (model.OpResult, error) {
	var result model.OpResult
	err := s.instrument(string(op.Kind), func() error {
		if !op.Kind.Mutates() {
			return errors.InvalidArgument("not a mutation: "+string(op.Kind), nil)
		}
		if err := s.validator.ValidateKey(op.Key); err != nil {
			return err
		}
		if createCapable(op.Kind) {
			if err := s.ensureCapacity(ctx, op.Key); err != nil {
				return err
			}
		}
		var err error
		result, err = s.dir.Apply(ctx, op)
		return err
	})
	return result, err
}
