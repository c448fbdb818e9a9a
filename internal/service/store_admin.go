package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fastmem/fastmem/internal/model"
	"github.com/fastmem/fastmem/internal/util/workerpool"
)

// Stats is a point-in-time view of store activity. Counters are read
// without coordination, so concurrent snapshots may differ slightly.
type Stats struct {
	Entries               int       `json:"entries"`
	MemoryEstimateBytes   int64     `json:"memory_estimate_bytes"`
	Hits                  uint64    `json:"hits"`
	Misses                uint64    `json:"misses"`
	Evictions             uint64    `json:"evictions"`
	Expired               uint64    `json:"expired"`
	ActiveTransactions    int64     `json:"active_transactions"`
	CommittedTransactions uint64    `json:"committed_transactions"`
	AbortedTransactions   uint64    `json:"aborted_transactions"`
	Indexes               int       `json:"indexes"`
	FeedSubscribers       int       `json:"feed_subscribers"`
	At                    time.Time `json:"at"`
}

// Stats returns a fresh snapshot of store counters.
func (s *StoreService) Stats() Stats {
	return Stats{
		Entries:               s.dir.Len(),
		MemoryEstimateBytes:   s.memoryEstimate.Load(),
		Hits:                  s.hits.Load(),
		Misses:                s.misses.Load(),
		Evictions:             s.evicted.Load(),
		Expired:               s.expired.Load(),
		ActiveTransactions:    s.txActive.Load(),
		CommittedTransactions: s.txCommitted.Load(),
		AbortedTransactions:   s.txAborted.Load(),
		Indexes:               s.indexes.Count(),
		FeedSubscribers:       s.feed.Subscribers(),
		At:                    time.Now(),
	}
}

// Monitor emits a stats snapshot every interval until ctx is canceled.
// Each call starts an independent stream; the channel closes on cancel.
func (s *StoreService) Monitor(ctx context.Context, interval time.Duration) <-chan Stats {
	if interval <= 0 {
		interval = time.Second
	}
	ch := make(chan Stats, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case ch <- s.Stats():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

// Subscribe attaches a change feed consumer. buffer <= 0 uses the default.
func (s *StoreService) Subscribe(buffer int) *Subscription {
	sub := s.feed.Subscribe(buffer)
	if s.metrics != nil {
		s.metrics.FeedSubscribersTotal.Set(float64(s.feed.Subscribers()))
	}
	return sub
}

// CreateIndex builds a secondary index named name over keys matching
// pattern. field selects a hash field; empty field indexes scalar values.
func (s *StoreService) CreateIndex(ctx context.Context, name, pattern, field string) error {
	return s.instrument("index_create", func() error {
		if err := s.indexes.Create(ctx, s.dir, name, pattern, field); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.IndexesTotal.Set(float64(s.indexes.Count()))
		}
		return nil
	})
}

// DropIndex removes an index definition, reporting whether it existed.
func (s *StoreService) DropIndex(name string) bool {
	dropped := s.indexes.Drop(name)
	if dropped && s.metrics != nil {
		s.metrics.IndexesTotal.Set(float64(s.indexes.Count()))
	}
	return dropped
}

// SearchByIndex returns the sorted keys whose indexed value equals value.
func (s *StoreService) SearchByIndex(name, value string) ([]string, error) {
	if s.metrics != nil {
		s.metrics.IndexLookupsTotal.Inc()
	}
	return s.indexes.Lookup(name, value)
}

// Export captures a consistent snapshot of every live entry. All key
// locks are held for the duration, so writers wait.
func (s *StoreService) Export(ctx context.Context) ([]model.SnapshotRecord, error) {
	var records []model.SnapshotRecord
	err := s.instrument("export", func() error {
		var err error
		records, err = s.dir.Export(ctx)
		return err
	})
	return records, err
}

// Import replaces the store contents with the given records. Entries
// whose absolute expiry has already passed are skipped, and surviving
// expiries keep their original deadline.
func (s *StoreService) Import(ctx context.Context, records []model.SnapshotRecord) error {
	return s.instrument("import", func() error {
		if err := s.dir.Clear(ctx); err != nil {
			return err
		}
		s.eviction.Reset()

		now := s.now()
		for _, rec := range records {
			var ttl time.Duration
			if !rec.ExpireAt.IsZero() {
				ttl = rec.ExpireAt.Sub(now)
				if ttl <= 0 {
					continue
				}
			}
			if err := s.ensureCapacity(ctx, rec.Key); err != nil {
				return err
			}
			if _, err := s.dir.Put(ctx, rec.Key, rec.Value.Clone(), ttl); err != nil {
				return err
			}
		}
		s.logger.Info("Snapshot imported",
			zap.Int("records", len(records)),
			zap.Int("entries", s.dir.Len()))
		return nil
	})
}

// SweepExpired removes entries whose expiry is due, up to the eviction
// budget per pass. Returns how many entries were reclaimed.
func (s *StoreService) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	budget := s.evictCfg.EvictionBudget
	due := s.eviction.DueExpired(s.now(), budget)

	removed := 0
	for _, key := range due {
		ok, err := s.dir.RemoveExpired(ctx, key)
		if err != nil {
			// Key lock contended; put the deadline back for the next pass.
			s.eviction.RestoreExpiry(key)
			continue
		}
		if ok {
			removed++
		}
	}
	if s.metrics != nil {
		s.metrics.RecordSweep(time.Since(start).Seconds())
	}
	if removed > 0 {
		s.logger.Debug("Expiry sweep completed",
			zap.Int("removed", removed),
			zap.Duration("elapsed", time.Since(start)))
	}
	return removed, nil
}

// StartSweeper runs periodic expiry sweeps on the pool until ctx is
// canceled. Sweeps that cannot be queued run inline so expiry never
// stalls behind a saturated pool.
func (s *StoreService) StartSweeper(ctx context.Context, pool *workerpool.WorkerPool) {
	interval := s.evictCfg.SweepInterval
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				task := workerpool.Task{
					ID: fmt.Sprintf("sweep-%d", time.Now().UnixNano()),
					Fn: func(taskCtx context.Context) error {
						_, err := s.SweepExpired(taskCtx)
						return err
					},
					Context: ctx,
				}
				if !pool.TrySubmit(task) {
					_, _ = s.SweepExpired(ctx)
				}
			}
		}
	}()
}
