package service

import (
	"container/heap"
	"container/list"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Policy selects the primary eviction policy applied under capacity
// pressure. Expired-TTL entries are always reclaimed first regardless of
// the primary policy.
type Policy string

const (
	PolicyLRU Policy = "lru"
	PolicyLFU Policy = "lfu"
)

// EvictionConfig holds eviction engine configuration
type EvictionConfig struct {
	Policy         Policy
	MaxEntries     int
	MaxMemoryBytes int64
	// EvictionBudget bounds how many removals a single write may trigger.
	EvictionBudget int
	SweepInterval  time.Duration
}

// EvictionService tracks recency, frequency and expiry state per key and
// selects victims under capacity pressure. Its mutex is always acquired
// after the relevant key lock and released before it, keeping the critical
// section short.
type EvictionService struct {
	config *EvictionConfig
	logger *zap.Logger
	mu     sync.Mutex

	// LRU: most recently used at front.
	lruList *list.List
	lruPos  map[string]*list.Element

	// LFU: frequency buckets, oldest member at the front of each bucket.
	freq    map[string]int64
	buckets map[int64]*list.List
	lfuPos  map[string]*list.Element
	minFreq int64
	maxFreq int64

	// TTL: min-heap of (key, expiry); stale heap items are skipped lazily
	// against the expires map.
	heap    expiryHeap
	expires map[string]time.Time
}

// NewEvictionService creates a new eviction service
func NewEvictionService(cfg *EvictionConfig, logger *zap.Logger) *EvictionService {
	if cfg.Policy == "" {
		cfg.Policy = PolicyLRU
	}
	if cfg.EvictionBudget <= 0 {
		cfg.EvictionBudget = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvictionService{
		config:  cfg,
		logger:  logger,
		lruList: list.New(),
		lruPos:  make(map[string]*list.Element),
		freq:    make(map[string]int64),
		buckets: make(map[int64]*list.List),
		lfuPos:  make(map[string]*list.Element),
		expires: make(map[string]time.Time),
	}
}

// RecordWrite registers a write to key, tracking it as most recently used,
// bumping its frequency and (re)arming its expiry.
func (s *EvictionService) RecordWrite(key string, expireAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touchLRU(key)
	s.touchLFU(key)
	s.armExpiry(key, expireAt)
}

// RecordAccess registers a read of key.
func (s *EvictionService) RecordAccess(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, tracked := s.lruPos[key]; !tracked {
		return
	}
	s.touchLRU(key)
	s.touchLFU(key)
}

// RecordRemove drops all bookkeeping for key.
func (s *EvictionService) RecordRemove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.lruPos[key]; ok {
		s.lruList.Remove(el)
		delete(s.lruPos, key)
	}
	if el, ok := s.lfuPos[key]; ok {
		f := s.freq[key]
		if b := s.buckets[f]; b != nil {
			b.Remove(el)
			if b.Len() == 0 {
				delete(s.buckets, f)
			}
		}
		delete(s.lfuPos, key)
		delete(s.freq, key)
	}
	delete(s.expires, key)
}

// Reset drops all state. Used by Clear and snapshot import.
func (s *EvictionService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lruList.Init()
	s.lruPos = make(map[string]*list.Element)
	s.freq = make(map[string]int64)
	s.buckets = make(map[int64]*list.List)
	s.lfuPos = make(map[string]*list.Element)
	s.minFreq = 0
	s.maxFreq = 0
	s.heap = s.heap[:0]
	s.expires = make(map[string]time.Time)
}

// DueExpired pops up to max keys whose expiry is at or before now. The
// caller deletes them through the directory; keys whose removal fails must
// be re-armed with RestoreExpiry.
func (s *EvictionService) DueExpired(now time.Time, max int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for len(s.heap) > 0 && len(due) < max {
		item := s.heap[0]
		if item.expireAt.After(now) {
			break
		}
		heap.Pop(&s.heap)
		armed, ok := s.expires[item.key]
		if !ok || !armed.Equal(item.expireAt) {
			// Stale heap item from an earlier expiry; skip.
			continue
		}
		due = append(due, item.key)
	}
	return due
}

// RestoreExpiry re-arms a key whose heap item was popped but whose removal
// did not happen (lock contention during the sweep).
func (s *EvictionService) RestoreExpiry(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if at, ok := s.expires[key]; ok {
		heap.Push(&s.heap, expiryItem{key: key, expireAt: at})
	}
}

// NextExpiry returns the earliest armed expiry, if any.
func (s *EvictionService) NextExpiry() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.heap) > 0 {
		item := s.heap[0]
		if armed, ok := s.expires[item.key]; ok && armed.Equal(item.expireAt) {
			return item.expireAt, true
		}
		heap.Pop(&s.heap)
	}
	return time.Time{}, false
}

// Victims returns up to max eviction candidates in removal order under the
// configured primary policy. Candidates stay tracked until RecordRemove.
func (s *EvictionService) Victims(max int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.config.Policy {
	case PolicyLFU:
		return s.lfuVictims(max)
	default:
		return s.lruVictims(max)
	}
}

// Tracked returns the number of keys under eviction bookkeeping.
func (s *EvictionService) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lruPos)
}

func (s *EvictionService) lruVictims(max int) []string {
	var out []string
	for el := s.lruList.Back(); el != nil && len(out) < max; el = el.Prev() {
		out = append(out, el.Value.(string))
	}
	return out
}

func (s *EvictionService) lfuVictims(max int) []string {
	var out []string
	for f := s.minFreq; f <= s.maxFreq && len(out) < max; f++ {
		b := s.buckets[f]
		if b == nil {
			continue
		}
		for el := b.Front(); el != nil && len(out) < max; el = el.Next() {
			out = append(out, el.Value.(string))
		}
	}
	return out
}

// touchLRU moves key to the most-recently-used end, inserting if new.
func (s *EvictionService) touchLRU(key string) {
	if el, ok := s.lruPos[key]; ok {
		s.lruList.MoveToFront(el)
		return
	}
	s.lruPos[key] = s.lruList.PushFront(key)
}

// touchLFU bumps key's frequency, moving it to the next bucket. New keys
// enter bucket 1 at the back (youngest in bucket). minFreq is kept as a
// lower bound only; the victim scan skips empty buckets.
func (s *EvictionService) touchLFU(key string) {
	old, tracked := s.freq[key]
	if tracked {
		b := s.buckets[old]
		b.Remove(s.lfuPos[key])
		if b.Len() == 0 {
			delete(s.buckets, old)
		}
	}

	next := old + 1
	b := s.buckets[next]
	if b == nil {
		b = list.New()
		s.buckets[next] = b
	}
	s.lfuPos[key] = b.PushBack(key)
	s.freq[key] = next

	if !tracked {
		s.minFreq = 1
	}
	if next > s.maxFreq {
		s.maxFreq = next
	}
}

func (s *EvictionService) armExpiry(key string, expireAt time.Time) {
	if expireAt.IsZero() {
		delete(s.expires, key)
		return
	}
	if armed, ok := s.expires[key]; ok && armed.Equal(expireAt) {
		return
	}
	s.expires[key] = expireAt
	heap.Push(&s.heap, expiryItem{key: key, expireAt: expireAt})
}

// expiryItem is one (key, expiry) pair on the TTL min-heap.
type expiryItem struct {
	key      string
	expireAt time.Time
}

type expiryHeap []expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expireAt.Before(h[j].expireAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
