package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastmem/fastmem/internal/model"
)

// ChangeEvent is one successful mutation on the feed. NewVersion is zero
// for removals (delete, expiry, eviction).
type ChangeEvent struct {
	Key        string
	Kind       model.OpKind
	OldVersion uint64
	NewVersion uint64
	At         time.Time
}

// Subscription is one consumer's view of the change feed. Events arrive on
// C in publication order; per-key ordering matches mutation order because
// events are enqueued before the originating call returns. Delivery is
// at-least-once: nothing is dropped while the subscription is open.
type Subscription struct {
	ID string
	C  <-chan ChangeEvent

	out    chan ChangeEvent
	mu     sync.Mutex
	queue  []ChangeEvent
	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Close stops delivery and releases the subscription. Pending events are
// discarded; C is closed once the drain goroutine exits.
func (sub *Subscription) Close() {
	sub.once.Do(func() { close(sub.done) })
}

// enqueue appends an event without blocking the publisher.
func (sub *Subscription) enqueue(ev ChangeEvent) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, ev)
	sub.mu.Unlock()

	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

// drain moves queued events to the consumer channel in order.
func (sub *Subscription) drain() {
	defer close(sub.out)
	for {
		select {
		case <-sub.done:
			return
		case <-sub.notify:
		}

		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			batch := sub.queue
			sub.queue = nil
			sub.mu.Unlock()

			for _, ev := range batch {
				select {
				case sub.out <- ev:
				case <-sub.done:
					return
				}
			}
		}
	}
}

// FeedService fans mutation notifications out to subscribers. Publication
// happens synchronously inside the mutating call's critical section, so a
// subscriber never sees key events out of mutation order; delivery itself
// is asynchronous and consumer-paced.
type FeedService struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	logger *zap.Logger
}

// NewFeedService creates a new feed service
func NewFeedService(logger *zap.Logger) *FeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedService{
		subs:   make(map[string]*Subscription),
		logger: logger,
	}
}

// Subscribe registers a consumer. buffer sizes the delivery channel.
func (s *FeedService) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{
		ID:     uuid.NewString(),
		out:    make(chan ChangeEvent, buffer),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	sub.C = sub.out

	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()

	go func() {
		sub.drain()
		s.mu.Lock()
		delete(s.subs, sub.ID)
		s.mu.Unlock()
	}()

	s.logger.Debug("Feed subscriber added", zap.String("subscription_id", sub.ID))
	return sub
}

// Publish enqueues an event for every open subscription. Never blocks.
func (s *FeedService) Publish(ev ChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		sub.enqueue(ev)
	}
}

// Subscribers returns the number of open subscriptions.
func (s *FeedService) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
