package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/model"
)

// TxState tracks where a transaction is in its lifecycle.
type TxState int32

const (
	TxIdle TxState = iota
	TxWatching
	TxCommitting
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxIdle:
		return "idle"
	case TxWatching:
		return "watching"
	case TxCommitting:
		return "committing"
	case TxCommitted:
		return "committed"
	case TxAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type watchRecord struct {
	exists  bool
	version uint64
}

// TransactionService coordinates optimistic transactions. Commits are
// serialized by a single mutex held only for the validate-and-apply step.
type TransactionService struct {
	store    *StoreService
	logger   *zap.Logger
	commitMu sync.Mutex
}

// NewTransactionService creates a new transaction service
func NewTransactionService(store *StoreService, logger *zap.Logger) *TransactionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionService{store: store, logger: logger}
}

// Tx is one optimistic transaction: a watch-set of key versions captured
// at watch time and a log of buffered mutations. Nothing in the log is
// visible to other callers until Commit succeeds.
type Tx struct {
	id     string
	svc    *TransactionService
	mu     sync.Mutex
	state  TxState
	watch  map[string]watchRecord
	log    []model.Op
	closed bool
}

// Begin opens a new transaction.
func (t *TransactionService) Begin() *Tx {
	tx := &Tx{
		id:    uuid.New().String(),
		svc:   t,
		state: TxIdle,
		watch: make(map[string]watchRecord),
	}
	t.store.txActive.Add(1)
	if t.store.metrics != nil {
		t.store.metrics.ActiveTransactions.Inc()
	}
	t.logger.Debug("Transaction started", zap.String("tx_id", tx.id))
	return tx
}

// ID returns the transaction identifier.
func (tx *Tx) ID() string { return tx.id }

// State returns the current lifecycle state.
func (tx *Tx) State() TxState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Watch records the current version of each key. Keys already watched
// keep their originally observed version; a repeat call extends the
// watch-set rather than replacing it.
func (tx *Tx) Watch(keys ...string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return errors.TxClosed(tx.id, tx.state.String())
	}
	if tx.state == TxCommitting {
		return errors.InvalidArgument("cannot watch while committing", nil)
	}
	added := 0
	for _, key := range keys {
		if _, already := tx.watch[key]; already {
			continue
		}
		version, exists := tx.svc.store.dir.Version(key)
		tx.watch[key] = watchRecord{exists: exists, version: version}
		added++
	}
	if len(tx.watch) > 0 {
		tx.state = TxWatching
	}
	if added > 0 && tx.svc.store.metrics != nil {
		tx.svc.store.metrics.WatchedKeys.Add(float64(added))
	}
	return nil
}

// Unwatch discards the watch-set and the buffered log without applying
// anything. The transaction returns to idle and can be reused.
func (tx *Tx) Unwatch() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.resetLocked(TxIdle)
}

// Rollback discards all buffered work, same as Unwatch.
func (tx *Tx) Rollback() {
	tx.Unwatch()
}

func (tx *Tx) resetLocked(state TxState) {
	if len(tx.watch) > 0 && tx.svc.store.metrics != nil {
		tx.svc.store.metrics.WatchedKeys.Sub(float64(len(tx.watch)))
	}
	tx.watch = make(map[string]watchRecord)
	tx.log = nil
	tx.state = state
}

// Queue buffers one mutation for commit. The operation is validated now
// but applied only when Commit succeeds.
func (tx *Tx) Queue(op model.Op) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return errors.TxClosed(tx.id, tx.state.String())
	}
	if tx.state == TxCommitting {
		return errors.InvalidArgument("cannot queue while committing", nil)
	}
	if !op.Kind.Mutates() {
		return errors.InvalidArgument("not a mutation: "+string(op.Kind), nil)
	}
	if err := tx.svc.store.validator.ValidateKey(op.Key); err != nil {
		return err
	}
	tx.log = append(tx.log, op)
	return nil
}

// QueueSet buffers a scalar write.
func (tx *Tx) QueueSet(key string, value []byte, ttl time.Duration) error {
	return tx.Queue(model.Op{Kind: model.OpSet, Key: key, Value: model.NewScalar(value), TTL: ttl})
}

// QueueDelete buffers a key removal.
func (tx *Tx) QueueDelete(key string) error {
	return tx.Queue(model.Op{Kind: model.OpDelete, Key: key})
}

// Commit validates the watch-set and applies the buffered log in order.
// A watched key whose version changed since watch time, including one
// that expired or was evicted, aborts the commit: the log is discarded,
// the transaction returns to idle, and the caller gets Aborted. Retrying
// means re-running the whole read-modify-write sequence.
//
// An op that fails during apply does not stop the remaining ops: every
// queued op runs in order, its slot in the results records the outcome,
// and the first failure is returned alongside them. The transaction then
// returns to idle for reuse.
func (tx *Tx) Commit(ctx context.Context) ([]model.OpResult, error) {
	tx.mu.Lock()
	if tx.closed {
		tx.mu.Unlock()
		return nil, errors.TxClosed(tx.id, tx.state.String())
	}
	tx.state = TxCommitting
	tx.mu.Unlock()

	tx.svc.commitMu.Lock()
	defer tx.svc.commitMu.Unlock()

	tx.mu.Lock()
	defer tx.mu.Unlock()

	for key, rec := range tx.watch {
		version, exists := tx.svc.store.dir.Version(key)
		if exists != rec.exists || version != rec.version {
			tx.resetLocked(TxIdle)
			tx.svc.resolve("aborted")
			tx.svc.logger.Debug("Transaction aborted on conflict",
				zap.String("tx_id", tx.id),
				zap.String("key", key))
			return nil, errors.Aborted(tx.id, key)
		}
	}

	results := make([]model.OpResult, 0, len(tx.log))
	var applyErr error
	for _, op := range tx.log {
		result, err := tx.svc.store.Apply(ctx, op)
		if err != nil && applyErr == nil {
			applyErr = err
		}
		results = append(results, result)
	}
	if applyErr != nil {
		tx.resetLocked(TxIdle)
		tx.svc.resolve("failed")
		return results, applyErr
	}

	tx.resetLocked(TxCommitted)
	tx.closed = true
	tx.svc.resolve("committed")
	tx.svc.store.txActive.Add(-1)
	if tx.svc.store.metrics != nil {
		tx.svc.store.metrics.ActiveTransactions.Dec()
	}
	return results, nil
}

// Close releases the transaction. Unresolved work is discarded. Safe to
// call more than once, typically via defer right after Begin.
func (tx *Tx) Close() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return
	}
	tx.resetLocked(TxAborted)
	tx.closed = true
	tx.svc.store.txActive.Add(-1)
	if tx.svc.store.metrics != nil {
		tx.svc.store.metrics.ActiveTransactions.Dec()
	}
}

func (t *TransactionService) resolve(outcome string) {
	switch outcome {
	case "committed":
		t.store.txCommitted.Add(1)
	default:
		t.store.txAborted.Add(1)
	}
	if t.store.metrics != nil {
		t.store.metrics.RecordTransaction(outcome)
	}
}

// WithTransaction runs fn inside a transaction and guarantees resolution
// on every exit path. When fn returns nil and has not committed itself,
// the buffered log is committed; when fn returns an error the log is
// discarded and the error passed through.
func (t *TransactionService) WithTransaction(ctx context.Context, fn func(*Tx) error) error {
	tx := t.Begin()
	defer tx.Close()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if tx.State() == TxCommitted {
		return nil
	}
	_, err := tx.Commit(ctx)
	return err
}
