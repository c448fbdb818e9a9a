package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/model"
	"github.com/fastmem/fastmem/internal/storage/directory"
	"github.com/fastmem/fastmem/internal/util"
)

const indexTreeDegree = 32

// indexBucket groups all keys sharing one indexed value. Buckets are kept
// in a B-tree ordered by value, giving logarithmic lookups and
// deterministic iteration.
type indexBucket struct {
	value string
	keys  map[string]struct{}
}

// Index is a secondary mapping from a field's value to the set of keys
// holding that value, restricted to keys matching Pattern.
type Index struct {
	Name    string
	Pattern string
	Field   string

	mu   sync.RWMutex
	tree *btree.BTreeG[*indexBucket]
}

func newIndex(name, pattern, field string) *Index {
	return &Index{
		Name:    name,
		Pattern: pattern,
		Field:   field,
		tree: btree.NewG(indexTreeDegree, func(a, b *indexBucket) bool {
			return a.value < b.value
		}),
	}
}

// add maps value -> key.
func (idx *Index) add(value, key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, ok := idx.tree.Get(&indexBucket{value: value})
	if !ok {
		bucket = &indexBucket{value: value, keys: make(map[string]struct{})}
		idx.tree.ReplaceOrInsert(bucket)
	}
	bucket.keys[key] = struct{}{}
}

// remove unmaps value -> key, dropping the bucket when it empties.
func (idx *Index) remove(value, key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	bucket, ok := idx.tree.Get(&indexBucket{value: value})
	if !ok {
		return
	}
	delete(bucket.keys, key)
	if len(bucket.keys) == 0 {
		idx.tree.Delete(bucket)
	}
}

// lookup returns the keys mapped to value, sorted for determinism.
func (idx *Index) lookup(value string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	bucket, ok := idx.tree.Get(&indexBucket{value: value})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(bucket.keys))
	for k := range bucket.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// distinctValues returns the number of distinct indexed values.
func (idx *Index) distinctValues() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}

// indexedValue extracts the value an index tracks for v: the named hash
// field for hashes, the payload itself for scalars. Lists, sets and sorted
// sets are not indexable.
func indexedValue(v model.Value, field string) (string, bool) {
	switch val := v.(type) {
	case *model.Hash:
		data, ok := val.GetField(field)
		if !ok {
			return "", false
		}
		return string(data), true
	case *model.Scalar:
		return string(val.Data), true
	default:
		return "", false
	}
}

// IndexService maintains secondary indexes over the key directory, kept
// consistent synchronously from write notifications.
type IndexService struct {
	mu      sync.RWMutex
	indexes map[string]*Index
	logger  *zap.Logger
}

// NewIndexService creates a new index service
func NewIndexService(logger *zap.Logger) *IndexService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexService{
		indexes: make(map[string]*Index),
		logger:  logger,
	}
}

// Create registers an index and populates it from the directory's current
// contents. The index is registered before the scan so concurrent writes
// land in it; scan and notification inserts are idempotent.
func (s *IndexService) Create(ctx context.Context, dir *directory.Directory, name, pattern, field string) error {
	if name == "" {
		return errors.InvalidArgument("index name must not be empty", nil)
	}
	if !util.ValidPattern(pattern) {
		return errors.InvalidArgument("malformed key pattern: "+pattern, nil)
	}

	idx := newIndex(name, pattern, field)

	s.mu.Lock()
	if _, exists := s.indexes[name]; exists {
		s.mu.Unlock()
		return errors.AlreadyExists(name)
	}
	s.indexes[name] = idx
	s.mu.Unlock()

	err := dir.Range(ctx, func(key string, v model.Value, _ time.Time) bool {
		if !util.MatchPattern(key, pattern) {
			return true
		}
		if value, ok := indexedValue(v, field); ok {
			idx.add(value, key)
		}
		return true
	})
	if err != nil {
		s.Drop(name)
		return err
	}

	s.logger.Info("Index created",
		zap.String("index", name),
		zap.String("pattern", pattern),
		zap.String("field", field),
		zap.Int("distinct_values", idx.distinctValues()))
	return nil
}

// Drop removes an index definition and its contents. Reports whether the
// index existed.
func (s *IndexService) Drop(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indexes[name]; !ok {
		return false
	}
	delete(s.indexes, name)
	s.logger.Info("Index dropped", zap.String("index", name))
	return true
}

// Lookup returns the keys whose indexed value equals value.
func (s *IndexService) Lookup(name, value string) ([]string, error) {
	s.mu.RLock()
	idx, ok := s.indexes[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.IndexNotFound(name)
	}
	return idx.lookup(value), nil
}

// Count returns the number of registered indexes.
func (s *IndexService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indexes)
}

// HandleWrite applies one directory write notification to every index
// covering the key. Called while the key lock is held, so a read following
// the triggering write observes the updated index.
func (s *IndexService) HandleWrite(ev directory.WriteEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, idx := range s.indexes {
		if !util.MatchPattern(ev.Key, idx.Pattern) {
			continue
		}
		switch ev.Kind {
		case model.OpSet:
			if ev.OldValue != nil {
				if old, ok := indexedValue(ev.OldValue, idx.Field); ok {
					idx.remove(old, ev.Key)
				}
			}
			if now, ok := indexedValue(ev.NewValue, idx.Field); ok {
				idx.add(now, ev.Key)
			}
		case model.OpHashSet, model.OpHashDelete:
			if ev.Field != idx.Field {
				continue
			}
			if ev.OldPresent {
				idx.remove(string(ev.OldData), ev.Key)
			}
			if ev.NewPresent {
				idx.add(string(ev.NewData), ev.Key)
			}
		}
	}
}

// HandleRemove strips a removed entry from every index covering it.
func (s *IndexService) HandleRemove(ev directory.RemoveEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, idx := range s.indexes {
		if !util.MatchPattern(ev.Key, idx.Pattern) {
			continue
		}
		if value, ok := indexedValue(ev.Value, idx.Field); ok {
			idx.remove(value, ev.Key)
		}
	}
}
