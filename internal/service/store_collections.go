package service

import (
	"context"
	"sort"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/model"
)

// List operations.

// LPush prepends elements to the list at key, creating it if absent.
// Returns the list length after the push.
func (s *StoreService) LPush(ctx context.Context, key string, elems ...[]byte) (int, error) {
	return s.listPush(ctx, key, true, elems)
}

// RPush appends elements to the list at key, creating it if absent.
func (s *StoreService) RPush(ctx context.Context, key string, elems ...[]byte) (int, error) {
	return s.listPush(ctx, key, false, elems)
}

func (s *StoreService) listPush(ctx context.Context, key string, front bool, elems [][]byte) (int, error) {
	if len(elems) == 0 {
		return 0, errors.InvalidArgument("push requires at least one element", nil)
	}
	for _, elem := range elems {
		if err := s.validator.ValidatePayload(elem); err != nil {
			return 0, err
		}
	}
	result, err := s.Apply(ctx, model.Op{
		Kind:  model.OpListPush,
		Key:   key,
		Front: front,
		Elems: elems,
	})
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

// LPop removes and returns the first element of the list at key.
// ok is false when the key does not exist.
func (s *StoreService) LPop(ctx context.Context, key string) ([]byte, bool, error) {
	return s.listPop(ctx, key, true)
}

// RPop removes and returns the last element of the list at key.
func (s *StoreService) RPop(ctx context.Context, key string) ([]byte, bool, error) {
	return s.listPop(ctx, key, false)
}

func (s *StoreService) listPop(ctx context.Context, key string, front bool) ([]byte, bool, error) {
	result, err := s.Apply(ctx, model.Op{
		Kind:  model.OpListPop,
		Key:   key,
		Front: front,
	})
	if err != nil {
		if errors.IsNotFound(err) {
			s.misses.Add(1)
			return nil, false, nil
		}
		return nil, false, err
	}
	return result.Elem, result.Found, nil
}

// LRange returns list elements between start and stop inclusive. Negative
// offsets count from the end, -1 being the last element. Out-of-range
// bounds are clamped; an inverted range yields an empty slice.
func (s *StoreService) LRange(ctx context.Context, key string, start, stop int) ([][]byte, error) {
	var out [][]byte
	err := s.instrument("list_range", func() error {
		return s.viewTracked(ctx, key, func(v model.Value) error {
			list, ok := v.(*model.List)
			if !ok {
				return errors.TypeMismatch(key, model.ValueTypeList.String(), v.Kind().String())
			}
			n := list.Len()
			lo, hi := normalizeRange(start, stop, n)
			for i := lo; i <= hi; i++ {
				elem := make([]byte, len(list.Elems[i]))
				copy(elem, list.Elems[i])
				out = append(out, elem)
			}
			return nil
		})
	})
	if errors.IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

func normalizeRange(start, stop, n int) (int, int) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

// LLen returns the length of the list at key, zero when absent.
func (s *StoreService) LLen(ctx context.Context, key string) (int, error) {
	var n int
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		list, ok := v.(*model.List)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeList.String(), v.Kind().String())
		}
		n = list.Len()
		return nil
	})
	if errors.IsNotFound(err) {
		return 0, nil
	}
	return n, err
}

// Set operations.

// SAdd adds members to the set at key, creating it if absent.
// Returns how many members were actually new.
func (s *StoreService) SAdd(ctx context.Context, key string, members ...string) (int, error) {
	if len(members) == 0 {
		return 0, errors.InvalidArgument("add requires at least one member", nil)
	}
	result, err := s.Apply(ctx, model.Op{
		Kind:    model.OpSetAdd,
		Key:     key,
		Members: members,
	})
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}

// SRem removes members from the set at key. Returns how many were present.
// Removing the last member removes the key itself.
func (s *StoreService) SRem(ctx context.Context, key string, members ...string) (int, error) {
	result, err := s.Apply(ctx, model.Op{
		Kind:    model.OpSetRemove,
		Key:     key,
		Members: members,
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return result.Count, nil
}

// SMembers returns the members of the set at key, sorted.
func (s *StoreService) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		set, ok := v.(*model.Set)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeSet.String(), v.Kind().String())
		}
		out = make([]string, 0, set.Len())
		for m := range set.Members {
			out = append(out, m)
		}
		return nil
	})
	if errors.IsNotFound(err) {
		return nil, nil
	}
	sort.Strings(out)
	return out, err
}

// SIsMember reports whether member is in the set at key.
func (s *StoreService) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var found bool
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		set, ok := v.(*model.Set)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeSet.String(), v.Kind().String())
		}
		found = set.Contains(member)
		return nil
	})
	if errors.IsNotFound(err) {
		return false, nil
	}
	return found, err
}

// SCard returns the cardinality of the set at key, zero when absent.
func (s *StoreService) SCard(ctx context.Context, key string) (int, error) {
	var n int
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		set, ok := v.(*model.Set)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeSet.String(), v.Kind().String())
		}
		n = set.Len()
		return nil
	})
	if errors.IsNotFound(err) {
		return 0, nil
	}
	return n, err
}

// Hash operations.

// HSet stores a field in the hash at key, creating the hash if absent.
// Returns true when the field did not previously exist.
func (s *StoreService) HSet(ctx context.Context, key, field string, value []byte) (bool, error) {
	if field == "" {
		return false, errors.InvalidArgument("field cannot be empty", nil)
	}
	if err := s.validator.ValidatePayload(value); err != nil {
		return false, err
	}
	result, err := s.Apply(ctx, model.Op{
		Kind:  model.OpHashSet,
		Key:   key,
		Field: field,
		Data:  value,
	})
	if err != nil {
		return false, err
	}
	return result.Count > 0, nil
}

// HGet returns the value of field in the hash at key. A missing field on
// an existing hash reports field not found.
func (s *StoreService) HGet(ctx context.Context, key, field string) ([]byte, error) {
	var out []byte
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		hash, ok := v.(*model.Hash)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeHash.String(), v.Kind().String())
		}
		data, found := hash.GetField(field)
		if !found {
			return errors.FieldNotFound(key, field)
		}
		out = make([]byte, len(data))
		copy(out, data)
		return nil
	})
	return out, err
}

// HDel removes field from the hash at key. Returns whether the field
// existed. Removing the last field removes the key itself.
func (s *StoreService) HDel(ctx context.Context, key, field string) (bool, error) {
	result, err := s.Apply(ctx, model.Op{
		Kind:  model.OpHashDelete,
		Key:   key,
		Field: field,
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return result.Found, nil
}

// HGetAll returns a copy of every field in the hash at key.
func (s *StoreService) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	var out map[string][]byte
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		hash, ok := v.(*model.Hash)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeHash.String(), v.Kind().String())
		}
		out = make(map[string][]byte, hash.Len())
		for f, data := range hash.Fields {
			cp := make([]byte, len(data))
			copy(cp, data)
			out[f] = cp
		}
		return nil
	})
	if errors.IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

// Sorted set operations.

// ZAdd adds member with score to the sorted set at key, updating the
// score when the member already exists. Returns true for a new member.
func (s *StoreService) ZAdd(ctx context.Context, key, member string, score float64) (bool, error) {
	result, err := s.Apply(ctx, model.Op{
		Kind:   model.OpZSetAdd,
		Key:    key,
		Member: member,
		Score:  score,
	})
	if err != nil {
		return false, err
	}
	return result.Count > 0, nil
}

// ZRem removes member from the sorted set at key. Returns whether it
// existed. Removing the last member removes the key itself.
func (s *StoreService) ZRem(ctx context.Context, key, member string) (bool, error) {
	result, err := s.Apply(ctx, model.Op{
		Kind:   model.OpZSetRemove,
		Key:    key,
		Member: member,
	})
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return result.Found, nil
}

// ZScore returns the score of member in the sorted set at key.
func (s *StoreService) ZScore(ctx context.Context, key, member string) (float64, error) {
	var score float64
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		zset, ok := v.(*model.SortedSet)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeSortedSet.String(), v.Kind().String())
		}
		sc, found := zset.Score(member)
		if !found {
			return errors.FieldNotFound(key, member)
		}
		score = sc
		return nil
	})
	return score, err
}

// ZRangeByScore returns members whose score lies in [min, max], ordered
// by score ascending, ties broken by member.
func (s *StoreService) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]model.ScoredMember, error) {
	var out []model.ScoredMember
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		zset, ok := v.(*model.SortedSet)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeSortedSet.String(), v.Kind().String())
		}
		out = zset.RangeByScore(min, max)
		return nil
	})
	if errors.IsNotFound(err) {
		return nil, nil
	}
	return out, err
}

// ZCard returns the cardinality of the sorted set at key, zero when absent.
func (s *StoreService) ZCard(ctx context.Context, key string) (int, error) {
	var n int
	err := s.viewTracked(ctx, key, func(v model.Value) error {
		zset, ok := v.(*model.SortedSet)
		if !ok {
			return errors.TypeMismatch(key, model.ValueTypeSortedSet.String(), v.Kind().String())
		}
		n = zset.Len()
		return nil
	})
	if errors.IsNotFound(err) {
		return 0, nil
	}
	return n, err
}
