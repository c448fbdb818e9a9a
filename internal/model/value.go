package model

import (
	"github.com/fastmem/fastmem/internal/storage/skiplist"
)

// ValueType represents the stored value kind
type ValueType int

const (
	ValueTypeScalar ValueType = iota
	ValueTypeList
	ValueTypeSet
	ValueTypeHash
	ValueTypeSortedSet
)

// String returns the wire-facing type name
func (vt ValueType) String() string {
	switch vt {
	case ValueTypeScalar:
		return "scalar"
	case ValueTypeList:
		return "list"
	case ValueTypeSet:
		return "set"
	case ValueTypeHash:
		return "hash"
	case ValueTypeSortedSet:
		return "zset"
	default:
		return "none"
	}
}

// Value is the tagged variant over the five supported container kinds.
// Operation dispatch is an exhaustive type switch in the key directory;
// the sealed marker keeps the variant set closed to this package.
type Value interface {
	Kind() ValueType
	Clone() Value
	SizeEstimate() int64
	sealedValue()
}

// entryOverhead approximates the bookkeeping cost of one element beyond
// its payload bytes (map/list headers, pointers, metadata).
const entryOverhead = 64

// Scalar is an uninterpreted byte string.
type Scalar struct {
	Data []byte
}

// NewScalar creates a scalar value holding a copy of b.
func NewScalar(b []byte) *Scalar {
	data := make([]byte, len(b))
	copy(data, b)
	return &Scalar{Data: data}
}

func (s *Scalar) Kind() ValueType { return ValueTypeScalar }
func (s *Scalar) sealedValue()    {}

func (s *Scalar) Clone() Value {
	return NewScalar(s.Data)
}

func (s *Scalar) SizeEstimate() int64 {
	return int64(len(s.Data)) + entryOverhead
}

// List is an ordered sequence of byte strings.
type List struct {
	Elems [][]byte
}

// NewList creates an empty list value.
func NewList() *List { return &List{} }

func (l *List) Kind() ValueType { return ValueTypeList }
func (l *List) sealedValue()    {}

func (l *List) Clone() Value {
	out := &List{Elems: make([][]byte, len(l.Elems))}
	for i, e := range l.Elems {
		c := make([]byte, len(e))
		copy(c, e)
		out.Elems[i] = c
	}
	return out
}

func (l *List) SizeEstimate() int64 {
	size := int64(entryOverhead)
	for _, e := range l.Elems {
		size += int64(len(e)) + 24
	}
	return size
}

// PushFront prepends elements one at a time, so the last argument ends
// up at the head.
func (l *List) PushFront(elems ...[]byte) int {
	for _, e := range elems {
		l.Elems = append([][]byte{e}, l.Elems...)
	}
	return len(l.Elems)
}

// PushBack appends elements in argument order.
func (l *List) PushBack(elems ...[]byte) int {
	l.Elems = append(l.Elems, elems...)
	return len(l.Elems)
}

// PopFront removes and returns the head element.
func (l *List) PopFront() ([]byte, bool) {
	if len(l.Elems) == 0 {
		return nil, false
	}
	e := l.Elems[0]
	l.Elems = l.Elems[1:]
	return e, true
}

// PopBack removes and returns the tail element.
func (l *List) PopBack() ([]byte, bool) {
	if len(l.Elems) == 0 {
		return nil, false
	}
	e := l.Elems[len(l.Elems)-1]
	l.Elems = l.Elems[:len(l.Elems)-1]
	return e, true
}

// Len returns the element count.
func (l *List) Len() int { return len(l.Elems) }

// Set is an unordered set of byte strings.
type Set struct {
	Members map[string]struct{}
}

// NewSet creates an empty set value.
func NewSet() *Set {
	return &Set{Members: make(map[string]struct{})}
}

func (s *Set) Kind() ValueType { return ValueTypeSet }
func (s *Set) sealedValue()    {}

func (s *Set) Clone() Value {
	out := NewSet()
	for m := range s.Members {
		out.Members[m] = struct{}{}
	}
	return out
}

func (s *Set) SizeEstimate() int64 {
	size := int64(entryOverhead)
	for m := range s.Members {
		size += int64(len(m)) + 16
	}
	return size
}

// Add inserts a member, reporting whether it was new.
func (s *Set) Add(member string) bool {
	if _, ok := s.Members[member]; ok {
		return false
	}
	s.Members[member] = struct{}{}
	return true
}

// Remove deletes a member, reporting whether it was present.
func (s *Set) Remove(member string) bool {
	if _, ok := s.Members[member]; !ok {
		return false
	}
	delete(s.Members, member)
	return true
}

// Contains reports membership.
func (s *Set) Contains(member string) bool {
	_, ok := s.Members[member]
	return ok
}

// Len returns the member count.
func (s *Set) Len() int { return len(s.Members) }

// Hash is a field -> bytes mapping.
type Hash struct {
	Fields map[string][]byte
}

// NewHash creates an empty hash value.
func NewHash() *Hash {
	return &Hash{Fields: make(map[string][]byte)}
}

func (h *Hash) Kind() ValueType { return ValueTypeHash }
func (h *Hash) sealedValue()    {}

func (h *Hash) Clone() Value {
	out := NewHash()
	for f, v := range h.Fields {
		c := make([]byte, len(v))
		copy(c, v)
		out.Fields[f] = c
	}
	return out
}

func (h *Hash) SizeEstimate() int64 {
	size := int64(entryOverhead)
	for f, v := range h.Fields {
		size += int64(len(f)+len(v)) + 16
	}
	return size
}

// SetField stores a field, reporting whether the field was created.
func (h *Hash) SetField(field string, value []byte) bool {
	_, existed := h.Fields[field]
	c := make([]byte, len(value))
	copy(c, value)
	h.Fields[field] = c
	return !existed
}

// GetField returns a field's value.
func (h *Hash) GetField(field string) ([]byte, bool) {
	v, ok := h.Fields[field]
	return v, ok
}

// DeleteField removes a field, reporting whether it was present.
func (h *Hash) DeleteField(field string) bool {
	if _, ok := h.Fields[field]; !ok {
		return false
	}
	delete(h.Fields, field)
	return true
}

// Len returns the field count.
func (h *Hash) Len() int { return len(h.Fields) }

// SortedSet maps members to scores and keeps a score-ordered index
// alongside for range queries.
type SortedSet struct {
	Members map[string]float64
	index   *skiplist.List
}

// NewSortedSet creates an empty sorted set value.
func NewSortedSet() *SortedSet {
	return &SortedSet{
		Members: make(map[string]float64),
		index:   skiplist.New(),
	}
}

func (z *SortedSet) Kind() ValueType { return ValueTypeSortedSet }
func (z *SortedSet) sealedValue()    {}

func (z *SortedSet) Clone() Value {
	out := NewSortedSet()
	for m, score := range z.Members {
		out.Add(m, score)
	}
	return out
}

func (z *SortedSet) SizeEstimate() int64 {
	size := int64(entryOverhead)
	for m := range z.Members {
		size += int64(len(m)) + 48
	}
	return size
}

// Add inserts or rescores a member, reporting whether it was new.
func (z *SortedSet) Add(member string, score float64) bool {
	old, existed := z.Members[member]
	if existed {
		if old == score {
			return false
		}
		z.index.Delete(member, old)
	}
	z.Members[member] = score
	z.index.Insert(member, score)
	return !existed
}

// Remove deletes a member, reporting whether it was present.
func (z *SortedSet) Remove(member string) bool {
	score, ok := z.Members[member]
	if !ok {
		return false
	}
	delete(z.Members, member)
	z.index.Delete(member, score)
	return true
}

// Score returns a member's score.
func (z *SortedSet) Score(member string) (float64, bool) {
	s, ok := z.Members[member]
	return s, ok
}

// RangeByScore returns members with min <= score <= max in score order.
func (z *SortedSet) RangeByScore(min, max float64) []ScoredMember {
	elems := z.index.RangeByScore(min, max)
	out := make([]ScoredMember, len(elems))
	for i, e := range elems {
		out[i] = ScoredMember{Member: e.Member, Score: e.Score}
	}
	return out
}

// Len returns the member count.
func (z *SortedSet) Len() int { return len(z.Members) }

// ScoredMember is a sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// NewValueOfKind creates an empty value of the requested kind. Used when a
// push/add-style mutation targets a missing key.
func NewValueOfKind(kind ValueType) Value {
	switch kind {
	case ValueTypeScalar:
		return NewScalar(nil)
	case ValueTypeList:
		return NewList()
	case ValueTypeSet:
		return NewSet()
	case ValueTypeHash:
		return NewHash()
	case ValueTypeSortedSet:
		return NewSortedSet()
	default:
		return nil
	}
}
