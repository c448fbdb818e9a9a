// Package skiplist implements a probabilistic ordered list keyed by
// (score, member) pairs. It backs the score index of sorted-set values:
// members are ordered by ascending score, ties broken by member bytes.
package skiplist

import (
	"math/rand"
)

const (
	MaxLevel    = 16
	Probability = 0.5
)

// Element is a scored member stored in the list.
type Element struct {
	Member string
	Score  float64
}

// node is a skip list node
type node struct {
	elem    Element
	forward []*node
}

// less reports whether a sorts before b in score order.
func less(a, b Element) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// List is a score-ordered skip list.
type List struct {
	head  *node
	level int
	size  int
}

// New creates an empty list.
func New() *List {
	return &List{
		head: &node{forward: make([]*node, MaxLevel)},
	}
}

// randomLevel generates a random level for a new node
func (sl *List) randomLevel() int {
	level := 0
	for rand.Float64() < Probability && level < MaxLevel-1 {
		level++
	}
	return level
}

// Insert adds a scored member. The caller is responsible for removing any
// previous (member, oldScore) pair first; the list itself is oblivious to
// member uniqueness.
func (sl *List) Insert(member string, score float64) {
	elem := Element{Member: member, Score: score}
	update := make([]*node, MaxLevel)
	current := sl.head

	for i := sl.level; i >= 0; i-- {
		for current.forward[i] != nil && less(current.forward[i].elem, elem) {
			current = current.forward[i]
		}
		update[i] = current
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level + 1; i <= newLevel; i++ {
			update[i] = sl.head
		}
		sl.level = newLevel
	}

	n := &node{
		elem:    elem,
		forward: make([]*node, newLevel+1),
	}
	for i := 0; i <= newLevel; i++ {
		n.forward[i] = update[i].forward[i]
		update[i].forward[i] = n
	}

	sl.size++
}

// Delete removes the (member, score) pair. Returns false when absent.
func (sl *List) Delete(member string, score float64) bool {
	elem := Element{Member: member, Score: score}
	update := make([]*node, MaxLevel)
	current := sl.head

	for i := sl.level; i >= 0; i-- {
		for current.forward[i] != nil && less(current.forward[i].elem, elem) {
			current = current.forward[i]
		}
		update[i] = current
	}

	current = current.forward[0]
	if current == nil || current.elem != elem {
		return false
	}

	for i := 0; i <= sl.level; i++ {
		if update[i].forward[i] != current {
			break
		}
		update[i].forward[i] = current.forward[i]
	}

	for sl.level > 0 && sl.head.forward[sl.level] == nil {
		sl.level--
	}

	sl.size--
	return true
}

// RangeByScore returns all elements with min <= score <= max in order.
func (sl *List) RangeByScore(min, max float64) []Element {
	var out []Element
	current := sl.head

	// Skip everything strictly below min using the upper levels.
	for i := sl.level; i >= 0; i-- {
		for current.forward[i] != nil && current.forward[i].elem.Score < min {
			current = current.forward[i]
		}
	}

	for n := current.forward[0]; n != nil && n.elem.Score <= max; n = n.forward[0] {
		out = append(out, n.elem)
	}
	return out
}

// Len returns the number of elements in the list
func (sl *List) Len() int {
	return sl.size
}

// Iterator returns an iterator positioned before the first element.
func (sl *List) Iterator() *Iterator {
	return &Iterator{current: sl.head}
}

// Iterator walks the list in score order.
type Iterator struct {
	current *node
}

// Next moves to the next element
func (it *Iterator) Next() bool {
	if it.current == nil {
		return false
	}
	it.current = it.current.forward[0]
	return it.current != nil
}

// Element returns the current element. Only valid after Next returned true.
func (it *Iterator) Element() Element {
	if it.current == nil {
		return Element{}
	}
	return it.current.elem
}
