package model

import "time"

// OpKind identifies a mutation for dispatch, transaction buffering and
// change-feed events.
type OpKind string

const (
	OpSet        OpKind = "set"
	OpDelete     OpKind = "delete"
	OpListPush   OpKind = "list_push"
	OpListPop    OpKind = "list_pop"
	OpSetAdd     OpKind = "set_add"
	OpSetRemove  OpKind = "set_remove"
	OpHashSet    OpKind = "hash_set"
	OpHashDelete OpKind = "hash_delete"
	OpZSetAdd    OpKind = "zset_add"
	OpZSetRemove OpKind = "zset_remove"

	// Kinds emitted on the change feed only, never submitted by callers.
	OpExpire OpKind = "expire"
	OpEvict  OpKind = "evict"
)

// Op is a single intended mutation. Only the fields relevant to Kind are
// set; the flat shape keeps transaction logs and feed payloads simple.
type Op struct {
	Kind OpKind
	Key  string

	// OpSet
	Value Value
	TTL   time.Duration

	// OpListPush / OpListPop
	Elems [][]byte
	Front bool

	// Set / sorted-set members; Member for single-member ops
	Member  string
	Members []string

	// OpHashSet / OpHashDelete
	Field string
	Data  []byte

	// OpZSetAdd
	Score float64
}

// OpResult carries the outcome of one applied mutation.
type OpResult struct {
	Version uint64
	Found   bool   // pop/remove-style op hit something
	Elem    []byte // popped element
	Count   int    // affected members / resulting length
}

// Mutates reports whether the op kind is submitted by callers as a write.
func (k OpKind) Mutates() bool {
	switch k {
	case OpSet, OpDelete, OpListPush, OpListPop, OpSetAdd, OpSetRemove,
		OpHashSet, OpHashDelete, OpZSetAdd, OpZSetRemove:
		return true
	default:
		return false
	}
}
