package directory

import (
	"context"
	"time"

	"github.com/fastmem/fastmem/internal/errors"
	"github.com/fastmem/fastmem/internal/model"
)

// Put stores a whole value under key, replacing any previous value. A
// positive ttl sets an absolute expiry relative to now; zero clears it.
// Returns the new version.
func (d *Directory) Put(ctx context.Context, key string, value model.Value, ttl time.Duration) (uint64, error) {
	if value == nil {
		return 0, errors.InvalidArgument("value must not be nil", nil)
	}

	unlock, err := d.LockKey(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := d.now()
	old := d.liveEntry(key, now)

	var expireAt time.Time
	if ttl > 0 {
		expireAt = now.Add(ttl)
	}

	ev := WriteEvent{
		Key:      key,
		Kind:     model.OpSet,
		ExpireAt: expireAt,
		At:       now,
		NewValue: value,
		NewSize:  value.SizeEstimate(),
	}

	if old == nil {
		e := &model.Entry{
			Key:        key,
			Value:      value,
			CreatedAt:  now,
			LastAccess: now,
			ExpireAt:   expireAt,
			Version:    1,
		}
		d.setEntry(e)
		ev.Created = true
		ev.NewVersion = 1
	} else {
		ev.OldValue = old.Value
		ev.OldSize = old.Value.SizeEstimate()
		ev.OldVersion = old.Version
		d.mutateEntry(old, func() {
			old.Value = value
			old.ExpireAt = expireAt
			old.LastAccess = now
			old.Version++
		})
		ev.NewVersion = old.Version
	}

	d.observer.EntryWritten(ev)
	return ev.NewVersion, nil
}

// Delete removes the key. Reports whether an entry was removed; deleting a
// missing key is not an error.
func (d *Directory) Delete(ctx context.Context, key string) (bool, error) {
	unlock, err := d.LockKey(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()

	now := d.now()
	e := d.liveEntry(key, now)
	if e == nil {
		return false, nil
	}
	d.removeLocked(e, model.OpDelete, now)
	return true, nil
}

// Apply executes one mutation under the key's lock. Push/add-style ops
// create missing keys with an empty value of the right kind; pop/remove-
// style ops on missing keys return a neutral empty result.
func (d *Directory) Apply(ctx context.Context, op model.Op) (model.OpResult, error) {
	switch op.Kind {
	case model.OpSet:
		version, err := d.Put(ctx, op.Key, op.Value, op.TTL)
		return model.OpResult{Version: version, Found: true}, err
	case model.OpDelete:
		removed, err := d.Delete(ctx, op.Key)
		return model.OpResult{Found: removed}, err
	}

	unlock, err := d.LockKey(ctx, op.Key)
	if err != nil {
		return model.OpResult{}, err
	}
	defer unlock()

	now := d.now()
	e := d.liveEntry(op.Key, now)

	switch op.Kind {
	case model.OpListPush:
		return d.applyListPush(e, op, now)
	case model.OpListPop:
		return d.applyListPop(e, op, now)
	case model.OpSetAdd:
		return d.applySetAdd(e, op, now)
	case model.OpSetRemove:
		return d.applySetRemove(e, op, now)
	case model.OpHashSet:
		return d.applyHashSet(e, op, now)
	case model.OpHashDelete:
		return d.applyHashDelete(e, op, now)
	case model.OpZSetAdd:
		return d.applyZSetAdd(e, op, now)
	case model.OpZSetRemove:
		return d.applyZSetRemove(e, op, now)
	default:
		return model.OpResult{}, errors.InvalidArgument("unknown operation kind: "+string(op.Kind), nil)
	}
}

// ensureKind returns the typed value for an existing entry, or creates a
// fresh entry of the kind for push/add-style ops on a missing key. Caller
// must hold the key lock.
func (d *Directory) ensureKind(e *model.Entry, key string, kind model.ValueType, now time.Time) (*model.Entry, bool, error) {
	if e == nil {
		e = &model.Entry{
			Key:        key,
			Value:      model.NewValueOfKind(kind),
			CreatedAt:  now,
			LastAccess: now,
		}
		d.setEntry(e)
		return e, true, nil
	}
	if e.Value.Kind() != kind {
		return nil, false, errors.TypeMismatch(key, kind.String(), e.Value.Kind().String())
	}
	return e, false, nil
}

// commitMutation bumps the version and notifies the observer. Caller must
// hold the key lock. oldSize is the value size before the mutation.
func (d *Directory) commitMutation(e *model.Entry, created bool, kind model.OpKind, oldSize int64, now time.Time, decorate func(*WriteEvent)) uint64 {
	oldVersion := e.Version
	d.mutateEntry(e, func() {
		e.Version++
		e.LastAccess = now
	})

	ev := WriteEvent{
		Key:        e.Key,
		Kind:       kind,
		OldVersion: oldVersion,
		NewVersion: e.Version,
		Created:    created,
		ExpireAt:   e.ExpireAt,
		At:         now,
		NewValue:   e.Value,
		NewSize:    e.Value.SizeEstimate(),
		OldSize:    oldSize,
	}
	if decorate != nil {
		decorate(&ev)
	}
	d.observer.EntryWritten(ev)
	return e.Version
}

// dropIfEmpty removes a container entry that drained to zero elements so
// empty containers never linger in the directory. Caller must hold the key
// lock; reports whether the entry was dropped.
func (d *Directory) dropIfEmpty(e *model.Entry, kind model.OpKind, now time.Time, empty bool) bool {
	if !empty {
		return false
	}
	d.removeLocked(e, kind, now)
	return true
}

func (d *Directory) applyListPush(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	e, created, err := d.ensureKind(e, op.Key, model.ValueTypeList, now)
	if err != nil {
		return model.OpResult{}, err
	}
	list := e.Value.(*model.List)
	oldSize := list.SizeEstimate()

	var n int
	if op.Front {
		n = list.PushFront(op.Elems...)
	} else {
		n = list.PushBack(op.Elems...)
	}
	version := d.commitMutation(e, created, model.OpListPush, oldSize, now, nil)
	return model.OpResult{Version: version, Found: true, Count: n}, nil
}

func (d *Directory) applyListPop(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	if e == nil {
		return model.OpResult{}, nil
	}
	list, ok := e.Value.(*model.List)
	if !ok {
		return model.OpResult{}, errors.TypeMismatch(op.Key, model.ValueTypeList.String(), e.Value.Kind().String())
	}
	oldSize := list.SizeEstimate()

	var elem []byte
	var found bool
	if op.Front {
		elem, found = list.PopFront()
	} else {
		elem, found = list.PopBack()
	}
	if !found {
		return model.OpResult{}, nil
	}
	if d.dropIfEmpty(e, model.OpListPop, now, list.Len() == 0) {
		return model.OpResult{Found: true, Elem: elem}, nil
	}
	version := d.commitMutation(e, false, model.OpListPop, oldSize, now, nil)
	return model.OpResult{Version: version, Found: true, Elem: elem, Count: list.Len()}, nil
}

func (d *Directory) applySetAdd(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	e, created, err := d.ensureKind(e, op.Key, model.ValueTypeSet, now)
	if err != nil {
		return model.OpResult{}, err
	}
	set := e.Value.(*model.Set)
	oldSize := set.SizeEstimate()

	added := 0
	for _, m := range members(op) {
		if set.Add(m) {
			added++
		}
	}
	if added == 0 && !created {
		// No state change, no version bump.
		return model.OpResult{Version: e.Version, Found: true, Count: 0}, nil
	}
	if created && added == 0 {
		// The creation was never announced to the observer, so the
		// entry is dropped without a remove event.
		d.deleteEntry(e.Key)
		return model.OpResult{}, nil
	}
	version := d.commitMutation(e, created, model.OpSetAdd, oldSize, now, nil)
	return model.OpResult{Version: version, Found: true, Count: added}, nil
}

func (d *Directory) applySetRemove(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	if e == nil {
		return model.OpResult{}, nil
	}
	set, ok := e.Value.(*model.Set)
	if !ok {
		return model.OpResult{}, errors.TypeMismatch(op.Key, model.ValueTypeSet.String(), e.Value.Kind().String())
	}
	oldSize := set.SizeEstimate()

	removed := 0
	for _, m := range members(op) {
		if set.Remove(m) {
			removed++
		}
	}
	if removed == 0 {
		return model.OpResult{Version: e.Version, Count: 0}, nil
	}
	if d.dropIfEmpty(e, model.OpSetRemove, now, set.Len() == 0) {
		return model.OpResult{Found: true, Count: removed}, nil
	}
	version := d.commitMutation(e, false, model.OpSetRemove, oldSize, now, nil)
	return model.OpResult{Version: version, Found: true, Count: removed}, nil
}

func (d *Directory) applyHashSet(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	e, created, err := d.ensureKind(e, op.Key, model.ValueTypeHash, now)
	if err != nil {
		return model.OpResult{}, err
	}
	hash := e.Value.(*model.Hash)
	oldSize := hash.SizeEstimate()

	oldData, oldPresent := hash.GetField(op.Field)
	var oldCopy []byte
	if oldPresent {
		oldCopy = make([]byte, len(oldData))
		copy(oldCopy, oldData)
	}

	fieldCreated := hash.SetField(op.Field, op.Data)
	version := d.commitMutation(e, created, model.OpHashSet, oldSize, now, func(ev *WriteEvent) {
		ev.Field = op.Field
		ev.OldData = oldCopy
		ev.OldPresent = oldPresent
		ev.NewData = op.Data
		ev.NewPresent = true
	})
	count := 0
	if fieldCreated {
		count = 1
	}
	return model.OpResult{Version: version, Found: true, Count: count}, nil
}

func (d *Directory) applyHashDelete(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	if e == nil {
		return model.OpResult{}, nil
	}
	hash, ok := e.Value.(*model.Hash)
	if !ok {
		return model.OpResult{}, errors.TypeMismatch(op.Key, model.ValueTypeHash.String(), e.Value.Kind().String())
	}
	oldSize := hash.SizeEstimate()

	oldData, oldPresent := hash.GetField(op.Field)
	if !oldPresent {
		return model.OpResult{Version: e.Version}, nil
	}
	oldCopy := make([]byte, len(oldData))
	copy(oldCopy, oldData)
	hash.DeleteField(op.Field)

	if d.dropIfEmpty(e, model.OpHashDelete, now, hash.Len() == 0) {
		return model.OpResult{Found: true, Count: 1}, nil
	}
	version := d.commitMutation(e, false, model.OpHashDelete, oldSize, now, func(ev *WriteEvent) {
		ev.Field = op.Field
		ev.OldData = oldCopy
		ev.OldPresent = true
		ev.NewPresent = false
	})
	return model.OpResult{Version: version, Found: true, Count: 1}, nil
}

func (d *Directory) applyZSetAdd(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	e, created, err := d.ensureKind(e, op.Key, model.ValueTypeSortedSet, now)
	if err != nil {
		return model.OpResult{}, err
	}
	zset := e.Value.(*model.SortedSet)
	oldSize := zset.SizeEstimate()

	oldScore, existed := zset.Score(op.Member)
	isNew := zset.Add(op.Member, op.Score)
	if !isNew && existed && oldScore == op.Score {
		// Same member, same score: nothing changed.
		return model.OpResult{Version: e.Version, Found: true, Count: 0}, nil
	}
	version := d.commitMutation(e, created, model.OpZSetAdd, oldSize, now, nil)
	count := 0
	if isNew {
		count = 1
	}
	return model.OpResult{Version: version, Found: true, Count: count}, nil
}

func (d *Directory) applyZSetRemove(e *model.Entry, op model.Op, now time.Time) (model.OpResult, error) {
	if e == nil {
		return model.OpResult{}, nil
	}
	zset, ok := e.Value.(*model.SortedSet)
	if !ok {
		return model.OpResult{}, errors.TypeMismatch(op.Key, model.ValueTypeSortedSet.String(), e.Value.Kind().String())
	}
	oldSize := zset.SizeEstimate()

	removed := 0
	for _, m := range members(op) {
		if zset.Remove(m) {
			removed++
		}
	}
	if removed == 0 {
		return model.OpResult{Version: e.Version}, nil
	}
	if d.dropIfEmpty(e, model.OpZSetRemove, now, zset.Len() == 0) {
		return model.OpResult{Found: true, Count: removed}, nil
	}
	version := d.commitMutation(e, false, model.OpZSetRemove, oldSize, now, nil)
	return model.OpResult{Version: version, Found: true, Count: removed}, nil
}

// members collapses the single- and multi-member op fields.
func members(op model.Op) []string {
	if len(op.Members) > 0 {
		return op.Members
	}
	if op.Member != "" {
		return []string{op.Member}
	}
	return nil
}
