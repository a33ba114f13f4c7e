package storage

import "sort"

// overlayOp is a pending write. A nil value with del set is a delete.
type overlayOp struct {
	value []byte
	del   bool
}

// overlayTxn buffers writes in memory on top of a read view and hands the
// whole set to apply on Commit. Backends without native read-write
// transactions build their Txn on it.
type overlayTxn struct {
	base    KV
	ops     map[string]overlayOp
	apply   func(keys []string, ops map[string]overlayOp) error
	release func()
	done    bool
}

func newOverlayTxn(base KV, apply func([]string, map[string]overlayOp) error, release func()) *overlayTxn {
	return &overlayTxn{
		base:    base,
		ops:     make(map[string]overlayOp),
		apply:   apply,
		release: release,
	}
}

func (o *overlayTxn) Get(key []byte) ([]byte, error) {
	if o.done {
		return nil, ErrTxnDone
	}
	if op, ok := o.ops[string(key)]; ok {
		if op.del {
			return nil, ErrNotFound
		}
		return copyBytes(op.value), nil
	}
	return o.base.Get(key)
}

func (o *overlayTxn) Put(key, value []byte) error {
	if o.done {
		return ErrTxnDone
	}
	o.ops[string(key)] = overlayOp{value: copyBytes(value)}
	return nil
}

func (o *overlayTxn) Delete(key []byte) error {
	if o.done {
		return ErrTxnDone
	}
	o.ops[string(key)] = overlayOp{del: true}
	return nil
}

func (o *overlayTxn) Has(key []byte) (bool, error) {
	if o.done {
		return false, ErrTxnDone
	}
	if op, ok := o.ops[string(key)]; ok {
		return !op.del, nil
	}
	return o.base.Has(key)
}

// Commit applies all pending writes in key order.
func (o *overlayTxn) Commit() error {
	if o.done {
		return ErrTxnDone
	}
	o.finish()
	keys := make([]string, 0, len(o.ops))
	for k := range o.ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return o.apply(keys, o.ops)
}

func (o *overlayTxn) Discard() {
	if o.done {
		return
	}
	o.finish()
	o.ops = nil
}

func (o *overlayTxn) finish() {
	o.done = true
	if o.release != nil {
		o.release()
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
