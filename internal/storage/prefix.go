package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// This lets the block store, UTXO set and metadata share one database
// while keeping their keyspaces apart.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	p := make([]byte, len(prefix))
	copy(p, prefix)
	return &PrefixDB{inner: inner, prefix: p}
}

// prefixed returns key with the prefix prepended.
func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over all keys with the given prefix (within the PrefixDB namespace).
// The callback receives keys with the PrefixDB prefix stripped, so callers see only
// their logical keyspace.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	fullPrefix := p.prefixed(prefix)
	return p.inner.ForEach(fullPrefix, func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// Close is a no-op; the outer DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewTxn starts a transaction on the inner DB whose keys are namespaced
// the same way as the PrefixDB itself.
func (p *PrefixDB) NewTxn() Txn {
	return &prefixTxn{inner: p.inner.NewTxn(), db: p}
}

type prefixTxn struct {
	inner Txn
	db    *PrefixDB
}

func (t *prefixTxn) Get(key []byte) ([]byte, error) { return t.inner.Get(t.db.prefixed(key)) }
func (t *prefixTxn) Put(key, value []byte) error   { return t.inner.Put(t.db.prefixed(key), value) }
func (t *prefixTxn) Delete(key []byte) error       { return t.inner.Delete(t.db.prefixed(key)) }
func (t *prefixTxn) Has(key []byte) (bool, error)  { return t.inner.Has(t.db.prefixed(key)) }
func (t *prefixTxn) Commit() error                 { return t.inner.Commit() }
func (t *prefixTxn) Discard()                      { t.inner.Discard() }
