package storage

import (
	"errors"
	"fmt"

	klog "github.com/Klingon-tech/klingnet-chainstate/internal/log"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// levelDBOptions are the options LevelDB databases are opened with.
var levelDBOptions = opt.Options{
	Compression:            opt.NoCompression,
	BlockCacheCapacity:     64 * opt.MiB,
	WriteBuffer:            32 * opt.MiB,
	DisableSeeksCompaction: true,
}

// LevelDB implements DB using goleveldb.
type LevelDB struct {
	ldb *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
// A corrupted database is recovered in place before use.
func NewLevelDB(path string) (*LevelDB, error) {
	opts := levelDBOptions
	ldb, err := leveldb.OpenFile(path, &opts)

	var corrupted *ldbErrors.ErrCorrupted
	if errors.As(err, &corrupted) {
		klog.Storage.Warn().Str("path", path).Err(err).Msg("LevelDB corruption detected, recovering")
		ldb, err = leveldb.RecoverFile(path, &opts)
		if err != nil {
			return nil, fmt.Errorf("recover database at %s: %w", path, err)
		}
		klog.Storage.Warn().Str("path", path).Msg("LevelDB recovered from corruption")
	}
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &LevelDB{ldb: ldb}, nil
}

// Get retrieves a value by key. Returns ErrNotFound if the key does not exist.
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	return levelGet(l.ldb.Get, key)
}

// Put stores a key-value pair.
func (l *LevelDB) Put(key, value []byte) error {
	if err := l.ldb.Put(key, value, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

// Delete removes a key.
func (l *LevelDB) Delete(key []byte) error {
	if err := l.ldb.Delete(key, nil); err != nil {
		return fmt.Errorf("leveldb delete: %w", err)
	}
	return nil
}

// Has checks if a key exists.
func (l *LevelDB) Has(key []byte) (bool, error) {
	ok, err := l.ldb.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("leveldb has: %w", err)
	}
	return ok, nil
}

// ForEach iterates over all keys with the given prefix.
func (l *LevelDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	it := l.ldb.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	for it.Next() {
		if err := fn(copyBytes(it.Key()), copyBytes(it.Value())); err != nil {
			return err
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("leveldb iterate: %w", err)
	}
	return nil
}

// NewTxn starts a transaction that reads from a snapshot plus its own
// pending writes, and commits them as one leveldb.Batch.
func (l *LevelDB) NewTxn() Txn {
	var (
		base    KV = l
		release func()
	)
	if snap, err := l.ldb.GetSnapshot(); err == nil {
		base = &levelSnapshot{snap: snap}
		release = snap.Release
	}

	return newOverlayTxn(base, func(keys []string, ops map[string]overlayOp) error {
		batch := new(leveldb.Batch)
		for _, k := range keys {
			op := ops[k]
			if op.del {
				batch.Delete([]byte(k))
			} else {
				batch.Put([]byte(k), op.value)
			}
		}
		if err := l.ldb.Write(batch, nil); err != nil {
			return fmt.Errorf("leveldb write batch: %w", err)
		}
		return nil
	}, release)
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return l.ldb.Close()
}

// levelSnapshot adapts a read-only snapshot to the KV read path.
type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) {
	return levelGet(s.snap.Get, key)
}

func (s *levelSnapshot) Has(key []byte) (bool, error) {
	ok, err := s.snap.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("leveldb snapshot has: %w", err)
	}
	return ok, nil
}

func (s *levelSnapshot) Put([]byte, []byte) error { return errors.New("leveldb snapshot is read-only") }
func (s *levelSnapshot) Delete([]byte) error      { return errors.New("leveldb snapshot is read-only") }

func levelGet(get func([]byte, *opt.ReadOptions) ([]byte, error), key []byte) ([]byte, error) {
	data, err := get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return data, nil
}
