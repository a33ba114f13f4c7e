package utxo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chainstate/internal/storage"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// ErrNotFound is returned when an outpoint has no unspent output.
var ErrNotFound = errors.New("utxo not found")

var prefixUTXO = []byte("u/") // u/<txid><index> -> UTXO JSON

type iterable interface {
	ForEach(prefix []byte, fn func(key, value []byte) error) error
}

// Store implements Set on top of a key-value store. Backed by a
// storage.Txn it stages changes that become visible on commit.
type Store struct {
	kv storage.KV
}

// NewStore creates a UTXO store over a database or transaction.
func NewStore(kv storage.KV) *Store {
	return &Store{kv: kv}
}

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	return append(append([]byte{}, prefixUTXO...), op.Bytes()...)
}

// Get retrieves a UTXO by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	data, err := s.kv.Get(utxoKey(outpoint))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, outpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// Put stores a UTXO.
func (s *Store) Put(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.kv.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	return nil
}

// Delete removes a UTXO. Deleting a missing outpoint is not an error.
func (s *Store) Delete(outpoint types.Outpoint) error {
	if err := s.kv.Delete(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Has checks if a UTXO exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.kv.Has(utxoKey(outpoint))
}

// ForEach iterates over all UTXOs in outpoint order.
// It is only available on a store backed by a database, not a transaction.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	it, ok := s.kv.(iterable)
	if !ok {
		return errors.New("utxo iteration is not supported on this backend")
	}
	return it.ForEach(prefixUTXO, func(_, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// Count returns the number of UTXOs in the store.
func (s *Store) Count() (int, error) {
	var n int
	err := s.ForEach(func(*UTXO) error {
		n++
		return nil
	})
	return n, err
}

// Total returns the sum of all unspent values.
func (s *Store) Total() (uint64, error) {
	var total uint64
	err := s.ForEach(func(u *UTXO) error {
		total += u.Value
		return nil
	})
	return total, err
}

// ClearAll removes every UTXO.
func (s *Store) ClearAll() error {
	var ops []types.Outpoint
	if err := s.ForEach(func(u *UTXO) error {
		ops = append(ops, u.Outpoint)
		return nil
	}); err != nil {
		return fmt.Errorf("scan utxos: %w", err)
	}
	for _, op := range ops {
		if err := s.Delete(op); err != nil {
			return err
		}
	}
	return nil
}
