// Package mempool manages pending transactions waiting for block inclusion.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool is full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrCoinbase      = errors.New("coinbase transactions are not relayed")
)

// DefaultMaxSize is the default number of transactions held.
const DefaultMaxSize = 5000

// UTXOSource reports whether an output is currently unspent.
type UTXOSource interface {
	Has(op types.Outpoint) (bool, error)
}

// entry wraps a transaction with its arrival order.
type entry struct {
	tx     *tx.Transaction
	txHash types.Hash
	seq    uint64
}

// Pool holds unconfirmed transactions.
type Pool struct {
	mu      sync.RWMutex
	txs     map[types.Hash]*entry         // txHash -> entry
	spends  map[types.Outpoint]types.Hash // outpoint -> txHash (conflict index)
	maxSize int
	nextSeq uint64
	policy  *Policy
	utxos   UTXOSource // nil disables input checks
}

// New creates a new mempool checking inputs against utxos.
func New(utxos UTXOSource, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Pool{
		txs:     make(map[types.Hash]*entry),
		spends:  make(map[types.Outpoint]types.Hash),
		maxSize: maxSize,
		policy:  DefaultPolicy(),
		utxos:   utxos,
	}
}

// SetPolicy replaces the acceptance policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Add validates and adds a transaction to the mempool.
// Rejects duplicates, double-spend conflicts and spends of unknown outputs.
func (p *Pool) Add(transaction *tx.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	txHash := transaction.Hash()

	// Reject duplicates.
	if _, exists := p.txs[txHash]; exists {
		return ErrAlreadyExists
	}
	if transaction.IsCoinbase() {
		return ErrCoinbase
	}
	if err := transaction.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if p.policy != nil {
		if err := p.policy.Check(transaction); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	// Check for double-spend conflicts.
	for _, in := range transaction.Inputs {
		if conflictHash, exists := p.spends[in.PrevOut]; exists {
			return fmt.Errorf("%w: input %s already spent by %s", ErrConflict, in.PrevOut, conflictHash)
		}
	}

	if p.utxos != nil {
		for _, in := range transaction.Inputs {
			ok, err := p.utxos.Has(in.PrevOut)
			if err != nil {
				return fmt.Errorf("utxo lookup %s: %w", in.PrevOut, err)
			}
			if !ok {
				return fmt.Errorf("%w: input %s is not unspent", ErrValidation, in.PrevOut)
			}
		}
	}

	if len(p.txs) >= p.maxSize {
		return ErrPoolFull
	}

	p.nextSeq++
	p.txs[txHash] = &entry{tx: transaction, txHash: txHash, seq: p.nextSeq}
	for _, in := range transaction.Inputs {
		p.spends[in.PrevOut] = txHash
	}
	return nil
}

// Remove removes a transaction from the mempool by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.txs[txHash]
	if !exists {
		return
	}
	// Clean up spend index.
	for _, in := range e.tx.Inputs {
		delete(p.spends, in.PrevOut)
	}
	delete(p.txs, txHash)
}

// RemoveConfirmed removes the transactions included in blk and any entry
// that spends an output blk spent. Returns the number removed.
func (p *Pool) RemoveConfirmed(blk *block.Block) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	before := len(p.txs)
	for _, t := range blk.Transactions {
		p.removeLocked(t.Hash())
		if t.IsCoinbase() {
			continue
		}
		for _, in := range t.Inputs {
			if conflict, ok := p.spends[in.PrevOut]; ok {
				p.removeLocked(conflict)
			}
		}
	}
	return before - len(p.txs)
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txHash]
	return exists
}

// Get retrieves a transaction from the mempool.
func (p *Pool) Get(txHash types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txHash]
	if !exists {
		return nil
	}
	return e.tx
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// Select returns up to limit transactions in arrival order.
func (p *Pool) Select(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.sortedLocked()
	if limit > len(entries) {
		limit = len(entries)
	}

	result := make([]*tx.Transaction, limit)
	for i := 0; i < limit; i++ {
		result[i] = entries[i].tx
	}
	return result
}

// sortedLocked returns entries oldest first. Must be called with p.mu held.
func (p *Pool) sortedLocked() []*entry {
	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].seq < entries[j].seq
	})
	return entries
}
