package chain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/internal/utxo"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// State is a point-in-time copy of the chain state.
type State struct {
	Height          uint64     `json:"height"`
	BestHash        types.Hash `json:"best_hash"`
	TotalDifficulty uint64     `json:"total_difficulty"`
	ChainWork       *big.Int   `json:"chain_work"` // Cumulative work of the best tip.
	GenesisHash     types.Hash `json:"genesis_hash"`
	ForkPoints      int        `json:"fork_points"`
	ReorgCount      uint64     `json:"reorg_count"`
	LastReorg       time.Time  `json:"last_reorg"`
	Uptime          string     `json:"uptime"`
}

// IsEmpty returns true if no block has been connected yet.
func (s *State) IsEmpty() bool {
	return s.Height == 0 && s.BestHash.IsZero()
}

// State returns a snapshot of the chain state.
func (c *ChainState) State() (*State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	work, err := c.tipWork()
	if err != nil {
		return nil, err
	}
	return &State{
		Height:          c.tip.height,
		BestHash:        c.tip.best,
		TotalDifficulty: c.tip.totalDifficulty,
		ChainWork:       new(big.Int).Set(work),
		GenesisHash:     c.genesisHash,
		ForkPoints:      len(c.forkPoints),
		ReorgCount:      c.reorgCount,
		LastReorg:       c.lastReorg,
		Uptime:          c.Uptime().Round(time.Second).String(),
	}, nil
}

// GetBlock returns any stored block, canonical or not.
func (c *ChainState) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// HasBlock reports whether a block is stored.
func (c *ChainState) HasBlock(hash types.Hash) (bool, error) {
	return c.blocks.HasBlock(hash)
}

// GetTransaction returns a canonical transaction and the height of its block.
func (c *ChainState) GetTransaction(txHash types.Hash) (*tx.Transaction, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks.GetTransaction(txHash)
}

// GetUTXO returns an unspent output at the best tip.
func (c *ChainState) GetUTXO(op types.Outpoint) (*utxo.UTXO, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.utxos.Get(op)
}

// UTXOs returns the UTXO set backing the chain.
func (c *ChainState) UTXOs() utxo.Set {
	return c.utxos
}

// UTXOCommitment returns the merkle commitment of the UTXO set at the best tip.
func (c *ChainState) UTXOCommitment() (types.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, err := utxo.Commitment(c.utxos)
	if err != nil {
		return types.Hash{}, dbError("utxo commitment", err)
	}
	return h, nil
}

// BlockAtHeight returns the canonical block at height. It walks back from
// the best tip rather than trusting the height index.
func (c *ChainState) BlockAtHeight(height uint64) (*block.Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if height == 0 || height > c.tip.height {
		return nil, fmt.Errorf("%w: no canonical block at height %d (tip %d)", ErrBlockNotFound, height, c.tip.height)
	}
	blk, err := c.blocks.GetBlock(c.tip.best)
	if err != nil {
		return nil, err
	}
	for blk.Header.Height > height {
		blk, err = c.blocks.GetBlock(blk.Header.PrevHash)
		if err != nil {
			return nil, err
		}
	}
	if blk.Header.Height != height {
		return nil, fmt.Errorf("%w: height gap below %d", ErrSerialization, height)
	}
	return blk, nil
}

// CanonicalHash returns the indexed canonical hash at height.
func (c *ChainState) CanonicalHash(height uint64) (types.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok, err := c.blocks.CanonicalHash(height)
	if err != nil {
		return types.Hash{}, err
	}
	if !ok {
		return types.Hash{}, fmt.Errorf("%w: height %d", ErrBlockNotFound, height)
	}
	return h, nil
}

// isNotFound reports whether err means a block is missing.
func isNotFound(err error) bool {
	return errors.Is(err, ErrBlockNotFound)
}
