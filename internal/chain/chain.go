// Package chain maintains the canonical chain: it admits blocks, tracks
// cumulative work per fork, and reorganizes onto heavier forks while keeping
// the UTXO set consistent with the best tip.
package chain

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/internal/storage"
	"github.com/Klingon-tech/klingnet-chainstate/internal/utxo"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// BlockValidator checks a block's self-contained validity before it is
// considered for admission.
type BlockValidator interface {
	ValidateBlock(blk *block.Block) error
}

// ValidatorFunc adapts a function to BlockValidator.
type ValidatorFunc func(blk *block.Block) error

// ValidateBlock calls f(blk).
func (f ValidatorFunc) ValidateBlock(blk *block.Block) error { return f(blk) }

// StructuralValidator runs the block's own structural checks.
var StructuralValidator = ValidatorFunc(func(blk *block.Block) error { return blk.Validate() })

// ReorgHandler is called after a reorganization has been committed.
type ReorgHandler func(ev *ReorgEvent)

// RevertedTxHandler is called after a reorg with transactions from reverted blocks
// that are not present in the new branch (for mempool re-insertion).
type RevertedTxHandler func(txs []*tx.Transaction)

// BlockConnectedHandler is called for every block that joins the canonical
// chain, by extension or reorganization.
type BlockConnectedHandler func(blk *block.Block)

// Options configures a ChainState.
type Options struct {
	// MaxReorgDepth bounds how many blocks a reorganization may disconnect.
	MaxReorgDepth uint64
	// MaxForkDistance bounds how far behind the canonical chain a new fork
	// may branch off before its blocks are ignored.
	MaxForkDistance uint64
	// ForkPointRetention is how long a fork point is remembered, measured
	// against its block's header timestamp.
	ForkPointRetention time.Duration
	// Validator checks blocks before admission. Nil uses StructuralValidator.
	Validator BlockValidator
	// BlockCacheSize is the number of decoded blocks cached. Zero disables it.
	BlockCacheSize int
	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time
}

// DefaultOptions returns the protocol defaults.
func DefaultOptions() Options {
	return Options{
		MaxReorgDepth:      config.MaxReorgDepth,
		MaxForkDistance:    config.MaxForkDistance,
		ForkPointRetention: config.ForkPointRetention,
		Validator:          StructuralValidator,
		BlockCacheSize:     DefaultBlockCacheSize,
		Now:                time.Now,
	}
}

// tipState is the part of the chain state persisted as metadata.
type tipState struct {
	height          uint64
	best            types.Hash
	totalDifficulty uint64
}

// ChainState is the canonical chain and the bookkeeping needed to switch
// between forks.
type ChainState struct {
	mu     sync.RWMutex // Serializes admissions; readers take the read lock.
	db     storage.DB
	blocks *BlockStore
	utxos  *utxo.Store
	opts   Options

	tip         tipState
	genesisHash types.Hash
	chainWork   map[types.Hash]*big.Int
	forkPoints  map[types.Hash]struct{}
	lastReorg   time.Time
	reorgCount  uint64
	startTime   time.Time

	reorgHandler          ReorgHandler
	revertedTxHandler     RevertedTxHandler
	blockConnectedHandler BlockConnectedHandler
}

// New loads the chain state persisted in db. An empty database yields an
// empty chain at height 0.
func New(db storage.DB, opts Options) (*ChainState, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if opts.Validator == nil {
		opts.Validator = StructuralValidator
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	blocks, err := NewBlockStore(db, opts.BlockCacheSize)
	if err != nil {
		return nil, err
	}

	c := &ChainState{
		db:         db,
		blocks:     blocks,
		utxos:      utxo.NewStore(db),
		opts:       opts,
		chainWork:  make(map[types.Hash]*big.Int),
		forkPoints: make(map[types.Hash]struct{}),
		startTime:  opts.Now(),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// load restores the tip from metadata and checks it against the stored tip block.
func (c *ChainState) load() error {
	height, err := c.blocks.GetUint64(MetaHeight)
	if err != nil {
		return fmt.Errorf("load height: %w", err)
	}
	best, err := c.blocks.GetHash(MetaBestHash)
	if err != nil {
		return fmt.Errorf("load best hash: %w", err)
	}
	td, err := c.blocks.GetUint64(MetaTotalDifficulty)
	if err != nil {
		return fmt.Errorf("load total difficulty: %w", err)
	}
	genesis, err := c.blocks.GetHash(MetaGenesisHash)
	if err != nil {
		return fmt.Errorf("load genesis hash: %w", err)
	}

	if best.IsZero() {
		if height != 0 {
			return fmt.Errorf("%w: height %d with empty best hash", ErrSerialization, height)
		}
	} else {
		tipBlk, err := c.blocks.GetBlock(best)
		if err != nil {
			return fmt.Errorf("load tip block: %w", err)
		}
		if tipBlk.Header.Height != height {
			return fmt.Errorf("%w: tip block %s at height %d, metadata says %d",
				ErrSerialization, best.Short(), tipBlk.Header.Height, height)
		}
	}

	c.tip = tipState{height: height, best: best, totalDifficulty: td}
	c.genesisHash = genesis
	return nil
}

// SetReorgHandler registers a callback for committed reorganizations.
func (c *ChainState) SetReorgHandler(fn ReorgHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reorgHandler = fn
}

// SetRevertedTxHandler registers a callback for transactions orphaned by a reorg.
func (c *ChainState) SetRevertedTxHandler(fn RevertedTxHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertedTxHandler = fn
}

// SetBlockConnectedHandler registers a callback for newly connected blocks.
func (c *ChainState) SetBlockConnectedHandler(fn BlockConnectedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockConnectedHandler = fn
}

// Height returns the height of the best tip. Zero means the chain is empty.
func (c *ChainState) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip.height
}

// BestBlockHash returns the hash of the best tip.
func (c *ChainState) BestBlockHash() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip.best
}

// TotalDifficulty returns the saturating sum of work on the canonical chain.
func (c *ChainState) TotalDifficulty() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip.totalDifficulty
}

// GenesisHash returns the hash of the first canonical block, or the zero hash.
func (c *ChainState) GenesisHash() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genesisHash
}

// ChainWork returns the cumulative work recorded for the chain ending at hash.
func (c *ChainState) ChainWork(hash types.Hash) (*big.Int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok, err := c.knownWork(hash)
	if err != nil || !ok {
		return nil, false
	}
	return new(big.Int).Set(w), true
}

// ForkPoints returns the hashes currently remembered as fork points.
func (c *ChainState) ForkPoints() []types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Hash, 0, len(c.forkPoints))
	for h := range c.forkPoints {
		out = append(out, h)
	}
	return out
}

// ReorgCount returns the number of reorganizations since start.
func (c *ChainState) ReorgCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reorgCount
}

// LastReorgTime returns when the last reorganization committed, or the zero time.
func (c *ChainState) LastReorgTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReorg
}

// Uptime returns how long this chain state has been running.
func (c *ChainState) Uptime() time.Duration {
	return c.opts.Now().Sub(c.startTime)
}

// DB returns the underlying database.
func (c *ChainState) DB() storage.DB {
	return c.db
}
