package chain

import (
	"errors"
	"fmt"
	"math/big"

	klog "github.com/Klingon-tech/klingnet-chainstate/internal/log"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
)

// ProcessBlock admits a block. It returns true when the block became the
// new best tip, by extension or reorganization. A block that is already
// known, too far from the canonical chain, on a fork with no more work than
// the best chain, or behind a too-deep reorganization returns false with no
// error. Errors leave the chain state unchanged.
func (c *ChainState) ProcessBlock(blk *block.Block) (bool, error) {
	if blk == nil || blk.Header == nil {
		return false, fmt.Errorf("%w: missing header", ErrInvalidBlock)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hash := blk.Hash()
	known, err := c.blocks.HasBlock(hash)
	if err != nil {
		return false, err
	}
	if known {
		klog.Chain.Debug().Str("hash", hash.Short()).Msg("Block already known")
		return false, nil
	}

	ok, err := c.checkAdmissible(blk)
	if err != nil || !ok {
		return false, err
	}

	newWork, err := c.calcChainWork(blk)
	if err != nil {
		return false, err
	}

	if blk.Header.PrevHash == c.tip.best {
		if err := c.extendChain(blk, newWork); err != nil {
			return false, err
		}
		return true, nil
	}

	currentWork, err := c.tipWork()
	if err != nil {
		return false, err
	}
	if newWork.Cmp(currentWork) <= 0 {
		if err := c.storeSideBlock(blk, newWork); err != nil {
			return false, err
		}
		return false, nil
	}

	plan, err := c.findForkPoint(blk)
	if errors.Is(err, errReorgTooDeep) {
		klog.Chain.Warn().
			Str("candidate", hash.Short()).
			Uint64("height", blk.Header.Height).
			Int("depth", len(plan.disconnect)).
			Uint64("max", c.opts.MaxReorgDepth).
			Msg("Rejected deep reorganization")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := c.reorganize(plan); err != nil {
		return false, err
	}
	return true, nil
}

// extendChain connects a block whose parent is the best tip.
func (c *ChainState) extendChain(blk *block.Block, work *big.Int) error {
	s := c.begin()
	defer s.rollback()

	if err := c.connectBlock(s, blk, work); err != nil {
		return err
	}
	if err := c.commit(s); err != nil {
		return err
	}

	klog.Chain.Info().
		Uint64("height", blk.Header.Height).
		Str("hash", c.tip.best.Short()).
		Int("txs", len(blk.Transactions)).
		Uint64("total_difficulty", c.tip.totalDifficulty).
		Msg("Block connected")

	c.notify(s, nil)
	return nil
}

// storeSideBlock keeps a block on a fork without more work than the best
// chain, so it can be reconsidered when the fork grows.
func (c *ChainState) storeSideBlock(blk *block.Block, work *big.Int) error {
	hash := blk.Hash()
	s := c.begin()
	defer s.rollback()

	if err := s.blocks.InsertBlock(blk); err != nil {
		return err
	}
	if err := s.blocks.PutChainWork(hash, work); err != nil {
		return err
	}
	s.work[hash] = work
	if err := c.commit(s); err != nil {
		return err
	}

	if !blk.Header.PrevHash.IsZero() {
		c.forkPoints[blk.Header.PrevHash] = struct{}{}
	}

	klog.Chain.Debug().
		Str("hash", hash.Short()).
		Uint64("height", blk.Header.Height).
		Str("parent", blk.Header.PrevHash.Short()).
		Str("work", work.String()).
		Msg("Stored side block")
	return nil
}
