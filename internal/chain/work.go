package chain

import (
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// knownWork returns the cumulative work recorded for hash, from memory or
// the committed store.
func (c *ChainState) knownWork(hash types.Hash) (*big.Int, bool, error) {
	if w, ok := c.chainWork[hash]; ok {
		return w, true, nil
	}
	w, ok, err := c.blocks.GetChainWork(hash)
	if err != nil || !ok {
		return nil, false, err
	}
	return w, true, nil
}

// calcChainWork returns the cumulative work of the chain ending at blk.
// The walk stops at the first ancestor with known work or at the zero root.
func (c *ChainState) calcChainWork(blk *block.Block) (*big.Int, error) {
	total := new(big.Int).Set(blk.Work())
	prev := blk.Header.PrevHash
	for !prev.IsZero() {
		w, ok, err := c.knownWork(prev)
		if err != nil {
			return nil, err
		}
		if ok {
			return total.Add(total, w), nil
		}
		parent, err := c.blocks.GetBlock(prev)
		if err != nil {
			return nil, fmt.Errorf("chain work of %s: %w", blk.Hash().Short(), err)
		}
		total.Add(total, parent.Work())
		prev = parent.Header.PrevHash
	}
	return total, nil
}

// workOf returns the cumulative work of a stored block.
func (c *ChainState) workOf(hash types.Hash) (*big.Int, error) {
	if hash.IsZero() {
		return new(big.Int), nil
	}
	w, ok, err := c.knownWork(hash)
	if err != nil {
		return nil, err
	}
	if ok {
		return w, nil
	}
	blk, err := c.blocks.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	return c.calcChainWork(blk)
}

// tipWork returns the cumulative work of the best tip.
func (c *ChainState) tipWork() (*big.Int, error) {
	return c.workOf(c.tip.best)
}

// reorgPlan is the path between the best tip and a heavier candidate.
type reorgPlan struct {
	fork       *block.Block   // Last common block.
	disconnect []*block.Block // Best tip down to just above fork.
	connect    []*block.Block // Just above fork up to the candidate.
}

// findForkPoint walks back from the candidate and the best tip, always
// stepping the taller side, until both reach the same block. It returns
// errReorgTooDeep with a partial plan once more than MaxReorgDepth blocks
// would be disconnected.
func (c *ChainState) findForkPoint(candidate *block.Block) (*reorgPlan, error) {
	plan := &reorgPlan{}
	if c.tip.best.IsZero() {
		return nil, fmt.Errorf("%w: chain is empty", ErrInvalidChainReorganization)
	}
	main, err := c.blocks.GetBlock(c.tip.best)
	if err != nil {
		return nil, fmt.Errorf("load tip: %w", err)
	}

	side := candidate
	sideHash, mainHash := side.Hash(), c.tip.best
	for sideHash != mainHash {
		sh, mh := side.Header.Height, main.Header.Height

		if sh >= mh {
			plan.connect = append(plan.connect, side)
			if side.Header.PrevHash.IsZero() {
				return nil, fmt.Errorf("%w: candidate %s shares no ancestor with tip %s",
					ErrInvalidChainReorganization, candidate.Hash().Short(), c.tip.best.Short())
			}
			sideHash = side.Header.PrevHash
			if side, err = c.blocks.GetBlock(sideHash); err != nil {
				return nil, fmt.Errorf("walk candidate branch: %w", err)
			}
		}

		if mh >= sh {
			plan.disconnect = append(plan.disconnect, main)
			if uint64(len(plan.disconnect)) > c.opts.MaxReorgDepth {
				return plan, errReorgTooDeep
			}
			if main.Header.PrevHash.IsZero() {
				return nil, fmt.Errorf("%w: tip %s shares no ancestor with candidate %s",
					ErrInvalidChainReorganization, c.tip.best.Short(), candidate.Hash().Short())
			}
			mainHash = main.Header.PrevHash
			if main, err = c.blocks.GetBlock(mainHash); err != nil {
				return nil, fmt.Errorf("walk canonical branch: %w", err)
			}
		}
	}

	plan.fork = main
	for i, j := 0, len(plan.connect)-1; i < j; i, j = i+1, j-1 {
		plan.connect[i], plan.connect[j] = plan.connect[j], plan.connect[i]
	}
	return plan, nil
}
