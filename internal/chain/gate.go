package chain

import (
	"fmt"

	klog "github.com/Klingon-tech/klingnet-chainstate/internal/log"
	"github.com/Klingon-tech/klingnet-chainstate/internal/utxo"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// checkAdmissible decides whether a block may enter fork handling. It has no
// side effects. (false, nil) means the block is ignored; an error means it
// is invalid or could not be checked.
func (c *ChainState) checkAdmissible(blk *block.Block) (bool, error) {
	if err := c.opts.Validator.ValidateBlock(blk); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	if err := c.checkParentLink(blk); err != nil {
		return false, err
	}

	h := blk.Header
	if h.Height != c.tip.height+1 && h.PrevHash != c.tip.best {
		dist, err := c.forkDistance(blk)
		if err != nil {
			return false, err
		}
		if dist > c.opts.MaxForkDistance {
			klog.Chain.Warn().
				Str("hash", blk.Hash().Short()).
				Uint64("height", h.Height).
				Uint64("distance", dist).
				Uint64("max", c.opts.MaxForkDistance).
				Msg("Ignoring block too far from canonical chain")
			return false, nil
		}
	}

	if err := c.checkSpends(blk); err != nil {
		return false, err
	}
	// Side branches are checked when they connect, against their own state.
	if h.PrevHash == c.tip.best {
		for _, t := range blk.Transactions {
			if err := checkNewTx(c.blocks, c.utxos, t.Hash(), len(t.Outputs)); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// checkNewTx rejects a transaction that is already on the canonical chain or
// whose outputs would overwrite unspent ones.
func checkNewTx(blocks *BlockStore, utxos utxo.Set, txHash types.Hash, outputs int) error {
	indexed, err := blocks.HasTransaction(txHash)
	if err != nil {
		return err
	}
	if indexed {
		return fmt.Errorf("%w: duplicate transaction %s", ErrInvalidBlock, txHash)
	}
	for i := 0; i < outputs; i++ {
		op := types.Outpoint{TxID: txHash, Index: uint32(i)}
		ok, err := utxos.Has(op)
		if err != nil {
			return dbError("utxo lookup", err)
		}
		if ok {
			return fmt.Errorf("%w: output %s already unspent", ErrInvalidBlock, op)
		}
	}
	return nil
}

// checkParentLink verifies the height follows the parent when the parent is known.
func (c *ChainState) checkParentLink(blk *block.Block) error {
	h := blk.Header
	if h.PrevHash.IsZero() {
		if h.Height != 1 {
			return fmt.Errorf("%w: block with zero parent at height %d", ErrInvalidBlock, h.Height)
		}
		return nil
	}
	parent, err := c.blocks.GetBlock(h.PrevHash)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if h.Height != parent.Header.Height+1 {
		return fmt.Errorf("%w: height %d does not follow parent %s at %d",
			ErrInvalidBlock, h.Height, h.PrevHash.Short(), parent.Header.Height)
	}
	return nil
}

// forkDistance estimates how many blocks lie between blk and its nearest
// stored ancestor. A stored parent is distance zero. Otherwise the missing
// history is estimated from the height gap to the best tip, at least one.
func (c *ChainState) forkDistance(blk *block.Block) (uint64, error) {
	h := blk.Header
	if h.PrevHash.IsZero() {
		return 0, nil
	}
	known, err := c.blocks.HasBlock(h.PrevHash)
	if err != nil {
		return 0, err
	}
	if known {
		return 0, nil
	}
	var gap uint64
	if h.Height > c.tip.height {
		gap = h.Height - c.tip.height
	} else {
		gap = c.tip.height - h.Height
	}
	return max(gap, 1), nil
}

// checkSpends rejects a block that spends an output twice or spends an
// output missing from the UTXO set.
func (c *ChainState) checkSpends(blk *block.Block) error {
	spent := make(map[types.Outpoint]struct{})
	for i, t := range blk.Transactions {
		if t.IsCoinbase() {
			continue
		}
		for _, in := range t.Inputs {
			if _, dup := spent[in.PrevOut]; dup {
				return fmt.Errorf("%w: tx %d double-spends %s", ErrInvalidBlock, i, in.PrevOut)
			}
			spent[in.PrevOut] = struct{}{}

			ok, err := c.utxos.Has(in.PrevOut)
			if err != nil {
				return dbError("utxo lookup", err)
			}
			if !ok {
				return fmt.Errorf("%w: tx %d spends unknown output %s: %w", ErrInvalidBlock, i, in.PrevOut, utxo.ErrNotFound)
			}
		}
	}
	return nil
}
