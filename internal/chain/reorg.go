package chain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	klog "github.com/Klingon-tech/klingnet-chainstate/internal/log"
	"github.com/Klingon-tech/klingnet-chainstate/internal/utxo"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// ReorgEvent describes a committed reorganization.
type ReorgEvent struct {
	ID           uuid.UUID    `json:"id"`
	OldTip       types.Hash   `json:"old_tip"`
	NewTip       types.Hash   `json:"new_tip"`
	ForkPoint    types.Hash   `json:"fork_point"`
	OldHeight    uint64       `json:"old_height"`
	NewHeight    uint64       `json:"new_height"`
	Disconnected []types.Hash `json:"disconnected"`
	Connected    []types.Hash `json:"connected"`
	Timestamp    time.Time    `json:"timestamp"`
}

// Depth returns the number of blocks disconnected.
func (ev *ReorgEvent) Depth() int {
	return len(ev.Disconnected)
}

// connectBlock makes blk the new tip inside s. blk must extend the staged tip.
func (c *ChainState) connectBlock(s *scope, blk *block.Block, cumWork *big.Int) error {
	hash := blk.Hash()
	height := blk.Header.Height
	if blk.Header.PrevHash != s.tip.best || height != s.tip.height+1 {
		return fmt.Errorf("%w: block %s at %d does not extend tip %s at %d",
			ErrInvalidChainReorganization, hash.Short(), height, s.tip.best.Short(), s.tip.height)
	}

	known, err := s.blocks.HasBlock(hash)
	if err != nil {
		return err
	}
	if !known {
		if err := s.blocks.InsertBlock(blk); err != nil {
			return err
		}
	}

	for _, t := range blk.Transactions {
		txHash := t.Hash()
		coinbase := t.IsCoinbase()
		if err := checkNewTx(s.blocks, s.utxos, txHash, len(t.Outputs)); err != nil {
			return fmt.Errorf("block %s: %w", hash.Short(), err)
		}
		if !coinbase {
			for _, in := range t.Inputs {
				ok, err := s.utxos.Has(in.PrevOut)
				if err != nil {
					return dbError("utxo lookup", err)
				}
				if !ok {
					return fmt.Errorf("%w: block %s spends missing output %s",
						ErrInvalidBlock, hash.Short(), in.PrevOut)
				}
				if err := s.utxos.Delete(in.PrevOut); err != nil {
					return dbError("spend "+in.PrevOut.String(), err)
				}
			}
		}
		for i, out := range t.Outputs {
			u := &utxo.UTXO{
				Outpoint: types.Outpoint{TxID: txHash, Index: uint32(i)},
				Value:    out.Value,
				Script:   out.Script,
				Height:   height,
				Coinbase: coinbase,
			}
			if err := s.utxos.Put(u); err != nil {
				return dbError("create output", err)
			}
		}
		if err := s.blocks.PutTxIndex(txHash, height, hash); err != nil {
			return err
		}
	}

	if err := s.blocks.PutHeightIndex(height, hash); err != nil {
		return err
	}
	if err := s.blocks.PutChainWork(hash, cumWork); err != nil {
		return err
	}
	s.work[hash] = cumWork

	s.tip.totalDifficulty = saturatingAdd(s.tip.totalDifficulty, block.SaturatingUint64(blk.Work()))
	s.tip.height = height
	s.tip.best = hash
	if blk.Header.IsGenesis() {
		if err := s.blocks.PutHash(MetaGenesisHash, hash); err != nil {
			return err
		}
		s.genesis = hash
	}
	s.connected = append(s.connected, blk)
	return s.persistTip()
}

// disconnectBlock steps the staged tip back from blk to its parent,
// restoring the outputs blk spent and removing the ones it created.
func (c *ChainState) disconnectBlock(s *scope, blk *block.Block) error {
	hash := blk.Hash()
	height := blk.Header.Height
	if hash != s.tip.best {
		return fmt.Errorf("%w: block %s is not the tip %s",
			ErrInvalidChainReorganization, hash.Short(), s.tip.best.Short())
	}

	for i := len(blk.Transactions) - 1; i >= 0; i-- {
		t := blk.Transactions[i]
		txHash := t.Hash()

		for j := range t.Outputs {
			if err := s.utxos.Delete(types.Outpoint{TxID: txHash, Index: uint32(j)}); err != nil {
				return dbError("remove output", err)
			}
		}

		if !t.IsCoinbase() {
			for _, in := range t.Inputs {
				if err := c.restoreOutput(s, in.PrevOut); err != nil {
					return fmt.Errorf("disconnect %s: %w", hash.Short(), err)
				}
			}
			s.reverted = append(s.reverted, t)
		}

		if err := s.blocks.DeleteTxIndex(txHash); err != nil {
			return err
		}
	}

	if err := s.blocks.DeleteHeightIndex(height); err != nil {
		return err
	}

	s.tip.totalDifficulty = saturatingSub(s.tip.totalDifficulty, block.SaturatingUint64(blk.Work()))
	s.tip.height = height - 1
	s.tip.best = blk.Header.PrevHash
	s.disconnected = append(s.disconnected, blk)
	return s.persistTip()
}

// restoreOutput puts a spent output back by reading it from the
// transaction that created it.
func (c *ChainState) restoreOutput(s *scope, op types.Outpoint) error {
	src, height, err := s.blocks.GetTransaction(op.TxID)
	if err != nil {
		return fmt.Errorf("restore %s: %w", op, err)
	}
	if int(op.Index) >= len(src.Outputs) {
		return fmt.Errorf("%w: restore %s: tx has %d outputs", ErrSerialization, op, len(src.Outputs))
	}
	out := src.Outputs[op.Index]
	u := &utxo.UTXO{
		Outpoint: op,
		Value:    out.Value,
		Script:   out.Script,
		Height:   height,
		Coinbase: src.IsCoinbase(),
	}
	if err := s.utxos.Put(u); err != nil {
		return dbError("restore output", err)
	}
	return nil
}

// reorganize switches the canonical chain to the plan's candidate branch.
// Nothing is published unless every step succeeds and the scope commits.
func (c *ChainState) reorganize(plan *reorgPlan) (*ReorgEvent, error) {
	oldTip, oldHeight := c.tip.best, c.tip.height

	s := c.begin()
	defer s.rollback()

	for _, blk := range plan.disconnect {
		if err := c.disconnectBlock(s, blk); err != nil {
			return nil, err
		}
	}

	forkHash := plan.fork.Hash()
	forkWork, err := c.workOf(forkHash)
	if err != nil {
		return nil, err
	}
	running := new(big.Int).Set(forkWork)
	for _, blk := range plan.connect {
		running.Add(running, blk.Work())
		if err := c.connectBlock(s, blk, new(big.Int).Set(running)); err != nil {
			return nil, err
		}
	}

	if err := c.commit(s); err != nil {
		return nil, err
	}

	c.forkPoints[oldTip] = struct{}{}
	for _, blk := range plan.connect {
		delete(c.forkPoints, blk.Hash())
	}
	c.reorgCount++
	c.lastReorg = c.opts.Now()
	c.pruneForkPoints()

	ev := &ReorgEvent{
		ID:           uuid.New(),
		OldTip:       oldTip,
		NewTip:       c.tip.best,
		ForkPoint:    forkHash,
		OldHeight:    oldHeight,
		NewHeight:    c.tip.height,
		Disconnected: hashes(plan.disconnect),
		Connected:    hashes(plan.connect),
		Timestamp:    c.lastReorg,
	}

	klog.Chain.Info().
		Str("id", ev.ID.String()).
		Str("old_tip", oldTip.Short()).
		Str("new_tip", ev.NewTip.Short()).
		Str("fork_point", forkHash.Short()).
		Uint64("old_height", oldHeight).
		Uint64("new_height", ev.NewHeight).
		Int("disconnected", len(ev.Disconnected)).
		Int("connected", len(ev.Connected)).
		Msg("Chain reorganized")

	c.notify(s, ev)
	return ev, nil
}

// notify runs the registered handlers for a committed scope.
func (c *ChainState) notify(s *scope, ev *ReorgEvent) {
	if ev != nil && c.revertedTxHandler != nil && len(s.reverted) > 0 {
		inNew := make(map[types.Hash]struct{})
		for _, blk := range s.connected {
			for _, t := range blk.Transactions {
				inNew[t.Hash()] = struct{}{}
			}
		}
		var orphaned []*tx.Transaction
		for _, t := range s.reverted {
			if _, ok := inNew[t.Hash()]; !ok {
				orphaned = append(orphaned, t)
			}
		}
		if len(orphaned) > 0 {
			c.revertedTxHandler(orphaned)
		}
	}
	if c.blockConnectedHandler != nil {
		for _, blk := range s.connected {
			c.blockConnectedHandler(blk)
		}
	}
	if ev != nil && c.reorgHandler != nil {
		c.reorgHandler(ev)
	}
}

// pruneForkPoints forgets fork points whose block is missing or whose header
// timestamp is older than the retention window.
func (c *ChainState) pruneForkPoints() {
	cutoff := c.opts.Now().Add(-c.opts.ForkPointRetention)
	for h := range c.forkPoints {
		blk, err := c.blocks.GetBlock(h)
		if err != nil {
			if !errors.Is(err, ErrBlockNotFound) {
				klog.Chain.Warn().Err(err).Str("hash", h.Short()).Msg("Dropping unreadable fork point")
			}
			delete(c.forkPoints, h)
			continue
		}
		if blk.Header.Time().Before(cutoff) {
			delete(c.forkPoints, h)
		}
	}
}

func hashes(blks []*block.Block) []types.Hash {
	out := make([]types.Hash, len(blks))
	for i, blk := range blks {
		out[i] = blk.Hash()
	}
	return out
}
