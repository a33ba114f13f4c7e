package chain

import (
	"math/big"

	klog "github.com/Klingon-tech/klingnet-chainstate/internal/log"
	"github.com/Klingon-tech/klingnet-chainstate/internal/storage"
	"github.com/Klingon-tech/klingnet-chainstate/internal/utxo"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// scope is one atomic chain update. Storage writes go to a transaction and
// in-memory changes are staged here; both take effect together in commit.
// Callers defer rollback, which is a no-op once committed.
type scope struct {
	txn    storage.Txn
	blocks *BlockStore
	utxos  *utxo.Store

	tip     tipState
	genesis types.Hash
	work    map[types.Hash]*big.Int

	connected    []*block.Block
	disconnected []*block.Block
	reverted     []*tx.Transaction

	done bool
}

func (c *ChainState) begin() *scope {
	txn := c.db.NewTxn()
	return &scope{
		txn:    txn,
		blocks: c.blocks.view(txn),
		utxos:  utxo.NewStore(txn),
		tip:    c.tip,
		work:   make(map[types.Hash]*big.Int),
	}
}

// rollback drops everything staged in the scope.
func (s *scope) rollback() {
	if s.done {
		return
	}
	s.done = true
	s.txn.Discard()
	klog.Chain.Debug().
		Int("connected", len(s.connected)).
		Int("disconnected", len(s.disconnected)).
		Msg("Chain update rolled back")
}

// persistTip writes the staged tip metadata.
func (s *scope) persistTip() error {
	if err := s.blocks.PutUint64(MetaHeight, s.tip.height); err != nil {
		return err
	}
	if err := s.blocks.PutHash(MetaBestHash, s.tip.best); err != nil {
		return err
	}
	return s.blocks.PutUint64(MetaTotalDifficulty, s.tip.totalDifficulty)
}

// commit makes the scope durable and then publishes its in-memory changes.
func (c *ChainState) commit(s *scope) error {
	if s.done {
		return dbError("commit", storage.ErrTxnDone)
	}
	s.done = true
	if err := s.txn.Commit(); err != nil {
		s.txn.Discard()
		klog.Chain.Error().Err(err).Msg("Chain update commit failed")
		return dbError("commit", err)
	}

	c.tip = s.tip
	if !s.genesis.IsZero() {
		c.genesisHash = s.genesis
	}
	for h, w := range s.work {
		c.chainWork[h] = w
	}
	return nil
}

func saturatingAdd(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
