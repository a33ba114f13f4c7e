package mempool

import "github.com/Klingon-tech/klingnet-chainstate/pkg/tx"

// Reinsert adds transactions returned from disconnected blocks, oldest
// first. Entries that no longer fit or validate are dropped.
// Returns the number accepted.
func (p *Pool) Reinsert(txs []*tx.Transaction) int {
	accepted := 0
	for _, t := range txs {
		if err := p.Add(t); err == nil {
			accepted++
		}
	}
	return accepted
}

// EvictInvalid removes entries that spend outputs no longer in the UTXO
// set, e.g. after a reorganization. Returns the number evicted.
func (p *Pool) EvictInvalid() int {
	if p.utxos == nil {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for _, e := range p.sortedLocked() {
		for _, in := range e.tx.Inputs {
			ok, err := p.utxos.Has(in.PrevOut)
			if err == nil && !ok {
				p.removeLocked(e.txHash)
				evicted++
				break
			}
		}
	}
	return evicted
}
