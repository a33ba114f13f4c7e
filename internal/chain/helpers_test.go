package chain

import (
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/internal/storage"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

const (
	baseTime  = 1_700_000_000
	lightBits = 0x207fffff // work 2
	heavyBits = 0x2000ffff // work 256
)

// testClock is a settable clock for fork point retention.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(baseTime+3600, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testOptions(clock *testClock) Options {
	opts := DefaultOptions()
	opts.Now = clock.Now
	return opts
}

func newTestChain(t *testing.T) *ChainState {
	t.Helper()
	ch, err := New(storage.NewMemory(), testOptions(newTestClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ch
}

// coinbaseTx mints value at height. tag keeps coinbases of competing
// blocks at the same height distinct.
func coinbaseTx(height uint64, tag uint16, value uint64) *tx.Transaction {
	extra := binary.LittleEndian.AppendUint64(nil, height)
	extra = binary.LittleEndian.AppendUint16(extra, tag)
	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{}, Witness: extra}},
		Outputs: []tx.Output{{
			Value:  value,
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)},
		}},
	}
}

// spendTx spends the given outpoints into a single output.
func spendTx(value uint64, ops ...types.Outpoint) *tx.Transaction {
	t := &tx.Transaction{
		Version: 1,
		Outputs: []tx.Output{{
			Value:  value,
			Script: types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{0x01, 0x02}},
		}},
	}
	for _, op := range ops {
		t.Inputs = append(t.Inputs, tx.Input{PrevOut: op})
	}
	return t
}

// makeBlock builds a block on parent (nil for a first block).
func makeBlock(parent *block.Block, tag uint16, bits uint32, txs ...*tx.Transaction) *block.Block {
	var prev types.Hash
	height := uint64(1)
	if parent != nil {
		prev = parent.Hash()
		height = parent.Header.Height + 1
	}
	all := append([]*tx.Transaction{coinbaseTx(height, tag, 5000)}, txs...)
	return block.Assemble(prev, height, baseTime+height*10, bits, all)
}

// makeChain builds n coinbase-only blocks on parent.
func makeChain(parent *block.Block, n int, tag uint16, bits uint32) []*block.Block {
	out := make([]*block.Block, 0, n)
	for i := 0; i < n; i++ {
		blk := makeBlock(parent, tag, bits)
		out = append(out, blk)
		parent = blk
	}
	return out
}

func mustProcess(t *testing.T, ch *ChainState, blk *block.Block) bool {
	t.Helper()
	ok, err := ch.ProcessBlock(blk)
	if err != nil {
		t.Fatalf("ProcessBlock(height %d): %v", blk.Header.Height, err)
	}
	return ok
}

func mustExtend(t *testing.T, ch *ChainState, blks ...*block.Block) {
	t.Helper()
	for _, blk := range blks {
		if !mustProcess(t, ch, blk) {
			t.Fatalf("block at height %d did not become tip", blk.Header.Height)
		}
	}
}

func mustCommitment(t *testing.T, ch *ChainState) types.Hash {
	t.Helper()
	h, err := ch.UTXOCommitment()
	if err != nil {
		t.Fatalf("UTXOCommitment: %v", err)
	}
	return h
}

// chainSnapshot is the externally visible chain state compared across operations.
type chainSnapshot struct {
	height     uint64
	best       types.Hash
	td         uint64
	commitment types.Hash
	reorgs     uint64
	forkPoints int
}

func snapshot(t *testing.T, ch *ChainState) chainSnapshot {
	t.Helper()
	return chainSnapshot{
		height:     ch.Height(),
		best:       ch.BestBlockHash(),
		td:         ch.TotalDifficulty(),
		commitment: mustCommitment(t, ch),
		reorgs:     ch.ReorgCount(),
		forkPoints: len(ch.ForkPoints()),
	}
}

var errInjected = errors.New("injected write failure")

// faultyDB fails the nth transactional write once armed, and every commit
// while failCommits is on.
type faultyDB struct {
	*storage.MemoryDB
	mu         sync.Mutex
	failAt     int
	writes     int
	commitFail bool
}

func newFaultyDB() *faultyDB {
	return &faultyDB{MemoryDB: storage.NewMemory()}
}

func (f *faultyDB) arm(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAt = n
	f.writes = 0
}

func (f *faultyDB) hit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt == 0 {
		return false
	}
	f.writes++
	return f.writes == f.failAt
}

func (f *faultyDB) failCommits(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitFail = on
}

func (f *faultyDB) commitFails() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commitFail
}

func (f *faultyDB) NewTxn() storage.Txn {
	return &faultyTxn{Txn: f.MemoryDB.NewTxn(), db: f}
}

type faultyTxn struct {
	storage.Txn
	db *faultyDB
}

func (t *faultyTxn) Put(key, value []byte) error {
	if t.db.hit() {
		return errInjected
	}
	return t.Txn.Put(key, value)
}

func (t *faultyTxn) Delete(key []byte) error {
	if t.db.hit() {
		return errInjected
	}
	return t.Txn.Delete(key)
}

func (t *faultyTxn) Commit() error {
	if t.db.commitFails() {
		return errInjected
	}
	return t.Txn.Commit()
}
