package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/internal/chain"
	klog "github.com/Klingon-tech/klingnet-chainstate/internal/log"
	"github.com/Klingon-tech/klingnet-chainstate/internal/mempool"
	"github.com/Klingon-tech/klingnet-chainstate/internal/storage"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

const (
	baseTime  = 1_700_000_000
	lightBits = 0x207fffff
	heavyBits = 0x2000ffff
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server  *Server
	chain   *chain.ChainState
	pool    *mempool.Pool
	genesis *block.Block
	tip     *block.Block
	url     string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return setupTestEnvWithConfig(t, config.RPCConfig{})
}

func setupTestEnvWithConfig(t *testing.T, rpcCfg config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	opts := chain.DefaultOptions()
	opts.Now = func() time.Time { return time.Unix(baseTime+3600, 0) }
	ch, err := chain.New(storage.NewMemory(), opts)
	if err != nil {
		t.Fatalf("create chain: %v", err)
	}
	pool := mempool.New(ch.UTXOs(), 1000)
	ch.SetBlockConnectedHandler(func(blk *block.Block) { pool.RemoveConfirmed(blk) })

	// Two canonical blocks.
	g := makeBlock(nil, 0, lightBits)
	b2 := makeBlock(g, 0, lightBits)
	for _, blk := range []*block.Block{g, b2} {
		if _, err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("process block %d: %v", blk.Header.Height, err)
		}
	}

	submitBlock := func(_ context.Context, blk *block.Block) (bool, error) {
		return ch.ProcessBlock(blk)
	}

	// Create and start RPC server on random port.
	srv := New("127.0.0.1:0", ch, pool, submitBlock, pool.Add, rpcCfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:  srv,
		chain:   ch,
		pool:    pool,
		genesis: g,
		tip:     b2,
		url:     fmt.Sprintf("http://%s/", srv.Addr()),
	}
}

func coinbaseTx(height uint64, tag uint16) *tx.Transaction {
	extra := binary.LittleEndian.AppendUint64(nil, height)
	extra = binary.LittleEndian.AppendUint16(extra, tag)
	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: types.Outpoint{}, Witness: extra}},
		Outputs: []tx.Output{{Value: 5000, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: make([]byte, 20)}}},
	}
}

func spendTx(value uint64, op types.Outpoint) *tx.Transaction {
	return &tx.Transaction{
		Version: 1,
		Inputs:  []tx.Input{{PrevOut: op}},
		Outputs: []tx.Output{{Value: value, Script: types.Script{Type: types.ScriptTypeP2PKH, Data: []byte{0x01}}}},
	}
}

func makeBlock(parent *block.Block, tag uint16, bits uint32, txs ...*tx.Transaction) *block.Block {
	var prev types.Hash
	height := uint64(1)
	if parent != nil {
		prev = parent.Hash()
		height = parent.Header.Height + 1
	}
	all := append([]*tx.Transaction{coinbaseTx(height, tag)}, txs...)
	return block.Assemble(prev, height, baseTime+height*10, bits, all)
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// decodeResult re-decodes a generic result into a typed value.
func decodeResult(t *testing.T, resp Response, target interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("rpc error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}

func wantCode(t *testing.T, resp Response, code int) {
	t.Helper()
	if resp.Error == nil {
		t.Fatalf("expected error code %d, got result %v", code, resp.Result)
	}
	if resp.Error.Code != code {
		t.Errorf("error code = %d, want %d (%s)", resp.Error.Code, code, resp.Error.Message)
	}
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var info ChainInfoResult
	decodeResult(t, rpcCall(t, env.url, "chain_getInfo", nil), &info)

	if info.Height != 2 {
		t.Errorf("height = %d, want 2", info.Height)
	}
	if info.BestHash != env.tip.Hash().String() {
		t.Errorf("best hash = %s, want %s", info.BestHash, env.tip.Hash())
	}
	if info.GenesisHash != env.genesis.Hash().String() {
		t.Errorf("genesis = %s, want %s", info.GenesisHash, env.genesis.Hash())
	}
	if info.TotalDifficulty != 4 || info.ChainWork != "4" {
		t.Errorf("difficulty = %d work = %s, want 4", info.TotalDifficulty, info.ChainWork)
	}
	commitment, err := env.chain.UTXOCommitment()
	if err != nil {
		t.Fatalf("UTXOCommitment: %v", err)
	}
	if info.UTXOCommitment != commitment.String() {
		t.Errorf("commitment = %s, want %s", info.UTXOCommitment, commitment)
	}
	if info.LastReorg != 0 || info.ReorgCount != 0 {
		t.Errorf("unexpected reorg info: count %d last %d", info.ReorgCount, info.LastReorg)
	}
}

func TestRPC_ChainGetBlockByHeight(t *testing.T) {
	env := setupTestEnv(t)

	var res BlockResult
	decodeResult(t, rpcCall(t, env.url, "chain_getBlockByHeight", HeightParam{Height: 1}), &res)
	if res.Hash != env.genesis.Hash().String() {
		t.Errorf("hash = %s, want %s", res.Hash, env.genesis.Hash())
	}
	if res.Header == nil || res.Header.Height != 1 {
		t.Fatalf("header = %+v", res.Header)
	}
	if len(res.Transactions) != 1 || res.Transactions[0].Hash != env.genesis.Transactions[0].Hash().String() {
		t.Errorf("transactions = %+v", res.Transactions)
	}

	for _, h := range []uint64{0, 3} {
		wantCode(t, rpcCall(t, env.url, "chain_getBlockByHeight", HeightParam{Height: h}), CodeNotFound)
	}
}

func TestRPC_ChainGetBlockByHash(t *testing.T) {
	env := setupTestEnv(t)

	var res BlockResult
	decodeResult(t, rpcCall(t, env.url, "chain_getBlockByHash", HashParam{Hash: env.tip.Hash().String()}), &res)
	if res.Header.Height != 2 || res.Header.PrevHash != env.genesis.Hash() {
		t.Errorf("header = %+v", res.Header)
	}
}

func TestRPC_ChainGetBlockByHash_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	missing := types.Hash{0xde, 0xad}
	wantCode(t, rpcCall(t, env.url, "chain_getBlockByHash", HashParam{Hash: missing.String()}), CodeNotFound)
}

func TestRPC_ChainGetBlockByHash_SideBlock(t *testing.T) {
	env := setupTestEnv(t)

	// Equal work: stored but not canonical.
	side := makeBlock(env.genesis, 1, lightBits)
	if _, err := env.chain.ProcessBlock(side); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	var res BlockResult
	decodeResult(t, rpcCall(t, env.url, "chain_getBlockByHash", HashParam{Hash: side.Hash().String()}), &res)
	if res.Hash != side.Hash().String() {
		t.Errorf("hash = %s, want %s", res.Hash, side.Hash())
	}
}

func TestRPC_ChainGetTransaction(t *testing.T) {
	env := setupTestEnv(t)

	coinbase := env.tip.Transactions[0]
	var res TxResult
	decodeResult(t, rpcCall(t, env.url, "chain_getTransaction", HashParam{Hash: coinbase.Hash().String()}), &res)
	if res.Hash != coinbase.Hash().String() {
		t.Errorf("hash = %s, want %s", res.Hash, coinbase.Hash())
	}
	if res.Height != 2 || res.Pending {
		t.Errorf("height = %d pending = %v, want 2 false", res.Height, res.Pending)
	}
}

func TestRPC_ChainGetTransaction_Pending(t *testing.T) {
	env := setupTestEnv(t)

	spend := spendTx(4000, env.genesis.Transactions[0].OutPoint(0))
	if err := env.pool.Add(spend); err != nil {
		t.Fatalf("pool add: %v", err)
	}

	var res TxResult
	decodeResult(t, rpcCall(t, env.url, "chain_getTransaction", HashParam{Hash: spend.Hash().String()}), &res)
	if !res.Pending || res.Height != 0 {
		t.Errorf("pending = %v height = %d, want true 0", res.Pending, res.Height)
	}
}

func TestRPC_ChainGetTransaction_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	missing := types.Hash{0xbe, 0xef}
	wantCode(t, rpcCall(t, env.url, "chain_getTransaction", HashParam{Hash: missing.String()}), CodeNotFound)
}

func TestRPC_ChainGetChainWork(t *testing.T) {
	env := setupTestEnv(t)

	var res ChainWorkResult
	decodeResult(t, rpcCall(t, env.url, "chain_getChainWork", HashParam{Hash: env.tip.Hash().String()}), &res)
	if res.Work != "4" {
		t.Errorf("work = %s, want 4", res.Work)
	}

	missing := types.Hash{0x01}
	wantCode(t, rpcCall(t, env.url, "chain_getChainWork", HashParam{Hash: missing.String()}), CodeNotFound)
}

func TestRPC_ChainGetForkPoints(t *testing.T) {
	env := setupTestEnv(t)

	var res ForkPointsResult
	decodeResult(t, rpcCall(t, env.url, "chain_getForkPoints", nil), &res)
	if len(res.Hashes) != 0 {
		t.Errorf("fork points on a linear chain = %v", res.Hashes)
	}

	side := makeBlock(env.genesis, 1, lightBits)
	if _, err := env.chain.ProcessBlock(side); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	decodeResult(t, rpcCall(t, env.url, "chain_getForkPoints", nil), &res)
	if len(res.Hashes) != 1 || res.Hashes[0] != env.genesis.Hash().String() {
		t.Errorf("fork points = %v, want [%s]", res.Hashes, env.genesis.Hash())
	}
}

func TestRPC_UTXOGet(t *testing.T) {
	env := setupTestEnv(t)

	op := env.genesis.Transactions[0].OutPoint(0)
	resp := rpcCall(t, env.url, "utxo_get", OutpointParam{TxID: op.TxID.String(), Index: op.Index})

	var u struct {
		Value    uint64 `json:"value"`
		Height   uint64 `json:"height"`
		Coinbase bool   `json:"coinbase"`
	}
	decodeResult(t, resp, &u)
	if u.Value != 5000 || u.Height != 1 || !u.Coinbase {
		t.Errorf("utxo = %+v", u)
	}
}

func TestRPC_UTXOGet_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	op := env.genesis.Transactions[0].OutPoint(0)
	wantCode(t, rpcCall(t, env.url, "utxo_get", OutpointParam{TxID: op.TxID.String(), Index: 7}), CodeNotFound)
}

func TestRPC_BlockSubmit(t *testing.T) {
	env := setupTestEnv(t)

	b3 := makeBlock(env.tip, 0, lightBits)
	var res BlockSubmitResult
	decodeResult(t, rpcCall(t, env.url, "block_submit", BlockSubmitParam{Block: b3}), &res)
	if !res.Connected || res.Height != 3 || res.BlockHash != b3.Hash().String() {
		t.Errorf("result = %+v", res)
	}
	if env.chain.BestBlockHash() != b3.Hash() {
		t.Errorf("tip = %s, want %s", env.chain.BestBlockHash(), b3.Hash())
	}

	// Resubmitting is accepted without moving the tip.
	decodeResult(t, rpcCall(t, env.url, "block_submit", BlockSubmitParam{Block: b3}), &res)
	if res.Connected {
		t.Error("duplicate block reported as connected")
	}
}

func TestRPC_BlockSubmit_Reorg(t *testing.T) {
	env := setupTestEnv(t)

	heavy := makeBlock(env.genesis, 1, heavyBits)
	var res BlockSubmitResult
	decodeResult(t, rpcCall(t, env.url, "block_submit", BlockSubmitParam{Block: heavy}), &res)
	if !res.Connected {
		t.Fatal("heavier fork did not become the tip")
	}

	var info ChainInfoResult
	decodeResult(t, rpcCall(t, env.url, "chain_getInfo", nil), &info)
	if info.ReorgCount != 1 || info.LastReorg == 0 {
		t.Errorf("reorg count = %d last = %d", info.ReorgCount, info.LastReorg)
	}
	if info.BestHash != heavy.Hash().String() || info.Height != 2 {
		t.Errorf("tip = %s at %d", info.BestHash, info.Height)
	}
}

func TestRPC_BlockSubmit_Rejected(t *testing.T) {
	env := setupTestEnv(t)

	bad := makeBlock(env.tip, 0, lightBits)
	bad.Header.MerkleRoot = types.Hash{0xff}
	wantCode(t, rpcCall(t, env.url, "block_submit", BlockSubmitParam{Block: bad}), CodeRejected)

	if env.chain.Height() != 2 {
		t.Errorf("height = %d after rejected block, want 2", env.chain.Height())
	}
}

func TestRPC_BlockSubmit_Orphan(t *testing.T) {
	env := setupTestEnv(t)

	orphan := makeBlock(env.tip, 0, lightBits)
	orphan.Header.PrevHash = types.Hash{0x42}
	wantCode(t, rpcCall(t, env.url, "block_submit", BlockSubmitParam{Block: orphan}), CodeNotFound)
}

func TestRPC_BlockSubmit_MissingBlock(t *testing.T) {
	env := setupTestEnv(t)

	wantCode(t, rpcCall(t, env.url, "block_submit", BlockSubmitParam{}), CodeInvalidParams)
}

func TestRPC_TxSubmit(t *testing.T) {
	env := setupTestEnv(t)

	spend := spendTx(4000, env.genesis.Transactions[0].OutPoint(0))
	var res TxSubmitResult
	decodeResult(t, rpcCall(t, env.url, "tx_submit", TxSubmitParam{Transaction: spend}), &res)
	if res.TxHash != spend.Hash().String() {
		t.Errorf("tx hash = %s, want %s", res.TxHash, spend.Hash())
	}
	if !env.pool.Has(spend.Hash()) {
		t.Error("submitted tx missing from mempool")
	}

	// Same input again conflicts.
	dup := spendTx(3000, env.genesis.Transactions[0].OutPoint(0))
	wantCode(t, rpcCall(t, env.url, "tx_submit", TxSubmitParam{Transaction: dup}), CodeRejected)

	// Confirming the spend drains the pool.
	b3 := makeBlock(env.tip, 0, lightBits, spend)
	decodeResult(t, rpcCall(t, env.url, "block_submit", BlockSubmitParam{Block: b3}), &BlockSubmitResult{})
	if env.pool.Count() != 0 {
		t.Errorf("mempool count = %d after confirmation, want 0", env.pool.Count())
	}
}

func TestRPC_TxSubmit_UnknownInput(t *testing.T) {
	env := setupTestEnv(t)

	spend := spendTx(1, types.Outpoint{TxID: types.Hash{0x09}})
	wantCode(t, rpcCall(t, env.url, "tx_submit", TxSubmitParam{Transaction: spend}), CodeRejected)
}

func TestRPC_SubmitDisabled(t *testing.T) {
	klog.Init("error", false, "")
	ch, err := chain.New(storage.NewMemory(), chain.DefaultOptions())
	if err != nil {
		t.Fatalf("create chain: %v", err)
	}
	srv := New("127.0.0.1:0", ch, mempool.New(ch.UTXOs(), 10), nil, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	url := fmt.Sprintf("http://%s/", srv.Addr())

	wantCode(t, rpcCall(t, url, "block_submit", BlockSubmitParam{Block: makeBlock(nil, 0, lightBits)}), CodeMethodNotFound)
	wantCode(t, rpcCall(t, url, "tx_submit", TxSubmitParam{Transaction: spendTx(1, types.Outpoint{})}), CodeMethodNotFound)

	// The empty chain still answers queries.
	var info ChainInfoResult
	decodeResult(t, rpcCall(t, url, "chain_getInfo", nil), &info)
	if info.Height != 0 || info.BestHash != (types.Hash{}).String() {
		t.Errorf("empty chain info = %+v", info)
	}
}

func TestRPC_MempoolGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	var info MempoolInfoResult
	decodeResult(t, rpcCall(t, env.url, "mempool_getInfo", nil), &info)
	if info.Count != 0 {
		t.Errorf("count = %d, want 0", info.Count)
	}

	if err := env.pool.Add(spendTx(4000, env.genesis.Transactions[0].OutPoint(0))); err != nil {
		t.Fatalf("pool add: %v", err)
	}
	decodeResult(t, rpcCall(t, env.url, "mempool_getInfo", nil), &info)
	if info.Count != 1 {
		t.Errorf("count = %d, want 1", info.Count)
	}
}

func TestRPC_MempoolGetContent(t *testing.T) {
	env := setupTestEnv(t)

	first := spendTx(4000, env.genesis.Transactions[0].OutPoint(0))
	second := spendTx(4000, env.tip.Transactions[0].OutPoint(0))
	for _, pending := range []*tx.Transaction{first, second} {
		if err := env.pool.Add(pending); err != nil {
			t.Fatalf("pool add: %v", err)
		}
	}

	var res MempoolContentResult
	decodeResult(t, rpcCall(t, env.url, "mempool_getContent", nil), &res)
	if len(res.Hashes) != 2 {
		t.Fatalf("hashes = %v, want 2 entries", res.Hashes)
	}
	seen := map[string]bool{res.Hashes[0]: true, res.Hashes[1]: true}
	if !seen[first.Hash().String()] || !seen[second.Hash().String()] {
		t.Errorf("hashes = %v", res.Hashes)
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	wantCode(t, rpcCall(t, env.url, "nonexistent_method", nil), CodeMethodNotFound)
}

func TestRPC_InvalidParams(t *testing.T) {
	env := setupTestEnv(t)

	// chain_getBlockByHash requires params.
	wantCode(t, rpcCall(t, env.url, "chain_getBlockByHash", nil), CodeInvalidParams)
}

func TestRPC_InvalidHash(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name   string
		method string
		params interface{}
	}{
		{"empty", "chain_getBlockByHash", HashParam{}},
		{"not hex", "chain_getTransaction", HashParam{Hash: "xyz"}},
		{"short", "chain_getChainWork", HashParam{Hash: "abcd"}},
		{"utxo txid", "utxo_get", OutpointParam{TxID: "00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantCode(t, rpcCall(t, env.url, tt.method, tt.params), CodeInvalidParams)
		})
	}
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if rpcResp.Error.Code != CodeParseError {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeParseError)
	}
}

func TestRPC_WrongVersion(t *testing.T) {
	env := setupTestEnv(t)

	body := []byte(`{"jsonrpc":"1.0","method":"chain_getInfo","id":7}`)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)
	wantCode(t, rpcResp, CodeInvalidRequest)
}

func TestRPC_GetMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for GET request")
	}
	if rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeInvalidRequest)
	}
}

func TestRPC_BodySizeLimit(t *testing.T) {
	env := setupTestEnv(t)

	bigPayload := bytes.Repeat([]byte{'A'}, maxBodySize+1024)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(bigPayload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for oversized request body")
	}
	if rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeInvalidRequest)
	}
}

// --- IP Filtering ---

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.1"},
	})

	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	if resp.Error != nil {
		t.Errorf("expected success for 127.0.0.1, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_CIDR(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.0/8"},
	})

	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	if resp.Error != nil {
		t.Errorf("expected success inside 127.0.0.0/8, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"10.0.0.0/8"}, // Only allow 10.x.x.x.
	})

	// Request comes from 127.0.0.1 → should be blocked.
	req := Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1}
	body, _ := json.Marshal(req)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestParseAllowedIPs(t *testing.T) {
	nets := parseAllowedIPs([]string{"127.0.0.1", "10.0.0.0/8", "::1", "garbage"})
	if len(nets) != 3 {
		t.Fatalf("parsed %d networks, want 3", len(nets))
	}
	if ones, bits := nets[0].Mask.Size(); ones != 32 || bits != 32 {
		t.Errorf("single IPv4 mask = /%d of %d", ones, bits)
	}
	if ones, bits := nets[2].Mask.Size(); ones != 128 || bits != 128 {
		t.Errorf("single IPv6 mask = /%d of %d", ones, bits)
	}
}

// --- CORS ---

func corsPost(t *testing.T, url, origin string) *http.Response {
	t.Helper()
	req := Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1}
	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", url, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", origin)

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRPC_CORS_WildcardOrigin(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	resp := corsPost(t, env.url, "http://example.com")
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("CORS origin = %q, want %q", origin, "*")
	}
}

func TestRPC_CORS_SpecificOrigin(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"http://myapp.com"},
	})

	resp := corsPost(t, env.url, "http://myapp.com")
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "http://myapp.com" {
		t.Errorf("CORS origin = %q, want %q", origin, "http://myapp.com")
	}

	resp2 := corsPost(t, env.url, "http://evil.com")
	if origin := resp2.Header.Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("non-matching origin should have no CORS header, got %q", origin)
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	httpReq, _ := http.NewRequest("OPTIONS", env.url, nil)
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight should have Allow-Methods header")
	}
}

func TestRPC_CORS_Disabled(t *testing.T) {
	env := setupTestEnv(t)

	resp := corsPost(t, env.url, "http://example.com")
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "" {
		t.Errorf("disabled CORS should have no origin header, got %q", origin)
	}
}
