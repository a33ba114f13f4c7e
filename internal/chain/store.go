package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Klingon-tech/klingnet-chainstate/internal/storage"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// Key prefixes for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> block JSON
	prefixHeight = []byte("h/") // h/<height(8)> -> hash(32), canonical chain only
	prefixTx     = []byte("x/") // x/<txhash(32)> -> height(8) + blockHash(32)
	prefixWork   = []byte("w/") // w/<hash(32)> -> cumulative work (big-endian bytes)
	prefixMeta   = []byte("m/") // m/<key> -> metadata value
)

// Metadata keys.
const (
	MetaHeight          = "height"           // 8-byte big-endian
	MetaBestHash        = "best_hash"        // 32 bytes
	MetaTotalDifficulty = "total_difficulty" // 8-byte big-endian
	MetaGenesisHash     = "genesis_hash"     // 32 bytes
)

// DefaultBlockCacheSize is the number of decoded blocks kept in memory.
const DefaultBlockCacheSize = 512

// BlockStore persists blocks, their indexes and chain metadata. It works
// over either a database or a transaction; see view.
type BlockStore struct {
	kv    storage.KV
	cache *lru.Cache[types.Hash, *block.Block]
	// fill is false for transaction views so blocks staged in an
	// uncommitted transaction never reach the shared cache.
	fill bool
}

// NewBlockStore creates a block store with an LRU cache of cacheSize
// blocks. A cacheSize of zero or less disables the cache.
func NewBlockStore(kv storage.KV, cacheSize int) (*BlockStore, error) {
	bs := &BlockStore{kv: kv, fill: true}
	if cacheSize > 0 {
		c, err := lru.New[types.Hash, *block.Block](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("block cache: %w", err)
		}
		bs.cache = c
	}
	return bs, nil
}

// view returns a store reading and writing through kv. It shares the read
// cache (blocks are immutable by hash) but never populates it.
func (bs *BlockStore) view(kv storage.KV) *BlockStore {
	return &BlockStore{kv: kv, cache: bs.cache}
}

// InsertBlock stores a block by hash. Storing the same block twice is harmless.
func (bs *BlockStore) InsertBlock(blk *block.Block) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("%w: block marshal: %w", ErrSerialization, err)
	}
	if err := bs.kv.Put(blockKey(blk.Hash()), data); err != nil {
		return dbError("block put", err)
	}
	return nil
}

// GetBlock retrieves a block by its hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	if bs.cache != nil {
		if blk, ok := bs.cache.Get(hash); ok {
			return blk, nil
		}
	}
	data, err := bs.kv.Get(blockKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, hash)
	}
	if err != nil {
		return nil, dbError("block get", err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("%w: block %s: %w", ErrSerialization, hash, err)
	}
	if blk.Header == nil {
		return nil, fmt.Errorf("%w: block %s has no header", ErrSerialization, hash)
	}
	if bs.cache != nil && bs.fill {
		bs.cache.Add(hash, &blk)
	}
	return &blk, nil
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	if bs.cache != nil && bs.cache.Contains(hash) {
		return true, nil
	}
	ok, err := bs.kv.Has(blockKey(hash))
	if err != nil {
		return false, dbError("block has", err)
	}
	return ok, nil
}

// PutHeightIndex marks hash as the canonical block at height.
func (bs *BlockStore) PutHeightIndex(height uint64, hash types.Hash) error {
	if err := bs.kv.Put(heightKey(height), hash[:]); err != nil {
		return dbError("height index put", err)
	}
	return nil
}

// DeleteHeightIndex removes the canonical entry at height.
func (bs *BlockStore) DeleteHeightIndex(height uint64) error {
	if err := bs.kv.Delete(heightKey(height)); err != nil {
		return dbError("height index delete", err)
	}
	return nil
}

// CanonicalHash returns the canonical block hash at height, if any.
func (bs *BlockStore) CanonicalHash(height uint64) (types.Hash, bool, error) {
	data, err := bs.kv.Get(heightKey(height))
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, false, nil
	}
	if err != nil {
		return types.Hash{}, false, dbError("height index get", err)
	}
	h, err := types.BytesToHash(data)
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("%w: height index %d: %v", ErrSerialization, height, err)
	}
	return h, true, nil
}

// PutTxIndex records which block and height contain a transaction.
func (bs *BlockStore) PutTxIndex(txHash types.Hash, height uint64, blockHash types.Hash) error {
	val := make([]byte, 8+types.HashSize)
	binary.BigEndian.PutUint64(val[:8], height)
	copy(val[8:], blockHash[:])
	if err := bs.kv.Put(txKey(txHash), val); err != nil {
		return dbError("tx index put", err)
	}
	return nil
}

// DeleteTxIndex removes a transaction's index entry.
func (bs *BlockStore) DeleteTxIndex(txHash types.Hash) error {
	if err := bs.kv.Delete(txKey(txHash)); err != nil {
		return dbError("tx index delete", err)
	}
	return nil
}

// HasTransaction reports whether a canonical block indexes txHash.
func (bs *BlockStore) HasTransaction(txHash types.Hash) (bool, error) {
	ok, err := bs.kv.Has(txKey(txHash))
	if err != nil {
		return false, dbError("tx index has", err)
	}
	return ok, nil
}

// GetTransaction loads a canonical transaction by hash and returns it with
// the height of its block.
func (bs *BlockStore) GetTransaction(txHash types.Hash) (*tx.Transaction, uint64, error) {
	val, err := bs.kv.Get(txKey(txHash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, 0, fmt.Errorf("%w: no block indexes tx %s", ErrBlockNotFound, txHash)
	}
	if err != nil {
		return nil, 0, dbError("tx index get", err)
	}
	if len(val) != 8+types.HashSize {
		return nil, 0, fmt.Errorf("%w: tx index %s: got %d bytes", ErrSerialization, txHash, len(val))
	}
	height := binary.BigEndian.Uint64(val[:8])
	blockHash, err := types.BytesToHash(val[8:])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: tx index %s: %v", ErrSerialization, txHash, err)
	}
	blk, err := bs.GetBlock(blockHash)
	if err != nil {
		return nil, 0, err
	}
	for _, t := range blk.Transactions {
		if t.Hash() == txHash {
			return t, height, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: block %s does not contain indexed tx %s",
		ErrSerialization, blk.Hash().Short(), txHash)
}

// PutChainWork records the cumulative work of the chain ending at hash.
func (bs *BlockStore) PutChainWork(hash types.Hash, work *big.Int) error {
	if err := bs.kv.Put(workKey(hash), work.Bytes()); err != nil {
		return dbError("chain work put", err)
	}
	return nil
}

// GetChainWork returns the recorded cumulative work for hash.
func (bs *BlockStore) GetChainWork(hash types.Hash) (*big.Int, bool, error) {
	data, err := bs.kv.Get(workKey(hash))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbError("chain work get", err)
	}
	return new(big.Int).SetBytes(data), true, nil
}

// PutMetadata stores a metadata value.
func (bs *BlockStore) PutMetadata(key string, value []byte) error {
	if err := bs.kv.Put(metaKey(key), value); err != nil {
		return dbError("metadata put "+key, err)
	}
	return nil
}

// GetMetadata returns a metadata value and whether it was present.
func (bs *BlockStore) GetMetadata(key string) ([]byte, bool, error) {
	data, err := bs.kv.Get(metaKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dbError("metadata get "+key, err)
	}
	return data, true, nil
}

// PutUint64 stores an 8-byte big-endian metadata value.
func (bs *BlockStore) PutUint64(key string, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return bs.PutMetadata(key, buf[:])
}

// GetUint64 reads an 8-byte big-endian metadata value. Absent keys read as 0.
func (bs *BlockStore) GetUint64(key string) (uint64, error) {
	data, ok, err := bs.GetMetadata(key)
	if err != nil || !ok {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("%w: metadata %s: got %d bytes, want 8", ErrSerialization, key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// PutHash stores a hash metadata value.
func (bs *BlockStore) PutHash(key string, h types.Hash) error {
	return bs.PutMetadata(key, h[:])
}

// GetHash reads a hash metadata value. Absent keys read as the zero hash.
func (bs *BlockStore) GetHash(key string) (types.Hash, error) {
	data, ok, err := bs.GetMetadata(key)
	if err != nil || !ok {
		return types.Hash{}, err
	}
	h, err := types.BytesToHash(data)
	if err != nil {
		return types.Hash{}, fmt.Errorf("%w: metadata %s: %v", ErrSerialization, key, err)
	}
	return h, nil
}

func blockKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixBlock...), hash[:]...)
}

func heightKey(height uint64) []byte {
	key := make([]byte, len(prefixHeight)+8)
	copy(key, prefixHeight)
	binary.BigEndian.PutUint64(key[len(prefixHeight):], height)
	return key
}

func txKey(txHash types.Hash) []byte {
	return append(append([]byte{}, prefixTx...), txHash[:]...)
}

func workKey(hash types.Hash) []byte {
	return append(append([]byte{}, prefixWork...), hash[:]...)
}

func metaKey(key string) []byte {
	return append(append([]byte{}, prefixMeta...), key...)
}
