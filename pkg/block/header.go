package block

import (
	"encoding/binary"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// Header contains block metadata.
type Header struct {
	Version    uint32     `json:"version"`
	PrevHash   types.Hash `json:"prev_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint64     `json:"timestamp"`
	Height     uint64     `json:"height"`
	Bits       uint32     `json:"bits"` // Compact encoding of the target.
	Nonce      uint64     `json:"nonce"`
}

// HeaderSize is the length of the canonical header encoding.
const HeaderSize = 4 + 32 + 32 + 8 + 8 + 4 + 8

// Hash computes the block header hash.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes for hashing.
// Format: version(4) | prev_hash(32) | merkle_root(32) | timestamp(8) | height(8) | bits(4) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint64(buf, h.Nonce)
	return buf
}

// Time returns the header timestamp as a time.Time.
func (h *Header) Time() time.Time {
	return time.Unix(int64(h.Timestamp), 0)
}

// IsGenesis reports whether the header starts a chain.
func (h *Header) IsGenesis() bool {
	return h.PrevHash.IsZero()
}
