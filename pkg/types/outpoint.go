package types

import (
	"encoding/binary"
	"fmt"
)

// OutpointSize is the length of an encoded outpoint: txid followed by a big-endian index.
const OutpointSize = HashSize + 4

// Outpoint references a specific output in a transaction.
type Outpoint struct {
	TxID  Hash   `json:"txid"`
	Index uint32 `json:"index"`
}

// IsZero returns true if the outpoint has a zero TxID and zero index.
// Coinbase inputs spend the zero outpoint.
func (o Outpoint) IsZero() bool {
	return o.TxID.IsZero() && o.Index == 0
}

// Bytes returns the canonical 36-byte encoding of the outpoint.
func (o Outpoint) Bytes() []byte {
	b := make([]byte, OutpointSize)
	copy(b, o.TxID[:])
	binary.BigEndian.PutUint32(b[HashSize:], o.Index)
	return b
}

// String returns "txid:index" in hex.
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Index)
}
