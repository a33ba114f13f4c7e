// Package tx defines transaction types and structural validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// Transaction represents a blockchain transaction.
type Transaction struct {
	Version  uint32   `json:"version"`
	Inputs   []Input  `json:"inputs"`
	Outputs  []Output `json:"outputs"`
	LockTime uint64   `json:"locktime"`
}

// Input references a UTXO being spent.
//
// Witness carries unlocking data that the chain-state engine does not
// interpret. For a coinbase input it holds arbitrary extra data.
type Input struct {
	PrevOut types.Outpoint `json:"prevout"`
	Witness []byte         `json:"witness,omitempty"`
}

type inputJSON struct {
	PrevOut types.Outpoint `json:"prevout"`
	Witness string         `json:"witness,omitempty"`
}

// MarshalJSON encodes the input with a hex-encoded witness.
func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(inputJSON{
		PrevOut: in.PrevOut,
		Witness: hex.EncodeToString(in.Witness),
	})
}

// UnmarshalJSON decodes an input with a hex-encoded witness.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PrevOut = j.PrevOut
	in.Witness = nil
	if j.Witness != "" {
		b, err := hex.DecodeString(j.Witness)
		if err != nil {
			return err
		}
		in.Witness = b
	}
	return nil
}

// Output defines a new UTXO.
type Output struct {
	Value  uint64       `json:"value"`
	Script types.Script `json:"script"`
}

// IsCoinbase reports whether the transaction mints new coins, i.e. its only
// input spends the zero outpoint.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PrevOut.IsZero()
}

// Hash computes the transaction ID (BLAKE3 hash of the canonical bytes).
// Witness data of regular inputs is excluded.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation of the transaction.
// Format: version(4) | input_count(4) | [prevout(36)]... | output_count(4) | [value(8) + script_type(1) + script_data_len(4) + script_data]... | locktime(8)
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.PrevOut.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.PrevOut.Index)
		// Coinbase extra data keeps otherwise identical coinbases distinct.
		if in.PrevOut.IsZero() && len(in.Witness) > 0 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(in.Witness)))
			buf = append(buf, in.Witness...)
		}
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
		buf = append(buf, byte(out.Script.Type))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(out.Script.Data)))
		buf = append(buf, out.Script.Data...)
	}

	buf = binary.LittleEndian.AppendUint64(buf, tx.LockTime)

	return buf
}

// OutPoint returns the outpoint of the output at index i.
func (tx *Transaction) OutPoint(i int) types.Outpoint {
	return types.Outpoint{TxID: tx.Hash(), Index: uint32(i)}
}

// TotalOutputValue returns the sum of all output values.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Value {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Value
	}
	return total, nil
}
