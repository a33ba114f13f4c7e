package tx

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(tx *Transaction)
		wantErr error
	}{
		{name: "valid", mutate: func(*Transaction) {}},
		{name: "no inputs", mutate: func(tx *Transaction) { tx.Inputs = nil }, wantErr: ErrNoInputs},
		{name: "no outputs", mutate: func(tx *Transaction) { tx.Outputs = nil }, wantErr: ErrNoOutputs},
		{
			name:    "duplicate input",
			mutate:  func(tx *Transaction) { tx.Inputs = append(tx.Inputs, tx.Inputs[0]) },
			wantErr: ErrDuplicateInput,
		},
		{
			name: "coinbase mixed with regular input",
			mutate: func(tx *Transaction) {
				tx.Inputs = append(tx.Inputs, Input{})
			},
			wantErr: ErrMixedCoinbase,
		},
		{name: "zero value", mutate: func(tx *Transaction) { tx.Outputs[0].Value = 0 }, wantErr: ErrZeroOutput},
		{
			name: "output overflow",
			mutate: func(tx *Transaction) {
				tx.Outputs = []Output{{Value: math.MaxUint64}, {Value: 1}}
			},
			wantErr: ErrOutputOverflow,
		},
		{
			name: "script data too large",
			mutate: func(tx *Transaction) {
				tx.Outputs[0].Script.Data = make([]byte, config.MaxScriptData+1)
			},
			wantErr: ErrScriptDataTooLarge,
		},
		{
			name: "witness too large",
			mutate: func(tx *Transaction) {
				tx.Inputs[0].Witness = make([]byte, config.MaxWitness+1)
			},
			wantErr: ErrWitnessTooLarge,
		},
		{
			name: "too many outputs",
			mutate: func(tx *Transaction) {
				tx.Outputs = make([]Output, config.MaxTxOutputs+1)
				for i := range tx.Outputs {
					tx.Outputs[i].Value = 1
				}
			},
			wantErr: ErrTooManyOutputs,
		},
		{
			name: "too many inputs",
			mutate: func(tx *Transaction) {
				tx.Inputs = make([]Input, config.MaxTxInputs+1)
				for i := range tx.Inputs {
					tx.Inputs[i].PrevOut = types.Outpoint{TxID: types.Hash{0x01}, Index: uint32(i + 1)}
				}
			},
			wantErr: ErrTooManyInputs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := simpleTx(1000)
			tt.mutate(tx)
			err := tx.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Coinbase(t *testing.T) {
	cb := &Transaction{
		Inputs:  []Input{{Witness: []byte{0x01}}},
		Outputs: []Output{{Value: 50}},
	}
	if err := cb.Validate(); err != nil {
		t.Fatalf("coinbase should validate: %v", err)
	}
}
