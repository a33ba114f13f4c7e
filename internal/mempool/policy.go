package mempool

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/tx"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

// Relay policy errors. They wrap into ErrValidation when returned from Add.
var (
	ErrTxTooLarge  = errors.New("transaction exceeds relay size limit")
	ErrNonStandard = errors.New("non-standard output script")
	ErrDustOutput  = errors.New("output below relay minimum")
)

// Relay defaults. Blocks may still carry anything consensus allows.
const (
	DefaultMaxTxSize   = 100_000 // signing bytes
	DefaultMinOutValue = 1
)

// Policy is the node-local relay filter applied after consensus validity.
// A zero limit disables its rule.
type Policy struct {
	MaxTxSize   int
	MinOutValue uint64
	// Scripts lists the output types relayed. Nil relays every known type.
	Scripts map[types.ScriptType]bool
}

// DefaultPolicy relays every known script type up to DefaultMaxTxSize.
func DefaultPolicy() *Policy {
	return &Policy{MaxTxSize: DefaultMaxTxSize, MinOutValue: DefaultMinOutValue}
}

// Check applies the policy to a consensus-valid transaction.
func (p *Policy) Check(t *tx.Transaction) error {
	if p.MaxTxSize > 0 {
		if n := len(t.SigningBytes()); n > p.MaxTxSize {
			return fmt.Errorf("%w: %d > %d bytes", ErrTxTooLarge, n, p.MaxTxSize)
		}
	}
	for i, out := range t.Outputs {
		if !p.relays(out.Script.Type) {
			return fmt.Errorf("%w: output %d is %s", ErrNonStandard, i, out.Script.Type)
		}
		// Burns are exempt; they exist to destroy value.
		if out.Script.Type != types.ScriptTypeBurn && out.Value < p.MinOutValue {
			return fmt.Errorf("%w: output %d carries %d", ErrDustOutput, i, out.Value)
		}
	}
	return nil
}

func (p *Policy) relays(st types.ScriptType) bool {
	if p.Scripts != nil {
		return p.Scripts[st]
	}
	return st.Known()
}
