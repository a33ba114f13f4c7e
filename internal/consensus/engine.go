// Package consensus checks blocks against consensus rules before they
// reach the chain state.
package consensus

import "github.com/Klingon-tech/klingnet-chainstate/pkg/block"

// Engine is the interface for consensus implementations.
type Engine interface {
	VerifyHeader(header *block.Header) error
}
