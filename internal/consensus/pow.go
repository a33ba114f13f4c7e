package consensus

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrBadTarget        = errors.New("difficulty target is not positive")
	ErrTargetAboveLimit = errors.New("difficulty target above proof-of-work limit")
)

// PoW verifies that header hashes meet the target encoded in their Bits.
// Difficulty retargeting and mining are handled elsewhere; the engine only
// enforces that each header carries the work it claims.
type PoW struct {
	limit *big.Int
}

// NewPoW creates a PoW engine that rejects targets easier than limitBits.
func NewPoW(limitBits uint32) (*PoW, error) {
	limit := block.CompactToBig(limitBits)
	if limit.Sign() <= 0 {
		return nil, fmt.Errorf("%w: limit bits %08x", ErrBadTarget, limitBits)
	}
	return &PoW{limit: limit}, nil
}

// DefaultPoW returns an engine using the protocol proof-of-work limit.
func DefaultPoW() *PoW {
	return &PoW{limit: block.CompactToBig(config.PowLimitBits)}
}

// VerifyHeader checks that the header hash meets the stated target.
func (p *PoW) VerifyHeader(header *block.Header) error {
	return CheckProofOfWork(header, p.limit)
}

// CheckProofOfWork verifies a header against its own target and the limit.
func CheckProofOfWork(header *block.Header, limit *big.Int) error {
	if header == nil {
		return fmt.Errorf("nil header")
	}
	target := block.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return fmt.Errorf("%w: bits %08x", ErrBadTarget, header.Bits)
	}
	if target.Cmp(limit) > 0 {
		return fmt.Errorf("%w: bits %08x", ErrTargetAboveLimit, header.Bits)
	}
	if block.HashToBig(header.Hash()).Cmp(target) > 0 {
		return fmt.Errorf("%w: height %d", ErrInsufficientWork, header.Height)
	}
	return nil
}
