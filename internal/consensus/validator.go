package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/pkg/block"
)

// ErrTimestampTooFar is returned for headers dated too far in the future.
var ErrTimestampTooFar = errors.New("block timestamp too far in the future")

// Validator validates blocks against consensus rules.
type Validator struct {
	engine Engine
	now    func() time.Time
}

// NewValidator creates a block validator with the given consensus engine.
// A nil engine skips header verification.
func NewValidator(engine Engine) *Validator {
	return &Validator{engine: engine, now: time.Now}
}

// ValidateBlock checks a block against both structural and consensus rules.
func (v *Validator) ValidateBlock(blk *block.Block) error {
	// Structural validation.
	if err := blk.Validate(); err != nil {
		return fmt.Errorf("block structure: %w", err)
	}

	limit := v.now().Add(config.MaxFutureBlockTime)
	if blk.Header.Time().After(limit) {
		return fmt.Errorf("%w: %s", ErrTimestampTooFar, blk.Header.Time().UTC().Format(time.RFC3339))
	}

	// Consensus-specific header verification.
	if v.engine != nil {
		if err := v.engine.VerifyHeader(blk.Header); err != nil {
			return fmt.Errorf("consensus: %w", err)
		}
	}

	return nil
}
