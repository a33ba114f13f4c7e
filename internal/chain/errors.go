package chain

import (
	"errors"
	"fmt"
)

// Chain state errors. Callers match them with errors.Is; the wrapped
// message carries the block or key involved.
var (
	// ErrInvalidBlock is returned when a block fails validation or spends
	// outputs that are not available.
	ErrInvalidBlock = errors.New("invalid block")
	// ErrDatabase wraps any storage failure other than a missing key.
	ErrDatabase = errors.New("database error")
	// ErrSerialization is returned for malformed stored blocks or metadata.
	ErrSerialization = errors.New("serialization error")
	// ErrInvalidChainReorganization is returned when a reorganization cannot
	// be planned or applied, e.g. the candidate shares no ancestor with the tip.
	ErrInvalidChainReorganization = errors.New("invalid chain reorganization")
	// ErrBlockNotFound is returned when a referenced block is not stored.
	ErrBlockNotFound = errors.New("block not found")
)

// errReorgTooDeep marks a fork plan that would disconnect more blocks than allowed.
var errReorgTooDeep = errors.New("reorganization too deep")

func dbError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDatabase, op, err)
}
