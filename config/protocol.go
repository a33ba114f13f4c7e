package config

import "time"

// =============================================================================
// Protocol rules (identical on every node)
// =============================================================================

// Structural limits enforced by block and transaction validation.
const (
	MaxBlockSize  = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs   = 500       // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
	MaxScriptData = 65_536    // 64 KB max script data per output
	MaxWitness    = 1024      // Max opaque witness bytes per input
)

// PowLimitBits is the compact encoding of the easiest allowed target.
const PowLimitBits uint32 = 0x207fffff

// MaxFutureBlockTime bounds how far a header timestamp may run ahead of the local clock.
const MaxFutureBlockTime = 2 * time.Hour

// Chain selection bounds.
const (
	// MaxReorgDepth is the largest number of canonical blocks a reorganization may disconnect.
	MaxReorgDepth uint64 = 100

	// MaxForkDistance is how far behind the canonical chain a side branch may attach.
	MaxForkDistance uint64 = 6

	// ForkPointRetention is how long a fork point stays tracked after its block was produced.
	ForkPointRetention = 24 * time.Hour
)
