package block

import (
	"math"
	"math/big"

	"github.com/Klingon-tech/klingnet-chainstate/pkg/types"
)

var (
	bigOne    = big.NewInt(1)
	oneLsh256 = new(big.Int).Lsh(bigOne, 256)
	maxUint64 = new(big.Int).SetUint64(math.MaxUint64)
)

// CompactToBig converts a compact target representation to a big integer.
//
// The compact form is a 32-bit value: the high byte is a base-256 exponent,
// bit 23 is a sign bit and the low 23 bits are the mantissa.
//
//	N = (-1^sign) * mantissa * 256^(exponent-3)
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a big integer to its compact representation.
// It is the inverse of CompactToBig, losing precision below the top three bytes.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	// A mantissa with bit 23 set would read back as negative.
	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// CalcWork returns the expected number of hashes needed to find a header
// meeting the target encoded in bits: 2^256 / (target + 1).
// A non-positive target yields zero work.
func CalcWork(bits uint32) *big.Int {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return big.NewInt(0)
	}
	denominator := new(big.Int).Add(target, bigOne)
	return new(big.Int).Div(oneLsh256, denominator)
}

// HashToBig interprets a hash as a big-endian unsigned integer.
func HashToBig(h types.Hash) *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// SaturatingUint64 clamps a non-negative work value into a uint64.
func SaturatingUint64(work *big.Int) uint64 {
	if work.Sign() <= 0 {
		return 0
	}
	if work.Cmp(maxUint64) > 0 {
		return math.MaxUint64
	}
	return work.Uint64()
}
