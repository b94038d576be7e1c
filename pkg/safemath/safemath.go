// Package safemath provides checked integer arithmetic for the numeric
// boundaries the coordinator and escrow mirror must never silently wrap:
// nanosecond timestamp addition and 128-bit decimal conversions between a
// chain's native base unit and its wire-level integer amount.
package safemath

import (
	"errors"
	"math/big"

	"lukechampine.com/uint128"
)

// ErrOverflow is returned whenever a checked operation would wrap.
var ErrOverflow = errors.New("safemath: operation overflows")

// AddTimestamp adds a period (in seconds) to a nanosecond timestamp and
// returns an error instead of wrapping if the result would exceed the
// maximum representable uint64 nanosecond value. This is the single choke
// point every escrow period computation goes through; see escrow.Create.
func AddTimestamp(nowNanos uint64, periodSecs uint64) (uint64, error) {
	periodNanos, err := MulUint64(periodSecs, uint64(1_000_000_000))
	if err != nil {
		return 0, err
	}

	sum := nowNanos + periodNanos
	if sum < nowNanos {
		return 0, ErrOverflow
	}

	return sum, nil
}

// MulUint64 multiplies two uint64s and fails rather than wraps on overflow.
func MulUint64(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}

	product := a * b
	if product/a != b {
		return 0, ErrOverflow
	}

	return product, nil
}

// maxUint128Big is the largest value a uint128.Uint128 can represent.
var maxUint128Big = new(big.Int).Sub(
	new(big.Int).Lsh(big.NewInt(1), 128),
	big.NewInt(1),
)

// Mul128 performs a checked multiplication of two 128-bit unsigned values,
// used for decimal conversions between a chain's native base unit (e.g.
// NEAR's 10^24 yocto unit) and the wire-level integer amount. It fails
// rather than truncates on overflow.
//
// The multiplication itself is carried out via math/big so that overflow
// detection doesn't depend on undocumented wraparound behavior in the
// uint128 package; uint128.Uint128 remains the type every caller in this
// module works in.
func Mul128(a, b uint128.Uint128) (uint128.Uint128, error) {
	product := new(big.Int).Mul(a.Big(), b.Big())
	if product.Cmp(maxUint128Big) > 0 {
		return uint128.Uint128{}, ErrOverflow
	}

	return uint128.FromBig(product), nil
}

// AddU128 performs a checked addition of two 128-bit unsigned values, used
// for principal+safety_deposit custody totals. Uint128.Add panics on
// overflow, so this goes through math/big and returns ErrOverflow instead.
func AddU128(a, b uint128.Uint128) (uint128.Uint128, error) {
	sum := new(big.Int).Add(a.Big(), b.Big())
	if sum.Cmp(maxUint128Big) > 0 {
		return uint128.Uint128{}, ErrOverflow
	}

	return uint128.FromBig(sum), nil
}
