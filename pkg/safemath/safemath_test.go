package safemath

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func TestAddTimestampOverflow(t *testing.T) {
	_, err := AddTimestamp(math.MaxUint64-1, 3600)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestAddTimestampOK(t *testing.T) {
	got, err := AddTimestamp(1_000_000_000, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000+10_000_000_000), got)
}

func TestMulUint64Overflow(t *testing.T) {
	_, err := MulUint64(math.MaxUint64, 2)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestMul128(t *testing.T) {
	a := uint128.From64(1_000_000)
	b := uint128.From64(1_000_000_000_000_000_000)

	got, err := Mul128(a, b)
	require.NoError(t, err)

	want := new(big.Int).Mul(a.Big(), b.Big())
	require.Equal(t, 0, got.Big().Cmp(want))
}

func TestMul128Overflow(t *testing.T) {
	max := uint128.Max
	_, err := Mul128(max, uint128.From64(2))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestAddU128(t *testing.T) {
	a := uint128.From64(1_000_000).Mul(uint128.From64(1_000_000_000_000_000_000))
	b := uint128.From64(100_000).Mul(uint128.From64(1_000_000_000_000_000_000))

	got, err := AddU128(a, b)
	require.NoError(t, err)

	want := new(big.Int).Add(a.Big(), b.Big())
	require.Equal(t, 0, got.Big().Cmp(want))
}

func TestAddU128Overflow(t *testing.T) {
	_, err := AddU128(uint128.Max, uint128.From64(1))
	require.ErrorIs(t, err, ErrOverflow)
}
