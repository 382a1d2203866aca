package lotto

import (
	"math"

	"github.com/holiman/uint256"
)

// MaxBps is the denominator for basis-point fees.
const MaxBps = 10_000

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, ErrMathOverflow
	}
	return sum.Uint64(), nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if underflow {
		return 0, ErrMathOverflow
	}
	return diff.Uint64(), nil
}

func checkedMul(a, b uint64) (uint64, error) {
	product, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !product.IsUint64() {
		return 0, ErrMathOverflow
	}
	return product.Uint64(), nil
}

func checkedAdd32(a, b uint32) (uint32, error) {
	sum := uint64(a) + uint64(b)
	if sum > math.MaxUint32 {
		return 0, ErrMathOverflow
	}
	return uint32(sum), nil
}

// TreasuryCut computes floor(pot * bps / 10000). The product is formed in 256
// bits so large pots never fail spuriously; the result is at most pot.
func TreasuryCut(pot uint64, bps uint16) (uint64, error) {
	if bps > MaxBps {
		return 0, ErrInvalidRetainedBps
	}
	product := new(uint256.Int).Mul(uint256.NewInt(pot), uint256.NewInt(uint64(bps)))
	cut := product.Div(product, uint256.NewInt(MaxBps))
	if !cut.IsUint64() {
		return 0, ErrMathOverflow
	}
	return cut.Uint64(), nil
}
