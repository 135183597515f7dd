//
// All monetary amounts in the engine are int64 micro-USDC (1 USDC = 1_000_000)
// and all factors are int64 basis points (10000 = 1.0x). Intermediate products
// go through big.Int so a factor application can never wrap; failures are
// explicit errors, never silent truncation.
package bpsmath

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

const (
	// BpsDenominator is the fixed-point scale: 10000 bps = 1.0x.
	BpsDenominator int64 = 10_000

	// MicroUsdcScale converts whole USDC to the engine's integer unit.
	MicroUsdcScale int64 = 1_000_000
)

var (
	ErrOverflow     = errors.New("fixed-point overflow")
	ErrNegative     = errors.New("negative amount")
	ErrDivideByZero = errors.New("division by zero")
)

var intPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt() *big.Int {
	return intPool.Get().(*big.Int)
}

func putInt(v *big.Int) {
	v.SetInt64(0)
	intPool.Put(v)
}

var maxInt64 = big.NewInt(math.MaxInt64)

// MulBps returns floor(amount * factorBps / 10000).
// Both inputs must be non-negative; an overflowing result fails closed.
func MulBps(amount, factorBps int64) (int64, error) {
	return MulDiv(amount, factorBps, BpsDenominator)
}

// MulDiv returns floor(a * b / div) through a big.Int intermediate.
func MulDiv(a, b, div int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrNegative
	}
	if div <= 0 {
		return 0, ErrDivideByZero
	}

	product := getInt()
	defer putInt(product)

	product.Mul(big.NewInt(a), big.NewInt(b))
	product.Quo(product, big.NewInt(div))

	if product.Cmp(maxInt64) > 0 {
		return 0, ErrOverflow
	}
	return product.Int64(), nil
}

// RatioBps returns floor(10000 * num / den) with the bootstrap convention:
// den == 0 saturates to MaxInt64 rather than failing. Overflow also saturates;
// callers compare ratios against thresholds, so the ceiling is safe.
func RatioBps(num, den int64) int64 {
	if num < 0 {
		num = 0
	}
	if den <= 0 {
		return math.MaxInt64
	}

	product := getInt()
	defer putInt(product)

	product.Mul(big.NewInt(num), big.NewInt(BpsDenominator))
	product.Quo(product, big.NewInt(den))

	if product.Cmp(maxInt64) > 0 {
		return math.MaxInt64
	}
	return product.Int64()
}

// CheckedAdd returns a+b or ErrOverflow.
func CheckedAdd(a, b int64) (int64, error) {
	sum := a + b
	if b > 0 && sum < a {
		return 0, ErrOverflow
	}
	if b < 0 && sum > a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a-b or ErrNegative when the result would drop below zero.
// Balances in this engine are never negative, so underflow is a caller bug.
func CheckedSub(a, b int64) (int64, error) {
	if b > a {
		return 0, ErrNegative
	}
	return a - b, nil
}

// SatAdd returns a+b, saturating at MaxInt64.
func SatAdd(a, b int64) int64 {
	sum, err := CheckedAdd(a, b)
	if err != nil {
		return math.MaxInt64
	}
	return sum
}

// SatSub returns a-b, floored at zero.
func SatSub(a, b int64) int64 {
	if b >= a {
		return 0
	}
	return a - b
}

// Min returns the smaller of a and b.
func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
