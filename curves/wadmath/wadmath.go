// Package wadmath implements 18-decimal fixed-point ("wad") arithmetic on
// *big.Int values. A wad of 1e18 represents 1.0; currency amounts, prices and
// fee fractions throughout the engine are wads.
//
// Rounding direction is always explicit in the function name. The pricing
// invariant served here: amounts a pool receives round up, amounts a pool
// pays out round down.
package wadmath

import (
	"errors"
	"math/big"
)

var (
	// WAD is the fixed-point unit, 1e18. It MUST NOT be modified.
	WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	one = big.NewInt(1)

	// ErrNilInput is returned when a function receives a nil pointer.
	ErrNilInput = errors.New("input cannot be nil")
	// ErrNegativeInput is returned when a function requires non-negative inputs.
	ErrNegativeInput = errors.New("input must be non-negative")
	// ErrDivisionByZero is returned when a denominator is zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// check validates that every operand is non-nil and non-negative.
func check(xs ...*big.Int) error {
	for _, x := range xs {
		if x == nil {
			return ErrNilInput
		}
		if x.Sign() < 0 {
			return ErrNegativeInput
		}
	}
	return nil
}

// MulDivFloor returns floor((a * b) / c).
func MulDivFloor(a, b, c *big.Int) (*big.Int, error) {
	if err := check(a, b, c); err != nil {
		return nil, err
	}
	if c.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a, b)
	return product.Div(product, c), nil
}

// MulDivRoundingUp returns ceil((a * b) / c).
func MulDivRoundingUp(a, b, c *big.Int) (*big.Int, error) {
	if err := check(a, b, c); err != nil {
		return nil, err
	}
	if c.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	product := new(big.Int).Mul(a, b)
	quotient, rem := new(big.Int).QuoRem(product, c, new(big.Int))
	if rem.Sign() > 0 {
		quotient.Add(quotient, one)
	}
	return quotient, nil
}

// Mul returns floor(a * b / WAD).
func Mul(a, b *big.Int) (*big.Int, error) {
	return MulDivFloor(a, b, WAD)
}

// MulUp returns ceil(a * b / WAD).
func MulUp(a, b *big.Int) (*big.Int, error) {
	return MulDivRoundingUp(a, b, WAD)
}

// Div returns floor(a * WAD / b).
func Div(a, b *big.Int) (*big.Int, error) {
	return MulDivFloor(a, WAD, b)
}

// DivUp returns ceil(a * WAD / b).
func DivUp(a, b *big.Int) (*big.Int, error) {
	return MulDivRoundingUp(a, WAD, b)
}

// PowWad returns base^n in wad representation (floor rounding), computed by
// exponentiation by squaring. base is a wad; n is a plain integer exponent.
// PowWad(x, 0) == WAD for any valid x.
func PowWad(base *big.Int, n uint64) (*big.Int, error) {
	if err := check(base); err != nil {
		return nil, err
	}
	result := new(big.Int).Set(WAD)
	square := new(big.Int).Set(base)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, square)
			result.Div(result, WAD)
		}
		n >>= 1
		if n > 0 {
			square.Mul(square, square)
			square.Div(square, WAD)
		}
	}
	return result, nil
}

// FromUint64 scales a plain integer count into a wad.
func FromUint64(n uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(n), WAD)
}
