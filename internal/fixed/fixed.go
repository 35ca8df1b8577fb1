// Package fixed implements unsigned 18-decimal fixed-point arithmetic on
// 256-bit integers. Every operation states its rounding direction so callers
// can bias results toward the safe side of a check.
package fixed

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits carried by a fixed-point value.
const Decimals = 18

var (
	ErrOverflow     = errors.New("fixed-point overflow")
	ErrZeroDivision = errors.New("fixed-point division by zero")
	ErrUnderflow    = errors.New("fixed-point underflow")
)

// One is 1.0 in fixed point. Treat as read-only.
var One = uint256.NewInt(1_000_000_000_000_000_000)

// FromUint returns v as a fixed-point value (v * 1e18).
func FromUint(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), One)
}

// Pow10 returns 10^n as a plain integer.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// MulDown returns a*b rounded down.
func MulDown(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, One)
	if overflow {
		return nil, fmt.Errorf("mul %s*%s: %w", a.Dec(), b.Dec(), ErrOverflow)
	}
	return z, nil
}

// MulUp returns a*b rounded up.
func MulUp(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("mul %s*%s: %w", a.Dec(), b.Dec(), ErrOverflow)
	}
	return ceilDiv(product, One), nil
}

// DivDown returns a/b rounded down.
func DivDown(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrZeroDivision
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, One, b)
	if overflow {
		return nil, fmt.Errorf("div %s/%s: %w", a.Dec(), b.Dec(), ErrOverflow)
	}
	return z, nil
}

// DivUp returns a/b rounded up.
func DivUp(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrZeroDivision
	}
	scaled, overflow := new(uint256.Int).MulOverflow(a, One)
	if overflow {
		return nil, fmt.Errorf("div %s/%s: %w", a.Dec(), b.Dec(), ErrOverflow)
	}
	return ceilDiv(scaled, b), nil
}

// Sub returns a-b, failing instead of wrapping when b > a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, fmt.Errorf("sub %s-%s: %w", a.Dec(), b.Dec(), ErrUnderflow)
	}
	return z, nil
}

// Add returns a+b, failing instead of wrapping.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, fmt.Errorf("add %s+%s: %w", a.Dec(), b.Dec(), ErrOverflow)
	}
	return z, nil
}

// Complement returns 1-x, or zero when x >= 1.
func Complement(x *uint256.Int) *uint256.Int {
	if !x.Lt(One) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(One, x)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return a
	}
	return b
}

// Sum adds values, failing on overflow.
func Sum(values []*uint256.Int) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, v := range values {
		var overflow bool
		total, overflow = new(uint256.Int).AddOverflow(total, v)
		if overflow {
			return nil, fmt.Errorf("sum: %w", ErrOverflow)
		}
	}
	return total, nil
}

// Parse reads a plain decimal integer (raw fixed-point units).
func Parse(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", s, err)
	}
	return v, nil
}

// FromBig converts b, failing when it is negative or wider than 256 bits.
func FromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil || b.Sign() < 0 {
		return nil, fmt.Errorf("from big %v: %w", b, ErrUnderflow)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("from big %s: %w", b, ErrOverflow)
	}
	return v, nil
}

// Clone returns an independent copy of v, treating nil as zero.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func ceilDiv(x, y *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return new(uint256.Int)
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(x, y, r)
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}
