// Package weighted prices swaps, joins and exits with the weighted
// constant-product invariant, prod(balance_i ^ weight_i).
//
// Math runs on arbitrary-precision decimals and converts back to integers at
// the edges, rounding in the pool's favour: amounts paid out round down and
// amounts paid in round up.
package weighted

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"poolGuard/internal/fixed"
)

// precision is the number of fractional digits carried through divisions
// and fractional powers.
const precision int32 = 36

var (
	ErrZeroBalance  = errors.New("zero balance")
	ErrMaxInRatio   = errors.New("amount in exceeds max in ratio")
	ErrMaxOutRatio  = errors.New("amount out exceeds max out ratio")
	ErrUnknownToken = errors.New("token not in pool")
	ErrInvalidFee   = errors.New("swap fee must be below one")
	ErrBadRequest   = errors.New("malformed request")
)

var (
	one = decimal.NewFromInt(1)

	// Trades may not move more than 30% of a balance at once.
	maxInRatio  = decimal.RequireFromString("0.3")
	maxOutRatio = decimal.RequireFromString("0.3")
)

func toDecimal(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), 0)
}

// fraction reads an 18-decimal fixed-point value.
func fraction(v *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.ToBig(), -fixed.Decimals)
}

func floorInt(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s: %w", d.String(), fixed.ErrUnderflow)
	}
	return fixed.FromBig(d.Floor().BigInt())
}

func ceilInt(d decimal.Decimal) (*uint256.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %s: %w", d.String(), fixed.ErrUnderflow)
	}
	return fixed.FromBig(d.Ceil().BigInt())
}

func div(a, b decimal.Decimal) decimal.Decimal {
	return a.DivRound(b, precision)
}

func pow(base, exp decimal.Decimal) (decimal.Decimal, error) {
	if exp.Equal(one) {
		return base, nil
	}
	r, err := base.PowWithPrecision(exp, precision)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pow %s^%s: %w", base.String(), exp.String(), err)
	}
	return r, nil
}

// OutGivenIn is bOut * (1 - (bIn / (bIn + aIn))^(wIn/wOut)).
func OutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn decimal.Decimal) (decimal.Decimal, error) {
	if balanceIn.IsZero() || balanceOut.IsZero() {
		return decimal.Decimal{}, ErrZeroBalance
	}
	if amountIn.GreaterThan(balanceIn.Mul(maxInRatio)) {
		return decimal.Decimal{}, ErrMaxInRatio
	}
	base := div(balanceIn, balanceIn.Add(amountIn))
	power, err := pow(base, div(weightIn, weightOut))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return balanceOut.Mul(one.Sub(power)), nil
}

// InGivenOut is bIn * ((bOut / (bOut - aOut))^(wOut/wIn) - 1).
func InGivenOut(balanceIn, weightIn, balanceOut, weightOut, amountOut decimal.Decimal) (decimal.Decimal, error) {
	if balanceIn.IsZero() || balanceOut.IsZero() {
		return decimal.Decimal{}, ErrZeroBalance
	}
	if amountOut.GreaterThan(balanceOut.Mul(maxOutRatio)) {
		return decimal.Decimal{}, ErrMaxOutRatio
	}
	base := div(balanceOut, balanceOut.Sub(amountOut))
	power, err := pow(base, div(weightOut, weightIn))
	if err != nil {
		return decimal.Decimal{}, err
	}
	return balanceIn.Mul(power.Sub(one)), nil
}
