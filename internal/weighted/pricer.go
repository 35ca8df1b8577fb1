package weighted

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"poolGuard/internal/fixed"
	"poolGuard/internal/model"
)

// Pricer quotes operations against a model.PoolView. It holds no pool state.
type Pricer struct {
	swapFee decimal.Decimal
}

// NewPricer takes the swap fee as an 18-decimal fraction.
func NewPricer(swapFee *uint256.Int) (*Pricer, error) {
	if !swapFee.Lt(fixed.One) {
		return nil, fmt.Errorf("fee %s: %w", swapFee.Dec(), ErrInvalidFee)
	}
	return &Pricer{swapFee: fraction(swapFee)}, nil
}

func (p *Pricer) QuoteSwap(view model.PoolView, req model.SwapRequest) (model.SwapResult, error) {
	in, out := view.IndexOf(req.TokenIn), view.IndexOf(req.TokenOut)
	if in < 0 || out < 0 || in == out {
		return model.SwapResult{}, fmt.Errorf("%s -> %s: %w", req.TokenIn.Hex(), req.TokenOut.Hex(), ErrUnknownToken)
	}
	if req.Amount == nil || req.Amount.IsZero() {
		return model.SwapResult{}, fmt.Errorf("zero swap amount: %w", ErrBadRequest)
	}
	balanceIn, balanceOut := toDecimal(view.Balances[in]), toDecimal(view.Balances[out])
	weightIn, weightOut := fraction(view.Weights[in]), fraction(view.Weights[out])
	amount := toDecimal(req.Amount)
	keep := one.Sub(p.swapFee)

	switch req.Kind {
	case model.GivenIn:
		// the fee is taken from the amount in before pricing
		outAmount, err := OutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amount.Mul(keep))
		if err != nil {
			return model.SwapResult{}, err
		}
		amountOut, err := floorInt(outAmount)
		if err != nil {
			return model.SwapResult{}, err
		}
		return model.SwapResult{AmountIn: fixed.Clone(req.Amount), AmountOut: amountOut}, nil
	case model.GivenOut:
		inAmount, err := InGivenOut(balanceIn, weightIn, balanceOut, weightOut, amount)
		if err != nil {
			return model.SwapResult{}, err
		}
		amountIn, err := ceilInt(div(inAmount, keep))
		if err != nil {
			return model.SwapResult{}, err
		}
		return model.SwapResult{AmountIn: amountIn, AmountOut: fixed.Clone(req.Amount)}, nil
	default:
		return model.SwapResult{}, fmt.Errorf("swap kind %d: %w", req.Kind, ErrBadRequest)
	}
}

func (p *Pricer) QuoteJoin(view model.PoolView, req model.JoinRequest) (model.JoinResult, error) {
	supply := toDecimal(view.TotalSupply)
	if supply.IsZero() {
		return model.JoinResult{}, fmt.Errorf("total supply: %w", ErrZeroBalance)
	}

	switch req.Kind {
	case model.ProportionalJoin:
		if req.SharesOut == nil || req.SharesOut.IsZero() {
			return model.JoinResult{}, fmt.Errorf("zero shares out: %w", ErrBadRequest)
		}
		ratio := div(toDecimal(req.SharesOut), supply)
		amounts := make([]*uint256.Int, len(view.Balances))
		for i, b := range view.Balances {
			amount, err := ceilInt(toDecimal(b).Mul(ratio))
			if err != nil {
				return model.JoinResult{}, err
			}
			amounts[i] = amount
		}
		return model.JoinResult{AmountsIn: amounts, SharesOut: fixed.Clone(req.SharesOut)}, nil
	case model.ExactTokensInJoin:
		if len(req.AmountsIn) != len(view.Balances) {
			return model.JoinResult{}, fmt.Errorf("%d amounts for %d tokens: %w", len(req.AmountsIn), len(view.Balances), ErrBadRequest)
		}
		shares, err := p.sharesOutGivenExactTokensIn(view, req.AmountsIn, supply)
		if err != nil {
			return model.JoinResult{}, err
		}
		sharesOut, err := floorInt(shares)
		if err != nil {
			return model.JoinResult{}, err
		}
		amounts := make([]*uint256.Int, len(req.AmountsIn))
		for i, a := range req.AmountsIn {
			amounts[i] = fixed.Clone(a)
		}
		return model.JoinResult{AmountsIn: amounts, SharesOut: sharesOut}, nil
	default:
		return model.JoinResult{}, fmt.Errorf("join kind %d: %w", req.Kind, ErrBadRequest)
	}
}

// sharesOutGivenExactTokensIn charges the swap fee only on the part of each
// deposit that exceeds a proportional join.
func (p *Pricer) sharesOutGivenExactTokensIn(view model.PoolView, amountsIn []*uint256.Int, supply decimal.Decimal) (decimal.Decimal, error) {
	ratios := make([]decimal.Decimal, len(view.Balances))
	withFees := decimal.Zero
	for i, b := range view.Balances {
		balance := toDecimal(b)
		if balance.IsZero() {
			return decimal.Decimal{}, fmt.Errorf("token %d: %w", i, ErrZeroBalance)
		}
		ratios[i] = div(balance.Add(toDecimal(amountsIn[i])), balance)
		withFees = withFees.Add(ratios[i].Mul(fraction(view.Weights[i])))
	}

	invariantRatio := one
	for i, b := range view.Balances {
		balance := toDecimal(b)
		amount := toDecimal(amountsIn[i])
		if ratios[i].GreaterThan(withFees) {
			nonTaxable := balance.Mul(withFees.Sub(one))
			taxable := amount.Sub(nonTaxable)
			amount = nonTaxable.Add(taxable.Mul(one.Sub(p.swapFee)))
		}
		factor, err := pow(div(balance.Add(amount), balance), fraction(view.Weights[i]))
		if err != nil {
			return decimal.Decimal{}, err
		}
		invariantRatio = invariantRatio.Mul(factor)
	}
	if invariantRatio.LessThanOrEqual(one) {
		return decimal.Zero, nil
	}
	return supply.Mul(invariantRatio.Sub(one)), nil
}

func (p *Pricer) QuoteExit(view model.PoolView, req model.ExitRequest) (model.ExitResult, error) {
	supply := toDecimal(view.TotalSupply)
	if supply.IsZero() {
		return model.ExitResult{}, fmt.Errorf("total supply: %w", ErrZeroBalance)
	}
	if req.SharesIn == nil || req.SharesIn.IsZero() || !req.SharesIn.Lt(view.TotalSupply) {
		return model.ExitResult{}, fmt.Errorf("shares in must be positive and below supply: %w", ErrBadRequest)
	}
	sharesIn := toDecimal(req.SharesIn)
	amounts := make([]*uint256.Int, len(view.Balances))

	switch req.Kind {
	case model.ProportionalExit:
		ratio := div(sharesIn, supply)
		for i, b := range view.Balances {
			amount, err := floorInt(toDecimal(b).Mul(ratio))
			if err != nil {
				return model.ExitResult{}, err
			}
			amounts[i] = amount
		}
	case model.ExactSharesInForTokenOut:
		idx := view.IndexOf(req.TokenOut)
		if idx < 0 {
			return model.ExitResult{}, fmt.Errorf("%s: %w", req.TokenOut.Hex(), ErrUnknownToken)
		}
		for i := range amounts {
			amounts[i] = new(uint256.Int)
		}
		out, err := p.tokenOutGivenExactSharesIn(toDecimal(view.Balances[idx]), fraction(view.Weights[idx]), sharesIn, supply)
		if err != nil {
			return model.ExitResult{}, err
		}
		if amounts[idx], err = floorInt(out); err != nil {
			return model.ExitResult{}, err
		}
	default:
		return model.ExitResult{}, fmt.Errorf("exit kind %d: %w", req.Kind, ErrBadRequest)
	}
	return model.ExitResult{AmountsOut: amounts, SharesIn: fixed.Clone(req.SharesIn)}, nil
}

// tokenOutGivenExactSharesIn is b * (1 - (1 - s/S)^(1/w)), with the fee
// charged on the share of the withdrawal a proportional exit would not cover.
func (p *Pricer) tokenOutGivenExactSharesIn(balance, weight, sharesIn, supply decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsZero() {
		return decimal.Decimal{}, ErrZeroBalance
	}
	base := div(supply.Sub(sharesIn), supply)
	power, err := pow(base, div(one, weight))
	if err != nil {
		return decimal.Decimal{}, err
	}
	withoutFee := balance.Mul(one.Sub(power))
	if withoutFee.GreaterThan(balance.Mul(maxOutRatio)) {
		return decimal.Decimal{}, ErrMaxOutRatio
	}
	taxable := withoutFee.Mul(one.Sub(weight))
	nonTaxable := withoutFee.Sub(taxable)
	return nonTaxable.Add(taxable.Mul(one.Sub(p.swapFee))), nil
}
