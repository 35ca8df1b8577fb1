package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolGuard/internal/breaker"
	"poolGuard/internal/fixed"
	"poolGuard/internal/model"
)

// Swap prices a trade and checks both breakers against the projected
// balances. It fails with ErrSwapsDisabled before any pricing while trading
// is off. Balances are not moved; the caller settles the returned amounts.
func (c *Controller) Swap(ctx context.Context, req model.SwapRequest) (res model.SwapResult, err error) {
	defer c.observe("swap", time.Now(), &err)
	if c.pricer == nil {
		return model.SwapResult{}, fmt.Errorf("pricer: %w", ErrMissingDependency)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, supply, err := c.loadTrading(ctx)
	if err != nil {
		return model.SwapResult{}, err
	}
	if !snap.pool.SwapEnabled {
		return model.SwapResult{}, ErrSwapsDisabled
	}
	in, out := snap.indexOf(req.TokenIn), snap.indexOf(req.TokenOut)
	if in < 0 {
		return model.SwapResult{}, fmt.Errorf("token in %s: %w", req.TokenIn.Hex(), ErrInvalidToken)
	}
	if out < 0 || out == in {
		return model.SwapResult{}, fmt.Errorf("token out %s: %w", req.TokenOut.Hex(), ErrInvalidToken)
	}

	view := snap.view(supply)
	res, err = c.pricer.QuoteSwap(view, req)
	if err != nil {
		return model.SwapResult{}, fmt.Errorf("quote swap: %w", err)
	}

	if err := c.checkUpper(snap, in, view.Weights[in], supply, res.AmountIn); err != nil {
		return model.SwapResult{}, err
	}
	if err := c.checkLower(snap, out, view.Weights[out], supply, res.AmountOut); err != nil {
		return model.SwapResult{}, err
	}
	return res, nil
}

// Join prices a share issuance. Proportional joins cannot move relative
// prices and skip the breakers; any other join needs trading enabled and
// passes the upper bound of every token it adds.
func (c *Controller) Join(ctx context.Context, req model.JoinRequest) (res model.JoinResult, err error) {
	defer c.observe("join", time.Now(), &err)
	if c.pricer == nil {
		return model.JoinResult{}, fmt.Errorf("pricer: %w", ErrMissingDependency)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, supply, err := c.loadTrading(ctx)
	if err != nil {
		return model.JoinResult{}, err
	}
	proportional := req.Kind == model.ProportionalJoin
	if !proportional {
		if !snap.pool.SwapEnabled {
			return model.JoinResult{}, ErrSwapsDisabled
		}
		if len(req.AmountsIn) != len(snap.tokens) {
			return model.JoinResult{}, fmt.Errorf("%d tokens, %d amounts: %w", len(snap.tokens), len(req.AmountsIn), ErrInputLengthMismatch)
		}
	}

	view := snap.view(supply)
	res, err = c.pricer.QuoteJoin(view, req)
	if err != nil {
		return model.JoinResult{}, fmt.Errorf("quote join: %w", err)
	}
	if proportional {
		return res, nil
	}
	if len(res.AmountsIn) != len(snap.tokens) {
		return model.JoinResult{}, fmt.Errorf("quote returned %d amounts: %w", len(res.AmountsIn), ErrInputLengthMismatch)
	}

	newSupply, err := fixed.Add(supply, res.SharesOut)
	if err != nil {
		return model.JoinResult{}, fmt.Errorf("post-join supply: %w", err)
	}
	for i, amount := range res.AmountsIn {
		if amount == nil || amount.IsZero() {
			continue
		}
		if err := c.checkUpper(snap, i, view.Weights[i], newSupply, amount); err != nil {
			return model.JoinResult{}, err
		}
	}
	return res, nil
}

// Exit prices a share redemption. Proportional exits skip the breakers; a
// single-token exit needs trading enabled and passes the lower bound of the
// token it removes.
func (c *Controller) Exit(ctx context.Context, req model.ExitRequest) (res model.ExitResult, err error) {
	defer c.observe("exit", time.Now(), &err)
	if c.pricer == nil {
		return model.ExitResult{}, fmt.Errorf("pricer: %w", ErrMissingDependency)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, supply, err := c.loadTrading(ctx)
	if err != nil {
		return model.ExitResult{}, err
	}
	proportional := req.Kind == model.ProportionalExit
	if !proportional {
		if !snap.pool.SwapEnabled {
			return model.ExitResult{}, ErrSwapsDisabled
		}
		if snap.indexOf(req.TokenOut) < 0 {
			return model.ExitResult{}, fmt.Errorf("token out %s: %w", req.TokenOut.Hex(), ErrInvalidToken)
		}
	}

	view := snap.view(supply)
	res, err = c.pricer.QuoteExit(view, req)
	if err != nil {
		return model.ExitResult{}, fmt.Errorf("quote exit: %w", err)
	}
	if proportional {
		return res, nil
	}
	if len(res.AmountsOut) != len(snap.tokens) {
		return model.ExitResult{}, fmt.Errorf("quote returned %d amounts: %w", len(res.AmountsOut), ErrInputLengthMismatch)
	}

	newSupply, err := fixed.Sub(supply, res.SharesIn)
	if err != nil {
		return model.ExitResult{}, fmt.Errorf("post-exit supply: %w", err)
	}
	for i, amount := range res.AmountsOut {
		if amount == nil || amount.IsZero() {
			continue
		}
		if err := c.checkLower(snap, i, view.Weights[i], newSupply, amount); err != nil {
			return model.ExitResult{}, err
		}
	}
	return res, nil
}

func (c *Controller) loadTrading(ctx context.Context) (*snapshot, *uint256.Int, error) {
	now, err := c.now(ctx)
	if err != nil {
		return nil, nil, err
	}
	snap, err := c.load(ctx, now)
	if err != nil {
		return nil, nil, err
	}
	supply, err := c.registry.TotalSupply(ctx, c.poolID)
	if err != nil {
		return nil, nil, fmt.Errorf("load total supply: %w", err)
	}
	return snap, supply, nil
}

func (s *snapshot) view(supply *uint256.Int) model.PoolView {
	return model.PoolView{
		Tokens:         s.tokens,
		Balances:       s.balances,
		Weights:        s.currentWeights(),
		ScalingFactors: s.scalingFactors(),
		TotalSupply:    supply,
	}
}

// checkUpper validates token i's balance after amountIn is added.
func (c *Controller) checkUpper(snap *snapshot, i int, weight, supply, amountIn *uint256.Int) error {
	raw, err := fixed.Add(snap.balances[i], amountIn)
	if err != nil {
		return fmt.Errorf("projected balance of %s: %w", snap.tokens[i].Hex(), err)
	}
	projected, err := snap.scaledBalance(i, raw)
	if err != nil {
		return fmt.Errorf("scale balance of %s: %w", snap.tokens[i].Hex(), err)
	}
	if err := breaker.CheckUpperBound(snap.breakers[i], supply, weight, projected); err != nil {
		c.tripped(snap, i, "max", err)
		return fmt.Errorf("%s: %w", snap.tokens[i].Hex(), err)
	}
	return nil
}

// checkLower validates token i's balance after amountOut is removed.
func (c *Controller) checkLower(snap *snapshot, i int, weight, supply, amountOut *uint256.Int) error {
	raw, err := fixed.Sub(snap.balances[i], amountOut)
	if err != nil {
		return fmt.Errorf("projected balance of %s: %w", snap.tokens[i].Hex(), err)
	}
	projected, err := snap.scaledBalance(i, raw)
	if err != nil {
		return fmt.Errorf("scale balance of %s: %w", snap.tokens[i].Hex(), err)
	}
	if err := breaker.CheckLowerBound(snap.breakers[i], supply, weight, projected); err != nil {
		c.tripped(snap, i, "min", err)
		return fmt.Errorf("%s: %w", snap.tokens[i].Hex(), err)
	}
	return nil
}

func (c *Controller) tripped(snap *snapshot, i int, bound string, err error) {
	if !errors.Is(err, breaker.ErrCircuitBreakerTrippedMaxRatio) && !errors.Is(err, breaker.ErrCircuitBreakerTrippedMinRatio) {
		return
	}
	token := snap.tokens[i].Hex()
	c.metrics.BreakerTripped(c.poolID, token, bound)
	c.logger.Debug("circuit breaker tripped",
		zap.String("token", token),
		zap.String("bound", bound),
		zap.Error(err),
	)
}
