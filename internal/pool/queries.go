package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"poolGuard/internal/breaker"
	"poolGuard/internal/fixed"
	"poolGuard/internal/schedule"
)

// ScheduleParams is the stored interpolation window and its targets.
type ScheduleParams struct {
	StartTime  uint64
	EndTime    uint64
	Tokens     []common.Address
	EndWeights []*uint256.Int
}

// BreakerInfo is a token's stored breaker plus the price band it enforces.
// MinPrice and MaxPrice are nil when the matching direction is disabled.
type BreakerInfo struct {
	Token          common.Address
	ReferencePrice *uint256.Int
	MinRatio       *uint256.Int
	MaxRatio       *uint256.Int
	MinPrice       *uint256.Int
	MaxPrice       *uint256.Int
	CurrentPrice   *uint256.Int
}

// Status is a full read of the pool at one instant.
type Status struct {
	Now            uint64
	SwapEnabled    bool
	Schedule       ScheduleParams
	CurrentWeights []*uint256.Int
	ScalingFactors []*uint256.Int
	Balances       []*uint256.Int
	TotalSupply    *uint256.Int
	MaxWeightIndex int
	Breakers       []BreakerInfo
}

// SwapEnabled reports the trading flag.
func (c *Controller) SwapEnabled(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	state, err := c.loadPoolState(ctx)
	if err != nil {
		return false, err
	}
	return state.SwapEnabled, nil
}

// ScheduleParams returns the stored window and end weights.
func (c *Controller) ScheduleParams(ctx context.Context) (ScheduleParams, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load(ctx, 0)
	if err != nil {
		return ScheduleParams{}, err
	}
	return snap.scheduleParams(), nil
}

// CurrentWeights returns every token's interpolated weight right now.
func (c *Controller) CurrentWeights(ctx context.Context) ([]*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.now(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := c.load(ctx, now)
	if err != nil {
		return nil, err
	}
	return snap.currentWeights(), nil
}

// ScalingFactors returns the fixed-point multiplier lifting each token to 18
// decimals.
func (c *Controller) ScalingFactors(ctx context.Context) ([]*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, err := c.load(ctx, 0)
	if err != nil {
		return nil, err
	}
	return snap.scalingFactors(), nil
}

// MaxWeightIndex returns the index of the heaviest token right now.
func (c *Controller) MaxWeightIndex(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.now(ctx)
	if err != nil {
		return 0, err
	}
	snap, err := c.load(ctx, now)
	if err != nil {
		return 0, err
	}
	return schedule.MaxWeightIndex(snap.window(), snap.weights, now), nil
}

// BreakerState returns the stored breaker of token and its live price band.
func (c *Controller) BreakerState(ctx context.Context, token common.Address) (BreakerInfo, error) {
	status, err := c.Status(ctx)
	if err != nil {
		return BreakerInfo{}, err
	}
	for _, info := range status.Breakers {
		if info.Token == token {
			return info, nil
		}
	}
	return BreakerInfo{}, fmt.Errorf("%s: %w", token.Hex(), ErrInvalidToken)
}

// Status reads everything at a single clock sample.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.now(ctx)
	if err != nil {
		return Status{}, err
	}
	snap, err := c.load(ctx, now)
	if err != nil {
		return Status{}, err
	}
	supply, err := c.registry.TotalSupply(ctx, c.poolID)
	if err != nil {
		return Status{}, fmt.Errorf("load total supply: %w", err)
	}

	weights := snap.currentWeights()
	st := Status{
		Now:            now,
		SwapEnabled:    snap.pool.SwapEnabled,
		Schedule:       snap.scheduleParams(),
		CurrentWeights: weights,
		ScalingFactors: snap.scalingFactors(),
		Balances:       snap.balances,
		TotalSupply:    supply,
		MaxWeightIndex: schedule.MaxWeightIndex(snap.window(), snap.weights, now),
		Breakers:       make([]BreakerInfo, len(snap.tokens)),
	}
	for i, token := range snap.tokens {
		b := snap.breakers[i]
		info := BreakerInfo{
			Token:          token,
			ReferencePrice: b.ReferencePrice,
			MinRatio:       b.MinRatio,
			MaxRatio:       b.MaxRatio,
		}
		if !b.MaxRatio.IsZero() {
			if info.MinPrice, err = fixed.DivUp(b.ReferencePrice, b.MaxRatio); err != nil {
				return Status{}, fmt.Errorf("price floor of %s: %w", token.Hex(), err)
			}
		}
		if !b.MinRatio.IsZero() {
			if info.MaxPrice, err = fixed.DivDown(b.ReferencePrice, b.MinRatio); err != nil {
				return Status{}, fmt.Errorf("price ceiling of %s: %w", token.Hex(), err)
			}
		}
		balance, err := snap.scaledBalance(i, snap.balances[i])
		if err != nil {
			return Status{}, fmt.Errorf("scale balance of %s: %w", token.Hex(), err)
		}
		// an empty balance has no price
		if !balance.IsZero() {
			if info.CurrentPrice, err = breaker.ImpliedPrice(supply, balance, weights[i]); err != nil {
				return Status{}, fmt.Errorf("current price of %s: %w", token.Hex(), err)
			}
		}
		st.Breakers[i] = info
	}
	return st, nil
}

// PublishMetrics refreshes the weight and trading gauges.
func (c *Controller) PublishMetrics(ctx context.Context) error {
	if c.metrics == nil {
		return nil
	}
	st, err := c.Status(ctx)
	if err != nil {
		return err
	}
	c.metrics.SetSwapEnabled(c.poolID, st.SwapEnabled)
	for i, token := range st.Schedule.Tokens {
		c.metrics.SetWeight(c.poolID, token.Hex(), WeightFraction(st.CurrentWeights[i]))
	}
	return nil
}

// WeightFraction converts a normalized weight to a float in [0, 1].
func WeightFraction(w *uint256.Int) float64 {
	return float64(w.Uint64()) / float64(fixed.One.Uint64())
}

func (s *snapshot) scheduleParams() ScheduleParams {
	ends := make([]*uint256.Int, len(s.weights))
	for i, ws := range s.weights {
		ends[i] = ws.EndWeight
	}
	return ScheduleParams{
		StartTime:  s.pool.StartTime,
		EndTime:    s.pool.EndTime,
		Tokens:     s.tokens,
		EndWeights: ends,
	}
}
