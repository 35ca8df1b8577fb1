// Package schedule computes time-dependent token weights.
//
// A schedule is a window [Start, End] plus a start and end weight per token.
// Weights move linearly across the window and are constant outside it. All
// functions are pure; callers own persistence and the clock.
package schedule

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"poolGuard/internal/fixed"
	"poolGuard/internal/model"
)

var (
	ErrGradualUpdateTimeTravel   = errors.New("gradual update time travel")
	ErrMinWeight                 = errors.New("min weight violation")
	ErrNormalizedWeightInvariant = errors.New("normalized weight invariant")
	ErrTokenDecimals             = errors.New("token decimals above 18")
	ErrInputLengthMismatch       = errors.New("input length mismatch")
)

// Window is the interpolation interval in unix seconds.
type Window struct {
	Start uint64
	End   uint64
}

// Progress returns how far now is through w, in [0, 1] fixed point, rounded
// down. A zero-length window is complete from its instant onward.
func Progress(w Window, now uint64) *uint256.Int {
	if now >= w.End {
		return fixed.Clone(fixed.One)
	}
	if now <= w.Start {
		return new(uint256.Int)
	}
	elapsed := uint256.NewInt(now - w.Start)
	total := uint256.NewInt(w.End - w.Start)
	// elapsed < total < 2^64, so the product cannot overflow.
	p, _ := new(uint256.Int).MulDivOverflow(elapsed, fixed.One, total)
	return p
}

// Interpolate moves from start toward end by progress. The result is exact at
// both ends and always lies within [min(start,end), max(start,end)].
func Interpolate(start, end, progress *uint256.Int) *uint256.Int {
	if progress.IsZero() || start.Eq(end) {
		return fixed.Clone(start)
	}
	if !progress.Lt(fixed.One) {
		return fixed.Clone(end)
	}
	if start.Gt(end) {
		diff := new(uint256.Int).Sub(start, end)
		delta, _ := new(uint256.Int).MulDivOverflow(progress, diff, fixed.One)
		return delta.Sub(start, delta)
	}
	diff := new(uint256.Int).Sub(end, start)
	delta, _ := new(uint256.Int).MulDivOverflow(progress, diff, fixed.One)
	return delta.Add(start, delta)
}

// CurrentWeight is a token's effective weight at now.
func CurrentWeight(w Window, ws model.WeightState, now uint64) *uint256.Int {
	return Interpolate(ws.StartWeight, ws.EndWeight, Progress(w, now))
}

// CurrentWeights evaluates every token at the same instant.
func CurrentWeights(w Window, states []model.WeightState, now uint64) []*uint256.Int {
	progress := Progress(w, now)
	weights := make([]*uint256.Int, len(states))
	for i, ws := range states {
		weights[i] = Interpolate(ws.StartWeight, ws.EndWeight, progress)
	}
	return weights
}

// MaxWeightIndex returns the index of the heaviest token at now. Ties go to
// the first occurrence. It returns -1 for an empty token set.
func MaxWeightIndex(w Window, states []model.WeightState, now uint64) int {
	best := -1
	var bestWeight *uint256.Int
	for i, weight := range CurrentWeights(w, states, now) {
		if best < 0 || weight.Gt(bestWeight) {
			best, bestWeight = i, weight
		}
	}
	return best
}

// Change is a validated schedule ready to persist.
type Change struct {
	Window  Window
	Weights []model.WeightState
}

// Plan validates a requested weight change.
//
// The effective start is clamped to now so a change can never apply
// retroactively; currentWeights become the new start weights so the
// transition is continuous with whatever was in effect.
func Plan(now, requestedStart, requestedEnd uint64, currentWeights, endWeights []*uint256.Int, decimals []uint8) (Change, error) {
	if len(currentWeights) != len(endWeights) || len(endWeights) != len(decimals) {
		return Change{}, fmt.Errorf("%d current, %d end, %d decimals: %w",
			len(currentWeights), len(endWeights), len(decimals), ErrInputLengthMismatch)
	}

	start := requestedStart
	if now > start {
		start = now
	}
	if start > requestedEnd {
		return Change{}, fmt.Errorf("start %d after end %d: %w", start, requestedEnd, ErrGradualUpdateTimeTravel)
	}

	weights := make([]model.WeightState, len(endWeights))
	sum := new(uint256.Int)
	for i, end := range endWeights {
		if end == nil || currentWeights[i] == nil {
			return Change{}, fmt.Errorf("token %d weight unset: %w", i, ErrInputLengthMismatch)
		}
		if end.Lt(model.MinWeight) {
			return Change{}, fmt.Errorf("token %d end weight %s: %w", i, end.Dec(), ErrMinWeight)
		}
		adj, err := DecimalsAdjustment(decimals[i])
		if err != nil {
			return Change{}, fmt.Errorf("token %d: %w", i, err)
		}
		if _, overflow := sum.AddOverflow(sum, end); overflow {
			return Change{}, fmt.Errorf("end weight sum: %w", ErrNormalizedWeightInvariant)
		}
		weights[i] = model.WeightState{
			StartWeight:        fixed.Clone(currentWeights[i]),
			EndWeight:          fixed.Clone(end),
			DecimalsAdjustment: adj,
		}
	}
	if !sum.Eq(fixed.One) {
		return Change{}, fmt.Errorf("end weights sum to %s: %w", sum.Dec(), ErrNormalizedWeightInvariant)
	}

	return Change{Window: Window{Start: start, End: requestedEnd}, Weights: weights}, nil
}

// DecimalsAdjustment is the number of decimals a token is short of 18.
func DecimalsAdjustment(decimals uint8) (uint8, error) {
	if decimals > model.MaxTokenDecimals {
		return 0, fmt.Errorf("decimals %d: %w", decimals, ErrTokenDecimals)
	}
	return model.MaxTokenDecimals - decimals, nil
}

// ScalingFactor converts a stored decimals adjustment into the multiplier
// that lifts raw token amounts to 18-decimal fixed point, itself expressed
// in fixed point.
func ScalingFactor(adjustment uint8) *uint256.Int {
	return new(uint256.Int).Mul(fixed.One, fixed.Pow10(adjustment))
}
