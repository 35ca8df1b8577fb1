// Package breaker bounds the pool-share price implied by a single token's
// balance. A token's price is supply / (balance / weight); raising the
// balance lowers it. The checks are pure and round toward tripping.
package breaker

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"poolGuard/internal/fixed"
	"poolGuard/internal/model"
)

var (
	ErrMinCircuitBreakerRatio        = errors.New("min circuit breaker ratio out of range")
	ErrMaxCircuitBreakerRatio        = errors.New("max circuit breaker ratio out of range")
	ErrInvalidCircuitBreakerRatios   = errors.New("max circuit breaker ratio below min")
	ErrCircuitBreakerTrippedMaxRatio = errors.New("circuit breaker tripped: max ratio")
	ErrCircuitBreakerTrippedMinRatio = errors.New("circuit breaker tripped: min ratio")
)

// ValidateRatios checks a ratio pair. Zero disables a direction; any other
// value must lie in [MinCircuitBreakerRatio, MaxCircuitBreakerRatio].
func ValidateRatios(minRatio, maxRatio *uint256.Int) error {
	if !minRatio.IsZero() && !inRange(minRatio) {
		return fmt.Errorf("min ratio %s: %w", minRatio.Dec(), ErrMinCircuitBreakerRatio)
	}
	if !maxRatio.IsZero() && !inRange(maxRatio) {
		return fmt.Errorf("max ratio %s: %w", maxRatio.Dec(), ErrMaxCircuitBreakerRatio)
	}
	if !minRatio.IsZero() && !maxRatio.IsZero() && maxRatio.Lt(minRatio) {
		return fmt.Errorf("max %s < min %s: %w", maxRatio.Dec(), minRatio.Dec(), ErrInvalidCircuitBreakerRatios)
	}
	return nil
}

// New validates the ratios and returns the breaker record to persist.
func New(referencePrice, minRatio, maxRatio *uint256.Int) (model.BreakerState, error) {
	if err := ValidateRatios(minRatio, maxRatio); err != nil {
		return model.BreakerState{}, err
	}
	return model.BreakerState{
		ReferencePrice: fixed.Clone(referencePrice),
		MinRatio:       fixed.Clone(minRatio),
		MaxRatio:       fixed.Clone(maxRatio),
	}, nil
}

// ImpliedPrice is the live price used as a breaker's reference snapshot.
func ImpliedPrice(supply, balance, weight *uint256.Int) (*uint256.Int, error) {
	scaled, err := fixed.MulUp(supply, weight)
	if err != nil {
		return nil, fmt.Errorf("implied price: %w", err)
	}
	price, err := fixed.DivDown(scaled, balance)
	if err != nil {
		return nil, fmt.Errorf("implied price: %w", err)
	}
	return price, nil
}

// CheckUpperBound rejects a projected balance whose implied price would fall
// below referencePrice / maxRatio. It is a no-op when maxRatio is zero.
func CheckUpperBound(b model.BreakerState, supply, weight, projectedBalance *uint256.Int) error {
	if b.MaxRatio == nil || b.MaxRatio.IsZero() {
		return nil
	}
	floor, err := fixed.DivUp(b.ReferencePrice, b.MaxRatio)
	if err != nil {
		return fmt.Errorf("upper bound: %w", err)
	}
	if projectedBalance.IsZero() {
		// price is unbounded
		return nil
	}
	units, err := fixed.DivUp(projectedBalance, weight)
	if err != nil {
		return fmt.Errorf("upper bound: %w", err)
	}
	price, err := fixed.DivDown(supply, units)
	if err != nil {
		return fmt.Errorf("upper bound: %w", err)
	}
	if price.Lt(floor) {
		return fmt.Errorf("price %s below %s: %w", price.Dec(), floor.Dec(), ErrCircuitBreakerTrippedMaxRatio)
	}
	return nil
}

// CheckLowerBound rejects a projected balance whose implied price would rise
// above referencePrice / minRatio. It is a no-op when minRatio is zero.
func CheckLowerBound(b model.BreakerState, supply, weight, projectedBalance *uint256.Int) error {
	if b.MinRatio == nil || b.MinRatio.IsZero() {
		return nil
	}
	ceiling, err := fixed.DivDown(b.ReferencePrice, b.MinRatio)
	if err != nil {
		return fmt.Errorf("lower bound: %w", err)
	}
	units, err := fixed.DivDown(projectedBalance, weight)
	if err != nil {
		return fmt.Errorf("lower bound: %w", err)
	}
	if units.IsZero() {
		return fmt.Errorf("balance %s drained: %w", projectedBalance.Dec(), ErrCircuitBreakerTrippedMinRatio)
	}
	price, err := fixed.DivUp(supply, units)
	if err != nil {
		return fmt.Errorf("lower bound: %w", err)
	}
	if price.Gt(ceiling) {
		return fmt.Errorf("price %s above %s: %w", price.Dec(), ceiling.Dec(), ErrCircuitBreakerTrippedMinRatio)
	}
	return nil
}

func inRange(ratio *uint256.Int) bool {
	return !ratio.Lt(model.MinCircuitBreakerRatio) && !ratio.Gt(model.MaxCircuitBreakerRatio)
}
