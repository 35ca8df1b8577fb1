package model

import "github.com/holiman/uint256"

// WeightState is the schedule half of a token's record. It is rewritten
// whenever a weight change is scheduled.
type WeightState struct {
	StartWeight        *uint256.Int
	EndWeight          *uint256.Int
	DecimalsAdjustment uint8
}

// BreakerState is the circuit breaker half of a token's record. A zero
// ratio disables the check in that direction.
type BreakerState struct {
	ReferencePrice *uint256.Int
	MinRatio       *uint256.Int
	MaxRatio       *uint256.Int
}

// Enabled reports whether either direction of the breaker is armed.
func (b BreakerState) Enabled() bool {
	return (b.MinRatio != nil && !b.MinRatio.IsZero()) || (b.MaxRatio != nil && !b.MaxRatio.IsZero())
}

// TokenState combines both independently maintained halves.
type TokenState struct {
	Weights WeightState
	Breaker BreakerState
}

// ZeroBreaker returns a disarmed breaker.
func ZeroBreaker() BreakerState {
	return BreakerState{
		ReferencePrice: new(uint256.Int),
		MinRatio:       new(uint256.Int),
		MaxRatio:       new(uint256.Int),
	}
}
