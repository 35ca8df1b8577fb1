package model

import "github.com/holiman/uint256"

// Pool limits shared by the codec and both engines.
const (
	MaxTokens = 50
	MinTokens = 2

	// MaxTokenDecimals bounds native token precision; the scaling factor
	// adjustment is 18 - decimals and must fit its 5-bit field.
	MaxTokenDecimals = 18
)

var (
	// MinWeight is 1% in 18-decimal fixed point.
	MinWeight = uint256.NewInt(10_000_000_000_000_000)

	// MinCircuitBreakerRatio is 0.1 and MaxCircuitBreakerRatio is 10.0.
	MinCircuitBreakerRatio = uint256.NewInt(100_000_000_000_000_000)
	MaxCircuitBreakerRatio = uint256.MustFromDecimal("10000000000000000000")
)
