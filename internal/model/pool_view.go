package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolView is the read-only snapshot handed to a pricer. Balances are raw
// token units; multiply by ScalingFactors (fixed point) to reach 18 decimals.
type PoolView struct {
	Tokens         []common.Address
	Balances       []*uint256.Int
	Weights        []*uint256.Int
	ScalingFactors []*uint256.Int
	TotalSupply    *uint256.Int
}

// IndexOf returns the position of token, or -1.
func (v PoolView) IndexOf(token common.Address) int {
	for i, t := range v.Tokens {
		if t == token {
			return i
		}
	}
	return -1
}
