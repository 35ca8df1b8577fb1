package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SwapKind selects which side of a swap the caller fixes.
type SwapKind uint8

const (
	GivenIn SwapKind = iota
	GivenOut
)

func (k SwapKind) String() string {
	switch k {
	case GivenIn:
		return "given_in"
	case GivenOut:
		return "given_out"
	default:
		return "unknown"
	}
}

// SwapRequest asks the pool to trade TokenIn for TokenOut. Amount is the
// exact in amount for GivenIn and the exact out amount for GivenOut.
type SwapRequest struct {
	Kind     SwapKind
	TokenIn  common.Address
	TokenOut common.Address
	Amount   *uint256.Int
}

// SwapResult is a priced and breaker-checked swap. Balances are not
// committed by the pool.
type SwapResult struct {
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// JoinKind selects how pool shares are issued.
type JoinKind uint8

const (
	// ProportionalJoin issues an exact amount of shares for amounts in
	// proportion to current balances.
	ProportionalJoin JoinKind = iota
	// ExactTokensInJoin deposits arbitrary amounts and receives the shares
	// they are worth.
	ExactTokensInJoin
)

// JoinRequest describes a share issuance. SharesOut is used by
// ProportionalJoin, AmountsIn (in registry token order) by ExactTokensInJoin.
type JoinRequest struct {
	Kind      JoinKind
	SharesOut *uint256.Int
	AmountsIn []*uint256.Int
}

// JoinResult carries the priced join.
type JoinResult struct {
	AmountsIn []*uint256.Int
	SharesOut *uint256.Int
}

// ExitKind selects how pool shares are redeemed.
type ExitKind uint8

const (
	// ProportionalExit burns an exact amount of shares for a pro-rata share
	// of every balance.
	ProportionalExit ExitKind = iota
	// ExactSharesInForTokenOut burns an exact amount of shares for a single
	// token.
	ExactSharesInForTokenOut
)

// ExitRequest describes a share redemption.
type ExitRequest struct {
	Kind     ExitKind
	SharesIn *uint256.Int
	TokenOut common.Address
}

// ExitResult carries the priced exit.
type ExitResult struct {
	AmountsOut []*uint256.Int
	SharesIn   *uint256.Int
}
