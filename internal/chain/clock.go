package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
)

// HeaderReader is the header surface of Client.
type HeaderReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// HeadClock reports the timestamp of the latest block, so schedules follow
// chain time rather than the local wall clock.
type HeadClock struct {
	headers HeaderReader
	policy  RetryPolicy
}

func NewHeadClock(headers HeaderReader, policy RetryPolicy) *HeadClock {
	return &HeadClock{headers: headers, policy: policy}
}

func (c *HeadClock) Now(ctx context.Context) (uint64, error) {
	var header *types.Header
	err := withRetry(ctx, c.policy, func(ctx context.Context) error {
		var err error
		header, err = c.headers.HeaderByNumber(ctx, nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("head header: %w", err)
	}
	if header == nil {
		return 0, fmt.Errorf("head header: empty response")
	}
	return header.Time, nil
}
