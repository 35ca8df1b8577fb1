package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"poolGuard/internal/model"
)

// Registry owns the token list, live balances and share supply. Tokens and
// balances are returned in the same fixed order on every call.
type Registry interface {
	PoolTokens(ctx context.Context, poolID string) ([]common.Address, []*uint256.Int, error)
	TotalSupply(ctx context.Context, poolID string) (*uint256.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

// Clock returns the current unix time in seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// Action names a mutating operation for authorization.
type Action string

const (
	ActionCreate          Action = "create"
	ActionSetSwapEnabled  Action = "set-swap-enabled"
	ActionScheduleWeights Action = "schedule-weights"
	ActionSetBreakers     Action = "set-breakers"
)

// Authorizer decides whether caller may perform action.
type Authorizer interface {
	Authorize(ctx context.Context, caller common.Address, action Action) error
}

// EventSink receives events after their state change is committed.
type EventSink interface {
	Emit(ctx context.Context, records ...model.EventRecord) error
}

// Pricer is the pricing formula. It never sees breaker state and the
// controller never does price math beyond the breaker checks.
type Pricer interface {
	QuoteSwap(view model.PoolView, req model.SwapRequest) (model.SwapResult, error)
	QuoteJoin(view model.PoolView, req model.JoinRequest) (model.JoinResult, error)
	QuoteExit(view model.PoolView, req model.ExitRequest) (model.ExitResult, error)
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now(context.Context) (uint64, error) {
	return uint64(time.Now().Unix()), nil
}

// FixedClock returns a settable instant.
type FixedClock struct {
	mu  sync.Mutex
	now uint64
}

func NewFixedClock(now uint64) *FixedClock {
	return &FixedClock{now: now}
}

func (c *FixedClock) Now(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, nil
}

func (c *FixedClock) Set(now uint64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *FixedClock) Advance(d uint64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// NonDecreasing wraps a clock so it never reports an earlier time than it
// already has.
func NonDecreasing(inner Clock) Clock {
	return &monotonicClock{inner: inner}
}

type monotonicClock struct {
	inner Clock
	mu    sync.Mutex
	last  uint64
}

func (c *monotonicClock) Now(ctx context.Context) (uint64, error) {
	now, err := c.inner.Now(ctx)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if now < c.last {
		now = c.last
	}
	c.last = now
	return now, nil
}

// AllowAll authorizes every caller.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, common.Address, Action) error {
	return nil
}

// OwnerOnly authorizes a single address for every action.
type OwnerOnly struct {
	Owner common.Address
}

func (o OwnerOnly) Authorize(_ context.Context, caller common.Address, action Action) error {
	if caller != o.Owner {
		return fmt.Errorf("%s by %s: %w", action, caller.Hex(), ErrUnauthorized)
	}
	return nil
}

// AllowList authorizes any of a fixed set of addresses.
type AllowList map[common.Address]struct{}

func NewAllowList(addrs ...common.Address) AllowList {
	list := make(AllowList, len(addrs))
	for _, a := range addrs {
		list[a] = struct{}{}
	}
	return list
}

func (l AllowList) Authorize(_ context.Context, caller common.Address, action Action) error {
	if _, ok := l[caller]; !ok {
		return fmt.Errorf("%s by %s: %w", action, caller.Hex(), ErrUnauthorized)
	}
	return nil
}
