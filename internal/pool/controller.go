// Package pool orchestrates the weight schedule and circuit breakers of a
// single weighted pool.
//
// Every mutating call reads the packed state once, computes all new words in
// memory and persists them in a single Store.Commit. Events are emitted only
// after the commit succeeds, so a failed call leaves no trace.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolGuard/internal/codec"
	"poolGuard/internal/fixed"
	"poolGuard/internal/metrics"
	"poolGuard/internal/model"
	"poolGuard/internal/schedule"
	"poolGuard/internal/storage"
)

var (
	ErrSwapsDisabled     = errors.New("swaps disabled")
	ErrInvalidToken      = errors.New("invalid token")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMaxTokens         = errors.New("too many tokens")
	ErrMinTokens         = errors.New("too few tokens")
	ErrDuplicateToken    = errors.New("duplicate token")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrPoolExists        = errors.New("pool already exists")
	ErrTokenSetMismatch  = errors.New("registry token set does not match pool")
	ErrMissingDependency = errors.New("missing dependency")

	ErrInputLengthMismatch = schedule.ErrInputLengthMismatch
	ErrTokenDecimals       = schedule.ErrTokenDecimals
)

// Config wires a controller. Store, Registry and Clock are required.
type Config struct {
	PoolID   string
	Store    storage.Store
	Registry Registry
	Clock    Clock
	Auth     Authorizer
	Events   EventSink
	Pricer   Pricer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Controller owns the packed state of one pool.
type Controller struct {
	poolID   string
	store    storage.Store
	registry Registry
	clock    Clock
	auth     Authorizer
	events   EventSink
	pricer   Pricer
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// mu serializes calls so each one observes and commits a consistent state.
	mu sync.Mutex
}

func New(cfg Config) (*Controller, error) {
	if cfg.PoolID == "" {
		return nil, storage.ErrEmptyPoolID
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store: %w", ErrMissingDependency)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry: %w", ErrMissingDependency)
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("clock: %w", ErrMissingDependency)
	}
	if cfg.Auth == nil {
		cfg.Auth = AllowAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		poolID:   cfg.PoolID,
		store:    cfg.Store,
		registry: cfg.Registry,
		clock:    cfg.Clock,
		auth:     cfg.Auth,
		events:   cfg.Events,
		pricer:   cfg.Pricer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With(zap.String("pool", cfg.PoolID)),
	}, nil
}

// PoolID returns the store partition this controller manages.
func (c *Controller) PoolID() string {
	return c.poolID
}

// snapshot is the decoded state of the pool at one instant.
type snapshot struct {
	now      uint64
	pool     model.PoolState
	tokens   []common.Address
	balances []*uint256.Int
	weights  []model.WeightState
	breakers []model.BreakerState
}

func (s *snapshot) window() schedule.Window {
	return schedule.Window{Start: s.pool.StartTime, End: s.pool.EndTime}
}

func (s *snapshot) currentWeights() []*uint256.Int {
	return schedule.CurrentWeights(s.window(), s.weights, s.now)
}

func (s *snapshot) indexOf(token common.Address) int {
	for i, t := range s.tokens {
		if t == token {
			return i
		}
	}
	return -1
}

func (s *snapshot) scalingFactors() []*uint256.Int {
	factors := make([]*uint256.Int, len(s.weights))
	for i, ws := range s.weights {
		factors[i] = schedule.ScalingFactor(ws.DecimalsAdjustment)
	}
	return factors
}

// scaledBalance lifts a raw balance of token i to 18 decimals.
func (s *snapshot) scaledBalance(i int, raw *uint256.Int) (*uint256.Int, error) {
	return fixed.MulDown(raw, schedule.ScalingFactor(s.weights[i].DecimalsAdjustment))
}

// now samples the clock. Each call reads it exactly once.
func (c *Controller) now(ctx context.Context) (uint64, error) {
	now, err := c.clock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}
	return now, nil
}

func (c *Controller) loadPoolState(ctx context.Context) (model.PoolState, error) {
	word, err := c.store.Get(ctx, c.poolID, storage.PoolSlot())
	if err != nil {
		return model.PoolState{}, fmt.Errorf("load pool word: %w", err)
	}
	state := codec.DecodePoolState(word)
	if state.TokenCount == 0 {
		return model.PoolState{}, fmt.Errorf("%s: %w", c.poolID, ErrPoolNotFound)
	}
	return state, nil
}

// load reads the pool word and every token record at now.
func (c *Controller) load(ctx context.Context, now uint64) (*snapshot, error) {
	state, err := c.loadPoolState(ctx)
	if err != nil {
		return nil, err
	}
	tokens, balances, err := c.registry.PoolTokens(ctx, c.poolID)
	if err != nil {
		return nil, fmt.Errorf("load pool tokens: %w", err)
	}
	if len(tokens) != state.TokenCount || len(balances) != len(tokens) {
		return nil, fmt.Errorf("registry has %d tokens, %d balances, pool has %d: %w",
			len(tokens), len(balances), state.TokenCount, ErrTokenSetMismatch)
	}

	snap := &snapshot{
		now:      now,
		pool:     state,
		tokens:   tokens,
		balances: balances,
		weights:  make([]model.WeightState, len(tokens)),
		breakers: make([]model.BreakerState, len(tokens)),
	}
	for i, token := range tokens {
		word, err := c.store.Get(ctx, c.poolID, storage.WeightSlot(token))
		if err != nil {
			return nil, fmt.Errorf("load weights %s: %w", token.Hex(), err)
		}
		if word == (common.Hash{}) {
			return nil, fmt.Errorf("%s has no stored state: %w", token.Hex(), ErrInvalidToken)
		}
		if snap.weights[i], err = codec.DecodeWeights(word); err != nil {
			return nil, fmt.Errorf("decode weights %s: %w", token.Hex(), err)
		}

		word, err = c.store.Get(ctx, c.poolID, storage.BreakerSlot(token))
		if err != nil {
			return nil, fmt.Errorf("load breaker %s: %w", token.Hex(), err)
		}
		if snap.breakers[i], err = codec.DecodeBreaker(word); err != nil {
			return nil, fmt.Errorf("decode breaker %s: %w", token.Hex(), err)
		}
	}
	return snap, nil
}

func (c *Controller) authorize(ctx context.Context, caller common.Address, action Action) error {
	if err := c.auth.Authorize(ctx, caller, action); err != nil {
		c.logger.Debug("operation rejected",
			zap.String("op", string(action)),
			zap.String("caller", caller.Hex()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// commit persists writes, then emits records. A sink failure is logged and
// returned, but the state change stands.
func (c *Controller) commit(ctx context.Context, op string, writes []storage.Write, records ...model.EventRecord) error {
	if err := c.store.Commit(ctx, c.poolID, writes); err != nil {
		return fmt.Errorf("commit %s: %w", op, err)
	}
	c.logger.Info("state committed", zap.String("op", op), zap.Int("words", len(writes)))
	if c.events == nil || len(records) == 0 {
		return nil
	}
	if err := c.events.Emit(ctx, records...); err != nil {
		c.logger.Warn("emit events failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("emit %s events: %w", op, err)
	}
	return nil
}

func (c *Controller) event(name string, now uint64, data interface{}) model.EventRecord {
	return model.EventRecord{PoolID: c.poolID, EventName: name, Timestamp: now, Decoded: data}
}

func (c *Controller) observe(op string, started time.Time, err *error) {
	c.metrics.ObserveOp(op, started, *err)
	if *err != nil {
		c.logger.Debug("operation failed", zap.String("op", op), zap.Error(*err))
	}
}

func decStrings(values []*uint256.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Dec()
	}
	return out
}

func hexStrings(tokens []common.Address) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Hex()
	}
	return out
}
