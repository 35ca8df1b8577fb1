package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"poolGuard/internal/breaker"
	"poolGuard/internal/codec"
	"poolGuard/internal/model"
	"poolGuard/internal/schedule"
	"poolGuard/internal/storage"
)

// Create registers the registry's token set with the given weights. The
// initial schedule is degenerate: start and end weights are equal and the
// window is the creation instant.
func (c *Controller) Create(ctx context.Context, caller common.Address, weights []*uint256.Int, swapEnabledOnStart bool) (err error) {
	defer c.observe("create", time.Now(), &err)
	if err = c.authorize(ctx, caller, ActionCreate); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.now(ctx)
	if err != nil {
		return err
	}
	existing, err := c.store.Get(ctx, c.poolID, storage.PoolSlot())
	if err != nil {
		return fmt.Errorf("load pool word: %w", err)
	}
	if existing != (common.Hash{}) {
		return fmt.Errorf("%s: %w", c.poolID, ErrPoolExists)
	}

	tokens, _, err := c.registry.PoolTokens(ctx, c.poolID)
	if err != nil {
		return fmt.Errorf("load pool tokens: %w", err)
	}
	if len(tokens) < model.MinTokens {
		return fmt.Errorf("%d tokens: %w", len(tokens), ErrMinTokens)
	}
	if len(tokens) > model.MaxTokens {
		return fmt.Errorf("%d tokens: %w", len(tokens), ErrMaxTokens)
	}
	if len(weights) != len(tokens) {
		return fmt.Errorf("%d tokens, %d weights: %w", len(tokens), len(weights), ErrInputLengthMismatch)
	}

	seen := make(map[common.Address]struct{}, len(tokens))
	decimals := make([]uint8, len(tokens))
	for i, token := range tokens {
		if token == (common.Address{}) {
			return fmt.Errorf("token %d is the zero address: %w", i, ErrInvalidToken)
		}
		if _, ok := seen[token]; ok {
			return fmt.Errorf("%s: %w", token.Hex(), ErrDuplicateToken)
		}
		seen[token] = struct{}{}
		if decimals[i], err = c.registry.TokenDecimals(ctx, token); err != nil {
			return fmt.Errorf("decimals of %s: %w", token.Hex(), err)
		}
	}

	change, err := schedule.Plan(now, now, now, weights, weights, decimals)
	if err != nil {
		return err
	}
	state := model.PoolState{
		SwapEnabled: swapEnabledOnStart,
		TokenCount:  len(tokens),
		StartTime:   change.Window.Start,
		EndTime:     change.Window.End,
	}
	writes, err := scheduleWrites(state, tokens, change.Weights)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		writes = append(writes, storage.Write{Slot: storage.BreakerSlot(token)})
	}

	tokenHex := hexStrings(tokens)
	weightDec := decStrings(weights)
	err = c.commit(ctx, "create", writes,
		c.event(model.EventPoolCreated, now, model.PoolCreatedData{
			Tokens:      tokenHex,
			Weights:     weightDec,
			SwapEnabled: swapEnabledOnStart,
		}),
		c.event(model.EventGradualWeightUpdate, now, model.GradualWeightUpdateData{
			StartTime:    state.StartTime,
			EndTime:      state.EndTime,
			Tokens:       tokenHex,
			StartWeights: weightDec,
			EndWeights:   weightDec,
		}),
		c.event(model.EventSwapEnabledSet, now, model.SwapEnabledSetData{Enabled: swapEnabledOnStart}),
	)
	if err == nil {
		c.metrics.SetSwapEnabled(c.poolID, swapEnabledOnStart)
	}
	return err
}

// SetSwapEnabled sets or clears the trading flag. Setting the current value
// again succeeds and emits the event again.
func (c *Controller) SetSwapEnabled(ctx context.Context, caller common.Address, enabled bool) (err error) {
	defer c.observe("set_swap_enabled", time.Now(), &err)
	if err = c.authorize(ctx, caller, ActionSetSwapEnabled); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.now(ctx)
	if err != nil {
		return err
	}
	state, err := c.loadPoolState(ctx)
	if err != nil {
		return err
	}
	state.SwapEnabled = enabled
	word, err := codec.EncodePoolState(state)
	if err != nil {
		return err
	}

	err = c.commit(ctx, "set_swap_enabled",
		[]storage.Write{{Slot: storage.PoolSlot(), Word: word}},
		c.event(model.EventSwapEnabledSet, now, model.SwapEnabledSetData{Enabled: enabled}),
	)
	if err == nil {
		c.metrics.SetSwapEnabled(c.poolID, enabled)
	}
	return err
}

// ScheduleWeightChange starts a new linear transition toward endWeights. The
// weights in effect right now become the new start weights, and a start time
// in the past is moved up to now.
func (c *Controller) ScheduleWeightChange(ctx context.Context, caller common.Address, startTime, endTime uint64, endWeights []*uint256.Int) (err error) {
	defer c.observe("schedule_weights", time.Now(), &err)
	if err = c.authorize(ctx, caller, ActionScheduleWeights); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.now(ctx)
	if err != nil {
		return err
	}
	snap, err := c.load(ctx, now)
	if err != nil {
		return err
	}

	decimals := make([]uint8, len(snap.weights))
	for i, ws := range snap.weights {
		decimals[i] = model.MaxTokenDecimals - ws.DecimalsAdjustment
	}
	change, err := schedule.Plan(now, startTime, endTime, snap.currentWeights(), endWeights, decimals)
	if err != nil {
		return err
	}

	state := snap.pool
	state.StartTime = change.Window.Start
	state.EndTime = change.Window.End
	writes, err := scheduleWrites(state, snap.tokens, change.Weights)
	if err != nil {
		return err
	}

	starts := make([]*uint256.Int, len(change.Weights))
	for i, ws := range change.Weights {
		starts[i] = ws.StartWeight
	}
	err = c.commit(ctx, "schedule_weights", writes,
		c.event(model.EventGradualWeightUpdate, now, model.GradualWeightUpdateData{
			StartTime:    state.StartTime,
			EndTime:      state.EndTime,
			Tokens:       hexStrings(snap.tokens),
			StartWeights: decStrings(starts),
			EndWeights:   decStrings(endWeights),
		}),
	)
	if err == nil {
		c.logger.Info("weight change scheduled",
			zap.Uint64("start", state.StartTime),
			zap.Uint64("end", state.EndTime),
			zap.Strings("end_weights", decStrings(endWeights)),
		)
	}
	return err
}

// SetBreakerRatios arms the circuit breaker of every token with a nonzero
// ratio, snapshotting the token's live implied price as the reference.
// Tokens whose ratios are both zero keep their current breaker.
func (c *Controller) SetBreakerRatios(ctx context.Context, caller common.Address, minRatios, maxRatios []*uint256.Int) (err error) {
	defer c.observe("set_breakers", time.Now(), &err)
	if err = c.authorize(ctx, caller, ActionSetBreakers); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now, err := c.now(ctx)
	if err != nil {
		return err
	}
	snap, err := c.load(ctx, now)
	if err != nil {
		return err
	}
	if len(minRatios) != len(snap.tokens) || len(maxRatios) != len(snap.tokens) {
		return fmt.Errorf("%d tokens, %d min, %d max: %w",
			len(snap.tokens), len(minRatios), len(maxRatios), ErrInputLengthMismatch)
	}
	for i := range snap.tokens {
		if minRatios[i] == nil || maxRatios[i] == nil {
			return fmt.Errorf("ratio %d unset: %w", i, ErrInputLengthMismatch)
		}
	}
	supply, err := c.registry.TotalSupply(ctx, c.poolID)
	if err != nil {
		return fmt.Errorf("load total supply: %w", err)
	}

	weights := snap.currentWeights()
	var (
		writes  []storage.Write
		records []model.EventRecord
	)
	for i, token := range snap.tokens {
		if minRatios[i].IsZero() && maxRatios[i].IsZero() {
			continue
		}
		if err := breaker.ValidateRatios(minRatios[i], maxRatios[i]); err != nil {
			return fmt.Errorf("%s: %w", token.Hex(), err)
		}
		balance, err := snap.scaledBalance(i, snap.balances[i])
		if err != nil {
			return fmt.Errorf("scale balance of %s: %w", token.Hex(), err)
		}
		ref, err := breaker.ImpliedPrice(supply, balance, weights[i])
		if err != nil {
			return fmt.Errorf("reference price of %s: %w", token.Hex(), err)
		}
		b, err := breaker.New(ref, minRatios[i], maxRatios[i])
		if err != nil {
			return fmt.Errorf("%s: %w", token.Hex(), err)
		}
		word, err := codec.EncodeBreaker(b)
		if err != nil {
			return fmt.Errorf("encode breaker of %s: %w", token.Hex(), err)
		}
		stored, err := codec.DecodeBreaker(word)
		if err != nil {
			return fmt.Errorf("decode breaker of %s: %w", token.Hex(), err)
		}
		if !stored.MinRatio.IsZero() && !stored.MaxRatio.IsZero() && stored.MaxRatio.Lt(stored.MinRatio) {
			return fmt.Errorf("%s: stored band [%s, %s] is empty: %w", token.Hex(),
				stored.MinRatio.Dec(), stored.MaxRatio.Dec(), breaker.ErrInvalidCircuitBreakerRatios)
		}

		writes = append(writes, storage.Write{Slot: storage.BreakerSlot(token), Word: word})
		records = append(records, c.event(model.EventCircuitBreakerRatioSet, now, model.CircuitBreakerRatioSetData{
			Token:          token.Hex(),
			ReferencePrice: stored.ReferencePrice.Dec(),
			MinRatio:       stored.MinRatio.Dec(),
			MaxRatio:       stored.MaxRatio.Dec(),
		}))
	}
	if len(writes) == 0 {
		return nil
	}
	return c.commit(ctx, "set_breakers", writes, records...)
}

// scheduleWrites encodes the pool word and one weight word per token.
func scheduleWrites(state model.PoolState, tokens []common.Address, weights []model.WeightState) ([]storage.Write, error) {
	poolWord, err := codec.EncodePoolState(state)
	if err != nil {
		return nil, fmt.Errorf("encode pool state: %w", err)
	}
	writes := make([]storage.Write, 0, 2*len(tokens)+1)
	writes = append(writes, storage.Write{Slot: storage.PoolSlot(), Word: poolWord})
	for i, token := range tokens {
		word, err := codec.EncodeWeights(weights[i])
		if err != nil {
			return nil, fmt.Errorf("encode weights of %s: %w", token.Hex(), err)
		}
		writes = append(writes, storage.Write{Slot: storage.WeightSlot(token), Word: word})
	}
	return writes, nil
}
