package pool

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolGuard/internal/breaker"
	"poolGuard/internal/codec"
	"poolGuard/internal/events"
	"poolGuard/internal/fixed"
	"poolGuard/internal/metrics"
	"poolGuard/internal/model"
	"poolGuard/internal/schedule"
	"poolGuard/internal/storage"
)

func u(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	tokenA   = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokenB   = common.HexToAddress("0x000000000000000000000000000000000000000b")
	unknown  = common.HexToAddress("0x000000000000000000000000000000000000000c")

	w80 = u("800000000000000000")
	w20 = u("200000000000000000")
	w50 = u("500000000000000000")
)

type fakeRegistry struct {
	tokens   []common.Address
	balances []*uint256.Int
	supply   *uint256.Int
	decimals map[common.Address]uint8
}

func (r *fakeRegistry) PoolTokens(context.Context, string) ([]common.Address, []*uint256.Int, error) {
	return r.tokens, r.balances, nil
}

func (r *fakeRegistry) TotalSupply(context.Context, string) (*uint256.Int, error) {
	return r.supply, nil
}

func (r *fakeRegistry) TokenDecimals(_ context.Context, token common.Address) (uint8, error) {
	d, ok := r.decimals[token]
	if !ok {
		return 0, errors.New("unknown token")
	}
	return d, nil
}

// stubPricer returns canned amounts.
type stubPricer struct {
	swapOut   *uint256.Int
	joinIn    []*uint256.Int
	joinOut   *uint256.Int
	exitOut   []*uint256.Int
	lastView  model.PoolView
	swapCalls int
}

func (p *stubPricer) QuoteSwap(view model.PoolView, req model.SwapRequest) (model.SwapResult, error) {
	p.lastView = view
	p.swapCalls++
	return model.SwapResult{AmountIn: req.Amount, AmountOut: p.swapOut}, nil
}

func (p *stubPricer) QuoteJoin(view model.PoolView, req model.JoinRequest) (model.JoinResult, error) {
	p.lastView = view
	in := p.joinIn
	if req.Kind == model.ExactTokensInJoin {
		in = req.AmountsIn
	}
	return model.JoinResult{AmountsIn: in, SharesOut: p.joinOut}, nil
}

func (p *stubPricer) QuoteExit(view model.PoolView, req model.ExitRequest) (model.ExitResult, error) {
	p.lastView = view
	return model.ExitResult{AmountsOut: p.exitOut, SharesIn: req.SharesIn}, nil
}

type failingStore struct {
	*storage.MemoryStore
	fail bool
}

func (s *failingStore) Commit(ctx context.Context, poolID string, writes []storage.Write) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Commit(ctx, poolID, writes)
}

type harness struct {
	ctrl     *Controller
	clock    *FixedClock
	registry *fakeRegistry
	pricer   *stubPricer
	events   *events.Recorder
	store    *failingStore
}

// newHarness builds an 80/20 pool of an 18-decimal and a 6-decimal token
// whose implied prices both start at exactly 1.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: NewFixedClock(0),
		registry: &fakeRegistry{
			tokens:   []common.Address{tokenA, tokenB},
			balances: []*uint256.Int{u("80000000000000000000"), u("20000000")},
			supply:   u("100000000000000000000"),
			decimals: map[common.Address]uint8{tokenA: 18, tokenB: 6},
		},
		pricer: &stubPricer{},
		events: &events.Recorder{},
		store:  &failingStore{MemoryStore: storage.NewMemoryStore()},
	}
	ctrl, err := New(Config{
		PoolID:   "lbp",
		Store:    h.store,
		Registry: h.registry,
		Clock:    h.clock,
		Auth:     OwnerOnly{Owner: owner},
		Events:   h.events,
		Pricer:   h.pricer,
		Metrics:  metrics.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) create(t *testing.T, swapEnabled bool) {
	t.Helper()
	require.NoError(t, h.ctrl.Create(context.Background(), owner, []*uint256.Int{w80, w20}, swapEnabled))
}

func decs(values []*uint256.Int) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.Dec()
	}
	return out
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{PoolID: "p"})
	require.ErrorIs(t, err, ErrMissingDependency)
	_, err = New(Config{Store: storage.NewMemoryStore()})
	require.ErrorIs(t, err, storage.ErrEmptyPoolID)
}

func TestCreate(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(1_000)
	h.create(t, false)
	ctx := context.Background()

	enabled, err := h.ctrl.SwapEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	params, err := h.ctrl.ScheduleParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), params.StartTime)
	assert.Equal(t, uint64(1_000), params.EndTime)
	assert.Equal(t, []string{w80.Dec(), w20.Dec()}, decs(params.EndWeights))

	factors, err := h.ctrl.ScalingFactors(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixed.One.Dec(), factors[0].Dec())
	assert.Equal(t, "1000000000000000000000000000000", factors[1].Dec())

	assert.Equal(t, []string{
		model.EventPoolCreated,
		model.EventGradualWeightUpdate,
		model.EventSwapEnabledSet,
	}, h.events.Names())

	err = h.ctrl.Create(ctx, owner, []*uint256.Int{w80, w20}, true)
	require.ErrorIs(t, err, ErrPoolExists)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t)
	require.ErrorIs(t, h.ctrl.Create(ctx, stranger, []*uint256.Int{w80, w20}, true), ErrUnauthorized)
	require.ErrorIs(t, h.ctrl.Create(ctx, owner, []*uint256.Int{w80}, true), ErrInputLengthMismatch)
	require.ErrorIs(t, h.ctrl.Create(ctx, owner, []*uint256.Int{w80, w50}, true), schedule.ErrNormalizedWeightInvariant)
	require.ErrorIs(t, h.ctrl.Create(ctx, owner, []*uint256.Int{fixed.One, new(uint256.Int)}, true), schedule.ErrMinWeight)

	h.registry.decimals[tokenB] = 24
	require.ErrorIs(t, h.ctrl.Create(ctx, owner, []*uint256.Int{w80, w20}, true), ErrTokenDecimals)

	h.registry.tokens = []common.Address{tokenA, tokenA}
	require.ErrorIs(t, h.ctrl.Create(ctx, owner, []*uint256.Int{w80, w20}, true), ErrDuplicateToken)

	h.registry.tokens = []common.Address{tokenA}
	require.ErrorIs(t, h.ctrl.Create(ctx, owner, []*uint256.Int{fixed.One}, true), ErrMinTokens)

	// nothing was persisted by any failed attempt
	_, err := h.ctrl.SwapEnabled(ctx)
	require.ErrorIs(t, err, ErrPoolNotFound)
	assert.Empty(t, h.events.Names())
}

func TestSwapsDisabledUntilEnabled(t *testing.T) {
	h := newHarness(t)
	h.create(t, false)
	ctx := context.Background()
	h.pricer.swapOut = u("1000000")
	req := model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("1000000000000000000")}

	_, err := h.ctrl.Swap(ctx, req)
	require.ErrorIs(t, err, ErrSwapsDisabled)
	assert.Zero(t, h.pricer.swapCalls)

	require.ErrorIs(t, h.ctrl.SetSwapEnabled(ctx, stranger, true), ErrUnauthorized)
	_, err = h.ctrl.Swap(ctx, req)
	require.ErrorIs(t, err, ErrSwapsDisabled)

	require.NoError(t, h.ctrl.SetSwapEnabled(ctx, owner, true))
	res, err := h.ctrl.Swap(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "1000000", res.AmountOut.Dec())

	// idempotent
	require.NoError(t, h.ctrl.SetSwapEnabled(ctx, owner, true))
	enabled, err := h.ctrl.SwapEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestScheduledWeightsMidway(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()

	require.NoError(t, h.ctrl.ScheduleWeightChange(ctx, owner, 100, 200, []*uint256.Int{w50, w50}))

	for _, tc := range []struct {
		now  uint64
		want []string
	}{
		{now: 0, want: []string{"800000000000000000", "200000000000000000"}},
		{now: 100, want: []string{"800000000000000000", "200000000000000000"}},
		{now: 150, want: []string{"650000000000000000", "350000000000000000"}},
		{now: 200, want: []string{"500000000000000000", "500000000000000000"}},
		{now: 500, want: []string{"500000000000000000", "500000000000000000"}},
	} {
		h.clock.Set(tc.now)
		weights, err := h.ctrl.CurrentWeights(ctx)
		require.NoError(t, err)
		assert.Equal(t, tc.want, decs(weights), "t=%d", tc.now)
	}

	h.clock.Set(150)
	idx, err := h.ctrl.MaxWeightIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestRescheduleIsContinuous(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	require.NoError(t, h.ctrl.ScheduleWeightChange(ctx, owner, 100, 200, []*uint256.Int{w50, w50}))

	// a start in the past is moved up to now
	h.clock.Set(150)
	require.NoError(t, h.ctrl.ScheduleWeightChange(ctx, owner, 0, 250, []*uint256.Int{w20, w80}))

	params, err := h.ctrl.ScheduleParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), params.StartTime)
	assert.Equal(t, uint64(250), params.EndTime)

	weights, err := h.ctrl.CurrentWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"650000000000000000", "350000000000000000"}, decs(weights))

	h.clock.Set(250)
	weights, err = h.ctrl.CurrentWeights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{w20.Dec(), w80.Dec()}, decs(weights))

	records := h.events.Records()
	last := records[len(records)-1]
	assert.Equal(t, model.EventGradualWeightUpdate, last.EventName)
	data := last.Decoded.(model.GradualWeightUpdateData)
	assert.Equal(t, []string{"650000000000000000", "350000000000000000"}, data.StartWeights)
}

func TestScheduleRejectionsLeaveStateUntouched(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	h.clock.Set(50)
	before := len(h.events.Names())

	err := h.ctrl.ScheduleWeightChange(ctx, owner, 100, 90, []*uint256.Int{w50, w50})
	require.ErrorIs(t, err, schedule.ErrGradualUpdateTimeTravel)

	err = h.ctrl.ScheduleWeightChange(ctx, owner, 0, 40, []*uint256.Int{w50, w50})
	require.ErrorIs(t, err, schedule.ErrGradualUpdateTimeTravel)

	err = h.ctrl.ScheduleWeightChange(ctx, owner, 100, 200, []*uint256.Int{w50, w20})
	require.ErrorIs(t, err, schedule.ErrNormalizedWeightInvariant)

	err = h.ctrl.ScheduleWeightChange(ctx, owner, 100, 200, []*uint256.Int{w50, w50, w50})
	require.ErrorIs(t, err, ErrInputLengthMismatch)

	err = h.ctrl.ScheduleWeightChange(ctx, owner, 100, 1<<32, []*uint256.Int{w50, w50})
	require.ErrorIs(t, err, codec.ErrEncodingOverflow)

	err = h.ctrl.ScheduleWeightChange(ctx, stranger, 100, 200, []*uint256.Int{w50, w50})
	require.ErrorIs(t, err, ErrUnauthorized)

	h.store.fail = true
	err = h.ctrl.ScheduleWeightChange(ctx, owner, 100, 200, []*uint256.Int{w50, w50})
	require.Error(t, err)
	h.store.fail = false

	params, err := h.ctrl.ScheduleParams(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), params.EndTime)
	assert.Equal(t, []string{w80.Dec(), w20.Dec()}, decs(params.EndWeights))
	assert.Len(t, h.events.Names(), before)
}

func TestSetBreakerRatios(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	zero := new(uint256.Int)

	// exactly at the floor is valid
	require.NoError(t, h.ctrl.SetBreakerRatios(ctx, owner,
		[]*uint256.Int{model.MinCircuitBreakerRatio, zero},
		[]*uint256.Int{u("2000000000000000000"), zero}))

	info, err := h.ctrl.BreakerState(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, fixed.One.Dec(), info.ReferencePrice.Dec())
	// 2.0 is stored as the nearest code below it
	assert.Equal(t, "1970866141732283464", info.MaxRatio.Dec())
	assert.Equal(t, model.MinCircuitBreakerRatio.Dec(), info.MinRatio.Dec())
	assert.Equal(t, "507391130643228127", info.MinPrice.Dec())
	assert.Equal(t, "10000000000000000000", info.MaxPrice.Dec())
	assert.Equal(t, fixed.One.Dec(), info.CurrentPrice.Dec())

	// both zero: token B was skipped
	info, err = h.ctrl.BreakerState(ctx, tokenB)
	require.NoError(t, err)
	assert.True(t, info.ReferencePrice.IsZero())
	assert.Nil(t, info.MinPrice)
	assert.Nil(t, info.MaxPrice)

	_, err = h.ctrl.BreakerState(ctx, unknown)
	require.ErrorIs(t, err, ErrInvalidToken)

	names := h.events.Names()
	assert.Equal(t, model.EventCircuitBreakerRatioSet, names[len(names)-1])
	assert.Len(t, names, 4)
}

func TestSetBreakerRatiosRejections(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	zero := new(uint256.Int)
	ok := u("2000000000000000000")

	err := h.ctrl.SetBreakerRatios(ctx, owner,
		[]*uint256.Int{u("50000000000000000"), zero},
		[]*uint256.Int{ok, zero})
	require.ErrorIs(t, err, breaker.ErrMinCircuitBreakerRatio)

	// a bad second token aborts the valid first one too
	err = h.ctrl.SetBreakerRatios(ctx, owner,
		[]*uint256.Int{zero, zero},
		[]*uint256.Int{ok, u("11000000000000000000")})
	require.ErrorIs(t, err, breaker.ErrMaxCircuitBreakerRatio)

	err = h.ctrl.SetBreakerRatios(ctx, owner,
		[]*uint256.Int{ok, zero},
		[]*uint256.Int{u("1000000000000000000"), zero})
	require.ErrorIs(t, err, breaker.ErrInvalidCircuitBreakerRatios)

	err = h.ctrl.SetBreakerRatios(ctx, owner, []*uint256.Int{zero}, []*uint256.Int{ok, zero})
	require.ErrorIs(t, err, ErrInputLengthMismatch)

	// equal ratios leave no band once the max rounds down and the min up
	one := u("1000000000000000000")
	err = h.ctrl.SetBreakerRatios(ctx, owner, []*uint256.Int{one, zero}, []*uint256.Int{one, zero})
	require.ErrorIs(t, err, breaker.ErrInvalidCircuitBreakerRatios)

	err = h.ctrl.SetBreakerRatios(ctx, stranger, []*uint256.Int{zero, zero}, []*uint256.Int{ok, zero})
	require.ErrorIs(t, err, ErrUnauthorized)

	info, err := h.ctrl.BreakerState(ctx, tokenA)
	require.NoError(t, err)
	assert.True(t, info.MaxRatio.IsZero())
	assert.Len(t, h.events.Names(), 3)
}

func TestBothZeroRatiosKeepExistingBreaker(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	zero := new(uint256.Int)

	require.NoError(t, h.ctrl.SetBreakerRatios(ctx, owner,
		[]*uint256.Int{zero, zero},
		[]*uint256.Int{u("2000000000000000000"), zero}))
	require.NoError(t, h.ctrl.SetBreakerRatios(ctx, owner,
		[]*uint256.Int{zero, zero},
		[]*uint256.Int{zero, zero}))

	info, err := h.ctrl.BreakerState(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, "1970866141732283464", info.MaxRatio.Dec())
}

func TestSetBreakerRatiosUnsetEntries(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	zero := new(uint256.Int)
	ok := u("2000000000000000000")

	for _, tc := range []struct {
		name     string
		min, max []*uint256.Int
	}{
		{name: "min", min: []*uint256.Int{zero, nil}, max: []*uint256.Int{ok, zero}},
		{name: "max", min: []*uint256.Int{zero, zero}, max: []*uint256.Int{nil, ok}},
		{name: "both", min: []*uint256.Int{nil, zero}, max: []*uint256.Int{nil, zero}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				err = h.ctrl.SetBreakerRatios(ctx, owner, tc.min, tc.max)
			})
			require.ErrorIs(t, err, ErrInputLengthMismatch)
		})
	}

	info, err := h.ctrl.BreakerState(ctx, tokenA)
	require.NoError(t, err)
	assert.True(t, info.ReferencePrice.IsZero())
	assert.Len(t, h.events.Names(), 3)
}

func TestStoredBreakerBandNeverWider(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	zero := new(uint256.Int)

	for _, tc := range []struct{ min, max string }{
		{min: "1000000000000000000", max: "2100000000000000000"},
		{min: "500000000000000000", max: "2000000000000000000"},
		{min: "123456789012345678", max: "9876543210987654321"},
		{min: "100000000000000000", max: "10000000000000000000"},
		{min: "990000000000000000", max: "1010000000000000000"},
	} {
		reqMin, reqMax := u(tc.min), u(tc.max)
		require.NoError(t, h.ctrl.SetBreakerRatios(ctx, owner,
			[]*uint256.Int{reqMin, zero},
			[]*uint256.Int{reqMax, zero}), "min=%s max=%s", tc.min, tc.max)

		info, err := h.ctrl.BreakerState(ctx, tokenA)
		require.NoError(t, err)
		assert.False(t, info.MaxRatio.Gt(reqMax), "max %s stored as %s", tc.max, info.MaxRatio.Dec())
		assert.False(t, info.MinRatio.Lt(reqMin), "min %s stored as %s", tc.min, info.MinRatio.Dec())

		floor, err := fixed.DivUp(info.ReferencePrice, reqMax)
		require.NoError(t, err)
		ceiling, err := fixed.DivDown(info.ReferencePrice, reqMin)
		require.NoError(t, err)
		assert.False(t, info.MinPrice.Lt(floor), "floor %s below requested %s", info.MinPrice.Dec(), floor.Dec())
		assert.False(t, info.MaxPrice.Gt(ceiling), "ceiling %s above requested %s", info.MaxPrice.Dec(), ceiling.Dec())

		// the event reports what was stored
		records := h.events.Records()
		data := records[len(records)-1].Decoded.(model.CircuitBreakerRatioSetData)
		assert.Equal(t, info.MaxRatio.Dec(), data.MaxRatio)
		assert.Equal(t, info.MinRatio.Dec(), data.MinRatio)
	}

	// a requested max of 2.1 allows prices down to 1/2.1 ~ 0.47619 and no lower
	require.NoError(t, h.ctrl.SetBreakerRatios(ctx, owner,
		[]*uint256.Int{zero, zero},
		[]*uint256.Int{u("2100000000000000000"), zero}))
	h.pricer.swapOut = u("1000000")

	// 89 A in: price = 80 / 169 ~ 0.47337
	_, err := h.ctrl.Swap(ctx, model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("89000000000000000000")})
	require.ErrorIs(t, err, breaker.ErrCircuitBreakerTrippedMaxRatio)

	// 86 A in: price = 80 / 166 ~ 0.48193
	_, err = h.ctrl.Swap(ctx, model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("86000000000000000000")})
	require.NoError(t, err)
}

func TestStatusCurrentPrice(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()

	h.registry.balances = []*uint256.Int{u("80000000000000000000"), new(uint256.Int)}
	info, err := h.ctrl.BreakerState(ctx, tokenB)
	require.NoError(t, err)
	assert.Nil(t, info.CurrentPrice, "an empty balance has no price")
	info, err = h.ctrl.BreakerState(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, fixed.One.Dec(), info.CurrentPrice.Dec())

	h.registry.supply = new(uint256.Int).SetAllOne()
	_, err = h.ctrl.Status(ctx)
	require.ErrorIs(t, err, fixed.ErrOverflow)
}

func armBreakers(t *testing.T, h *harness) {
	t.Helper()
	zero := new(uint256.Int)
	// A may not fall below ~0.507 of its price; B may not rise above ~1.89x.
	require.NoError(t, h.ctrl.SetBreakerRatios(context.Background(), owner,
		[]*uint256.Int{zero, w50},
		[]*uint256.Int{u("2000000000000000000"), zero}))
}

func TestSwapBreakerBounds(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	armBreakers(t, h)
	ctx := context.Background()

	h.pricer.swapOut = u("1000000")
	res, err := h.ctrl.Swap(ctx, model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("77000000000000000000")})
	require.NoError(t, err)
	assert.Equal(t, "77000000000000000000", res.AmountIn.Dec())

	_, err = h.ctrl.Swap(ctx, model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("78000000000000000000")})
	require.ErrorIs(t, err, breaker.ErrCircuitBreakerTrippedMaxRatio)

	h.pricer.swapOut = u("9000000")
	_, err = h.ctrl.Swap(ctx, model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("1")})
	require.NoError(t, err)

	h.pricer.swapOut = u("10000000")
	_, err = h.ctrl.Swap(ctx, model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("1")})
	require.ErrorIs(t, err, breaker.ErrCircuitBreakerTrippedMinRatio)

	h.pricer.swapOut = u("20000001")
	_, err = h.ctrl.Swap(ctx, model.SwapRequest{Kind: model.GivenIn, TokenIn: tokenA, TokenOut: tokenB, Amount: u("1")})
	require.ErrorIs(t, err, fixed.ErrUnderflow)

	// the pricer sees current weights and scaling factors
	assert.Equal(t, []string{w80.Dec(), w20.Dec()}, decs(h.pricer.lastView.Weights))
	assert.Equal(t, "1000000000000000000000000000000", h.pricer.lastView.ScalingFactors[1].Dec())
}

func TestSwapInvalidTokens(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	ctx := context.Background()
	h.pricer.swapOut = u("1")

	_, err := h.ctrl.Swap(ctx, model.SwapRequest{TokenIn: unknown, TokenOut: tokenB, Amount: u("1")})
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = h.ctrl.Swap(ctx, model.SwapRequest{TokenIn: tokenA, TokenOut: tokenA, Amount: u("1")})
	require.ErrorIs(t, err, ErrInvalidToken)

	// a registry token with no stored record
	h.registry.tokens = []common.Address{tokenA, unknown}
	h.registry.decimals[unknown] = 18
	_, err = h.ctrl.Swap(ctx, model.SwapRequest{TokenIn: tokenA, TokenOut: unknown, Amount: u("1")})
	require.ErrorIs(t, err, ErrInvalidToken)

	h.registry.tokens = []common.Address{tokenA}
	_, err = h.ctrl.CurrentWeights(ctx)
	require.ErrorIs(t, err, ErrTokenSetMismatch)
}

func TestJoinBreakers(t *testing.T) {
	h := newHarness(t)
	h.create(t, false)
	armBreakers(t, h)
	ctx := context.Background()

	// proportional joins are allowed while trading is off and skip breakers
	h.pricer.joinIn = []*uint256.Int{u("800000000000000000000"), u("200000000")}
	h.pricer.joinOut = u("1000000000000000000000")
	_, err := h.ctrl.Join(ctx, model.JoinRequest{Kind: model.ProportionalJoin, SharesOut: h.pricer.joinOut})
	require.NoError(t, err)

	single := model.JoinRequest{Kind: model.ExactTokensInJoin, AmountsIn: []*uint256.Int{u("1000000000000000000"), new(uint256.Int)}}
	h.pricer.joinOut = u("1000000000000000000")
	_, err = h.ctrl.Join(ctx, single)
	require.ErrorIs(t, err, ErrSwapsDisabled)

	require.NoError(t, h.ctrl.SetSwapEnabled(ctx, owner, true))
	_, err = h.ctrl.Join(ctx, single)
	require.NoError(t, err)

	// 120 A in for 10 shares: price = 110 * 0.8 / 200 = 0.44, below the floor
	h.pricer.joinOut = u("10000000000000000000")
	_, err = h.ctrl.Join(ctx, model.JoinRequest{Kind: model.ExactTokensInJoin, AmountsIn: []*uint256.Int{u("120000000000000000000"), new(uint256.Int)}})
	require.ErrorIs(t, err, breaker.ErrCircuitBreakerTrippedMaxRatio)

	_, err = h.ctrl.Join(ctx, model.JoinRequest{Kind: model.ExactTokensInJoin, AmountsIn: []*uint256.Int{u("1")}})
	require.ErrorIs(t, err, ErrInputLengthMismatch)
}

func TestExitBreakers(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	armBreakers(t, h)
	ctx := context.Background()

	// proportional exits skip breakers even when they drain B
	h.pricer.exitOut = []*uint256.Int{u("40000000000000000000"), u("15000000")}
	_, err := h.ctrl.Exit(ctx, model.ExitRequest{Kind: model.ProportionalExit, SharesIn: u("50000000000000000000")})
	require.NoError(t, err)

	// 5 B out for 5 shares: price = 95 * 0.2 / 15 = 1.27, within the band
	h.pricer.exitOut = []*uint256.Int{new(uint256.Int), u("5000000")}
	_, err = h.ctrl.Exit(ctx, model.ExitRequest{Kind: model.ExactSharesInForTokenOut, SharesIn: u("5000000000000000000"), TokenOut: tokenB})
	require.NoError(t, err)

	// 12 B out for 1 share: price = 99 * 0.2 / 8 = 2.47, above the ceiling
	h.pricer.exitOut = []*uint256.Int{new(uint256.Int), u("12000000")}
	_, err = h.ctrl.Exit(ctx, model.ExitRequest{Kind: model.ExactSharesInForTokenOut, SharesIn: u("1000000000000000000"), TokenOut: tokenB})
	require.ErrorIs(t, err, breaker.ErrCircuitBreakerTrippedMinRatio)

	_, err = h.ctrl.Exit(ctx, model.ExitRequest{Kind: model.ExactSharesInForTokenOut, SharesIn: u("1"), TokenOut: unknown})
	require.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, h.ctrl.SetSwapEnabled(ctx, owner, false))
	_, err = h.ctrl.Exit(ctx, model.ExitRequest{Kind: model.ExactSharesInForTokenOut, SharesIn: u("1"), TokenOut: tokenB})
	require.ErrorIs(t, err, ErrSwapsDisabled)
}

func TestNonDecreasingClock(t *testing.T) {
	inner := NewFixedClock(100)
	clock := NonDecreasing(inner)
	ctx := context.Background()

	now, err := clock.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), now)

	inner.Set(90)
	now, err = clock.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), now)

	inner.Advance(20)
	now, err = clock.Now(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), now)
}

func TestPublishMetrics(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)
	require.NoError(t, h.ctrl.PublishMetrics(context.Background()))
	assert.InDelta(t, 0.8, WeightFraction(w80), 1e-12)
}

func TestAuthorizers(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, AllowAll{}.Authorize(ctx, stranger, ActionCreate))
	require.NoError(t, OwnerOnly{Owner: owner}.Authorize(ctx, owner, ActionSetBreakers))
	require.ErrorIs(t, OwnerOnly{Owner: owner}.Authorize(ctx, stranger, ActionSetBreakers), ErrUnauthorized)

	list := NewAllowList(owner, tokenA)
	require.NoError(t, list.Authorize(ctx, tokenA, ActionScheduleWeights))
	require.ErrorIs(t, list.Authorize(ctx, stranger, ActionScheduleWeights), ErrUnauthorized)
	require.ErrorIs(t, NewAllowList().Authorize(ctx, owner, ActionCreate), ErrUnauthorized)
}
