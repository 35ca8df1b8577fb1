package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"poolGuard/internal/fixed"
	"poolGuard/internal/model"
)

// Pool word layout.
var (
	PoolStartTime   = Field{Name: "startTime", Offset: 0, Width: 32}
	PoolEndTime     = Field{Name: "endTime", Offset: 32, Width: 32}
	PoolSwapEnabled = Field{Name: "swapEnabled", Offset: 64, Width: 1}
	PoolTokenCount  = Field{Name: "tokenCount", Offset: 65, Width: 8}
)

// Token weight word layout.
var (
	TokenStartWeight = Field{Name: "startWeight", Offset: 0, Width: 64}
	TokenEndWeight   = Field{Name: "endWeight", Offset: 64, Width: 64}
	TokenDecimals    = Field{Name: "decimalsAdjustment", Offset: 128, Width: 5}
)

// Token breaker word layout.
var (
	BreakerReferencePrice = Field{Name: "referencePrice", Offset: 0, Width: 112}
	BreakerMaxRatio       = Field{Name: "maxRatio", Offset: 112, Width: 8}
	BreakerMinRatio       = Field{Name: "minRatio", Offset: 120, Width: 8}
)

// WeightCeiling is the compression ceiling of weights. At 64 bits against a
// 1e18 ceiling a weight survives the round trip exactly.
var WeightCeiling = fixed.One

// Ratio codes. Code 0 disables a direction; codes 1..255 map linearly onto
// [MinCircuitBreakerRatio, MaxCircuitBreakerRatio] so both ends are exact.
var (
	ratioSpan  = new(uint256.Int).Sub(model.MaxCircuitBreakerRatio, model.MinCircuitBreakerRatio)
	ratioSteps = new(uint256.Int).SubUint64(maxForWidth(BreakerMaxRatio.Width), 1)
)

// EncodePoolState packs s into a single word.
func EncodePoolState(s model.PoolState) (common.Hash, error) {
	if s.TokenCount < 0 {
		return common.Hash{}, fmt.Errorf("tokenCount=%d: %w", s.TokenCount, ErrEncodingOverflow)
	}
	var (
		word common.Hash
		err  error
	)
	if word, err = PackUint64(word, PoolStartTime, s.StartTime); err != nil {
		return common.Hash{}, err
	}
	if word, err = PackUint64(word, PoolEndTime, s.EndTime); err != nil {
		return common.Hash{}, err
	}
	if word, err = PackBool(word, PoolSwapEnabled, s.SwapEnabled); err != nil {
		return common.Hash{}, err
	}
	if word, err = PackUint64(word, PoolTokenCount, uint64(s.TokenCount)); err != nil {
		return common.Hash{}, err
	}
	return word, nil
}

// DecodePoolState unpacks a pool word.
func DecodePoolState(word common.Hash) model.PoolState {
	return model.PoolState{
		SwapEnabled: UnpackBool(word, PoolSwapEnabled),
		TokenCount:  int(UnpackUint64(word, PoolTokenCount)),
		StartTime:   UnpackUint64(word, PoolStartTime),
		EndTime:     UnpackUint64(word, PoolEndTime),
	}
}

// EncodeWeights packs the schedule half of a token record.
func EncodeWeights(w model.WeightState) (common.Hash, error) {
	start, err := Compress(w.StartWeight, TokenStartWeight.Width, WeightCeiling)
	if err != nil {
		return common.Hash{}, fmt.Errorf("start weight: %w", err)
	}
	end, err := Compress(w.EndWeight, TokenEndWeight.Width, WeightCeiling)
	if err != nil {
		return common.Hash{}, fmt.Errorf("end weight: %w", err)
	}

	var word common.Hash
	if word, err = Pack(word, TokenStartWeight, start); err != nil {
		return common.Hash{}, err
	}
	if word, err = Pack(word, TokenEndWeight, end); err != nil {
		return common.Hash{}, err
	}
	if word, err = PackUint64(word, TokenDecimals, uint64(w.DecimalsAdjustment)); err != nil {
		return common.Hash{}, err
	}
	return word, nil
}

// DecodeWeights unpacks and decompresses the schedule half of a token record.
func DecodeWeights(word common.Hash) (model.WeightState, error) {
	start, err := Decompress(Unpack(word, TokenStartWeight), TokenStartWeight.Width, WeightCeiling)
	if err != nil {
		return model.WeightState{}, err
	}
	end, err := Decompress(Unpack(word, TokenEndWeight), TokenEndWeight.Width, WeightCeiling)
	if err != nil {
		return model.WeightState{}, err
	}
	return model.WeightState{
		StartWeight:        start,
		EndWeight:          end,
		DecimalsAdjustment: uint8(UnpackUint64(word, TokenDecimals)),
	}, nil
}

// EncodeBreaker packs the breaker half of a token record. The reference
// price is stored verbatim. Both ratios become 8-bit codes rounded so the
// stored band is never wider than the requested one: the max ratio rounds
// down and the min ratio rounds up.
func EncodeBreaker(b model.BreakerState) (common.Hash, error) {
	maxCode, err := ratioCode(orZero(b.MaxRatio), false)
	if err != nil {
		return common.Hash{}, fmt.Errorf("max ratio: %w", err)
	}
	minCode, err := ratioCode(orZero(b.MinRatio), true)
	if err != nil {
		return common.Hash{}, fmt.Errorf("min ratio: %w", err)
	}

	var word common.Hash
	if word, err = Pack(word, BreakerReferencePrice, orZero(b.ReferencePrice)); err != nil {
		return common.Hash{}, err
	}
	if word, err = Pack(word, BreakerMaxRatio, maxCode); err != nil {
		return common.Hash{}, err
	}
	if word, err = Pack(word, BreakerMinRatio, minCode); err != nil {
		return common.Hash{}, err
	}
	return word, nil
}

// DecodeBreaker unpacks the breaker half of a token record, returning the
// decompressed ratios the checks run against.
func DecodeBreaker(word common.Hash) (model.BreakerState, error) {
	maxRatio, err := ratioValue(Unpack(word, BreakerMaxRatio))
	if err != nil {
		return model.BreakerState{}, err
	}
	minRatio, err := ratioValue(Unpack(word, BreakerMinRatio))
	if err != nil {
		return model.BreakerState{}, err
	}
	return model.BreakerState{
		ReferencePrice: Unpack(word, BreakerReferencePrice),
		MinRatio:       minRatio,
		MaxRatio:       maxRatio,
	}, nil
}

// QuantizeMaxRatio returns the value a max ratio reads back as once stored.
// The result never exceeds ratio.
func QuantizeMaxRatio(ratio *uint256.Int) (*uint256.Int, error) {
	code, err := ratioCode(ratio, false)
	if err != nil {
		return nil, err
	}
	return ratioValue(code)
}

// QuantizeMinRatio returns the value a min ratio reads back as once stored.
// The result is never below ratio.
func QuantizeMinRatio(ratio *uint256.Int) (*uint256.Int, error) {
	code, err := ratioCode(ratio, true)
	if err != nil {
		return nil, err
	}
	return ratioValue(code)
}

// ratioCode maps a ratio to its code, picking the nearest code on the
// requested side of it.
func ratioCode(ratio *uint256.Int, roundUp bool) (*uint256.Int, error) {
	if ratio.IsZero() {
		return new(uint256.Int), nil
	}
	if ratio.Lt(model.MinCircuitBreakerRatio) || ratio.Gt(model.MaxCircuitBreakerRatio) {
		return nil, fmt.Errorf("ratio %s outside [%s, %s]: %w", ratio.Dec(),
			model.MinCircuitBreakerRatio.Dec(), model.MaxCircuitBreakerRatio.Dec(), ErrEncodingOverflow)
	}
	offset := new(uint256.Int).Sub(ratio, model.MinCircuitBreakerRatio)
	// A steps-1 bias lands on the last code not above the ratio, a span-1
	// bias on the first code not below it.
	bias := new(uint256.Int).SubUint64(ratioSteps, 1)
	if roundUp {
		bias = new(uint256.Int).SubUint64(ratioSpan, 1)
	}
	code, err := scaleRounded(offset, ratioSteps, ratioSpan, bias)
	if err != nil {
		return nil, err
	}
	return code.AddUint64(code, 1), nil
}

func ratioValue(code *uint256.Int) (*uint256.Int, error) {
	if code.Gt(maxForWidth(BreakerMaxRatio.Width)) {
		return nil, fmt.Errorf("ratio code %s: %w", code.Dec(), ErrEncodingOverflow)
	}
	if code.IsZero() {
		return new(uint256.Int), nil
	}
	step := new(uint256.Int).SubUint64(code, 1)
	value, err := scaleRounded(step, ratioSpan, ratioSteps, new(uint256.Int))
	if err != nil {
		return nil, err
	}
	return value.Add(value, model.MinCircuitBreakerRatio), nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
