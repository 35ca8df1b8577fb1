package model

// Event names emitted by the pool controller.
const (
	EventSwapEnabledSet         = "SwapEnabledSet"
	EventGradualWeightUpdate    = "GradualWeightUpdateScheduled"
	EventCircuitBreakerRatioSet = "CircuitBreakerRatioSet"
	EventPoolCreated            = "PoolCreated"
)

// EventRecord is the envelope written to event sinks. Large integers are
// carried as decimal strings so JSON consumers never lose precision.
type EventRecord struct {
	PoolID    string      `json:"pool_id"`
	EventName string      `json:"event_name"`
	Timestamp uint64      `json:"timestamp"`
	Decoded   interface{} `json:"decoded"`
}

// PoolCreatedData is the PoolCreated payload.
type PoolCreatedData struct {
	Tokens      []string `json:"tokens"`
	Weights     []string `json:"weights"`
	SwapEnabled bool     `json:"swap_enabled"`
}

// SwapEnabledSetData is the SwapEnabledSet payload.
type SwapEnabledSetData struct {
	Enabled bool `json:"enabled"`
}

// GradualWeightUpdateData is the GradualWeightUpdateScheduled payload.
type GradualWeightUpdateData struct {
	StartTime    uint64   `json:"start_time"`
	EndTime      uint64   `json:"end_time"`
	Tokens       []string `json:"tokens"`
	StartWeights []string `json:"start_weights"`
	EndWeights   []string `json:"end_weights"`
}

// CircuitBreakerRatioSetData is the CircuitBreakerRatioSet payload.
type CircuitBreakerRatioSetData struct {
	Token          string `json:"token"`
	ReferencePrice string `json:"reference_price"`
	MinRatio       string `json:"min_ratio"`
	MaxRatio       string `json:"max_ratio"`
}
