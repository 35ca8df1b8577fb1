package model

// PoolState is the pool-level record. TokenCount is fixed at creation and
// StartTime <= EndTime always holds for a committed record.
type PoolState struct {
	SwapEnabled bool
	TokenCount  int
	StartTime   uint64
	EndTime     uint64
}
