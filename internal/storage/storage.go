// Package storage persists packed pool state as 32-byte words keyed by slot.
// A pool id partitions the key space; a slot that was never written reads as
// the zero word.
package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

var ErrEmptyPoolID = errors.New("pool id required")

// Write is a single slot assignment inside a commit.
type Write struct {
	Slot common.Hash
	Word common.Hash
}

// Store is a key-value store of words. Commit applies all writes or none.
type Store interface {
	Get(ctx context.Context, poolID string, slot common.Hash) (common.Hash, error)
	Commit(ctx context.Context, poolID string, writes []Write) error
	Close() error
}

// Storage key prefixes.
var (
	poolPrefix    = []byte("pool")
	weightPrefix  = []byte("wght")
	breakerPrefix = []byte("brkr")
)

// PoolSlot is the slot holding the pool-level word.
func PoolSlot() common.Hash {
	return makeStorageKey(poolPrefix, nil)
}

// WeightSlot is the slot holding a token's schedule word.
func WeightSlot(token common.Address) common.Hash {
	return makeStorageKey(weightPrefix, token.Bytes())
}

// BreakerSlot is the slot holding a token's breaker word.
func BreakerSlot(token common.Address) common.Hash {
	return makeStorageKey(breakerPrefix, token.Bytes())
}

func makeStorageKey(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	h.Write(prefix)
	h.Write(id)
	var key common.Hash
	h.Digest().Read(key[:])
	return key
}
