package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore keeps words in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	words map[string]map[common.Hash]common.Hash
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{words: make(map[string]map[common.Hash]common.Hash)}
}

func (s *MemoryStore) Get(ctx context.Context, poolID string, slot common.Hash) (common.Hash, error) {
	if poolID == "" {
		return common.Hash{}, ErrEmptyPoolID
	}
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.words[poolID][slot], nil
}

// Commit applies writes under a single lock, so readers observe either all
// of them or none.
func (s *MemoryStore) Commit(ctx context.Context, poolID string, writes []Write) error {
	if poolID == "" {
		return ErrEmptyPoolID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slots, ok := s.words[poolID]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		s.words[poolID] = slots
	}
	for _, w := range writes {
		slots[w.Slot] = w.Word
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
