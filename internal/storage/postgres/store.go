package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolGuard/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_words (
	pool_id    TEXT        NOT NULL,
	slot       BYTEA       NOT NULL,
	word       BYTEA       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, slot)
)`

var _ storage.Store = (*Store)(nil)

// Store provides Postgres persistence for pool words.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Get returns the word at slot, or the zero word when it was never written.
func (s *Store) Get(ctx context.Context, poolID string, slot common.Hash) (common.Hash, error) {
	if poolID == "" {
		return common.Hash{}, storage.ErrEmptyPoolID
	}
	var raw []byte
	row := s.pool.QueryRow(ctx, `SELECT word FROM pool_words WHERE pool_id=$1 AND slot=$2`, poolID, slot.Bytes())
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Hash{}, nil
		}
		return common.Hash{}, err
	}
	return common.BytesToHash(raw), nil
}

// Commit upserts all writes in a single transaction.
func (s *Store) Commit(ctx context.Context, poolID string, writes []storage.Write) error {
	if poolID == "" {
		return storage.ErrEmptyPoolID
	}
	if len(writes) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, w := range writes {
			batch.Queue(`
				INSERT INTO pool_words (pool_id, slot, word, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
				ON CONFLICT (pool_id, slot)
				DO UPDATE SET
					word = EXCLUDED.word,
					updated_at = now()
			`,
				poolID,
				w.Slot.Bytes(),
				w.Word.Bytes(),
			)
		}

		br := tx.SendBatch(ctx, batch)
		for range writes {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("upsert word: %w", err)
			}
		}
		return br.Close()
	})
}
