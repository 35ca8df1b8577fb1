package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"

	"poolGuard/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS pool_words (
	pool_id    TEXT    NOT NULL,
	slot       BLOB    NOT NULL,
	word       BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (pool_id, slot)
) WITHOUT ROWID;
`

var _ storage.Store = (*Store)(nil)

// Store provides SQLite persistence for pool words.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers
	db.SetMaxOpenConns(1)
	if err := configureDatabase(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func configureDatabase(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, poolID string, slot common.Hash) (common.Hash, error) {
	if poolID == "" {
		return common.Hash{}, storage.ErrEmptyPoolID
	}
	var raw []byte
	row := s.db.QueryRowContext(ctx, `SELECT word FROM pool_words WHERE pool_id = ? AND slot = ?`, poolID, slot.Bytes())
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.Hash{}, nil
		}
		return common.Hash{}, fmt.Errorf("load word: %w", err)
	}
	return common.BytesToHash(raw), nil
}

// Commit writes all words inside one transaction.
func (s *Store) Commit(ctx context.Context, poolID string, writes []storage.Write) (err error) {
	if poolID == "" {
		return storage.ErrEmptyPoolID
	}
	if len(writes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pool_words (pool_id, slot, word, updated_at)
		VALUES (?, ?, ?, strftime('%s','now'))
		ON CONFLICT (pool_id, slot) DO UPDATE SET
			word = excluded.word,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, w := range writes {
		if _, err = stmt.ExecContext(ctx, poolID, w.Slot.Bytes(), w.Word.Bytes()); err != nil {
			return fmt.Errorf("write slot %s: %w", w.Slot.Hex(), err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
