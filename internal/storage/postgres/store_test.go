package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"poolGuard/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	dsn := os.Getenv("POOLGUARD_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("POOLGUARD_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()

	// isolate from earlier runs against the same database
	_, err = s.pool.Exec(ctx, `DELETE FROM pool_words WHERE pool_id IN ('pool-a', 'pool-b')`)
	require.NoError(t, err)
	storagetest.Run(t, s)
}
