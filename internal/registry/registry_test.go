package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type stubDecimals struct {
	calls int
	value uint8
	err   error
}

func (s *stubDecimals) TokenDecimals(context.Context, common.Address) (uint8, error) {
	s.calls++
	return s.value, s.err
}

func seeded(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.PutPool("pool", []Token{
		{Address: tokenA, Symbol: "AAA", Decimals: 18, Balance: uint256.NewInt(1000)},
		{Address: tokenB, Symbol: "BBB", Decimals: 6, Balance: uint256.NewInt(500)},
	}, uint256.NewInt(100)))
	return r
}

func TestPoolTokensReturnsCopies(t *testing.T) {
	r := seeded(t)
	tokens, balances, err := r.PoolTokens(context.Background(), "pool")
	require.NoError(t, err)
	assert.Equal(t, []common.Address{tokenA, tokenB}, tokens)
	balances[0].SetUint64(1)

	_, again, err := r.PoolTokens(context.Background(), "pool")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), again[0].Uint64())

	_, _, err = r.PoolTokens(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownPool)
}

func TestTokenDecimalsFallback(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()
	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	d, err := r.TokenDecimals(ctx, tokenB)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)

	_, err = r.TokenDecimals(ctx, other)
	assert.ErrorIs(t, err, ErrUnknownDecimals)

	src := &stubDecimals{value: 8}
	r.SetDecimalsSource(src)
	d, err = r.TokenDecimals(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), d)
	_, err = r.TokenDecimals(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "resolved decimals are cached")

	failing := &stubDecimals{err: errors.New("rpc down")}
	r.SetDecimalsSource(failing)
	_, err = r.TokenDecimals(ctx, common.HexToAddress("0x00000000000000000000000000000000000000dd"))
	assert.ErrorContains(t, err, "rpc down")
}

func TestApplySwap(t *testing.T) {
	r := seeded(t)
	require.NoError(t, r.ApplySwap("pool", tokenA, tokenB, uint256.NewInt(10), uint256.NewInt(20)))
	_, balances, err := r.PoolTokens(context.Background(), "pool")
	require.NoError(t, err)
	assert.Equal(t, uint64(1010), balances[0].Uint64())
	assert.Equal(t, uint64(480), balances[1].Uint64())

	err = r.ApplySwap("pool", tokenA, tokenB, uint256.NewInt(1), uint256.NewInt(481))
	assert.Error(t, err)
	_, balances, _ = r.PoolTokens(context.Background(), "pool")
	assert.Equal(t, uint64(1010), balances[0].Uint64(), "failed swap leaves balances")

	other := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	assert.ErrorIs(t, r.ApplySwap("pool", other, tokenB, uint256.NewInt(1), uint256.NewInt(1)), ErrUnknownToken)
}

func TestApplyJoinAndExit(t *testing.T) {
	r := seeded(t)
	ctx := context.Background()

	require.NoError(t, r.ApplyJoin("pool", []*uint256.Int{uint256.NewInt(100), uint256.NewInt(50)}, uint256.NewInt(10)))
	supply, err := r.TotalSupply(ctx, "pool")
	require.NoError(t, err)
	assert.Equal(t, uint64(110), supply.Uint64())

	require.NoError(t, r.ApplyExit("pool", []*uint256.Int{uint256.NewInt(0), uint256.NewInt(50)}, uint256.NewInt(5)))
	supply, _ = r.TotalSupply(ctx, "pool")
	assert.Equal(t, uint64(105), supply.Uint64())
	_, balances, _ := r.PoolTokens(ctx, "pool")
	assert.Equal(t, uint64(1100), balances[0].Uint64())
	assert.Equal(t, uint64(500), balances[1].Uint64())

	assert.ErrorIs(t, r.ApplyJoin("pool", []*uint256.Int{uint256.NewInt(1)}, uint256.NewInt(1)), ErrLengthMismatch)
	assert.Error(t, r.ApplyExit("pool", []*uint256.Int{uint256.NewInt(0), uint256.NewInt(0)}, uint256.NewInt(1000)))
	supply, _ = r.TotalSupply(ctx, "pool")
	assert.Equal(t, uint64(105), supply.Uint64())
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "registry.yaml")
	r, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, r.PoolIDs())

	require.NoError(t, r.PutPool("p", []Token{{Address: tokenA, Balance: uint256.NewInt(1)}}, uint256.NewInt(1)))
	require.NoError(t, r.Save())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	r := seeded(t)
	require.NoError(t, r.SaveAs(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"pool"}, loaded.PoolIDs())
	tokens, balances, err := loaded.PoolTokens(context.Background(), "pool")
	require.NoError(t, err)
	assert.Equal(t, []common.Address{tokenA, tokenB}, tokens)
	assert.Equal(t, uint64(500), balances[1].Uint64())
	d, err := loaded.TokenDecimals(context.Background(), tokenB)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), d)
	assert.Equal(t, "BBB", loaded.Symbol(tokenB))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	doc := `pools:
  main:
    total_supply: "100000000000000000000"
    tokens:
      - address: "0x00000000000000000000000000000000000000aa"
        symbol: WETH
        decimals: 18
        balance: "80000000000000000000"
      - address: "0x00000000000000000000000000000000000000bb"
        balance: "20000000"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	r, err := Load(path)
	require.NoError(t, err)

	supply, err := r.TotalSupply(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, "100000000000000000000", supply.Dec())
	_, err = r.TokenDecimals(context.Background(), tokenB)
	assert.ErrorIs(t, err, ErrUnknownDecimals)
	assert.Equal(t, "WETH", r.Symbol(tokenA))
}

func TestLoadRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"yaml":    "pools: [",
		"address": "pools:\n  p:\n    tokens:\n      - address: nope\n",
		"balance": "pools:\n  p:\n    tokens:\n      - address: \"0x00000000000000000000000000000000000000aa\"\n        balance: \"-1\"\n",
		"supply":  "pools:\n  p:\n    total_supply: abc\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
