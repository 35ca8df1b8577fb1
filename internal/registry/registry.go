// Package registry is a file-backed token and balance provider. It tracks
// each pool's ordered token list, balances and share supply, and settles
// priced swaps, joins and exits against them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"poolGuard/internal/fixed"
)

var (
	ErrUnknownPool     = errors.New("unknown pool")
	ErrUnknownToken    = errors.New("unknown token")
	ErrUnknownDecimals = errors.New("token decimals unknown")
	ErrLengthMismatch  = errors.New("amounts do not match token count")
)

// DecimalsSource resolves decimals for tokens the registry file omits.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

type poolEntry struct {
	tokens   []common.Address
	balances []*uint256.Int
	supply   *uint256.Int
}

// Token describes one registered token.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Balance  *uint256.Int
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	path     string
	pools    map[string]*poolEntry
	decimals map[common.Address]uint8
	symbols  map[common.Address]string
	fallback DecimalsSource
}

func New() *Registry {
	return &Registry{
		pools:    make(map[string]*poolEntry),
		decimals: make(map[common.Address]uint8),
		symbols:  make(map[common.Address]string),
	}
}

// SetDecimalsSource installs a lookup for tokens without file decimals.
// Resolved values are cached.
func (r *Registry) SetDecimalsSource(src DecimalsSource) {
	r.mu.Lock()
	r.fallback = src
	r.mu.Unlock()
}

// PutPool registers or replaces a pool.
func (r *Registry) PutPool(poolID string, tokens []Token, supply *uint256.Int) error {
	if poolID == "" {
		return fmt.Errorf("pool id required")
	}
	entry := &poolEntry{
		tokens:   make([]common.Address, len(tokens)),
		balances: make([]*uint256.Int, len(tokens)),
		supply:   fixed.Clone(supply),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range tokens {
		entry.tokens[i] = t.Address
		entry.balances[i] = fixed.Clone(t.Balance)
		if t.Decimals > 0 {
			r.decimals[t.Address] = t.Decimals
		}
		if t.Symbol != "" {
			r.symbols[t.Address] = t.Symbol
		}
	}
	r.pools[poolID] = entry
	return nil
}

// SetDecimals records decimals for token, including zero.
func (r *Registry) SetDecimals(token common.Address, decimals uint8) {
	r.mu.Lock()
	r.decimals[token] = decimals
	r.mu.Unlock()
}

func (r *Registry) PoolTokens(_ context.Context, poolID string) ([]common.Address, []*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.pools[poolID]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", poolID, ErrUnknownPool)
	}
	tokens := append([]common.Address(nil), entry.tokens...)
	balances := make([]*uint256.Int, len(entry.balances))
	for i, b := range entry.balances {
		balances[i] = fixed.Clone(b)
	}
	return tokens, balances, nil
}

func (r *Registry) TotalSupply(_ context.Context, poolID string) (*uint256.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", poolID, ErrUnknownPool)
	}
	return fixed.Clone(entry.supply), nil
}

func (r *Registry) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	r.mu.RLock()
	d, ok := r.decimals[token]
	src := r.fallback
	r.mu.RUnlock()
	if ok {
		return d, nil
	}
	if src == nil {
		return 0, fmt.Errorf("%s: %w", token.Hex(), ErrUnknownDecimals)
	}
	d, err := src.TokenDecimals(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("resolve decimals of %s: %w", token.Hex(), err)
	}
	r.SetDecimals(token, d)
	return d, nil
}

// Symbol returns the display symbol of token, or its short hex.
func (r *Registry) Symbol(token common.Address) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.symbols[token]; ok {
		return s
	}
	return token.Hex()[:10]
}

// ApplySwap moves amountIn of tokenIn into the pool and amountOut of tokenOut
// out of it. Nothing changes on error.
func (r *Registry) ApplySwap(poolID string, tokenIn, tokenOut common.Address, amountIn, amountOut *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.pool(poolID)
	if err != nil {
		return err
	}
	in, out := entry.indexOf(tokenIn), entry.indexOf(tokenOut)
	if in < 0 || out < 0 {
		return fmt.Errorf("%s -> %s: %w", tokenIn.Hex(), tokenOut.Hex(), ErrUnknownToken)
	}
	newIn, err := fixed.Add(entry.balances[in], amountIn)
	if err != nil {
		return fmt.Errorf("balance in: %w", err)
	}
	newOut, err := fixed.Sub(entry.balances[out], amountOut)
	if err != nil {
		return fmt.Errorf("balance out: %w", err)
	}
	entry.balances[in], entry.balances[out] = newIn, newOut
	return nil
}

// ApplyJoin adds amountsIn to the balances and mints sharesOut.
func (r *Registry) ApplyJoin(poolID string, amountsIn []*uint256.Int, sharesOut *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.pool(poolID)
	if err != nil {
		return err
	}
	if len(amountsIn) != len(entry.balances) {
		return ErrLengthMismatch
	}
	balances := make([]*uint256.Int, len(entry.balances))
	for i, b := range entry.balances {
		if balances[i], err = fixed.Add(b, amountsIn[i]); err != nil {
			return fmt.Errorf("balance %d: %w", i, err)
		}
	}
	supply, err := fixed.Add(entry.supply, sharesOut)
	if err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	entry.balances, entry.supply = balances, supply
	return nil
}

// ApplyExit removes amountsOut from the balances and burns sharesIn.
func (r *Registry) ApplyExit(poolID string, amountsOut []*uint256.Int, sharesIn *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, err := r.pool(poolID)
	if err != nil {
		return err
	}
	if len(amountsOut) != len(entry.balances) {
		return ErrLengthMismatch
	}
	balances := make([]*uint256.Int, len(entry.balances))
	for i, b := range entry.balances {
		if balances[i], err = fixed.Sub(b, amountsOut[i]); err != nil {
			return fmt.Errorf("balance %d: %w", i, err)
		}
	}
	supply, err := fixed.Sub(entry.supply, sharesIn)
	if err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	entry.balances, entry.supply = balances, supply
	return nil
}

func (r *Registry) pool(poolID string) (*poolEntry, error) {
	entry, ok := r.pools[poolID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", poolID, ErrUnknownPool)
	}
	return entry, nil
}

func (e *poolEntry) indexOf(token common.Address) int {
	for i, t := range e.tokens {
		if t == token {
			return i
		}
	}
	return -1
}
