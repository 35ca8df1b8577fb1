package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

type fileRecord struct {
	Pools map[string]filePool `yaml:"pools"`
}

type filePool struct {
	TotalSupply string      `yaml:"total_supply"`
	Tokens      []fileToken `yaml:"tokens"`
}

type fileToken struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol,omitempty"`
	Decimals *uint8 `yaml:"decimals,omitempty"`
	Balance  string `yaml:"balance"`
}

// Load reads a registry file. A missing file yields an empty registry bound
// to path, so the first Save creates it.
func Load(path string) (*Registry, error) {
	r := New()
	r.path = path
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	for poolID, p := range rec.Pools {
		supply, err := parseAmount(p.TotalSupply)
		if err != nil {
			return nil, fmt.Errorf("pool %s total supply: %w", poolID, err)
		}
		tokens := make([]Token, len(p.Tokens))
		for i, t := range p.Tokens {
			if !common.IsHexAddress(t.Address) {
				return nil, fmt.Errorf("pool %s token %d: bad address %q", poolID, i, t.Address)
			}
			balance, err := parseAmount(t.Balance)
			if err != nil {
				return nil, fmt.Errorf("pool %s token %s balance: %w", poolID, t.Address, err)
			}
			tokens[i] = Token{Address: common.HexToAddress(t.Address), Symbol: t.Symbol, Balance: balance}
			if t.Decimals != nil {
				r.SetDecimals(tokens[i].Address, *t.Decimals)
			}
		}
		if err := r.PutPool(poolID, tokens, supply); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Save writes the registry back to the path it was loaded from.
func (r *Registry) Save() error {
	if r.path == "" {
		return nil
	}
	return r.SaveAs(r.path)
}

// SaveAs writes the registry to path through a temporary file.
func (r *Registry) SaveAs(path string) error {
	r.mu.RLock()
	rec := fileRecord{Pools: make(map[string]filePool, len(r.pools))}
	for poolID, entry := range r.pools {
		p := filePool{TotalSupply: entry.supply.Dec(), Tokens: make([]fileToken, len(entry.tokens))}
		for i, addr := range entry.tokens {
			t := fileToken{Address: addr.Hex(), Symbol: r.symbols[addr], Balance: entry.balances[i].Dec()}
			if d, ok := r.decimals[addr]; ok {
				d := d
				t.Decimals = &d
			}
			p.Tokens[i] = t
		}
		rec.Pools[poolID] = p
	}
	r.mu.RUnlock()

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write registry tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename registry: %w", err)
	}
	return nil
}

// PoolIDs lists registered pools in sorted order.
func (r *Registry) PoolIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.pools))
	for id := range r.pools {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(s)
}
