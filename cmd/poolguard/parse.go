package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"poolGuard/internal/fixed"
)

// decimalsLookup is the registry's decimals resolver.
type decimalsLookup interface {
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

func parseAddress(label, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", label, s)
	}
	return common.HexToAddress(s), nil
}

func parseAddresses(label string, items []string) ([]common.Address, error) {
	out := make([]common.Address, len(items))
	for i, item := range items {
		addr, err := parseAddress(label, item)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// parseFractions reads values like "0.8" as 18-decimal fixed point.
func parseFractions(label string, items []string) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(items))
	for i, item := range items {
		v, err := fixed.ParseUnits(strings.TrimSpace(item), fixed.Decimals)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", label, i, err)
		}
		out[i] = v
	}
	return out, nil
}

// parseTokenAmount reads a human amount of token in its native decimals.
func parseTokenAmount(ctx context.Context, lookup decimalsLookup, token common.Address, s string) (*uint256.Int, error) {
	decimals, err := lookup.TokenDecimals(ctx, token)
	if err != nil {
		return nil, err
	}
	return fixed.ParseUnits(strings.TrimSpace(s), decimals)
}

func formatTokenAmount(ctx context.Context, lookup decimalsLookup, token common.Address, v *uint256.Int) string {
	decimals, err := lookup.TokenDecimals(ctx, token)
	if err != nil {
		return v.Dec()
	}
	return fixed.FormatUnits(v, decimals)
}

func formatFraction(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return fixed.FormatUnits(v, fixed.Decimals)
}
