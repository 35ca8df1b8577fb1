package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolGuard/internal/model"
)

const erc20ABIStringJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

// Some older tokens return symbol as bytes32.
const erc20ABIBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

var (
	erc20ABIString      abi.ABI
	erc20ABIStringOnce  sync.Once
	erc20ABIStringErr   error
	erc20ABIBytes32     abi.ABI
	erc20ABIBytes32Once sync.Once
	erc20ABIBytes32Err  error
)

func erc20ABIStringInstance() (abi.ABI, error) {
	erc20ABIStringOnce.Do(func() {
		erc20ABIString, erc20ABIStringErr = abi.JSON(strings.NewReader(erc20ABIStringJSON))
	})
	return erc20ABIString, erc20ABIStringErr
}

func erc20ABIBytes32Instance() (abi.ABI, error) {
	erc20ABIBytes32Once.Do(func() {
		erc20ABIBytes32, erc20ABIBytes32Err = abi.JSON(strings.NewReader(erc20ABIBytes32JSON))
	})
	return erc20ABIBytes32, erc20ABIBytes32Err
}

// ContractCaller is the eth_call surface of Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenReader resolves ERC20 metadata and caches it by address.
type TokenReader struct {
	caller ContractCaller
	policy RetryPolicy
	logger *zap.Logger

	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenReader(caller ContractCaller, policy RetryPolicy, logger *zap.Logger) *TokenReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenReader{
		caller: caller,
		policy: policy,
		logger: logger,
		data:   make(map[common.Address]model.TokenMeta),
	}
}

// TokenDecimals returns the decimals() of token.
func (r *TokenReader) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	meta, err := r.TokenMeta(ctx, token)
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// TokenMeta loads decimals and symbol. A token whose symbol cannot be read
// still resolves; decimals are mandatory.
func (r *TokenReader) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	r.mu.RLock()
	meta, ok := r.data[token]
	r.mu.RUnlock()
	if ok {
		return meta, nil
	}

	meta, err := r.fetch(ctx, token)
	if err != nil {
		return model.TokenMeta{}, err
	}
	r.mu.Lock()
	r.data[token] = meta
	r.mu.Unlock()
	return meta, nil
}

func (r *TokenReader) fetch(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if r.caller == nil {
		return meta, fmt.Errorf("chain client is nil")
	}
	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		msg := ethereum.CallMsg{To: &token, Data: data}
		var resp []byte
		err = withRetry(ctx, r.policy, func(ctx context.Context) error {
			var callErr error
			resp, callErr = r.caller.CallContract(ctx, msg, nil)
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		return values, nil
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, fmt.Errorf("%s: %w", token.Hex(), err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("%s: unsupported decimals type %T", token.Hex(), values[0])
	}
	meta.Decimals = decimals

	if values, err := call("symbol", stringABI); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if values, err := call("symbol", bytes32ABI); err == nil {
		if v, ok := values[0].([32]byte); ok {
			meta.Symbol = string(bytes.TrimRight(v[:], "\x00"))
		}
	} else {
		r.logger.Debug("symbol call failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	return meta, nil
}
