package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is the RPC surface the pool uses: eth_call for token metadata and
// the head header for chain time.
type Client struct {
	rpcClient *rpc.Client
	eth       *ethclient.Client
	chainID   *big.Int
}

var (
	_ ContractCaller = (*Client)(nil)
	_ HeaderReader   = (*Client)(nil)
)

// NewClient dials rpcURL and reads the chain id, so a bad endpoint fails at
// startup rather than on the first pool call.
func NewClient(ctx context.Context, rpcURL string, policy RetryPolicy) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	c := &Client{rpcClient: rpcClient, eth: ethclient.NewClient(rpcClient)}

	err = withRetry(ctx, policy, func(ctx context.Context) error {
		id, err := c.eth.ChainID(ctx)
		if err != nil {
			return err
		}
		c.chainID = id
		return nil
	})
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return c, nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID is the id read at dial time.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.eth.HeaderByNumber(ctx, number)
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.eth.CallContract(ctx, msg, blockNumber)
}
